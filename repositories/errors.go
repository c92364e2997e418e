package repositories

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a row does not exist, including rows that
// vanished between a read and the following write.
var ErrNotFound = errors.New("record not found")

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
