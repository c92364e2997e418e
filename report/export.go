// Package report flattens signup records into the tabular export format.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"hkl-restful/models"
)

// DateLayout renders timestamps the way an en-US locale prints date-times.
const DateLayout = "1/2/2006, 3:04:05 PM"

// Header is the fixed column order of every export.
var Header = []string{
	"User Name",
	"Category",
	"Signup Type",
	"Event Title",
	"Person Name",
	"Signup Date",
	"City",
}

type Row struct {
	UserName   string
	Category   string
	SignupType string
	EventTitle string
	PersonName string
	SignupDate string
	City       string
}

// Values returns the row in Header order.
func (r Row) Values() []string {
	return []string{
		r.UserName,
		r.Category,
		r.SignupType,
		r.EventTitle,
		r.PersonName,
		r.SignupDate,
		r.City,
	}
}

type Exporter struct {
	loc *time.Location
}

// NewExporter renders dates in loc; a nil loc means UTC.
func NewExporter(loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{loc: loc}
}

// Rows maps records one-to-one, preserving order. Records are expected to
// carry their User and Event associations.
func (e *Exporter) Rows(records []models.Signup) []Row {
	rows := make([]Row, 0, len(records))
	for _, s := range records {
		rows = append(rows, e.row(s))
	}
	return rows
}

func (e *Exporter) row(s models.Signup) Row {
	category := "Signup"
	if s.Category == models.CategoryConversation {
		category = "Conversation"
	}

	var eventTitle, eventCity string
	if s.Event != nil {
		eventCity = s.Event.City
		if s.Type == models.SignupTypeEvent {
			eventTitle = s.Event.Title
		}
	}

	var date string
	if !s.Timestamp.IsZero() {
		date = s.Timestamp.In(e.loc).Format(DateLayout)
	}

	city := eventCity
	if s.City != nil && strings.TrimSpace(*s.City) != "" {
		city = *s.City
	}

	return Row{
		UserName:   s.User.Name,
		Category:   category,
		SignupType: string(s.Type),
		EventTitle: eventTitle,
		PersonName: s.PersonName,
		SignupDate: date,
		City:       city,
	}
}

// WriteCSV writes the header followed by one line per row.
func WriteCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range rows {
		if err := writer.Write(r.Values()); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

// CSV renders records as a complete CSV document.
func (e *Exporter) CSV(records []models.Signup) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, e.Rows(records)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
