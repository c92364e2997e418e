package repositories

import (
	"context"
	"time"

	"hkl-restful/models"

	"gorm.io/gorm"
)

// EventRepository defines Event-related database operations
type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id string) (*models.Event, error)
	// List returns events ordered by date ascending, optionally for one city.
	List(ctx context.Context, city string) ([]models.Event, error)
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id string) error
}

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, event *models.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &event, nil
}

func (r *eventRepository) List(ctx context.Context, city string) ([]models.Event, error) {
	q := r.db.WithContext(ctx).Model(&models.Event{})
	if key := models.CityKey(city); key != "" {
		q = q.Where("city_key = ?", key)
	}

	events := []models.Event{}
	if err := q.Order("date ASC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// Update writes the editable columns. ErrNotFound means the event was deleted
// after it was read.
func (r *eventRepository) Update(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now()
	event.CityKey = models.CityKey(event.City)
	result := r.db.WithContext(ctx).Model(&models.Event{}).
		Where("id = ?", event.ID).
		Updates(map[string]any{
			"title":       event.Title,
			"description": event.Description,
			"date":        event.Date,
			"city":        event.City,
			"city_key":    event.CityKey,
			"location":    event.Location,
			"updated_at":  event.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the event and detaches records that referenced it. Records
// keep their own city.
func (r *eventRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Signup{}).Where("event_id = ?", id).Update("event_id", nil).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Event{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
