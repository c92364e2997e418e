package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"hkl-restful/models"
	"hkl-restful/policy"
	"hkl-restful/repositories"
)

type EventService interface {
	// List is public: events sorted by date, optionally for a single city.
	List(ctx context.Context, city string) ([]models.Event, error)
	Create(ctx context.Context, actor policy.Actor, input *CreateEventInput) (*models.Event, error)
	Update(ctx context.Context, actor policy.Actor, id string, input *UpdateEventInput) (*models.Event, error)
	Delete(ctx context.Context, actor policy.Actor, id string) error
}

type CreateEventInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date" description:"RFC 3339 timestamp or YYYY-MM-DD"`
	City        string `json:"city"`
	Location    string `json:"location"`
}

// UpdateEventInput is a partial update: nil fields are left unchanged, while
// present values (including empty strings) are applied.
type UpdateEventInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Date        *string `json:"date,omitempty"`
	City        *string `json:"city,omitempty"`
	Location    *string `json:"location,omitempty"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate accepts RFC 3339 timestamps, local date-times and bare dates (UTC).
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ValidationError("Invalid date")
}

type eventService struct {
	repo repositories.EventRepository
}

var _ EventService = (*eventService)(nil)

func NewEventService(repo repositories.EventRepository) EventService {
	return &eventService{repo: repo}
}

func (s *eventService) List(ctx context.Context, city string) ([]models.Event, error) {
	events, err := s.repo.List(ctx, city)
	if err != nil {
		return nil, UnexpectedError("Database error listing events", err)
	}
	return events, nil
}

func (s *eventService) Create(ctx context.Context, actor policy.Actor, input *CreateEventInput) (*models.Event, error) {
	title := strings.TrimSpace(input.Title)
	city := strings.TrimSpace(input.City)
	if title == "" || strings.TrimSpace(input.Date) == "" || city == "" {
		return nil, ValidationError("Missing required fields")
	}
	date, err := ParseDate(input.Date)
	if err != nil {
		return nil, err
	}

	if d := policy.Evaluate(actor, policy.Request{Action: policy.CreateEvent, City: &city}); !d.Allowed {
		return nil, AuthorizationError(d.Reason)
	}

	event := models.Event{
		Title:       title,
		Description: input.Description,
		Date:        date,
		City:        city,
		Location:    input.Location,
	}
	if err := s.repo.Create(ctx, &event); err != nil {
		return nil, UnexpectedError("Failed to create event", err)
	}
	return &event, nil
}

func (s *eventService) Update(ctx context.Context, actor policy.Actor, id string, input *UpdateEventInput) (*models.Event, error) {
	event, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	d := policy.Evaluate(actor, policy.Request{
		Action: policy.UpdateEvent,
		Target: &policy.Target{City: event.City},
		City:   input.City,
	})
	if !d.Allowed {
		return nil, AuthorizationError(d.Reason)
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, ValidationError("title cannot be empty")
		}
		event.Title = title
	}
	if input.Description != nil {
		event.Description = *input.Description
	}
	if input.Date != nil {
		date, err := ParseDate(*input.Date)
		if err != nil {
			return nil, err
		}
		event.Date = date
	}
	if input.Location != nil {
		event.Location = *input.Location
	}
	// Only a super admin relocates events; the policy has already rejected
	// an admin asking for a different city.
	if actor.Role == models.RoleSuperAdmin && input.City != nil {
		if city := strings.TrimSpace(*input.City); city != "" {
			event.City = city
		}
	}

	if err := s.repo.Update(ctx, event); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFoundError("Not found")
		}
		return nil, UnexpectedError("Failed to update event", err)
	}
	return event, nil
}

func (s *eventService) Delete(ctx context.Context, actor policy.Actor, id string) error {
	event, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	d := policy.Evaluate(actor, policy.Request{
		Action: policy.DeleteEvent,
		Target: &policy.Target{City: event.City},
	})
	if !d.Allowed {
		return AuthorizationError(d.Reason)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFoundError("Not found")
		}
		return UnexpectedError("Failed to delete event", err)
	}
	return nil
}

func (s *eventService) find(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFoundError("Not found")
		}
		return nil, UnexpectedError("Database error retrieving event", err)
	}
	return event, nil
}
