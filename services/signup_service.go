package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"hkl-restful/models"
	"hkl-restful/policy"
	"hkl-restful/report"
	"hkl-restful/repositories"
)

type SignupService interface {
	Create(ctx context.Context, actor policy.Actor, input *CreateSignupInput) (*models.Signup, error)
	List(ctx context.Context, actor policy.Actor, city string) ([]models.Signup, error)
	Export(ctx context.Context, actor policy.Actor, city string) (*Export, error)
	Delete(ctx context.Context, actor policy.Actor, id string) error
}

type CreateSignupInput struct {
	Type       string  `json:"type" description:"personal or event"`
	EventID    *string `json:"eventId,omitempty" description:"Required when type is event"`
	Category   string  `json:"category" description:"signup (default) or conversation"`
	PersonName string  `json:"personName"`
}

// Export is a rendered CSV document and the number of data rows in it.
type Export struct {
	CSV   []byte
	Count int
}

type signupService struct {
	signups  repositories.SignupRepository
	events   repositories.EventRepository
	exporter *report.Exporter
	now      func() time.Time
}

var _ SignupService = (*signupService)(nil)

func NewSignupService(signups repositories.SignupRepository, events repositories.EventRepository, exporter *report.Exporter) SignupService {
	return &signupService{
		signups:  signups,
		events:   events,
		exporter: exporter,
		now:      time.Now,
	}
}

// Create stores a record owned by the actor. The record's city is copied from
// the event (type=event) or from the actor (type=personal) and never changes.
func (s *signupService) Create(ctx context.Context, actor policy.Actor, input *CreateSignupInput) (*models.Signup, error) {
	personName := strings.TrimSpace(input.PersonName)
	if personName == "" {
		return nil, ValidationError("personName is required")
	}
	kind := models.SignupType(input.Type)
	if !kind.Valid() {
		return nil, ValidationError("Invalid type")
	}
	category := models.Category(input.Category)
	if category == "" {
		category = models.CategorySignup
	}
	if !category.Valid() {
		return nil, ValidationError("Invalid category")
	}

	if d := policy.Evaluate(actor, policy.Request{Action: policy.CreateRecord}); !d.Allowed {
		return nil, AuthorizationError(d.Reason)
	}

	signup := models.Signup{
		UserID:     actor.ID,
		Type:       kind,
		Category:   category,
		PersonName: personName,
		Timestamp:  s.now(),
	}

	if kind == models.SignupTypeEvent {
		if input.EventID == nil || strings.TrimSpace(*input.EventID) == "" {
			return nil, ValidationError("eventId required for event type")
		}
		event, err := s.events.FindByID(ctx, strings.TrimSpace(*input.EventID))
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, NotFoundError("Event not found")
			}
			return nil, UnexpectedError("Database error retrieving event", err)
		}
		city := event.City
		signup.EventID = &event.ID
		signup.City = &city
	} else if actor.City != nil {
		city := actor.CityName()
		signup.City = &city
	}

	if err := s.signups.Create(ctx, &signup); err != nil {
		return nil, UnexpectedError("Failed to create record", err)
	}

	created, err := s.signups.FindByID(ctx, signup.ID)
	if err != nil {
		return nil, UnexpectedError("Database error reloading record", err)
	}
	return created, nil
}

func (s *signupService) List(ctx context.Context, actor policy.Actor, city string) ([]models.Signup, error) {
	d := policy.Evaluate(actor, policy.Request{Action: policy.ListRecords, City: &city})
	if !d.Allowed {
		return nil, AuthorizationError(d.Reason)
	}

	signups, err := s.signups.List(ctx, filterFor(d.Filter))
	if err != nil {
		return nil, UnexpectedError("Database error listing records", err)
	}
	return signups, nil
}

func (s *signupService) Export(ctx context.Context, actor policy.Actor, city string) (*Export, error) {
	d := policy.Evaluate(actor, policy.Request{Action: policy.ExportRecords, City: &city})
	if !d.Allowed {
		return nil, AuthorizationError(d.Reason)
	}

	signups, err := s.signups.List(ctx, filterFor(d.Filter))
	if err != nil {
		return nil, UnexpectedError("Database error listing records", err)
	}
	data, err := s.exporter.CSV(signups)
	if err != nil {
		return nil, UnexpectedError("Failed to render export", err)
	}
	return &Export{CSV: data, Count: len(signups)}, nil
}

func (s *signupService) Delete(ctx context.Context, actor policy.Actor, id string) error {
	signup, err := s.signups.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFoundError("Record not found")
		}
		return UnexpectedError("Database error retrieving record", err)
	}

	target := &policy.Target{}
	if signup.City != nil {
		target.City = *signup.City
	}
	if signup.Event != nil {
		target.EventCity = signup.Event.City
	}
	if d := policy.Evaluate(actor, policy.Request{Action: policy.DeleteRecord, Target: target}); !d.Allowed {
		return AuthorizationError(d.Reason)
	}

	if err := s.signups.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFoundError("Record not found")
		}
		return UnexpectedError("Failed to delete record", err)
	}
	return nil
}

func filterFor(f policy.Filter) repositories.SignupFilter {
	return repositories.SignupFilter{UserID: f.UserID, City: f.City}
}
