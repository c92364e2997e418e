// Package policy decides what an authenticated actor may do with events and
// signup records. Evaluation is pure: callers load any target first and pass
// a snapshot of it in the Request.
package policy

import (
	"strings"

	"hkl-restful/models"
)

// Actor is the authenticated caller as resolved from the identity store.
type Actor struct {
	ID   string
	Role models.Role
	City *string
}

// CityName returns the actor's city or "" when none is set.
func (a Actor) CityName() string {
	if a.City == nil {
		return ""
	}
	return strings.TrimSpace(*a.City)
}

type Action string

const (
	ListEvents    Action = "events:list"
	CreateEvent   Action = "events:create"
	UpdateEvent   Action = "events:update"
	DeleteEvent   Action = "events:delete"
	CreateRecord  Action = "records:create"
	ListRecords   Action = "records:list"
	DeleteRecord  Action = "records:delete"
	ExportRecords Action = "records:export"
)

// Target is a snapshot of the stored resource an action applies to.
type Target struct {
	// City of the event, or the denormalized city of a record.
	City string
	// EventCity is the linked event's city, consulted for records without a city.
	EventCity string
}

type Request struct {
	Action Action
	Target *Target
	// City is the city carried by the request: the body city on event
	// create/update, the ?city= filter on list and export.
	City *string
}

// Filter restricts a list query. Empty fields do not constrain.
type Filter struct {
	UserID string
	City   string
}

func (f Filter) Unscoped() bool {
	return f.UserID == "" && f.City == ""
}

type Decision struct {
	Allowed bool
	Reason  string
	Filter  Filter
}

const (
	ReasonForbidden         = "Forbidden"
	ReasonUnknownRole       = "Unknown role"
	ReasonMissingTarget     = "Missing target"
	ReasonAdminWithoutCity  = "Admin has no city assigned"
	ReasonCityMismatch      = "City mismatch: admin can only manage events in their city"
	ReasonEditOtherCity     = "Admin can only edit events in their city"
	ReasonMoveEvent         = "Admin cannot move event to another city"
	ReasonDeleteOtherCity   = "Admin can only delete events in their city"
	ReasonRecordOtherCity   = "Admins can only delete records in their city"
	ReasonExportNotAllowed  = "Only admins can export records"
	ReasonUnsupportedAction = "Unsupported action"
)

func allow() Decision { return Decision{Allowed: true} }

func allowWith(f Filter) Decision { return Decision{Allowed: true, Filter: f} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// SameCity compares the folded city names used by the list filters. Two
// empty names never match.
func SameCity(a, b string) bool {
	ka := models.CityKey(a)
	return ka != "" && ka == models.CityKey(b)
}

// Evaluate applies the role and city rules to a single request.
func Evaluate(actor Actor, req Request) Decision {
	if !actor.Role.Valid() {
		return deny(ReasonUnknownRole)
	}

	switch req.Action {
	case ListEvents:
		return allowWith(Filter{City: requested(req.City)})
	case CreateRecord:
		return allow()
	case CreateEvent:
		return createEvent(actor, req)
	case UpdateEvent:
		return updateEvent(actor, req)
	case DeleteEvent:
		return deleteEvent(actor, req)
	case ListRecords:
		return listRecords(actor, req)
	case DeleteRecord:
		return deleteRecord(actor, req)
	case ExportRecords:
		return exportRecords(actor, req)
	}
	return deny(ReasonUnsupportedAction)
}

func createEvent(actor Actor, req Request) Decision {
	switch actor.Role {
	case models.RoleSuperAdmin:
		return allow()
	case models.RoleAdmin:
		if actor.CityName() == "" {
			return deny(ReasonAdminWithoutCity)
		}
		if !SameCity(actor.CityName(), requested(req.City)) {
			return deny(ReasonCityMismatch)
		}
		return allow()
	}
	return deny(ReasonForbidden)
}

func updateEvent(actor Actor, req Request) Decision {
	switch actor.Role {
	case models.RoleSuperAdmin:
		return allow()
	case models.RoleAdmin:
		if req.Target == nil {
			return deny(ReasonMissingTarget)
		}
		if actor.CityName() == "" {
			return deny(ReasonAdminWithoutCity)
		}
		if !SameCity(actor.CityName(), req.Target.City) {
			return deny(ReasonEditOtherCity)
		}
		if city := requested(req.City); city != "" && !SameCity(city, req.Target.City) {
			return deny(ReasonMoveEvent)
		}
		return allow()
	}
	return deny(ReasonForbidden)
}

func deleteEvent(actor Actor, req Request) Decision {
	switch actor.Role {
	case models.RoleSuperAdmin:
		return allow()
	case models.RoleAdmin:
		if req.Target == nil {
			return deny(ReasonMissingTarget)
		}
		if actor.CityName() == "" {
			return deny(ReasonAdminWithoutCity)
		}
		if !SameCity(actor.CityName(), req.Target.City) {
			return deny(ReasonDeleteOtherCity)
		}
		return allow()
	}
	return deny(ReasonForbidden)
}

func listRecords(actor Actor, req Request) Decision {
	switch actor.Role {
	case models.RoleUser:
		return allowWith(Filter{UserID: actor.ID})
	case models.RoleAdmin:
		if actor.CityName() == "" {
			return deny(ReasonAdminWithoutCity)
		}
		return allowWith(Filter{City: actor.CityName()})
	case models.RoleSuperAdmin:
		return allowWith(Filter{City: requested(req.City)})
	}
	return deny(ReasonUnknownRole)
}

func deleteRecord(actor Actor, req Request) Decision {
	switch actor.Role {
	case models.RoleSuperAdmin:
		return allow()
	case models.RoleAdmin:
		if req.Target == nil {
			return deny(ReasonMissingTarget)
		}
		if actor.CityName() == "" {
			return deny(ReasonAdminWithoutCity)
		}
		city := strings.TrimSpace(req.Target.City)
		if city == "" {
			city = req.Target.EventCity
		}
		if !SameCity(actor.CityName(), city) {
			return deny(ReasonRecordOtherCity)
		}
		return allow()
	}
	return deny(ReasonForbidden)
}

func exportRecords(actor Actor, req Request) Decision {
	switch actor.Role {
	case models.RoleAdmin:
		if actor.CityName() == "" {
			return deny(ReasonAdminWithoutCity)
		}
		return allowWith(Filter{City: actor.CityName()})
	case models.RoleSuperAdmin:
		return allowWith(Filter{City: requested(req.City)})
	}
	return deny(ReasonExportNotAllowed)
}

func requested(city *string) string {
	if city == nil {
		return ""
	}
	return strings.TrimSpace(*city)
}
