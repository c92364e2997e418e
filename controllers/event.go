package controllers

import (
	"net/http"
	"time"

	"hkl-restful/models"
	"hkl-restful/services"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"
)

type EventController struct {
	eventService services.EventService
	authFilter   restful.FilterFunction
	logger       *zap.Logger
}

func NewEventController(eventService services.EventService, authFilter restful.FilterFunction, logger *zap.Logger) *EventController {
	return &EventController{eventService: eventService, authFilter: authFilter, logger: logger}
}

type EventResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	City        string    `json:"city"`
	Location    string    `json:"location"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func mapModelToEventResponse(event *models.Event) EventResponse {
	return EventResponse{
		ID:          event.ID,
		Title:       event.Title,
		Description: event.Description,
		Date:        event.Date,
		City:        event.City,
		Location:    event.Location,
		CreatedAt:   event.CreatedAt,
		UpdatedAt:   event.UpdatedAt,
	}
}

// RegisterRoutes sets up the event routes. Listing is public, mutations
// require a token.
func (ctl *EventController) RegisterRoutes(ws *restful.WebService) {
	ws.Path("/api/events").Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	tags := []string{"events"}

	ws.Route(ws.GET("").To(ctl.listEventsHandler).
		Doc("List events by date").
		Param(ws.QueryParameter("city", "Only events in this city (case-insensitive)").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes([]EventResponse{}).
		Returns(http.StatusOK, "Events listed", []EventResponse{}))

	ws.Route(ws.POST("").Filter(ctl.authFilter).To(ctl.createEventHandler).
		Doc("Create an event").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(services.CreateEventInput{}).
		Returns(http.StatusCreated, "Event created", EventResponse{}).
		Returns(http.StatusBadRequest, "Missing required fields", ErrorResponse{}).
		Returns(http.StatusUnauthorized, "Unauthorized", ErrorResponse{}).
		Returns(http.StatusForbidden, "Forbidden", ErrorResponse{}))

	ws.Route(ws.PUT("/{event-id}").Filter(ctl.authFilter).To(ctl.updateEventHandler).
		Doc("Update an event").
		Param(ws.PathParameter("event-id", "Identifier of the event").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(services.UpdateEventInput{}).
		Returns(http.StatusOK, "Event updated", EventResponse{}).
		Returns(http.StatusBadRequest, "Invalid request body", ErrorResponse{}).
		Returns(http.StatusUnauthorized, "Unauthorized", ErrorResponse{}).
		Returns(http.StatusForbidden, "Forbidden", ErrorResponse{}).
		Returns(http.StatusNotFound, "Not found", ErrorResponse{}))

	ws.Route(ws.DELETE("/{event-id}").Filter(ctl.authFilter).To(ctl.deleteEventHandler).
		Doc("Delete an event").
		Param(ws.PathParameter("event-id", "Identifier of the event").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Returns(http.StatusOK, "Event deleted", OKResponse{}).
		Returns(http.StatusUnauthorized, "Unauthorized", ErrorResponse{}).
		Returns(http.StatusForbidden, "Forbidden", ErrorResponse{}).
		Returns(http.StatusNotFound, "Not found", ErrorResponse{}))
}

// listEventsHandler (Handles GET /api/events)
func (ctl *EventController) listEventsHandler(request *restful.Request, response *restful.Response) {
	events, err := ctl.eventService.List(request.Request.Context(), request.QueryParameter("city"))
	if err != nil {
		writeServiceError(response, ctl.logger, err)
		return
	}

	out := make([]EventResponse, len(events))
	for i := range events {
		out[i] = mapModelToEventResponse(&events[i])
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, out, restful.MIME_JSON)
}

// createEventHandler (Handles POST /api/events)
func (ctl *EventController) createEventHandler(request *restful.Request, response *restful.Response) {
	actor, ok := currentActor(request, response)
	if !ok {
		return
	}

	input := new(services.CreateEventInput)
	if err := request.ReadEntity(input); err != nil {
		writeError(response, http.StatusBadRequest, "Invalid request body")
		return
	}

	event, err := ctl.eventService.Create(request.Request.Context(), actor, input)
	if err != nil {
		writeServiceError(response, ctl.logger, err)
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusCreated, mapModelToEventResponse(event), restful.MIME_JSON)
}

// updateEventHandler (Handles PUT /api/events/{event-id})
func (ctl *EventController) updateEventHandler(request *restful.Request, response *restful.Response) {
	actor, ok := currentActor(request, response)
	if !ok {
		return
	}

	input := new(services.UpdateEventInput)
	if err := request.ReadEntity(input); err != nil {
		writeError(response, http.StatusBadRequest, "Invalid request body")
		return
	}

	event, err := ctl.eventService.Update(request.Request.Context(), actor, request.PathParameter("event-id"), input)
	if err != nil {
		writeServiceError(response, ctl.logger, err)
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, mapModelToEventResponse(event), restful.MIME_JSON)
}

// deleteEventHandler (Handles DELETE /api/events/{event-id})
func (ctl *EventController) deleteEventHandler(request *restful.Request, response *restful.Response) {
	actor, ok := currentActor(request, response)
	if !ok {
		return
	}

	if err := ctl.eventService.Delete(request.Request.Context(), actor, request.PathParameter("event-id")); err != nil {
		writeServiceError(response, ctl.logger, err)
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, OKResponse{OK: true}, restful.MIME_JSON)
}
