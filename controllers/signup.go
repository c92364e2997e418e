package controllers

import (
	"net/http"
	"strconv"
	"time"

	"hkl-restful/models"
	"hkl-restful/services"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"
)

const (
	mimeCSV        = "text/csv"
	exportFilename = "signups.csv"
	// RecordCountHeader carries the number of data rows in an export.
	RecordCountHeader = "X-Record-Count"
)

type SignupController struct {
	signupService services.SignupService
	authFilter    restful.FilterFunction
	logger        *zap.Logger
}

func NewSignupController(signupService services.SignupService, authFilter restful.FilterFunction, logger *zap.Logger) *SignupController {
	return &SignupController{signupService: signupService, authFilter: authFilter, logger: logger}
}

type SignupUserResponse struct {
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
	City  *string     `json:"city"`
}

type SignupEventResponse struct {
	Title string    `json:"title"`
	City  string    `json:"city"`
	Date  time.Time `json:"date"`
}

type SignupResponse struct {
	ID         string               `json:"id"`
	UserID     string               `json:"userId"`
	EventID    *string              `json:"eventId"`
	Type       models.SignupType    `json:"type"`
	Category   models.Category      `json:"category"`
	PersonName string               `json:"personName"`
	Timestamp  time.Time            `json:"timestamp"`
	City       *string              `json:"city"`
	CreatedAt  time.Time            `json:"createdAt"`
	User       SignupUserResponse   `json:"user"`
	Event      *SignupEventResponse `json:"event"`
}

func mapModelToSignupResponse(signup *models.Signup) SignupResponse {
	out := SignupResponse{
		ID:         signup.ID,
		UserID:     signup.UserID,
		EventID:    signup.EventID,
		Type:       signup.Type,
		Category:   signup.Category,
		PersonName: signup.PersonName,
		Timestamp:  signup.Timestamp,
		City:       signup.City,
		CreatedAt:  signup.CreatedAt,
		User: SignupUserResponse{
			Name:  signup.User.Name,
			Email: signup.User.Email,
			Role:  signup.User.Role,
			City:  signup.User.City,
		},
	}
	if signup.Event != nil {
		out.Event = &SignupEventResponse{
			Title: signup.Event.Title,
			City:  signup.Event.City,
			Date:  signup.Event.Date,
		}
	}
	return out
}

// RegisterRoutes sets up the record routes; all of them require a token.
func (ctl *SignupController) RegisterRoutes(ws *restful.WebService) {
	ws.Path("/api/signups").Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON).Filter(ctl.authFilter)
	tags := []string{"signups"}

	ws.Route(ws.POST("").To(ctl.createSignupHandler).
		Doc("Record a signup or conversation").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(services.CreateSignupInput{}).
		Returns(http.StatusCreated, "Record created", SignupResponse{}).
		Returns(http.StatusBadRequest, "Invalid request body", ErrorResponse{}).
		Returns(http.StatusUnauthorized, "Unauthorized", ErrorResponse{}).
		Returns(http.StatusNotFound, "Event not found", ErrorResponse{}))

	ws.Route(ws.GET("").To(ctl.listSignupsHandler).
		Doc("List records visible to the caller").
		Param(ws.QueryParameter("city", "City filter, honoured for super admins only").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes([]SignupResponse{}).
		Returns(http.StatusOK, "Records listed", []SignupResponse{}).
		Returns(http.StatusUnauthorized, "Unauthorized", ErrorResponse{}))

	ws.Route(ws.GET("/export").To(ctl.exportSignupsHandler).
		Doc("Export records as CSV").
		Produces(mimeCSV, restful.MIME_JSON).
		Param(ws.QueryParameter("city", "City filter, honoured for super admins only").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Returns(http.StatusOK, "CSV attachment", nil).
		Returns(http.StatusUnauthorized, "Unauthorized", ErrorResponse{}).
		Returns(http.StatusForbidden, "Only admins can export records", ErrorResponse{}))

	ws.Route(ws.DELETE("/{signup-id}").To(ctl.deleteSignupHandler).
		Doc("Delete a record").
		Param(ws.PathParameter("signup-id", "Identifier of the record").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Returns(http.StatusOK, "Record deleted", OKResponse{}).
		Returns(http.StatusUnauthorized, "Unauthorized", ErrorResponse{}).
		Returns(http.StatusForbidden, "Forbidden", ErrorResponse{}).
		Returns(http.StatusNotFound, "Record not found", ErrorResponse{}))
}

// createSignupHandler (Handles POST /api/signups)
func (ctl *SignupController) createSignupHandler(request *restful.Request, response *restful.Response) {
	actor, ok := currentActor(request, response)
	if !ok {
		return
	}

	input := new(services.CreateSignupInput)
	if err := request.ReadEntity(input); err != nil {
		writeError(response, http.StatusBadRequest, "Invalid request body")
		return
	}

	signup, err := ctl.signupService.Create(request.Request.Context(), actor, input)
	if err != nil {
		writeServiceError(response, ctl.logger, err)
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusCreated, mapModelToSignupResponse(signup), restful.MIME_JSON)
}

// listSignupsHandler (Handles GET /api/signups)
func (ctl *SignupController) listSignupsHandler(request *restful.Request, response *restful.Response) {
	actor, ok := currentActor(request, response)
	if !ok {
		return
	}

	signups, err := ctl.signupService.List(request.Request.Context(), actor, request.QueryParameter("city"))
	if err != nil {
		writeServiceError(response, ctl.logger, err)
		return
	}

	out := make([]SignupResponse, len(signups))
	for i := range signups {
		out[i] = mapModelToSignupResponse(&signups[i])
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, out, restful.MIME_JSON)
}

// exportSignupsHandler (Handles GET /api/signups/export)
func (ctl *SignupController) exportSignupsHandler(request *restful.Request, response *restful.Response) {
	actor, ok := currentActor(request, response)
	if !ok {
		return
	}

	export, err := ctl.signupService.Export(request.Request.Context(), actor, request.QueryParameter("city"))
	if err != nil {
		writeServiceError(response, ctl.logger, err)
		return
	}

	response.AddHeader("Content-Type", mimeCSV+"; charset=utf-8")
	response.AddHeader("Content-Disposition", `attachment; filename="`+exportFilename+`"`)
	response.AddHeader(RecordCountHeader, strconv.Itoa(export.Count))
	response.WriteHeader(http.StatusOK)
	if _, err := response.Write(export.CSV); err != nil {
		ctl.logger.Warn("Export write failed", zap.Error(err))
	}
}

// deleteSignupHandler (Handles DELETE /api/signups/{signup-id})
func (ctl *SignupController) deleteSignupHandler(request *restful.Request, response *restful.Response) {
	actor, ok := currentActor(request, response)
	if !ok {
		return
	}

	if err := ctl.signupService.Delete(request.Request.Context(), actor, request.PathParameter("signup-id")); err != nil {
		writeServiceError(response, ctl.logger, err)
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, OKResponse{OK: true}, restful.MIME_JSON)
}
