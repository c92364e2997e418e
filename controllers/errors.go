package controllers

import (
	"errors"
	"net/http"

	"hkl-restful/auth"
	"hkl-restful/policy"
	"hkl-restful/services"

	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// OKResponse is returned by delete endpoints.
type OKResponse struct {
	OK bool `json:"ok"`
}

func writeError(response *restful.Response, status int, message string) {
	_ = response.WriteHeaderAndJson(status, ErrorResponse{Error: message}, restful.MIME_JSON)
}

// writeServiceError translates service errors to HTTP responses. Unexpected
// errors are logged and never exposed to the client.
func writeServiceError(response *restful.Response, logger *zap.Logger, err error) {
	var se *services.Error
	if !errors.As(err, &se) || se.Kind == services.KindUnexpected {
		logger.Error("Unhandled service error", zap.Error(err))
		writeError(response, http.StatusInternalServerError, "Server error")
		return
	}

	status := http.StatusInternalServerError
	switch se.Kind {
	case services.KindValidation:
		status = http.StatusBadRequest
	case services.KindAuthentication:
		status = http.StatusUnauthorized
	case services.KindAuthorization:
		status = http.StatusForbidden
	case services.KindNotFound:
		status = http.StatusNotFound
	case services.KindConflict:
		status = http.StatusConflict
	}
	writeError(response, status, se.Message)
}

// currentActor returns the caller stored by the auth filter, writing a 401
// when the route was reached without one.
func currentActor(request *restful.Request, response *restful.Response) (policy.Actor, bool) {
	actor, ok := auth.ActorFrom(request)
	if !ok {
		writeError(response, http.StatusUnauthorized, "Missing token")
	}
	return actor, ok
}
