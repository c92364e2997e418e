package controllers

import (
	"context"
	"net/http"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"
)

// Pinger reports whether the backing store is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type SystemController struct {
	name   string
	db     Pinger
	logger *zap.Logger
}

func NewSystemController(name string, db Pinger, logger *zap.Logger) *SystemController {
	return &SystemController{name: name, db: db, logger: logger}
}

type StatusResponse struct {
	OK   bool   `json:"ok"`
	Name string `json:"name,omitempty"`
}

func (ctl *SystemController) RegisterRoutes(ws *restful.WebService) {
	ws.Path("/").Produces(restful.MIME_JSON)
	tags := []string{"system"}

	ws.Route(ws.GET("/").To(ctl.rootHandler).
		Doc("Service banner").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Returns(http.StatusOK, "OK", StatusResponse{}))

	ws.Route(ws.GET("/healthz").To(ctl.healthHandler).
		Doc("Liveness including a database ping").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Returns(http.StatusOK, "Healthy", StatusResponse{}).
		Returns(http.StatusServiceUnavailable, "Database unreachable", ErrorResponse{}))
}

func (ctl *SystemController) rootHandler(request *restful.Request, response *restful.Response) {
	_ = response.WriteHeaderAndJson(http.StatusOK, StatusResponse{OK: true, Name: ctl.name}, restful.MIME_JSON)
}

func (ctl *SystemController) healthHandler(request *restful.Request, response *restful.Response) {
	ctx, cancel := context.WithTimeout(request.Request.Context(), 2*time.Second)
	defer cancel()

	if err := ctl.db.PingContext(ctx); err != nil {
		ctl.logger.Warn("Health check failed", zap.Error(err))
		writeError(response, http.StatusServiceUnavailable, "Database unreachable")
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, StatusResponse{OK: true}, restful.MIME_JSON)
}
