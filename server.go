package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"hkl-restful/auth"
	"hkl-restful/config"
	"hkl-restful/controllers"
	grpcserver "hkl-restful/grpc_server"
	"hkl-restful/interceptors"
	"hkl-restful/observability"
	"hkl-restful/report"
	"hkl-restful/repositories"
	"hkl-restful/services"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"github.com/go-chi/cors"
	"github.com/go-openapi/spec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"gorm.io/gorm"
)

const apiName = "HKL API"

// application holds the wired dependencies shared by the HTTP and gRPC servers.
type application struct {
	cfg     config.Config
	logger  *zap.Logger
	sqlDB   *sql.DB
	tokens  *auth.Manager
	users   services.UserService
	events  services.EventService
	signups services.SignupService
	metrics *observability.Metrics
}

func newApplication(cfg config.Config, logger *zap.Logger, db *gorm.DB) (*application, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Export.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid export timezone %q: %w", cfg.Export.Timezone, err)
	}

	tokens, err := auth.NewManager(cfg.JwtSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	userRepo := repositories.NewUserRepository(db)
	eventRepo := repositories.NewEventRepository(db)
	signupRepo := repositories.NewSignupRepository(db)

	app := &application{
		cfg:    cfg,
		logger: logger,
		sqlDB:  sqlDB,
		tokens: tokens,
		users: services.NewUserService(userRepo, services.UserServiceOptions{
			OpenRoleRegistration: cfg.Auth.OpenRoleRegistration,
		}),
		events:  services.NewEventService(eventRepo),
		signups: services.NewSignupService(signupRepo, eventRepo, report.NewExporter(loc)),
	}

	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		app.metrics = observability.NewMetrics(registry)
		app.metrics.RegisterDB(sqlDB, cfg.ServiceName)
	}
	return app, nil
}

// container registers every web service, the API docs and, when enabled,
// the metrics endpoint.
func (a *application) container() *restful.Container {
	httpLogger := a.logger.Named("http")
	authFilter := auth.AuthFilter(a.tokens, a.users, httpLogger)

	container := restful.NewContainer()
	container.DoNotRecover(false)
	container.RecoverHandler(observability.RecoverHandler(httpLogger))
	container.Filter(observability.RequestLogger(httpLogger))
	if a.metrics != nil {
		container.Filter(a.metrics.Filter)
	}

	routes := []interface{ RegisterRoutes(*restful.WebService) }{
		controllers.NewSystemController(apiName, a.sqlDB, httpLogger),
		controllers.NewAuthController(a.users, a.tokens, httpLogger),
		controllers.NewEventController(a.events, authFilter, httpLogger),
		controllers.NewSignupController(a.signups, authFilter, httpLogger),
	}
	for _, ctl := range routes {
		ws := new(restful.WebService)
		ctl.RegisterRoutes(ws)
		container.Add(ws)
	}

	container.Add(restfulspec.NewOpenAPIService(restfulspec.Config{
		WebServices:                   container.RegisteredWebServices(),
		APIPath:                       "/apidocs.json",
		PostBuildSwaggerObjectHandler: enrichSwaggerObject,
	}))

	if a.metrics != nil {
		container.Handle("/metrics", a.metrics.Handler())
	}
	return container
}

// httpHandler wraps the container with CORS handling for browser clients.
func (a *application) httpHandler() http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Disposition", controllers.RecordCountHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})(a.container())
}

// grpcServer serves the health protocol and the record count RPC behind
// logging and token interceptors.
func (a *application) grpcServer(health *grpcserver.HealthServer) *grpc.Server {
	grpcLogger := a.logger.Named("grpc")
	srv := grpcserver.NewServer(health,
		grpc.ChainUnaryInterceptor(
			interceptors.ZapLoggingInterceptor(grpcLogger),
			interceptors.AuthInterceptor(a.tokens, a.users),
		),
		grpc.ChainStreamInterceptor(
			interceptors.ZapStreamLoggingInterceptor(grpcLogger),
			interceptors.StreamAuthInterceptor(a.tokens, a.users),
		),
	)
	grpcserver.RegisterRecordsServer(srv, grpcserver.NewRecordsServer(a.signups))
	return srv
}

func enrichSwaggerObject(swo *spec.Swagger) {
	swo.Info = &spec.Info{
		InfoProps: spec.InfoProps{
			Title:       apiName,
			Description: "Community events, signups and conversation records",
			Version:     "1.0.0",
		},
	}
	swo.Tags = []spec.Tag{
		{TagProps: spec.TagProps{Name: "auth", Description: "Registration and login"}},
		{TagProps: spec.TagProps{Name: "events", Description: "City events"}},
		{TagProps: spec.TagProps{Name: "signups", Description: "Signup and conversation records"}},
		{TagProps: spec.TagProps{Name: "system", Description: "Liveness"}},
	}
	swo.SecurityDefinitions = spec.SecurityDefinitions{
		"bearer": spec.APIKeyAuth("Authorization", "header"),
	}
}
