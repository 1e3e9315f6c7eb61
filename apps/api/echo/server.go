package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/audit"
	"github.com/eventsoft/eventsoft/core/certificate"
	"github.com/eventsoft/eventsoft/core/criterion"
	"github.com/eventsoft/eventsoft/core/enrollment"
	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/instrument"
	"github.com/eventsoft/eventsoft/core/invitation"
	"github.com/eventsoft/eventsoft/core/notification"
	"github.com/eventsoft/eventsoft/core/site"
	"github.com/eventsoft/eventsoft/core/user"
)

// Deps are the services the API exposes.
type Deps struct {
	Users         *user.Service
	Events        *event.Service
	Enrollments   *enrollment.Service
	Criteria      *criterion.Service
	Notifications *notification.Service
	Certificates  *certificate.Service
	Instruments   *instrument.Service
	Invitations   *invitation.Service
	Site          *site.Service
	Audit         *audit.Log
}

type Server struct {
	conf     *core.Config
	logger   core.Logger
	app      *echo.Echo
	registry *prometheus.Registry
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(conf *core.Config, logger core.Logger, deps *Deps) *Server {
	s := &Server{
		conf:     conf,
		logger:   logger,
		app:      echo.New(),
		registry: prometheus.NewRegistry(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup(deps)
	return s
}

func (s *Server) setup(deps *Deps) {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(s.metricsMiddleware())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.logger, s.SignalShutdown)
	s.app.Debug = s.conf.Debug && !s.conf.TestMode

	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.registry.MustRegister(deps.Notifications.Collectors()...)

	s.app.GET("/", s.home)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := s.app.Group("/v1")
	auth := newAuthenticator(deps.Users)

	registerUserAPI(v1, auth, deps.Users)
	registerEventAPI(v1, auth, deps.Events)
	registerEnrollmentAPI(v1, auth, deps.Enrollments)
	registerCriterionAPI(v1, auth, deps.Criteria)
	registerNotificationAPI(v1, auth, deps.Notifications)
	registerCertificateAPI(v1, auth, deps.Certificates)
	registerInstrumentAPI(v1, auth, deps.Instruments)
	registerInvitationAPI(v1, auth, deps.Invitations, deps.Users)
	registerSiteAPI(v1, auth, deps.Site)
	registerAuditAPI(v1, auth, deps.Audit)
}

// Start serves until the server is shut down; a failure to serve is reported on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the process to shut down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.conf.AppName+" API!")
}
