package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"

	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/catalog"
	"github.com/gigglesedu/giggles/core/progress"
	"github.com/gigglesedu/giggles/core/user"
)

type (
	Deps struct {
		Logger      core.Logger
		UserSvc     user.Service
		CatalogSvc  catalog.Service
		ProgressSvc progress.Service
	}

	Server interface {
		http.Handler
		Start() error
		Shutdown(context.Context) error
		Close() error
	}

	server struct {
		addr     string
		shutdown chan os.Signal
		deps     *Deps
		app      *echo.Echo
	}
)

var _ Server = (*server)(nil)

// NewServer sets up the API. A server error flagged as shutdown sends SIGTERM on shutdown, when given.
func NewServer(addr string, shutdown chan os.Signal, deps *Deps) Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps, "deps"),
	).CheckAndPanic()
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Logger, "deps.Logger"),
		vala.IsNotNil(deps.UserSvc, "deps.UserSvc"),
		vala.IsNotNil(deps.CatalogSvc, "deps.CatalogSvc"),
		vala.IsNotNil(deps.ProgressSvc, "deps.ProgressSvc"),
	).CheckAndPanic()

	s := &server{
		addr:     addr,
		shutdown: shutdown,
		deps:     deps,
		app:      echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	debug := core.Conf.Debug && !core.Conf.TestMode

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !(core.Conf.Server.DisableRequestLogs || core.Conf.TestMode) {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(core.Conf.Debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Debug = debug

	s.app.GET("/", home)

	g := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(appJWTConfig)
	optionalJWT := middleware.JWTWithConfig(optionalJWTConfig())

	registerUserAPI(g, jwt, s.deps.UserSvc)
	registerCatalogAPI(g, jwt, optionalJWT, s.deps.UserSvc, s.deps.CatalogSvc, s.deps.ProgressSvc)
	registerProgressAPI(g, jwt, s.deps.UserSvc, s.deps.CatalogSvc, s.deps.ProgressSvc)
	registerAdminAPI(g, jwt, s.deps.UserSvc, s.deps.CatalogSvc, s.deps.ProgressSvc)
}

func (s *server) signalShutdown() {
	if s.shutdown != nil {
		s.shutdown <- syscall.SIGTERM
	}
}

func (s *server) Start() error {
	return s.app.Start(s.addr)
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+core.Conf.AppName+" API!")
}
