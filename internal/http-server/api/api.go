package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"

	"mailgate/internal/config"
	"mailgate/internal/http-server/handlers/checkuser"
	"mailgate/internal/http-server/handlers/errors"
	"mailgate/internal/http-server/handlers/health"
	"mailgate/internal/http-server/handlers/register"
	"mailgate/internal/http-server/handlers/tokens"
	"mailgate/internal/http-server/middleware/preflight"
	"mailgate/internal/http-server/middleware/timeout"
	"mailgate/lib/sl"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	tokens.Core
	checkuser.Core
	register.Core
}

// Router assembles the HTTP surface. Split out of New so tests can drive it
// through httptest without binding a socket.
func Router(conf *config.Config, log *slog.Logger, handler Handler) chi.Router {
	router := chi.NewRouter()
	router.Use(timeout.Timeout(5))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
		// preflights fall through to the next middleware so they answer
		// 204 instead of the library's default 200
		OptionsPassthrough: true,
	}))
	router.Use(preflight.Terminate)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	router.Get("/health", health.Check())

	router.Route("/api", func(rootApi chi.Router) {
		if rpm := conf.RateLimit.RequestsPerMinute; rpm > 0 {
			rootApi.Use(httprate.LimitByIP(rpm, time.Minute))
		}
		rootApi.Post("/create-token", tokens.Create(log, handler))
		rootApi.Post("/check_user", checkuser.Check(log, handler))
		rootApi.Post("/register", register.New(log, handler))
	})

	return router
}

func New(conf *config.Config, log *slog.Logger, handler Handler) error {
	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	router := Router(conf, log, handler)

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:      router,
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIp, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	return server.httpServer.Serve(listener)
}
