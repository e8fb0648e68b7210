package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"tush00nka/teledrive/internal/handler"
	"tush00nka/teledrive/internal/pkg/metrics"
)

type ServerOptions struct {
	Sessions       *handler.SessionMiddleware
	Auth           *handler.AuthHandler
	Media          *handler.MediaHandler
	Notices        *handler.NoticeHandler
	AllowedOrigins []string
	AccessLog      io.Writer
	Log            *zap.SugaredLogger
}

type Server struct {
	router  *mux.Router
	handler http.Handler
	log     *zap.SugaredLogger
}

func NewServer(opts ServerOptions) *Server {
	router := mux.NewRouter()
	router.Use(instrument)

	router.HandleFunc("/ping", handler.Ping).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Routes
	api := router.PathPrefix("/api").Subrouter()
	if opts.Sessions != nil {
		api.Use(opts.Sessions.Handler)
	}
	if opts.Auth != nil {
		opts.Auth.RegisterRoutes(api)
	}
	if opts.Media != nil {
		opts.Media.RegisterRoutes(api)
	}
	if opts.Notices != nil {
		opts.Notices.RegisterRoutes(api)
	}

	// Настройка Swagger: doc.json отдаётся из зарегистрированной спецификации
	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"), // Важно: относительный путь
	))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Requested-With"}),
	}
	if !(len(origins) == 1 && origins[0] == "*") {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}

	var h http.Handler = handlers.CORS(corsOptions...)(router)
	if opts.AccessLog != nil {
		h = handlers.CombinedLoggingHandler(opts.AccessLog, h)
	}

	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{router: router, handler: h, log: log}
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port string) error {
	srv := &http.Server{
		Handler:           s.handler,
		Addr:              ":" + port,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout не задаём: загрузки и websocket бывают долгими
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("server starting", "port", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("server stopped")
	return nil
}

// instrument records request latency per route template.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unknown"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		m := httpsnoop.CaptureMetrics(next, w, r)
		metrics.HTTPRequestDuration.
			WithLabelValues(route, r.Method, strconv.Itoa(m.Code)).
			Observe(m.Duration.Seconds())
	})
}
