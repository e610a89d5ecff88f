package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/config"
	"github.com/snarg/audiocast/internal/metrics"
	"github.com/snarg/audiocast/internal/storage"
	"github.com/snarg/audiocast/internal/voice"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

type ServerOptions struct {
	Config    *config.Config
	Runs      RunController
	Events    EventSource
	Records   RecordReader
	Accounts  AccountReader
	Assets    storage.AssetStore
	Voices    voice.PolicyTable
	Health    *HealthHandler
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger(opts.Log))
	r.Use(Recoverer)
	r.Use(CORSWithOrigins(splitOrigins(cfg.CORSOrigins)))
	r.Use(metrics.InstrumentHandler)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/v1/health", opts.Health.ServeHTTP)

	// Only the local store serves files itself; providers fetch uploads here.
	if local, ok := opts.Assets.(*storage.LocalStore); ok {
		r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(local.Dir()))))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Auth(cfg.JWTSecret))

		NewUploadHandler(opts.Assets, cfg.MaxUploadMB, opts.Log).Routes(r)
		NewRunsHandler(opts.Runs, opts.Assets, opts.Voices, cfg.TTSProvider, opts.Log).Routes(r)
		NewRecordsHandler(opts.Records, opts.Assets, opts.Log).Routes(r)
		NewAccountHandler(opts.Accounts).Routes(r)
		r.Get("/runs/{id}/events", NewEventsHandler(opts.Events, opts.Runs).StreamRunEvents)
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log,
	}
}

func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
