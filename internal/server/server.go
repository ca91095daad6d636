// Package server exposes the file service over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/filegate/internal/archive"
	"github.com/koustreak/filegate/internal/config"
	"github.com/koustreak/filegate/internal/convert"
	"github.com/koustreak/filegate/internal/filestore"
	"github.com/koustreak/filegate/internal/logger"
	"github.com/koustreak/filegate/internal/metrics"
	"github.com/koustreak/filegate/internal/paging"
	"github.com/koustreak/filegate/internal/upload"
)

// Server holds the request handlers and their collaborators.
type Server struct {
	cfg      *config.Config
	store    filestore.Store
	bucket   string
	pages    *paging.Paginator
	exporter *archive.Exporter
	pipeline *convert.Pipeline
	uploader *upload.Uploader
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// New builds a Server on top of store. cfg must be finalized and the
// scratch directory must exist.
func New(cfg *config.Config, store filestore.Store, m *metrics.Metrics, log *logger.Logger) *Server {
	if m == nil {
		m = metrics.New()
	}
	if log == nil {
		log = logger.Global()
	}

	bucket := cfg.Store.Bucket
	pages := paging.New(store, cfg.Store.BatchSize)
	registry := convert.DefaultRegistry(convert.NewSoffice(cfg.Convert.SofficePath))

	return &Server{
		cfg:      cfg,
		store:    store,
		bucket:   bucket,
		pages:    pages,
		exporter: archive.New(store, pages, archive.WithObserver(m.Exports)),
		pipeline: convert.NewPipeline(store, bucket, registry, cfg.Convert.ScratchDir,
			convert.WithTimeout(cfg.Convert.Timeout),
			convert.WithObserver(m.Conversion),
		),
		uploader: upload.New(store, bucket, cfg.Upload),
		metrics:  m,
		log:      log,
	}
}

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(corsHandler(s.cfg.CORS))
	r.Use(s.metrics.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Post("/upload", s.handleUpload)
	r.Get("/files", s.handleListFiles)
	r.Get("/download/{fileName}", s.handleDownload)
	r.Get("/file/{key}", s.handleFile)
	r.Get("/download-all", s.handleDownloadAll)

	return r
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")

		sctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		shutdownErr <- srv.Shutdown(sctx)
	}()

	s.log.With().Str("addr", srv.Addr).Str("bucket", s.bucket).Logger().Info("starting server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-shutdownErr; err != nil {
		return err
	}

	s.log.Info("server stopped")
	return nil
}
