package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cartline/shipping/internal/shipping"
	"github.com/cartline/shipping/internal/webhook"
	"github.com/cartline/shipping/pkg/carrier"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server is the HTTP server for the shipping service.
type Server struct {
	port     int
	service  *shipping.Service
	ingestor *webhook.Ingestor
	provider *carrier.Provider
	logger   *otelzap.Logger
}

// Config holds server configuration.
type Config struct {
	Port int
}

// New creates a new server instance.
func New(cfg Config, service *shipping.Service, ingestor *webhook.Ingestor, provider *carrier.Provider, logger *otelzap.Logger) *Server {
	return &Server{
		port:     cfg.Port,
		service:  service,
		ingestor: ingestor,
		provider: provider,
		logger:   logger,
	}
}

// Handler builds the HTTP routing tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/shipping", func(r chi.Router) {
		r.Get("/postage-types", s.handlePostageTypes)
		r.Post("/rates", s.handleRates)
		r.Post("/create", s.handleCreate)
		r.Post("/orders/{orderID}/shipment", s.handleCreateFromOrder)
		r.Get("/orders/{orderID}/tracking", s.handleOrderTracking)
		r.Get("/track/{trackingID}", s.handleTrack)
		r.Delete("/cancel/{orderID}", s.handleCancel)
		r.Post("/webhook", s.handleWebhook)
		r.Get("/debug", s.handleDebug)
	})

	return r
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
