package main

import (
	"context"

	"github.com/cartline/shipping/internal/config"
	"github.com/cartline/shipping/internal/order"
	"github.com/cartline/shipping/internal/settings"
	"github.com/cartline/shipping/internal/shipping"
	"github.com/cartline/shipping/internal/telemetry"
	"github.com/cartline/shipping/internal/webhook"
	"github.com/cartline/shipping/pkg/carrier"
	"github.com/cartline/shipping/pkg/carrier/stallion"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return func(context.Context) error { return nil }, nil
	}

	_, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
	return shutdown, err
}

// dependencies holds the wired object graph behind the HTTP server.
type dependencies struct {
	Service  *shipping.Service
	Ingestor *webhook.Ingestor
	Provider *carrier.Provider

	pool *pgxpool.Pool
}

// Close releases held resources.
func (d *dependencies) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}

// initDependencies wires the stores (Postgres when DATABASE_URL is set,
// in-memory otherwise), the config provider, the carrier client, the
// orchestrator, and the webhook ingestor.
func initDependencies(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) (*dependencies, error) {
	var (
		pool          *pgxpool.Pool
		orderStore    order.Store
		settingsStore settings.Store
		deadLetters   webhook.DeadLetterStore
	)

	if cfg.DatabaseURL != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		orderStore = order.NewPostgresStore(pool)
		settingsStore = settings.NewPostgresStore(pool)
		deadLetters = webhook.NewPostgresDeadLetters(pool)
	} else {
		orderStore = order.NewMemoryStore()
		settingsStore = settings.NewMemoryStore()
		deadLetters = webhook.NewMemoryDeadLetters()
	}

	provider := carrier.NewProvider(settingsStore, carrier.StaticConfig{
		BaseURL: cfg.StallionStaticURL(),
		APIKey:  cfg.StallionStaticKey(),
	}, !cfg.Production, cfg.StallionConfigTTL, logger)

	var tracer trace.Tracer
	client := stallion.New(provider, logger, tracer)

	metrics := telemetry.NewMetrics()

	service := shipping.New(orderStore, client,
		shipping.Warehouse{
			Name:       cfg.WarehouseName,
			Address1:   cfg.WarehouseAddress1,
			City:       cfg.WarehouseCity,
			Province:   cfg.WarehouseProvince,
			PostalCode: cfg.WarehousePostalCode,
			Country:    cfg.WarehouseCountry,
			Phone:      cfg.WarehousePhone,
			Email:      cfg.WarehouseEmail,
		},
		shipping.Defaults{
			Weight:      cfg.DefaultWeight,
			Length:      cfg.DefaultLength,
			Width:       cfg.DefaultWidth,
			Height:      cfg.DefaultHeight,
			PostageType: cfg.DefaultPostageType,
		},
		logger, metrics)

	ingestor := webhook.NewIngestor(
		webhook.NewVerifier(cfg.WebhookSecret),
		service, deadLetters, logger, metrics)

	return &dependencies{
		Service:  service,
		Ingestor: ingestor,
		Provider: provider,
		pool:     pool,
	}, nil
}
