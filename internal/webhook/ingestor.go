// Package webhook ingests asynchronous carrier status notifications.
package webhook

import (
	"context"
	"encoding/json"

	"github.com/cartline/shipping/internal/telemetry"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Lifecycle events recognized by the ingestor. Anything else is accepted
// and ignored so the carrier never retries an event we don't handle.
const (
	EventCreated   = "shipment.created"
	EventUpdated   = "shipment.updated"
	EventInTransit = "shipment.in_transit"
	EventDelivered = "shipment.delivered"
	EventFailed    = "shipment.failed"
)

// Payload is the carrier's webhook event data.
type Payload struct {
	ID             string `json:"id"`
	ShipmentID     string `json:"shipment_id"`
	TrackingNumber string `json:"tracking_number"`
	Status         string `json:"status"`
}

// StatusApplier applies a carrier status push to the matching order.
// Implemented by the shipment orchestrator.
type StatusApplier interface {
	ApplyStatusUpdate(ctx context.Context, trackingNumber, shipmentID, status string) error
}

// Result classifies the outcome of one ingestion.
type Result int

const (
	// ResultRejected means the signature check failed; the only outcome
	// that is not acknowledged to the carrier.
	ResultRejected Result = iota
	// ResultApplied means a matching order was updated.
	ResultApplied
	// ResultIgnored means the event is unrecognized or matched no order.
	ResultIgnored
	// ResultFailed means a recognized event could not be applied; it was
	// recorded to the dead-letter store and still acknowledged.
	ResultFailed
)

// Ingestor validates and applies carrier webhooks.
type Ingestor struct {
	verifier   *Verifier
	applier    StatusApplier
	deadLetter DeadLetterStore
	logger     *otelzap.Logger
	metrics    *telemetry.Metrics
}

// NewIngestor creates a webhook ingestor. deadLetter may be nil; failed
// applications are then only logged.
func NewIngestor(verifier *Verifier, applier StatusApplier, deadLetter DeadLetterStore, logger *otelzap.Logger, metrics *telemetry.Metrics) *Ingestor {
	return &Ingestor{
		verifier:   verifier,
		applier:    applier,
		deadLetter: deadLetter,
		logger:     logger,
		metrics:    metrics,
	}
}

// Ingest verifies the signature and applies the event. It never returns an
// error to the HTTP boundary: everything after signature verification is
// acknowledged with success so the carrier does not retry, and failures
// are preserved in the dead-letter store instead.
func (i *Ingestor) Ingest(ctx context.Context, signature string, rawBody []byte, event string, data Payload) Result {
	if !i.verifier.Verify(rawBody, signature) {
		i.logger.Warn("Rejected webhook with invalid signature", zap.String("event", event))
		i.metrics.RecordWebhook(event, "rejected")
		return ResultRejected
	}

	switch event {
	case EventCreated, EventUpdated, EventInTransit, EventDelivered, EventFailed:
	default:
		i.logger.Info("Ignoring unhandled webhook event", zap.String("event", event))
		i.metrics.RecordWebhook(event, "ignored")
		return ResultIgnored
	}

	shipmentID := data.ID
	if shipmentID == "" {
		shipmentID = data.ShipmentID
	}

	err := i.applier.ApplyStatusUpdate(ctx, data.TrackingNumber, shipmentID, data.Status)
	if err != nil {
		i.logger.Error("Failed to apply webhook status update",
			zap.String("event", event),
			zap.String("tracking_number", data.TrackingNumber),
			zap.Error(err),
		)
		i.metrics.RecordWebhook(event, "failed")
		i.record(ctx, event, rawBody, err)
		return ResultFailed
	}

	i.metrics.RecordWebhook(event, "applied")
	return ResultApplied
}

func (i *Ingestor) record(ctx context.Context, event string, rawBody []byte, cause error) {
	if i.deadLetter == nil {
		return
	}
	if err := i.deadLetter.Record(ctx, event, json.RawMessage(rawBody), cause.Error()); err != nil {
		i.logger.Error("Failed to record webhook dead letter", zap.Error(err))
	}
}
