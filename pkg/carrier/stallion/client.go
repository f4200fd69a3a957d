// Package stallion provides integration with the Stallion Express shipping API.
package stallion

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cartline/shipping/pkg/carrier"
	"github.com/shopspring/decimal"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const carrierName = "stallion"

// ProviderName is the human-readable carrier name persisted on shipment
// records.
const ProviderName = "Stallion Express"

// Client is the Stallion Express carrier client. It converts normalized
// requests to the carrier's wire schema, delegates to the underlying
// APIClient (mock or HTTP), and normalizes responses exactly once.
type Client struct {
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new Stallion client backed by the real HTTP API, resolving
// its configuration through the given provider on every request.
func New(provider *carrier.Provider, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return &Client{
		apiClient: NewHTTPAPIClient(HTTPAPIClientConfig{Provider: provider}),
		logger:    logger,
		tracer:    tracer,
	}
}

// NewWithAPIClient creates a new Stallion client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return &Client{
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return carrierName
}

// GetRates returns shipping rates for a combined package envelope.
func (c *Client) GetRates(ctx context.Context, spec *carrier.QuoteSpec) ([]carrier.Rate, error) {
	c.logger.Info("Getting Stallion rates",
		zap.String("destination_city", spec.Destination.City),
		zap.String("destination_country", spec.Destination.Country),
		zap.Float64("weight", spec.Weight),
	)

	apiReq := &RateRequest{
		FromAddress:     addressToWire(spec.Origin),
		ToAddress:       addressToWire(spec.Destination),
		Weight:          spec.Weight,
		WeightUnit:      "kg",
		Length:          spec.Length,
		Width:           spec.Width,
		Height:          spec.Height,
		SizeUnit:        "cm",
		PackageContents: "merchandise",
		Value:           spec.Value,
		Currency:        spec.Currency,
		ServiceCode:     spec.ServiceCode,
	}

	apiResp, err := c.apiClient.GetRates(ctx, apiReq)
	if err != nil {
		c.logger.Error("Stallion rates call failed", zap.Error(err))
		return nil, err
	}

	rates := make([]carrier.Rate, len(apiResp.Rates))
	for i, r := range apiResp.Rates {
		rates[i] = carrier.Rate{
			PostageType:  r.PostageType,
			ServiceCode:  r.ServiceCode,
			Total:        decimal.NewFromFloat(r.Total),
			Currency:     defaultString(r.Currency, "CAD"),
			DeliveryDays: r.DeliveryDays,
		}
	}
	return rates, nil
}

// CreateShipment creates a shipment and purchases a label.
func (c *Client) CreateShipment(ctx context.Context, spec *carrier.ShipmentSpec) (*carrier.ShipmentInfo, error) {
	c.logger.Info("Creating Stallion shipment",
		zap.String("order_ref", spec.OrderRef),
		zap.String("postage_type", spec.PostageType),
	)

	apiReq := &ShipmentRequest{
		ToAddress:       addressToWire(spec.To),
		OrderID:         spec.OrderRef,
		Weight:          spec.Weight,
		WeightUnit:      "kg",
		Length:          spec.Length,
		Width:           spec.Width,
		Height:          spec.Height,
		SizeUnit:        "cm",
		PackageContents: "merchandise",
		Value:           spec.Value,
		Currency:        defaultString(spec.Currency, "CAD"),
		PackageType:     defaultString(spec.PackageType, "Parcel"),
		PostageType:     spec.PostageType,
		LabelFormat:     defaultString(spec.LabelFormat, "pdf"),
		Reference:       spec.Reference,
		Payer:           spec.Payer,
	}
	if spec.From != nil {
		from := addressToWire(*spec.From)
		apiReq.FromAddress = &from
	}

	apiResp, err := c.apiClient.CreateShipment(ctx, apiReq)
	if err != nil {
		c.logger.Error("Stallion shipment creation failed", zap.Error(err))
		return nil, err
	}

	return shipmentToInfo(apiResp), nil
}

// Track retrieves the current shipment state by tracking number or
// shipment id.
func (c *Client) Track(ctx context.Context, id string) (*carrier.TrackingInfo, error) {
	apiResp, err := c.apiClient.GetShipment(ctx, id)
	if err != nil {
		return nil, err
	}

	info := &carrier.TrackingInfo{
		TrackingNumber: trackingNumber(apiResp),
		TrackingURL:    trackingURL(apiResp),
		Status:         apiResp.Status,
		Raw:            apiResp.Raw,
	}
	for _, ev := range apiResp.Events {
		ts, _ := time.Parse(time.RFC3339, ev.Timestamp)
		info.Events = append(info.Events, carrier.TrackingEvent{
			Timestamp:   ts,
			Status:      ev.Status,
			Description: ev.Description,
			Location:    ev.Location,
		})
	}
	return info, nil
}

// Cancel voids a shipment with the carrier.
func (c *Client) Cancel(ctx context.Context, shipmentID string) error {
	c.logger.Info("Cancelling Stallion shipment", zap.String("shipment_id", shipmentID))

	if err := c.apiClient.CancelShipment(ctx, shipmentID); err != nil {
		c.logger.Error("Stallion cancellation failed", zap.Error(err))
		return err
	}
	return nil
}

// PostageTypes lists the carrier's available postage types.
func (c *Client) PostageTypes(ctx context.Context) (json.RawMessage, error) {
	apiResp, err := c.apiClient.GetPostageTypes(ctx)
	if err != nil {
		return nil, err
	}
	return apiResp.PostageTypes, nil
}

// ============================================================================
// Conversion helpers: normalized models <-> wire schema
// ============================================================================

func addressToWire(addr carrier.Address) WireAddress {
	return WireAddress{
		Name:         addr.Name,
		Company:      addr.Company,
		Address1:     addr.Address1,
		Address2:     addr.Address2,
		City:         addr.City,
		ProvinceCode: addr.Province,
		PostalCode:   stripSpaces(addr.PostalCode),
		CountryCode:  addr.Country,
		Phone:        addr.Phone,
		Email:        addr.Email,
	}
}

// shipmentToInfo is the single normalization point for the carrier's
// shipment payload. The wire schema's alternate field spellings are
// resolved here and nowhere else.
func shipmentToInfo(resp *ShipmentResponse) *carrier.ShipmentInfo {
	info := &carrier.ShipmentInfo{
		ShipmentID:     defaultString(resp.ID, resp.ShipmentID),
		TrackingNumber: trackingNumber(resp),
		TrackingURL:    trackingURL(resp),
		LabelURL:       resp.LabelURL,
		Status:         defaultString(resp.Status, "created"),
		Currency:       defaultString(resp.Currency, "CAD"),
		Raw:            resp.Raw,
	}

	switch {
	case resp.Total != 0:
		info.Cost = decimal.NewFromFloat(resp.Total)
	case resp.Cost != 0:
		info.Cost = decimal.NewFromFloat(resp.Cost)
	}

	if info.LabelURL == "" && len(resp.Labels) > 0 {
		info.LabelURL = resp.Labels[0].URL
	}
	return info
}

func trackingNumber(resp *ShipmentResponse) string {
	if resp.TrackingNumber != "" {
		return resp.TrackingNumber
	}
	if resp.Tracking != nil {
		return resp.Tracking.Number
	}
	return ""
}

func trackingURL(resp *ShipmentResponse) string {
	if resp.TrackingURL != "" {
		return resp.TrackingURL
	}
	if resp.Tracking != nil {
		return resp.Tracking.URL
	}
	return ""
}

func defaultString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func stripSpaces(s string) string {
	result := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' {
			result = append(result, s[i])
		}
	}
	return string(result)
}
