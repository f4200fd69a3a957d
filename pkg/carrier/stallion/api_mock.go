package stallion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cartline/shipping/pkg/carrier"
	"github.com/google/uuid"
)

// MockAPIClient is a mock implementation of APIClient for testing.
// It counts outbound calls so tests can assert the idempotency guard
// really suppressed a carrier call.
type MockAPIClient struct {
	SimulateErrors      bool
	SimulateUnreachable bool

	OnGetRates        func(ctx context.Context, req *RateRequest) (*RateResponse, error)
	OnCreateShipment  func(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error)
	OnGetShipment     func(ctx context.Context, id string) (*ShipmentResponse, error)
	OnCancelShipment  func(ctx context.Context, id string) error
	OnGetPostageTypes func(ctx context.Context) (*PostageTypesResponse, error)

	calls atomic.Int64
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// Calls returns the number of outbound API calls issued.
func (m *MockAPIClient) Calls() int {
	return int(m.calls.Load())
}

func (m *MockAPIClient) simulated() error {
	if m.SimulateUnreachable {
		return carrier.NewError(carrier.KindUnreachable, "no response from carrier")
	}
	if m.SimulateErrors {
		return carrier.NewError(carrier.KindRemote, "simulated carrier error").WithStatus(500)
	}
	return nil
}

// GetRates returns mock shipping rates.
func (m *MockAPIClient) GetRates(ctx context.Context, req *RateRequest) (*RateResponse, error) {
	m.calls.Add(1)
	if err := m.simulated(); err != nil {
		return nil, err
	}
	if m.OnGetRates != nil {
		return m.OnGetRates(ctx, req)
	}

	return &RateResponse{
		Rates: []WireRate{
			{PostageType: "Canada Post Regular", ServiceCode: "regular", Total: 12.45, Currency: "CAD", DeliveryDays: 5},
			{PostageType: "Canada Post Expedited", ServiceCode: "expedited", Total: 15.80, Currency: "CAD", DeliveryDays: 3},
			{PostageType: "Canada Post Xpresspost", ServiceCode: "xpresspost", Total: 24.10, Currency: "CAD", DeliveryDays: 1},
		},
	}, nil
}

// CreateShipment creates a mock shipment.
func (m *MockAPIClient) CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error) {
	m.calls.Add(1)
	if err := m.simulated(); err != nil {
		return nil, err
	}
	if m.OnCreateShipment != nil {
		return m.OnCreateShipment(ctx, req)
	}

	id := "se-ship-" + uuid.New().String()[:8]
	tracking := fmt.Sprintf("%d", 700000000000+time.Now().UnixNano()%200000000000)

	resp := &ShipmentResponse{
		ID:             id,
		TrackingNumber: tracking,
		TrackingURL:    "https://track.example.test/" + tracking,
		LabelURL:       "https://labels.example.test/" + id + ".pdf",
		Status:         "created",
		Total:          14.25,
		Currency:       "CAD",
	}
	resp.Raw, _ = json.Marshal(resp)
	return resp, nil
}

// GetShipment retrieves a mock shipment.
func (m *MockAPIClient) GetShipment(ctx context.Context, id string) (*ShipmentResponse, error) {
	m.calls.Add(1)
	if err := m.simulated(); err != nil {
		return nil, err
	}
	if m.OnGetShipment != nil {
		return m.OnGetShipment(ctx, id)
	}

	resp := &ShipmentResponse{
		ID:             id,
		TrackingNumber: "700000000001",
		TrackingURL:    "https://track.example.test/700000000001",
		Status:         "in_transit",
		Events: []WireEvent{
			{Timestamp: time.Now().UTC().Format(time.RFC3339), Status: "in_transit", Description: "Item in transit", Location: "Toronto, ON"},
		},
	}
	resp.Raw, _ = json.Marshal(resp)
	return resp, nil
}

// CancelShipment cancels a mock shipment.
func (m *MockAPIClient) CancelShipment(ctx context.Context, id string) error {
	m.calls.Add(1)
	if err := m.simulated(); err != nil {
		return err
	}
	if m.OnCancelShipment != nil {
		return m.OnCancelShipment(ctx, id)
	}
	return nil
}

// GetPostageTypes returns mock postage types.
func (m *MockAPIClient) GetPostageTypes(ctx context.Context) (*PostageTypesResponse, error) {
	m.calls.Add(1)
	if err := m.simulated(); err != nil {
		return nil, err
	}
	if m.OnGetPostageTypes != nil {
		return m.OnGetPostageTypes(ctx)
	}

	return &PostageTypesResponse{
		PostageTypes: json.RawMessage(`[{"code":"regular","name":"Canada Post Regular"},{"code":"xpresspost","name":"Canada Post Xpresspost"}]`),
	}, nil
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
