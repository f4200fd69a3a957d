package shipping_test

import (
	"context"
	"strings"
	"testing"

	"github.com/cartline/shipping/internal/order"
	"github.com/cartline/shipping/internal/shipping"
	"github.com/cartline/shipping/internal/telemetry"
	"github.com/cartline/shipping/pkg/carrier"
	"github.com/cartline/shipping/pkg/carrier/stallion"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var testWarehouse = shipping.Warehouse{
	Name:       "Cartline Fulfillment",
	Address1:   "100 Warehouse Rd",
	City:       "Toronto",
	Province:   "ON",
	PostalCode: "M5V 2T6",
	Country:    "CA",
}

func newTestService(t *testing.T, mock *stallion.MockAPIClient) (*shipping.Service, *order.MemoryStore) {
	t.Helper()
	logger := otelzap.New(zap.NewNop())
	metrics := telemetry.NewMetricsWith(prometheus.NewRegistry())
	client := stallion.NewWithAPIClient(mock, logger, nil)
	store := order.NewMemoryStore()
	svc := shipping.New(store, client, testWarehouse, shipping.Defaults{PostageType: "Canada Post Regular"}, logger, metrics)
	return svc, store
}

func seedOrder(store *order.MemoryStore, id string) {
	store.Put(order.Order{
		ID:      id,
		Invoice: "INV-" + id,
		Status:  "Processing",
		Total:   decimal.NewFromInt(250),
		Customer: order.Customer{
			Name:    "Jamie Ross",
			Email:   "jamie@example.test",
			Contact: "604-555-0101",
			Address: "456 Oak Ave",
			City:    "Vancouver",
			State:   "BC",
			ZipCode: "V6B 2W2",
			Country: "CA",
		},
		Cart: []order.CartItem{
			{Title: "Widget", Quantity: 2, Weight: 0.3},
			{Title: "Gadget", Quantity: 1, VariantWeight: 1.2},
		},
	})
}

func destination() carrier.Address {
	return carrier.Address{
		Name:       "Jamie Ross",
		Address1:   "456 Oak Ave",
		City:       "Vancouver",
		Province:   "BC",
		PostalCode: "V6B 2W2",
		Country:    "CA",
	}
}

// ============================================================================
// Quote
// ============================================================================

func TestQuote_RequiresDestinationAndParcels(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, _ := newTestService(t, mock)

	_, err := svc.Quote(context.Background(), &carrier.RateRequest{})

	require.Error(t, err)
	assert.True(t, carrier.IsKind(err, carrier.KindValidation))
	assert.Zero(t, mock.Calls())
}

func TestQuote_SingleParcelEnvelope(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	var captured *stallion.RateRequest
	mock.OnGetRates = func(ctx context.Context, req *stallion.RateRequest) (*stallion.RateResponse, error) {
		captured = req
		return &stallion.RateResponse{}, nil
	}
	svc, _ := newTestService(t, mock)

	_, err := svc.Quote(context.Background(), &carrier.RateRequest{
		Destination: destination(),
		Parcels: []carrier.Parcel{
			{Weight: 0.5, Length: 10, Width: 10, Height: 5, Quantity: 1},
		},
	})

	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, 0.5, captured.Weight)
	assert.Equal(t, 10.0, captured.Length)
	assert.Equal(t, 10.0, captured.Width)
	assert.Equal(t, 5.0, captured.Height)
}

func TestQuote_CombinesParcels(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	var captured *stallion.RateRequest
	mock.OnGetRates = func(ctx context.Context, req *stallion.RateRequest) (*stallion.RateResponse, error) {
		captured = req
		return &stallion.RateResponse{}, nil
	}
	svc, _ := newTestService(t, mock)

	_, err := svc.Quote(context.Background(), &carrier.RateRequest{
		Destination: destination(),
		Parcels: []carrier.Parcel{
			{Weight: 1.0, Length: 30, Width: 10, Height: 5, Quantity: 2},
			{Weight: 0.25, Length: 15, Width: 25, Height: 8, Quantity: 4},
		},
	})

	require.NoError(t, err)
	// Weight sums across quantities, dimensions take the pointwise max.
	assert.InDelta(t, 3.0, captured.Weight, 1e-9)
	assert.Equal(t, 30.0, captured.Length)
	assert.Equal(t, 25.0, captured.Width)
	assert.Equal(t, 8.0, captured.Height)
}

func TestQuote_FillsParcelDefaults(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	var captured *stallion.RateRequest
	mock.OnGetRates = func(ctx context.Context, req *stallion.RateRequest) (*stallion.RateResponse, error) {
		captured = req
		return &stallion.RateResponse{}, nil
	}
	svc, _ := newTestService(t, mock)

	_, err := svc.Quote(context.Background(), &carrier.RateRequest{
		Destination: destination(),
		Parcels:     []carrier.Parcel{{}}, // everything absent
	})

	require.NoError(t, err)
	assert.Equal(t, 0.5, captured.Weight)
	assert.Equal(t, 10.0, captured.Length)
	assert.Equal(t, 10.0, captured.Width)
	assert.Equal(t, 5.0, captured.Height)
}

func TestQuote_ProvinceFallsBackToStateThenDefault(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	var captured *stallion.RateRequest
	mock.OnGetRates = func(ctx context.Context, req *stallion.RateRequest) (*stallion.RateResponse, error) {
		captured = req
		return &stallion.RateResponse{}, nil
	}
	svc, _ := newTestService(t, mock)

	dest := destination()
	dest.Province = ""
	dest.State = "QC"
	_, err := svc.Quote(context.Background(), &carrier.RateRequest{
		Destination: dest,
		Parcels:     []carrier.Parcel{{Weight: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "QC", captured.ToAddress.ProvinceCode)

	dest.State = ""
	_, err = svc.Quote(context.Background(), &carrier.RateRequest{
		Destination: dest,
		Parcels:     []carrier.Parcel{{Weight: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ON", captured.ToAddress.ProvinceCode)
}

func TestQuote_UsesWarehouseOriginByDefault(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	var captured *stallion.RateRequest
	mock.OnGetRates = func(ctx context.Context, req *stallion.RateRequest) (*stallion.RateResponse, error) {
		captured = req
		return &stallion.RateResponse{}, nil
	}
	svc, _ := newTestService(t, mock)

	_, err := svc.Quote(context.Background(), &carrier.RateRequest{
		Destination: destination(),
		Parcels:     []carrier.Parcel{{Weight: 1}},
	})

	require.NoError(t, err)
	assert.Equal(t, "Toronto", captured.FromAddress.City)
	assert.Equal(t, "M5V2T6", captured.FromAddress.PostalCode)
}

// ============================================================================
// CreateShipment
// ============================================================================

func createInput(orderID string) shipping.CreateInput {
	return shipping.CreateInput{
		OrderID:     orderID,
		Service:     "Canada Post Xpresspost",
		Destination: destination(),
		Parcels:     []carrier.Parcel{{Weight: 1.5, Length: 20, Width: 15, Height: 10, Quantity: 1}},
	}
}

func TestCreateShipment_Success(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-1")

	rec, created, err := svc.CreateShipment(context.Background(), createInput("ord-1"))

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Stallion Express", rec.Provider)
	assert.Equal(t, "Canada Post Xpresspost", rec.Service)
	assert.NotEmpty(t, rec.ShipmentID)
	assert.NotEmpty(t, rec.TrackingID)
	assert.NotEmpty(t, rec.LabelURL)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.NotEmpty(t, rec.RawResponse)

	stored, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	require.True(t, stored.HasShipment())
	assert.Equal(t, rec.ShipmentID, stored.Shipment.ShipmentID)
}

func TestCreateShipment_Validation(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, _ := newTestService(t, mock)

	_, _, err := svc.CreateShipment(context.Background(), shipping.CreateInput{OrderID: "ord-1"})

	require.Error(t, err)
	assert.True(t, carrier.IsKind(err, carrier.KindValidation))
	assert.Zero(t, mock.Calls())
}

func TestCreateShipment_OrderNotFound(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, _ := newTestService(t, mock)

	_, _, err := svc.CreateShipment(context.Background(), createInput("missing"))

	require.Error(t, err)
	assert.True(t, carrier.IsKind(err, carrier.KindNotFound))
	assert.Zero(t, mock.Calls())
}

func TestCreateShipment_IdempotentOnRepeat(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-1")

	first, created, err := svc.CreateShipment(context.Background(), createInput("ord-1"))
	require.NoError(t, err)
	require.True(t, created)
	callsAfterFirst := mock.Calls()

	second, created, err := svc.CreateShipment(context.Background(), createInput("ord-1"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ShipmentID, second.ShipmentID)
	// The repeat must not reach the carrier: no second label is bought.
	assert.Equal(t, callsAfterFirst, mock.Calls())
}

func TestCreateShipment_ForceRetryBuysNewLabel(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-1")

	first, _, err := svc.CreateShipment(context.Background(), createInput("ord-1"))
	require.NoError(t, err)

	in := createInput("ord-1")
	in.ForceRetry = true
	second, created, err := svc.CreateShipment(context.Background(), in)

	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ShipmentID, second.ShipmentID)

	stored, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, second.ShipmentID, stored.Shipment.ShipmentID)
}

func TestCreateShipment_CarrierFailureLeavesOrderUntouched(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	mock.SimulateErrors = true
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-1")

	_, _, err := svc.CreateShipment(context.Background(), createInput("ord-1"))

	require.Error(t, err)
	assert.True(t, carrier.IsKind(err, carrier.KindRemote))

	stored, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.False(t, stored.HasShipment())

	// The claim must have been released: a retry can succeed.
	mock.SimulateErrors = false
	_, created, err := svc.CreateShipment(context.Background(), createInput("ord-1"))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestCreateShipment_TruncatesDestination(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	var captured *stallion.ShipmentRequest
	mock.OnCreateShipment = func(ctx context.Context, req *stallion.ShipmentRequest) (*stallion.ShipmentResponse, error) {
		captured = req
		return &stallion.ShipmentResponse{ID: "se-1"}, nil
	}
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-1")

	in := createInput("ord-1")
	in.Destination.Name = strings.Repeat("N", 60)
	in.Destination.Address1 = strings.Repeat("A", 80)
	in.Destination.City = strings.Repeat("C", 50)

	_, _, err := svc.CreateShipment(context.Background(), in)

	require.NoError(t, err)
	assert.Len(t, captured.ToAddress.Name, 40)
	assert.Len(t, captured.ToAddress.Address1, 50)
	assert.Len(t, captured.ToAddress.City, 35)
}

func TestCreateShipment_DefaultReference(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	var captured *stallion.ShipmentRequest
	mock.OnCreateShipment = func(ctx context.Context, req *stallion.ShipmentRequest) (*stallion.ShipmentResponse, error) {
		captured = req
		return &stallion.ShipmentResponse{ID: "se-1"}, nil
	}
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-1")

	_, _, err := svc.CreateShipment(context.Background(), createInput("ord-1"))

	require.NoError(t, err)
	assert.Equal(t, "Order-ord-1", captured.Reference)
	assert.Equal(t, "sender", captured.Payer)
}

// ============================================================================
// CreateFromOrder
// ============================================================================

func TestCreateFromOrder_DerivesFromStoredOrder(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	var captured *stallion.ShipmentRequest
	mock.OnCreateShipment = func(ctx context.Context, req *stallion.ShipmentRequest) (*stallion.ShipmentResponse, error) {
		captured = req
		return &stallion.ShipmentResponse{ID: "se-1", TrackingNumber: "700000000077"}, nil
	}
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-2")

	rec, ord, created, err := svc.CreateFromOrder(context.Background(), "ord-2", false)

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "se-1", rec.ShipmentID)
	assert.Equal(t, "ord-2", ord.ID)

	// Destination comes from the customer record, state as province.
	assert.Equal(t, "Jamie Ross", captured.ToAddress.Name)
	assert.Equal(t, "Vancouver", captured.ToAddress.City)
	assert.Equal(t, "BC", captured.ToAddress.ProvinceCode)
	assert.Equal(t, "V6B2W2", captured.ToAddress.PostalCode)

	// Cart weight: 2 × 0.3 + 1 × 1.2 (variant weight preferred).
	assert.InDelta(t, 1.8, captured.Weight, 1e-9)

	// Declared value from the order total.
	assert.Equal(t, 250.0, captured.Value)
	assert.Equal(t, "ORDER-INV-ord-2", captured.Reference)
	assert.Equal(t, "Canada Post Regular", captured.PostageType)
}

func TestCreateFromOrder_EmptyCartUsesDefaultWeight(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	var captured *stallion.ShipmentRequest
	mock.OnCreateShipment = func(ctx context.Context, req *stallion.ShipmentRequest) (*stallion.ShipmentResponse, error) {
		captured = req
		return &stallion.ShipmentResponse{ID: "se-1"}, nil
	}
	svc, store := newTestService(t, mock)
	store.Put(order.Order{ID: "ord-3", Customer: order.Customer{Name: "A", City: "Toronto"}})

	_, _, _, err := svc.CreateFromOrder(context.Background(), "ord-3", false)

	require.NoError(t, err)
	assert.Equal(t, 0.5, captured.Weight)
	assert.Equal(t, 100.0, captured.Value) // no order total either
}

func TestCreateFromOrder_IdempotentOnRepeat(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-2")

	first, _, created, err := svc.CreateFromOrder(context.Background(), "ord-2", false)
	require.NoError(t, err)
	require.True(t, created)
	callsAfterFirst := mock.Calls()

	second, _, created, err := svc.CreateFromOrder(context.Background(), "ord-2", false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ShipmentID, second.ShipmentID)
	assert.Equal(t, callsAfterFirst, mock.Calls())
}

// ============================================================================
// Cancel
// ============================================================================

func TestCancel_NoShipment(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-1")

	err := svc.Cancel(context.Background(), "ord-1")

	require.Error(t, err)
	assert.True(t, carrier.IsKind(err, carrier.KindNotFound))
	assert.Zero(t, mock.Calls())
}

func TestCancel_Success(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-1")

	_, _, err := svc.CreateShipment(context.Background(), createInput("ord-1"))
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), "ord-1")
	require.NoError(t, err)

	stored, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", stored.Shipment.Status)
	require.NotNil(t, stored.Shipment.CancelledAt)
}

func TestCancel_CarrierFailureLeavesRecordUncancelled(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-1")

	_, _, err := svc.CreateShipment(context.Background(), createInput("ord-1"))
	require.NoError(t, err)

	mock.SimulateErrors = true
	err = svc.Cancel(context.Background(), "ord-1")
	require.Error(t, err)

	stored, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.NotEqual(t, "cancelled", stored.Shipment.Status)
	assert.Nil(t, stored.Shipment.CancelledAt)
}

// ============================================================================
// Tracking
// ============================================================================

func TestRefreshTracking_LiveMergesAndPersists(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-1")

	_, _, err := svc.CreateShipment(context.Background(), createInput("ord-1"))
	require.NoError(t, err)

	mock.OnGetShipment = func(ctx context.Context, id string) (*stallion.ShipmentResponse, error) {
		return &stallion.ShipmentResponse{
			ID:     id,
			Status: "in_transit",
			Events: []stallion.WireEvent{
				{Timestamp: "2026-08-30T10:00:00Z", Status: "in_transit", Location: "Mississauga, ON"},
			},
		}, nil
	}

	view, err := svc.RefreshTracking(context.Background(), "ord-1")

	require.NoError(t, err)
	assert.Equal(t, "live", view.Source)
	assert.Equal(t, "in_transit", view.Status)
	// The carrier omitted the tracking number; the persisted one is kept.
	assert.NotEmpty(t, view.TrackingNumber)
	require.Len(t, view.Events, 1)

	stored, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "in_transit", stored.Shipment.Status)
}

func TestRefreshTracking_CarrierOutageServesCached(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-1")

	rec, _, err := svc.CreateShipment(context.Background(), createInput("ord-1"))
	require.NoError(t, err)

	mock.SimulateUnreachable = true
	view, err := svc.RefreshTracking(context.Background(), "ord-1")

	require.NoError(t, err)
	assert.Equal(t, "cached", view.Source)
	assert.Equal(t, rec.ShipmentID, view.ShipmentID)
	assert.Equal(t, rec.Status, view.Status)
	assert.NotNil(t, view.Events)
}

func TestRefreshTracking_NoShipment(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-1")

	_, err := svc.RefreshTracking(context.Background(), "ord-1")

	require.Error(t, err)
	assert.True(t, carrier.IsKind(err, carrier.KindNotFound))
}

func TestTrack_RequiresID(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, _ := newTestService(t, mock)

	_, err := svc.Track(context.Background(), "")

	require.Error(t, err)
	assert.True(t, carrier.IsKind(err, carrier.KindValidation))
	assert.Zero(t, mock.Calls())
}

// ============================================================================
// ApplyStatusUpdate
// ============================================================================

func TestApplyStatusUpdate_DeliveredProjectsOrderStatus(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-1")

	rec, _, err := svc.CreateShipment(context.Background(), createInput("ord-1"))
	require.NoError(t, err)

	err = svc.ApplyStatusUpdate(context.Background(), rec.TrackingID, "", "delivered")
	require.NoError(t, err)

	stored, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "delivered", stored.Shipment.Status)
	assert.Equal(t, order.StatusDelivered, stored.Status)
}

func TestApplyStatusUpdate_InTransitProjectsShipped(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-1")

	rec, _, err := svc.CreateShipment(context.Background(), createInput("ord-1"))
	require.NoError(t, err)

	err = svc.ApplyStatusUpdate(context.Background(), "", rec.ShipmentID, "in_transit")
	require.NoError(t, err)

	stored, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "in_transit", stored.Shipment.Status)
	assert.Equal(t, order.StatusShipped, stored.Status)
}

func TestApplyStatusUpdate_IntermediateStatusLeavesOrderStatus(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-1")

	rec, _, err := svc.CreateShipment(context.Background(), createInput("ord-1"))
	require.NoError(t, err)

	err = svc.ApplyStatusUpdate(context.Background(), rec.TrackingID, "", "label_printed")
	require.NoError(t, err)

	stored, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "label_printed", stored.Shipment.Status)
	assert.Equal(t, "Processing", stored.Status)
}

func TestApplyStatusUpdate_UnmatchedIsDropped(t *testing.T) {
	mock := stallion.NewMockAPIClient()
	svc, store := newTestService(t, mock)
	seedOrder(store, "ord-1")

	err := svc.ApplyStatusUpdate(context.Background(), "unknown-tracking", "unknown-shipment", "delivered")
	require.NoError(t, err)

	stored, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "Processing", stored.Status)
	assert.False(t, stored.HasShipment())
}
