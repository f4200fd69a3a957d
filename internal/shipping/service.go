// Package shipping orchestrates shipment creation, cancellation, and
// tracking reconciliation between the order store and the carrier.
package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cartline/shipping/internal/order"
	"github.com/cartline/shipping/internal/telemetry"
	"github.com/cartline/shipping/pkg/carrier"
	"github.com/cartline/shipping/pkg/carrier/stallion"
	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Warehouse is the static origin address used when a request supplies none.
type Warehouse struct {
	Name       string
	Address1   string
	City       string
	Province   string
	PostalCode string
	Country    string
	Phone      string
	Email      string
}

// Defaults fill absent parcel fields and shipment payload constants.
type Defaults struct {
	Weight      float64 // kg, per cart item with no weight
	Length      float64 // cm
	Width       float64
	Height      float64
	PostageType string // used on the create-from-order path
}

// Carrier address field length limits, per the carrier's API documentation.
const (
	maxNameLen     = 40
	maxAddressLen  = 50
	maxCityLen     = 35
	maxProvinceLen = 2
	maxPostalLen   = 10
	maxCountryLen  = 2
)

// TrackingView is the tracking state returned to callers. Source is "live"
// when the carrier answered, "cached" when the last persisted record was
// served instead.
type TrackingView struct {
	ShipmentID     string                  `json:"shipmentId"`
	TrackingNumber string                  `json:"trackingNumber"`
	TrackingURL    string                  `json:"trackingUrl,omitempty"`
	Status         string                  `json:"status"`
	Provider       string                  `json:"provider"`
	LastUpdated    time.Time               `json:"lastUpdated"`
	Events         []carrier.TrackingEvent `json:"events"`
	Source         string                  `json:"-"`
}

// CreateInput is the explicit shipment-creation request body.
type CreateInput struct {
	OrderID     string           `json:"orderId"`
	Service     string           `json:"service"`
	Origin      *carrier.Address `json:"origin,omitempty"`
	Destination carrier.Address  `json:"destination"`
	Parcels     []carrier.Parcel `json:"parcels"`
	Reference   string           `json:"reference,omitempty"`
	ForceRetry  bool             `json:"forceRetry,omitempty"`
}

// Service is the shipment orchestrator.
type Service struct {
	orders    order.Store
	client    *stallion.Client
	warehouse Warehouse
	defaults  Defaults
	logger    *otelzap.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// New creates the orchestrator.
func New(orders order.Store, client *stallion.Client, warehouse Warehouse, defaults Defaults, logger *otelzap.Logger, metrics *telemetry.Metrics) *Service {
	if defaults.Weight == 0 {
		defaults.Weight = 0.5
	}
	if defaults.Length == 0 {
		defaults.Length = 10
	}
	if defaults.Width == 0 {
		defaults.Width = 10
	}
	if defaults.Height == 0 {
		defaults.Height = 5
	}
	return &Service{
		orders:    orders,
		client:    client,
		warehouse: warehouse,
		defaults:  defaults,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// WithClock overrides the service's time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Quote computes the combined package envelope for the given parcels and
// returns the carrier's rate options.
func (s *Service) Quote(ctx context.Context, req *carrier.RateRequest) ([]carrier.Rate, error) {
	defer s.observe("quote", s.now())

	if isEmptyAddress(req.Destination) || len(req.Parcels) == 0 {
		return nil, carrier.NewError(carrier.KindValidation,
			"destination address and parcels are required")
	}

	origin := s.warehouseAddress()
	if req.Origin != nil {
		origin = *req.Origin
	}

	weight, length, width, height := s.envelope(req.Parcels)

	spec := &carrier.QuoteSpec{
		Origin:      origin,
		Destination: s.normalizeDestination(req.Destination),
		Weight:      weight,
		Length:      length,
		Width:       width,
		Height:      height,
		Value:       100,
		Currency:    "CAD",
		ServiceCode: req.ServiceCode,
	}

	rates, err := s.client.GetRates(ctx, spec)
	if err != nil {
		return nil, s.carrierErr(err)
	}
	return rates, nil
}

// CreateShipment creates a shipment from an explicit request body.
// Idempotent on the order's shipment identity: when a shipment already
// exists and ForceRetry is false, the existing record is returned with
// created=false and no carrier call is made.
func (s *Service) CreateShipment(ctx context.Context, in CreateInput) (*order.ShipmentRecord, bool, error) {
	defer s.observe("create_shipment", s.now())

	if in.OrderID == "" || in.Service == "" || isEmptyAddress(in.Destination) || len(in.Parcels) == 0 {
		return nil, false, carrier.NewError(carrier.KindValidation,
			"order ID, service, destination, and parcels are required")
	}

	ord, err := s.orders.Get(ctx, in.OrderID)
	if err != nil {
		return nil, false, s.orderErr(err)
	}

	weight, length, width, height := s.envelope(in.Parcels)
	value, _ := ord.Total.Float64()
	if value == 0 {
		value = 100
	}

	reference := in.Reference
	if reference == "" {
		reference = fmt.Sprintf("Order-%s", in.OrderID)
	}

	origin := s.warehouseAddress()
	if in.Origin != nil {
		origin = *in.Origin
	}

	spec := &carrier.ShipmentSpec{
		To:          s.truncateAddress(s.normalizeDestination(in.Destination)),
		From:        &origin,
		OrderRef:    reference,
		Weight:      weight,
		Length:      length,
		Width:       width,
		Height:      height,
		Value:       value,
		Currency:    "CAD",
		PostageType: in.Service,
		Reference:   reference,
		Payer:       "sender",
	}

	rec, created, err := s.createAgainstCarrier(ctx, ord, in.Service, spec, in.ForceRetry)
	return rec, created, err
}

// CreateFromOrder creates a shipment derived entirely from the stored
// order: destination from the customer record, weight from the cart.
func (s *Service) CreateFromOrder(ctx context.Context, orderID string, force bool) (*order.ShipmentRecord, *order.Order, bool, error) {
	defer s.observe("create_from_order", s.now())

	ord, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, nil, false, s.orderErr(err)
	}

	value, _ := ord.Total.Float64()
	if value == 0 {
		value, _ = ord.SubTotal.Float64()
	}
	if value == 0 {
		value = 100
	}

	reference := fmt.Sprintf("ORDER-%s", firstNonEmpty(ord.Invoice, ord.ID))

	spec := &carrier.ShipmentSpec{
		To:          s.destinationFromOrder(ord),
		From:        ptr(s.truncateAddress(s.warehouseAddress())),
		OrderRef:    reference,
		Weight:      s.cartWeight(ord.Cart),
		Length:      s.defaults.Length,
		Width:       s.defaults.Width,
		Height:      s.defaults.Height,
		Value:       value,
		Currency:    "CAD",
		PostageType: s.defaults.PostageType,
		Reference:   reference,
		Payer:       "sender",
	}

	rec, created, err := s.createAgainstCarrier(ctx, ord, s.defaults.PostageType, spec, force)
	if err != nil {
		return nil, nil, false, err
	}
	return rec, ord, created, nil
}

// createAgainstCarrier runs the claim-call-persist sequence shared by both
// creation paths. The claim is taken before the carrier call so that two
// concurrent requests cannot both buy a label; a failed carrier call
// releases the claim and leaves the order untouched.
func (s *Service) createAgainstCarrier(ctx context.Context, ord *order.Order, service string, spec *carrier.ShipmentSpec, force bool) (*order.ShipmentRecord, bool, error) {
	reservation := uuid.NewString()

	claimed, existing, err := s.orders.ClaimShipment(ctx, ord.ID, reservation, force)
	if err != nil {
		return nil, false, s.orderErr(err)
	}
	if !claimed {
		if existing == nil {
			return nil, false, carrier.NewError(carrier.KindValidation,
				"shipment creation already in progress for this order")
		}
		s.logger.Info("Shipment already exists for order",
			zap.String("order_id", ord.ID),
			zap.String("shipment_id", existing.ShipmentID),
		)
		return existing, false, nil
	}

	info, err := s.client.CreateShipment(ctx, spec)
	if err != nil {
		if relErr := s.orders.ReleaseShipment(ctx, ord.ID, reservation); relErr != nil {
			s.logger.Error("Failed to release shipment claim",
				zap.String("order_id", ord.ID), zap.Error(relErr))
		}
		return nil, false, s.carrierErr(err)
	}

	now := s.now()
	rec := order.ShipmentRecord{
		Provider:    stallion.ProviderName,
		Service:     service,
		ShipmentID:  info.ShipmentID,
		TrackingID:  info.TrackingNumber,
		TrackingURL: info.TrackingURL,
		LabelURL:    info.LabelURL,
		Status:      info.Status,
		Cost:        info.Cost,
		Currency:    info.Currency,
		CreatedAt:   now,
		LastUpdated: now,
		RawResponse: json.RawMessage(info.Raw),
	}

	if err := s.orders.SaveShipment(ctx, ord.ID, rec); err != nil {
		// The label exists at the carrier but the order store rejected the
		// write. Surfacing this as fatal is deliberate: swallowing it would
		// let stored truth diverge from carrier truth.
		return nil, false, fmt.Errorf("persisting shipment record: %w", err)
	}

	s.logger.Info("Shipment created",
		zap.String("order_id", ord.ID),
		zap.String("shipment_id", rec.ShipmentID),
		zap.String("tracking_id", rec.TrackingID),
	)
	return &rec, true, nil
}

// Cancel voids the order's shipment with the carrier. The local record is
// marked cancelled only after the carrier confirms; local state tracks
// remote truth.
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	defer s.observe("cancel", s.now())

	ord, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return s.orderErr(err)
	}
	if !ord.HasShipment() {
		return carrier.NewError(carrier.KindNotFound, "no shipment found for this order")
	}

	if err := s.client.Cancel(ctx, ord.Shipment.ShipmentID); err != nil {
		return s.carrierErr(err)
	}

	now := s.now()
	rec := *ord.Shipment
	rec.Status = "cancelled"
	rec.CancelledAt = &now
	rec.LastUpdated = now

	if err := s.orders.SaveShipment(ctx, orderID, rec); err != nil {
		return fmt.Errorf("persisting cancellation: %w", err)
	}
	return nil
}

// RefreshTracking reconciles the persisted shipment record with the
// carrier's current tracking state. Carrier outages degrade to the last
// persisted record tagged as cached rather than an error.
func (s *Service) RefreshTracking(ctx context.Context, orderID string) (*TrackingView, error) {
	defer s.observe("refresh_tracking", s.now())

	ord, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, s.orderErr(err)
	}
	if !ord.HasShipment() {
		return nil, carrier.NewError(carrier.KindNotFound, "no shipment found for this order")
	}

	info, err := s.client.Track(ctx, ord.Shipment.ShipmentID)
	if err != nil {
		s.logger.Warn("Tracking refresh failed, serving cached record",
			zap.String("order_id", orderID), zap.Error(err))
		s.metrics.RecordCarrierError(string(errKind(err)))
		return viewFromRecord(ord.Shipment, nil, "cached"), nil
	}

	// Merge: prefer the carrier's value, keep ours where it omitted one.
	rec := *ord.Shipment
	rec.TrackingID = firstNonEmpty(info.TrackingNumber, rec.TrackingID)
	rec.TrackingURL = firstNonEmpty(info.TrackingURL, rec.TrackingURL)
	rec.Status = firstNonEmpty(info.Status, rec.Status)
	rec.LastUpdated = s.now()
	if len(info.Raw) > 0 {
		rec.RawResponse = json.RawMessage(info.Raw)
	}

	if err := s.orders.SaveShipment(ctx, orderID, rec); err != nil {
		return nil, fmt.Errorf("persisting tracking refresh: %w", err)
	}
	return viewFromRecord(&rec, info.Events, "live"), nil
}

// Track is a direct carrier passthrough by tracking number or shipment id.
func (s *Service) Track(ctx context.Context, trackingID string) (*carrier.TrackingInfo, error) {
	defer s.observe("track", s.now())

	if trackingID == "" {
		return nil, carrier.NewError(carrier.KindValidation, "tracking ID is required")
	}
	info, err := s.client.Track(ctx, trackingID)
	if err != nil {
		return nil, s.carrierErr(err)
	}
	return info, nil
}

// PostageTypes is a direct carrier passthrough.
func (s *Service) PostageTypes(ctx context.Context) (json.RawMessage, error) {
	defer s.observe("postage_types", s.now())

	types, err := s.client.PostageTypes(ctx)
	if err != nil {
		return nil, s.carrierErr(err)
	}
	return types, nil
}

// ApplyStatusUpdate applies an asynchronous carrier status push to the
// matching order. Unmatched notifications are logged and dropped: the
// carrier must not be told to retry a notification whose target is gone.
func (s *Service) ApplyStatusUpdate(ctx context.Context, trackingNumber, shipmentID, status string) error {
	ord, err := s.orders.FindByShipmentRef(ctx, trackingNumber, shipmentID)
	if errors.Is(err, order.ErrNotFound) {
		s.logger.Warn("No order matches shipment status update",
			zap.String("tracking_number", trackingNumber),
			zap.String("shipment_id", shipmentID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("locating order for status update: %w", err)
	}

	rec := *ord.Shipment
	rec.Status = status
	rec.LastUpdated = s.now()
	if err := s.orders.SaveShipment(ctx, ord.ID, rec); err != nil {
		return fmt.Errorf("persisting shipment status: %w", err)
	}

	// Project carrier status onto the order's own lifecycle.
	switch status {
	case "delivered":
		err = s.orders.SetStatus(ctx, ord.ID, order.StatusDelivered)
	case "in_transit":
		err = s.orders.SetStatus(ctx, ord.ID, order.StatusShipped)
	}
	if err != nil {
		return fmt.Errorf("persisting order status: %w", err)
	}

	s.logger.Info("Applied shipment status update",
		zap.String("order_id", ord.ID),
		zap.String("status", status),
	)
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

// envelope computes the combined package envelope: total weight as
// Σ(weight × quantity) and bounding-box dimensions as the pointwise max
// across parcels. The carrier quotes one combined package, not per-parcel.
func (s *Service) envelope(parcels []carrier.Parcel) (weight, length, width, height float64) {
	for _, p := range parcels {
		w := p.Weight
		if w == 0 {
			w = s.defaults.Weight
		}
		q := p.Quantity
		if q == 0 {
			q = 1
		}
		weight += w * float64(q)

		length = max(length, defaultFloat(p.Length, s.defaults.Length))
		width = max(width, defaultFloat(p.Width, s.defaults.Width))
		height = max(height, defaultFloat(p.Height, s.defaults.Height))
	}
	return weight, length, width, height
}

// cartWeight totals the stored cart, preferring variant weight over item
// weight and defaulting absent weights.
func (s *Service) cartWeight(cart []order.CartItem) float64 {
	if len(cart) == 0 {
		return s.defaults.Weight
	}
	var total float64
	for _, item := range cart {
		w := item.VariantWeight
		if w == 0 {
			w = item.Weight
		}
		if w == 0 {
			w = s.defaults.Weight
		}
		q := item.Quantity
		if q == 0 {
			q = 1
		}
		total += w * float64(q)
	}
	return total
}

func (s *Service) warehouseAddress() carrier.Address {
	return carrier.Address{
		Name:       s.warehouse.Name,
		Address1:   s.warehouse.Address1,
		City:       s.warehouse.City,
		Province:   s.warehouse.Province,
		PostalCode: s.warehouse.PostalCode,
		Country:    s.warehouse.Country,
		Phone:      s.warehouse.Phone,
		Email:      s.warehouse.Email,
	}
}

// normalizeDestination fills the province from the state alias when the
// carrier-specific field is absent.
func (s *Service) normalizeDestination(dest carrier.Address) carrier.Address {
	dest.Province = firstNonEmpty(dest.Province, dest.State, "ON")
	dest.State = ""
	if dest.Name == "" {
		dest.Name = "Customer"
	}
	return dest
}

// destinationFromOrder derives the shipment destination from the stored
// customer record, applying the carrier's field length limits.
func (s *Service) destinationFromOrder(ord *order.Order) carrier.Address {
	c := ord.Customer
	return s.truncateAddress(carrier.Address{
		Name:       firstNonEmpty(c.Name, "Customer"),
		Address1:   firstNonEmpty(c.Address, "Unknown Address"),
		City:       firstNonEmpty(c.City, "Unknown"),
		Province:   firstNonEmpty(c.State, c.Province, "ON"),
		PostalCode: c.ZipCode,
		Country:    firstNonEmpty(c.Country, "CA"),
		Phone:      c.Contact,
		Email:      c.Email,
	})
}

func (s *Service) truncateAddress(addr carrier.Address) carrier.Address {
	addr.Name = truncate(addr.Name, maxNameLen)
	addr.Address1 = truncate(addr.Address1, maxAddressLen)
	addr.Address2 = truncate(addr.Address2, maxAddressLen)
	addr.City = truncate(addr.City, maxCityLen)
	addr.Province = truncate(addr.Province, maxProvinceLen)
	addr.PostalCode = truncate(addr.PostalCode, maxPostalLen)
	addr.Country = truncate(addr.Country, maxCountryLen)
	return addr
}

func (s *Service) observe(operation string, started time.Time) {
	s.metrics.RecordRequest(operation, "handled", s.now().Sub(started).Seconds())
}

func (s *Service) carrierErr(err error) error {
	s.metrics.RecordCarrierError(string(errKind(err)))
	return err
}

func (s *Service) orderErr(err error) error {
	if errors.Is(err, order.ErrNotFound) {
		return carrier.NewError(carrier.KindNotFound, "order not found").WithCause(err)
	}
	return err
}

func errKind(err error) carrier.Kind {
	var ce *carrier.Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return carrier.KindRemote
}

func viewFromRecord(rec *order.ShipmentRecord, events []carrier.TrackingEvent, source string) *TrackingView {
	if events == nil {
		events = []carrier.TrackingEvent{}
	}
	return &TrackingView{
		ShipmentID:     rec.ShipmentID,
		TrackingNumber: rec.TrackingID,
		TrackingURL:    rec.TrackingURL,
		Status:         rec.Status,
		Provider:       rec.Provider,
		LastUpdated:    rec.LastUpdated,
		Events:         events,
		Source:         source,
	}
}

func isEmptyAddress(addr carrier.Address) bool {
	return addr == (carrier.Address{})
}

func truncate(s string, limit int) string {
	if len(s) > limit {
		return s[:limit]
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func defaultFloat(value, fallback float64) float64 {
	if value != 0 {
		return value
	}
	return fallback
}

func ptr[T any](v T) *T {
	return &v
}
