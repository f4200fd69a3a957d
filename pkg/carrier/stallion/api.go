package stallion

import (
	"context"
	"encoding/json"
)

// APIClient defines the Stallion Express API operations used by the service.
// This abstraction allows for mock implementations during testing and the
// real HTTP implementation in production.
type APIClient interface {
	// GetRates fetches shipping rates. POST /rates
	GetRates(ctx context.Context, req *RateRequest) (*RateResponse, error)

	// CreateShipment creates a shipment and purchases a label. POST /shipments
	CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error)

	// GetShipment retrieves a shipment by tracking number or shipment id.
	// GET /shipments/{id}
	GetShipment(ctx context.Context, id string) (*ShipmentResponse, error)

	// CancelShipment voids a shipment. DELETE /shipments/{id}
	CancelShipment(ctx context.Context, id string) error

	// GetPostageTypes lists available postage types. GET /postage-types
	GetPostageTypes(ctx context.Context) (*PostageTypesResponse, error)
}

// ============================================================================
// Wire types (match the Stallion Express REST API v4 schema)
//
// This is the only place the carrier's field names appear. Responses are
// decoded here once and normalized; nothing downstream reads raw payloads.
// ============================================================================

// WireAddress is an address in the carrier's schema.
type WireAddress struct {
	Name         string `json:"name,omitempty"`
	Company      string `json:"company,omitempty"`
	Address1     string `json:"address1"`
	Address2     string `json:"address2,omitempty"`
	City         string `json:"city"`
	ProvinceCode string `json:"province_code"`
	PostalCode   string `json:"postal_code"`
	CountryCode  string `json:"country_code"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
}

// RateRequest is the carrier's rate-quote payload. The carrier quotes one
// combined package envelope, so weight is the summed total and the
// dimensions describe the bounding box across all parcels.
type RateRequest struct {
	FromAddress     WireAddress `json:"from_address"`
	ToAddress       WireAddress `json:"to_address"`
	Weight          float64     `json:"weight"`
	WeightUnit      string      `json:"weight_unit"` // "kg"
	Length          float64     `json:"length"`
	Width           float64     `json:"width"`
	Height          float64     `json:"height"`
	SizeUnit        string      `json:"size_unit"` // "cm"
	PackageContents string      `json:"package_contents"`
	Value           float64     `json:"value"`
	Currency        string      `json:"currency"`
	ServiceCode     string      `json:"service_code,omitempty"`
}

// RateResponse is the carrier's rate-quote response.
type RateResponse struct {
	Rates []WireRate `json:"rates"`
}

// WireRate is one quoted option in the carrier's schema.
type WireRate struct {
	PostageType  string  `json:"postage_type"`
	ServiceCode  string  `json:"service_code"`
	Total        float64 `json:"total"`
	Currency     string  `json:"currency"`
	DeliveryDays int     `json:"delivery_days"`
}

// ShipmentRequest is the carrier's shipment-creation payload.
type ShipmentRequest struct {
	ToAddress             WireAddress `json:"to_address"`
	FromAddress           *WireAddress `json:"from_address,omitempty"`
	OrderID               string      `json:"order_id,omitempty"`
	Weight                float64     `json:"weight"`
	WeightUnit            string      `json:"weight_unit"`
	Length                float64     `json:"length"`
	Width                 float64     `json:"width"`
	Height                float64     `json:"height"`
	SizeUnit              string      `json:"size_unit"`
	PackageContents       string      `json:"package_contents"`
	Value                 float64     `json:"value"`
	Currency              string      `json:"currency"`
	PackageType           string      `json:"package_type"`
	PostageType           string      `json:"postage_type"`
	SignatureConfirmation bool        `json:"signature_confirmation"`
	Insured               bool        `json:"insured"`
	LabelFormat           string      `json:"label_format"`
	Reference             string      `json:"reference,omitempty"`
	Payer                 string      `json:"payer,omitempty"`
}

// ShipmentResponse is the carrier's shipment payload, returned by both
// creation and retrieval/tracking calls.
type ShipmentResponse struct {
	ID             string          `json:"id"`
	ShipmentID     string          `json:"shipment_id"`
	TrackingNumber string          `json:"tracking_number"`
	TrackingURL    string          `json:"tracking_url"`
	LabelURL       string          `json:"label_url"`
	Status         string          `json:"status"`
	Total          float64         `json:"total"`
	Cost           float64         `json:"cost"`
	Currency       string          `json:"currency"`
	Events         []WireEvent     `json:"events"`
	Labels         []WireLabel     `json:"labels"`
	Tracking       *WireTracking   `json:"tracking"`

	// Raw holds the verbatim response body; set by the HTTP client,
	// never serialized back out.
	Raw json.RawMessage `json:"-"`
}

// WireTracking is the nested tracking object some responses carry instead
// of the flat tracking fields.
type WireTracking struct {
	Number string `json:"number"`
	URL    string `json:"url"`
}

// WireEvent is one tracking scan in the carrier's schema.
type WireEvent struct {
	Timestamp   string `json:"timestamp"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

// WireLabel is one generated label document.
type WireLabel struct {
	Format string `json:"format"`
	URL    string `json:"url"`
}

// PostageTypesResponse is the carrier's postage-type listing.
type PostageTypesResponse struct {
	PostageTypes json.RawMessage `json:"postage_types"`
}

// APIError represents an error body returned by the Stallion API.
type APIError struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}
