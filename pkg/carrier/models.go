package carrier

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address represents a shipping origin or destination.
type Address struct {
	Name       string `json:"name,omitempty"`
	Company    string `json:"company,omitempty"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2,omitempty"`
	City       string `json:"city"`
	Province   string `json:"province"`
	State      string `json:"state,omitempty"` // accepted as a province alias

	PostalCode string `json:"postalCode"`
	Country    string `json:"country"` // ISO 3166-1 alpha-2
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
}

// Parcel is one package line in a rate or shipment request.
// Zero values are filled with configured defaults before any carrier call.
type Parcel struct {
	Weight   float64 `json:"weight"` // kg
	Length   float64 `json:"length"` // cm
	Width    float64 `json:"width"`  // cm
	Height   float64 `json:"height"` // cm
	Quantity int     `json:"quantity"`
}

// RateRequest is the normalized rate-quote input. Transient; built per call.
type RateRequest struct {
	Origin      *Address `json:"origin,omitempty"`
	Destination Address  `json:"destination"`
	Parcels     []Parcel `json:"parcels"`
	ServiceCode string   `json:"serviceType,omitempty"`
}

// QuoteSpec is a fully aggregated rate-quote input: one combined package
// envelope with the summed weight and bounding-box dimensions already
// computed. The orchestrator builds it from a RateRequest.
type QuoteSpec struct {
	Origin      Address
	Destination Address
	Weight      float64 // kg, Σ(weight × quantity)
	Length      float64 // cm, pointwise max across parcels
	Width       float64
	Height      float64
	Value       float64
	Currency    string
	ServiceCode string
}

// ShipmentSpec is a fully aggregated shipment-creation input.
type ShipmentSpec struct {
	To          Address
	From        *Address
	OrderRef    string
	Weight      float64
	Length      float64
	Width       float64
	Height      float64
	Value       float64
	Currency    string
	PackageType string
	PostageType string
	Reference   string
	Payer       string
	LabelFormat string
}

// Rate is one quoted shipping option.
type Rate struct {
	PostageType string          `json:"postage_type"`
	ServiceCode string          `json:"service_code"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency"`
	DeliveryDays int            `json:"delivery_days,omitempty"`
}

// ShipmentInfo is the normalized result of creating or fetching a shipment.
// All optional-field fallbacks against the carrier's wire schema happen in
// the carrier client; nothing downstream re-reads the raw payload.
type ShipmentInfo struct {
	ShipmentID     string
	TrackingNumber string
	TrackingURL    string
	LabelURL       string
	Status         string
	Cost           decimal.Decimal
	Currency       string
	Raw            []byte // verbatim carrier payload, persisted for diagnosis
}

// TrackingEvent is one scan in a shipment's tracking history.
type TrackingEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
}

// TrackingInfo is the normalized result of a tracking lookup. Fields the
// carrier omitted are left zero; callers merge against persisted state.
type TrackingInfo struct {
	TrackingNumber string
	TrackingURL    string
	Status         string
	Events         []TrackingEvent
	Raw            []byte
}

// PostageType is one shipping product offered by the carrier.
type PostageType struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
