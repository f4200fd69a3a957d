// Package order models the slice of the order aggregate the shipping
// integration reads and writes. The order store owns the aggregate; this
// service holds no independent copy and re-fetches on every operation.
package order

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses projected from carrier shipment state. Other order
// statuses exist but are never written by this service.
const (
	StatusShipped   = "Shipped"
	StatusDelivered = "Delivered"
)

// Customer holds the contact and destination fields used to derive a
// shipment from a stored order.
type Customer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Contact  string `json:"contact"`
	Address  string `json:"address"`
	City     string `json:"city"`
	State    string `json:"state"`
	Province string `json:"province"`
	ZipCode  string `json:"zipCode"`
	Country  string `json:"country"`
}

// CartItem is one purchased line. Weight is the unit weight in kg; a
// variant weight takes precedence when present.
type CartItem struct {
	Title         string          `json:"title"`
	Quantity      int             `json:"quantity"`
	Weight        float64         `json:"weight,omitempty"`
	VariantWeight float64         `json:"variantWeight,omitempty"`
	Price         decimal.Decimal `json:"price"`
}

// ShipmentRecord is the order-embedded shipment state. ShipmentID is set at
// most once per order unless a forced retry is requested; its presence is
// the sole idempotency marker for shipment creation.
type ShipmentRecord struct {
	Provider    string          `json:"provider"`
	Service     string          `json:"service,omitempty"`
	ShipmentID  string          `json:"shipmentId"`
	TrackingID  string          `json:"trackingId,omitempty"`
	TrackingURL string          `json:"trackingUrl,omitempty"`
	LabelURL    string          `json:"labelUrl,omitempty"`
	Status      string          `json:"status"`
	Cost        decimal.Decimal `json:"cost"`
	Currency    string          `json:"currency"`
	CreatedAt   time.Time       `json:"createdAt"`
	LastUpdated time.Time       `json:"lastUpdated"`
	CancelledAt *time.Time      `json:"cancelledAt,omitempty"`
	RawResponse json.RawMessage `json:"rawResponse,omitempty"`
}

// Order is the aggregate subset this service touches.
type Order struct {
	ID           string          `json:"id"`
	Invoice      string          `json:"invoice,omitempty"`
	Status       string          `json:"status"`
	Customer     Customer        `json:"customer"`
	Cart         []CartItem      `json:"cart"`
	SubTotal     decimal.Decimal `json:"subTotal"`
	Total        decimal.Decimal `json:"total"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	Shipment     *ShipmentRecord `json:"shipment,omitempty"`
}

// HasShipment reports whether a shipment has been created for this order.
func (o *Order) HasShipment() bool {
	return o.Shipment != nil && o.Shipment.ShipmentID != ""
}
