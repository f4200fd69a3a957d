package order

import (
	"context"
	"errors"
)

// ErrNotFound indicates the referenced order does not exist.
var ErrNotFound = errors.New("order not found")

// Store is the order persistence boundary.
//
// ClaimShipment and ReleaseShipment exist because the idempotency check in
// shipment creation must not be a separate read followed by a write: two
// near-simultaneous requests could both pass a read-then-write check and
// buy two real labels. The claim is a single conditional update that sets
// the shipment identity only if it is currently absent.
type Store interface {
	// Get fetches an order by id. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*Order, error)

	// FindByShipmentRef locates the order whose shipment matches the given
	// tracking number or, failing that, the given shipment id — one query,
	// tracking number preferred. Returns ErrNotFound when nothing matches.
	FindByShipmentRef(ctx context.Context, trackingNumber, shipmentID string) (*Order, error)

	// ClaimShipment atomically reserves the order's shipment identity with
	// the given reservation token iff no shipment identity is currently
	// set, or unconditionally when force is true. When the claim loses,
	// claimed is false and existing carries the present shipment record.
	ClaimShipment(ctx context.Context, orderID, reservationID string, force bool) (claimed bool, existing *ShipmentRecord, err error)

	// ReleaseShipment undoes a claim whose carrier call failed, restoring
	// the shipment identity the order had before the claim. Only the
	// holder of the reservation token may release it.
	ReleaseShipment(ctx context.Context, orderID, reservationID string) error

	// SaveShipment replaces the order's shipment record.
	SaveShipment(ctx context.Context, orderID string, rec ShipmentRecord) error

	// SetStatus updates the order's own top-level status.
	SetStatus(ctx context.Context, orderID, status string) error
}
