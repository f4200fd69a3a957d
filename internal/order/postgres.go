package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the pgx-backed order store.
//
// The order rows are owned by the order-management system; this store only
// reads the fields the shipping integration needs and writes the shipment
// sub-record. Expected schema subset:
//
//	CREATE TABLE IF NOT EXISTS orders (
//	    id            text PRIMARY KEY,
//	    invoice       text NOT NULL DEFAULT '',
//	    status        text NOT NULL DEFAULT '',
//	    customer      jsonb NOT NULL DEFAULT '{}',
//	    cart          jsonb NOT NULL DEFAULT '[]',
//	    sub_total     numeric NOT NULL DEFAULT 0,
//	    total         numeric NOT NULL DEFAULT 0,
//	    shipping_cost numeric NOT NULL DEFAULT 0,
//	    shipment      jsonb,
//	    -- dedicated shipment-identity column backing the atomic claim
//	    shipment_ref  text NOT NULL DEFAULT ''
//	);
//	CREATE INDEX IF NOT EXISTS orders_tracking_idx ON orders ((shipment->>'trackingId'));
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates an order store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const orderColumns = `id, invoice, status, customer, cart, sub_total, total, shipping_cost, shipment`

// Get fetches an order by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

// FindByShipmentRef locates the order matching the tracking number first,
// falling back to the shipment id, in one query.
func (s *PostgresStore) FindByShipmentRef(ctx context.Context, trackingNumber, shipmentID string) (*Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE ($1 <> '' AND shipment->>'trackingId' = $1)
		    OR ($2 <> '' AND shipment_ref = $2)
		 ORDER BY ($1 <> '' AND shipment->>'trackingId' = $1) DESC
		 LIMIT 1`,
		trackingNumber, shipmentID)
	return scanOrder(row)
}

// ClaimShipment sets the shipment identity iff currently absent (or
// unconditionally under force) in a single conditional update.
func (s *PostgresStore) ClaimShipment(ctx context.Context, orderID, reservationID string, force bool) (bool, *ShipmentRecord, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET shipment_ref = $2
		 WHERE id = $1 AND (shipment_ref = '' OR $3)`,
		orderID, reservationID, force)
	if err != nil {
		return false, nil, fmt.Errorf("claiming shipment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil, nil
	}

	// Claim lost: either the order is gone or a shipment already exists.
	ord, err := s.Get(ctx, orderID)
	if err != nil {
		return false, nil, err
	}
	return false, ord.Shipment, nil
}

// ReleaseShipment restores the pre-claim shipment identity. Only the
// reservation holder's token matches.
func (s *PostgresStore) ReleaseShipment(ctx context.Context, orderID, reservationID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE orders
		 SET shipment_ref = COALESCE(shipment->>'shipmentId', '')
		 WHERE id = $1 AND shipment_ref = $2`,
		orderID, reservationID)
	if err != nil {
		return fmt.Errorf("releasing shipment claim: %w", err)
	}
	return nil
}

// SaveShipment replaces the order's shipment record and keeps the
// identity column in sync.
func (s *PostgresStore) SaveShipment(ctx context.Context, orderID string, rec ShipmentRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding shipment record: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET shipment = $2, shipment_ref = $3 WHERE id = $1`,
		orderID, payload, rec.ShipmentID)
	if err != nil {
		return fmt.Errorf("saving shipment record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus updates the order's top-level status.
func (s *PostgresStore) SetStatus(ctx context.Context, orderID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1`, orderID, status)
	if err != nil {
		return fmt.Errorf("updating order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		ord      Order
		customer []byte
		cart     []byte
		shipment []byte
	)
	err := row.Scan(&ord.ID, &ord.Invoice, &ord.Status, &customer, &cart,
		&ord.SubTotal, &ord.Total, &ord.ShippingCost, &shipment)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning order: %w", err)
	}

	if err := json.Unmarshal(customer, &ord.Customer); err != nil {
		return nil, fmt.Errorf("decoding order customer: %w", err)
	}
	if err := json.Unmarshal(cart, &ord.Cart); err != nil {
		return nil, fmt.Errorf("decoding order cart: %w", err)
	}
	if len(shipment) > 0 {
		var rec ShipmentRecord
		if err := json.Unmarshal(shipment, &rec); err != nil {
			return nil, fmt.Errorf("decoding shipment record: %w", err)
		}
		ord.Shipment = &rec
	}
	return &ord, nil
}

var _ Store = (*PostgresStore)(nil)
