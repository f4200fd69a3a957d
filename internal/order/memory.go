package order

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory order store for tests and DB-less runs. It
// provides the same claim semantics as the Postgres store, guarded by a
// single mutex.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]*memOrder
}

type memOrder struct {
	ord Order
	// ref mirrors the dedicated shipment-identity column: either the
	// persisted shipment id or an in-flight reservation token.
	ref string
}

// NewMemoryStore creates an empty in-memory order store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]*memOrder)}
}

// Put seeds an order. Test helper; the order store is normally written by
// the order-management system.
func (s *MemoryStore) Put(ord Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := ""
	if ord.Shipment != nil {
		ref = ord.Shipment.ShipmentID
	}
	s.orders[ord.ID] = &memOrder{ord: ord, ref: ref}
}

// Get fetches an order by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Order, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	mo, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOrder(&mo.ord), nil
}

// FindByShipmentRef locates an order by tracking number, falling back to
// shipment id.
func (s *MemoryStore) FindByShipmentRef(ctx context.Context, trackingNumber, shipmentID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if trackingNumber != "" {
		for _, mo := range s.orders {
			if mo.ord.Shipment != nil && mo.ord.Shipment.TrackingID == trackingNumber {
				return copyOrder(&mo.ord), nil
			}
		}
	}
	if shipmentID != "" {
		for _, mo := range s.orders {
			if mo.ord.Shipment != nil && mo.ord.Shipment.ShipmentID == shipmentID {
				return copyOrder(&mo.ord), nil
			}
		}
	}
	return nil, ErrNotFound
}

// ClaimShipment reserves the shipment identity iff currently absent.
func (s *MemoryStore) ClaimShipment(ctx context.Context, orderID, reservationID string, force bool) (bool, *ShipmentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mo, ok := s.orders[orderID]
	if !ok {
		return false, nil, ErrNotFound
	}
	if mo.ref != "" && !force {
		existing := mo.ord.Shipment
		if existing != nil {
			cp := *existing
			return false, &cp, nil
		}
		return false, nil, nil
	}
	mo.ref = reservationID
	return true, nil, nil
}

// ReleaseShipment restores the pre-claim shipment identity.
func (s *MemoryStore) ReleaseShipment(ctx context.Context, orderID, reservationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mo, ok := s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if mo.ref != reservationID {
		return nil // reservation already superseded
	}
	if mo.ord.Shipment != nil {
		mo.ref = mo.ord.Shipment.ShipmentID
	} else {
		mo.ref = ""
	}
	return nil
}

// SaveShipment replaces the order's shipment record.
func (s *MemoryStore) SaveShipment(ctx context.Context, orderID string, rec ShipmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mo, ok := s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	cp := rec
	mo.ord.Shipment = &cp
	mo.ref = rec.ShipmentID
	return nil
}

// SetStatus updates the order's top-level status.
func (s *MemoryStore) SetStatus(ctx context.Context, orderID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mo, ok := s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	mo.ord.Status = status
	return nil
}

func copyOrder(ord *Order) *Order {
	cp := *ord
	if ord.Shipment != nil {
		sh := *ord.Shipment
		cp.Shipment = &sh
	}
	cp.Cart = append([]CartItem(nil), ord.Cart...)
	return &cp
}

var _ Store = (*MemoryStore)(nil)
