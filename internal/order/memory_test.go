package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/cartline/shipping/internal/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(store *order.MemoryStore, id string, shipment *order.ShipmentRecord) {
	store.Put(order.Order{
		ID:       id,
		Status:   "Processing",
		Customer: order.Customer{Name: "Jamie Ross", City: "Vancouver"},
		Shipment: shipment,
	})
}

func record(shipmentID, trackingID string) *order.ShipmentRecord {
	return &order.ShipmentRecord{
		Provider:    "Stallion Express",
		ShipmentID:  shipmentID,
		TrackingID:  trackingID,
		Status:      "created",
		CreatedAt:   time.Now().UTC(),
		LastUpdated: time.Now().UTC(),
	}
}

func TestMemoryStore_Get(t *testing.T) {
	store := order.NewMemoryStore()
	seed(store, "ord-1", nil)

	ord, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", ord.ID)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := order.NewMemoryStore()
	seed(store, "ord-1", record("se-1", "trk-1"))

	ord, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	ord.Shipment.Status = "mutated"
	ord.Status = "mutated"

	again, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "created", again.Shipment.Status)
	assert.Equal(t, "Processing", again.Status)
}

func TestMemoryStore_ClaimShipment(t *testing.T) {
	store := order.NewMemoryStore()
	seed(store, "ord-1", nil)

	claimed, existing, err := store.ClaimShipment(context.Background(), "ord-1", "res-1", false)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Nil(t, existing)

	// A concurrent claim on the same order loses while the first is live.
	claimed, existing, err = store.ClaimShipment(context.Background(), "ord-1", "res-2", false)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Nil(t, existing) // in flight, no persisted record yet
}

func TestMemoryStore_ClaimAgainstPersistedShipment(t *testing.T) {
	store := order.NewMemoryStore()
	seed(store, "ord-1", record("se-1", "trk-1"))

	claimed, existing, err := store.ClaimShipment(context.Background(), "ord-1", "res-1", false)
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NotNil(t, existing)
	assert.Equal(t, "se-1", existing.ShipmentID)
}

func TestMemoryStore_ForceClaimOverridesPersistedShipment(t *testing.T) {
	store := order.NewMemoryStore()
	seed(store, "ord-1", record("se-1", "trk-1"))

	claimed, _, err := store.ClaimShipment(context.Background(), "ord-1", "res-1", true)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestMemoryStore_ClaimUnknownOrder(t *testing.T) {
	store := order.NewMemoryStore()

	_, _, err := store.ClaimShipment(context.Background(), "missing", "res-1", false)
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestMemoryStore_ReleaseRestoresIdentity(t *testing.T) {
	store := order.NewMemoryStore()
	seed(store, "ord-1", nil)

	claimed, _, err := store.ClaimShipment(context.Background(), "ord-1", "res-1", false)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, store.ReleaseShipment(context.Background(), "ord-1", "res-1"))

	// The order is claimable again after release.
	claimed, _, err = store.ClaimShipment(context.Background(), "ord-1", "res-2", false)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestMemoryStore_ReleaseRestoresPersistedShipmentID(t *testing.T) {
	store := order.NewMemoryStore()
	seed(store, "ord-1", record("se-1", "trk-1"))

	claimed, _, err := store.ClaimShipment(context.Background(), "ord-1", "res-1", true)
	require.NoError(t, err)
	require.True(t, claimed)

	// Force retry failed at the carrier: the release puts the original
	// shipment identity back, so a plain claim is refused again.
	require.NoError(t, store.ReleaseShipment(context.Background(), "ord-1", "res-1"))

	claimed, existing, err := store.ClaimShipment(context.Background(), "ord-1", "res-2", false)
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NotNil(t, existing)
	assert.Equal(t, "se-1", existing.ShipmentID)
}

func TestMemoryStore_ReleaseIgnoresSupersededReservation(t *testing.T) {
	store := order.NewMemoryStore()
	seed(store, "ord-1", nil)

	claimed, _, err := store.ClaimShipment(context.Background(), "ord-1", "res-1", false)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, store.SaveShipment(context.Background(), "ord-1", *record("se-2", "trk-2")))

	// A stale release must not clear the persisted identity.
	require.NoError(t, store.ReleaseShipment(context.Background(), "ord-1", "res-1"))

	claimed, existing, err := store.ClaimShipment(context.Background(), "ord-1", "res-3", false)
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NotNil(t, existing)
	assert.Equal(t, "se-2", existing.ShipmentID)
}

func TestMemoryStore_SaveShipmentSupersedesClaim(t *testing.T) {
	store := order.NewMemoryStore()
	seed(store, "ord-1", nil)

	claimed, _, err := store.ClaimShipment(context.Background(), "ord-1", "res-1", false)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, store.SaveShipment(context.Background(), "ord-1", *record("se-1", "trk-1")))

	ord, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	require.True(t, ord.HasShipment())
	assert.Equal(t, "se-1", ord.Shipment.ShipmentID)
}

func TestMemoryStore_FindByShipmentRef(t *testing.T) {
	store := order.NewMemoryStore()
	seed(store, "ord-1", record("se-1", "trk-1"))
	seed(store, "ord-2", record("se-2", "trk-2"))

	ord, err := store.FindByShipmentRef(context.Background(), "trk-2", "")
	require.NoError(t, err)
	assert.Equal(t, "ord-2", ord.ID)

	ord, err = store.FindByShipmentRef(context.Background(), "", "se-1")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", ord.ID)

	// The tracking number wins over a conflicting shipment id.
	ord, err = store.FindByShipmentRef(context.Background(), "trk-1", "se-2")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", ord.ID)

	_, err = store.FindByShipmentRef(context.Background(), "unknown", "unknown")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestMemoryStore_SetStatus(t *testing.T) {
	store := order.NewMemoryStore()
	seed(store, "ord-1", nil)

	require.NoError(t, store.SetStatus(context.Background(), "ord-1", order.StatusShipped))

	ord, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, ord.Status)

	assert.ErrorIs(t, store.SetStatus(context.Background(), "missing", "x"), order.ErrNotFound)
}
