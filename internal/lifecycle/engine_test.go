package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenamoradol/crm-autolote-backend/internal/model"
	"github.com/cenamoradol/crm-autolote-backend/internal/permission"
	"github.com/google/uuid"
)

// memStore is an in-memory Store used to exercise the engine without a
// database. Writes inside InTx are not rolled back; every test asserts on
// guard behavior that fails before the first write.
type memStore struct {
	mu           sync.Mutex
	vehicles     map[string]*model.Vehicle            // by id
	reservations map[string]*model.VehicleReservation // by vehicle id
	sales        map[string]*model.VehicleSale        // by id
	history      []model.VehicleStatusHistory
	customers    map[string]*model.Customer // by id
	leads        map[string]string          // lead id -> store id
	notes        []model.CustomerNote
}

func newMemStore() *memStore {
	return &memStore{
		vehicles:     make(map[string]*model.Vehicle),
		reservations: make(map[string]*model.VehicleReservation),
		sales:        make(map[string]*model.VehicleSale),
		customers:    make(map[string]*model.Customer),
		leads:        make(map[string]string),
	}
}

func (m *memStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(m)
}

func (m *memStore) CreateVehicle(_ context.Context, v *model.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.PublicID == "" {
		v.PublicID = uuid.NewString()
	}
	cp := *v
	m.vehicles[v.ID] = &cp
	return nil
}

func (m *memStore) GetVehicle(_ context.Context, storeID, vehicleID string) (*model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[vehicleID]
	if !ok || v.StoreID != storeID {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (m *memStore) UpdateVehicle(_ context.Context, v *model.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.vehicles[v.ID] = &cp
	return nil
}

func (m *memStore) GetReservation(_ context.Context, storeID, vehicleID string) (*model.VehicleReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[vehicleID]
	if !ok || r.StoreID != storeID {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) CreateReservation(_ context.Context, r *model.VehicleReservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.reservations[r.VehicleID]; exists {
		return ErrAlreadyReserved
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	cp := *r
	m.reservations[r.VehicleID] = &cp
	return nil
}

func (m *memStore) DeleteReservation(_ context.Context, storeID, reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for vehicleID, r := range m.reservations {
		if r.ID == reservationID && r.StoreID == storeID {
			delete(m.reservations, vehicleID)
		}
	}
	return nil
}

func (m *memStore) GetSale(_ context.Context, storeID, saleID string) (*model.VehicleSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sales[saleID]
	if !ok || s.StoreID != storeID {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) GetSaleByVehicle(_ context.Context, storeID, vehicleID string) (*model.VehicleSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sales {
		if s.VehicleID == vehicleID && s.StoreID == storeID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateSale(_ context.Context, s *model.VehicleSale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sales {
		if existing.VehicleID == s.VehicleID {
			return ErrAlreadySold
		}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	cp := *s
	m.sales[s.ID] = &cp
	return nil
}

func (m *memStore) UpdateSale(_ context.Context, s *model.VehicleSale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sales[s.ID] = &cp
	return nil
}

func (m *memStore) AppendStatusHistory(_ context.Context, h *model.VehicleStatusHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *h)
	return nil
}

func (m *memStore) ListStatusHistory(_ context.Context, vehicleID string) ([]model.VehicleStatusHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.VehicleStatusHistory
	for _, h := range m.history {
		if h.VehicleID == vehicleID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memStore) CustomerExists(_ context.Context, storeID, customerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[customerID]
	return ok && c.StoreID == storeID, nil
}

func (m *memStore) LeadExists(_ context.Context, storeID, leadID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sid, ok := m.leads[leadID]
	return ok && sid == storeID, nil
}

func (m *memStore) MarkCustomerPurchased(_ context.Context, storeID, customerID, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.customers[customerID]; ok && c.StoreID == storeID {
		c.Status = model.CustomerStatusPurchased
	}
	m.notes = append(m.notes, model.CustomerNote{
		StoreID:    storeID,
		CustomerID: customerID,
		Body:       note,
		System:     true,
	})
	return nil
}

func (m *memStore) historyFor(vehicleID string) []model.VehicleStatusHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.VehicleStatusHistory
	for _, h := range m.history {
		if h.VehicleID == vehicleID {
			out = append(out, h)
		}
	}
	return out
}

const (
	storeA = "store-a"
	storeB = "store-b"
	userU1 = "user-1"
	userU2 = "user-2"
)

func newTestEngine(t *testing.T) (*Engine, *memStore) {
	t.Helper()
	store := newMemStore()
	engine := NewEngine(store, nil, nil, nil)
	return engine, store
}

func seedVehicle(store *memStore, storeID string, status model.VehicleStatus) *model.Vehicle {
	v := &model.Vehicle{
		ID:       uuid.NewString(),
		PublicID: uuid.NewString(),
		StoreID:  storeID,
		Title:    "Test Vehicle",
		Status:   status,
	}
	store.vehicles[v.ID] = v
	return v
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	engine, store := newTestEngine(t)
	v := seedVehicle(store, storeA, model.VehicleAvailable)
	ctx := context.Background()

	res, err := engine.Reserve(ctx, storeA, userU1, v.ID, ReserveInput{Notes: "test drive"})
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if res.ReservedByID != userU1 {
		t.Errorf("expected holder %s, got %s", userU1, res.ReservedByID)
	}
	if got := store.vehicles[v.ID].Status; got != model.VehicleReserved {
		t.Errorf("expected status RESERVED, got %s", got)
	}

	if err := engine.Release(ctx, storeA, userU1, v.ID); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if got := store.vehicles[v.ID].Status; got != model.VehicleAvailable {
		t.Errorf("expected status AVAILABLE, got %s", got)
	}
	if len(store.reservations) != 0 {
		t.Errorf("expected 0 reservations, got %d", len(store.reservations))
	}

	history := store.historyFor(v.ID)
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
	if history[0].ToStatus != model.VehicleReserved || history[1].ToStatus != model.VehicleAvailable {
		t.Errorf("unexpected transitions: %s then %s", history[0].ToStatus, history[1].ToStatus)
	}
}

func TestReserveGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("sold vehicle", func(t *testing.T) {
		engine, store := newTestEngine(t)
		v := seedVehicle(store, storeA, model.VehicleSold)
		if _, err := engine.Reserve(ctx, storeA, userU1, v.ID, ReserveInput{}); !errors.Is(err, ErrAlreadySold) {
			t.Errorf("expected ErrAlreadySold, got %v", err)
		}
	})

	t.Run("archived vehicle", func(t *testing.T) {
		engine, store := newTestEngine(t)
		v := seedVehicle(store, storeA, model.VehicleArchived)
		if _, err := engine.Reserve(ctx, storeA, userU1, v.ID, ReserveInput{}); !errors.Is(err, ErrVehicleArchived) {
			t.Errorf("expected ErrVehicleArchived, got %v", err)
		}
	})

	t.Run("active reservation", func(t *testing.T) {
		engine, store := newTestEngine(t)
		v := seedVehicle(store, storeA, model.VehicleAvailable)
		if _, err := engine.Reserve(ctx, storeA, userU1, v.ID, ReserveInput{}); err != nil {
			t.Fatalf("first reserve failed: %v", err)
		}
		if _, err := engine.Reserve(ctx, storeA, userU2, v.ID, ReserveInput{}); !errors.Is(err, ErrAlreadyReserved) {
			t.Errorf("expected ErrAlreadyReserved, got %v", err)
		}
	})

	t.Run("vehicle in another store reports not found", func(t *testing.T) {
		engine, store := newTestEngine(t)
		v := seedVehicle(store, storeB, model.VehicleAvailable)
		if _, err := engine.Reserve(ctx, storeA, userU1, v.ID, ReserveInput{}); !errors.Is(err, ErrVehicleNotFound) {
			t.Errorf("expected ErrVehicleNotFound, got %v", err)
		}
	})

	t.Run("customer outside store", func(t *testing.T) {
		engine, store := newTestEngine(t)
		v := seedVehicle(store, storeA, model.VehicleAvailable)
		store.customers["c1"] = &model.Customer{ID: "c1", StoreID: storeB}
		customerID := "c1"
		if _, err := engine.Reserve(ctx, storeA, userU1, v.ID, ReserveInput{CustomerID: &customerID}); !errors.Is(err, ErrCustomerNotInStore) {
			t.Errorf("expected ErrCustomerNotInStore, got %v", err)
		}
	})
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	engine, store := newTestEngine(t)
	v := seedVehicle(store, storeA, model.VehicleAvailable)
	ctx := context.Background()

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins, conflicts int

	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(n int) {
			defer wg.Done()
			_, err := engine.Reserve(ctx, storeA, fmt.Sprintf("user-%d", n), v.ID, ReserveInput{})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAlreadyReserved):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly 1 winner, got %d", wins)
	}
	if conflicts != attempts-1 {
		t.Errorf("expected %d conflicts, got %d", attempts-1, conflicts)
	}
	if len(store.reservations) != 1 {
		t.Errorf("expected exactly 1 reservation, got %d", len(store.reservations))
	}
	if got := store.vehicles[v.ID].Status; got != model.VehicleReserved {
		t.Errorf("expected status RESERVED, got %s", got)
	}
	if rows := len(store.historyFor(v.ID)); rows != 1 {
		t.Errorf("expected 1 history row, got %d", rows)
	}
}

func TestReserveFreesExpiredReservation(t *testing.T) {
	engine, store := newTestEngine(t)
	v := seedVehicle(store, storeA, model.VehicleAvailable)
	ctx := context.Background()

	past := time.Now().Add(-1 * time.Hour)
	if _, err := engine.Reserve(ctx, storeA, userU1, v.ID, ReserveInput{ExpiresAt: &past}); err != nil {
		t.Fatalf("reserve with past expiry failed: %v", err)
	}

	// The only blocker is a stale expired reservation; a new attempt must
	// reconcile it away and succeed instead of conflicting.
	future := time.Now().Add(2 * time.Hour)
	res, err := engine.Reserve(ctx, storeA, userU2, v.ID, ReserveInput{ExpiresAt: &future})
	if err != nil {
		t.Fatalf("expected second reserve to succeed after reconcile, got %v", err)
	}
	if res.ReservedByID != userU2 {
		t.Errorf("expected new holder %s, got %s", userU2, res.ReservedByID)
	}
	if len(store.reservations) != 1 {
		t.Errorf("expected exactly 1 reservation, got %d", len(store.reservations))
	}

	history := store.historyFor(v.ID)
	// AVAILABLE->RESERVED, RESERVED->AVAILABLE (reconcile), AVAILABLE->RESERVED
	if len(history) != 3 {
		t.Fatalf("expected 3 history rows, got %d", len(history))
	}
	if history[1].FromStatus != model.VehicleReserved || history[1].ToStatus != model.VehicleAvailable {
		t.Errorf("expected reconcile transition RESERVED->AVAILABLE, got %s->%s",
			history[1].FromStatus, history[1].ToStatus)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	engine, store := newTestEngine(t)
	v := seedVehicle(store, storeA, model.VehicleAvailable)
	ctx := context.Background()

	past := time.Now().Add(-1 * time.Minute)
	if _, err := engine.Reserve(ctx, storeA, userU1, v.ID, ReserveInput{ExpiresAt: &past}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	cleaned, err := engine.Reconcile(ctx, storeA, v.ID, userU1)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !cleaned {
		t.Fatal("expected first reconcile to clean the expired reservation")
	}
	rows := len(store.historyFor(v.ID))

	// A second pass on an already-reconciled vehicle is a no-op.
	cleaned, err = engine.Reconcile(ctx, storeA, v.ID, userU1)
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if cleaned {
		t.Error("expected second reconcile to be a no-op")
	}
	if got := len(store.historyFor(v.ID)); got != rows {
		t.Errorf("expected no additional history rows, had %d now %d", rows, got)
	}
	if got := store.vehicles[v.ID].Status; got != model.VehicleAvailable {
		t.Errorf("expected status AVAILABLE, got %s", got)
	}
}

func TestSellReservedVehicle(t *testing.T) {
	engine, store := newTestEngine(t)
	v := seedVehicle(store, storeA, model.VehicleAvailable)
	ctx := context.Background()

	if _, err := engine.Reserve(ctx, storeA, userU1, v.ID, ReserveInput{}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// A different member of the same store closes the deal.
	sale, err := engine.Sell(ctx, storeA, userU2, SellInput{VehicleID: v.ID})
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	if sale.SoldByID != userU2 {
		t.Errorf("expected sold-by %s, got %s", userU2, sale.SoldByID)
	}
	if got := store.vehicles[v.ID].Status; got != model.VehicleSold {
		t.Errorf("expected status SOLD, got %s", got)
	}
	if store.vehicles[v.ID].IsPublished {
		t.Error("expected vehicle to be unpublished on sale")
	}
	if len(store.reservations) != 0 {
		t.Errorf("expected reservation to be removed, got %d", len(store.reservations))
	}
	if len(store.sales) != 1 {
		t.Errorf("expected exactly 1 sale, got %d", len(store.sales))
	}
}

func TestSellGuards(t *testing.T) {
	engine, store := newTestEngine(t)
	v := seedVehicle(store, storeA, model.VehicleSold)
	ctx := context.Background()

	before := len(store.historyFor(v.ID))
	if _, err := engine.Sell(ctx, storeA, userU1, SellInput{VehicleID: v.ID}); !errors.Is(err, ErrAlreadySold) {
		t.Errorf("expected ErrAlreadySold, got %v", err)
	}
	if got := len(store.historyFor(v.ID)); got != before {
		t.Errorf("failed sell must not write history, had %d now %d", before, got)
	}

	archived := seedVehicle(store, storeA, model.VehicleArchived)
	if _, err := engine.Sell(ctx, storeA, userU1, SellInput{VehicleID: archived.ID}); !errors.Is(err, ErrVehicleArchived) {
		t.Errorf("expected ErrVehicleArchived, got %v", err)
	}
}

func TestSellMarksCustomerPurchased(t *testing.T) {
	engine, store := newTestEngine(t)
	v := seedVehicle(store, storeA, model.VehicleAvailable)
	store.customers["c1"] = &model.Customer{ID: "c1", StoreID: storeA, Status: model.CustomerStatusProspect}
	ctx := context.Background()

	customerID := "c1"
	if _, err := engine.Sell(ctx, storeA, userU1, SellInput{VehicleID: v.ID, CustomerID: &customerID}); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	if got := store.customers["c1"].Status; got != model.CustomerStatusPurchased {
		t.Errorf("expected customer status PURCHASED, got %s", got)
	}
	if len(store.notes) != 1 || !store.notes[0].System {
		t.Errorf("expected one system note on the customer, got %+v", store.notes)
	}
}

func TestArchive(t *testing.T) {
	engine, store := newTestEngine(t)
	v := seedVehicle(store, storeA, model.VehicleAvailable)
	v.IsPublished = true
	ctx := context.Background()

	if _, err := engine.Reserve(ctx, storeA, userU1, v.ID, ReserveInput{}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	if err := engine.Archive(ctx, storeA, userU1, v.ID); err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	if got := store.vehicles[v.ID].Status; got != model.VehicleArchived {
		t.Errorf("expected status ARCHIVED, got %s", got)
	}
	if store.vehicles[v.ID].IsPublished {
		t.Error("expected archive to clear the published flag")
	}
	if len(store.reservations) != 0 {
		t.Errorf("expected reservation to be removed, got %d", len(store.reservations))
	}

	if err := engine.Archive(ctx, storeA, userU1, v.ID); !errors.Is(err, ErrVehicleArchived) {
		t.Errorf("expected ErrVehicleArchived on double archive, got %v", err)
	}
}

func TestUpdateSaleLock(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Engine, *memStore, string) {
		engine, store := newTestEngine(t)
		v := seedVehicle(store, storeA, model.VehicleAvailable)
		sale, err := engine.Sell(ctx, storeA, userU1, SellInput{VehicleID: v.ID})
		if err != nil {
			t.Fatalf("sell failed: %v", err)
		}
		return engine, store, sale.ID
	}

	notes := "corrected paperwork"

	t.Run("without override capability", func(t *testing.T) {
		engine, _, saleID := setup(t)
		actor := Actor{ID: userU2, Caps: permission.NewSet(permission.SalesUpdate)}
		if _, err := engine.UpdateSale(ctx, storeA, actor, saleID, SaleUpdate{Notes: &notes}); !errors.Is(err, ErrSaleLocked) {
			t.Errorf("expected ErrSaleLocked, got %v", err)
		}
	})

	t.Run("with override capability", func(t *testing.T) {
		engine, store, saleID := setup(t)
		actor := Actor{ID: userU2, Caps: permission.NewSet(permission.SalesOverrideClosed)}
		if _, err := engine.UpdateSale(ctx, storeA, actor, saleID, SaleUpdate{Notes: &notes}); err != nil {
			t.Fatalf("expected override to succeed, got %v", err)
		}
		if store.sales[saleID].Notes != notes {
			t.Errorf("expected notes to be updated")
		}
	})

	t.Run("super-admin", func(t *testing.T) {
		engine, _, saleID := setup(t)
		actor := Actor{ID: userU2, SuperAdmin: true}
		if _, err := engine.UpdateSale(ctx, storeA, actor, saleID, SaleUpdate{Notes: &notes}); err != nil {
			t.Fatalf("expected super-admin update to succeed, got %v", err)
		}
	})
}

func TestReleaseGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("no reservation", func(t *testing.T) {
		engine, store := newTestEngine(t)
		v := seedVehicle(store, storeA, model.VehicleAvailable)
		if err := engine.Release(ctx, storeA, userU1, v.ID); !errors.Is(err, ErrReservationNotFound) {
			t.Errorf("expected ErrReservationNotFound, got %v", err)
		}
	})

	t.Run("sold vehicle keeps status", func(t *testing.T) {
		engine, store := newTestEngine(t)
		v := seedVehicle(store, storeA, model.VehicleSold)
		store.reservations[v.ID] = &model.VehicleReservation{
			ID: "r1", StoreID: storeA, VehicleID: v.ID, ReservedByID: userU1,
		}
		if err := engine.Release(ctx, storeA, userU1, v.ID); err != nil {
			t.Fatalf("release failed: %v", err)
		}
		if got := store.vehicles[v.ID].Status; got != model.VehicleSold {
			t.Errorf("release must not revert a SOLD vehicle, got %s", got)
		}
		if len(store.reservations) != 0 {
			t.Errorf("expected reservation to be removed")
		}
	})
}

func TestGetReservationReconciles(t *testing.T) {
	engine, store := newTestEngine(t)
	v := seedVehicle(store, storeA, model.VehicleAvailable)
	ctx := context.Background()

	past := time.Now().Add(-1 * time.Minute)
	if _, err := engine.Reserve(ctx, storeA, userU1, v.ID, ReserveInput{ExpiresAt: &past}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	res, err := engine.GetReservation(ctx, storeA, userU1, v.ID)
	if err != nil {
		t.Fatalf("get reservation failed: %v", err)
	}
	if res != nil {
		t.Errorf("expected expired reservation to be reconciled away, got %+v", res)
	}
	if got := store.vehicles[v.ID].Status; got != model.VehicleAvailable {
		t.Errorf("expected status AVAILABLE after reconcile, got %s", got)
	}
}
