package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cenamoradol/crm-autolote-backend/internal/lifecycle"
	"github.com/cenamoradol/crm-autolote-backend/internal/model"
	"github.com/cenamoradol/crm-autolote-backend/internal/tenant"
	"gorm.io/gorm"
)

// GormStore implements the persistence ports of the lifecycle engine, the
// membership resolver, the tenant resolver, the access gate and the audit
// sink over a single gorm connection.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a gorm DB.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// InTx runs fn inside a database transaction. Nested calls reuse the
// surrounding transaction through gorm's savepoint support.
func (s *GormStore) InTx(ctx context.Context, fn func(tx lifecycle.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// --- vehicles ---

func (s *GormStore) CreateVehicle(ctx context.Context, v *model.Vehicle) error {
	return s.db.WithContext(ctx).Create(v).Error
}

func (s *GormStore) GetVehicle(ctx context.Context, storeID, vehicleID string) (*model.Vehicle, error) {
	var v model.Vehicle
	err := s.db.WithContext(ctx).
		Where("id = ? AND store_id = ?", vehicleID, storeID).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *GormStore) UpdateVehicle(ctx context.Context, v *model.Vehicle) error {
	return s.db.WithContext(ctx).Save(v).Error
}

// --- reservations ---

func (s *GormStore) GetReservation(ctx context.Context, storeID, vehicleID string) (*model.VehicleReservation, error) {
	var r model.VehicleReservation
	err := s.db.WithContext(ctx).
		Where("vehicle_id = ? AND store_id = ?", vehicleID, storeID).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *GormStore) CreateReservation(ctx context.Context, r *model.VehicleReservation) error {
	err := s.db.WithContext(ctx).Create(r).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Unique index on vehicle_id: the storage-level backstop for the
		// reserve race. The loser surfaces as a conflict.
		return lifecycle.ErrAlreadyReserved
	}
	return err
}

func (s *GormStore) DeleteReservation(ctx context.Context, storeID, reservationID string) error {
	return s.db.WithContext(ctx).
		Where("id = ? AND store_id = ?", reservationID, storeID).
		Delete(&model.VehicleReservation{}).Error
}

// --- sales ---

func (s *GormStore) GetSale(ctx context.Context, storeID, saleID string) (*model.VehicleSale, error) {
	var sale model.VehicleSale
	err := s.db.WithContext(ctx).
		Where("id = ? AND store_id = ?", saleID, storeID).
		First(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *GormStore) GetSaleByVehicle(ctx context.Context, storeID, vehicleID string) (*model.VehicleSale, error) {
	var sale model.VehicleSale
	err := s.db.WithContext(ctx).
		Where("vehicle_id = ? AND store_id = ?", vehicleID, storeID).
		First(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *GormStore) CreateSale(ctx context.Context, sale *model.VehicleSale) error {
	err := s.db.WithContext(ctx).Create(sale).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return lifecycle.ErrAlreadySold
	}
	return err
}

func (s *GormStore) UpdateSale(ctx context.Context, sale *model.VehicleSale) error {
	return s.db.WithContext(ctx).Save(sale).Error
}

// --- status history ---

func (s *GormStore) AppendStatusHistory(ctx context.Context, h *model.VehicleStatusHistory) error {
	return s.db.WithContext(ctx).Create(h).Error
}

func (s *GormStore) ListStatusHistory(ctx context.Context, vehicleID string) ([]model.VehicleStatusHistory, error) {
	var rows []model.VehicleStatusHistory
	err := s.db.WithContext(ctx).
		Where("vehicle_id = ?", vehicleID).
		Order("changed_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// --- customers and leads ---

func (s *GormStore) CustomerExists(ctx context.Context, storeID, customerID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Customer{}).
		Where("id = ? AND store_id = ?", customerID, storeID).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) LeadExists(ctx context.Context, storeID, leadID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Lead{}).
		Where("id = ? AND store_id = ?", leadID, storeID).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) MarkCustomerPurchased(ctx context.Context, storeID, customerID, note string) error {
	err := s.db.WithContext(ctx).Model(&model.Customer{}).
		Where("id = ? AND store_id = ?", customerID, storeID).
		Update("status", model.CustomerStatusPurchased).Error
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model.CustomerNote{
		StoreID:    storeID,
		CustomerID: customerID,
		Body:       note,
		System:     true,
	}).Error
}

// --- memberships ---

func (s *GormStore) FindMembership(ctx context.Context, userID, storeID string) (*model.Membership, error) {
	var m model.Membership
	err := s.db.WithContext(ctx).
		Preload("PermissionSet").
		Where("user_id = ? AND store_id = ?", userID, storeID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *GormStore) ReplaceMembership(ctx context.Context, m *model.Membership) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND store_id = ?", m.UserID, m.StoreID).
			Delete(&model.Membership{}).Error; err != nil {
			return err
		}
		return tx.Create(m).Error
	})
}

func (s *GormStore) FindPermissionSet(ctx context.Context, storeID, setID string) (*model.PermissionSet, error) {
	var set model.PermissionSet
	err := s.db.WithContext(ctx).
		Where("id = ? AND store_id = ?", setID, storeID).
		First(&set).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &set, nil
}

func (s *GormStore) ListPermissionSets(ctx context.Context, storeID string) ([]model.PermissionSet, error) {
	var sets []model.PermissionSet
	err := s.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("name asc").
		Find(&sets).Error
	if err != nil {
		return nil, err
	}
	return sets, nil
}

func (s *GormStore) SavePermissionSet(ctx context.Context, set *model.PermissionSet) error {
	return s.db.WithContext(ctx).Save(set).Error
}

func (s *GormStore) DeletePermissionSet(ctx context.Context, storeID, setID string) error {
	return s.db.WithContext(ctx).
		Where("id = ? AND store_id = ?", setID, storeID).
		Delete(&model.PermissionSet{}).Error
}

// --- tenant resolution ---

func (s *GormStore) FindActiveStoreByDomain(ctx context.Context, host string) (*tenant.StoreRef, error) {
	var d model.StoreDomain
	err := s.db.WithContext(ctx).
		Preload("Store").
		Where("domain = ?", host).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !d.Store.Active {
		return nil, nil
	}
	return &tenant.StoreRef{
		ID:      d.Store.ID,
		Name:    d.Store.Name,
		Slug:    d.Store.Slug,
		LogoURL: d.Store.LogoURL,
	}, nil
}

// --- licensing ---

// EnsureActive lazily flips lapsed ACTIVE subscriptions to EXPIRED, then
// reports whether a live ACTIVE subscription remains. The lapse and live
// decisions are the model predicates; this method only persists the flips.
func (s *GormStore) EnsureActive(ctx context.Context, storeID string, now time.Time) (bool, error) {
	var subs []model.StoreSubscription
	err := s.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Find(&subs).Error
	if err != nil {
		return false, err
	}

	live := false
	for i := range subs {
		sub := &subs[i]
		if sub.Lapsed(now) {
			if err := s.db.WithContext(ctx).Model(sub).
				Update("status", model.SubscriptionExpired).Error; err != nil {
				return false, err
			}
			sub.Status = model.SubscriptionExpired
		}
		if sub.Live(now) {
			live = true
		}
	}
	return live, nil
}

// --- users ---

func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).
		Where("email = ? AND active", email).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// --- audit ---

func (s *GormStore) WriteAuditEvent(ctx context.Context, e *model.AuditEvent) error {
	return s.db.WithContext(ctx).Create(e).Error
}
