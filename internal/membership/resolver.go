package membership

import (
	"context"

	"github.com/cenamoradol/crm-autolote-backend/internal/apperr"
	"github.com/cenamoradol/crm-autolote-backend/internal/model"
	"github.com/cenamoradol/crm-autolote-backend/internal/permission"
)

// Store is the persistence port for memberships.
type Store interface {
	// FindMembership returns the at-most-one membership for (user, store)
	// with its permission set loaded, or nil when the user is not a member.
	FindMembership(ctx context.Context, userID, storeID string) (*model.Membership, error)

	// ReplaceMembership deletes any prior membership rows for the pair and
	// inserts the given row, inside one transaction.
	ReplaceMembership(ctx context.Context, m *model.Membership) error

	// FindPermissionSet returns a store-scoped permission set, or nil.
	FindPermissionSet(ctx context.Context, storeID, setID string) (*model.PermissionSet, error)
}

// Resolver computes effective capability sets for (user, store) pairs.
type Resolver struct {
	store Store
}

// NewResolver creates a membership resolver.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Effective returns the effective permission set for the user in the store
// and whether a membership exists. No membership yields an empty set and
// found=false, not an error; the access gate decides whether that is fatal.
// The effective set is the union of the referenced permission set and the
// direct per-user overrides. Overrides are additive only.
func (r *Resolver) Effective(ctx context.Context, userID, storeID string) (permission.Set, bool, error) {
	m, err := r.store.FindMembership(ctx, userID, storeID)
	if err != nil {
		return nil, false, err
	}
	if m == nil {
		return permission.NewSet(), false, nil
	}

	caps := permission.NewSet()
	if m.PermissionSet != nil {
		setPerms, err := permission.FromJSON(m.PermissionSet.Permissions)
		if err != nil {
			return nil, false, apperr.Wrap(apperr.KindInternal, "PERMISSIONS_CORRUPT",
				"permission set document is not valid", err)
		}
		caps.Merge(setPerms)
	}

	direct, err := permission.FromJSON(m.Permissions)
	if err != nil {
		return nil, false, apperr.Wrap(apperr.KindInternal, "PERMISSIONS_CORRUPT",
			"membership permission overrides are not valid", err)
	}
	caps.Merge(direct)

	return caps, true, nil
}

// Assign replaces the user's membership in the store. The single-membership
// invariant is enforced here as an explicit replace, not as an application
// convention.
func (r *Resolver) Assign(ctx context.Context, userID, storeID string, permissionSetID *string, direct permission.Set) (*model.Membership, error) {
	if permissionSetID != nil {
		set, err := r.store.FindPermissionSet(ctx, storeID, *permissionSetID)
		if err != nil {
			return nil, err
		}
		if set == nil {
			return nil, apperr.NotFound("PERMISSION_SET_NOT_FOUND", "permission set does not exist in this store")
		}
	}

	raw, err := direct.ToJSON()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	m := &model.Membership{
		UserID:          userID,
		StoreID:         storeID,
		PermissionSetID: permissionSetID,
		Permissions:     raw,
	}
	if err := r.store.ReplaceMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}
