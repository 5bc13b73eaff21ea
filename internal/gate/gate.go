package gate

import (
	"context"
	"time"

	"github.com/cenamoradol/crm-autolote-backend/internal/apperr"
	"github.com/cenamoradol/crm-autolote-backend/internal/permission"
	"github.com/cenamoradol/crm-autolote-backend/internal/tenant"
)

// Identity is the authenticated caller, as resolved from the bearer token.
type Identity struct {
	UserID     string
	Email      string
	SuperAdmin bool
}

// Grant is a successful authorization: the bound store scope and the
// capability set available to the caller for this request.
type Grant struct {
	StoreID      string
	SuperAdmin   bool
	Capabilities permission.Set
}

// Can reports whether the grant covers at least one of the permissions.
func (g *Grant) Can(required ...permission.Permission) bool {
	if g.SuperAdmin {
		return true
	}
	return g.Capabilities.HasAny(required...)
}

// MembershipResolver yields the effective capability set for a user in a
// store.
type MembershipResolver interface {
	Effective(ctx context.Context, userID, storeID string) (permission.Set, bool, error)
}

// LicenseStore checks whether a store holds a live license. EnsureActive
// lazily flips lapsed ACTIVE subscriptions to EXPIRED before checking, so
// the licensing state self-heals without a background job.
type LicenseStore interface {
	EnsureActive(ctx context.Context, storeID string, now time.Time) (bool, error)
}

// Gate authorizes an operation by composing the resolved tenant context, the
// caller's membership, and the store's license status.
type Gate struct {
	memberships MembershipResolver
	licenses    LicenseStore
	now         func() time.Time
}

// New creates an access gate.
func New(memberships MembershipResolver, licenses LicenseStore) *Gate {
	return &Gate{
		memberships: memberships,
		licenses:    licenses,
		now:         time.Now,
	}
}

// Authorize binds the request to a store and verifies the caller may perform
// the operation. required uses OR semantics: holding any one of the listed
// permissions is enough. mutating additionally applies license gating.
//
// The super-admin bypass lives here and only here, so the bypass stays
// auditable in one place.
func (g *Gate) Authorize(ctx context.Context, id Identity, tc *tenant.Context, storeSelector string, required []permission.Permission, mutating bool) (*Grant, error) {
	if tc == nil || tc.Mode == tenant.ModeUnknown {
		return nil, apperr.Unauthorized("HOST_UNKNOWN", "host does not resolve to a known domain")
	}
	if id.UserID == "" {
		return nil, apperr.Unauthorized("UNAUTHORIZED", "authentication required")
	}

	var storeID string
	switch tc.Mode {
	case tenant.ModeTenant:
		storeID = tc.Store.ID
	case tenant.ModeMaster:
		// Super-admin only. The check precedes the selector requirement so
		// an unprivileged caller fails closed with the same error whether or
		// not they sent the header.
		if !id.SuperAdmin {
			return nil, apperr.Forbidden("MASTER_FORBIDDEN", "master domain access requires super-admin")
		}
		if storeSelector == "" {
			return nil, apperr.Invalid("STORE_REQUIRED", "x-store-id header is required on the master domain")
		}
		storeID = storeSelector
	}

	if id.SuperAdmin {
		return &Grant{
			StoreID:      storeID,
			SuperAdmin:   true,
			Capabilities: permission.NewSet(),
		}, nil
	}

	caps, member, err := g.memberships.Effective(ctx, id.UserID, storeID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.Forbidden("STORE_FORBIDDEN", "no membership in this store")
	}

	if !caps.HasAny(required...) {
		return nil, apperr.Forbidden("FORBIDDEN", "missing required permission")
	}

	if mutating {
		active, err := g.licenses.EnsureActive(ctx, storeID, g.now())
		if err != nil {
			return nil, err
		}
		if !active {
			return nil, apperr.ReadOnly("LICENSE_EXPIRED", "store license has lapsed; account is read-only")
		}
	}

	return &Grant{
		StoreID:      storeID,
		Capabilities: caps,
	}, nil
}
