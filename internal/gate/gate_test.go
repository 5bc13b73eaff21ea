package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenamoradol/crm-autolote-backend/internal/apperr"
	"github.com/cenamoradol/crm-autolote-backend/internal/permission"
	"github.com/cenamoradol/crm-autolote-backend/internal/tenant"
)

type fakeMemberships struct {
	caps  map[string]permission.Set // userID|storeID
	calls int
}

func (f *fakeMemberships) Effective(_ context.Context, userID, storeID string) (permission.Set, bool, error) {
	f.calls++
	caps, ok := f.caps[userID+"|"+storeID]
	if !ok {
		return permission.NewSet(), false, nil
	}
	return caps, true, nil
}

type fakeLicenses struct {
	active map[string]bool
	calls  int
}

func (f *fakeLicenses) EnsureActive(_ context.Context, storeID string, _ time.Time) (bool, error) {
	f.calls++
	return f.active[storeID], nil
}

var (
	tenantCtx = &tenant.Context{
		Mode:  tenant.ModeTenant,
		Host:  "autos-perez.com",
		Store: &tenant.StoreRef{ID: "s1", Name: "Autos Perez", Slug: "autos-perez"},
	}
	masterCtx  = &tenant.Context{Mode: tenant.ModeMaster, Host: "admin.crm.example"}
	unknownCtx = &tenant.Context{Mode: tenant.ModeUnknown, Host: "nobody.example"}

	seller     = Identity{UserID: "u1", Email: "seller@example.com"}
	superAdmin = Identity{UserID: "root", Email: "root@example.com", SuperAdmin: true}
)

func newGate(caps map[string]permission.Set, active map[string]bool) (*Gate, *fakeMemberships, *fakeLicenses) {
	m := &fakeMemberships{caps: caps}
	l := &fakeLicenses{active: active}
	return New(m, l), m, l
}

func wantCode(t *testing.T, err error, kind apperr.Kind, code string) {
	t.Helper()
	if apperr.KindOf(err) != kind || apperr.CodeOf(err) != code {
		t.Errorf("expected %v/%s, got kind=%v code=%s err=%v",
			kind, code, apperr.KindOf(err), apperr.CodeOf(err), err)
	}
}

func TestAuthorizeUnknownHost(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newGate(nil, nil)

	// An unresolved host fails closed for everyone, super-admins included.
	for name, id := range map[string]Identity{"member": seller, "super-admin": superAdmin} {
		t.Run(name, func(t *testing.T) {
			_, err := g.Authorize(ctx, id, unknownCtx, "", nil, false)
			wantCode(t, err, apperr.KindUnauthorized, "HOST_UNKNOWN")
		})
	}

	t.Run("nil context", func(t *testing.T) {
		_, err := g.Authorize(ctx, seller, nil, "", nil, false)
		wantCode(t, err, apperr.KindUnauthorized, "HOST_UNKNOWN")
	})
}

func TestAuthorizeRequiresIdentity(t *testing.T) {
	g, _, _ := newGate(nil, nil)
	_, err := g.Authorize(context.Background(), Identity{}, tenantCtx, "", nil, false)
	wantCode(t, err, apperr.KindUnauthorized, "UNAUTHORIZED")
}

func TestAuthorizeMembership(t *testing.T) {
	ctx := context.Background()
	required := []permission.Permission{permission.InventoryRead}

	t.Run("member with permission", func(t *testing.T) {
		g, _, _ := newGate(map[string]permission.Set{
			"u1|s1": permission.NewSet(permission.InventoryRead),
		}, map[string]bool{"s1": true})

		grant, err := g.Authorize(ctx, seller, tenantCtx, "", required, false)
		if err != nil {
			t.Fatalf("authorize failed: %v", err)
		}
		if grant.StoreID != "s1" || grant.SuperAdmin {
			t.Errorf("unexpected grant %+v", grant)
		}
	})

	t.Run("non-member", func(t *testing.T) {
		g, _, _ := newGate(nil, nil)
		_, err := g.Authorize(ctx, seller, tenantCtx, "", required, false)
		wantCode(t, err, apperr.KindForbidden, "STORE_FORBIDDEN")
	})

	t.Run("member without permission", func(t *testing.T) {
		g, _, _ := newGate(map[string]permission.Set{
			"u1|s1": permission.NewSet(permission.SalesRead),
		}, nil)
		_, err := g.Authorize(ctx, seller, tenantCtx, "", required, false)
		wantCode(t, err, apperr.KindForbidden, "FORBIDDEN")
	})

	t.Run("or semantics across required permissions", func(t *testing.T) {
		g, _, _ := newGate(map[string]permission.Set{
			"u1|s1": permission.NewSet(permission.SalesOverrideClosed),
		}, map[string]bool{"s1": true})

		_, err := g.Authorize(ctx, seller, tenantCtx, "",
			[]permission.Permission{permission.SalesUpdate, permission.SalesOverrideClosed}, false)
		if err != nil {
			t.Fatalf("expected any one required permission to suffice, got %v", err)
		}
	})
}

func TestAuthorizeSuperAdmin(t *testing.T) {
	ctx := context.Background()
	g, memberships, licenses := newGate(nil, nil)

	grant, err := g.Authorize(ctx, superAdmin, tenantCtx, "",
		[]permission.Permission{permission.MembersManage}, true)
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if !grant.SuperAdmin {
		t.Error("expected super-admin grant")
	}
	if !grant.Can(permission.MembersManage) {
		t.Error("super-admin grant must cover any permission")
	}
	if memberships.calls != 0 {
		t.Error("super-admin must not require a membership lookup")
	}
	if licenses.calls != 0 {
		t.Error("super-admin bypasses license gating")
	}
}

func TestAuthorizeMasterMode(t *testing.T) {
	ctx := context.Background()

	t.Run("selector required for super-admin", func(t *testing.T) {
		g, _, _ := newGate(nil, nil)
		_, err := g.Authorize(ctx, superAdmin, masterCtx, "", nil, false)
		wantCode(t, err, apperr.KindInvalid, "STORE_REQUIRED")
	})

	t.Run("super-admin with selector", func(t *testing.T) {
		g, _, _ := newGate(nil, nil)
		grant, err := g.Authorize(ctx, superAdmin, masterCtx, "s2", nil, false)
		if err != nil {
			t.Fatalf("authorize failed: %v", err)
		}
		if grant.StoreID != "s2" {
			t.Errorf("expected selected store s2, got %s", grant.StoreID)
		}
	})

	t.Run("regular user rejected even with membership", func(t *testing.T) {
		g, _, _ := newGate(map[string]permission.Set{
			"u1|s1": permission.NewSet(permission.InventoryRead),
		}, nil)
		_, err := g.Authorize(ctx, seller, masterCtx, "s1", nil, false)
		wantCode(t, err, apperr.KindForbidden, "MASTER_FORBIDDEN")
	})

	t.Run("regular user rejected uniformly without selector", func(t *testing.T) {
		// The same error whether or not the caller guessed the header.
		g, _, _ := newGate(nil, nil)
		_, err := g.Authorize(ctx, seller, masterCtx, "", nil, false)
		wantCode(t, err, apperr.KindForbidden, "MASTER_FORBIDDEN")
	})
}

func TestAuthorizeLicenseGating(t *testing.T) {
	ctx := context.Background()
	caps := map[string]permission.Set{
		"u1|s1": permission.NewSet(permission.InventoryUpdate),
	}
	required := []permission.Permission{permission.InventoryUpdate}

	t.Run("lapsed license blocks mutations", func(t *testing.T) {
		g, _, _ := newGate(caps, map[string]bool{"s1": false})
		_, err := g.Authorize(ctx, seller, tenantCtx, "", required, true)
		wantCode(t, err, apperr.KindReadOnly, "LICENSE_EXPIRED")
		if apperr.HTTPStatus(err) != 403 {
			t.Errorf("expected read-only errors to map to 403, got %d", apperr.HTTPStatus(err))
		}
	})

	t.Run("lapsed license still allows reads", func(t *testing.T) {
		g, _, licenses := newGate(caps, map[string]bool{"s1": false})
		if _, err := g.Authorize(ctx, seller, tenantCtx, "", required, false); err != nil {
			t.Fatalf("read should not be license gated: %v", err)
		}
		if licenses.calls != 0 {
			t.Error("reads must not consult the license store")
		}
	})

	t.Run("active license allows mutations", func(t *testing.T) {
		g, _, _ := newGate(caps, map[string]bool{"s1": true})
		if _, err := g.Authorize(ctx, seller, tenantCtx, "", required, true); err != nil {
			t.Fatalf("authorize failed: %v", err)
		}
	})
}

func TestGrantCan(t *testing.T) {
	grant := &Grant{Capabilities: permission.NewSet(permission.SalesRead)}
	if !grant.Can(permission.SalesRead) {
		t.Error("expected held permission to pass")
	}
	if grant.Can(permission.SalesUpdate) {
		t.Error("expected missing permission to fail")
	}
	if !errors.Is(apperr.Forbidden("X", "x"), apperr.Forbidden("X", "other message")) {
		t.Error("expected errors with equal kind and code to match")
	}
}
