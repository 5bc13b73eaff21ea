package permission

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Permission is a (resource module, action) pair. Authorization is a set
// membership test over these pairs, not a role hierarchy.
type Permission struct {
	Module string
	Action string
}

// String renders the canonical "module:action" form.
func (p Permission) String() string {
	return p.Module + ":" + p.Action
}

// Parse parses "module:action" into a Permission.
func Parse(s string) (Permission, error) {
	module, action, ok := strings.Cut(s, ":")
	if !ok || module == "" || action == "" {
		return Permission{}, fmt.Errorf("invalid permission %q", s)
	}
	return Permission{Module: module, Action: action}, nil
}

// MustParse is Parse for known-good literals.
func MustParse(s string) Permission {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Capabilities used by the core subsystem.
var (
	InventoryRead   = Permission{Module: "inventory", Action: "read"}
	InventoryCreate = Permission{Module: "inventory", Action: "create"}
	InventoryUpdate = Permission{Module: "inventory", Action: "update"}
	SalesRead       = Permission{Module: "sales", Action: "read"}
	SalesCreate     = Permission{Module: "sales", Action: "create"}
	SalesUpdate     = Permission{Module: "sales", Action: "update"}
	// SalesOverrideClosed allows mutating a COMPLETED sale.
	SalesOverrideClosed = Permission{Module: "sales", Action: "override_closed"}
	MembersManage       = Permission{Module: "members", Action: "manage"}
)

// Set is a capability set.
type Set map[Permission]struct{}

// NewSet builds a set from permissions.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Add inserts a permission.
func (s Set) Add(p Permission) {
	s[p] = struct{}{}
}

// Has reports whether the set contains the permission.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// HasAny reports whether the set contains at least one of the given
// permissions. An empty requirement list is satisfied trivially.
func (s Set) HasAny(required ...Permission) bool {
	if len(required) == 0 {
		return true
	}
	for _, p := range required {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// Merge unions other into s. Merging is additive only: there is no deny
// semantic in this model, so an override can widen a capability set but
// never narrow it.
func (s Set) Merge(other Set) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// Strings returns the sorted "module:action" forms, for responses and logs.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p.String())
	}
	sort.Strings(out)
	return out
}

// FromMap builds a set from the storage encoding: a map of resource module
// to action list, e.g. {"inventory": ["read", "update"]}.
func FromMap(m map[string][]string) Set {
	s := make(Set)
	for module, actions := range m {
		for _, action := range actions {
			if module == "" || action == "" {
				continue
			}
			s.Add(Permission{Module: module, Action: action})
		}
	}
	return s
}

// FromJSON parses the jsonb permissions column. An empty document yields an
// empty set.
func FromJSON(raw string) (Set, error) {
	if strings.TrimSpace(raw) == "" {
		return NewSet(), nil
	}
	var m map[string][]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("parse permissions json: %w", err)
	}
	return FromMap(m), nil
}

// ToJSON renders the storage encoding with sorted, deduplicated actions.
func (s Set) ToJSON() (string, error) {
	m := make(map[string][]string)
	for p := range s {
		m[p.Module] = append(m[p.Module], p.Action)
	}
	for module := range m {
		sort.Strings(m[module])
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
