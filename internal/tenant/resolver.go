package tenant

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Mode classifies what a host name resolves to.
type Mode string

const (
	// ModeMaster is the administrative domain; no store is bound.
	ModeMaster Mode = "master"
	// ModeTenant is a host bound to an active store.
	ModeTenant Mode = "tenant"
	// ModeUnknown is an unbound host, an inactive store, or an empty host.
	ModeUnknown Mode = "unknown"
)

// StoreRef is the minimal store projection carried in a tenant context.
type StoreRef struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Slug    string  `json:"slug"`
	LogoURL *string `json:"logo_url,omitempty"`
}

// Context is the result of resolving an inbound host.
type Context struct {
	Mode  Mode      `json:"mode"`
	Host  string    `json:"host"`
	Store *StoreRef `json:"store,omitempty"`
}

// DomainStore looks up a domain binding. It returns nil when the host has no
// binding or the bound store is inactive; both resolve to ModeUnknown.
type DomainStore interface {
	FindActiveStoreByDomain(ctx context.Context, host string) (*StoreRef, error)
}

// Cache holds resolved contexts per normalized host for a short TTL. Entries
// are invalidated only by TTL expiry; domain bindings change rarely and the
// staleness window is small.
type Cache interface {
	Get(ctx context.Context, host string) (*Context, bool)
	Set(ctx context.Context, host string, value *Context, ttl time.Duration)
}

// Resolver maps an inbound host name to a tenant context.
type Resolver struct {
	domains DomainStore
	cache   Cache
	masters map[string]struct{}
	ttl     time.Duration
}

// NewResolver creates a resolver. masterDomains are normalized on the way in.
func NewResolver(domains DomainStore, cache Cache, masterDomains []string, ttl time.Duration) *Resolver {
	masters := make(map[string]struct{}, len(masterDomains))
	for _, d := range masterDomains {
		if h := NormalizeHost(d); h != "" {
			masters[h] = struct{}{}
		}
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Resolver{
		domains: domains,
		cache:   cache,
		masters: masters,
		ttl:     ttl,
	}
}

// Resolve determines the tenant context for a raw host header. An empty host
// resolves to ModeUnknown without error; callers decide whether that is
// fatal.
func (r *Resolver) Resolve(ctx context.Context, hostHeader string) (*Context, error) {
	host := NormalizeHost(hostHeader)
	if host == "" {
		return &Context{Mode: ModeUnknown, Host: ""}, nil
	}

	if cached, ok := r.cache.Get(ctx, host); ok {
		return cached, nil
	}

	if _, ok := r.masters[host]; ok {
		tc := &Context{Mode: ModeMaster, Host: host}
		r.cache.Set(ctx, host, tc, r.ttl)
		return tc, nil
	}

	store, err := r.domains.FindActiveStoreByDomain(ctx, host)
	if err != nil {
		return nil, err
	}

	tc := &Context{Mode: ModeUnknown, Host: host}
	if store != nil {
		tc = &Context{Mode: ModeTenant, Host: host, Store: store}
	}
	r.cache.Set(ctx, host, tc, r.ttl)
	return tc, nil
}

// NormalizeHost lowercases a host and strips a trailing port.
func NormalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndex(h, ":"); i >= 0 {
		port := h[i+1:]
		if port != "" && strings.Trim(port, "0123456789") == "" {
			h = h[:i]
		}
	}
	return h
}

// HostFromRequest extracts the effective host: the first X-Forwarded-Host
// value when present, the Host header otherwise.
func HostFromRequest(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-Host"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		return NormalizeHost(first)
	}
	return NormalizeHost(r.Host)
}
