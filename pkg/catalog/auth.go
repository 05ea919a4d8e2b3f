package catalog

import (
	"context"
	"strings"
)

// Caller identifies whoever invoked an operation.
type Caller struct {
	Subject string
	Email   string
	Roles   []string
}

// HasRole reports whether the caller carries role.
func (c Caller) HasRole(role string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type callerKey struct{}

// WithCaller returns a context carrying caller
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller stored in ctx, if any
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(Caller)
	return caller, ok
}

// RoleAdmin is the role claim that admits a caller regardless of the
// configured subject list.
const RoleAdmin = "admin"

// AdminGate admits callers listed by subject or email, or carrying RoleAdmin.
type AdminGate struct {
	admins map[string]struct{}
}

// NewAdminGate creates a gate for the given subjects or emails
func NewAdminGate(subjects ...string) *AdminGate {
	g := &AdminGate{admins: make(map[string]struct{}, len(subjects))}
	for _, s := range subjects {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			g.admins[s] = struct{}{}
		}
	}
	return g
}

// Authorize implements Authorizer
func (g *AdminGate) Authorize(ctx context.Context) error {
	caller, ok := CallerFromContext(ctx)
	if !ok || (caller.Subject == "" && caller.Email == "") {
		return &AuthorizationError{Err: ErrUnauthenticated}
	}
	if caller.HasRole(RoleAdmin) {
		return nil
	}
	for _, id := range []string{caller.Subject, caller.Email} {
		if _, ok := g.admins[strings.ToLower(id)]; ok && id != "" {
			return nil
		}
	}
	return &AuthorizationError{Subject: caller.Subject, Err: ErrForbidden}
}

type allowAll struct{}

// AllowAll returns an Authorizer that admits every caller. Intended for
// tests and local tooling.
func AllowAll() Authorizer {
	return allowAll{}
}

func (allowAll) Authorize(context.Context) error { return nil }

type denyAll struct{}

func (denyAll) Authorize(ctx context.Context) error {
	caller, _ := CallerFromContext(ctx)
	return &AuthorizationError{Subject: caller.Subject, Err: ErrForbidden}
}
