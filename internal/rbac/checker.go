package rbac

import (
	"context"
	"strings"
)

// Checker answers permission questions against a role table. Permissions
// are "area:action" strings; a table entry may end in "*" to grant every
// action of an area, and a bare "*" grants everything.
type Checker struct {
	RolePermissions map[string][]string
}

// NewChecker uses the quiz roles in RolePermissions when rp is nil.
func NewChecker(rp map[string][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	return &Checker{RolePermissions: rp}
}

// Has reports whether role may perform perm. Unknown roles may do nothing.
func (c *Checker) Has(role, perm string) bool {
	for _, granted := range c.RolePermissions[role] {
		if grants(granted, perm) {
			return true
		}
	}
	return false
}

func grants(granted, perm string) bool {
	if granted == perm || granted == "*" {
		return true
	}
	area, ok := strings.CutSuffix(granted, "*")
	return ok && strings.HasPrefix(perm, area)
}

type roleKey struct{}

// WithRole stores the caller's role (user, admin or super-admin) for the
// Require gates further down the chain. auth.Middleware calls it once the
// bearer token is verified.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

// RoleFromContext returns "" for unauthenticated requests, which every gate
// rejects.
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey{}).(string)
	return role
}
