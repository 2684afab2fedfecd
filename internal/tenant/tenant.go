// Package tenant carries identity/tenant context through every core
// operation as an explicit parameter, never a module-level global session.
package tenant

import "github.com/iaros/vintage-crm-core/internal/corerr"

// Identity is the caller context required by every core operation.
type Identity struct {
	TenantID int64
	CallerID string
}

// Validate rejects a missing tenant identity up front; cross-tenant
// rows are rejected by RequireTenant.
func (i Identity) Validate(op string) error {
	if i.TenantID == 0 {
		return corerr.New(corerr.Unauthenticated, op, "missing tenant identity")
	}
	return nil
}

// RequireTenant rejects access when the row's tenant does not match the
// caller's — cross-tenant reads are never legal.
func RequireTenant(op string, caller Identity, rowTenantID int64) error {
	if caller.TenantID != rowTenantID {
		return corerr.New(corerr.Unauthenticated, op, "cross-tenant access rejected")
	}
	return nil
}
