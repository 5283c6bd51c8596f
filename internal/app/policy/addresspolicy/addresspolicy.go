// internal/app/policy/addresspolicy/addresspolicy.go
package addresspolicy

import (
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/apperr"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auth"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
)

// CanRead reports whether p may list and read addresses of its group.
// Members of the default group see nothing.
func CanRead(p auth.Principal) error {
	if p.InDefaultGroup() {
		return apperr.Unauthorized("join a group to access addresses")
	}
	return nil
}

// CanCreate reports whether p may register a new address.
func CanCreate(p auth.Principal) error {
	return CanRead(p)
}

// CanView reports whether p may see a. Addresses of other groups are
// reported as missing.
func CanView(p auth.Principal, a models.Address) error {
	if err := CanRead(p); err != nil {
		return err
	}
	if a.Group != p.Group {
		return apperr.NotFound("address")
	}
	return nil
}

// CanUpdate reports whether p may edit a.
func CanUpdate(p auth.Principal, a models.Address) error {
	return CanView(p, a)
}

// CanDelete reports whether p may delete a: same group, and an
// administrator or supervisor.
func CanDelete(p auth.Principal, a models.Address) error {
	if err := CanView(p, a); err != nil {
		return err
	}
	if !p.IsAdmin && !p.IsSS {
		return apperr.Unauthorized("only administrators can delete addresses")
	}
	return nil
}
