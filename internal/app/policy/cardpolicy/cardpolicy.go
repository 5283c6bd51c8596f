// internal/app/policy/cardpolicy/cardpolicy.go
package cardpolicy

import (
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/apperr"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auth"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
)

// CanRead reports whether p may see the cards of its group.
func CanRead(p auth.Principal) error {
	if p.InDefaultGroup() {
		return apperr.Unauthorized("join a group to access cards")
	}
	return nil
}

// CanView reports whether p may see c. Cards of other groups are reported
// as missing.
func CanView(p auth.Principal, c models.Card) error {
	if err := CanRead(p); err != nil {
		return err
	}
	if c.Group != p.Group {
		return apperr.NotFound("card")
	}
	return nil
}

// CanCreate reports whether p may create cards. Only supervisors can.
func CanCreate(p auth.Principal) error {
	if err := CanRead(p); err != nil {
		return err
	}
	if !p.IsSS {
		return apperr.Unauthorized("only supervisors can create cards")
	}
	return nil
}

// CanDelete reports whether p may delete c.
func CanDelete(p auth.Principal, c models.Card) error {
	if err := CanView(p, c); err != nil {
		return err
	}
	if !p.IsSS {
		return apperr.Unauthorized("only supervisors can delete cards")
	}
	return nil
}

// CanManageAny reports whether p may assign, return or edit cards of its
// group at all.
func CanManageAny(p auth.Principal) error {
	if err := CanRead(p); err != nil {
		return err
	}
	if !p.CanManageCards() {
		return apperr.Unauthorized("not allowed to manage cards")
	}
	return nil
}

// CanManage reports whether p may assign, return or edit c.
func CanManage(p auth.Principal, c models.Card) error {
	if err := CanManageAny(p); err != nil {
		return err
	}
	return CanView(p, c)
}

// CanAssignTo reports whether cards of p's group may be handed to target.
func CanAssignTo(p auth.Principal, target models.User) error {
	if target.Group != p.Group || target.InDefaultGroup() {
		return apperr.NotFound("user")
	}
	return nil
}

// CanComment reports whether p may leave a comment on c.
func CanComment(p auth.Principal, c models.Card) error {
	return CanView(p, c)
}
