// internal/app/policy/userpolicy/userpolicy.go
package userpolicy

import (
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/apperr"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auth"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/normalize"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
)

// VisibleGroups returns the groups whose members p may list. Administrators
// also see the default group so they can recruit from it.
func VisibleGroups(p auth.Principal) ([]string, error) {
	if p.InDefaultGroup() {
		return nil, apperr.Unauthorized("join a group to list users")
	}
	if p.IsAdmin {
		return []string{p.Group, models.DefaultGroup}, nil
	}
	return []string{p.Group}, nil
}

// CanView reports whether p may read target: itself, or a member of the
// same (non-default) group.
func CanView(p auth.Principal, target models.User) error {
	if p.UserID == target.ID {
		return nil
	}
	if p.InDefaultGroup() || target.Group != p.Group {
		return apperr.NotFound("user")
	}
	return nil
}

// CanDelete reports whether p may delete target: itself, or an
// administrator of target's group.
func CanDelete(p auth.Principal, target models.User) error {
	if p.UserID == target.ID {
		return nil
	}
	if err := CanView(p, target); err != nil {
		return err
	}
	if !p.IsAdmin {
		return apperr.Unauthorized("only administrators can delete other users")
	}
	return nil
}

// Designation is a requested change of group and/or role flags.
// Nil fields are left alone.
type Designation struct {
	Group    *string
	IsAdmin  *bool
	IsSS     *bool
	IsSCards *bool
}

// HasRoles reports whether d touches any role flag.
func (d Designation) HasRoles() bool {
	return d.IsAdmin != nil || d.IsSS != nil || d.IsSCards != nil
}

// NewGroup returns the normalized target group and whether it differs from
// current.
func (d Designation) NewGroup(current string) (string, bool) {
	if d.Group == nil {
		return current, false
	}
	g := normalize.Group(*d.Group)
	return g, g != normalize.Group(current)
}

// CanDesignate reports whether p may apply d to target.
//
// Group moves: anyone may leave their own group; an administrator may pull
// a default-group user into the administrator's group or send a member of
// that group back to the default group. Users of other groups are off
// limits.
//
// Role flags change only for users who end up in p's group. isAdmin needs
// an administrator; isSS and isSCards need an administrator or supervisor.
func CanDesignate(p auth.Principal, target models.User, d Designation) error {
	group, moving := d.NewGroup(target.Group)

	if moving {
		leaving := p.UserID == target.ID && group == models.DefaultGroup
		if !leaving {
			if !p.IsAdmin || p.InDefaultGroup() {
				return apperr.Unauthorized("only administrators can change a user's group")
			}
			joining := target.InDefaultGroup() && group == p.Group
			removing := target.Group == p.Group && group == models.DefaultGroup
			if !joining && !removing {
				return apperr.Unauthorized("cannot move this user to that group")
			}
		}
	}

	if !d.HasRoles() {
		return nil
	}
	if p.InDefaultGroup() || group != p.Group {
		return apperr.Unauthorized("roles can only change for members of your group")
	}
	if d.IsAdmin != nil && !p.IsAdmin {
		return apperr.Unauthorized("only administrators can grant administrator")
	}
	if (d.IsSS != nil || d.IsSCards != nil) && !p.IsAdmin && !p.IsSS {
		return apperr.Unauthorized("only administrators or supervisors can change card roles")
	}
	return nil
}
