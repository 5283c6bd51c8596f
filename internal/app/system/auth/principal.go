package auth

import (
	"context"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/apperr"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Principal is the authenticated caller, rebuilt for every request.
type Principal struct {
	UserID   primitive.ObjectID
	Name     string
	Group    string
	IsAdmin  bool
	IsSS     bool
	IsSCards bool
}

// InDefaultGroup reports whether the caller has not joined a group yet.
func (p Principal) InDefaultGroup() bool {
	return p.Group == "" || p.Group == models.DefaultGroup
}

// CanManageCards reports whether the caller may hand out and collect cards.
func (p Principal) CanManageCards() bool {
	return p.IsSS || p.IsSCards
}

// PrincipalFromUser copies the authorization-relevant fields of u.
func PrincipalFromUser(u models.User) Principal {
	return Principal{
		UserID:   u.ID,
		Name:     u.Name,
		Group:    u.Group,
		IsAdmin:  u.IsAdmin,
		IsSS:     u.IsSS,
		IsSCards: u.IsSCards,
	}
}

type ctxKey string

const principalKey ctxKey = "principal"

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal in ctx and whether one is present.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// RequirePrincipal returns the principal or an Unauthorized error.
func RequirePrincipal(ctx context.Context) (Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return Principal{}, apperr.Unauthorized("authentication required")
	}
	return p, nil
}
