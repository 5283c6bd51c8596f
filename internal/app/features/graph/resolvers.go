package graph

import (
	"fmt"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/features/addresses"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/features/users"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/policy/userpolicy"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/apperr"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auth"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/ratelimit"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"
)

type resolverFn func(p graphql.ResolveParams) (interface{}, error)

// resolve wraps fn so failures reach the client as coded errors.
func (h *Handler) resolve(op string, fn resolverFn) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		v, err := fn(p)
		if err != nil {
			return nil, h.fail(op, err)
		}
		return v, nil
	}
}

func (h *Handler) fail(op string, err error) error {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		h.log.Error("graphql resolver failed", zap.String("field", op), zap.Error(err))
	}
	return newCodedError(err)
}

/*──────────────────────────────────────────────────────────────────────────────
  addresses
──────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) addresses(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	f := argObject(p.Args, "filter")
	list, err := h.addrs.Find(p.Context, pr, addresses.Filter{
		Street: argString(f, "street"),
		City:   argString(f, "city"),
		Type:   argString(f, "type"),
	}, argOptInt(p.Args, "skip"), argOptInt(p.Args, "limit"))
	if err != nil {
		return nil, err
	}
	return addressList(list), nil
}

func (h *Handler) address(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	a, err := h.addrs.Get(p.Context, pr, argString(p.Args, "id"))
	if err != nil {
		return nil, err
	}
	return addressMap(a), nil
}

func (h *Handler) createAddress(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	in := argObject(p.Args, "input")
	a, err := h.addrs.Create(p.Context, pr, addresses.CreateInput{
		Street:       argString(in, "street"),
		Number:       argString(in, "number"),
		City:         argString(in, "city"),
		Neighborhood: argString(in, "neighborhood"),
		GPS:          argOptString(in, "gps"),
		Complement:   argOptString(in, "complement"),
		Photo:        argString(in, "photo"),
		Type:         argString(in, "type"),
		Confirmed:    argOptBool(in, "confirmed"),
		Active:       argOptBool(in, "active"),
		Visited:      argOptBool(in, "visited"),
	})
	if err != nil {
		return nil, err
	}
	return done("address created", map[string]interface{}{"address": addressMap(a)}), nil
}

func (h *Handler) updateAddress(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	in := argObject(p.Args, "input")
	a, changed, err := h.addrs.Update(p.Context, pr, argString(p.Args, "id"), addresses.UpdateInput{
		Street:       argOptString(in, "street"),
		Number:       argOptString(in, "number"),
		City:         argOptString(in, "city"),
		Neighborhood: argOptString(in, "neighborhood"),
		GPS:          argOptString(in, "gps"),
		Complement:   argOptString(in, "complement"),
		Photo:        argOptString(in, "photo"),
		Type:         argOptString(in, "type"),
		Confirmed:    argOptBool(in, "confirmed"),
		Active:       argOptBool(in, "active"),
		Visited:      argOptBool(in, "visited"),
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return map[string]interface{}{
			"success": false,
			"message": "no changes",
			"address": addressMap(a),
		}, nil
	}
	return done("address updated", map[string]interface{}{"address": addressMap(a)}), nil
}

func (h *Handler) deleteAddress(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	if err := h.addrs.Delete(p.Context, pr, argString(p.Args, "id")); err != nil {
		return nil, err
	}
	return done("address deleted", nil), nil
}

/*──────────────────────────────────────────────────────────────────────────────
  users & session
──────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) register(p graphql.ResolveParams) (interface{}, error) {
	u, err := h.users.Register(p.Context, users.RegisterInput{
		Name:     argString(p.Args, "name"),
		Email:    argString(p.Args, "email"),
		Password: argString(p.Args, "password"),
	})
	if err != nil {
		return nil, err
	}
	return done("user registered", map[string]interface{}{"user": userMap(u)}), nil
}

func (h *Handler) login(p graphql.ResolveParams) (interface{}, error) {
	email := argString(p.Args, "email")
	if h.logins != nil {
		ip := ""
		if _, r, found := httpFrom(p.Context); found {
			ip = ratelimit.ClientIP(r)
		}
		if err := h.logins.Check(ip, email); err != nil {
			return nil, err
		}
	}

	token, u, err := h.users.Login(p.Context, email, argString(p.Args, "password"))
	if err != nil {
		return nil, err
	}
	if h.logins != nil {
		h.logins.Succeeded(email)
	}
	if w, r, found := httpFrom(p.Context); found && h.sessions != nil {
		if err := h.sessions.Save(w, r, token); err != nil {
			h.log.Warn("save session cookie failed", zap.Error(err))
		}
	}
	return done("logged in", map[string]interface{}{"token": token, "user": userMap(u)}), nil
}

// logout is idempotent: anonymous callers get success too.
func (h *Handler) logout(p graphql.ResolveParams) (interface{}, error) {
	var pr *auth.Principal
	if cur, found := auth.PrincipalFrom(p.Context); found {
		pr = &cur
	}
	h.users.Logout(p.Context, pr)
	if w, r, found := httpFrom(p.Context); found && h.sessions != nil {
		if err := h.sessions.Clear(w, r); err != nil {
			h.log.Warn("clear session cookie failed", zap.Error(err))
		}
	}
	return done("logged out", nil), nil
}

func (h *Handler) me(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	u, err := h.users.Me(p.Context, pr)
	if err != nil {
		return nil, err
	}
	return userMap(u), nil
}

func (h *Handler) user(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	u, err := h.users.Get(p.Context, pr, argString(p.Args, "id"))
	if err != nil {
		return nil, err
	}
	return userMap(u), nil
}

func (h *Handler) getUsers(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	list, err := h.users.List(p.Context, pr)
	if err != nil {
		return nil, err
	}
	return userList(list), nil
}

func (h *Handler) updateUser(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	u, err := h.users.UpdateSelf(p.Context, pr, users.ProfileInput{
		Name:           argOptString(p.Args, "name"),
		ProfilePicture: argOptString(p.Args, "profilePicture"),
	})
	if err != nil {
		return nil, err
	}
	return done("user updated", map[string]interface{}{"user": userMap(u)}), nil
}

func (h *Handler) designateUser(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	u, err := h.users.Designate(p.Context, pr, argString(p.Args, "userId"), userpolicy.Designation{
		Group:    argOptString(p.Args, "group"),
		IsAdmin:  argOptBool(p.Args, "isAdmin"),
		IsSS:     argOptBool(p.Args, "isSS"),
		IsSCards: argOptBool(p.Args, "isSCards"),
	})
	if err != nil {
		return nil, err
	}
	return done("user designated", map[string]interface{}{"user": userMap(u)}), nil
}

func (h *Handler) deleteUser(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	n, err := h.users.Delete(p.Context, pr, argString(p.Args, "userId"))
	if err != nil {
		return nil, err
	}
	return done("user deleted", map[string]interface{}{"cardsReturned": n}), nil
}

/*──────────────────────────────────────────────────────────────────────────────
  cards
──────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) cards(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	list, err := h.cardSvc.List(p.Context, pr)
	if err != nil {
		return nil, err
	}
	return cardList(list), nil
}

func (h *Handler) card(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	fc, err := h.cardSvc.Get(p.Context, pr, argString(p.Args, "id"))
	if err != nil {
		return nil, err
	}
	return cardMap(fc), nil
}

func (h *Handler) createCard(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	fc, err := h.cardSvc.Create(p.Context, pr)
	if err != nil {
		return nil, err
	}
	return done(fmt.Sprintf("card %d created", fc.Number), map[string]interface{}{"card": cardMap(fc)}), nil
}

func (h *Handler) updateCard(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	fc, err := h.cardSvc.Update(p.Context, pr, argString(p.Args, "id"), argStrings(p.Args, "street"))
	if err != nil {
		return nil, err
	}
	return done("card updated", map[string]interface{}{"card": cardMap(fc)}), nil
}

func (h *Handler) assignCard(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	list, err := h.cardSvc.Assign(p.Context, pr, argStrings(p.Args, "cardIds"), argString(p.Args, "userId"))
	if err != nil {
		return nil, err
	}
	return done(assignedMessage(list), map[string]interface{}{"cards": cardList(list)}), nil
}

func assignedMessage(list []models.FullCard) string {
	if len(list) == 1 {
		return fmt.Sprintf("card %d assigned", list[0].Number)
	}
	return fmt.Sprintf("%d cards assigned", len(list))
}

func (h *Handler) returnCard(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	fc, err := h.cardSvc.Return(p.Context, pr, argString(p.Args, "cardId"), argString(p.Args, "userId"))
	if err != nil {
		return nil, err
	}
	return done(fmt.Sprintf("card %d returned", fc.Number), map[string]interface{}{"card": cardMap(fc)}), nil
}

func (h *Handler) deleteCard(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	if err := h.cardSvc.Delete(p.Context, pr, argString(p.Args, "id")); err != nil {
		return nil, err
	}
	return done("card deleted", nil), nil
}

func (h *Handler) addCardComment(p graphql.ResolveParams) (interface{}, error) {
	pr, err := auth.RequirePrincipal(p.Context)
	if err != nil {
		return nil, err
	}
	c, err := h.cardSvc.AddComment(p.Context, pr, argString(p.Args, "cardId"), argString(p.Args, "text"))
	if err != nil {
		return nil, err
	}
	return done("comment added", map[string]interface{}{"comment": commentMap(c)}), nil
}

// fullCard reads the group-filtered snapshot the websocket transport placed
// in the root value.
func (h *Handler) fullCard(p graphql.ResolveParams) (interface{}, error) {
	root, _ := p.Info.RootValue.(map[string]interface{})
	list, found := root[rootSnapshotKey].([]models.FullCard)
	if !found {
		return nil, apperr.Validation("subscription", "fullCard is only served over the websocket transport")
	}
	return cardList(list), nil
}
