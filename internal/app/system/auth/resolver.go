package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/apperr"
	"go.uber.org/zap"
)

// UserFetcher loads the current state of a user for the resolver.
// It returns nil when the user does not exist (or cannot be loaded).
type UserFetcher interface {
	FetchPrincipal(ctx context.Context, userID string) *Principal
}

// Resolver turns a session token into a Principal.
type Resolver struct {
	tokens  *TokenService
	fetcher UserFetcher
	log     *zap.Logger
}

func NewResolver(tokens *TokenService, fetcher UserFetcher, logger *zap.Logger) *Resolver {
	return &Resolver{tokens: tokens, fetcher: fetcher, log: logger}
}

// Resolve verifies token and returns the caller's fresh principal. Role and
// group changes made since the token was issued take effect immediately.
func (res *Resolver) Resolve(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, apperr.Unauthorized("authentication required")
	}
	claims, err := res.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return Principal{}, apperr.Unauthorized("session expired")
		}
		return Principal{}, apperr.Unauthorized("invalid session token")
	}
	p := res.fetcher.FetchPrincipal(ctx, claims.Subject)
	if p == nil {
		return Principal{}, apperr.Unauthorized("user no longer exists")
	}
	return *p, nil
}

// Refresh reloads p from the directory, for long-lived connections that
// authenticated once but must follow later role and group changes.
func (res *Resolver) Refresh(ctx context.Context, p Principal) (Principal, error) {
	fresh := res.fetcher.FetchPrincipal(ctx, p.UserID.Hex())
	if fresh == nil {
		return Principal{}, apperr.Unauthorized("user no longer exists")
	}
	return *fresh, nil
}

// TokenFromRequest returns the bearer token, falling back to the session cookie.
func TokenFromRequest(r *http.Request, sm *SessionManager) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if sm == nil {
		return ""
	}
	return sm.Token(r)
}

// LoadPrincipal injects the principal into the request context when the
// request carries a valid token. Anonymous requests pass through unchanged;
// resolvers that need a caller use RequirePrincipal.
func (res *Resolver) LoadPrincipal(sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := TokenFromRequest(r, sm)
			if tok == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := res.Resolve(r.Context(), tok)
			if err != nil {
				res.log.Debug("request token rejected", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
