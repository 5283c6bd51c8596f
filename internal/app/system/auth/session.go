package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const tokenKey = "token"

// SessionManager keeps the signed session token in an HTTP-only cookie.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	log   *zap.Logger
}

// NewSessionManager builds the cookie store.
//
// In production (secure=true), cookies are Secure + SameSite=None.
// In local dev over http://localhost, use secure=false so cookies are accepted.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}
	if name == "" {
		name = "direcciones-session"
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	store.Options = &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		store.Options.SameSite = http.SameSiteNoneMode
	}

	logger.Info("session store initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: name, log: logger}, nil
}

// Name is the cookie name.
func (sm *SessionManager) Name() string { return sm.name }

// Save stores token in the session cookie.
func (sm *SessionManager) Save(w http.ResponseWriter, r *http.Request, token string) error {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil && !isDecodeErr(err) {
		return err
	}
	sess.Values[tokenKey] = token
	return sess.Save(r, w)
}

// Token returns the token stored in the request's session cookie, or "".
// A cookie signed with a rotated key reads as empty.
func (sm *SessionManager) Token(r *http.Request) string {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		if isDecodeErr(err) {
			sm.log.Debug("discarding undecodable session cookie", zap.Error(err))
		}
		return ""
	}
	tok, _ := sess.Values[tokenKey].(string)
	return tok
}

// Clear expires the session cookie. Clearing an absent session is a no-op
// from the client's point of view.
func (sm *SessionManager) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := sm.store.Get(r, sm.name)
	delete(sess.Values, tokenKey)
	opts := *sm.store.Options
	opts.MaxAge = -1
	sess.Options = &opts
	return sess.Save(r, w)
}

func isDecodeErr(err error) bool {
	var se securecookie.Error
	if errors.As(err, &se) {
		return se.IsDecode()
	}
	return false
}
