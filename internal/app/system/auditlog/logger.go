// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/store/audit"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Destination settings shared by every Config field.
const (
	ModeAll = "all" // MongoDB + zap
	ModeDB  = "db"  // MongoDB only
	ModeLog = "log" // zap only
	ModeOff = "off" // disabled
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for authentication events (register, login, logout).
	Auth string
	// Changes controls logging for card, address and user changes.
	Changes string
}

// EventStore persists audit events. *audit.Store implements it.
type EventStore interface {
	Log(ctx context.Context, event audit.Event) error
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via EventStore) and structured logs (via zap).
type Logger struct {
	store  EventStore
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store EventStore, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

type requestInfo struct {
	ip        string
	userAgent string
}

type ctxKey struct{}

// RequestInfo is middleware that records the client address and user agent
// so events logged deeper in the call stack can carry them.
func RequestInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := requestInfo{ip: getClientIP(r), userAgent: r.UserAgent()}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, info)))
	})
}

func infoFrom(ctx context.Context) requestInfo {
	info, _ := ctx.Value(ctxKey{}).(requestInfo)
	return info
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (for reverse proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}

	if event.Group != "" {
		fields = append(fields, zap.String("group", event.Group))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.TargetID != nil {
		fields = append(fields, zap.String("target_id", event.TargetID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	setting := l.config.Changes
	if event.Category == audit.CategoryAuth {
		setting = l.config.Auth
	}
	if setting == "" {
		setting = ModeAll
	}
	if setting == ModeOff {
		return
	}

	info := infoFrom(ctx)
	if event.IP == "" {
		event.IP = info.ip
	}
	if event.UserAgent == "" {
		event.UserAgent = info.userAgent
	}

	if setting == ModeAll || setting == ModeLog {
		l.logToZap(event)
	}

	if (setting == ModeAll || setting == ModeDB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// change logs a successful change performed by actor in actor's group.
func (l *Logger) change(ctx context.Context, actor auth.Principal, category, eventType string, target *primitive.ObjectID, user *primitive.ObjectID, details map[string]string) {
	actorID := actor.UserID
	l.Log(ctx, audit.Event{
		Group:     actor.Group,
		Category:  category,
		EventType: eventType,
		ActorID:   &actorID,
		UserID:    user,
		TargetID:  target,
		Success:   true,
		Details:   details,
	})
}

// --- Authentication Events ---

// UserRegistered logs a new account.
func (l *Logger) UserRegistered(ctx context.Context, userID primitive.ObjectID, email string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventUserRegistered,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"email": email},
	})
}

// LoginSuccess logs a successful login.
func (l *Logger) LoginSuccess(ctx context.Context, userID primitive.ObjectID, group string) {
	l.Log(ctx, audit.Event{
		Group:     group,
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    &userID,
		Success:   true,
	})
}

// LoginFailedUserNotFound logs a failed login due to user not found.
func (l *Logger) LoginFailedUserNotFound(ctx context.Context, attemptedEmail string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedUserNotFound,
		FailureReason: "user not found",
		Details:       map[string]string{"attempted_email": attemptedEmail},
	})
}

// LoginFailedWrongPassword logs a failed login due to wrong password.
func (l *Logger) LoginFailedWrongPassword(ctx context.Context, userID primitive.ObjectID, group string) {
	l.Log(ctx, audit.Event{
		Group:         group,
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedWrongPassword,
		UserID:        &userID,
		FailureReason: "wrong password",
	})
}

// Logout logs a logout. Anonymous logouts are not recorded.
func (l *Logger) Logout(ctx context.Context, p *auth.Principal) {
	if p == nil {
		return
	}
	userID := p.UserID
	l.Log(ctx, audit.Event{
		Group:     p.Group,
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		UserID:    &userID,
		Success:   true,
	})
}

// --- Card Events ---

// CardCreated logs a new card.
func (l *Logger) CardCreated(ctx context.Context, actor auth.Principal, cardID primitive.ObjectID, number int) {
	l.change(ctx, actor, audit.CategoryCard, audit.EventCardCreated, &cardID, nil,
		map[string]string{"number": strconv.Itoa(number)})
}

// CardUpdated logs a change to a card's address list.
func (l *Logger) CardUpdated(ctx context.Context, actor auth.Principal, cardID primitive.ObjectID, addresses int) {
	l.change(ctx, actor, audit.CategoryCard, audit.EventCardUpdated, &cardID, nil,
		map[string]string{"addresses": strconv.Itoa(addresses)})
}

// CardAssigned logs a card handed to userID.
func (l *Logger) CardAssigned(ctx context.Context, actor auth.Principal, cardID, userID primitive.ObjectID) {
	l.change(ctx, actor, audit.CategoryCard, audit.EventCardAssigned, &cardID, &userID, nil)
}

// CardReturned logs a card taken back from userID.
func (l *Logger) CardReturned(ctx context.Context, actor auth.Principal, cardID, userID primitive.ObjectID) {
	l.change(ctx, actor, audit.CategoryCard, audit.EventCardReturned, &cardID, &userID, nil)
}

// CardDeleted logs a card removal.
func (l *Logger) CardDeleted(ctx context.Context, actor auth.Principal, cardID primitive.ObjectID, number int) {
	l.change(ctx, actor, audit.CategoryCard, audit.EventCardDeleted, &cardID, nil,
		map[string]string{"number": strconv.Itoa(number)})
}

// --- Address Events ---

// AddressDeleted logs an address removal and how many cards referenced it.
func (l *Logger) AddressDeleted(ctx context.Context, actor auth.Principal, addressID primitive.ObjectID, cardsChanged int64) {
	l.change(ctx, actor, audit.CategoryAddress, audit.EventAddressDeleted, &addressID, nil,
		map[string]string{"cards_changed": strconv.FormatInt(cardsChanged, 10)})
}

// --- User Events ---

// UserDesignated logs a group or role change on target.
func (l *Logger) UserDesignated(ctx context.Context, actor auth.Principal, target primitive.ObjectID, fieldsChanged string) {
	l.change(ctx, actor, audit.CategoryUser, audit.EventUserDesignated, nil, &target,
		map[string]string{"fields_changed": fieldsChanged})
}

// UserDeleted logs an account removal.
func (l *Logger) UserDeleted(ctx context.Context, actor auth.Principal, target primitive.ObjectID, cardsReturned int) {
	l.change(ctx, actor, audit.CategoryUser, audit.EventUserDeleted, nil, &target,
		map[string]string{"cards_returned": strconv.Itoa(cardsReturned)})
}
