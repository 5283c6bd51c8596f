// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	addressesfeature "github.com/MacielDouglas/direcciones-sub001/internal/app/features/addresses"
	cardsfeature "github.com/MacielDouglas/direcciones-sub001/internal/app/features/cards"
	usersfeature "github.com/MacielDouglas/direcciones-sub001/internal/app/features/users"
	addressstore "github.com/MacielDouglas/direcciones-sub001/internal/app/store/addresses"
	auditstore "github.com/MacielDouglas/direcciones-sub001/internal/app/store/audit"
	cardstore "github.com/MacielDouglas/direcciones-sub001/internal/app/store/cards"
	userstore "github.com/MacielDouglas/direcciones-sub001/internal/app/store/users"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auditlog"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auth"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/metrics"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/normalize"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/notify"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/ratelimit"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/tasks"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/txn"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/workers"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// runtime holds what Startup builds for BuildHandler and Shutdown.
type runtime struct {
	metrics *metrics.Metrics
	bus     *notify.Bus
	tokens  *auth.TokenService
	auth    *auth.Resolver

	cards     *cardsfeature.Service
	addresses *addressesfeature.Service
	users     *usersfeature.Service

	jobs   *workers.Runner
	logins *ratelimit.LoginLimiter

	relayCancel context.CancelFunc
	relayGroup  *errgroup.Group
}

// Startup builds the stores, the snapshot bus and the services, then starts
// the snapshot relay (when Redis is configured) and the maintenance jobs.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.rt == nil {
		return errors.New("startup: ConnectDB did not run")
	}
	rt := deps.rt
	db := deps.MongoDatabase

	cards := cardstore.New(db)
	addrs := addressstore.New(db)
	users := userstore.New(db)

	rt.metrics = metrics.New()

	audit := auditlog.New(auditstore.New(db), logger, auditlog.Config{
		Auth:    appCfg.AuditLogAuth,
		Changes: appCfg.AuditLogChanges,
	})

	rt.bus = notify.New(cards, addrs, logger, notify.Options{
		Buffer:  appCfg.SubscriberBuffer,
		Metrics: rt.metrics,
	})

	tokens, err := auth.NewTokenService(appCfg.JWTSecret, appCfg.JWTTTL)
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}
	rt.tokens = tokens
	rt.auth = auth.NewResolver(tokens, userstore.NewFetcher(db), logger)

	rt.cards = cardsfeature.NewService(cardsfeature.Deps{
		Cards:     cards,
		Addresses: addrs,
		Users:     users,
		Notifier:  rt.bus,
		Audit:     audit,
		Metrics:   rt.metrics,
		Log:       logger,
	})
	rt.addresses = addressesfeature.NewService(addressesfeature.Deps{
		Addresses: addrs,
		Cards:     cards,
		Users:     users,
		Txn:       txn.NewRunner(deps.MongoClient, logger),
		Notifier:  rt.bus,
		Audit:     audit,
		Metrics:   rt.metrics,
		Log:       logger,
	})
	rt.users = usersfeature.NewService(usersfeature.Deps{
		Users:     users,
		Cards:     rt.cards,
		Passwords: auth.NewPasswordService(appCfg.BcryptCost),
		Tokens:    tokens,
		Audit:     audit,
		Log:       logger,
	})

	rt.logins = ratelimit.NewLoginLimiter(appCfg.LoginIPLimit, appCfg.LoginEmailLimit)

	if appCfg.AdminEmail != "" {
		if err := ensureAdmin(ctx, users, appCfg.AdminEmail, appCfg.AdminGroup, logger); err != nil {
			return err
		}
	}

	if deps.Redis != nil {
		relay := notify.NewRedisRelay(deps.Redis, appCfg.RedisChannel, rt.bus, logger)
		rt.bus.SetForwarder(relay)

		relayCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		g, gctx := errgroup.WithContext(relayCtx)
		g.Go(func() error { return relay.Run(gctx) })
		rt.relayCancel = cancel
		rt.relayGroup = g
	}

	rt.jobs = workers.NewRunner(maintenanceJobs(appCfg, cards, addrs, users, rt.bus, logger), logger, rt.metrics)
	rt.jobs.Start()

	return nil
}

// maintenanceJobs lists the background jobs the runner schedules.
func maintenanceJobs(appCfg AppConfig, cards *cardstore.Store, addrs *addressstore.Store, users *userstore.Store, bus *notify.Bus, logger *zap.Logger) []tasks.Job {
	return []tasks.Job{
		tasks.HistoryPruneJob(cards, bus, logger, appCfg.HistoryRetention, appCfg.HistoryPruneInterval),
		tasks.ReferenceReconcileJob(addrs, cards, users, bus, logger, appCfg.ReconcileInterval),
	}
}

// AdminPromoter is the subset of userstore.Store ensureAdmin needs.
type AdminPromoter interface {
	GetByEmail(ctx context.Context, email string) (models.User, error)
	SetGroup(ctx context.Context, id primitive.ObjectID, group string) error
	SetRoles(ctx context.Context, id primitive.ObjectID, upd userstore.RoleUpdate) error
}

// ensureAdmin gives the account registered under email the admin flag. An
// account still in the default group is first moved into group, so the
// admin can place everyone else. A missing account is logged and skipped
// so the first deploy can start before anyone has registered.
func ensureAdmin(ctx context.Context, users AdminPromoter, email, group string, logger *zap.Logger) error {
	u, err := users.GetByEmail(ctx, email)
	if errors.Is(err, userstore.ErrNotFound) {
		logger.Warn("admin account not registered yet", zap.String("email", email))
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up admin account: %w", err)
	}

	if u.InDefaultGroup() {
		group = normalize.Group(group)
		if group == models.DefaultGroup {
			return fmt.Errorf("admin account %s has no group and admin_group is unset", email)
		}
		// SetGroup clears the role flags, so the admin flag is set after it.
		if err := users.SetGroup(ctx, u.ID, group); err != nil {
			return fmt.Errorf("move admin account into %q: %w", group, err)
		}
		u.Group, u.IsAdmin = group, false
		logger.Info("moved admin account into group", zap.String("email", email), zap.String("group", group))
	}
	if u.IsAdmin {
		return nil
	}

	yes := true
	if err := users.SetRoles(ctx, u.ID, userstore.RoleUpdate{IsAdmin: &yes}); err != nil {
		return fmt.Errorf("promote admin account: %w", err)
	}
	logger.Info("promoted account to admin",
		zap.String("email", email),
		zap.String("user_id", u.ID.Hex()),
		zap.String("group", u.Group))
	return nil
}
