// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	graphfeature "github.com/MacielDouglas/direcciones-sub001/internal/app/features/graph"
	healthfeature "github.com/MacielDouglas/direcciones-sub001/internal/app/features/health"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auditlog"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auth"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. The services Startup built are reached
// through deps.
//
// Routes:
//   - POST /graphql      queries and mutations
//   - GET  /graphql/ws   graphql-transport-ws subscriptions
//   - GET  /health       MongoDB and relay connectivity
//   - GET  /metrics      Prometheus exposition
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	rt := deps.rt
	if rt == nil || rt.bus == nil {
		return nil, errors.New("build handler: Startup did not run")
	}

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.JWTTTL, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	graphHandler, err := graphfeature.NewHandler(graphfeature.Deps{
		Cards:     rt.cards,
		Addresses: rt.addresses,
		Users:     rt.users,
		Bus:       rt.bus,
		Sessions:  sessionMgr,
		Auth:      rt.auth,
		Logins:    rt.logins,
		Log:       logger,
	})
	if err != nil {
		logger.Error("graphql handler init failed", zap.Error(err))
		return nil, err
	}

	r := chi.NewRouter()

	// Request metadata (IP, user agent) for audit events.
	r.Use(auditlog.RequestInfo)

	// Loads the Principal from a Bearer token or the session cookie.
	r.Use(rt.auth.LoadPrincipal(sessionMgr))

	// Health check endpoint for load balancers and orchestrators.
	// Redis is only handed over when configured so the handler sees a nil
	// interface rather than a nil *redis.Client.
	var redisPinger healthfeature.RedisPinger
	if deps.Redis != nil {
		redisPinger = deps.Redis
	}
	healthHandler := healthfeature.NewHandler(deps.MongoClient, redisPinger, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Handle("/metrics", rt.metrics.Handler())

	r.Mount("/graphql", graphfeature.Routes(graphHandler))

	return r, nil
}
