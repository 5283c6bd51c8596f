// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops background work and then tears down connections: jobs
// first, then the relay, then Redis and MongoDB.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if rt := deps.rt; rt != nil {
		if rt.jobs != nil {
			rt.jobs.Stop()
		}
		if rt.logins != nil {
			rt.logins.Stop()
		}
		if rt.relayCancel != nil {
			rt.relayCancel()
			if err := rt.relayGroup.Wait(); err != nil {
				logger.Warn("snapshot relay ended with error", zap.Error(err))
			}
		}
	}

	if deps.Redis != nil {
		if err := deps.Redis.Close(); err != nil {
			logger.Warn("Redis close failed", zap.Error(err))
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
