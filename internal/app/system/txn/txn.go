// Package txn runs multi-document writes in a MongoDB transaction when the
// deployment supports one, and sequentially otherwise.
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Run executes fn inside a transaction on client. On a standalone server
// (no replica set) the transaction is refused before any write commits, and
// fn is run again without one. fn must therefore be safe to repeat.
func Run(ctx context.Context, client *mongo.Client, log *zap.Logger, op string, fn func(ctx context.Context) error) error {
	if client == nil {
		return fn(ctx)
	}

	sess, err := client.StartSession()
	if err != nil {
		if IsNotSupported(err) {
			return runPlain(ctx, log, op, fn)
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		return runPlain(ctx, log, op, fn)
	}
	return err
}

func runPlain(ctx context.Context, log *zap.Logger, op string, fn func(ctx context.Context) error) error {
	if log != nil {
		log.Debug("transactions unavailable; running without one", zap.String("operation", op))
	}
	return fn(ctx)
}

// IsNotSupported reports whether err means the server cannot run
// transactions (standalone mongod, some DocumentDB versions).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, 51, 263: // IllegalOperation, Location51, OperationNotSupportedInTransaction
			return true
		}
	}
	s := strings.ToLower(err.Error())
	has := func(sub string) bool { return strings.Contains(s, sub) }
	switch {
	case has("transaction") && (has("replica set") || has("session")):
		return true
	case has("not supported") && (has("transaction") || has("session")):
		return true
	case has("illegal operation"):
		return true
	}
	return false
}

// Runner binds Run to a client so services can depend on a small interface.
type Runner struct {
	client *mongo.Client
	log    *zap.Logger
}

// NewRunner returns a Runner for client. A nil client runs fn directly.
func NewRunner(client *mongo.Client, log *zap.Logger) *Runner {
	return &Runner{client: client, log: log}
}

// Run executes fn as described by the package-level Run.
func (r *Runner) Run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return Run(ctx, r.client, r.log, op, fn)
}
