// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Default schedules.
const (
	DefaultHistoryRetention     = 365 * 24 * time.Hour
	DefaultHistoryPruneInterval = 24 * time.Hour
	DefaultReconcileInterval    = time.Hour
)

// HistoryPruner trims old card history. *cardstore.Store implements it.
type HistoryPruner interface {
	PruneHistory(ctx context.Context, cutoff time.Time) (int64, error)
}

// RefHolder is a collection that embeds address ids.
// *cardstore.Store and *userstore.Store implement it.
type RefHolder interface {
	ReferencedAddressIDs(ctx context.Context) ([]primitive.ObjectID, error)
	PullAddresses(ctx context.Context, ids []primitive.ObjectID) (int64, error)
}

// AddressChecker reports which address ids still exist.
type AddressChecker interface {
	ExistingIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]bool, error)
}

// Notifier publishes a fresh card snapshot.
type Notifier interface {
	Publish(ctx context.Context) error
}

// HistoryPruneJob drops assignment history entries older than retention.
// Subscribers get a snapshot when any card changed.
func HistoryPruneJob(cards HistoryPruner, notifier Notifier, logger *zap.Logger, retention, interval time.Duration) Job {
	if retention <= 0 {
		retention = DefaultHistoryRetention
	}
	if interval <= 0 {
		interval = DefaultHistoryPruneInterval
	}
	return Job{
		Name:     "history-prune",
		Interval: interval,
		Run: func(ctx context.Context) error {
			cutoff := time.Now().UTC().Add(-retention)
			count, err := cards.PruneHistory(ctx, cutoff)
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Info("pruned card history",
					zap.Int64("cards", count),
					zap.Time("cutoff", cutoff))
				if err := notifier.Publish(ctx); err != nil {
					logger.Warn("publish after history prune failed", zap.Error(err))
				}
			}
			return nil
		},
	}
}

// ReferenceReconcileJob removes address ids from cards and users that no
// longer resolve to an address. It repairs what a non-transactional address
// delete may leave behind.
func ReferenceReconcileJob(addrs AddressChecker, cards, users RefHolder, notifier Notifier, logger *zap.Logger, interval time.Duration) Job {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return Job{
		Name:     "reference-reconcile",
		Interval: interval,
		Run: func(ctx context.Context) error {
			var fromCards, fromUsers []primitive.ObjectID
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() (err error) {
				fromCards, err = cards.ReferencedAddressIDs(gctx)
				return err
			})
			g.Go(func() (err error) {
				fromUsers, err = users.ReferencedAddressIDs(gctx)
				return err
			})
			if err := g.Wait(); err != nil {
				return fmt.Errorf("collect references: %w", err)
			}

			referenced := union(fromCards, fromUsers)
			if len(referenced) == 0 {
				return nil
			}
			exists, err := addrs.ExistingIDs(ctx, referenced)
			if err != nil {
				return fmt.Errorf("check addresses: %w", err)
			}
			var dangling []primitive.ObjectID
			for _, id := range referenced {
				if !exists[id] {
					dangling = append(dangling, id)
				}
			}
			if len(dangling) == 0 {
				return nil
			}

			var cardsChanged, usersChanged int64
			g, gctx = errgroup.WithContext(ctx)
			g.Go(func() (err error) {
				cardsChanged, err = cards.PullAddresses(gctx, dangling)
				return err
			})
			g.Go(func() (err error) {
				usersChanged, err = users.PullAddresses(gctx, dangling)
				return err
			})
			if err := g.Wait(); err != nil {
				return fmt.Errorf("pull dangling references: %w", err)
			}

			logger.Info("removed dangling address references",
				zap.Int("addresses", len(dangling)),
				zap.Int64("cards", cardsChanged),
				zap.Int64("users", usersChanged))
			if cardsChanged > 0 {
				if err := notifier.Publish(ctx); err != nil {
					logger.Warn("publish after reconcile failed", zap.Error(err))
				}
			}
			return nil
		},
	}
}

func union(lists ...[]primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{})
	var out []primitive.ObjectID
	for _, l := range lists {
		for _, id := range l {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
