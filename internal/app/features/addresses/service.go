// internal/app/features/addresses/service.go
package addresses

import (
	"context"
	"errors"
	"fmt"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/policy/addresspolicy"
	addressstore "github.com/MacielDouglas/direcciones-sub001/internal/app/store/addresses"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/apperr"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auditlog"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auth"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/metrics"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/normalize"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/paging"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/timeouts"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// AddressStore is the subset of addressstore.Store the service needs.
type AddressStore interface {
	Find(ctx context.Context, f addressstore.Filter, w paging.Window) ([]models.Address, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Address, error)
	TripleExists(ctx context.Context, street, number, city string, exclude primitive.ObjectID) (bool, error)
	Create(ctx context.Context, a models.Address) (models.Address, error)
	Update(ctx context.Context, a models.Address) (models.Address, error)
	Delete(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// CardRefs holds the card side of address references.
type CardRefs interface {
	ReferencingAny(ctx context.Context, ids []primitive.ObjectID, exclude primitive.ObjectID) ([]models.Card, error)
	PullAddresses(ctx context.Context, ids []primitive.ObjectID) (int64, error)
}

// UserRefs holds the user side of address references.
type UserRefs interface {
	PullAddresses(ctx context.Context, ids []primitive.ObjectID) (int64, error)
}

// Transactor runs fn atomically when the deployment allows it.
// *txn.Runner implements it.
type Transactor interface {
	Run(ctx context.Context, op string, fn func(ctx context.Context) error) error
}

// Notifier publishes a fresh card snapshot to subscribers.
type Notifier interface {
	Publish(ctx context.Context) error
}

// Deps are the collaborators of a Service. Audit and Metrics may be nil.
type Deps struct {
	Addresses AddressStore
	Cards     CardRefs
	Users     UserRefs
	Txn       Transactor
	Notifier  Notifier
	Audit     *auditlog.Logger
	Metrics   *metrics.Metrics
	Log       *zap.Logger
}

// Service is the group-scoped address directory.
type Service struct {
	addrs    AddressStore
	cards    CardRefs
	users    UserRefs
	txn      Transactor
	notifier Notifier
	audit    *auditlog.Logger
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewService(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		addrs:    d.Addresses,
		cards:    d.Cards,
		users:    d.Users,
		txn:      d.Txn,
		notifier: d.Notifier,
		audit:    d.Audit,
		metrics:  d.Metrics,
		log:      log,
	}
}

// Filter narrows Find. Empty fields are ignored.
type Filter struct {
	Street string
	City   string
	Type   string
}

// Find lists the addresses of p's group matching f.
func (s *Service) Find(ctx context.Context, p auth.Principal, f Filter, skip, limit *int) ([]models.Address, error) {
	if err := addresspolicy.CanRead(p); err != nil {
		return nil, err
	}
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.log, "addresses.find")
	defer cancel()

	out, err := s.addrs.Find(ctx, addressstore.Filter{
		Group:  p.Group,
		Street: normalize.Text(f.Street),
		City:   normalize.Text(f.City),
		Type:   normalize.Text(f.Type),
	}, paging.Clamp(skip, limit))
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("find addresses: %w", err))
	}
	if out == nil {
		out = []models.Address{}
	}
	return out, nil
}

// Get returns one address of p's group.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (models.Address, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "addresses.get")
	defer cancel()

	a, err := s.load(ctx, id)
	if err != nil {
		return models.Address{}, err
	}
	if err := addresspolicy.CanView(p, a); err != nil {
		return models.Address{}, err
	}
	return a, nil
}

// Create registers a new address in p's group.
func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput) (models.Address, error) {
	if err := addresspolicy.CanCreate(p); err != nil {
		return models.Address{}, err
	}
	a := in.toAddress()
	a.UserID = p.UserID
	a.Group = p.Group
	if err := validate(a); err != nil {
		return models.Address{}, err
	}

	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.log, "addresses.create")
	defer cancel()

	if err := s.checkTriple(ctx, a, primitive.NilObjectID); err != nil {
		return models.Address{}, err
	}
	created, err := s.addrs.Create(ctx, a)
	if errors.Is(err, addressstore.ErrDuplicate) {
		return models.Address{}, apperr.Conflict(addressstore.ErrDuplicate.Error())
	}
	if err != nil {
		return models.Address{}, apperr.Internal(fmt.Errorf("create address: %w", err))
	}
	s.metrics.AddressMutation("create")
	return created, nil
}

// Update applies the fields set in in. It reports false with the stored
// record when nothing would change.
func (s *Service) Update(ctx context.Context, p auth.Principal, id string, in UpdateInput) (models.Address, bool, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.log, "addresses.update")
	defer cancel()

	cur, err := s.load(ctx, id)
	if err != nil {
		return models.Address{}, false, err
	}
	if err := addresspolicy.CanUpdate(p, cur); err != nil {
		return models.Address{}, false, err
	}

	next, changed := in.apply(cur)
	if !changed {
		return cur, false, nil
	}
	if err := validate(next); err != nil {
		return models.Address{}, false, err
	}
	if next.Street != cur.Street || next.Number != cur.Number || next.City != cur.City {
		if err := s.checkTriple(ctx, next, cur.ID); err != nil {
			return models.Address{}, false, err
		}
	}

	saved, err := s.addrs.Update(ctx, next)
	switch {
	case errors.Is(err, addressstore.ErrDuplicate):
		return models.Address{}, false, apperr.Conflict(addressstore.ErrDuplicate.Error())
	case errors.Is(err, addressstore.ErrNotFound):
		return models.Address{}, false, apperr.NotFound("address")
	case err != nil:
		return models.Address{}, false, apperr.Internal(fmt.Errorf("update address: %w", err))
	}
	s.metrics.AddressMutation("update")

	// Cards embed their addresses, so subscribers need the new version.
	if onCard, err := s.cards.ReferencingAny(ctx, []primitive.ObjectID{cur.ID}, primitive.NilObjectID); err != nil {
		s.log.Warn("check card use of address failed", zap.String("address_id", cur.ID.Hex()), zap.Error(err))
	} else if len(onCard) > 0 {
		s.publish(ctx, "address_update")
	}
	return saved, true, nil
}

// Delete removes an address and every reference to it from cards and
// users.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id string) error {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), s.log, "addresses.delete")
	defer cancel()

	a, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := addresspolicy.CanDelete(p, a); err != nil {
		return err
	}

	ids := []primitive.ObjectID{a.ID}
	var cardsChanged int64
	err = s.txn.Run(ctx, "addresses.delete", func(ctx context.Context) error {
		n, err := s.cards.PullAddresses(ctx, ids)
		if err != nil {
			return fmt.Errorf("pull from cards: %w", err)
		}
		cardsChanged = n
		if _, err := s.users.PullAddresses(ctx, ids); err != nil {
			return fmt.Errorf("pull from users: %w", err)
		}
		ok, err := s.addrs.Delete(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("delete address: %w", err)
		}
		if !ok {
			return addressstore.ErrNotFound
		}
		return nil
	})
	if errors.Is(err, addressstore.ErrNotFound) {
		return apperr.NotFound("address")
	}
	if err != nil {
		return apperr.Internal(err)
	}

	s.audit.AddressDeleted(ctx, p, a.ID, cardsChanged)
	s.metrics.AddressMutation("delete")
	if cardsChanged > 0 {
		s.publish(ctx, "address_delete")
	}
	return nil
}

func (s *Service) load(ctx context.Context, hex string) (models.Address, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return models.Address{}, apperr.Validation("id", "invalid address id")
	}
	a, err := s.addrs.GetByID(ctx, id)
	if errors.Is(err, addressstore.ErrNotFound) {
		return models.Address{}, apperr.NotFound("address")
	}
	if err != nil {
		return models.Address{}, apperr.Internal(fmt.Errorf("load address: %w", err))
	}
	return a, nil
}

// checkTriple is the friendly pre-check; the unique index has the final say.
func (s *Service) checkTriple(ctx context.Context, a models.Address, exclude primitive.ObjectID) error {
	taken, err := s.addrs.TripleExists(ctx, a.Street, a.Number, a.City, exclude)
	if err != nil {
		return apperr.Internal(fmt.Errorf("check address: %w", err))
	}
	if taken {
		return apperr.Conflict(addressstore.ErrDuplicate.Error())
	}
	return nil
}

func (s *Service) publish(ctx context.Context, op string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(context.WithoutCancel(ctx)); err != nil {
		s.log.Error("publish card snapshot failed", zap.String("op", op), zap.Error(err))
	}
}
