// internal/app/features/cards/service.go
package cards

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/policy/cardpolicy"
	cardstore "github.com/MacielDouglas/direcciones-sub001/internal/app/store/cards"
	userstore "github.com/MacielDouglas/direcciones-sub001/internal/app/store/users"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/apperr"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auditlog"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auth"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/htmlsanitize"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/metrics"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/timeouts"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// MaxNumberAttempts bounds the gap-fill retry when a concurrent creator
// takes the same number.
const MaxNumberAttempts = 5

// MaxCommentLength is the longest comment accepted, in runes.
const MaxCommentLength = 250

// CardStore is the subset of cardstore.Store the service needs.
type CardStore interface {
	List(ctx context.Context, group string) ([]models.Card, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Card, error)
	Numbers(ctx context.Context) ([]int, error)
	Insert(ctx context.Context, c models.Card) (models.Card, error)
	Assign(ctx context.Context, id, userID primitive.ObjectID, at time.Time) (bool, error)
	RevertAssign(ctx context.Context, id, userID primitive.ObjectID, prevEnd *time.Time) error
	Return(ctx context.Context, id, holder primitive.ObjectID, at time.Time) (bool, error)
	SetStreet(ctx context.Context, id primitive.ObjectID, street []primitive.ObjectID) error
	ReferencingAny(ctx context.Context, ids []primitive.ObjectID, exclude primitive.ObjectID) ([]models.Card, error)
	HeldBy(ctx context.Context, userID primitive.ObjectID) ([]models.Card, error)
	Delete(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// AddressReader resolves address ids.
type AddressReader interface {
	GetMany(ctx context.Context, ids []primitive.ObjectID) ([]models.Address, error)
}

// UserStore is the subset of userstore.Store the service needs.
type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
	AddCardRef(ctx context.Context, userID primitive.ObjectID, ref models.CardRef) error
	PullCardRef(ctx context.Context, userID, cardID primitive.ObjectID) error
	RevertCardRef(ctx context.Context, userID, cardID primitive.ObjectID, at time.Time) error
	PullCardFromAll(ctx context.Context, cardID primitive.ObjectID) error
	AddComment(ctx context.Context, userID primitive.ObjectID, c models.Comment) error
}

// Notifier publishes a fresh card snapshot to subscribers.
type Notifier interface {
	Publish(ctx context.Context) error
}

// Deps are the collaborators of a Service. Audit and Metrics may be nil.
type Deps struct {
	Cards     CardStore
	Addresses AddressReader
	Users     UserStore
	Notifier  Notifier
	Audit     *auditlog.Logger
	Metrics   *metrics.Metrics
	Log       *zap.Logger
}

// Service implements the card lifecycle: create, assign, return, update,
// delete and comment.
type Service struct {
	cards    CardStore
	addrs    AddressReader
	users    UserStore
	notifier Notifier
	audit    *auditlog.Logger
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewService(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cards:    d.Cards,
		addrs:    d.Addresses,
		users:    d.Users,
		notifier: d.Notifier,
		audit:    d.Audit,
		metrics:  d.Metrics,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// List returns the cards of p's group with their addresses joined.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]models.FullCard, error) {
	if err := cardpolicy.CanRead(p); err != nil {
		return nil, err
	}
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.log, "cards.list")
	defer cancel()

	list, err := s.cards.List(ctx, p.Group)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list cards: %w", err))
	}
	return s.join(ctx, list)
}

// Get returns one card of p's group with its addresses joined.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (models.FullCard, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "cards.get")
	defer cancel()

	c, err := s.load(ctx, id)
	if err != nil {
		return models.FullCard{}, err
	}
	if err := cardpolicy.CanView(p, c); err != nil {
		return models.FullCard{}, err
	}
	return s.joinOne(ctx, c)
}

// Create issues a new card numbered with the lowest unused positive integer.
func (s *Service) Create(ctx context.Context, p auth.Principal) (models.FullCard, error) {
	if err := cardpolicy.CanCreate(p); err != nil {
		return models.FullCard{}, err
	}
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.log, "cards.create")
	defer cancel()

	var created models.Card
	for attempt := 1; ; attempt++ {
		nums, err := s.cards.Numbers(ctx)
		if err != nil {
			return models.FullCard{}, apperr.Internal(fmt.Errorf("load card numbers: %w", err))
		}
		now := s.now()
		c := models.Card{
			Number:          NextNumber(nums),
			Group:           p.Group,
			Street:          []primitive.ObjectID{},
			UsersAssigned:   []models.Assignment{},
			AssignedHistory: []models.Assignment{},
			EndDate:         &now,
		}
		if err := CheckInvariants(c); err != nil {
			return models.FullCard{}, apperr.Internal(err)
		}
		created, err = s.cards.Insert(ctx, c)
		if err == nil {
			break
		}
		if !errors.Is(err, cardstore.ErrDuplicateNumber) {
			return models.FullCard{}, apperr.Internal(fmt.Errorf("insert card: %w", err))
		}
		if attempt == MaxNumberAttempts {
			return models.FullCard{}, apperr.Conflict("could not allocate a card number, try again")
		}
		s.metrics.NumberingRetry()
		s.log.Debug("card number taken, rescanning",
			zap.Int("number", c.Number), zap.Int("attempt", attempt))
	}

	s.audit.CardCreated(ctx, p, created.ID, created.Number)
	s.metrics.CardTransition("create")
	s.publish(ctx, "create")
	return models.FullCard{Card: created, Addresses: []models.Address{}}, nil
}

// Assign hands every card in cardIDs to userID. Either all cards end up
// assigned or none do.
func (s *Service) Assign(ctx context.Context, p auth.Principal, cardIDs []string, userID string) ([]models.FullCard, error) {
	if err := cardpolicy.CanManageAny(p); err != nil {
		return nil, err
	}
	ids, err := parseIDs(cardIDs)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperr.Validation("cardIds", "at least one card is required")
	}
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, apperr.Validation("userId", "invalid user id")
	}

	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), s.log, "cards.assign")
	defer cancel()

	target, err := s.users.GetByID(ctx, uid)
	if errors.Is(err, userstore.ErrNotFound) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("load user: %w", err))
	}
	if err := cardpolicy.CanAssignTo(p, target); err != nil {
		return nil, err
	}

	// Validate every card before writing any of them.
	loaded := make([]models.Card, 0, len(ids))
	for _, id := range ids {
		c, err := s.cards.GetByID(ctx, id)
		if errors.Is(err, cardstore.ErrNotFound) {
			return nil, apperr.NotFound("card")
		}
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("load card: %w", err))
		}
		if err := cardpolicy.CanManage(p, c); err != nil {
			return nil, err
		}
		if err := CheckInvariants(c); err != nil {
			return nil, apperr.Internal(err)
		}
		if holder, ok := c.Holder(); ok {
			if holder == uid {
				return nil, apperr.Conflict(fmt.Sprintf("card %d is already assigned to this user", c.Number))
			}
			return nil, apperr.Conflict(fmt.Sprintf("card %d is already assigned to another user", c.Number))
		}
		loaded = append(loaded, c)
	}

	now := s.now()
	var done, refs []models.Card
	rollback := func() {
		bg := context.WithoutCancel(ctx)
		for _, c := range refs {
			if err := s.users.RevertCardRef(bg, uid, c.ID, now); err != nil {
				s.log.Warn("revert card ref failed",
					zap.String("card_id", c.ID.Hex()), zap.Error(err))
			}
		}
		for _, c := range done {
			if err := s.cards.RevertAssign(bg, c.ID, uid, c.EndDate); err != nil {
				s.log.Error("revert card assignment failed",
					zap.String("card_id", c.ID.Hex()), zap.Error(err))
			}
		}
		if len(done) > 0 {
			s.metrics.AssignCompensation()
		}
	}

	for _, c := range loaded {
		next := c
		next.StartDate = &now
		next.EndDate = nil
		next.UsersAssigned = []models.Assignment{{UserID: uid, Date: now}}
		if err := CheckInvariants(next); err != nil {
			rollback()
			return nil, apperr.Internal(err)
		}

		ok, err := s.cards.Assign(ctx, c.ID, uid, now)
		if err != nil {
			rollback()
			return nil, apperr.Internal(fmt.Errorf("assign card: %w", err))
		}
		if !ok {
			rollback()
			return nil, apperr.Conflict(fmt.Sprintf("card %d was assigned concurrently", c.Number))
		}
		done = append(done, c)
	}

	for _, c := range loaded {
		ref := models.CardRef{CardID: c.ID, Date: now, Addresses: append([]primitive.ObjectID{}, c.Street...)}
		if err := s.users.AddCardRef(ctx, uid, ref); err != nil {
			rollback()
			return nil, apperr.Internal(fmt.Errorf("record card on user: %w", err))
		}
		refs = append(refs, c)
	}

	out := make([]models.Card, 0, len(loaded))
	for _, c := range loaded {
		s.audit.CardAssigned(ctx, p, c.ID, uid)
		s.metrics.CardTransition("assign")
		c.StartDate = &now
		c.EndDate = nil
		c.UsersAssigned = []models.Assignment{{UserID: uid, Date: now}}
		out = append(out, c)
	}
	s.publish(ctx, "assign")
	return s.join(ctx, out)
}

// Return takes a card back from its holder.
func (s *Service) Return(ctx context.Context, p auth.Principal, cardID, userID string) (models.FullCard, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.FullCard{}, apperr.Validation("userId", "invalid user id")
	}
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.log, "cards.return")
	defer cancel()

	c, err := s.load(ctx, cardID)
	if err != nil {
		return models.FullCard{}, err
	}
	if err := cardpolicy.CanManage(p, c); err != nil {
		return models.FullCard{}, err
	}
	if err := CheckInvariants(c); err != nil {
		return models.FullCard{}, apperr.Internal(err)
	}
	holder, ok := c.Holder()
	if !ok {
		return models.FullCard{}, apperr.Conflict(fmt.Sprintf("card %d is not assigned", c.Number))
	}
	if holder != uid {
		return models.FullCard{}, apperr.Conflict(fmt.Sprintf("card %d is not assigned to this user", c.Number))
	}

	next, err := s.returnCard(ctx, c, holder)
	if err != nil {
		return models.FullCard{}, err
	}
	s.audit.CardReturned(ctx, p, c.ID, holder)
	s.metrics.CardTransition("return")
	s.publish(ctx, "return")
	return s.joinOne(ctx, next)
}

// returnCard performs the conditional return and drops the card from the
// holder's current cards.
func (s *Service) returnCard(ctx context.Context, c models.Card, holder primitive.ObjectID) (models.Card, error) {
	now := s.now()
	next := c
	next.StartDate = nil
	next.EndDate = &now
	next.UsersAssigned = []models.Assignment{}
	next.AssignedHistory = append(append([]models.Assignment{}, c.AssignedHistory...),
		models.Assignment{UserID: holder, Date: now})
	if err := CheckInvariants(next); err != nil {
		return models.Card{}, apperr.Internal(err)
	}

	ok, err := s.cards.Return(ctx, c.ID, holder, now)
	if err != nil {
		return models.Card{}, apperr.Internal(fmt.Errorf("return card: %w", err))
	}
	if !ok {
		return models.Card{}, apperr.Conflict(fmt.Sprintf("card %d changed hands concurrently", c.Number))
	}
	if err := s.users.PullCardRef(ctx, holder, c.ID); err != nil {
		s.log.Warn("pull card from holder failed",
			zap.String("card_id", c.ID.Hex()), zap.String("user_id", holder.Hex()), zap.Error(err))
	}
	return next, nil
}

// Update replaces the card's addresses. Every address must belong to the
// card's group and to no other card.
func (s *Service) Update(ctx context.Context, p auth.Principal, cardID string, street []string) (models.FullCard, error) {
	ids, err := parseIDs(street)
	if err != nil {
		return models.FullCard{}, err
	}
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.log, "cards.update")
	defer cancel()

	c, err := s.load(ctx, cardID)
	if err != nil {
		return models.FullCard{}, err
	}
	if err := cardpolicy.CanManage(p, c); err != nil {
		return models.FullCard{}, err
	}
	if err := CheckInvariants(c); err != nil {
		return models.FullCard{}, apperr.Internal(err)
	}

	addrs, err := s.addrs.GetMany(ctx, ids)
	if err != nil {
		return models.FullCard{}, apperr.Internal(fmt.Errorf("load addresses: %w", err))
	}
	found := make(map[primitive.ObjectID]models.Address, len(addrs))
	for _, a := range addrs {
		found[a.ID] = a
	}
	for _, id := range ids {
		a, ok := found[id]
		if !ok || a.Group != c.Group {
			return models.FullCard{}, apperr.NotFound(fmt.Sprintf("address %s", id.Hex()))
		}
	}

	if len(ids) > 0 {
		others, err := s.cards.ReferencingAny(ctx, ids, c.ID)
		if err != nil {
			return models.FullCard{}, apperr.Internal(fmt.Errorf("check address use: %w", err))
		}
		if len(others) > 0 {
			return models.FullCard{}, apperr.Conflict(fmt.Sprintf("an address already belongs to card %d", others[0].Number))
		}
	}

	next := c
	next.Street = ids
	if err := CheckInvariants(next); err != nil {
		return models.FullCard{}, apperr.Internal(err)
	}
	if err := s.cards.SetStreet(ctx, c.ID, ids); err != nil {
		if errors.Is(err, cardstore.ErrNotFound) {
			return models.FullCard{}, apperr.NotFound("card")
		}
		return models.FullCard{}, apperr.Internal(fmt.Errorf("update card: %w", err))
	}

	s.audit.CardUpdated(ctx, p, c.ID, len(ids))
	s.metrics.CardTransition("update")
	s.publish(ctx, "update")
	return models.JoinAddresses([]models.Card{next}, addrs)[0], nil
}

// Delete removes a card. Its number becomes available again.
func (s *Service) Delete(ctx context.Context, p auth.Principal, cardID string) error {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.log, "cards.delete")
	defer cancel()

	c, err := s.load(ctx, cardID)
	if err != nil {
		return err
	}
	if err := cardpolicy.CanDelete(p, c); err != nil {
		return err
	}
	ok, err := s.cards.Delete(ctx, c.ID)
	if err != nil {
		return apperr.Internal(fmt.Errorf("delete card: %w", err))
	}
	if !ok {
		return apperr.NotFound("card")
	}
	if err := s.users.PullCardFromAll(ctx, c.ID); err != nil {
		s.log.Warn("pull deleted card from users failed",
			zap.String("card_id", c.ID.Hex()), zap.Error(err))
	}

	s.audit.CardDeleted(ctx, p, c.ID, c.Number)
	s.metrics.CardTransition("delete")
	s.publish(ctx, "delete")
	return nil
}

// AddComment stores a note from p about a card of its group.
func (s *Service) AddComment(ctx context.Context, p auth.Principal, cardID, text string) (models.Comment, error) {
	clean := htmlsanitize.StripTags(text)
	if clean == "" {
		return models.Comment{}, apperr.Validation("text", "comment text is required")
	}
	if utf8.RuneCountInString(clean) > MaxCommentLength {
		return models.Comment{}, apperr.Validation("text", fmt.Sprintf("comment must be at most %d characters", MaxCommentLength))
	}
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "cards.comment")
	defer cancel()

	c, err := s.load(ctx, cardID)
	if err != nil {
		return models.Comment{}, err
	}
	if err := cardpolicy.CanComment(p, c); err != nil {
		return models.Comment{}, err
	}
	com := models.Comment{CardID: c.ID, Text: clean, Date: s.now()}
	if err := s.users.AddComment(ctx, p.UserID, com); err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return models.Comment{}, apperr.Unauthorized("")
		}
		return models.Comment{}, apperr.Internal(fmt.Errorf("add comment: %w", err))
	}
	return com, nil
}

// ReleaseHeldBy returns every card userID currently holds. It is used when
// an account is removed and publishes once if anything changed.
func (s *Service) ReleaseHeldBy(ctx context.Context, actor auth.Principal, userID primitive.ObjectID) (int, error) {
	held, err := s.cards.HeldBy(ctx, userID)
	if err != nil {
		return 0, apperr.Internal(fmt.Errorf("load held cards: %w", err))
	}
	n := 0
	for _, c := range held {
		if _, err := s.returnCard(ctx, c, userID); err != nil {
			if apperr.IsKind(err, apperr.KindConflict) {
				continue
			}
			return n, err
		}
		s.audit.CardReturned(ctx, actor, c.ID, userID)
		s.metrics.CardTransition("return")
		n++
	}
	if n > 0 {
		s.publish(ctx, "release")
	}
	return n, nil
}

func (s *Service) load(ctx context.Context, hex string) (models.Card, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return models.Card{}, apperr.Validation("id", "invalid card id")
	}
	c, err := s.cards.GetByID(ctx, id)
	if errors.Is(err, cardstore.ErrNotFound) {
		return models.Card{}, apperr.NotFound("card")
	}
	if err != nil {
		return models.Card{}, apperr.Internal(fmt.Errorf("load card: %w", err))
	}
	return c, nil
}

func (s *Service) join(ctx context.Context, list []models.Card) ([]models.FullCard, error) {
	addrs, err := s.addrs.GetMany(ctx, models.StreetIDs(list))
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("load card addresses: %w", err))
	}
	return models.JoinAddresses(list, addrs), nil
}

func (s *Service) joinOne(ctx context.Context, c models.Card) (models.FullCard, error) {
	out, err := s.join(ctx, []models.Card{c})
	if err != nil {
		return models.FullCard{}, err
	}
	return out[0], nil
}

// publish never fails the mutation; subscribers are best-effort.
func (s *Service) publish(ctx context.Context, op string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(context.WithoutCancel(ctx)); err != nil {
		s.log.Error("publish card snapshot failed", zap.String("op", op), zap.Error(err))
	}
}

// parseIDs converts hex ids, dropping duplicates while keeping order.
func parseIDs(hex []string) ([]primitive.ObjectID, error) {
	seen := make(map[primitive.ObjectID]struct{}, len(hex))
	out := make([]primitive.ObjectID, 0, len(hex))
	for _, h := range hex {
		id, err := primitive.ObjectIDFromHex(h)
		if err != nil {
			return nil, apperr.Validation("id", fmt.Sprintf("invalid id %q", h))
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
