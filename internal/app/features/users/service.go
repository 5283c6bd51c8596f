// internal/app/features/users/service.go
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/policy/userpolicy"
	userstore "github.com/MacielDouglas/direcciones-sub001/internal/app/store/users"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/apperr"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auditlog"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auth"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/inputval"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/normalize"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/timeouts"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// errBadCredentials is shared by unknown email and wrong password.
const errBadCredentials = "invalid email or password"

// UserStore is the subset of userstore.Store the service needs.
type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	NameTaken(ctx context.Context, name string, exclude primitive.ObjectID) (bool, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u models.User) (models.User, error)
	ListByGroups(ctx context.Context, groups []string) ([]models.User, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, upd userstore.ProfileUpdate) error
	SetGroup(ctx context.Context, id primitive.ObjectID, group string) error
	SetRoles(ctx context.Context, id primitive.ObjectID, upd userstore.RoleUpdate) error
	Delete(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// CardReleaser returns the cards a user holds. *cards.Service implements it.
type CardReleaser interface {
	ReleaseHeldBy(ctx context.Context, actor auth.Principal, userID primitive.ObjectID) (int, error)
}

// Deps are the collaborators of a Service. Audit may be nil.
type Deps struct {
	Users     UserStore
	Cards     CardReleaser
	Passwords *auth.PasswordService
	Tokens    *auth.TokenService
	Audit     *auditlog.Logger
	Log       *zap.Logger
}

// Service is the user directory: accounts, login and designation.
type Service struct {
	users     UserStore
	cards     CardReleaser
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	audit     *auditlog.Logger
	log       *zap.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewService(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		users:     d.Users,
		cards:     d.Cards,
		passwords: d.Passwords,
		tokens:    d.Tokens,
		audit:     d.Audit,
		log:       log,
	}
}

// RegisterInput is the data for a new account.
type RegisterInput struct {
	Name     string `validate:"required,max=60" label:"name"`
	Email    string `validate:"required,email,max=254" label:"email"`
	Password string `validate:"required,min=6,max=72" label:"password"`
}

// Register creates an account in the default group with no roles.
func (s *Service) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	in.Name = normalize.Name(in.Name)
	in.Email = normalize.Email(in.Email)
	if res := inputval.Validate(in); res.HasErrors() {
		return models.User{}, apperr.Validation(res.FirstField(), res.First())
	}

	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.log, "users.register")
	defer cancel()

	if taken, err := s.users.EmailTaken(ctx, in.Email); err != nil {
		return models.User{}, apperr.Internal(fmt.Errorf("check email: %w", err))
	} else if taken {
		return models.User{}, apperr.Conflict(userstore.ErrDuplicateEmail.Error())
	}
	if taken, err := s.users.NameTaken(ctx, in.Name, primitive.NilObjectID); err != nil {
		return models.User{}, apperr.Internal(fmt.Errorf("check name: %w", err))
	} else if taken {
		return models.User{}, apperr.Conflict(userstore.ErrDuplicateName.Error())
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return models.User{}, apperr.Validation("Password", "password must be 72 bytes or fewer")
	}
	u, err := s.users.Create(ctx, models.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Group:        models.DefaultGroup,
	})
	if err != nil {
		return models.User{}, mapStoreErr("create user", err)
	}
	s.audit.UserRegistered(ctx, u.ID, u.Email)
	return u, nil
}

// Login checks the credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, models.User, error) {
	email = normalize.Email(email)
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "users.login")
	defer cancel()

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, userstore.ErrNotFound) {
		// Spend the same bcrypt time as a real check.
		_ = s.passwords.Verify(s.dummy(), password)
		s.audit.LoginFailedUserNotFound(ctx, email)
		return "", models.User{}, apperr.Unauthorized(errBadCredentials)
	}
	if err != nil {
		return "", models.User{}, apperr.Internal(fmt.Errorf("load user: %w", err))
	}
	if err := s.passwords.Verify(u.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.log.Error("password check failed", zap.String("user_id", u.ID.Hex()), zap.Error(err))
		}
		s.audit.LoginFailedWrongPassword(ctx, u.ID, u.Group)
		return "", models.User{}, apperr.Unauthorized(errBadCredentials)
	}

	token, err := s.tokens.Sign(auth.PrincipalFromUser(u))
	if err != nil {
		return "", models.User{}, apperr.Internal(err)
	}
	s.audit.LoginSuccess(ctx, u.ID, u.Group)
	return token, u, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.passwords.Hash("direcciones-timing-equalizer")
		if err != nil {
			s.log.Warn("could not prepare dummy hash", zap.Error(err))
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// Logout records the end of a session. Clearing the cookie is up to the
// transport; calling it without a session is fine.
func (s *Service) Logout(ctx context.Context, p *auth.Principal) {
	s.audit.Logout(ctx, p)
}

// Me returns the caller's own record.
func (s *Service) Me(ctx context.Context, p auth.Principal) (models.User, error) {
	return s.Get(ctx, p, p.UserID.Hex())
}

// Get returns a user p may see.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (models.User, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "users.get")
	defer cancel()

	u, err := s.load(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if err := userpolicy.CanView(p, u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// List returns the users of p's group, and of the default group for
// administrators.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]models.User, error) {
	groups, err := userpolicy.VisibleGroups(p)
	if err != nil {
		return nil, err
	}
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.log, "users.list")
	defer cancel()

	out, err := s.users.ListByGroups(ctx, groups)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list users: %w", err))
	}
	if out == nil {
		out = []models.User{}
	}
	return out, nil
}

// ProfileInput carries the self-service fields. Nil means "leave as is".
type ProfileInput struct {
	Name           *string `validate:"omitempty,max=60" label:"name"`
	ProfilePicture *string `validate:"omitempty,httpurl" label:"profile picture"`
}

// UpdateSelf changes p's own name and profile picture.
func (s *Service) UpdateSelf(ctx context.Context, p auth.Principal, in ProfileInput) (models.User, error) {
	if in.Name != nil {
		n := normalize.Name(*in.Name)
		if n == "" {
			return models.User{}, apperr.Validation("Name", "name is required.")
		}
		in.Name = &n
	}
	if in.ProfilePicture != nil {
		pic := strings.TrimSpace(*in.ProfilePicture)
		in.ProfilePicture = &pic
		if pic == "" {
			in.ProfilePicture = nil
		}
	}
	if res := inputval.Validate(in); res.HasErrors() {
		return models.User{}, apperr.Validation(res.FirstField(), res.First())
	}

	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.log, "users.update")
	defer cancel()

	if in.Name != nil {
		taken, err := s.users.NameTaken(ctx, *in.Name, p.UserID)
		if err != nil {
			return models.User{}, apperr.Internal(fmt.Errorf("check name: %w", err))
		}
		if taken {
			return models.User{}, apperr.Conflict(userstore.ErrDuplicateName.Error())
		}
	}
	err := s.users.UpdateProfile(ctx, p.UserID, userstore.ProfileUpdate{
		Name:           in.Name,
		ProfilePicture: in.ProfilePicture,
	})
	if err != nil {
		return models.User{}, mapStoreErr("update profile", err)
	}
	return s.fetch(ctx, p.UserID)
}

// Designate changes target's group and/or role flags.
func (s *Service) Designate(ctx context.Context, p auth.Principal, targetID string, d userpolicy.Designation) (models.User, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), s.log, "users.designate")
	defer cancel()

	target, err := s.load(ctx, targetID)
	if err != nil {
		return models.User{}, err
	}
	if err := userpolicy.CanDesignate(p, target, d); err != nil {
		return models.User{}, err
	}

	var changed []string
	if group, moving := d.NewGroup(target.Group); moving {
		// The user's card collections reset with the group, so nothing may
		// stay assigned to them.
		if _, err := s.cards.ReleaseHeldBy(ctx, p, target.ID); err != nil {
			return models.User{}, err
		}
		if err := s.users.SetGroup(ctx, target.ID, group); err != nil {
			return models.User{}, mapStoreErr("set group", err)
		}
		changed = append(changed, "group")
	}
	if d.HasRoles() {
		upd := userstore.RoleUpdate{IsAdmin: d.IsAdmin, IsSS: d.IsSS, IsSCards: d.IsSCards}
		if err := s.users.SetRoles(ctx, target.ID, upd); err != nil {
			return models.User{}, mapStoreErr("set roles", err)
		}
		changed = append(changed, "roles")
	}
	if len(changed) > 0 {
		s.audit.UserDesignated(ctx, p, target.ID, strings.Join(changed, ","))
	}
	return s.fetch(ctx, target.ID)
}

// Delete removes an account after returning the cards it holds. It
// reports how many cards were returned.
func (s *Service) Delete(ctx context.Context, p auth.Principal, targetID string) (int, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), s.log, "users.delete")
	defer cancel()

	target, err := s.load(ctx, targetID)
	if err != nil {
		return 0, err
	}
	if err := userpolicy.CanDelete(p, target); err != nil {
		return 0, err
	}
	returned, err := s.cards.ReleaseHeldBy(ctx, p, target.ID)
	if err != nil {
		return returned, err
	}
	ok, err := s.users.Delete(ctx, target.ID)
	if err != nil {
		return returned, apperr.Internal(fmt.Errorf("delete user: %w", err))
	}
	if !ok {
		return returned, apperr.NotFound("user")
	}
	s.audit.UserDeleted(ctx, p, target.ID, returned)
	return returned, nil
}

func (s *Service) load(ctx context.Context, hex string) (models.User, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return models.User{}, apperr.Validation("id", "invalid user id")
	}
	return s.fetch(ctx, id)
}

func (s *Service) fetch(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, mapStoreErr("load user", err)
	}
	return u, nil
}

func mapStoreErr(op string, err error) error {
	switch {
	case errors.Is(err, userstore.ErrNotFound):
		return apperr.NotFound("user")
	case errors.Is(err, userstore.ErrDuplicateEmail), errors.Is(err, userstore.ErrDuplicateName):
		return apperr.Conflict(err.Error())
	default:
		return apperr.Internal(fmt.Errorf("%s: %w", op, err))
	}
}
