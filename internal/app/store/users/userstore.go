package userstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/normalize"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	// ErrDuplicateName is returned when the display name is already taken.
	ErrDuplicateName = errors.New("a user with this name already exists")
)

// Index names used to tell duplicate-key errors apart.
const (
	EmailIndex = "uniq_users_email"
	NameIndex  = "uniq_users_name_ci"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return u, nil
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByEmail looks up a user by case-insensitive email.
func (s *Store) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findOne(ctx, bson.M{"email": normalize.Email(email)})
}

// NameTaken reports whether a user other than exclude uses name (folded).
func (s *Store) NameTaken(ctx context.Context, name string, exclude primitive.ObjectID) (bool, error) {
	q := bson.M{"name_ci": text.Fold(normalize.Name(name))}
	if !exclude.IsZero() {
		q["_id"] = bson.M{"$ne": exclude}
	}
	return s.exists(ctx, q)
}

// EmailTaken reports whether any user has email.
func (s *Store) EmailTaken(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, bson.M{"email": normalize.Email(email)})
}

func (s *Store) exists(ctx context.Context, q bson.M) (bool, error) {
	err := s.c.FindOne(ctx, q, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return false, err
}

// Create inserts a new user. Name and email are normalized, the group
// defaults to models.DefaultGroup and the collections start empty.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.ID = primitive.NewObjectID()
	u.Name = normalize.Name(u.Name)
	u.NameCI = text.Fold(u.Name)
	u.Email = normalize.Email(u.Email)
	u.Group = normalize.Group(u.Group)
	u.MyCards = []models.CardRef{}
	u.MyTotalCards = []models.CardRef{}
	u.Comments = []models.Comment{}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		return models.User{}, dupErr(err)
	}
	return u, nil
}

// dupErr maps a duplicate-key error to the sentinel for the violated index.
func dupErr(err error) error {
	if !wafflemongo.IsDup(err) {
		return err
	}
	if strings.Contains(err.Error(), NameIndex) {
		return ErrDuplicateName
	}
	return ErrDuplicateEmail
}

// ListByGroups returns the users of the given groups ordered by name.
func (s *Store) ListByGroups(ctx context.Context, groups []string) ([]models.User, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"group": bson.M{"$in": groups}},
		options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	out := []models.User{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProfileUpdate holds the self-service fields. Nil fields are left alone.
type ProfileUpdate struct {
	Name           *string
	ProfilePicture *string
}

// UpdateProfile applies upd to the user.
func (s *Store) UpdateProfile(ctx context.Context, id primitive.ObjectID, upd ProfileUpdate) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if upd.Name != nil {
		name := normalize.Name(*upd.Name)
		set["name"] = name
		set["name_ci"] = text.Fold(name)
	}
	if upd.ProfilePicture != nil {
		set["profile_picture"] = strings.TrimSpace(*upd.ProfilePicture)
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return dupErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetGroup moves the user to group. Role flags and the card and comment
// collections are always reset with it.
func (s *Store) SetGroup(ctx context.Context, id primitive.ObjectID, group string) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"group":          normalize.Group(group),
		"is_admin":       false,
		"is_ss":          false,
		"is_scards":      false,
		"my_cards":       []models.CardRef{},
		"my_total_cards": []models.CardRef{},
		"comments":       []models.Comment{},
		"updated_at":     time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RoleUpdate holds role flag changes. Nil fields are left alone.
type RoleUpdate struct {
	IsAdmin  *bool
	IsSS     *bool
	IsSCards *bool
}

// Empty reports whether upd changes nothing.
func (upd RoleUpdate) Empty() bool {
	return upd.IsAdmin == nil && upd.IsSS == nil && upd.IsSCards == nil
}

// SetRoles applies upd to the user.
func (s *Store) SetRoles(ctx context.Context, id primitive.ObjectID, upd RoleUpdate) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if upd.IsAdmin != nil {
		set["is_admin"] = *upd.IsAdmin
	}
	if upd.IsSS != nil {
		set["is_ss"] = *upd.IsSS
	}
	if upd.IsSCards != nil {
		set["is_scards"] = *upd.IsSCards
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCardRef records a newly assigned card on the user's current and
// lifetime card lists.
func (s *Store) AddCardRef(ctx context.Context, userID primitive.ObjectID, ref models.CardRef) error {
	if ref.Addresses == nil {
		ref.Addresses = []primitive.ObjectID{}
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$push": bson.M{"my_cards": ref, "my_total_cards": ref},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// PullCardRef removes a card from the user's current cards.
func (s *Store) PullCardRef(ctx context.Context, userID, cardID primitive.ObjectID) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$pull": bson.M{"my_cards": bson.M{"card_id": cardID}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	return err
}

// RevertCardRef undoes AddCardRef for the reference recorded at "at".
func (s *Store) RevertCardRef(ctx context.Context, userID, cardID primitive.ObjectID, at time.Time) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$pull": bson.M{
			"my_cards":       bson.M{"card_id": cardID, "date": at},
			"my_total_cards": bson.M{"card_id": cardID, "date": at},
		},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	return err
}

// PullCardFromAll removes a card from every user's current cards.
func (s *Store) PullCardFromAll(ctx context.Context, cardID primitive.ObjectID) error {
	_, err := s.c.UpdateMany(ctx, bson.M{"my_cards.card_id": cardID}, bson.M{
		"$pull": bson.M{"my_cards": bson.M{"card_id": cardID}},
	})
	return err
}

// PullAddresses removes address ids from every card reference held by any
// user and returns the number of users changed.
func (s *Store) PullAddresses(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	in := bson.M{"$in": ids}
	res, err := s.c.UpdateMany(ctx,
		bson.M{"$or": bson.A{
			bson.M{"my_cards.addresses": in},
			bson.M{"my_total_cards.addresses": in},
		}},
		bson.M{"$pull": bson.M{
			"my_cards.$[].addresses":       in,
			"my_total_cards.$[].addresses": in,
		}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// ReferencedAddressIDs returns the distinct address ids found in users'
// current and lifetime card references.
func (s *Store) ReferencedAddressIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	seen := make(map[primitive.ObjectID]struct{})
	out := []primitive.ObjectID{}
	for _, field := range []string{"my_cards.addresses", "my_total_cards.addresses"} {
		vals, err := s.c.Distinct(ctx, field, bson.M{})
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			id, ok := v.(primitive.ObjectID)
			if !ok {
				continue
			}
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// AddComment appends c to the user's comments.
func (s *Store) AddComment(ctx context.Context, userID primitive.ObjectID, c models.Comment) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$push": bson.M{"comments": c},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a user. It reports whether a document was deleted.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount == 1, nil
}
