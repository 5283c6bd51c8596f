package cardstore

import (
	"context"
	"errors"
	"time"

	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when no card matches.
	ErrNotFound = errors.New("card not found")
	// ErrDuplicateNumber is returned when another card already holds the number.
	ErrDuplicateNumber = errors.New("a card with this number already exists")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("cards")}
}

// List returns cards ordered by number. An empty group lists every group.
func (s *Store) List(ctx context.Context, group string) ([]models.Card, error) {
	filter := bson.M{}
	if group != "" {
		filter["group"] = group
	}
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "number", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []models.Card
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID loads a card by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Card, error) {
	var c models.Card
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Card{}, ErrNotFound
		}
		return models.Card{}, err
	}
	return c, nil
}

// Numbers returns every card number in ascending order.
func (s *Store) Numbers(ctx context.Context) ([]int, error) {
	opts := options.Find().
		SetProjection(bson.M{"number": 1}).
		SetSort(bson.D{{Key: "number", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Number int `bson:"number"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	nums := make([]int, 0, len(rows))
	for _, r := range rows {
		nums = append(nums, r.Number)
	}
	return nums, nil
}

// Insert stores a new card. The unique number index turns a lost numbering
// race into ErrDuplicateNumber.
func (s *Store) Insert(ctx context.Context, c models.Card) (models.Card, error) {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Street == nil {
		c.Street = []primitive.ObjectID{}
	}
	if c.UsersAssigned == nil {
		c.UsersAssigned = []models.Assignment{}
	}
	if c.AssignedHistory == nil {
		c.AssignedHistory = []models.Assignment{}
	}
	if _, err := s.c.InsertOne(ctx, c); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Card{}, ErrDuplicateNumber
		}
		return models.Card{}, err
	}
	return c, nil
}

// Assign hands an unassigned card to userID. It reports false when the card
// is missing or a concurrent request assigned it first.
func (s *Store) Assign(ctx context.Context, id, userID primitive.ObjectID, at time.Time) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "start_date": nil},
		bson.M{"$set": bson.M{
			"start_date":     at,
			"end_date":       nil,
			"users_assigned": []models.Assignment{{UserID: userID, Date: at}},
			"updated_at":     time.Now().UTC(),
		}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// RevertAssign undoes an Assign made by the same request, restoring the
// previous end date. It only touches the card while userID still holds it.
func (s *Store) RevertAssign(ctx context.Context, id, userID primitive.ObjectID, prevEnd *time.Time) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "users_assigned.user_id": userID},
		bson.M{"$set": bson.M{
			"start_date":     nil,
			"end_date":       prevEnd,
			"users_assigned": []models.Assignment{},
			"updated_at":     time.Now().UTC(),
		}},
	)
	return err
}

// Return takes the card back from holder and appends the assignment to the
// history. It reports false when the card is not held by holder.
func (s *Store) Return(ctx context.Context, id, holder primitive.ObjectID, at time.Time) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{
			"_id":                    id,
			"start_date":             bson.M{"$ne": nil},
			"users_assigned.user_id": holder,
		},
		bson.M{
			"$set": bson.M{
				"start_date":     nil,
				"end_date":       at,
				"users_assigned": []models.Assignment{},
				"updated_at":     time.Now().UTC(),
			},
			"$push": bson.M{"assigned_history": models.Assignment{UserID: holder, Date: at}},
		},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// SetStreet replaces the card's address list.
func (s *Store) SetStreet(ctx context.Context, id primitive.ObjectID, street []primitive.ObjectID) error {
	if street == nil {
		street = []primitive.ObjectID{}
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"street": street, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ReferencingAny returns cards other than exclude whose street contains any of ids.
func (s *Store) ReferencingAny(ctx context.Context, ids []primitive.ObjectID, exclude primitive.ObjectID) ([]models.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.c.Find(ctx, bson.M{
		"_id":    bson.M{"$ne": exclude},
		"street": bson.M{"$in": ids},
	})
	if err != nil {
		return nil, err
	}
	var out []models.Card
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HeldBy returns the cards currently assigned to userID.
func (s *Store) HeldBy(ctx context.Context, userID primitive.ObjectID) ([]models.Card, error) {
	cur, err := s.c.Find(ctx, bson.M{"users_assigned.user_id": userID})
	if err != nil {
		return nil, err
	}
	var out []models.Card
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a card. It reports whether a document was deleted.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount == 1, nil
}

// PullAddresses removes the given address ids from every card's street and
// returns the number of cards changed.
func (s *Store) PullAddresses(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.c.UpdateMany(ctx,
		bson.M{"street": bson.M{"$in": ids}},
		bson.M{
			"$pull": bson.M{"street": bson.M{"$in": ids}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// ReferencedAddressIDs returns the distinct address ids referenced by any card.
func (s *Store) ReferencedAddressIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	vals, err := s.c.Distinct(ctx, "street", bson.M{})
	if err != nil {
		return nil, err
	}
	out := make([]primitive.ObjectID, 0, len(vals))
	for _, v := range vals {
		if id, ok := v.(primitive.ObjectID); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// PruneHistory drops assignment history entries dated before cutoff and
// returns the number of cards changed.
func (s *Store) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"assigned_history.date": bson.M{"$lt": cutoff}},
		bson.M{"$pull": bson.M{"assigned_history": bson.M{"date": bson.M{"$lt": cutoff}}}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
