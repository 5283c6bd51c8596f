package addressstore

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/paging"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when no address matches.
	ErrNotFound = errors.New("address not found")
	// ErrDuplicate is returned when the (street, number, city) triple is taken.
	ErrDuplicate = errors.New("an address with this street, number and city already exists")
)

// Filter narrows Find. Group is always applied; the rest only when set.
// Street matches as a case-insensitive substring; City and Type exactly.
type Filter struct {
	Group  string
	Street string
	City   string
	Type   string
}

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("addresses")}
}

// Find lists addresses matching f, newest first.
func (s *Store) Find(ctx context.Context, f Filter, w paging.Window) ([]models.Address, error) {
	q := bson.M{"group": f.Group}
	if f.Street != "" {
		q["street"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.Street), Options: "i"}
	}
	if f.City != "" {
		q["city"] = f.City
	}
	if f.Type != "" {
		q["type"] = f.Type
	}
	opts := w.Apply(options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}))
	cur, err := s.c.Find(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	out := []models.Address{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID loads an address by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Address, error) {
	var a models.Address
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Address{}, ErrNotFound
		}
		return models.Address{}, err
	}
	return a, nil
}

// GetMany loads every address in ids with one query. Missing ids are skipped.
func (s *Store) GetMany(ctx context.Context, ids []primitive.ObjectID) ([]models.Address, error) {
	if len(ids) == 0 {
		return []models.Address{}, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	out := []models.Address{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TripleExists reports whether an address other than exclude already uses
// (street, number, city), in any group.
func (s *Store) TripleExists(ctx context.Context, street, number, city string, exclude primitive.ObjectID) (bool, error) {
	q := bson.M{"street": street, "number": number, "city": city}
	if !exclude.IsZero() {
		q["_id"] = bson.M{"$ne": exclude}
	}
	err := s.c.FindOne(ctx, q, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return false, err
}

// Create inserts a. Fields are stored as given; callers normalize first.
func (s *Store) Create(ctx context.Context, a models.Address) (models.Address, error) {
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, a); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Address{}, ErrDuplicate
		}
		return models.Address{}, err
	}
	return a, nil
}

// Update writes every mutable field of a.
func (s *Store) Update(ctx context.Context, a models.Address) (models.Address, error) {
	a.UpdatedAt = time.Now().UTC()
	set := bson.M{
		"street":       a.Street,
		"number":       a.Number,
		"city":         a.City,
		"neighborhood": a.Neighborhood,
		"gps":          a.GPS,
		"complement":   a.Complement,
		"photo":        a.Photo,
		"type":         a.Type,
		"confirmed":    a.Confirmed,
		"active":       a.Active,
		"visited":      a.Visited,
		"updated_at":   a.UpdatedAt,
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": a.ID}, bson.M{"$set": set})
	if err != nil {
		if wafflemongo.IsDup(err) {
			return models.Address{}, ErrDuplicate
		}
		return models.Address{}, err
	}
	if res.MatchedCount == 0 {
		return models.Address{}, ErrNotFound
	}
	return a, nil
}

// Delete removes an address. It reports whether a document was deleted.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount == 1, nil
}

// ExistingIDs returns the subset of ids that still exist.
func (s *Store) ExistingIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	out := make(map[primitive.ObjectID]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.ID] = true
	}
	return out, cur.Err()
}
