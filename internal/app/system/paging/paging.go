// internal/app/system/paging/paging.go
package paging

import (
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PageSize is the number of rows returned when the caller gives no limit.
const PageSize = 50

// MaxPageSize caps any requested limit.
const MaxPageSize = 100

// Window is a clamped skip/limit pair.
type Window struct {
	Skip  int64
	Limit int64
}

// Clamp normalizes caller-provided paging. Nil limit means PageSize; limits
// are held to [1, MaxPageSize]; negative or nil skip means 0.
func Clamp(skip, limit *int) Window {
	w := Window{Skip: 0, Limit: PageSize}
	if skip != nil && *skip > 0 {
		w.Skip = int64(*skip)
	}
	if limit != nil {
		switch l := *limit; {
		case l < 1:
			w.Limit = 1
		case l > MaxPageSize:
			w.Limit = MaxPageSize
		default:
			w.Limit = int64(l)
		}
	}
	return w
}

// Apply sets skip and limit on find.
func (w Window) Apply(find *options.FindOptions) *options.FindOptions {
	return find.SetSkip(w.Skip).SetLimit(w.Limit)
}
