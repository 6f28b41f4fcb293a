// internal/app/system/paging/paging.go
package paging

import (
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultSize is the number of rows in a page when the caller asks for none.
const DefaultSize = 50

// MaxSize caps caller-supplied page sizes.
const MaxSize = 200

// Direction indicates the pagination direction.
type Direction int

const (
	Forward  Direction = iota // sort ascending, rows after the cursor
	Backward                  // sort descending, rows before the cursor
)

// Keyset is one page request over a (key, _id) ordering.
type Keyset struct {
	Direction Direction
	Cursor    *wafflemongo.Cursor
	Size      int
}

// Parse builds a Keyset from the before/after cursors. before wins when
// both are set; a cursor that does not decode reads as the first page.
func Parse(before, after string, size int) Keyset {
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}
	k := Keyset{Direction: Forward, Size: size}

	raw := after
	if before != "" {
		k.Direction = Backward
		raw = before
	}
	if raw != "" {
		if c, ok := wafflemongo.DecodeCursor(raw); ok {
			k.Cursor = &c
		}
	}
	return k
}

// Limit is Size+1: the extra row tells whether another page exists.
func (k Keyset) Limit() int64 { return int64(k.Size + 1) }

func (k Keyset) sortOrder() int {
	if k.Direction == Backward {
		return -1
	}
	return 1
}

// Filter returns the cursor condition on field, or nil on a first page.
func (k Keyset) Filter(field string) bson.M {
	if k.Cursor == nil {
		return nil
	}
	dir := "gt"
	if k.Direction == Backward {
		dir = "lt"
	}
	return wafflemongo.KeysetWindow(field, dir, k.Cursor.CI, k.Cursor.ID)
}

// FindOptions sorts by field then _id in k's direction and applies Limit.
func (k Keyset) FindOptions(field string) *options.FindOptions {
	o := k.sortOrder()
	return options.Find().
		SetSort(bson.D{{Key: field, Value: o}, {Key: "_id", Value: o}}).
		SetLimit(k.Limit())
}

// Admits reports whether a row with (key, id) lies past the cursor in k's
// direction. It mirrors Filter for stores that page in memory.
func (k Keyset) Admits(key string, id primitive.ObjectID) bool {
	if k.Cursor == nil {
		return true
	}
	c := Compare(key, id, k.Cursor.CI, k.Cursor.ID)
	if k.Direction == Backward {
		return c < 0
	}
	return c > 0
}

// Compare orders (key, id) pairs the way the keyset sort does.
func Compare(keyA string, idA primitive.ObjectID, keyB string, idB primitive.ObjectID) int {
	switch {
	case keyA < keyB:
		return -1
	case keyA > keyB:
		return 1
	}
	ha, hb := idA.Hex(), idB.Hex()
	switch {
	case ha < hb:
		return -1
	case ha > hb:
		return 1
	}
	return 0
}

// Page is one window of rows in ascending order.
type Page[T any] struct {
	Items   []T    `json:"items"`
	Prev    string `json:"prev_cursor,omitempty"`
	Next    string `json:"next_cursor,omitempty"`
	HasPrev bool   `json:"has_prev"`
	HasNext bool   `json:"has_next"`
}

// Build turns rows fetched with k.Limit() and k's sort into a page: the
// look-ahead row is trimmed, backward pages are put back in ascending
// order, and the edge rows become the prev/next cursors.
func Build[T any](k Keyset, rows []T, keyFn func(T) string, idFn func(T) primitive.ObjectID) Page[T] {
	var p Page[T]
	if k.Direction == Backward {
		Reverse(rows)
		if len(rows) > k.Size {
			rows = rows[len(rows)-k.Size:]
			p.HasPrev = true
		}
		p.HasNext = k.Cursor != nil
	} else {
		if len(rows) > k.Size {
			rows = rows[:k.Size]
			p.HasNext = true
		}
		p.HasPrev = k.Cursor != nil
	}
	if rows == nil {
		rows = []T{}
	}
	p.Items = rows
	p.Prev, p.Next = BuildCursors(rows, keyFn, idFn)
	return p
}

// Reverse reverses a slice in place.
func Reverse[T any](rows []T) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

// BuildCursors creates prev/next cursor strings from the first and last elements.
func BuildCursors[T any](rows []T, keyFn func(T) string, idFn func(T) primitive.ObjectID) (prev, next string) {
	if len(rows) == 0 {
		return "", ""
	}
	first := rows[0]
	last := rows[len(rows)-1]
	prev = wafflemongo.EncodeCursor(keyFn(first), idFn(first))
	next = wafflemongo.EncodeCursor(keyFn(last), idFn(last))
	return prev, next
}
