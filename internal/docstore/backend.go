// Package docstore is the document collection boundary used by the repository
// layer: point reads and writes, filtered queries and live queries over named
// collections of BSON documents keyed by uid.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrInvalidOp = errors.New("invalid query operator")
)

// Op is a comparison operator in a query predicate.
type Op string

const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// Predicate compares the value at a dotted field path with Value.
// OpNe only matches documents where the field exists.
type Predicate struct {
	Field string
	Op    Op
	Value interface{}
}

// Where builds a Predicate.
func Where(field string, op Op, value interface{}) Predicate {
	return Predicate{Field: field, Op: op, Value: value}
}

// OrderBy sorts query results by a single field.
type OrderBy struct {
	Field string
	Desc  bool
}

// Query is a conjunction of predicates with an optional ordering.
type Query struct {
	Where []Predicate
	Order *OrderBy
}

func (q Query) validate() error {
	for _, p := range q.Where {
		switch p.Op {
		case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
		default:
			return fmt.Errorf("%w: %q on %s", ErrInvalidOp, p.Op, p.Field)
		}
	}
	return nil
}

type deleteField struct{}

// DeleteField as a value in Update removes the field at that path.
var DeleteField = deleteField{}

// ChangeType classifies a live query event relative to the query.
type ChangeType string

const (
	Added    ChangeType = "added"
	Modified ChangeType = "modified"
	Removed  ChangeType = "removed"
)

// Change is one live query event. Doc is the document after the change, or
// the last matching version for Removed (nil when unknown).
type Change struct {
	Type ChangeType
	ID   string
	Doc  bson.Raw
}

// CancelFunc stops a live query. Calling it more than once is a no-op.
type CancelFunc func()

// Backend is a document database. Documents are stored under "_id" = id.
//
// Watch delivers the current matches as Added events before it returns, then
// incremental events in commit order until cancelled. ctx only bounds opening
// the watch. A document that starts matching is delivered as Added and one
// that stops matching as Removed.
type Backend interface {
	Get(ctx context.Context, collection, id string) (bson.Raw, error)
	Set(ctx context.Context, collection, id string, doc interface{}) error
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	Find(ctx context.Context, collection string, q Query) ([]bson.Raw, error)
	Delete(ctx context.Context, collection, id string) error
	Watch(ctx context.Context, collection string, q Query, fn func(Change)) (CancelFunc, error)
}
