// Package docstore is the document database seen by the rest of the service:
// schemaless records addressed by collection and store-assigned id, equality
// queries, and push subscriptions.
package docstore

import (
	"context"
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"

	"healthcare-records-api/internal/model"
)

// Fields is the body of a document.
type Fields map[string]any

// Record is a stored document plus its id.
type Record struct {
	ID     string
	Fields Fields
}

// Eq is a single equality clause.
type Eq struct {
	Field string
	Value any
}

// Predicate is a conjunction of equality clauses. An empty predicate
// matches everything.
type Predicate []Eq

// Matches reports whether f satisfies every clause of p.
func (p Predicate) Matches(f Fields) bool {
	for _, c := range p {
		v, ok := f[c.Field]
		if !ok || !reflect.DeepEqual(v, c.Value) {
			return false
		}
	}
	return true
}

// Listener receives the full set of matching records after every change,
// or a terminal error.
type Listener func(records []Record, err error)

// Unsubscribe releases a subscription. Safe to call more than once.
type Unsubscribe func()

// Store is implemented by Mongo and Memory. Missing ids yield
// apperr.ErrNotFound; transport failures yield apperr.ErrUpstreamUnavailable
// or apperr.ErrTimeout.
type Store interface {
	Insert(ctx context.Context, c model.Collection, f Fields) (string, error)
	Get(ctx context.Context, c model.Collection, id string) (Record, error)
	GetAll(ctx context.Context, c model.Collection) ([]Record, error)
	GetWhere(ctx context.Context, c model.Collection, field string, value any) ([]Record, error)
	// Find returns the records matching p in insertion order.
	Find(ctx context.Context, c model.Collection, p Predicate) ([]Record, error)
	Update(ctx context.Context, c model.Collection, id string, f Fields) error
	Delete(ctx context.Context, c model.Collection, id string) error
	// Subscribe delivers an initial snapshot and then one per change until
	// the returned Unsubscribe is called or ctx ends.
	Subscribe(ctx context.Context, c model.Collection, p Predicate, fn Listener) (Unsubscribe, error)
}

// Encode converts a bson-tagged model value into Fields.
func Encode(v any) (Fields, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return Fields(m), nil
}

// Decode fills v from rec and, when v has a SetID method, its id.
func Decode(rec Record, v any) error {
	raw, err := bson.Marshal(bson.M(rec.Fields))
	if err != nil {
		return fmt.Errorf("decode document %s: %w", rec.ID, err)
	}
	if err := bson.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document %s: %w", rec.ID, err)
	}
	if s, ok := v.(interface{ SetID(string) }); ok {
		s.SetID(rec.ID)
	}
	return nil
}

func (f Fields) clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
