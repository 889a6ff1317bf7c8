package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/model"
)

type timed struct {
	next Store
	d    time.Duration
}

// WithTimeout bounds every request/response call on s by d and reports an
// expired bound as apperr.ErrTimeout. Subscribe is bounded only by its
// caller's context since the stream outlives the call.
func WithTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return &timed{next: s, d: d}
}

func (t *timed) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.d)
}

func check(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, apperr.ErrTimeout) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", apperr.ErrTimeout, err)
	}
	return err
}

func (t *timed) Insert(ctx context.Context, c model.Collection, f Fields) (string, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	id, err := t.next.Insert(ctx, c, f)
	return id, check(ctx, err)
}

func (t *timed) Get(ctx context.Context, c model.Collection, id string) (Record, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	rec, err := t.next.Get(ctx, c, id)
	return rec, check(ctx, err)
}

func (t *timed) GetAll(ctx context.Context, c model.Collection) ([]Record, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	recs, err := t.next.GetAll(ctx, c)
	return recs, check(ctx, err)
}

func (t *timed) GetWhere(ctx context.Context, c model.Collection, field string, value any) ([]Record, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	recs, err := t.next.GetWhere(ctx, c, field, value)
	return recs, check(ctx, err)
}

func (t *timed) Find(ctx context.Context, c model.Collection, p Predicate) ([]Record, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	recs, err := t.next.Find(ctx, c, p)
	return recs, check(ctx, err)
}

func (t *timed) Update(ctx context.Context, c model.Collection, id string, f Fields) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return check(ctx, t.next.Update(ctx, c, id, f))
}

func (t *timed) Delete(ctx context.Context, c model.Collection, id string) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return check(ctx, t.next.Delete(ctx, c, id))
}

func (t *timed) Subscribe(ctx context.Context, c model.Collection, p Predicate, fn Listener) (Unsubscribe, error) {
	return t.next.Subscribe(ctx, c, p, fn)
}
