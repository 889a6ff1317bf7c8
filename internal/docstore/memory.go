package docstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"healthcare-records-api/internal/apperr"
	"healthcare-records-api/internal/model"
)

type memCollection struct {
	order []string
	docs  map[string]Fields
}

type memSub struct {
	coll model.Collection
	pred Predicate
	fn   Listener

	mu   sync.Mutex
	last uint64
}

// deliver hands snap to the listener unless a later snapshot already went
// out. Deliveries to one subscription never overlap.
func (s *memSub) deliver(seq uint64, snap []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.last {
		return
	}
	s.last = seq
	s.fn(snap, nil)
}

// Memory is an in-process Store used by the memory driver and the tests.
// Listeners run synchronously on the writing goroutine, after the write
// is visible.
type Memory struct {
	mu    sync.RWMutex
	colls map[model.Collection]*memCollection
	subs  map[int]*memSub
	next  int
	// seq numbers snapshots; taken under mu so a larger value never
	// describes an older state.
	seq atomic.Uint64
}

func NewMemory() *Memory {
	return &Memory{
		colls: make(map[model.Collection]*memCollection),
		subs:  make(map[int]*memSub),
	}
}

func (m *Memory) coll(c model.Collection) *memCollection {
	mc, ok := m.colls[c]
	if !ok {
		mc = &memCollection{docs: make(map[string]Fields)}
		m.colls[c] = mc
	}
	return mc
}

func (m *Memory) Insert(ctx context.Context, c model.Collection, f Fields) (string, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return "", err
	}
	id := uuid.New().String()
	m.mu.Lock()
	mc := m.coll(c)
	mc.docs[id] = f.clone()
	mc.order = append(mc.order, id)
	m.mu.Unlock()

	m.notify(c)
	return id, nil
}

func (m *Memory) Get(ctx context.Context, c model.Collection, id string) (Record, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.colls[c]
	if !ok {
		return Record{}, apperr.ErrNotFound
	}
	f, ok := mc.docs[id]
	if !ok {
		return Record{}, apperr.ErrNotFound
	}
	return Record{ID: id, Fields: f.clone()}, nil
}

func (m *Memory) GetAll(ctx context.Context, c model.Collection) ([]Record, error) {
	return m.Find(ctx, c, nil)
}

func (m *Memory) GetWhere(ctx context.Context, c model.Collection, field string, value any) ([]Record, error) {
	return m.Find(ctx, c, Predicate{{Field: field, Value: value}})
}

func (m *Memory) Find(ctx context.Context, c model.Collection, p Predicate) ([]Record, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.find(c, p), nil
}

// caller holds mu
func (m *Memory) find(c model.Collection, p Predicate) []Record {
	mc, ok := m.colls[c]
	if !ok {
		return nil
	}
	var out []Record
	for _, id := range mc.order {
		f := mc.docs[id]
		if p.Matches(f) {
			out = append(out, Record{ID: id, Fields: f.clone()})
		}
	}
	return out
}

func (m *Memory) Update(ctx context.Context, c model.Collection, id string, f Fields) error {
	if err := apperr.FromContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	doc, ok := m.coll(c).docs[id]
	if ok {
		for k, v := range f {
			doc[k] = v
		}
	}
	m.mu.Unlock()
	if !ok {
		return apperr.ErrNotFound
	}

	m.notify(c)
	return nil
}

func (m *Memory) Delete(ctx context.Context, c model.Collection, id string) error {
	if err := apperr.FromContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	mc := m.coll(c)
	_, ok := mc.docs[id]
	if ok {
		delete(mc.docs, id)
		for i, v := range mc.order {
			if v == id {
				mc.order = append(mc.order[:i], mc.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()
	if !ok {
		return apperr.ErrNotFound
	}

	m.notify(c)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, c model.Collection, p Predicate, fn Listener) (Unsubscribe, error) {
	if err := apperr.FromContext(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	key := m.next
	m.next++
	sub := &memSub{coll: c, pred: p, fn: fn}
	m.subs[key] = sub
	snap := m.find(c, p)
	seq := m.seq.Add(1)
	m.mu.Unlock()

	sub.deliver(seq, snap)

	var once sync.Once
	remove := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, key)
			m.mu.Unlock()
		})
	}
	stop := context.AfterFunc(ctx, remove)
	return func() {
		stop()
		remove()
	}, nil
}

func (m *Memory) notify(c model.Collection) {
	type delivery struct {
		sub  *memSub
		seq  uint64
		snap []Record
	}
	var out []delivery

	m.mu.RLock()
	for _, s := range m.subs {
		if s.coll == c {
			out = append(out, delivery{sub: s, seq: m.seq.Add(1), snap: m.find(c, s.pred)})
		}
	}
	m.mu.RUnlock()

	for _, d := range out {
		d.sub.deliver(d.seq, d.snap)
	}
}

// Subscribers reports live subscriptions, for leak checks.
func (m *Memory) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}
