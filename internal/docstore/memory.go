package docstore

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"
)

// MemoryBackend is an in-process Backend used by tests and by single-node dev
// mode. Live query events are delivered synchronously, before the mutating
// call returns, in mutation order. Watch handlers may read from the backend
// and cancel watches but must not write to it or open new watches.
type MemoryBackend struct {
	dispatchMu sync.Mutex // serializes mutations with their event delivery

	mu          sync.RWMutex
	collections map[string]map[string]bson.M
	watchers    map[uint64]*watcher
	nextID      uint64
}

type watcher struct {
	collection string
	query      Query
	fn         func(Change)
	cancelled  atomic.Bool
}

type pending struct {
	w *watcher
	c Change
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		collections: make(map[string]map[string]bson.M),
		watchers:    make(map[uint64]*watcher),
	}
}

func (m *MemoryBackend) col(name string) map[string]bson.M {
	c, ok := m.collections[name]
	if !ok {
		c = make(map[string]bson.M)
		m.collections[name] = c
	}
	return c
}

func (m *MemoryBackend) Get(ctx context.Context, collection, id string) (bson.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return bson.Marshal(d)
}

func (m *MemoryBackend) Set(ctx context.Context, collection, id string, doc interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next, err := toDoc(doc)
	if err != nil {
		return err
	}
	next["_id"] = id

	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	m.mu.Lock()
	c := m.col(collection)
	prev := c[id]
	c[id] = next
	events := m.changesLocked(collection, id, prev, next)
	m.mu.Unlock()
	deliver(events)
	return nil
}

func (m *MemoryBackend) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	values := make(map[string]interface{}, len(fields))
	for path, v := range fields {
		if v == DeleteField {
			values[path] = v
			continue
		}
		nv, err := normalizeValue(v)
		if err != nil {
			return err
		}
		values[path] = nv
	}

	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	m.mu.Lock()
	c := m.col(collection)
	prev, ok := c[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	next, err := toDoc(prev)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	for path, v := range values {
		if v == DeleteField {
			deletePath(next, path)
		} else {
			setPath(next, path, v)
		}
	}
	c[id] = next
	events := m.changesLocked(collection, id, prev, next)
	m.mu.Unlock()
	deliver(events)
	return nil
}

func (m *MemoryBackend) Find(ctx context.Context, collection string, q Query) ([]bson.Raw, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLocked(collection, q)
}

func (m *MemoryBackend) findLocked(collection string, q Query) ([]bson.Raw, error) {
	type hit struct {
		id  string
		doc bson.M
	}
	var hits []hit
	for id, d := range m.collections[collection] {
		if matchDoc(q, d) {
			hits = append(hits, hit{id, d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if q.Order != nil {
			a, _ := lookup(hits[i].doc, q.Order.Field)
			b, _ := lookup(hits[j].doc, q.Order.Field)
			if c, ok := compareValues(a, b); ok && c != 0 {
				if q.Order.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return hits[i].id < hits[j].id
	})
	out := make([]bson.Raw, 0, len(hits))
	for _, h := range hits {
		raw, err := bson.Marshal(h.doc)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func (m *MemoryBackend) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	m.mu.Lock()
	c := m.col(collection)
	prev, ok := c[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(c, id)
	events := m.changesLocked(collection, id, prev, nil)
	m.mu.Unlock()
	deliver(events)
	return nil
}

func (m *MemoryBackend) Watch(ctx context.Context, collection string, q Query, fn func(Change)) (CancelFunc, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	snapshot, err := m.findLocked(collection, q)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	w := &watcher{collection: collection, query: q, fn: fn}
	m.nextID++
	key := m.nextID
	m.watchers[key] = w
	m.mu.Unlock()

	for _, raw := range snapshot {
		if w.cancelled.Load() {
			break
		}
		id, _ := raw.Lookup("_id").StringValueOK()
		fn(Change{Type: Added, ID: id, Doc: raw})
	}

	return func() {
		if w.cancelled.Swap(true) {
			return
		}
		m.mu.Lock()
		delete(m.watchers, key)
		m.mu.Unlock()
	}, nil
}

// changesLocked classifies a write against every watcher on the collection.
// prev or next is nil when the document did not exist before or after.
func (m *MemoryBackend) changesLocked(collection, id string, prev, next bson.M) []pending {
	if prev != nil && next != nil && reflect.DeepEqual(prev, next) {
		return nil
	}
	keys := make([]uint64, 0, len(m.watchers))
	for k, w := range m.watchers {
		if w.collection == collection {
			keys = append(keys, k)
		}
	}
	// oldest watcher first
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var out []pending
	for _, k := range keys {
		w := m.watchers[k]
		before := prev != nil && matchDoc(w.query, prev)
		after := next != nil && matchDoc(w.query, next)
		var c Change
		switch {
		case !before && after:
			c = Change{Type: Added, ID: id, Doc: marshalOrNil(next)}
		case before && after:
			c = Change{Type: Modified, ID: id, Doc: marshalOrNil(next)}
		case before && !after:
			c = Change{Type: Removed, ID: id, Doc: marshalOrNil(prev)}
		default:
			continue
		}
		out = append(out, pending{w: w, c: c})
	}
	return out
}

func deliver(events []pending) {
	for _, e := range events {
		if e.w.cancelled.Load() {
			continue
		}
		e.w.fn(e.c)
	}
}

func marshalOrNil(d bson.M) bson.Raw {
	raw, err := bson.Marshal(d)
	if err != nil {
		return nil
	}
	return raw
}
