package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type testDoc struct {
	UID     string            `bson:"uid"`
	Name    string            `bson:"name"`
	Rank    int               `bson:"rank"`
	Sources map[string]string `bson:"sources,omitempty"`
}

func decode(t *testing.T, raw bson.Raw) testDoc {
	t.Helper()
	var d testDoc
	require.NoError(t, bson.Unmarshal(raw, &d))
	return d
}

func TestMemoryBackend_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	_, err := b.Get(ctx, "things", "a")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Set(ctx, "things", "a", testDoc{UID: "a", Name: "first"}))
	raw, err := b.Get(ctx, "things", "a")
	require.NoError(t, err)
	require.Equal(t, "first", decode(t, raw).Name)
	id, ok := raw.Lookup("_id").StringValueOK()
	require.True(t, ok)
	require.Equal(t, "a", id)

	require.NoError(t, b.Delete(ctx, "things", "a"))
	require.ErrorIs(t, b.Delete(ctx, "things", "a"), ErrNotFound)
}

func TestMemoryBackend_UpdateDeleteFieldRemovesOnlyThatKey(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Set(ctx, "things", "a", testDoc{UID: "a", Sources: map[string]string{"abc": "1", "def": "2"}}))

	require.NoError(t, b.Update(ctx, "things", "a", map[string]interface{}{
		"sources.abc": DeleteField,
		"name":        "renamed",
	}))

	raw, err := b.Get(ctx, "things", "a")
	require.NoError(t, err)
	d := decode(t, raw)
	require.Equal(t, map[string]string{"def": "2"}, d.Sources)
	require.Equal(t, "renamed", d.Name)

	require.ErrorIs(t, b.Update(ctx, "things", "missing", map[string]interface{}{"name": "x"}), ErrNotFound)
}

func TestMemoryBackend_FindFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	for _, d := range []testDoc{
		{UID: "a", Name: "x", Rank: 3},
		{UID: "b", Name: "y", Rank: 1},
		{UID: "c", Name: "x", Rank: 2},
	} {
		require.NoError(t, b.Set(ctx, "things", d.UID, d))
	}

	got, err := b.Find(ctx, "things", Query{
		Where: []Predicate{Where("name", OpEq, "x")},
		Order: &OrderBy{Field: "rank", Desc: true},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a", decode(t, got[0]).UID)
	require.Equal(t, "c", decode(t, got[1]).UID)

	got, err = b.Find(ctx, "things", Query{Where: []Predicate{Where("rank", OpGte, 2)}})
	require.NoError(t, err)
	require.Len(t, got, 2)

	_, err = b.Find(ctx, "things", Query{Where: []Predicate{Where("rank", Op("~"), 2)}})
	require.ErrorIs(t, err, ErrInvalidOp)
}

func TestMemoryBackend_NotEqualRequiresField(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Set(ctx, "things", "a", testDoc{UID: "a", Sources: map[string]string{"u1": "x"}}))
	require.NoError(t, b.Set(ctx, "things", "b", testDoc{UID: "b"}))

	got, err := b.Find(ctx, "things", Query{Where: []Predicate{Where("sources.u1", OpNe, "")}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a", decode(t, got[0]).UID)
}

func TestMemoryBackend_WatchClassifiesChanges(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Set(ctx, "things", "a", testDoc{UID: "a", Name: "x"}))

	var events []Change
	cancel, err := b.Watch(ctx, "things", Query{Where: []Predicate{Where("name", OpEq, "x")}}, func(c Change) {
		events = append(events, c)
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, Added, events[0].Type)

	// entering the query
	require.NoError(t, b.Set(ctx, "things", "b", testDoc{UID: "b", Name: "y"}))
	require.NoError(t, b.Update(ctx, "things", "b", map[string]interface{}{"name": "x"}))
	// unchanged write produces nothing
	require.NoError(t, b.Set(ctx, "things", "a", testDoc{UID: "a", Name: "x"}))
	require.NoError(t, b.Update(ctx, "things", "a", map[string]interface{}{"rank": 5}))
	// leaving the query
	require.NoError(t, b.Update(ctx, "things", "a", map[string]interface{}{"name": "z"}))
	require.NoError(t, b.Delete(ctx, "things", "b"))

	require.Len(t, events, 5)
	require.Equal(t, Change{Type: Added, ID: "b"}, Change{Type: events[1].Type, ID: events[1].ID})
	require.Equal(t, Change{Type: Modified, ID: "a"}, Change{Type: events[2].Type, ID: events[2].ID})
	require.Equal(t, 5, decode(t, events[2].Doc).Rank)
	require.Equal(t, Change{Type: Removed, ID: "a"}, Change{Type: events[3].Type, ID: events[3].ID})
	require.Equal(t, "x", decode(t, events[3].Doc).Name)
	require.Equal(t, Change{Type: Removed, ID: "b"}, Change{Type: events[4].Type, ID: events[4].ID})

	cancel()
	cancel()
	require.NoError(t, b.Set(ctx, "things", "c", testDoc{UID: "c", Name: "x"}))
	require.Len(t, events, 5)
}

func TestMemoryBackend_CancelInsideHandler(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	var calls int
	var cancel CancelFunc
	cancel, err := b.Watch(ctx, "things", Query{}, func(c Change) {
		calls++
		cancel()
	})
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, "things", "a", testDoc{UID: "a"}))
	require.NoError(t, b.Set(ctx, "things", "b", testDoc{UID: "b"}))
	require.Equal(t, 1, calls)
}

func TestMemoryBackend_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewMemoryBackend()
	require.ErrorIs(t, b.Set(ctx, "things", "a", testDoc{}), context.Canceled)
	_, err := b.Watch(ctx, "things", Query{}, func(Change) {})
	require.ErrorIs(t, err, context.Canceled)
}
