package docstore

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestMatches(t *testing.T) {
	raw, err := bson.Marshal(bson.M{
		"workspaceUid":  "w1",
		"createdAtUtc":  "2024-01-02T00:00:00.000Z",
		"count":         int32(4),
		"collaborators": bson.M{"u1": bson.M{"uid": "u1"}},
	})
	require.NoError(t, err)

	cases := []struct {
		name string
		q    Query
		want bool
	}{
		{"empty", Query{}, true},
		{"eq", Query{Where: []Predicate{Where("workspaceUid", OpEq, "w1")}}, true},
		{"eq miss", Query{Where: []Predicate{Where("workspaceUid", OpEq, "w2")}}, false},
		{"int vs int64", Query{Where: []Predicate{Where("count", OpEq, int64(4))}}, true},
		{"lt", Query{Where: []Predicate{Where("count", OpLt, 5)}}, true},
		{"gt string", Query{Where: []Predicate{Where("createdAtUtc", OpGt, "2024-01-01")}}, true},
		{"nested ne", Query{Where: []Predicate{Where("collaborators.u1", OpNe, "")}}, true},
		{"missing ne", Query{Where: []Predicate{Where("collaborators.u2", OpNe, "")}}, false},
		{"mixed types", Query{Where: []Predicate{Where("count", OpLt, "z")}}, false},
		{"conjunction", Query{Where: []Predicate{
			Where("workspaceUid", OpEq, "w1"),
			Where("count", OpGte, 5),
		}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Matches(tc.q, raw))
		})
	}
}

func TestFilterTranslation(t *testing.T) {
	require.Equal(t, bson.M{}, Filter(Query{}))

	f := Filter(Query{Where: []Predicate{
		Where("workspaceUid", OpEq, "w1"),
		Where("collaborators.u1", OpNe, ""),
		Where("createdAtUtc", OpLte, "z"),
	}})
	require.Equal(t, bson.M{"$and": bson.A{
		bson.M{"workspaceUid": "w1"},
		bson.M{"collaborators.u1": bson.M{"$exists": true, "$ne": ""}},
		bson.M{"createdAtUtc": bson.M{"$lte": "z"}},
	}}, f)
}

func TestClassify(t *testing.T) {
	q := Query{Where: []Predicate{Where("name", OpEq, "x")}}
	view := map[string]bson.Raw{}
	doc := func(name string) bson.Raw {
		raw, err := bson.Marshal(bson.M{"_id": "a", "name": name})
		require.NoError(t, err)
		return raw
	}
	ev := func(op string, d bson.Raw) changeEvent {
		e := changeEvent{OperationType: op, FullDocument: d}
		e.DocumentKey.ID = "a"
		return e
	}

	_, ok := classify(q, view, ev("insert", doc("y")))
	require.False(t, ok)

	c, ok := classify(q, view, ev("update", doc("x")))
	require.True(t, ok)
	require.Equal(t, Added, c.Type)

	c, ok = classify(q, view, ev("replace", doc("x")))
	require.True(t, ok)
	require.Equal(t, Modified, c.Type)

	c, ok = classify(q, view, ev("delete", nil))
	require.True(t, ok)
	require.Equal(t, Removed, c.Type)
	require.NotNil(t, c.Doc)
	require.Empty(t, view)
}
