package docstore

import (
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Matches reports whether doc satisfies every predicate of q.
func Matches(q Query, doc bson.Raw) bool {
	var m bson.M
	if err := bson.Unmarshal(doc, &m); err != nil {
		return false
	}
	return matchDoc(q, canon(m).(bson.M))
}

func matchDoc(q Query, doc bson.M) bool {
	for _, p := range q.Where {
		got, ok := lookup(doc, p.Field)
		if !ok {
			return false
		}
		want, err := normalizeValue(p.Value)
		if err != nil {
			return false
		}
		switch p.Op {
		case OpEq:
			if !valuesEqual(got, want) {
				return false
			}
		case OpNe:
			if valuesEqual(got, want) {
				return false
			}
		case OpLt, OpLte, OpGt, OpGte:
			c, comparable := compareValues(got, want)
			if !comparable {
				return false
			}
			switch {
			case p.Op == OpLt && c >= 0,
				p.Op == OpLte && c > 0,
				p.Op == OpGt && c <= 0,
				p.Op == OpGte && c < 0:
				return false
			}
		default:
			return false
		}
	}
	return true
}

func lookup(doc bson.M, path string) (interface{}, bool) {
	var cur interface{} = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(bson.M)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc bson.M, path string, v interface{}) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(bson.M)
		if !ok {
			next = bson.M{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func deletePath(doc bson.M, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(bson.M)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

// normalizeValue gives v the shape it would have after a database round trip.
func normalizeValue(v interface{}) (interface{}, error) {
	raw, err := bson.Marshal(bson.M{"v": v})
	if err != nil {
		return nil, err
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return canon(out["v"]), nil
}

func toDoc(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return canon(out).(bson.M), nil
}

// canon rewrites nested documents as bson.M and arrays as bson.A.
func canon(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		for k, e := range t {
			t[k] = canon(e)
		}
		return t
	case map[string]interface{}:
		out := make(bson.M, len(t))
		for k, e := range t {
			out[k] = canon(e)
		}
		return out
	case bson.D:
		out := make(bson.M, len(t))
		for _, e := range t {
			out[e.Key] = canon(e.Value)
		}
		return out
	case bson.A:
		for i, e := range t {
			t[i] = canon(e)
		}
		return t
	case []interface{}:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = canon(e)
		}
		return out
	}
	return v
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func valuesEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two numbers or two strings.
func compareValues(a, b interface{}) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}
