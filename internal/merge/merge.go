// Package merge reconciles live-query updates into locally held state.
//
// FindAndSplice maintains ordered collections; FindAndMerge updates the single
// "currently open" entity field by field so that unchanged nested values keep
// their identity. Both are last-writer-wins: whichever update is delivered last
// owns the field.
package merge

import (
	"encoding/json"
)

// Identifiable is anything keyed by a UID.
type Identifiable interface {
	GetUID() string
}

// Mergeable types copy differing fields from src into the receiver and report
// the names of the fields they reassigned.
type Mergeable[T any] interface {
	Identifiable
	MergeFrom(src T) []string
}

// FindAndSplice locates entity by UID in items. When absent it is appended.
// When present it is replaced if replace is true, otherwise removed. The index
// of the affected slot and the values taken out of the slice are returned.
func FindAndSplice[T Identifiable](items *[]T, entity T, replace bool) (int, []T) {
	s := *items
	index := -1
	for i, e := range s {
		if e.GetUID() == entity.GetUID() {
			index = i
			break
		}
	}

	if index < 0 {
		*items = append(s, entity)
		return len(*items) - 1, nil
	}

	removed := []T{s[index]}
	if replace {
		s[index] = entity
		return index, removed
	}
	*items = append(s[:index], s[index+1:]...)
	return index, removed
}

// FindAndMerge merges source into target when both carry the same UID and
// returns the changed field names. A source for a different entity is ignored.
func FindAndMerge[T Mergeable[T]](target, source T) []string {
	if target.GetUID() != source.GetUID() {
		return nil
	}
	return target.MergeFrom(source)
}

// Scalar assigns src to *dst when they differ.
func Scalar[V comparable](dst *V, src V) bool {
	if *dst == src {
		return false
	}
	*dst = src
	return true
}

// Deep assigns src to *dst when their JSON encodings differ. Used for maps,
// slices, pointers and nested structs where identity must survive an update
// that carries equal content.
func Deep[V any](dst *V, src V) bool {
	a, errA := json.Marshal(*dst)
	b, errB := json.Marshal(src)
	if errA == nil && errB == nil && string(a) == string(b) {
		return false
	}
	*dst = src
	return true
}
