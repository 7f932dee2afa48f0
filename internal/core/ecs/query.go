package ecs

import (
	"strconv"
	"strings"
)

// query is a cached archetype result. It is recomputed lazily when the
// membership version of any of its stores moved.
type query struct {
	stores   []*Store
	versions []uint64
	result   []EntityID
	valid    bool
}

func queryKey(stores []*Store) string {
	var b strings.Builder
	for i, s := range stores {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(s.id)))
	}
	return b.String()
}

// Query returns the entities that currently carry every listed component,
// in creation order. The returned slice is owned by the cache and is only
// valid until the next membership change; copy it before mutating
// membership while iterating.
func (w *World) Query(stores ...*Store) []EntityID {
	if len(stores) == 0 {
		return w.live
	}
	key := queryKey(stores)
	q, ok := w.queries[key]
	if !ok {
		q = &query{
			stores:   append([]*Store(nil), stores...),
			versions: make([]uint64, len(stores)),
		}
		w.queries[key] = q
	}
	if q.valid {
		for i, s := range q.stores {
			if s.version != q.versions[i] {
				q.valid = false
				break
			}
		}
	}
	if !q.valid {
		q.result = q.result[:0]
		for _, id := range w.live {
			if hasAll(id, q.stores) {
				q.result = append(q.result, id)
			}
		}
		for i, s := range q.stores {
			q.versions[i] = s.version
		}
		q.valid = true
	}
	return q.result
}

// Each calls fn for every entity of Query(stores...) on a private copy of
// the result, so fn may add or remove components.
func (w *World) Each(fn func(EntityID), stores ...*Store) {
	ids := append([]EntityID(nil), w.Query(stores...)...)
	for _, id := range ids {
		if hasAll(id, stores) {
			fn(id)
		}
	}
}

func hasAll(id EntityID, stores []*Store) bool {
	for _, s := range stores {
		if !s.Has(id) {
			return false
		}
	}
	return true
}
