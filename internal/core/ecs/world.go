package ecs

import "slices"

// World is the attribute store: it owns the entity pool, the component
// registry, the archetype query cache, and a deferred destruction queue
// flushed at the end of each tic.
type World struct {
	pool         *EntityPool
	registry     *Registry
	destroyQueue []EntityID
	live         []EntityID // creation order
	onDestroy    []func(EntityID)
	queries      map[string]*query
}

func NewWorld() *World {
	return &World{
		pool:         NewEntityPool(),
		registry:     NewRegistry(),
		destroyQueue: make([]EntityID, 0, 64),
		live:         make([]EntityID, 0, 256),
		queries:      make(map[string]*query),
	}
}

func (w *World) Pool() *EntityPool   { return w.pool }
func (w *World) Registry() *Registry { return w.registry }

// Register is shorthand for Registry().Register.
func (w *World) Register(schema Schema) (*Store, error) {
	return w.registry.Register(schema)
}

func (w *World) CreateEntity() EntityID {
	id := w.pool.Create()
	w.live = append(w.live, id)
	return id
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// Entities returns all live entities in creation order. The slice is shared;
// callers must not modify it.
func (w *World) Entities() []EntityID {
	return w.live
}

// OnDestroy registers a callback invoked for every destroyed entity, before
// its components are cleared. Side registries use it to drop their
// references to the entity.
func (w *World) OnDestroy(fn func(EntityID)) {
	w.onDestroy = append(w.onDestroy, fn)
}

// Destroy removes an entity immediately.
func (w *World) Destroy(id EntityID) {
	if !w.pool.Alive(id) {
		return
	}
	for _, fn := range w.onDestroy {
		fn(id)
	}
	w.registry.RemoveAll(id)
	w.pool.Destroy(id)
	if i := slices.Index(w.live, id); i >= 0 {
		w.live = slices.Delete(w.live, i, i+1)
	}
}

// MarkForDestruction queues an entity for end-of-tic cleanup.
func (w *World) MarkForDestruction(id EntityID) {
	if slices.Contains(w.destroyQueue, id) {
		return
	}
	w.destroyQueue = append(w.destroyQueue, id)
}

// PendingDestruction reports whether id is queued for cleanup.
func (w *World) PendingDestruction(id EntityID) bool {
	return slices.Contains(w.destroyQueue, id)
}

// FlushDestroyQueue destroys all queued entities and clears their components.
func (w *World) FlushDestroyQueue() int {
	n := len(w.destroyQueue)
	for _, id := range w.destroyQueue {
		w.Destroy(id)
	}
	w.destroyQueue = w.destroyQueue[:0]
	return n
}
