package ecs

// EntityID encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. Generation increments on destroy to invalidate stale refs.
// Index 0 is never handed out, so a valid EntityID is always non-zero.
type EntityID uint64

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsZero() bool       { return id == 0 }

// EntityPool manages entity allocation with generational indices and a free list.
// Every Create stamps the slot with a monotonically increasing birth sequence,
// which is what queries sort by to get creation order.
type EntityPool struct {
	generations []uint32
	births      []uint64
	freeList    []uint32
	nextIndex   uint32
	nextBirth   uint64
}

func NewEntityPool() *EntityPool {
	return &EntityPool{
		generations: make([]uint32, 1, 1024),
		births:      make([]uint64, 1, 1024),
		freeList:    make([]uint32, 0, 256),
		nextIndex:   1,
	}
}

func (p *EntityPool) Create() EntityID {
	p.nextBirth++
	if len(p.freeList) > 0 {
		idx := p.freeList[len(p.freeList)-1]
		p.freeList = p.freeList[:len(p.freeList)-1]
		p.births[idx] = p.nextBirth
		return NewEntityID(idx, p.generations[idx])
	}
	idx := p.nextIndex
	p.nextIndex++
	if int(idx) >= len(p.generations) {
		p.generations = append(p.generations, 0)
		p.births = append(p.births, 0)
	}
	p.births[idx] = p.nextBirth
	return NewEntityID(idx, p.generations[idx])
}

func (p *EntityPool) Alive(id EntityID) bool {
	idx := id.Index()
	if idx == 0 || idx >= p.nextIndex {
		return false
	}
	return p.generations[idx] == id.Generation()
}

// Birth returns the creation sequence of a live entity, or 0.
func (p *EntityPool) Birth(id EntityID) uint64 {
	if !p.Alive(id) {
		return 0
	}
	return p.births[id.Index()]
}

// Capacity is one past the highest index ever allocated.
func (p *EntityPool) Capacity() int {
	return int(p.nextIndex)
}

func (p *EntityPool) Destroy(id EntityID) {
	idx := id.Index()
	if idx == 0 || idx >= p.nextIndex {
		return
	}
	if p.generations[idx] != id.Generation() {
		return // already destroyed (stale reference)
	}
	p.generations[idx]++
	p.births[idx] = 0
	p.freeList = append(p.freeList, idx)
}
