package event

import (
	"github.com/ticworld/kernel/internal/core/ecs"
	"github.com/ticworld/kernel/internal/core/value"
)

// Channels engine events are published on.
const (
	ChannelCollision = "collision"
	ChannelConsumed  = "consumed"
)

// Event is an immutable record of something that happened during a tic.
// The concrete types below form a closed tagged union.
type Event interface {
	// Channel is the event-script channel the event is dispatched on.
	Channel() string
	// TicCount is the tic the event was emitted in.
	TicCount() uint64
	// Payload is the flat dictionary handed to event scripts.
	Payload() value.Map
}

// Collision is emitted once per tic for each overlapping pair of
// dynamic bodies.
type Collision struct {
	Tic     uint64
	EntityA ecs.EntityID
	EntityB ecs.EntityID
}

func (Collision) Channel() string    { return ChannelCollision }
func (e Collision) TicCount() uint64 { return e.Tic }

func (e Collision) Payload() value.Map {
	return value.Map{
		"entityA": value.MustNumber(float64(e.EntityA)),
		"entityB": value.MustNumber(float64(e.EntityB)),
	}
}

// Consumed is emitted when an eater picks up a food item.
type Consumed struct {
	Tic       uint64
	Eater     ecs.EntityID
	Item      ecs.EntityID
	Nutrition float64
}

func (Consumed) Channel() string    { return ChannelConsumed }
func (e Consumed) TicCount() uint64 { return e.Tic }

func (e Consumed) Payload() value.Map {
	m := value.Map{
		"eater": value.MustNumber(float64(e.Eater)),
		"item":  value.MustNumber(float64(e.Item)),
	}
	if n, ok := value.NumberOf(e.Nutrition); ok {
		m["nutrition"] = n
	}
	return m
}

// Custom is an event emitted by a script or by the embedding application.
type Custom struct {
	Tic    uint64
	Name   string
	Fields value.Map
}

func (e Custom) Channel() string  { return e.Name }
func (e Custom) TicCount() uint64 { return e.Tic }

// Payload returns a copy so the stored fields stay immutable.
func (e Custom) Payload() value.Map { return e.Fields.Clone() }
