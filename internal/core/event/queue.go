package event

// Queue is the world-owned output queue. Systems append during a tic; the
// caller drains between RunTics calls.
type Queue struct {
	events []Event
}

func NewQueue() *Queue {
	return &Queue{events: make([]Event, 0, 64)}
}

func (q *Queue) Append(ev Event) {
	q.events = append(q.events, ev)
}

func (q *Queue) Len() int { return len(q.events) }

// Drain returns all queued events in emission order and empties the queue.
// Draining an empty queue returns an empty, non-nil slice.
func (q *Queue) Drain() []Event {
	out := make([]Event, len(q.events))
	copy(out, q.events)
	clear(q.events)
	q.events = q.events[:0]
	return out
}

// Peek returns a copy of the queued events without draining them.
func (q *Queue) Peek() []Event {
	out := make([]Event, len(q.events))
	copy(out, q.events)
	return out
}
