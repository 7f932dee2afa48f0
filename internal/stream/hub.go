// Package stream fans replication frames out to websocket subscribers.
package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ticworld/kernel/internal/replication"
	"go.uber.org/zap"
)

// maxBacklog bounds the deltas kept for late joiners. Past it, joiners
// wait for the next snapshot instead.
const maxBacklog = 4096

type Config struct {
	SendBuffer   int
	WriteTimeout time.Duration
}

// Hub keeps the latest snapshot plus the deltas published after it, so a
// new subscriber can rebuild the current state before following live
// deltas. A subscriber whose send buffer is full is disconnected.
type Hub struct {
	log      *zap.Logger
	cfg      Config
	upgrader websocket.Upgrader

	mu      sync.Mutex
	backlog [][]byte // latest snapshot followed by its deltas
	subs    map[uint64]*subscriber
	nextID  uint64
	closed  bool
}

type subscriber struct {
	id   uint64
	out  chan []byte
	conn *websocket.Conn
}

func NewHub(cfg Config, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Hub{
		log: log,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[uint64]*subscriber),
	}
}

// Publish sends one encoded frame to every subscriber. Frames that do not
// parse are dropped and logged.
func (h *Hub) Publish(frame []byte) {
	hdr, err := replication.ReadHeader(frame)
	if err != nil {
		h.log.Warn("dropping unparsable frame", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	switch {
	case hdr.Kind == replication.KindSnapshot:
		h.backlog = append(h.backlog[:0], frame)
	case len(h.backlog) > 0 && len(h.backlog) < maxBacklog:
		h.backlog = append(h.backlog, frame)
	default:
		h.backlog = nil
	}
	for _, s := range h.subs {
		select {
		case s.out <- frame:
		default:
			h.log.Info("dropping slow subscriber", zap.Uint64("subscriber", s.id), zap.Uint64("tic", hdr.Tic))
			h.dropLocked(s)
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and streams binary frames until the peer
// goes away or falls behind.
func (h *Hub) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	s, ok := h.join(conn)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub closed"), time.Now().Add(time.Second))
		conn.Close()
		return
	}
	h.log.Info("subscriber joined", zap.Uint64("subscriber", s.id), zap.String("remote", r.RemoteAddr))

	go h.writeLoop(s)

	// Drain control frames; any read error ends the subscription.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.leave(s)
}

func (h *Hub) join(conn *websocket.Conn) (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.nextID++
	s := &subscriber{
		id:   h.nextID,
		out:  make(chan []byte, h.cfg.SendBuffer+len(h.backlog)),
		conn: conn,
	}
	for _, f := range h.backlog {
		s.out <- f
	}
	h.subs[s.id] = s
	return s, true
}

func (h *Hub) leave(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; ok {
		h.dropLocked(s)
		h.log.Info("subscriber left", zap.Uint64("subscriber", s.id))
	}
}

// dropLocked unregisters s and closes its queue; the write loop then
// closes the connection.
func (h *Hub) dropLocked(s *subscriber) {
	delete(h.subs, s.id)
	close(s.out)
}

func (h *Hub) writeLoop(s *subscriber) {
	defer s.conn.Close()
	for frame := range s.out {
		_ = s.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			h.log.Debug("subscriber write failed", zap.Uint64("subscriber", s.id), zap.Error(err))
			h.leave(s)
			// Keep draining until leave closes the queue.
			for range s.out {
			}
			return
		}
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, s := range h.subs {
		h.dropLocked(s)
	}
	h.backlog = nil
}
