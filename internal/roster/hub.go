// Package roster fans the node-roster snapshot out to dashboard sockets.
// A single hub goroutine owns the client set and the debounce timer, so
// subscribe, unsubscribe and broadcast never race.
package roster

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/GustavPetterssonBjorklund/Statix/internal/logging"
	"github.com/GustavPetterssonBjorklund/Statix/internal/metrics"
)

const (
	// debounceDelay coalesces change bursts into one broadcast.
	debounceDelay = 150 * time.Millisecond

	writeTimeout = 5 * time.Second
)

// SnapshotSource is the read side of the store the hub builds frames from.
type SnapshotSource interface {
	ListWithStats(ctx context.Context) ([]models.NodeWithStats, error)
}

// Conn is the subset of *websocket.Conn the hub writes to. Tests substitute
// fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Frame is the only message type the roster sends.
type Frame struct {
	Type  string     `json:"type"`
	Nodes []NodeView `json:"nodes"`
}

// Hub coalesces change signals and broadcasts snapshots.
type Hub struct {
	source SnapshotSource
	clock  clockwork.Clock
	log    zerolog.Logger

	subscribeCh   chan Conn
	unsubscribeCh chan Conn
	changedCh     chan struct{}
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// Option customizes the hub.
type Option func(*Hub)

// WithClock substitutes the wall clock, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(h *Hub) { h.clock = clock }
}

// NewHub creates the hub. Call Start to begin serving.
func NewHub(source SnapshotSource, opts ...Option) *Hub {
	h := &Hub{
		source:        source,
		clock:         clockwork.NewRealClock(),
		log:           logging.WithComponent("roster"),
		subscribeCh:   make(chan Conn),
		unsubscribeCh: make(chan Conn),
		changedCh:     make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start launches the hub goroutine.
func (h *Hub) Start() {
	go h.run()
}

// Subscribe hands a socket to the hub. The hub immediately sends one
// snapshot, then keeps the socket until it closes or broadcast fails.
func (h *Hub) Subscribe(conn Conn) {
	select {
	case h.subscribeCh <- conn:
	case <-h.stopCh:
		_ = conn.Close()
	}
}

// Unsubscribe removes a socket, typically after its read side saw a close.
func (h *Hub) Unsubscribe(conn Conn) {
	select {
	case h.unsubscribeCh <- conn:
	case <-h.stopCh:
	}
}

// Changed signals that the roster may differ from the last broadcast.
// Signals arriving while one is pending are coalesced.
func (h *Hub) Changed() {
	metrics.RosterChangeSignalsTotal.Inc()
	select {
	case h.changedCh <- struct{}{}:
	default:
	}
}

// Shutdown stops the hub and closes every socket.
func (h *Hub) Shutdown(ctx context.Context) error {
	close(h.stopCh)
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)

	clients := make(map[Conn]struct{})
	var timer clockwork.Timer
	var timerCh <-chan time.Time

	defer func() {
		for conn := range clients {
			_ = conn.Close()
		}
		metrics.RosterClients.Set(0)
	}()

	for {
		select {
		case conn := <-h.subscribeCh:
			if frame, err := h.buildFrame(); err != nil {
				h.log.Error().Err(err).Msg("initial snapshot failed")
			} else if err := h.write(conn, frame); err != nil {
				_ = conn.Close()
				continue
			}
			clients[conn] = struct{}{}
			metrics.RosterClients.Set(float64(len(clients)))

		case conn := <-h.unsubscribeCh:
			if _, ok := clients[conn]; ok {
				delete(clients, conn)
				_ = conn.Close()
				metrics.RosterClients.Set(float64(len(clients)))
			}

		case <-h.changedCh:
			if timer == nil {
				timer = h.clock.NewTimer(debounceDelay)
				timerCh = timer.Chan()
			}

		case <-timerCh:
			timer = nil
			timerCh = nil
			h.broadcast(clients)
			metrics.RosterClients.Set(float64(len(clients)))

		case <-h.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// broadcast rebuilds the snapshot once and writes it to every socket. A
// failed snapshot read skips the broadcast without dropping sockets; a
// failed write drops only that socket.
func (h *Hub) broadcast(clients map[Conn]struct{}) {
	frame, err := h.buildFrame()
	if err != nil {
		h.log.Error().Err(err).Msg("snapshot build failed, skipping broadcast")
		return
	}

	for conn := range clients {
		if err := h.write(conn, frame); err != nil {
			h.log.Debug().Err(err).Msg("dropping dashboard socket")
			delete(clients, conn)
			_ = conn.Close()
		}
	}
	metrics.RosterBroadcastsTotal.Inc()
}

func (h *Hub) buildFrame() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nodes, err := h.source.ListWithStats(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: "nodes_snapshot", Nodes: NewNodeViews(nodes)})
}

func (h *Hub) write(conn Conn, frame []byte) error {
	_ = conn.SetWriteDeadline(h.clock.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}
