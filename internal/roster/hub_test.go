package roster

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
)

type fakeSource struct {
	mu    sync.Mutex
	nodes []models.NodeWithStats
	err   error
	calls int
}

func (s *fakeSource) ListWithStats(context.Context) ([]models.NodeWithStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.nodes, nil
}

func (s *fakeSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	writeErr error
	closed   bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) lastFrame(t *testing.T) Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.frames)
	var frame Frame
	require.NoError(t, json.Unmarshal(c.frames[len(c.frames)-1], &frame))
	return frame
}

func newTestHub(t *testing.T, source *fakeSource) (*Hub, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	hub := NewHub(source, WithClock(clock))
	hub.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
	})
	return hub, clock
}

func waitForFrames(t *testing.T, conn *fakeConn, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return conn.frameCount() >= n },
		time.Second, time.Millisecond, "expected %d frames", n)
}

func TestSubscribeSendsInitialSnapshot(t *testing.T) {
	name := "edge-1"
	source := &fakeSource{nodes: []models.NodeWithStats{
		{Node: models.Node{ID: "01HZX", Name: &name}, PublishCount: 3},
	}}
	hub, _ := newTestHub(t, source)

	conn := &fakeConn{}
	hub.Subscribe(conn)
	waitForFrames(t, conn, 1)

	frame := conn.lastFrame(t)
	assert.Equal(t, "nodes_snapshot", frame.Type)
	require.Len(t, frame.Nodes, 1)
	assert.Equal(t, "01HZX", frame.Nodes[0].ID)
	assert.Equal(t, int64(3), frame.Nodes[0].PublishCount)
}

func TestChangedBurstCoalescesToOneBroadcast(t *testing.T) {
	source := &fakeSource{}
	hub, clock := newTestHub(t, source)

	first, second := &fakeConn{}, &fakeConn{}
	hub.Subscribe(first)
	hub.Subscribe(second)
	waitForFrames(t, first, 1)
	waitForFrames(t, second, 1)
	buildsBefore := source.callCount()

	for range 50 {
		hub.Changed()
	}

	// Wait for the hub to arm the debounce timer, then fire it.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(debounceDelay)

	waitForFrames(t, first, 2)
	waitForFrames(t, second, 2)

	// One rebuild for the whole burst, and no further frames.
	assert.Equal(t, buildsBefore+1, source.callCount())
	clock.Advance(debounceDelay)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 2, first.frameCount())
	assert.Equal(t, 2, second.frameCount())
}

func TestSnapshotFailureSkipsBroadcastKeepsSockets(t *testing.T) {
	source := &fakeSource{}
	hub, clock := newTestHub(t, source)

	conn := &fakeConn{}
	hub.Subscribe(conn)
	waitForFrames(t, conn, 1)

	source.setErr(errors.New("db down"))
	hub.Changed()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(debounceDelay)

	// The socket survives the failed rebuild and receives the next one.
	source.setErr(nil)
	hub.Changed()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(debounceDelay)

	waitForFrames(t, conn, 2)
	assert.False(t, conn.isClosed())
}

func TestFailedWriteDropsOnlyThatSocket(t *testing.T) {
	source := &fakeSource{}
	hub, clock := newTestHub(t, source)

	healthy := &fakeConn{}
	hub.Subscribe(healthy)
	waitForFrames(t, healthy, 1)

	broken := &fakeConn{}
	hub.Subscribe(broken)
	waitForFrames(t, broken, 1)
	broken.mu.Lock()
	broken.writeErr = errors.New("broken pipe")
	broken.mu.Unlock()

	hub.Changed()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(debounceDelay)

	waitForFrames(t, healthy, 2)
	require.Eventually(t, broken.isClosed, time.Second, time.Millisecond)
	assert.Equal(t, 1, broken.frameCount())
}

func TestShutdownClosesSockets(t *testing.T) {
	source := &fakeSource{}
	clock := clockwork.NewFakeClock()
	hub := NewHub(source, WithClock(clock))
	hub.Start()

	conn := &fakeConn{}
	hub.Subscribe(conn)
	waitForFrames(t, conn, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))
	assert.True(t, conn.isClosed())

	// Subscribing after shutdown just closes the socket.
	late := &fakeConn{}
	hub.Subscribe(late)
	assert.True(t, late.isClosed())
}
