package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GustavPetterssonBjorklund/Statix/internal/config"
	"github.com/GustavPetterssonBjorklund/Statix/internal/nodeauth"
	"github.com/GustavPetterssonBjorklund/Statix/internal/payload"
)

type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeConn struct {
	mu           sync.Mutex
	published    []publishedMessage
	lost         chan struct{}
	disconnected chan struct{}
	discOnce     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{lost: make(chan struct{}), disconnected: make(chan struct{})}
}

func (c *fakeConn) Publish(topic string, qos byte, retained bool, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishedMessage{topic, qos, retained, body})
	return nil
}

func (c *fakeConn) Lost() <-chan struct{} { return c.lost }

func (c *fakeConn) Disconnect() {
	c.discOnce.Do(func() { close(c.disconnected) })
}

func (c *fakeConn) messages() []publishedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]publishedMessage(nil), c.published...)
}

type fakeDialer struct {
	mu     sync.Mutex
	conns  []*fakeConn
	dialed []*nodeauth.BrokerCredentials
}

func (d *fakeDialer) Dial(creds *nodeauth.BrokerCredentials, _ string, _ time.Duration) (BrokerConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	d.dialed = append(d.dialed, creds)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialed)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) dialedHost(i int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialed[i].Host
}

// fakeExchanger hands out credentials from a queue; the last entry repeats.
type fakeExchanger struct {
	mu    sync.Mutex
	queue []*nodeauth.BrokerCredentials
	calls int
}

func (e *fakeExchanger) Exchange(context.Context, string, string) (*nodeauth.BrokerCredentials, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	creds := e.queue[0]
	if len(e.queue) > 1 {
		e.queue = e.queue[1:]
	}
	return creds, nil
}

func (e *fakeExchanger) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func testAgentConfig() *config.AgentConfig {
	return &config.AgentConfig{
		NodeID:               "01HZXW5T4S3V2N8Q7P6M1K0J9E",
		NodeToken:            "enrollment-token",
		APIURL:               "http://localhost:8080",
		PublishInterval:      time.Hour,
		SysInfoCheckInterval: time.Hour,
		SysInfoMaxAge:        24 * time.Hour,
		ExchangeInterval:     time.Minute,
		ReconnectDelay:       time.Minute,
		ConnectTimeout:       time.Second,
	}
}

func stubSample(now time.Time) payload.MetricsPayload {
	return payload.MetricsPayload{
		V: payload.Version, Ts: now.UnixMilli(),
		CPU: 0.5, MemUsed: 1, MemTotal: 2, DiskUsed: 3, DiskTotal: 4,
	}
}

func stubCollect() payload.SystemInfo {
	return payload.SystemInfo{
		OSPlatform: "linux", OSArch: "amd64", Hostname: "test-host",
		CPUCores: 4, MemTotal: 1 << 30, GPUs: []payload.GPUInfo{},
	}
}

func testCreds(host string) *nodeauth.BrokerCredentials {
	return &nodeauth.BrokerCredentials{Host: host, Port: 1883, Username: "u", Password: "p"}
}

func newTestAgent(t *testing.T, clock clockwork.Clock, exchanger Exchanger, dialer BrokerDialer) *Agent {
	t.Helper()
	return New(testAgentConfig(),
		WithClock(clock),
		WithExchanger(exchanger),
		WithDialer(dialer),
		WithCollectors(stubSample, stubCollect),
	)
}

func TestSessionPublishesInitialSampleAndInventory(t *testing.T) {
	clock := clockwork.NewFakeClock()
	dialer := &fakeDialer{}
	exchanger := &fakeExchanger{queue: []*nodeauth.BrokerCredentials{testCreds("broker-a")}}
	a := newTestAgent(t, clock, exchanger, dialer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return dialer.dialCount() == 1 && len(dialer.conn(0).messages()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	msgs := dialer.conn(0).messages()
	assert.Equal(t, "statix/nodes/"+a.cfg.NodeID+"/metrics", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)
	assert.False(t, msgs[0].retained)
	assert.Equal(t, "statix/nodes/"+a.cfg.NodeID+"/system", msgs[1].topic)
	assert.True(t, msgs[1].retained, "inventory must be retained")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestCredentialRotationRedialsImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	dialer := &fakeDialer{}
	exchanger := &fakeExchanger{queue: []*nodeauth.BrokerCredentials{
		testCreds("broker-a"),
		testCreds("broker-b"),
	}}
	a := newTestAgent(t, clock, exchanger, dialer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return dialer.dialCount() == 1 && len(dialer.conn(0).messages()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Three tickers are armed once the session is live. Firing the exchange
	// ticker surfaces the rotated credentials and must redial with no
	// reconnect pause in between.
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 3))
	clock.Advance(a.cfg.ExchangeInterval)

	require.Eventually(t, func() bool {
		return dialer.dialCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "broker-b", dialer.dialedHost(1))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestConnectionLossReconnectsAfterDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	dialer := &fakeDialer{}
	exchanger := &fakeExchanger{queue: []*nodeauth.BrokerCredentials{testCreds("broker-a")}}
	a := newTestAgent(t, clock, exchanger, dialer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return dialer.dialCount() == 1 && len(dialer.conn(0).messages()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	close(dialer.conn(0).lost)

	// The session ends and the run loop sits on the reconnect timer. Wait for
	// the session's Disconnect so its stopped tickers can no longer satisfy
	// the waiter count below.
	select {
	case <-dialer.conn(0).disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	clock.Advance(a.cfg.ReconnectDelay)

	require.Eventually(t, func() bool {
		return dialer.dialCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, exchanger.callCount(), "fresh exchange per session")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestPublishGuardSkipsOverlappingSample(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := newTestAgent(t, clock, &fakeExchanger{queue: []*nodeauth.BrokerCredentials{testCreds("a")}}, &fakeDialer{})
	conn := newFakeConn()

	a.publishing.Store(true)
	a.publishMetrics(conn)
	assert.Empty(t, conn.messages(), "guarded publish must be skipped")

	a.publishing.Store(false)
	a.publishMetrics(conn)
	assert.Len(t, conn.messages(), 1)
}

func TestInventoryRepublishOnChangeOrAge(t *testing.T) {
	clock := clockwork.NewFakeClock()
	collected := stubCollect()
	var mu sync.Mutex
	collect := func() payload.SystemInfo {
		mu.Lock()
		defer mu.Unlock()
		return collected
	}

	a := New(testAgentConfig(),
		WithClock(clock),
		WithExchanger(&fakeExchanger{queue: []*nodeauth.BrokerCredentials{testCreds("a")}}),
		WithDialer(&fakeDialer{}),
		WithCollectors(stubSample, collect),
	)
	conn := newFakeConn()

	a.publishInventory(conn, true)
	require.Len(t, conn.messages(), 1)

	// Unchanged and fresh: the check is a no-op.
	a.publishInventory(conn, false)
	assert.Len(t, conn.messages(), 1)

	// Hash change republishes.
	mu.Lock()
	collected.Hostname = "renamed-host"
	mu.Unlock()
	a.publishInventory(conn, false)
	assert.Len(t, conn.messages(), 2)

	// Unchanged but stale republishes.
	clock.Advance(a.cfg.SysInfoMaxAge + time.Minute)
	a.publishInventory(conn, false)
	assert.Len(t, conn.messages(), 3)
}

func TestBrokerURLSchemeByPort(t *testing.T) {
	assert.Equal(t, "ws://mq.example.com:9001",
		BrokerURL(&nodeauth.BrokerCredentials{Host: "mq.example.com", Port: 9001}))
	assert.Equal(t, "tcp://mq.example.com:1883",
		BrokerURL(&nodeauth.BrokerCredentials{Host: "mq.example.com", Port: 1883}))
}
