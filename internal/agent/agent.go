// Package agent implements the statix-agent runtime: it exchanges the node
// token for broker credentials, connects, and publishes telemetry until the
// session ends, then reconnects. One broker session at a time; rotation of
// broker credentials tears the session down and the outer loop redials with
// the fresh tuple.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/GustavPetterssonBjorklund/Statix/internal/config"
	"github.com/GustavPetterssonBjorklund/Statix/internal/logging"
	"github.com/GustavPetterssonBjorklund/Statix/internal/nodeauth"
	"github.com/GustavPetterssonBjorklund/Statix/internal/payload"
)

// Exchanger trades node credentials for broker coordinates.
type Exchanger interface {
	Exchange(ctx context.Context, nodeID, nodeToken string) (*nodeauth.BrokerCredentials, error)
}

// Agent is the long-running telemetry publisher for one node.
type Agent struct {
	cfg      *config.AgentConfig
	exchange Exchanger
	dialer   BrokerDialer
	clock    clockwork.Clock
	log      zerolog.Logger

	sample  func(time.Time) payload.MetricsPayload
	collect func() payload.SystemInfo

	// rotateTo carries fresh credentials from a mid-session re-exchange to
	// the next session. Only the run loop touches it.
	rotateTo *nodeauth.BrokerCredentials

	lastInfoHash string
	lastInfoAt   time.Time

	publishing atomic.Bool
}

// Option customizes an Agent, mostly for tests.
type Option func(*Agent)

// WithClock substitutes the wall clock.
func WithClock(c clockwork.Clock) Option {
	return func(a *Agent) { a.clock = c }
}

// WithDialer substitutes the broker dialer.
func WithDialer(d BrokerDialer) Option {
	return func(a *Agent) { a.dialer = d }
}

// WithExchanger substitutes the credential exchanger.
func WithExchanger(e Exchanger) Option {
	return func(a *Agent) { a.exchange = e }
}

// WithCollectors substitutes the metric sampler and inventory collector.
func WithCollectors(sample func(time.Time) payload.MetricsPayload, collect func() payload.SystemInfo) Option {
	return func(a *Agent) {
		a.sample = sample
		a.collect = collect
	}
}

// New builds an agent from configuration.
func New(cfg *config.AgentConfig, opts ...Option) *Agent {
	a := &Agent{
		cfg:      cfg,
		exchange: NewExchangeClient(cfg.APIURL),
		dialer:   NewBrokerDialer(),
		clock:    clockwork.NewRealClock(),
		log:      logging.WithComponent("agent"),
		sample:   SampleMetrics,
		collect:  CollectSystemInfo,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes broker sessions until ctx is canceled. Session failures are
// logged and retried after the reconnect delay; they never end the loop.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Info().
		Str("node_id", a.cfg.NodeID).
		Str("api_url", a.cfg.APIURL).
		Msg("agent starting")

	for {
		creds := a.rotateTo
		a.rotateTo = nil

		if creds == nil {
			fresh, err := a.exchange.Exchange(ctx, a.cfg.NodeID, a.cfg.NodeToken)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.log.Warn().Err(err).Msg("credential exchange failed")
				if !a.pause(ctx) {
					return nil
				}
				continue
			}
			creds = fresh
		}

		a.session(ctx, creds)

		if ctx.Err() != nil {
			return nil
		}
		// Rotation redials immediately; plain disconnects back off first.
		if a.rotateTo == nil && !a.pause(ctx) {
			return nil
		}
	}
}

// pause sleeps for the reconnect delay; false means ctx was canceled.
func (a *Agent) pause(ctx context.Context) bool {
	timer := a.clock.NewTimer(a.cfg.ReconnectDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

// session runs one broker connection to completion: connect, publish the
// first sample and the inventory, then tick until the connection drops, the
// credentials rotate, or ctx is canceled.
func (a *Agent) session(ctx context.Context, creds *nodeauth.BrokerCredentials) {
	conn, err := a.dialer.Dial(creds, "statix-agent-"+a.cfg.NodeID, a.cfg.ConnectTimeout)
	if err != nil {
		a.log.Warn().Err(err).Str("broker", BrokerURL(creds)).Msg("broker connect failed")
		return
	}
	defer conn.Disconnect()
	a.log.Info().Str("broker", BrokerURL(creds)).Msg("broker session established")

	a.publishMetrics(conn)
	a.publishInventory(conn, true)

	metricsTicker := a.clock.NewTicker(a.cfg.PublishInterval)
	defer metricsTicker.Stop()
	infoTicker := a.clock.NewTicker(a.cfg.SysInfoCheckInterval)
	defer infoTicker.Stop()
	exchangeTicker := a.clock.NewTicker(a.cfg.ExchangeInterval)
	defer exchangeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Lost():
			a.log.Warn().Msg("broker connection lost")
			return
		case <-metricsTicker.Chan():
			// Off the loop so a slow broker ack skips samples instead of
			// stalling the session.
			go a.publishMetrics(conn)
		case <-infoTicker.Chan():
			a.publishInventory(conn, false)
		case <-exchangeTicker.Chan():
			if a.refreshCredentials(ctx, creds) {
				return
			}
		}
	}
}

// publishMetrics samples and publishes one metrics message, skipping the
// tick when the previous publish is still waiting on the broker ack.
func (a *Agent) publishMetrics(conn BrokerConn) {
	if !a.publishing.CompareAndSwap(false, true) {
		a.log.Debug().Msg("previous publish in flight, skipping sample")
		return
	}
	defer a.publishing.Store(false)

	sample := a.sample(a.clock.Now())
	body, err := json.Marshal(sample)
	if err != nil {
		a.log.Error().Err(err).Msg("encode metrics sample")
		return
	}
	if err := conn.Publish(a.topic("metrics"), 1, false, body); err != nil {
		a.log.Warn().Err(err).Msg("publish metrics")
	}
}

// publishInventory re-collects the inventory and publishes it retained when
// the hash changed, the last publish is older than the max age, or force is
// set (session start).
func (a *Agent) publishInventory(conn BrokerConn, force bool) {
	info := a.collect()
	hash, err := payload.StableHash(info)
	if err != nil {
		a.log.Error().Err(err).Msg("hash inventory")
		return
	}

	now := a.clock.Now()
	fresh := a.lastInfoHash == hash && now.Sub(a.lastInfoAt) < a.cfg.SysInfoMaxAge
	if !force && fresh {
		return
	}

	body, err := json.Marshal(payload.SystemInfoPayload{
		V:    payload.Version,
		Ts:   now.UnixMilli(),
		Hash: hash,
		Info: info,
	})
	if err != nil {
		a.log.Error().Err(err).Msg("encode inventory")
		return
	}
	if err := conn.Publish(a.topic("system"), 1, true, body); err != nil {
		a.log.Warn().Err(err).Msg("publish inventory")
		return
	}

	a.lastInfoHash = hash
	a.lastInfoAt = now
	a.log.Debug().Str("hash", hash).Msg("inventory published")
}

// refreshCredentials re-exchanges the node token. True means the broker
// credentials changed: rotateTo is set and the session must end so the run
// loop redials with the new tuple.
func (a *Agent) refreshCredentials(ctx context.Context, current *nodeauth.BrokerCredentials) bool {
	fresh, err := a.exchange.Exchange(ctx, a.cfg.NodeID, a.cfg.NodeToken)
	if err != nil {
		// The session keeps running on its current credentials.
		a.log.Warn().Err(err).Msg("periodic credential exchange failed")
		return false
	}
	if sameCredentials(current, fresh) {
		return false
	}

	a.log.Info().Str("broker", BrokerURL(fresh)).Msg("broker credentials rotated, reconnecting")
	a.rotateTo = fresh
	return true
}

func sameCredentials(a, b *nodeauth.BrokerCredentials) bool {
	return a.Host == b.Host &&
		a.Port == b.Port &&
		a.Username == b.Username &&
		a.Password == b.Password
}

func (a *Agent) topic(kind string) string {
	return fmt.Sprintf("statix/nodes/%s/%s", a.cfg.NodeID, kind)
}
