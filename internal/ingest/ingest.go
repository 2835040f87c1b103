// Package ingest subscribes to the broker's telemetry topics and commits
// inbound samples. Per-message failures are logged and dropped; nothing an
// agent publishes can kill the loop.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/GustavPetterssonBjorklund/Statix/internal/logging"
	"github.com/GustavPetterssonBjorklund/Statix/internal/metrics"
	"github.com/GustavPetterssonBjorklund/Statix/internal/payload"
	"github.com/GustavPetterssonBjorklund/Statix/internal/repository"
)

const (
	// TopicFilter matches both per-node telemetry topics.
	TopicFilter = "statix/nodes/+/+"

	topicPrefix = "statix"
	topicNodes  = "nodes"

	kindMetrics = "metrics"
	kindSystem  = "system"

	qos              = 1
	reconnectDelay   = 2 * time.Second
	connectWait      = 5 * time.Second
	storeCallTimeout = 10 * time.Second
	disconnectGrace  = 250 // ms, paho disconnect quiesce
)

// Notifier receives a change signal after each successful commit that alters
// the roster.
type Notifier interface {
	Changed()
}

// Config carries the broker connection for the subscriber.
type Config struct {
	BrokerURL string
	Username  string
	Password  string
	ClientID  string
}

// Ingestor is the broker subscriber.
type Ingestor struct {
	metricsRepo repository.MetricRepository
	sysinfoRepo repository.SystemInfoRepository
	validator   *payload.Validator
	notifier    Notifier

	client mqtt.Client
	log    zerolog.Logger
}

// New creates an ingestor. The notifier may be nil.
func New(metricsRepo repository.MetricRepository, sysinfoRepo repository.SystemInfoRepository, validator *payload.Validator, notifier Notifier) *Ingestor {
	return &Ingestor{
		metricsRepo: metricsRepo,
		sysinfoRepo: sysinfoRepo,
		validator:   validator,
		notifier:    notifier,
		log:         logging.WithComponent("ingest"),
	}
}

// Start connects to the broker and subscribes to the telemetry filter. The
// subscription is re-established on every reconnect.
func (i *Ingestor) Start(cfg Config) error {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "statix-server-ingest"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(reconnectDelay).
		SetMaxReconnectInterval(reconnectDelay).
		SetOrderMatters(true)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(TopicFilter, qos, func(_ mqtt.Client, msg mqtt.Message) {
			i.handleMessage(msg.Topic(), msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			i.log.Error().Err(token.Error()).Str("filter", TopicFilter).Msg("subscribe failed")
			return
		}
		i.log.Info().Str("filter", TopicFilter).Msg("subscribed")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		i.log.Warn().Err(err).Msg("broker connection lost, reconnecting")
	})

	i.client = mqtt.NewClient(opts)
	token := i.client.Connect()
	if !token.WaitTimeout(connectWait) {
		// Connect retry keeps going in the background; the API must not
		// stay down just because the broker is.
		i.log.Warn().Str("broker", cfg.BrokerURL).Msg("broker not yet reachable, retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// Stop revokes the subscription and disconnects.
func (i *Ingestor) Stop() {
	if i.client == nil {
		return
	}
	if token := i.client.Unsubscribe(TopicFilter); token.Wait() && token.Error() != nil {
		i.log.Warn().Err(token.Error()).Msg("unsubscribe failed")
	}
	i.client.Disconnect(disconnectGrace)
	i.log.Info().Msg("ingest stopped")
}

// handleMessage routes one inbound publish. Every failure path drops the
// message; only the outcome counter and the log see it.
func (i *Ingestor) handleMessage(topic string, raw []byte) {
	nodeID, kind, ok := parseTopic(topic)
	if !ok {
		metrics.IngestMessagesTotal.WithLabelValues("unknown", metrics.OutcomeUnknownTopic).Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
	defer cancel()

	switch kind {
	case kindMetrics:
		i.handleMetrics(ctx, nodeID, raw)
	case kindSystem:
		i.handleSystemInfo(ctx, nodeID, raw)
	default:
		metrics.IngestMessagesTotal.WithLabelValues(kind, metrics.OutcomeUnknownTopic).Inc()
	}
}

func (i *Ingestor) handleMetrics(ctx context.Context, nodeID string, raw []byte) {
	p, err := i.validator.ValidateMetrics(raw)
	if err != nil {
		i.log.Warn().Err(err).Str("node_id", nodeID).Msg("dropping invalid metrics payload")
		metrics.IngestMessagesTotal.WithLabelValues(kindMetrics, metrics.OutcomeInvalid).Inc()
		return
	}

	metric := &models.Metric{
		NodeID:    nodeID,
		Ts:        p.Ts,
		CPU:       p.CPU,
		MemUsed:   p.MemUsed,
		MemTotal:  p.MemTotal,
		DiskUsed:  p.DiskUsed,
		DiskTotal: p.DiskTotal,
		NetRx:     p.NetRx,
		NetTx:     p.NetTx,
	}
	if err := i.metricsRepo.Append(ctx, metric); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			i.log.Warn().Str("node_id", nodeID).Msg("dropping metrics for unknown node")
			metrics.IngestMessagesTotal.WithLabelValues(kindMetrics, metrics.OutcomeUnknownNode).Inc()
			return
		}
		i.log.Error().Err(err).Str("node_id", nodeID).Msg("metric append failed")
		metrics.IngestMessagesTotal.WithLabelValues(kindMetrics, metrics.OutcomeStorageFailed).Inc()
		return
	}

	metrics.IngestMessagesTotal.WithLabelValues(kindMetrics, metrics.OutcomeOK).Inc()
	i.signalChanged()
}

func (i *Ingestor) handleSystemInfo(ctx context.Context, nodeID string, raw []byte) {
	p, err := i.validator.ValidateSystemInfo(raw)
	if err != nil {
		i.log.Warn().Err(err).Str("node_id", nodeID).Msg("dropping invalid system info payload")
		metrics.IngestMessagesTotal.WithLabelValues(kindSystem, metrics.OutcomeInvalid).Inc()
		return
	}

	// Store the payload as it arrived; it already passed the schema.
	var stored models.JSONMap
	if err := json.Unmarshal(raw, &stored); err != nil {
		metrics.IngestMessagesTotal.WithLabelValues(kindSystem, metrics.OutcomeMalformed).Inc()
		return
	}

	info := &models.NodeSystemInfo{
		NodeID:     nodeID,
		Hash:       p.Hash,
		Payload:    stored,
		ReportedTs: p.Ts,
	}
	changed, err := i.sysinfoRepo.Upsert(ctx, info)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			i.log.Warn().Str("node_id", nodeID).Msg("dropping system info for unknown node")
			metrics.IngestMessagesTotal.WithLabelValues(kindSystem, metrics.OutcomeUnknownNode).Inc()
			return
		}
		i.log.Error().Err(err).Str("node_id", nodeID).Msg("system info upsert failed")
		metrics.IngestMessagesTotal.WithLabelValues(kindSystem, metrics.OutcomeStorageFailed).Inc()
		return
	}

	metrics.IngestMessagesTotal.WithLabelValues(kindSystem, metrics.OutcomeOK).Inc()
	if changed {
		i.signalChanged()
	}
}

func (i *Ingestor) signalChanged() {
	if i.notifier != nil {
		i.notifier.Changed()
	}
}

// parseTopic extracts (nodeID, kind) from statix/nodes/<nodeId>/<kind>.
// Anything else is not ours and is ignored silently.
func parseTopic(topic string) (nodeID, kind string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != topicPrefix || parts[1] != topicNodes || parts[2] == "" {
		return "", "", false
	}
	return parts[2], parts[3], true
}
