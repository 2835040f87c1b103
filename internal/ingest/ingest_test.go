package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/GustavPetterssonBjorklund/Statix/internal/payload"
	"github.com/GustavPetterssonBjorklund/Statix/internal/repository"
)

type stubMetricRepo struct {
	appended []*models.Metric
	err      error
}

func (s *stubMetricRepo) Append(_ context.Context, m *models.Metric) error {
	if s.err != nil {
		return s.err
	}
	s.appended = append(s.appended, m)
	return nil
}

func (s *stubMetricRepo) ListRecent(context.Context, string, int) ([]models.Metric, error) {
	return nil, nil
}

type stubSysInfoRepo struct {
	upserted []*models.NodeSystemInfo
	changed  bool
	err      error
}

func (s *stubSysInfoRepo) Upsert(_ context.Context, info *models.NodeSystemInfo) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.upserted = append(s.upserted, info)
	return s.changed, nil
}

func (s *stubSysInfoRepo) GetByNodeID(context.Context, string) (*models.NodeSystemInfo, error) {
	return nil, repository.ErrNotFound
}

type countingNotifier struct{ signals int }

func (n *countingNotifier) Changed() { n.signals++ }

func newTestIngestor(t *testing.T) (*Ingestor, *stubMetricRepo, *stubSysInfoRepo, *countingNotifier) {
	t.Helper()
	validator, err := payload.NewValidator()
	require.NoError(t, err)

	metricRepo := &stubMetricRepo{}
	sysRepo := &stubSysInfoRepo{changed: true}
	notifier := &countingNotifier{}
	return New(metricRepo, sysRepo, validator, notifier), metricRepo, sysRepo, notifier
}

func validMetricsJSON(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"v": 1, "ts": 1700000000000, "cpu": 0.5,
		"mem_used": 1, "mem_total": 2,
		"disk_used": 0, "disk_total": 1,
		"net_rx": 0, "net_tx": 0,
	})
	require.NoError(t, err)
	return raw
}

func validSystemInfoJSON(t *testing.T) []byte {
	t.Helper()
	info := payload.SystemInfo{
		OSPlatform: "linux", OSRelease: "6.8", OSArch: "amd64",
		Hostname: "edge-1", CPUModel: "EPYC", CPUCores: 16,
		MemTotal: 64 << 30, GPUs: []payload.GPUInfo{},
	}
	hash, err := payload.StableHash(info)
	require.NoError(t, err)
	raw, err := json.Marshal(payload.SystemInfoPayload{
		V: 1, Ts: 1700000000000, Hash: hash, Info: info,
	})
	require.NoError(t, err)
	return raw
}

func TestHandleMessage_Metrics(t *testing.T) {
	ing, metricRepo, _, notifier := newTestIngestor(t)

	ing.handleMessage("statix/nodes/01HZX5TEST/metrics", validMetricsJSON(t))

	require.Len(t, metricRepo.appended, 1)
	m := metricRepo.appended[0]
	assert.Equal(t, "01HZX5TEST", m.NodeID)
	assert.Equal(t, int64(1700000000000), m.Ts)
	assert.Equal(t, 0.5, m.CPU)
	assert.Equal(t, 1, notifier.signals)
}

func TestHandleMessage_SystemInfo(t *testing.T) {
	ing, _, sysRepo, notifier := newTestIngestor(t)

	raw := validSystemInfoJSON(t)
	ing.handleMessage("statix/nodes/01HZX5TEST/system", raw)

	require.Len(t, sysRepo.upserted, 1)
	assert.Equal(t, "01HZX5TEST", sysRepo.upserted[0].NodeID)
	assert.NotEmpty(t, sysRepo.upserted[0].Hash)
	assert.Equal(t, 1, notifier.signals)

	// An unchanged upsert does not signal the roster.
	sysRepo.changed = false
	ing.handleMessage("statix/nodes/01HZX5TEST/system", raw)
	assert.Equal(t, 1, notifier.signals)
}

func TestHandleMessage_Drops(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		raw   []byte
	}{
		{"malformed json", "statix/nodes/n1/metrics", []byte("{nope")},
		{"schema violation cpu", "statix/nodes/n1/metrics", []byte(`{"v":1,"ts":1,"cpu":1.5,"mem_used":1,"mem_total":2,"disk_used":0,"disk_total":1,"net_rx":0,"net_tx":0}`)},
		{"schema violation missing field", "statix/nodes/n1/metrics", []byte(`{"v":1,"ts":1}`)},
		{"foreign topic", "other/nodes/n1/metrics", validMetricsJSONStatic},
		{"short topic", "statix/nodes/metrics", validMetricsJSONStatic},
		{"unknown kind", "statix/nodes/n1/events", validMetricsJSONStatic},
		{"empty node id", "statix/nodes//metrics", validMetricsJSONStatic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing, metricRepo, sysRepo, notifier := newTestIngestor(t)
			ing.handleMessage(tt.topic, tt.raw)
			assert.Empty(t, metricRepo.appended)
			assert.Empty(t, sysRepo.upserted)
			assert.Zero(t, notifier.signals)
		})
	}
}

var validMetricsJSONStatic = []byte(`{"v":1,"ts":1700000000000,"cpu":0.5,"mem_used":1,"mem_total":2,"disk_used":0,"disk_total":1,"net_rx":0,"net_tx":0}`)

func TestHandleMessage_UnknownNodeDropped(t *testing.T) {
	ing, metricRepo, sysRepo, notifier := newTestIngestor(t)
	metricRepo.err = repository.ErrNotFound
	sysRepo.err = repository.ErrNotFound

	ing.handleMessage("statix/nodes/ghost/metrics", validMetricsJSON(t))
	ing.handleMessage("statix/nodes/ghost/system", validSystemInfoJSON(t))

	assert.Zero(t, notifier.signals)
}

func TestHandleMessage_StorageErrorDropped(t *testing.T) {
	ing, metricRepo, _, notifier := newTestIngestor(t)
	metricRepo.err = assert.AnError

	// Must not panic and must not signal.
	ing.handleMessage("statix/nodes/n1/metrics", validMetricsJSON(t))
	assert.Zero(t, notifier.signals)
}

func TestParseTopic(t *testing.T) {
	nodeID, kind, ok := parseTopic("statix/nodes/01HZX/metrics")
	require.True(t, ok)
	assert.Equal(t, "01HZX", nodeID)
	assert.Equal(t, "metrics", kind)

	_, _, ok = parseTopic("statix/nodes/01HZX/metrics/extra")
	assert.False(t, ok)
}
