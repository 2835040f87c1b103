package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMetricsJSON() string {
	return `{"v":1,"ts":1763630000000,"cpu":0.42,"mem_used":2147483648,"mem_total":8589934592,` +
		`"disk_used":10737418240,"disk_total":107374182400,"net_rx":1024,"net_tx":512}`
}

func TestValidator_Metrics(t *testing.T) {
	t.Parallel()
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(m map[string]any)
		raw     string
		wantErr bool
	}{
		{name: "valid sample"},
		{name: "cpu above one", mutate: func(m map[string]any) { m["cpu"] = 1.5 }, wantErr: true},
		{name: "cpu exactly one", mutate: func(m map[string]any) { m["cpu"] = 1.0 }},
		{name: "cpu exactly zero", mutate: func(m map[string]any) { m["cpu"] = 0.0 }},
		{name: "negative counter", mutate: func(m map[string]any) { m["net_rx"] = -1 }, wantErr: true},
		{name: "zero counters allowed", mutate: func(m map[string]any) { m["net_rx"] = 0; m["net_tx"] = 0 }},
		{name: "missing mem_total", mutate: func(m map[string]any) { delete(m, "mem_total") }, wantErr: true},
		{name: "zero mem_total", mutate: func(m map[string]any) { m["mem_total"] = 0 }, wantErr: true},
		{name: "zero ts", mutate: func(m map[string]any) { m["ts"] = 0 }, wantErr: true},
		{name: "wrong version", mutate: func(m map[string]any) { m["v"] = 2 }, wantErr: true},
		{name: "string cpu", mutate: func(m map[string]any) { m["cpu"] = "0.4" }, wantErr: true},
		{name: "unknown keys ignored", mutate: func(m map[string]any) { m["extra"] = "anything" }},
		{name: "malformed JSON", raw: `{"v":1,`, wantErr: true},
		{name: "non-object", raw: `[1,2,3]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			raw := tt.raw
			if raw == "" {
				var m map[string]any
				require.NoError(t, json.Unmarshal([]byte(validMetricsJSON()), &m))
				if tt.mutate != nil {
					tt.mutate(m)
				}
				encoded, err := json.Marshal(m)
				require.NoError(t, err)
				raw = string(encoded)
			}

			parsed, err := v.ValidateMetrics([]byte(raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, parsed.V)
			assert.Equal(t, int64(1763630000000), parsed.Ts)
		})
	}
}

func validSystemInfoRaw(t *testing.T) map[string]any {
	t.Helper()

	info := SystemInfo{
		OSPlatform: "linux",
		OSRelease:  "6.8.0-45-generic",
		OSArch:     "amd64",
		Hostname:   "node-1",
		CPUModel:   "Intel(R) Xeon(R) Gold 6338",
		CPUCores:   16,
		MemTotal:   34359738368,
		GPUs:       []GPUInfo{},
	}
	hash, err := StableHash(info)
	require.NoError(t, err)

	p := SystemInfoPayload{V: 1, Ts: 1763630000000, Hash: hash, Info: info}
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestValidator_SystemInfo(t *testing.T) {
	t.Parallel()
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(m map[string]any)
		wantErr bool
	}{
		{name: "valid inventory"},
		{name: "uppercase hash rejected", mutate: func(m map[string]any) { m["hash"] = "ABCDEF0000000000000000000000000000000000000000000000000000000000" }, wantErr: true},
		{name: "short hash rejected", mutate: func(m map[string]any) { m["hash"] = "abc123" }, wantErr: true},
		{name: "zero cores rejected", mutate: func(m map[string]any) {
			m["info"].(map[string]any)["cpuCores"] = 0
		}, wantErr: true},
		{name: "missing hostname", mutate: func(m map[string]any) {
			delete(m["info"].(map[string]any), "hostname")
		}, wantErr: true},
		{name: "gpu without name", mutate: func(m map[string]any) {
			m["info"].(map[string]any)["gpus"] = []any{map[string]any{"vendor": "nvidia"}}
		}, wantErr: true},
		{name: "gpu with full detail", mutate: func(m map[string]any) {
			m["info"].(map[string]any)["gpus"] = []any{map[string]any{
				"name": "NVIDIA RTX 4090", "vendor": "nvidia", "memoryBytes": 25769803776, "driverVersion": "550.54",
			}}
		}},
		{name: "optional agent fields absent", mutate: func(m map[string]any) {
			info := m["info"].(map[string]any)
			delete(info, "agentVersion")
			delete(info, "agentCommit")
			delete(info, "agentBuiltAt")
		}},
		{name: "unknown info keys ignored", mutate: func(m map[string]any) {
			m["info"].(map[string]any)["kernelFlavor"] = "lowlatency"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := validSystemInfoRaw(t)
			if tt.mutate != nil {
				tt.mutate(m)
			}
			raw, err := json.Marshal(m)
			require.NoError(t, err)

			parsed, err := v.ValidateSystemInfo(raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "node-1", parsed.Info.Hostname)
			assert.Len(t, parsed.Hash, 64)
		})
	}
}
