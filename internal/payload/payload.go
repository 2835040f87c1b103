// Package payload defines the broker wire formats shared by the agent and
// the server: the metrics sample, the system inventory, their JSON Schemas,
// and the stable stringification both sides hash inventories with.
package payload

// Version is the current wire version of both payload kinds.
const Version = 1

// MetricsPayload is one telemetry sample, published to
// statix/nodes/<nodeId>/metrics at QoS 1.
type MetricsPayload struct {
	V         int     `json:"v"`
	Ts        int64   `json:"ts"` // epoch ms, agent clock
	CPU       float64 `json:"cpu"`
	MemUsed   int64   `json:"mem_used"`
	MemTotal  int64   `json:"mem_total"`
	DiskUsed  int64   `json:"disk_used"`
	DiskTotal int64   `json:"disk_total"`
	NetRx     int64   `json:"net_rx"`
	NetTx     int64   `json:"net_tx"`
}

// SystemInfoPayload is the retained inventory message, published to
// statix/nodes/<nodeId>/system. Hash is the stable hash of Info and is what
// the server uses for change detection.
type SystemInfoPayload struct {
	V    int        `json:"v"`
	Ts   int64      `json:"ts"` // epoch ms, agent clock
	Hash string     `json:"hash"`
	Info SystemInfo `json:"info"`
}

// SystemInfo describes the host an agent runs on.
type SystemInfo struct {
	OSPlatform   string    `json:"osPlatform"`
	OSRelease    string    `json:"osRelease"`
	OSArch       string    `json:"osArch"`
	Hostname     string    `json:"hostname"`
	CPUModel     string    `json:"cpuModel"`
	CPUCores     int       `json:"cpuCores"`
	MemTotal     int64     `json:"memTotal"`
	AgentVersion string    `json:"agentVersion,omitempty"`
	AgentCommit  string    `json:"agentCommit,omitempty"`
	AgentBuiltAt string    `json:"agentBuiltAt,omitempty"`
	GPUs         []GPUInfo `json:"gpus"`
}

// GPUInfo describes one GPU, best-effort.
type GPUInfo struct {
	Name          string `json:"name"`
	Vendor        string `json:"vendor,omitempty"`
	MemoryBytes   int64  `json:"memoryBytes,omitempty"`
	DriverVersion string `json:"driverVersion,omitempty"`
}
