package agent

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/GustavPetterssonBjorklund/Statix/internal/payload"
)

// SampleMetrics builds one metrics sample from the host, best-effort: any
// probe that fails contributes a zero rather than an error.
func SampleMetrics(now time.Time) payload.MetricsPayload {
	memUsed, memTotal := memoryUsage()
	diskUsed, diskTotal := diskUsage("/")
	netRx, netTx := networkTotals()

	return payload.MetricsPayload{
		V:         payload.Version,
		Ts:        now.UnixMilli(),
		CPU:       cpuLoad(),
		MemUsed:   memUsed,
		MemTotal:  max(memTotal, 1),
		DiskUsed:  diskUsed,
		DiskTotal: max(diskTotal, 1),
		NetRx:     netRx,
		NetTx:     netTx,
	}
}

// cpuLoad approximates utilization as the 1-minute load average divided by
// the logical core count, clamped to [0, 1].
func cpuLoad() float64 {
	raw, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return 0
	}
	load, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}

	cores := float64(runtime.NumCPU())
	if cores <= 0 {
		cores = 1
	}
	ratio := load / cores
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// memoryUsage prefers cgroup v2 accounting (containers), then falls back to
// MemAvailable from /proc/meminfo.
func memoryUsage() (used, total int64) {
	if current, ok := readInt64File("/sys/fs/cgroup/memory.current"); ok {
		if limit, ok := readInt64File("/sys/fs/cgroup/memory.max"); ok {
			return current, limit
		}
	}

	memTotal := meminfoValue("MemTotal:")
	memAvailable := meminfoValue("MemAvailable:")
	if memTotal > 0 && memAvailable >= 0 {
		return memTotal - memAvailable, memTotal
	}
	return 0, 0
}

// meminfoValue reads one kB-denominated field out of /proc/meminfo, in
// bytes. Returns -1 when the field is missing.
func meminfoValue(key string) int64 {
	raw, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return -1
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if !strings.HasPrefix(line, key) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return -1
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return -1
		}
		return kb * 1024
	}
	return -1
}

// readInt64File parses a file holding a single integer. Files holding "max"
// (an unlimited cgroup) report not-ok so the caller falls back.
func readInt64File(path string) (int64, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	value, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// networkTotals sums received/transmitted bytes across physical interfaces.
// Zero when /proc/net/dev is unreadable; the schema only requires
// non-negative.
func networkTotals() (rx, tx int64) {
	raw, err := os.ReadFile("/proc/net/dev")
	if err != nil {
		return 0, 0
	}
	for _, line := range strings.Split(string(raw), "\n") {
		name, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(name) == "lo" {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 9 {
			continue
		}
		if v, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
			rx += v
		}
		if v, err := strconv.ParseInt(fields[8], 10, 64); err == nil {
			tx += v
		}
	}
	return rx, tx
}
