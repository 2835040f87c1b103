package agent

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/GustavPetterssonBjorklund/Statix/internal/buildinfo"
	"github.com/GustavPetterssonBjorklund/Statix/internal/payload"
)

const gpuProbeTimeout = 5 * time.Second

// CollectSystemInfo gathers the host inventory. Every probe is best-effort:
// a host with no /proc or no GPUs still yields a valid (sparser) inventory.
func CollectSystemInfo() payload.SystemInfo {
	build := buildinfo.Resolve()
	hostname, _ := os.Hostname()

	return payload.SystemInfo{
		OSPlatform:   runtime.GOOS,
		OSRelease:    osRelease(),
		OSArch:       runtime.GOARCH,
		Hostname:     hostname,
		CPUModel:     cpuModel(),
		CPUCores:     runtime.NumCPU(),
		MemTotal:     meminfoValue("MemTotal:"),
		AgentVersion: build.Version,
		AgentCommit:  build.GitCommit,
		AgentBuiltAt: build.BuildTime,
		GPUs:         collectGPUs(),
	}
}

// osRelease reads PRETTY_NAME from /etc/os-release, empty when unavailable.
func osRelease() string {
	raw, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(raw), "\n") {
		value, ok := strings.CutPrefix(line, "PRETTY_NAME=")
		if !ok {
			continue
		}
		return strings.Trim(strings.TrimSpace(value), `"`)
	}
	return ""
}

// cpuModel reads the first "model name" line from /proc/cpuinfo.
func cpuModel() string {
	raw, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(key) == "model name" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// collectGPUs probes nvidia-smi first, then falls back to lspci. An empty
// slice (not nil) keeps the published inventory's gpus field an array.
func collectGPUs() []payload.GPUInfo {
	if gpus := nvidiaGPUs(); len(gpus) > 0 {
		return gpus
	}
	if gpus := lspciGPUs(); len(gpus) > 0 {
		return gpus
	}
	return []payload.GPUInfo{}
}

// nvidiaGPUs queries nvidia-smi in CSV mode: one "name, memory.total [MiB],
// driver_version" line per GPU.
func nvidiaGPUs() []payload.GPUInfo {
	out, err := runProbe("nvidia-smi",
		"--query-gpu=name,memory.total,driver_version",
		"--format=csv,noheader,nounits")
	if err != nil {
		return nil
	}

	var gpus []payload.GPUInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			continue
		}
		gpu := payload.GPUInfo{
			Name:          strings.TrimSpace(parts[0]),
			Vendor:        "NVIDIA",
			DriverVersion: strings.TrimSpace(parts[2]),
		}
		if mib, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64); err == nil {
			gpu.MemoryBytes = mib * 1024 * 1024
		}
		if gpu.Name != "" {
			gpus = append(gpus, gpu)
		}
	}
	return gpus
}

// lspciGPUs scans lspci output for VGA/3D controllers. Name only; lspci
// exposes neither memory size nor driver version in this form.
func lspciGPUs() []payload.GPUInfo {
	out, err := runProbe("lspci")
	if err != nil {
		return nil
	}

	var gpus []payload.GPUInfo
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "VGA compatible controller") &&
			!strings.Contains(line, "3D controller") {
			continue
		}
		_, name, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		gpus = append(gpus, payload.GPUInfo{Name: strings.TrimSpace(name)})
	}
	return gpus
}

func runProbe(name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gpuProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
