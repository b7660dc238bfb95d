package hardware

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Device describes one CUDA device as reported by nvidia-smi.
type Device struct {
	Index      int
	Name       string
	MemoryMB   int64
	ComputeCap float64
}

// runner executes a command and returns its stdout.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

var nvidiaQuery = []string{"--query-gpu=index,name,memory.total,compute_cap", "--format=csv,noheader"}

// queryNVIDIA lists devices through nvidia-smi. A missing binary yields an error.
func queryNVIDIA(run runner) ([]Device, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := run(ctx, "nvidia-smi", nvidiaQuery...)
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi: %w", err)
	}
	return parseNVIDIA(string(out)), nil
}

// parseNVIDIA parses lines like "0, NVIDIA GeForce RTX 4090, 24564 MiB, 8.9".
// Malformed lines are skipped.
func parseNVIDIA(out string) []Device {
	var devs []Device
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			continue
		}
		d := Device{Index: idx, Name: strings.TrimSpace(parts[1])}
		if len(parts) >= 3 {
			memStr := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(parts[2]), "MiB"))
			if mb, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				d.MemoryMB = mb
			}
		}
		if len(parts) >= 4 {
			if cc, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64); err == nil {
				d.ComputeCap = cc
			}
		}
		devs = append(devs, d)
	}
	return devs
}
