// Package hardware detects CUDA devices and builds the hardware description
// attached to coordinator heartbeats.
package hardware

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Probe is what the supervisor and the device workers need from the host.
type Probe interface {
	// DeviceCount returns the number of physically available CUDA devices.
	DeviceCount() (int, error)
	// CheckDevice verifies that device exists and meets minCap.
	CheckDevice(device int, minCap float64) error
	// Describe returns a one-line hardware summary for device.
	Describe(device int) string
}

// ErrDeviceUnusable is returned by CheckDevice for a missing or too old device.
var ErrDeviceUnusable = errors.New("cuda device unusable")

// System is the Probe backed by nvidia-smi and gopsutil.
type System struct {
	run runner
}

// NewSystem returns a Probe for the local machine.
func NewSystem() *System { return &System{run: execRunner} }

func (s *System) devices() ([]Device, error) {
	run := s.run
	if run == nil {
		run = execRunner
	}
	return queryNVIDIA(run)
}

// DeviceCount returns 0 with an error when nvidia-smi is unavailable.
func (s *System) DeviceCount() (int, error) {
	devs, err := s.devices()
	if err != nil {
		return 0, err
	}
	return len(devs), nil
}

func (s *System) CheckDevice(device int, minCap float64) error {
	devs, err := s.devices()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnusable, err)
	}
	for _, d := range devs {
		if d.Index != device {
			continue
		}
		if minCap > 0 && d.ComputeCap < minCap {
			return fmt.Errorf("%w: device %d (%s) compute capability %.1f < %.1f", ErrDeviceUnusable, device, d.Name, d.ComputeCap, minCap)
		}
		return nil
	}
	return fmt.Errorf("%w: device %d not found", ErrDeviceUnusable, device)
}

// Describe never fails; unknown facts are omitted.
func (s *System) Describe(device int) string {
	var parts []string
	if devs, err := s.devices(); err == nil {
		for _, d := range devs {
			if d.Index == device {
				parts = append(parts, fmt.Sprintf("%s (%d MiB, cc %.1f)", d.Name, d.MemoryMB, d.ComputeCap))
				break
			}
		}
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		parts = append(parts, fmt.Sprintf("CPU: %s x%d", strings.TrimSpace(infos[0].ModelName), len(infos)))
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		parts = append(parts, fmt.Sprintf("RAM: %d GB", vm.Total/(1<<30)))
	}
	if hi, err := host.Info(); err == nil {
		parts = append(parts, fmt.Sprintf("OS: %s %s %s", hi.OS, hi.Platform, hi.PlatformVersion))
	} else {
		parts = append(parts, "OS: "+runtime.GOOS)
	}
	return strings.Join(parts, "; ")
}
