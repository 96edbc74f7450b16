// Package deviceprobe gathers the identity and capability information a
// worker reports at registration time: the device descriptor (name, OS,
// SoC, RAM, UDID) and the ordered list of compute units it can benchmark
// against. Internals are OS-branched the way the teacher's
// collector/system.go and collector/cpu.go branch on runtime.GOOS, read
// from sysfs/sysctl/registry rather than a wire protocol.
package deviceprobe

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/benchworker/agent/internal/model"
)

// Probe gathers device identity and capability information. The zero value
// is ready to use.
type Probe struct {
	// runCommand is overridable in tests to avoid shelling out.
	runCommand func(ctx context.Context, name string, args ...string) (string, error)
}

// New returns a ready-to-use Probe.
func New() *Probe {
	return &Probe{runCommand: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// DeviceInfo returns the descriptor reported at registration and embedded
// in every result record. It never returns an error in practice — every
// field has a fallback — but the signature leaves room for a hard failure
// (e.g. RAM unreadable) without forcing callers to special-case a zero
// value.
func (p *Probe) DeviceInfo(ctx context.Context) (model.Descriptor, error) {
	base := p.runCommand
	if base == nil {
		base = runCommand
	}
	run := func(ctx context.Context, name string, args ...string) (string, error) {
		cctx, cancel := context.WithTimeout(ctx, registrationTimeout)
		defer cancel()
		return base(cctx, name, args...)
	}

	d := model.Descriptor{
		DeviceOs:        runtime.GOOS,
		DeviceOsVersion: osVersion(),
		DeviceName:      hostnameMAC(),
		Soc:             "unknown",
	}
	if d.DeviceName == "" {
		d.DeviceName = "unknown_" + uuid.NewString()
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		d.Ram = int(vm.Total / (1024 * 1024 * 1024))
	}

	switch runtime.GOOS {
	case "darwin":
		if soc, err := run(ctx, "sysctl", "-n", "machdep.cpu.brand_string"); err == nil && soc != "" {
			d.Soc = soc
		}
		if name, err := run(ctx, "sysctl", "-n", "hw.model"); err == nil && name != "" {
			d.DeviceName = name
		}
		if gpu := darwinDiscreteGPU(ctx, run); gpu != "" {
			d.DiscreteGpu = &gpu
		}
	case "linux":
		if soc := linuxCPUModel(); soc != "" {
			d.Soc = soc
		}
		if name := linuxBoardName(); name != "" {
			d.DeviceName = name
		}
	case "windows":
		if name, err := run(ctx, "wmic", "csproduct", "get", "name"); err == nil {
			if parsed := parseWmicName(name); parsed != "" {
				d.DeviceName = parsed
			}
		}
	}

	d.UDID = p.deviceUDID(ctx, run)

	// DeviceYear is never populated; the original never detects it either.
	return d, nil
}

func osVersion() string {
	if runtime.GOOS == "linux" {
		if v := readFile("/proc/version"); v != "" {
			return v
		}
	}
	return runtime.GOOS
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func readFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func linuxCPUModel() string {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "model name") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}
	return ""
}

func linuxBoardName() string {
	vendor := readFile("/sys/class/dmi/id/board_vendor")
	name := readFile("/sys/class/dmi/id/board_name")
	switch {
	case vendor != "" && name != "":
		return vendor + " " + name
	case name != "":
		return name
	default:
		return ""
	}
}

func darwinDiscreteGPU(ctx context.Context, run func(context.Context, string, ...string) (string, error)) string {
	out, err := run(ctx, "system_profiler", "SPDisplaysDataType")
	if err != nil || !strings.Contains(out, "Chipset Model") {
		return ""
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "Chipset Model") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}
	return ""
}

func parseWmicName(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "Name" {
			continue
		}
		return line
	}
	return ""
}

// deviceUDID mirrors original_source/worker/device_info.py's
// get_device_udid fallback chain exactly: per-OS stable identifier first,
// then hostname+MAC, then a random UUID as the last resort so a UDID is
// always returned.
func (p *Probe) deviceUDID(ctx context.Context, run func(context.Context, string, ...string) (string, error)) string {
	switch runtime.GOOS {
	case "darwin":
		if udid := darwinHardwareUUID(ctx, run); udid != "" {
			return udid
		}
	case "linux":
		if udid := readFile("/etc/machine-id"); udid != "" {
			return udid
		}
	}

	if udid := hostnameMAC(); udid != "" {
		return udid
	}
	return "unknown_" + uuid.NewString()
}

func darwinHardwareUUID(ctx context.Context, run func(context.Context, string, ...string) (string, error)) string {
	if out, err := run(ctx, "system_profiler", "SPHardwareDataType"); err == nil {
		for _, line := range strings.Split(out, "\n") {
			if strings.Contains(line, "Hardware UUID") {
				parts := strings.SplitN(line, ":", 2)
				if len(parts) == 2 {
					if udid := strings.TrimSpace(parts[1]); udid != "" {
						return udid
					}
				}
			}
		}
	}

	if out, err := run(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice"); err == nil && strings.Contains(out, "IOPlatformUUID") {
		for _, line := range strings.Split(out, "\n") {
			if strings.Contains(line, "IOPlatformUUID") {
				parts := strings.SplitN(line, "=", 2)
				if len(parts) == 2 {
					udid := strings.Trim(strings.TrimSpace(parts[1]), `"`)
					if udid != "" {
						return udid
					}
				}
			}
		}
	}
	return ""
}

func hostnameMAC() string {
	h := hostname()
	if h == "unknown" {
		return ""
	}
	ifaces, err := netInterfaces()
	if err != nil {
		return ""
	}
	for _, mac := range ifaces {
		if mac != "" {
			return h + "_" + mac
		}
	}
	return ""
}

var netInterfaces = func() ([]string, error) {
	ifs, err := interfacesHardwareAddrs()
	if err != nil {
		return nil, err
	}
	return ifs, nil
}

// registrationTimeout bounds every shell-out the probe performs, mirroring
// the 2-5s subprocess timeouts in device_info.py.
const registrationTimeout = 5 * time.Second
