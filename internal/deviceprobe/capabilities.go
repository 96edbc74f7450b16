package deviceprobe

import (
	"context"
	"runtime"
	"strings"

	"github.com/benchworker/agent/internal/engine"
)

// Capabilities enumerates the compute units this device can benchmark
// against, in the fixed preference order the orchestrator expects: CPU
// first, then any GPU/accelerator backends that are actually usable.
// Every ONNX-backed capability is keyed off the execution providers this
// build of ONNX Runtime actually advertises, mirroring
// device_info.py's get_compute_units calling ort.get_available_providers()
// rather than inferring availability from the OS or a separate driver
// probe. Detection failures are silent — an unavailable backend is simply
// omitted, never a reported error, since a worker with only CPU is a
// perfectly valid registration.
func (p *Probe) Capabilities(ctx context.Context) []string {
	seen := make(map[string]bool)
	var units []string
	add := func(u string) {
		if seen[u] {
			return
		}
		seen[u] = true
		units = append(units, u)
	}

	providers := engine.AvailableProviders()
	hasProvider := func(name string) bool {
		for _, p := range providers {
			if p == name {
				return true
			}
		}
		return false
	}

	// CPU via ONNX Runtime is always available.
	add("CPU (ONNX)")

	if hasProvider("CUDAExecutionProvider") {
		add("GPU (ONNX)")
	}
	if hasProvider("DmlExecutionProvider") {
		add("DirectML (ONNX)")
	}
	if hasProvider("OpenVINOExecutionProvider") {
		add("OpenVINO (ONNX)")
	}

	if runtime.GOOS == "darwin" {
		soc, _ := p.runCommandOrDefault(ctx, "sysctl", "-n", "machdep.cpu.brand_string")
		if strings.Contains(soc, "Apple") && (&engine.CoreMLEngine{}).Available() {
			add("GPU (CoreML)")
			add("Neural Engine (CoreML)")
		}
	}

	return units
}

func (p *Probe) runCommandOrDefault(ctx context.Context, name string, args ...string) (string, error) {
	run := p.runCommand
	if run == nil {
		run = runCommand
	}
	return run(ctx, name, args...)
}
