// Package diagnostics backs the `worker validate` and `worker test`
// subcommands: detection only, no mutation. Narrowed from the teacher's
// internal/installer's distro-detect-then-apt-install flow down to just
// the detection half — nothing in this spec installs software, so the
// package-manager steps (BuildPackageSteps, installPackages,
// updatePackageIndex) have no equivalent here.
package diagnostics

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"time"

	"github.com/benchworker/agent/internal/engine"
	"github.com/benchworker/agent/internal/queue"
)

// Check is one detection result: a named dependency or endpoint, whether
// it is usable, and a human-readable detail (version, error, etc.).
type Check struct {
	Name     string
	OK       bool
	Required bool
	Detail   string
}

// Validate runs the `validate` subcommand's checks: ONNX Runtime always,
// CoreML only where it could ever apply (darwin), grounded on
// cli.py's cmd_validate required/optional dependency split.
func Validate() []Check {
	checks := []Check{onnxRuntimeCheck()}
	if runtime.GOOS == "darwin" {
		checks = append(checks, coreMLCheck())
	}
	return checks
}

func onnxRuntimeCheck() Check {
	reg := engine.NewRegistry()
	eng, err := reg.Select("model.onnx")
	if err != nil {
		return Check{Name: "ONNX Runtime", Required: true, OK: false, Detail: err.Error()}
	}
	defer eng.Close()

	if !eng.Available() {
		return Check{Name: "ONNX Runtime", Required: true, OK: false, Detail: "runtime failed to initialize"}
	}
	return Check{Name: "ONNX Runtime", Required: true, OK: true, Detail: "available"}
}

func coreMLCheck() Check {
	reg := engine.NewRegistry()
	eng, err := reg.Select("model.mlmodel")
	if err != nil {
		return Check{Name: "CoreML", Required: false, OK: false, Detail: err.Error()}
	}
	defer eng.Close()

	if !eng.Available() {
		return Check{Name: "CoreML", Required: false, OK: false, Detail: "not available on this host"}
	}
	return Check{Name: "CoreML", Required: false, OK: true, Detail: "available"}
}

// Connectivity runs the `test` subcommand's checks: local machine
// identity, orchestrator reachability, broker reachability — grounded on
// cli.py's cmd_test (socket.gethostname/gethostbyname, GET /api/health,
// redis PING).
type Connectivity struct {
	Hostname     Check
	Orchestrator Check
	Broker       Check
}

// TestConnectivity probes orchestratorURL and the redis broker at
// redisAddr, each under its own bounded timeout.
func TestConnectivity(ctx context.Context, orchestratorURL, redisAddr string) Connectivity {
	return Connectivity{
		Hostname:     hostnameCheck(),
		Orchestrator: orchestratorCheck(ctx, orchestratorURL),
		Broker:       brokerCheck(ctx, redisAddr),
	}
}

func hostnameCheck() Check {
	hostname, err := os.Hostname()
	if err != nil {
		return Check{Name: "Local machine", OK: false, Detail: err.Error()}
	}
	return Check{Name: "Local machine", OK: true, Detail: hostname}
}

func orchestratorCheck(ctx context.Context, orchestratorURL string) Check {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	healthURL := orchestratorURL
	if parsed, err := url.Parse(orchestratorURL); err == nil {
		parsed.Path = "/api/health"
		healthURL = parsed.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return Check{Name: "Orchestrator", OK: false, Detail: err.Error()}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Check{Name: "Orchestrator", OK: false, Detail: fmt.Sprintf("cannot connect: %v", err)}
	}
	defer resp.Body.Close()

	return Check{Name: "Orchestrator", OK: true, Detail: fmt.Sprintf("reachable (HTTP %d)", resp.StatusCode)}
}

func brokerCheck(ctx context.Context, redisAddr string) Check {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	adapter := queue.New(redisAddr, "", 0)
	defer adapter.Close()

	if !adapter.IsConnected(ctx) {
		return Check{Name: "Redis", OK: false, Detail: fmt.Sprintf("cannot connect to %s", redisAddr)}
	}
	return Check{Name: "Redis", OK: true, Detail: fmt.Sprintf("reachable at %s", redisAddr)}
}
