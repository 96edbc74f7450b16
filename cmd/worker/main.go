// worker — a distributed benchmarking agent: registers with an
// orchestrator, claims jobs off a shared queue, and measures a model's
// load and inference timing in an isolated child process.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benchworker/agent/internal/agent"
	"github.com/benchworker/agent/internal/deviceprobe"
	"github.com/benchworker/agent/internal/diagnostics"
	"github.com/benchworker/agent/internal/engine"
	"github.com/benchworker/agent/internal/heartbeat"
	"github.com/benchworker/agent/internal/observability"
	"github.com/benchworker/agent/internal/orchestratorclient"
	"github.com/benchworker/agent/internal/output"
	"github.com/benchworker/agent/internal/queue"
	"github.com/benchworker/agent/internal/runner"
)

var version = "0.1.0"

const heartbeatPeriod = 10 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:     "worker",
		Short:   "Distributed benchmarking worker agent",
		Version: version,
	}

	rootCmd.AddCommand(
		newStartCmd(),
		newEnrollCmd(),
		newInfoCmd(),
		newValidateCmd(),
		newTestCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// hostFlag binds --host, falling back to ORCHESTRATOR_URL when the flag
// is left empty, matching the teacher's pattern of flag variables
// pre-populated from the environment before cobra parses argv.
func hostFlag(cmd *cobra.Command, host *string) {
	cmd.Flags().StringVar(host, "host", os.Getenv("ORCHESTRATOR_URL"), "Orchestrator base URL (env ORCHESTRATOR_URL)")
}

func redisFlags(cmd *cobra.Command, redisHost *string, redisPort *int) {
	defaultPort := 6379
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if p, err := fmt.Sscanf(v, "%d", &defaultPort); err != nil || p != 1 {
			defaultPort = 6379
		}
	}
	cmd.Flags().StringVar(redisHost, "redis-host", "localhost", "Redis broker host")
	cmd.Flags().IntVar(redisPort, "redis-port", defaultPort, "Redis broker port (env REDIS_PORT)")
}

func newStartCmd() *cobra.Command {
	var host, redisHost string
	var redisPort int
	var verbose bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Register with the orchestrator and run the job loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			if host == "" {
				return fmt.Errorf("--host is required (or set ORCHESTRATOR_URL)")
			}
			return runStart(host, redisHost, redisPort, verbose)
		},
	}
	hostFlag(cmd, &host)
	redisFlags(cmd, &redisHost, &redisPort)
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}

func runStart(host, redisHost string, redisPort int, verbose bool) error {
	logger, err := observability.NewLogger(verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	probe := deviceprobe.New()
	device, err := probe.DeviceInfo(ctx)
	if err != nil {
		return fmt.Errorf("probe device: %w", err)
	}
	capabilities := probe.Capabilities(ctx)

	client := orchestratorclient.New(host)
	workerID, err := client.Register(ctx, orchestratorclient.RegisterRequest{
		DeviceName:   device.DeviceName,
		IPAddress:    localIPAddress(),
		Capabilities: capabilities,
		DeviceInfo:   device,
	})
	if err != nil {
		return fmt.Errorf("register with orchestrator: %w", err)
	}
	logger.Info("registered", zap.String("worker_id", workerID), zap.Strings("capabilities", capabilities))

	redisAddr := fmt.Sprintf("%s:%d", redisHost, redisPort)
	q := queue.New(redisAddr, "", 0)
	defer q.Close()

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}

	r := runner.New(measureBinaryPath(), workDir)
	hb := heartbeat.New(client, workerID, heartbeatPeriod, logger)

	sup := agent.New(client, q, engine.NewRegistry(), r, hb, logger, workerID, device, capabilities, "")
	sup.StartJobLoop(ctx)
	return nil
}

func newEnrollCmd() *cobra.Command {
	var host string

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Interactively register this device and print its worker id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if host == "" {
				return fmt.Errorf("--host is required (or set ORCHESTRATOR_URL)")
			}
			return runEnroll(host)
		},
	}
	hostFlag(cmd, &host)
	return cmd
}

func runEnroll(host string) error {
	progress := observability.NewProgress(true)
	ctx := context.Background()

	probe := deviceprobe.New()
	progress.Log("probing device...")
	device, err := probe.DeviceInfo(ctx)
	if err != nil {
		return fmt.Errorf("probe device: %w", err)
	}
	capabilities := probe.Capabilities(ctx)
	progress.Log("capabilities: %v", capabilities)

	client := orchestratorclient.New(host)
	workerID, err := client.Register(ctx, orchestratorclient.RegisterRequest{
		DeviceName:   device.DeviceName,
		IPAddress:    localIPAddress(),
		Capabilities: capabilities,
		DeviceInfo:   device,
	})
	if err != nil {
		return fmt.Errorf("register with orchestrator: %w", err)
	}

	fmt.Printf("Registered. worker_id=%s\n", workerID)
	return nil
}

func newInfoCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print this device's descriptor and capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func runInfo(asJSON bool) error {
	ctx := context.Background()
	probe := deviceprobe.New()
	device, err := probe.DeviceInfo(ctx)
	if err != nil {
		return fmt.Errorf("probe device: %w", err)
	}
	capabilities := probe.Capabilities(ctx)

	if asJSON {
		type infoJSON struct {
			Device       interface{} `json:"device"`
			Capabilities []string    `json:"capabilities"`
		}
		return output.WriteJSON(infoJSON{Device: device, Capabilities: capabilities}, "-")
	}

	fmt.Printf("Device:  %s\n", device.DeviceName)
	fmt.Printf("OS:      %s (%s)\n", device.DeviceOs, device.DeviceOsVersion)
	fmt.Printf("SoC:     %s\n", device.Soc)
	fmt.Printf("RAM:     %d GB\n", device.Ram)
	fmt.Printf("UDID:    %s\n", device.UDID)
	fmt.Println("Capabilities:")
	for _, c := range capabilities {
		fmt.Printf("  - %s\n", c)
	}
	return nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check presence of required and optional runtime dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate()
		},
	}
}

func runValidate() error {
	checks := diagnostics.Validate()

	fmt.Println("Dependency checks:")
	allRequiredOK := true
	for _, c := range checks {
		status := "OK"
		if !c.OK {
			status = "MISSING"
			if c.Required {
				allRequiredOK = false
			}
		}
		kind := "optional"
		if c.Required {
			kind = "required"
		}
		fmt.Printf("  [%s] %-16s %-8s (%s) — %s\n", status, c.Name, kind, c.Detail, kind)
	}

	if !allRequiredOK {
		fmt.Println("\nSome required dependencies are missing.")
		os.Exit(1)
	}
	fmt.Println("\nAll required dependencies are present.")
	return nil
}

func newTestCmd() *cobra.Command {
	var host, redisHost string
	var redisPort int

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Probe connectivity to the orchestrator and queue broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if host == "" {
				return fmt.Errorf("--host is required (or set ORCHESTRATOR_URL)")
			}
			return runTest(host, fmt.Sprintf("%s:%d", redisHost, redisPort))
		},
	}
	hostFlag(cmd, &host)
	redisFlags(cmd, &redisHost, &redisPort)
	return cmd
}

func runTest(host, redisAddr string) error {
	result := diagnostics.TestConnectivity(context.Background(), host, redisAddr)

	fmt.Printf("Local machine: %s\n", result.Hostname.Detail)
	fmt.Printf("Orchestrator (%s): %s\n", host, checkLine(result.Orchestrator))
	fmt.Printf("Redis (%s): %s\n", redisAddr, checkLine(result.Broker))

	if !result.Orchestrator.OK || !result.Broker.OK {
		os.Exit(1)
	}
	return nil
}

func checkLine(c diagnostics.Check) string {
	if c.OK {
		return c.Detail
	}
	return "FAILED — " + c.Detail
}

// localIPAddress best-effort resolves a routable local address, the same
// identity reported alongside DeviceName at registration.
func localIPAddress() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	return addr.IP.String()
}

// measureBinaryPath locates the measurement child binary, expected to be
// installed alongside this one.
func measureBinaryPath() string {
	name := "measure"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return name
}
