package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/benchworker/agent/internal/engine"
	"github.com/benchworker/agent/internal/heartbeat"
	"github.com/benchworker/agent/internal/model"
	"github.com/benchworker/agent/internal/orchestratorclient"
	"github.com/benchworker/agent/internal/queue"
	"github.com/benchworker/agent/internal/routing"
	"github.com/benchworker/agent/internal/runner"
)

// fakeMeasurer stubs runner.Runner so these tests exercise the
// supervisor's wiring without spawning cmd/measure.
type fakeMeasurer struct {
	loadResult  runner.Result
	loadErr     error
	inferResult runner.Result
	inferErr    error
}

func (f *fakeMeasurer) Run(ctx context.Context, args runner.Args) (runner.Result, error) {
	if args.Task == "load" {
		return f.loadResult, f.loadErr
	}
	return f.inferResult, f.inferErr
}

func writeFixtureModel(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("fake model bytes"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func newTestSupervisor(t *testing.T, srv *httptest.Server, m Measurer) (*Supervisor, *queue.Adapter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	q := queue.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	client := orchestratorclient.New(srv.URL)
	hb := heartbeat.New(client, "worker-1", time.Hour, zap.NewNop())

	sup := New(client, q, engine.NewRegistry(), m, hb, zap.NewNop(),
		"worker-1", model.Descriptor{DeviceName: "test-device"}, []string{"CPU (ONNX)"}, "")
	return sup, q
}

func TestExecuteBenchmarkJobSuccess(t *testing.T) {
	var statusesSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status string `json:"status"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		statusesSeen = append(statusesSeen, req.Status)
	}))
	defer srv.Close()

	measurer := &fakeMeasurer{
		loadResult:  runner.Result{Stats: model.MeasurementStats{Median: 5, Min: 4, Max: 6, Average: 5, First: 4}, PeakRSSMiB: 12, AvgCPUPercent: 30},
		inferResult: runner.Result{Stats: model.MeasurementStats{Median: 2, Min: 1, Max: 3, Average: 2, First: 1}, PeakRSSMiB: 20, AvgCPUPercent: 40},
	}
	sup, _ := newTestSupervisor(t, srv, measurer)

	modelPath := writeFixtureModel(t, "model.onnx")
	job := &model.JobDescriptor{JobID: "j1", ModelURL: modelPath, ComputeUnit: "CPU (ONNX)", NumInferenceRuns: 3}

	result := sup.ExecuteBenchmarkJob(context.Background(), job)

	if result.Status != model.ResultComplete {
		t.Fatalf("Status = %q, want Complete (remark: %s)", result.Status, result.Remark)
	}
	if result.FileName != "model.onnx" {
		t.Fatalf("FileName = %q, want model.onnx", result.FileName)
	}
	if result.LoadMsMedian != 5 || result.InferenceMsMedian != 2 {
		t.Fatalf("unexpected merged metrics: %+v", result)
	}
	if result.PeakLoadRamUsage != 12 || result.PeakInferenceRamUsage != 20 {
		t.Fatalf("unexpected resource usage: %+v", result)
	}
	if len(statusesSeen) != 2 || statusesSeen[0] != model.StatusBusy || statusesSeen[1] != model.StatusActive {
		t.Fatalf("expected busy then active status updates, got %v", statusesSeen)
	}
	if _, err := os.Stat(modelPath); err != nil {
		t.Fatal("a pre-existing local model file must not be deleted")
	}
}

func TestExecuteBenchmarkJobFailsOnDownloadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	sup, _ := newTestSupervisor(t, srv, &fakeMeasurer{})
	job := &model.JobDescriptor{JobID: "j1", ModelURL: "https://127.0.0.1:0/nope.onnx", ComputeUnit: "CPU (ONNX)"}

	result := sup.ExecuteBenchmarkJob(context.Background(), job)
	if result.Status != model.ResultFailed {
		t.Fatalf("Status = %q, want Failed", result.Status)
	}
	if result.Remark == "" {
		t.Fatal("expected a non-empty remark on download failure")
	}
	if result.ComputeUnits != "CPU (ONNX)" || result.DeviceName != "test-device" {
		t.Fatalf("Failed result must still carry device/compute unit: %+v", result)
	}
}

func TestExecuteBenchmarkJobFailsOnUnsupportedExtension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	sup, _ := newTestSupervisor(t, srv, &fakeMeasurer{})
	modelPath := writeFixtureModel(t, "model.bin")
	job := &model.JobDescriptor{JobID: "j1", ModelURL: modelPath, ComputeUnit: "CPU (ONNX)"}

	result := sup.ExecuteBenchmarkJob(context.Background(), job)
	if result.Status != model.ResultFailed {
		t.Fatalf("Status = %q, want Failed for an unregistered extension", result.Status)
	}
}

func TestExecuteBenchmarkJobFailsOnMeasurementCrash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	measurer := &fakeMeasurer{loadErr: context.DeadlineExceeded}
	sup, _ := newTestSupervisor(t, srv, measurer)
	modelPath := writeFixtureModel(t, "model.onnx")
	job := &model.JobDescriptor{JobID: "j1", ModelURL: modelPath, ComputeUnit: "CPU (ONNX)"}

	result := sup.ExecuteBenchmarkJob(context.Background(), job)
	if result.Status != model.ResultFailed {
		t.Fatalf("Status = %q, want Failed when the load measurement errors", result.Status)
	}
}

func TestStartJobLoopClaimsExecutesAndPublishesResult(t *testing.T) {
	modelPath := writeFixtureModel(t, "model.onnx")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"job": model.JobDescriptor{JobID: "j1", ModelURL: modelPath, ComputeUnit: "CPU (ONNX)"},
			})
		default:
		}
	}))
	defer srv.Close()

	measurer := &fakeMeasurer{
		loadResult:  runner.Result{Stats: model.MeasurementStats{Median: 1, Min: 1, Max: 1, Average: 1, First: 1}},
		inferResult: runner.Result{Stats: model.MeasurementStats{Median: 1, Min: 1, Max: 1, Average: 1, First: 1}},
	}
	sup, q := newTestSupervisor(t, srv, measurer)

	if err := q.PushJob(context.Background(), routing.WorkerQueueKey("worker-1"), "j1"); err != nil {
		t.Fatalf("seed queue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		sup.StartJobLoop(ctx)
		close(loopDone)
	}()

	deadline := time.After(2 * time.Second)
	for {
		payload, ok, err := q.PopJob(context.Background(), []string{queue.ResultsKey}, 200*time.Millisecond)
		if err != nil {
			t.Fatalf("poll results: %v", err)
		}
		if ok {
			var result model.Result
			if jsonErr := json.Unmarshal([]byte(payload), &result); jsonErr != nil {
				t.Fatalf("decode published result: %v", jsonErr)
			}
			if result.Status != model.ResultComplete {
				t.Fatalf("published result status = %q, want Complete", result.Status)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a published result")
		default:
		}
	}

	cancel()
	select {
	case <-loopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("StartJobLoop did not exit promptly after cancellation")
	}
}

func TestStartJobLoopDropsUnknownJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	sup, q := newTestSupervisor(t, srv, &fakeMeasurer{})
	if err := q.PushJob(context.Background(), routing.WorkerQueueKey("worker-1"), "j-missing"); err != nil {
		t.Fatalf("seed queue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	sup.StartJobLoop(ctx)

	if _, ok, _ := q.PopJob(context.Background(), []string{queue.ResultsKey}, 10*time.Millisecond); ok {
		t.Fatal("expected no result to be published for an unknown job id")
	}
}

func TestStartJobLoopReturnsImmediatelyWhenNotRegistered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	q := queue.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	client := orchestratorclient.New(srv.URL)
	hb := heartbeat.New(client, "", time.Hour, zap.NewNop())
	sup := New(client, q, engine.NewRegistry(), &fakeMeasurer{}, hb, zap.NewNop(),
		"", model.Descriptor{}, nil, "")

	done := make(chan struct{})
	go func() {
		sup.StartJobLoop(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StartJobLoop should return immediately for an unregistered worker")
	}
}
