// Package agent wires the other eight components into the worker's
// long-lived job loop. Modeled on the teacher's orchestrator.Orchestrator,
// but where the teacher fans a fixed set of collectors out in parallel and
// waits on a sync.WaitGroup, the Supervisor runs three independent
// long-lived tasks — the claim loop, the heartbeat ticker, and (transiently,
// per measurement) the runner's monitor goroutine — since spec §5 is
// single-job-at-a-time, not parallel-collection.
package agent

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/benchworker/agent/internal/engine"
	"github.com/benchworker/agent/internal/heartbeat"
	"github.com/benchworker/agent/internal/model"
	"github.com/benchworker/agent/internal/orchestratorclient"
	"github.com/benchworker/agent/internal/queue"
	"github.com/benchworker/agent/internal/routing"
	"github.com/benchworker/agent/internal/runner"
)

// Measurer runs one measurement child invocation. Implemented by
// *runner.Runner in production; stubbed in tests so ExecuteBenchmarkJob
// can be exercised without spawning a real subprocess.
type Measurer interface {
	Run(ctx context.Context, args runner.Args) (runner.Result, error)
}

// Supervisor coordinates one worker's registration identity against the
// job loop: claiming jobs, running their two measurement phases, and
// publishing results, while a heartbeat ticks independently throughout.
type Supervisor struct {
	client    *orchestratorclient.Client
	queue     *queue.Adapter
	engines   *engine.Registry
	runner    Measurer
	heartbeat *heartbeat.Ticker
	logger    *zap.Logger

	workerID     string
	device       model.Descriptor
	capabilities []string
	downloadDir  string
}

// New returns a Supervisor for an already-registered worker. workerID and
// capabilities come from registration (see cmd/worker's enroll/start
// flow); downloadDir is where models are fetched to, defaulted to the
// system temp dir by engine.DownloadModel when passed as "".
func New(
	client *orchestratorclient.Client,
	q *queue.Adapter,
	engines *engine.Registry,
	r Measurer,
	hb *heartbeat.Ticker,
	logger *zap.Logger,
	workerID string,
	device model.Descriptor,
	capabilities []string,
	downloadDir string,
) *Supervisor {
	return &Supervisor{
		client:       client,
		queue:        q,
		engines:      engines,
		runner:       r,
		heartbeat:    hb,
		logger:       logger,
		workerID:     workerID,
		device:       device,
		capabilities: capabilities,
		downloadDir:  downloadDir,
	}
}

// ExecuteBenchmarkJob runs spec §4.I steps 1-7 for one job: status busy,
// download, load-measurement, infer-measurement, best-effort cleanup,
// merge into a Complete or Failed result, status active. Exactly one
// result is always returned, regardless of which step fails.
func (s *Supervisor) ExecuteBenchmarkJob(ctx context.Context, job *model.JobDescriptor) model.Result {
	result := model.Result{
		Descriptor:   s.device,
		JobID:        job.JobID,
		CampaignID:   job.CampaignID,
		WorkerID:     s.workerID,
		ComputeUnits: job.ComputeUnit,
	}

	if err := s.client.SetStatus(ctx, s.workerID, model.StatusBusy); err != nil {
		s.logger.Warn("set status busy failed", zap.Error(err))
	}

	result = s.runJob(ctx, job, result)

	if err := s.client.SetStatus(ctx, s.workerID, model.StatusActive); err != nil {
		s.logger.Warn("set status active failed", zap.Error(err))
	}

	return result
}

// runJob performs the download/measure/cleanup sequence. Any error from
// download, engine selection, or either measurement produces a Failed
// result that still carries the device descriptor and compute unit;
// nothing here is allowed to panic or abort the caller's loop.
func (s *Supervisor) runJob(ctx context.Context, job *model.JobDescriptor, result model.Result) model.Result {
	modelPath, downloaded, err := engine.DownloadModel(ctx, job.ModelURL, s.downloadDir)
	if err != nil {
		return failed(result, err)
	}
	if downloaded {
		defer func() {
			if err := os.Remove(modelPath); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("cleanup: could not delete downloaded model",
					zap.String("path", modelPath), zap.Error(err))
			}
		}()
	}

	if _, err := s.engines.Select(modelPath); err != nil {
		return failed(result, err)
	}

	if info, err := os.Stat(modelPath); err == nil {
		result.FileName = filepath.Base(modelPath)
		result.FileSize = info.Size()
	}

	loadResult, err := s.runner.Run(ctx, runner.Args{
		Task:        "load",
		ModelPath:   modelPath,
		ComputeUnit: job.ComputeUnit,
	})
	if err != nil {
		return failed(result, err)
	}
	result.SetLoadMetrics(loadResult.Stats)
	result.PeakLoadRamUsage = loadResult.PeakRSSMiB
	result.AverageLoadCpuPercent = loadResult.AvgCPUPercent

	numRuns := job.NumInferenceRuns
	if numRuns <= 0 {
		numRuns = model.DefaultNumInferenceRuns
	}

	inferResult, err := s.runner.Run(ctx, runner.Args{
		Task:        "infer",
		ModelPath:   modelPath,
		ComputeUnit: job.ComputeUnit,
		NumRuns:     numRuns,
	})
	if err != nil {
		return failed(result, err)
	}
	result.SetInferenceMetrics(inferResult.Stats)
	result.PeakInferenceRamUsage = inferResult.PeakRSSMiB
	result.AverageInferenceCpuPercent = inferResult.AvgCPUPercent

	result.Status = model.ResultComplete
	return result
}

func failed(result model.Result, err error) model.Result {
	result.Status = model.ResultFailed
	result.Remark = err.Error()
	return result
}

// StartJobLoop blocks claiming and executing jobs until ctx is cancelled.
// Preconditions — a registered worker id and a reachable queue — are
// checked once up front; either failing is logged and StartJobLoop
// returns without starting anything, per spec §4.I.
func (s *Supervisor) StartJobLoop(ctx context.Context) {
	if s.workerID == "" {
		s.logger.Error("job loop: worker is not registered")
		return
	}
	if !s.queue.IsConnected(ctx) {
		s.logger.Error("job loop: queue is not connected")
		return
	}

	s.heartbeat.Start()
	defer s.heartbeat.Stop()

	queueKeys := routing.QueuesForWorker(s.workerID, s.capabilities)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, ok, err := s.queue.PopJob(ctx, queueKeys, 0)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("job loop: pop failed", zap.Error(err))
			return
		}
		if !ok {
			continue
		}

		job, known := s.client.JobDetails(ctx, jobID)
		if !known {
			s.logger.Warn("job loop: dropping unknown job id", zap.String("job_id", jobID))
			continue
		}

		result := s.ExecuteBenchmarkJob(ctx, job)
		if pushed, err := s.queue.PushResult(ctx, result); err != nil || !pushed {
			s.logger.Error("job loop: failed to publish result",
				zap.String("job_id", jobID), zap.Error(err))
		}
	}
}
