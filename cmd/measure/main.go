// measure is the isolated child process the worker agent spawns once per
// phase to load a model or run timed inferences against it. It speaks a
// one-shot protocol: a single JSON object on stdout on success, a single
// JSON error object on stderr and a non-zero exit on failure. Kept as a
// separate process (rather than a function call inside the supervisor) so
// a crashing inference engine can never take the supervisor down with
// it — the parent just sees a failed exec.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/benchworker/agent/internal/engine"
	"github.com/benchworker/agent/internal/model"
)

func main() {
	var task, modelPath, computeUnit string
	var numRuns int
	flag.StringVar(&task, "task", "", `measurement phase: "load" or "infer"`)
	flag.StringVar(&modelPath, "model-path", "", "path to the model file")
	flag.StringVar(&computeUnit, "compute-unit", "", "compute unit/provider preference")
	flag.IntVar(&numRuns, "num-runs", model.DefaultNumInferenceRuns, "number of inference runs (infer only)")
	flag.Parse()

	if err := run(task, modelPath, computeUnit, numRuns); err != nil {
		fail(task, err)
	}
}

func run(task, modelPath, computeUnit string, numRuns int) error {
	if task != "load" && task != "infer" {
		return fmt.Errorf("unknown task %q", task)
	}
	if modelPath == "" {
		return fmt.Errorf("--model-path is required")
	}

	reg := engine.NewRegistry()
	eng, err := reg.Select(modelPath)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()

	switch task {
	case "load":
		return runLoad(ctx, eng, modelPath, computeUnit)
	default:
		return runInfer(ctx, eng, modelPath, computeUnit, numRuns)
	}
}

// runLoad times a single Load call. Every stat collapses to that one
// duration — mirroring benchmark.py's benchmark_load, which has only one
// sample to reduce.
func runLoad(ctx context.Context, eng engine.Engine, modelPath, computeUnit string) error {
	start := time.Now()
	if err := eng.Load(ctx, modelPath, computeUnit); err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	elapsedMs := float64(time.Since(start)) / float64(time.Millisecond)

	stats := model.MeasurementStats{
		Median:  elapsedMs,
		Min:     elapsedMs,
		Max:     elapsedMs,
		Average: elapsedMs,
		StdDev:  0,
		First:   elapsedMs,
	}
	return writeStats("load", stats)
}

// runInfer loads the model, builds one sample input, then times numRuns
// back-to-back inference calls against it, reducing the per-run durations
// with model.ComputeStats.
func runInfer(ctx context.Context, eng engine.Engine, modelPath, computeUnit string, numRuns int) error {
	if numRuns <= 0 {
		numRuns = model.DefaultNumInferenceRuns
	}

	if err := eng.Load(ctx, modelPath, computeUnit); err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	input, err := eng.SampleInput()
	if err != nil {
		return fmt.Errorf("build sample input: %w", err)
	}

	samples := make([]float64, 0, numRuns)
	for i := 0; i < numRuns; i++ {
		start := time.Now()
		if _, err := eng.Run(ctx, input); err != nil {
			return fmt.Errorf("run inference %d/%d: %w", i+1, numRuns, err)
		}
		samples = append(samples, float64(time.Since(start))/float64(time.Millisecond))
	}

	stats := model.ComputeStats(samples)
	return writeStats("infer", stats)
}

func writeStats(task string, stats model.MeasurementStats) error {
	raw, err := model.MarshalChildOutput(task, stats)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = os.Stdout.Write(raw)
	return err
}

// fail writes the child's stderr error contract and exits non-zero. The
// parent runner treats any non-zero exit as a failure and surfaces
// whatever text it captured on stderr.
func fail(task string, err error) {
	payload := model.ChildErrorOutput{Error: err.Error(), Task: task}
	if raw, marshalErr := json.Marshal(payload); marshalErr == nil {
		fmt.Fprintln(os.Stderr, string(raw))
	} else {
		fmt.Fprintln(os.Stderr, err.Error())
	}
	os.Exit(1)
}
