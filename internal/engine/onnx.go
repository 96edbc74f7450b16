package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

func init() {
	registerEngine(".onnx", func() Engine { return &ONNXEngine{} })
}

// providerOrder maps a requested compute-unit capability to its preferred
// ONNX Runtime execution provider, CPU always appended as the fallback —
// mirrors onnx_engine.py's _get_providers table exactly.
var providerOrder = map[string][]string{
	"CPU":      {"CPUExecutionProvider"},
	"GPU":      {"CUDAExecutionProvider", "CPUExecutionProvider"},
	"DirectML": {"DmlExecutionProvider", "CPUExecutionProvider"},
	"OpenVINO": {"OpenVINOExecutionProvider", "CPUExecutionProvider"},
}

// ONNXEngine runs inference through ONNX Runtime, across whichever
// execution providers the requested compute unit and this build support.
type ONNXEngine struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	shape   []int
}

func (e *ONNXEngine) Name() string { return "ONNX" }

// Available reports whether the ONNX Runtime shared library this build was
// linked against can be initialized at all.
func (e *ONNXEngine) Available() bool {
	return ort.IsInitialized() || ort.InitializeEnvironment() == nil
}

func (e *ONNXEngine) Load(ctx context.Context, path, computeUnit string) error {
	if !strings.EqualFold(extensionOf(path), ".onnx") {
		return fmt.Errorf("onnx engine: expected .onnx file, got %q", path)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("onnx engine: initialize runtime: %w", err)
		}
	}

	inputShape, outputShape, inputName, outputName, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return fmt.Errorf("onnx engine: inspect model: %w", err)
	}
	shape := normalizeShape(inputShape)
	e.shape = shape

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(toInt64(shape)...))
	if err != nil {
		return fmt.Errorf("onnx engine: allocate input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(toInt64(normalizeShape(outputShape))...))
	if err != nil {
		inputTensor.Destroy()
		return fmt.Errorf("onnx engine: allocate output tensor: %w", err)
	}

	options, err := sessionOptionsFor(providersFor(computeUnit))
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return fmt.Errorf("onnx engine: session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(path,
		[]string{inputName}, []string{outputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return fmt.Errorf("onnx engine: create session: %w", err)
	}

	e.session = session
	e.input = inputTensor
	e.output = outputTensor
	return nil
}

func (e *ONNXEngine) InputShape() ([]int, error) {
	if e.shape == nil {
		return nil, fmt.Errorf("onnx engine: model not loaded")
	}
	return e.shape, nil
}

func (e *ONNXEngine) SampleInput() (any, error) {
	if e.input == nil {
		return nil, fmt.Errorf("onnx engine: model not loaded")
	}
	data := e.input.GetData()
	for i := range data {
		data[i] = rand.Float32()
	}
	return e.input, nil
}

func (e *ONNXEngine) Run(ctx context.Context, input any) (any, error) {
	if e.session == nil {
		return nil, fmt.Errorf("onnx engine: model not loaded")
	}
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx engine: run inference: %w", err)
	}
	return e.output, nil
}

func (e *ONNXEngine) Close() error {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.input != nil {
		e.input.Destroy()
	}
	if e.output != nil {
		e.output.Destroy()
	}
	return nil
}

// providersFor maps a requested compute unit to its ordered provider
// preference list, falling back to CPU-only for anything unrecognized. A
// full capability string such as "GPU (ONNX)" is looked up by its unit
// part ("GPU").
func providersFor(computeUnit string) []string {
	if i := strings.Index(computeUnit, " ("); i >= 0 {
		computeUnit = computeUnit[:i]
	}
	if providers, ok := providerOrder[computeUnit]; ok {
		return providers
	}
	return providerOrder["CPU"]
}

// sessionOptionsFor intersects the requested provider preference with the
// providers this ONNX Runtime build actually advertises, preserving order,
// and appends each intersected provider to a fresh SessionOptions.
func sessionOptionsFor(preferred []string) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}

	available := availableProviders()
	for _, p := range preferred {
		if !contains(available, p) {
			continue
		}
		switch p {
		case "CUDAExecutionProvider":
			_ = options.AppendExecutionProviderCUDA(ort.NewCUDAProviderOptions())
		case "DmlExecutionProvider":
			_ = options.AppendExecutionProviderDirectML(0)
		case "OpenVINOExecutionProvider":
			_ = options.AppendExecutionProviderOpenVINO(ort.OpenVINOProviderOptions{})
		}
	}
	return options, nil
}

func availableProviders() []string {
	return AvailableProviders()
}

// AvailableProviders reports the ONNX Runtime execution providers this
// build actually has linked in, for capability detection at registration
// time as well as provider selection at load time — mirrors
// device_info.py's get_compute_units calling the same
// ort.get_available_providers() it uses to pick session providers.
func AvailableProviders() []string {
	providers, err := ort.GetAvailableProviders()
	if err != nil {
		return []string{"CPUExecutionProvider"}
	}
	return providers
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

// normalizeShape replaces dynamic/non-positive dimensions with 1, matching
// onnx_engine.py's get_input_shape behavior.
func normalizeShape(shape []int64) []int {
	out := make([]int, len(shape))
	for i, d := range shape {
		if d <= 0 {
			out[i] = 1
			continue
		}
		out[i] = int(d)
	}
	return out
}

func toInt64(shape []int) []int64 {
	out := make([]int64, len(shape))
	for i, d := range shape {
		out[i] = int64(d)
	}
	return out
}
