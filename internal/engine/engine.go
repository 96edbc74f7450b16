// Package engine implements the pluggable inference-engine contract the
// measurement child uses to load a model and run timed inferences against
// it. The registry maps a model file's extension to the constructor for
// the engine that handles it, the same "name/key → spec" shape the
// teacher's executor/registry.go uses for its BCC tool table, generalized
// from a map of tool specs to a map of engine constructors.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Engine is the plug-in contract every inference backend implements.
type Engine interface {
	// Name identifies the engine ("ONNX", "CoreML").
	Name() string
	// Available reports whether this engine's native runtime is present
	// and can be initialised on the current host.
	Available() bool
	// Load loads the model at path, bound to computeUnit's provider
	// preference. Must be called before InputShape/SampleInput/Run.
	Load(ctx context.Context, path, computeUnit string) error
	// InputShape returns the model's first input shape, dynamic
	// dimensions replaced by 1.
	InputShape() ([]int, error)
	// SampleInput builds a sample input suitable for Run, shaped
	// according to InputShape.
	SampleInput() (any, error)
	// Run executes one inference against input and returns its output.
	// The caller times the call; the engine itself does no timing.
	Run(ctx context.Context, input any) (any, error)
	// Close releases any resources held by a loaded model.
	Close() error
}

// Constructor builds a fresh, unloaded Engine instance.
type Constructor func() Engine

// Registry maps a supported file extension to the constructor for the
// engine that handles it.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry builds a Registry with every engine this build supports
// registered, via the package-level registrations each engine's
// constructor file performs through registerEngine.
func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[string]Constructor)}
	for ext, ctor := range defaultConstructors {
		r.constructors[ext] = ctor
	}
	return r
}

// defaultConstructors is populated by each engine implementation's init
// function (onnx.go always; coreml_darwin.go only on darwin builds).
var defaultConstructors = make(map[string]Constructor)

func registerEngine(ext string, ctor Constructor) {
	defaultConstructors[ext] = ctor
}

// Select returns a fresh engine instance for modelPath, picked by file
// extension. It returns an error if no registered engine claims that
// extension.
func (r *Registry) Select(modelPath string) (Engine, error) {
	ext := extensionOf(modelPath)
	ctor, ok := r.constructors[ext]
	if !ok {
		return nil, fmt.Errorf("engine: no inference engine registered for extension %q", ext)
	}
	return ctor(), nil
}

func extensionOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
