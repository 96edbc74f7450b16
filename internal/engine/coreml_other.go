//go:build !darwin

package engine

import (
	"context"
	"fmt"
)

// CoreMLEngine is unavailable on non-Darwin builds; CoreML.framework does
// not exist outside macOS. This stub registers no file extensions, so the
// registry never selects it; Available always reports false, and every
// other method returns an error rather than panicking if called anyway.
type CoreMLEngine struct{}

func (e *CoreMLEngine) Name() string { return "CoreML" }

func (e *CoreMLEngine) Available() bool { return false }

func (e *CoreMLEngine) Load(ctx context.Context, path, computeUnit string) error {
	return fmt.Errorf("coreml engine: not supported on this platform")
}

func (e *CoreMLEngine) InputShape() ([]int, error) {
	return nil, fmt.Errorf("coreml engine: not supported on this platform")
}

func (e *CoreMLEngine) SampleInput() (any, error) {
	return nil, fmt.Errorf("coreml engine: not supported on this platform")
}

func (e *CoreMLEngine) Run(ctx context.Context, input any) (any, error) {
	return nil, fmt.Errorf("coreml engine: not supported on this platform")
}

func (e *CoreMLEngine) Close() error { return nil }
