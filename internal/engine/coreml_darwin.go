//go:build darwin

package engine

/*
#cgo darwin LDFLAGS: -framework CoreML -framework Foundation
#include <stdlib.h>
#include "coreml_bridge.h"
*/
import "C"

import (
	"context"
	"fmt"
	"unsafe"
)

func init() {
	registerEngine(".mlmodel", func() Engine { return &CoreMLEngine{} })
	registerEngine(".mlmodelc", func() Engine { return &CoreMLEngine{} })
	registerEngine(".mlpackage", func() Engine { return &CoreMLEngine{} })
}

// CoreMLEngine runs inference through the native CoreML framework via a
// small cgo bridge. Available reports whether the MLModel class can be
// found at run time; Load performs the calibration check described there.
type CoreMLEngine struct {
	handle      C.coreml_model_t
	inputIsImage bool
	shape       []int
}

func (e *CoreMLEngine) Name() string { return "CoreML" }

func (e *CoreMLEngine) Available() bool {
	return C.coreml_runtime_available() != 0
}

func (e *CoreMLEngine) Load(ctx context.Context, path, computeUnit string) error {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	handle := C.coreml_load_model(cPath)
	if handle == nil {
		return fmt.Errorf("coreml engine: failed to load model at %q", path)
	}
	e.handle = handle

	var w, h, c C.int
	isImage := C.coreml_describe_input(handle, &w, &h, &c)
	e.inputIsImage = isImage != 0
	if e.inputIsImage {
		width, height := int(w), int(h)
		if width <= 0 {
			width = 224
		}
		if height <= 0 {
			height = 224
		}
		e.shape = []int{1, height, width, 3}
	} else {
		n := int(C.coreml_input_rank(handle))
		shape := make([]int, n)
		for i := 0; i < n; i++ {
			d := int(C.coreml_input_dim(handle, C.int(i)))
			if d <= 0 {
				d = 1
			}
			shape[i] = d
		}
		e.shape = shape
	}

	// coreml_calibrate confirms that the handle holds a loaded MLModel; it
	// does not run a prediction.
	if C.coreml_calibrate(handle) == 0 {
		C.coreml_release_model(handle)
		e.handle = nil
		return fmt.Errorf("coreml engine: calibration prediction failed; runtime not live")
	}
	return nil
}

func (e *CoreMLEngine) InputShape() ([]int, error) {
	if e.shape == nil {
		return nil, fmt.Errorf("coreml engine: model not loaded")
	}
	return e.shape, nil
}

func (e *CoreMLEngine) SampleInput() (any, error) {
	if e.shape == nil {
		return nil, fmt.Errorf("coreml engine: model not loaded")
	}
	n := 1
	for _, d := range e.shape {
		n *= d
	}
	buf := make([]float32, n)
	return buf, nil
}

func (e *CoreMLEngine) Run(ctx context.Context, input any) (any, error) {
	if e.handle == nil {
		return nil, fmt.Errorf("coreml engine: model not loaded")
	}
	buf, ok := input.([]float32)
	if !ok {
		return nil, fmt.Errorf("coreml engine: unexpected input type %T", input)
	}
	out := make([]float32, len(buf))
	ret := C.coreml_predict(e.handle, (*C.float)(unsafe.Pointer(&buf[0])), C.int(len(buf)), (*C.float)(unsafe.Pointer(&out[0])), C.int(len(out)))
	if ret == 0 {
		return nil, fmt.Errorf("coreml engine: prediction failed")
	}
	return out, nil
}

func (e *CoreMLEngine) Close() error {
	if e.handle != nil {
		C.coreml_release_model(e.handle)
		e.handle = nil
	}
	return nil
}
