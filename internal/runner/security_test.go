package runner

import (
	"strings"
	"testing"
)

func TestSanitizeEnvKeepsDynamicLoaderVars(t *testing.T) {
	t.Setenv("LD_LIBRARY_PATH", "/opt/onnxruntime/lib")
	t.Setenv("ORT_DYLIB_PATH", "/opt/onnxruntime/lib/libonnxruntime.so")

	env := SanitizeEnv()

	var hasLDLibraryPath, hasORTDylibPath bool
	for _, e := range env {
		if strings.HasPrefix(e, "LD_LIBRARY_PATH=") {
			hasLDLibraryPath = true
		}
		if strings.HasPrefix(e, "ORT_DYLIB_PATH=") {
			hasORTDylibPath = true
		}
	}
	if !hasLDLibraryPath {
		t.Error("sanitized env dropped LD_LIBRARY_PATH, needed to locate the ONNX Runtime shared library")
	}
	if !hasORTDylibPath {
		t.Error("sanitized env dropped ORT_DYLIB_PATH")
	}
}

func TestSanitizeEnvKeepsPath(t *testing.T) {
	env := SanitizeEnv()

	hasPath := false
	for _, e := range env {
		if len(e) >= 5 && e[:5] == "PATH=" {
			hasPath = true
		}
		for _, prefix := range []string{"AWS_", "GITHUB_", "SSH_", "GPG_", "SECRET"} {
			if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
				t.Errorf("leaked sensitive env var: %s", e)
			}
		}
	}
	if !hasPath {
		t.Error("sanitized env missing PATH")
	}
}
