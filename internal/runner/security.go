package runner

import (
	"os"
	"strings"
)

// SanitizeEnv builds a minimal, safe environment for the measurement
// child: only the variables a benchmark subprocess actually needs, so an
// attacker-controlled environment variable on the worker host cannot leak
// into or influence the child. Reused near-verbatim from the teacher's
// SecurityChecker.SanitizeEnv, which sanitizes the environment of a
// spawned BCC tool for the same reason.
func SanitizeEnv() []string {
	safeVars := map[string]bool{
		"PATH":   true,
		"HOME":   true,
		"LANG":   true,
		"LC_ALL": true,
		"TERM":   true,
		"TMPDIR": true,
		// ONNX Runtime's shared library location, without which the
		// measurement child can fail to locate libonnxruntime on hosts
		// that don't install it to a default linker path.
		"LD_LIBRARY_PATH":   true,
		"DYLD_LIBRARY_PATH": true,
		"ORT_DYLIB_PATH":    true,
	}

	var env []string
	for _, e := range os.Environ() {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 && safeVars[parts[0]] {
			env = append(env, e)
		}
	}

	hasPath := false
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			hasPath = true
			break
		}
	}
	if !hasPath {
		env = append(env, "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin")
	}

	return env
}
