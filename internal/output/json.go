// Package output handles JSON serialization for the one-shot CLI
// commands; `worker info --json` is its only caller.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// WriteJSON serializes v as indented JSON. If path is "-" or empty, it
// writes to stdout. Used by `worker info --json` to print a device
// descriptor; kept generic (no model import) since nothing else in this
// repo produces a single serialized report the way the teacher's
// model.Report did.
func WriteJSON(v any, path string) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}
