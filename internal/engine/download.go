package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// maxModelBytes bounds how much of a model download is kept in flight;
// mirrors the teacher's LimitedWriter capping a spawned process's stdout,
// retargeted here from process output to an HTTP response body.
const maxModelBytes = 8 << 30 // 8 GiB

// DownloadModel resolves modelURL to a local file path: if it already
// names an existing file, it is returned unchanged and downloaded is
// false — the caller does not own that file and must not delete it;
// otherwise it is fetched into dir (or os.TempDir() if dir is empty)
// under the URL's basename, falling back to "model.onnx" if the URL has
// none, and downloaded is true. http(s) and file URLs are both supported,
// mirroring model_loader.py's use of urllib.request.urlretrieve. Any
// partial file left by a failed fetch is removed. The returned path is
// guaranteed to exist and be non-empty on a nil error.
func DownloadModel(ctx context.Context, modelURL, dir string) (path string, downloaded bool, err error) {
	if info, statErr := os.Stat(modelURL); statErr == nil && !info.IsDir() {
		if info.Size() == 0 {
			return "", false, fmt.Errorf("engine: model file %q is empty", modelURL)
		}
		return modelURL, false, nil
	}

	if dir == "" {
		dir = os.TempDir()
	}

	filename := "model.onnx"
	if parsed, parseErr := url.Parse(modelURL); parseErr == nil {
		if base := filepath.Base(parsed.Path); base != "" && base != "." && base != "/" {
			filename = base
		}
	}
	destPath := filepath.Join(dir, filename)

	if err := fetch(ctx, modelURL, destPath); err != nil {
		os.Remove(destPath)
		return "", false, err
	}

	info, statErr := os.Stat(destPath)
	if statErr != nil {
		return "", false, fmt.Errorf("engine: downloaded model vanished: %w", statErr)
	}
	if info.Size() == 0 {
		os.Remove(destPath)
		return "", false, fmt.Errorf("engine: downloaded model %q is empty", modelURL)
	}
	return destPath, true, nil
}

// fetchClient handles http(s) and file URLs the way urllib.request.urlretrieve
// does in model_loader.py — a file:// URL is read straight off disk rather
// than round-tripped through a TCP transport.
var fetchClient = &http.Client{Transport: newFetchTransport()}

func newFetchTransport() http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
	return t
}

func fetch(ctx context.Context, modelURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelURL, nil)
	if err != nil {
		return fmt.Errorf("engine: build request: %w", err)
	}

	resp, err := fetchClient.Do(req)
	if err != nil {
		return fmt.Errorf("engine: download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine: download model: unexpected status %s", resp.Status)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("engine: create destination file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, io.LimitReader(resp.Body, maxModelBytes)); err != nil {
		return fmt.Errorf("engine: write downloaded model: %w", err)
	}
	return nil
}
