package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestDownloadModelReturnsExistingLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "existing.onnx")
	if err := os.WriteFile(path, []byte("fake model bytes"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, downloaded, err := DownloadModel(context.Background(), path, dir)
	if err != nil {
		t.Fatalf("DownloadModel: %v", err)
	}
	if got != path {
		t.Fatalf("DownloadModel = %q, want %q (existing file returned unchanged)", got, path)
	}
	if downloaded {
		t.Fatal("expected downloaded=false for a pre-existing local file")
	}
}

func TestDownloadModelFetchesURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake model bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	got, downloaded, err := DownloadModel(context.Background(), srv.URL+"/weights.onnx", dir)
	if err != nil {
		t.Fatalf("DownloadModel: %v", err)
	}
	if !downloaded {
		t.Fatal("expected downloaded=true for a fetched URL")
	}
	info, err := os.Stat(got)
	if err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("downloaded file must be non-empty")
	}
	if filepath.Base(got) != "weights.onnx" {
		t.Fatalf("expected basename weights.onnx, got %q", got)
	}
}

func TestDownloadModelRemovesPartialFileOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, _, err := DownloadModel(context.Background(), srv.URL+"/weights.onnx", dir)
	if err == nil {
		t.Fatal("expected an error on non-200 response")
	}

	if _, statErr := os.Stat(filepath.Join(dir, "weights.onnx")); !os.IsNotExist(statErr) {
		t.Fatal("expected no partial file to remain after a failed download")
	}
}

func TestDownloadModelFetchesFileURL(t *testing.T) {
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "m.onnx")
	if err := os.WriteFile(srcPath, []byte("fake model bytes"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	destDir := t.TempDir()
	got, downloaded, err := DownloadModel(context.Background(), "file://"+srcPath, destDir)
	if err != nil {
		t.Fatalf("DownloadModel: %v", err)
	}
	if !downloaded {
		t.Fatal("expected downloaded=true for a file:// URL fetched into destDir")
	}
	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}
	if string(data) != "fake model bytes" {
		t.Fatalf("downloaded content = %q, want %q", data, "fake model bytes")
	}
}

func TestDownloadModelDefaultsFilenameWhenURLHasNoBasename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake model bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	got, _, err := DownloadModel(context.Background(), srv.URL+"/", dir)
	if err != nil {
		t.Fatalf("DownloadModel: %v", err)
	}
	if filepath.Base(got) != "model.onnx" {
		t.Fatalf("expected default basename model.onnx, got %q", filepath.Base(got))
	}
}
