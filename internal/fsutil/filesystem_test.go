package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"testing"
)

func exercise(t *testing.T, fsys FileSystem, root string) {
	t.Helper()
	dir := filepath.Join(root, "report", "units")
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if !fsys.Exists(dir) {
		t.Fatalf("Exists(%q) = false after MkdirAll", dir)
	}

	name := filepath.Join(dir, "scores.csv")
	w, err := fsys.Create(name)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := io.WriteString(w, "unit_id,noise_overlap\n1,0.02\n"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := fsys.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "unit_id,noise_overlap\n1,0.02\n" {
		t.Errorf("ReadFile = %q", data)
	}

	r, err := fsys.Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil || string(got) != string(data) {
		t.Errorf("Open contents = %q, %v", got, err)
	}

	if _, err := fsys.ReadFile(filepath.Join(dir, "missing")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile(missing) error = %v, want ErrNotExist", err)
	}
	if fsys.Exists(filepath.Join(dir, "missing")) {
		t.Error("Exists(missing) = true")
	}
}

func TestOSFileSystem(t *testing.T) {
	exercise(t, OSFileSystem{}, t.TempDir())
}

func TestMemoryFileSystem(t *testing.T) {
	m := NewMemoryFileSystem()
	exercise(t, m, "/tmp/run")

	files := m.Files("/tmp/run/report")
	if len(files) != 1 || filepath.Base(files[0]) != "scores.csv" {
		t.Errorf("Files = %v", files)
	}
}

func TestMemoryFileSystem_CreateNeedsParent(t *testing.T) {
	m := NewMemoryFileSystem()
	if _, err := m.Create("/nowhere/file.png"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Create without parent error = %v, want ErrNotExist", err)
	}
}

func TestMemoryFileSystem_VisibleOnClose(t *testing.T) {
	m := NewMemoryFileSystem()
	w, err := m.Create("plot.png")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, _ = w.Write([]byte("png"))
	if m.Exists("plot.png") {
		t.Error("file visible before Close")
	}
	_ = w.Close()
	if !m.Exists("plot.png") {
		t.Error("file missing after Close")
	}
}
