package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"geuebt/internal/blob/core"
)

func TestCleanKeyRejectsUnsafeKeys(t *testing.T) {
	for _, key := range []string{"", " ", "/abs", "../escape", "a/../../b", "x.meta"} {
		if _, err := cleanKey(key); err == nil {
			t.Fatalf("expected error for %q", key)
		}
	}
	if k, err := cleanKey("sequences/./a.fasta"); err != nil || k != "sequences/a.fasta" {
		t.Fatalf("unexpected clean result %q %v", k, err)
	}
}

func TestPutWritesSidecar(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	info, err := s.Put(context.Background(), "sequences/x.fasta", strings.NewReader("ACGT"), core.PutOptions{ContentType: "text/x-fasta"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag != "f1f8f4bf413b16ad135722aa4591043e" {
		t.Fatalf("expected md5 etag, got %s", info.ETag)
	}
	if _, err := os.Stat(filepath.Join(root, "sequences", "x.fasta.meta")); err != nil {
		t.Fatalf("expected sidecar: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(root, "sequences"))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".upload-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestCorruptSidecarFailsGet(t *testing.T) {
	root := t.TempDir()
	s, _ := New(root)
	if _, err := s.Put(context.Background(), "k", strings.NewReader("v"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "k.meta"), []byte("{"), 0o600); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if _, _, err := s.Get(context.Background(), "k"); err == nil || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected decode error on corrupt sidecar, got %v", err)
	}
}

func TestDeleteRemovesSidecar(t *testing.T) {
	root := t.TempDir()
	s, _ := New(root)
	if _, err := s.Put(context.Background(), "sequences/a.fasta", strings.NewReader("AC"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	removed, err := s.Delete(context.Background(), "sequences/a.fasta")
	if err != nil || !removed {
		t.Fatalf("expected removal, got %v %v", removed, err)
	}
	if _, err := os.Stat(filepath.Join(root, "sequences", "a.fasta.meta")); !os.IsNotExist(err) {
		t.Fatalf("expected sidecar removed, got %v", err)
	}
	if _, _, err := s.Get(context.Background(), "sequences/a.fasta"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
