package memory

import (
	"context"
	"io"
	"strings"
	"testing"

	"geuebt/internal/blob/core"
)

func TestGetReturnsIndependentCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Put(ctx, "k", strings.NewReader("abc"), core.PutOptions{Metadata: map[string]string{"a": "1"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, rc, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	info.Metadata["a"] = "changed"
	data, _ := io.ReadAll(rc)
	if string(data) != "abc" {
		t.Fatalf("unexpected data %q", data)
	}
	again, rc2, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	_ = rc2.Close()
	if again.Metadata["a"] != "1" {
		t.Fatalf("stored metadata mutated through returned info")
	}
}

func TestMemoryRejectsEmptyKey(t *testing.T) {
	s := New()
	if _, err := s.Put(context.Background(), "", strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}
}
