package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestComputeBlake3Hash(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("service:\n  name: foreman\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	first, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatalf("ComputeBlake3Hash: %v", err)
	}
	if len(first) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(first))
	}

	second, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatalf("ComputeBlake3Hash: %v", err)
	}
	if first != second {
		t.Fatalf("hash not deterministic: %s vs %s", first, second)
	}

	if err := VerifyFileHash(path, first); err != nil {
		t.Fatalf("VerifyFileHash: %v", err)
	}

	if err := os.WriteFile(path, []byte("service:\n  name: changed\n"), 0o644); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}
	if err := VerifyFileHash(path, first); err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("VerifyFileHash after change = %v, want mismatch", err)
	}
}

func TestComputeBlake3HashMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := ComputeBlake3Hash(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
