package cdfio

import (
	"os"
	"path/filepath"
	"testing"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sizes.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeYAML(t, `points:
  - value: 500
    prob: 0.1
  - value: 1500
    prob: 0.4
  - value: 10000
    prob: 1.0
`)
	tbl, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tbl.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(tbl.Points))
	}
	if tbl.Points[2].Value != 10000 || tbl.Points[2].Prob != 1.0 {
		t.Errorf("unexpected final point: %+v", tbl.Points[2])
	}
}

func TestLoad_RejectsNonMonotonicProb(t *testing.T) {
	path := writeYAML(t, `points:
  - value: 500
    prob: 0.5
  - value: 1500
    prob: 0.3
  - value: 10000
    prob: 1.0
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for non-monotonic prob")
	}
}

func TestLoad_RejectsMissingTerminalProb(t *testing.T) {
	path := writeYAML(t, `points:
  - value: 500
    prob: 0.5
  - value: 1500
    prob: 0.9
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when final point isn't prob 1.0")
	}
}

func TestLoad_RejectsEmpty(t *testing.T) {
	path := writeYAML(t, `points: []`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty table")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
