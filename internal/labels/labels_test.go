package labels

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPresets(t *testing.T) {
	full, err := Preset(PresetGTSRB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if full.Len() != 43 {
		t.Fatalf("expected 43 labels, got %d", full.Len())
	}
	placeholder, err := Preset(PresetPlaceholder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if placeholder.Len() != 10 {
		t.Fatalf("expected 10 labels, got %d", placeholder.Len())
	}
	if name, _ := placeholder.Label(9); name != "No passing" {
		t.Fatalf("unexpected label 9: %q", name)
	}
	if name, _ := full.Label(14); name != "Stop" {
		t.Fatalf("unexpected label 14: %q", name)
	}
	if _, err := Preset("imagenet"); err == nil {
		t.Fatal("expected error for unknown preset")
	}
}

func TestLabelOutOfRange(t *testing.T) {
	set, err := New("abc", []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, idx := range []int{-1, 3, 100} {
		if _, err := set.Label(idx); !errors.Is(err, ErrLabelIndexOutOfRange) {
			t.Fatalf("index %d: expected ErrLabelIndexOutOfRange, got %v", idx, err)
		}
	}
}

func TestNewRejectsEmpty(t *testing.T) {
	if _, err := New("none", nil); err == nil {
		t.Fatal("expected error for empty set")
	}
	if _, err := New("blank", []string{"A", ""}); err == nil {
		t.Fatal("expected error for blank label")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signs.yaml")
	content := "name: local-signs\nlabels:\n  - Stop\n  - Yield\n  - Priority road\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	set, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Name() != "local-signs" || set.Len() != 3 {
		t.Fatalf("unexpected set %s with %d labels", set.Name(), set.Len())
	}
	names := set.Names()
	names[0] = "mutated"
	if first, _ := set.Label(0); first != "Stop" {
		t.Fatalf("Names must return a copy, got %q", first)
	}
}
