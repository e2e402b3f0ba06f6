package checkpoint

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/pkg/errors"
)

func TestNamesSortNumerically(t *testing.T) {
	iters := []int{0, 7, 10, 99, 100, 999, 1000, 99999, 100000, 999999, 1000000, 123456789}
	var names []string
	for _, it := range iters {
		names = append(names, Name(it))
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	for i := range names {
		if names[i] != sorted[i] {
			t.Fatalf("lexical order differs at %d: %s vs %s", i, names[i], sorted[i])
		}
		if it, ok := Parse(names[i]); !ok || it != iters[i] {
			t.Errorf("parse %s gave %d %v", names[i], it, ok)
		}
	}
	for _, bad := range []string{"iter--ckpt.json.z", "iter-12a-ckpt.json.z", "iter-1-ckpt.pth", "lit_model.json.z"} {
		if _, ok := Parse(bad); ok {
			t.Errorf("parsed %s", bad)
		}
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	if _, err := Latest(dir); !errors.Is(err, ErrNoCheckpoint) {
		t.Fatalf("empty dir gave %v", err)
	}
	for _, it := range []int{5, 120, 40} {
		if _, err := Save(dir, it, map[string]int{"iter": it}); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644)
	e, err := Latest(dir)
	if err != nil || e.Iter != 120 {
		t.Fatalf("latest %v %v", e, err)
	}
	var got map[string]int
	if err := Load(e.Path, &got); err != nil || got["iter"] != 120 {
		t.Errorf("load %v %v", got, err)
	}

	os.WriteFile(filepath.Join(dir, "iter-120-ckpt.json.z"), nil, 0644)
	if _, err := Latest(dir); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate iteration gave %v", err)
	}
}

func TestSaveNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	path, err := Save(dir, 3, []int{1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Save(dir, 3, []int{2}); !errors.Is(err, ErrExists) {
		t.Fatalf("second save gave %v", err)
	}
	var got []int
	if err := Load(path, &got); err != nil || got[0] != 1 {
		t.Errorf("checkpoint changed: %v %v", got, err)
	}
	files, _ := os.ReadDir(dir)
	if len(files) != 1 {
		t.Errorf("left %d files behind", len(files))
	}
}
