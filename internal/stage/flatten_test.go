package stage

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFlattenMovesNestedFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"x/y/f.txt":      "deep",
		"x/f.txt":        "shallow",
		"top.txt":        "top",
		"trash/t.txt":    "kept",
		"z/fallos/q.bin": "kept too",
	})
	env, _, _ := newEnv(root)

	res := Flatten{}.Run(context.Background(), env)
	if res.Outcome != Succeeded {
		t.Fatalf("outcome %s: %v", res.Outcome, res.Err)
	}

	// Deepest first, so the deeper f.txt claims the plain name.
	want := []string{"f.txt", "f_1.txt", "top.txt", "trash/t.txt", "z/fallos/q.bin"}
	if got := listFiles(t, root); !reflect.DeepEqual(got, want) {
		t.Errorf("tree:\n got %v\nwant %v", got, want)
	}
	if readFile(t, filepath.Join(root, "f.txt")) != "deep" {
		t.Error("f.txt should hold the deepest file")
	}
	if exists(filepath.Join(root, "x")) {
		t.Error("empty directory x not removed")
	}
	if !exists(filepath.Join(root, "z")) {
		t.Error("z holds an excluded folder and must stay")
	}
	if res.Counts["moved"] != 2 || res.Counts["dirs_removed"] != 2 {
		t.Errorf("counts: %v", res.Counts)
	}
}

func TestFlattenSingleFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"x/y/f.txt": "f"})
	env, _, _ := newEnv(root)

	if res := (Flatten{}).Run(context.Background(), env); res.Outcome != Succeeded {
		t.Fatal(res.Err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "f.txt" {
		t.Errorf("root entries: %v", entries)
	}
}
