package stage

import (
	"context"
	"reflect"
	"testing"
)

func TestCleanupRemovesProgramFolders(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"trash/a.jpg":        "a",
		"sin_edit/sub/b.jpg": "b",
		"keep/c.txt":         "c",
		"d.txt":              "d",
	})
	env, _, _ := newEnv(root)

	res := Cleanup{}.Run(context.Background(), env)
	if res.Outcome != Succeeded {
		t.Fatalf("outcome %s: %v", res.Outcome, res.Err)
	}
	if res.Counts["folders_removed"] != 2 {
		t.Errorf("folders_removed: got %d, want 2", res.Counts["folders_removed"])
	}
	if got, want := listFiles(t, root), []string{"d.txt", "keep/c.txt"}; !reflect.DeepEqual(got, want) {
		t.Errorf("tree: got %v, want %v", got, want)
	}

	rec := env.Progress.(*recorder)
	if len(rec.events) == 0 || rec.events[len(rec.events)-1] != [2]int{3, 3} {
		t.Errorf("progress events: %v", rec.events)
	}
}

func TestCleanupNothingToDo(t *testing.T) {
	env, _, _ := newEnv(t.TempDir())
	res := Cleanup{}.Run(context.Background(), env)
	if res.Outcome != Succeeded || res.Counts["folders_removed"] != 0 {
		t.Errorf("got %+v", res)
	}
}
