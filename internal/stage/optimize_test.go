package stage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/eargollo/orgest/internal/mediatool"
)

func TestOptimizeBacksUpAndReencodes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"photo.jpg":      "pixels",
		"clip.avi":       "frames",
		"movie.mp4":      "mp4 frames",
		"corrupt.png":    "bad",
		"corrupt.mkv":    "bad video",
		"notes.txt":      "not media",
		"temp_stale.mp4": "leftover",
		"trash/skip.jpg": "excluded",
	})
	env, _, _ := newEnv(root)

	res := Optimize{}.Run(context.Background(), env)
	if res.Outcome != Succeeded {
		t.Fatalf("outcome %s: %v", res.Outcome, res.Err)
	}

	want := []string{
		"clip.mp4",
		"fallos/corrupt.mkv",
		"fallos/corrupt.png",
		"movie.mp4",
		"notes.txt",
		"photo.jpg",
		"sin_edit/clip.avi",
		"sin_edit/corrupt.mkv",
		"sin_edit/corrupt.png",
		"sin_edit/movie.mp4",
		"sin_edit/photo.jpg",
		"temp_stale.mp4",
		"trash/skip.jpg",
	}
	if got := listFiles(t, root); !reflect.DeepEqual(got, want) {
		t.Errorf("tree:\n got %v\nwant %v", got, want)
	}
	if readFile(t, filepath.Join(root, "photo.jpg")) != "PIXELS" {
		t.Error("image not re-encoded in place")
	}
	if readFile(t, filepath.Join(root, "sin_edit", "photo.jpg")) != "pixels" {
		t.Error("backup must hold the original bytes")
	}
	if readFile(t, filepath.Join(root, "clip.mp4")) != "frames" {
		t.Error("video output missing")
	}

	wantCounts := Counts{"optimized": 3, "images": 1, "videos": 2, "skipped": 0, "quarantined": 2}
	if !reflect.DeepEqual(res.Counts, wantCounts) {
		t.Errorf("counts: got %v, want %v", res.Counts, wantCounts)
	}
}

// TestOptimizeVideoOutputCollision verifies a re-encoded .avi does not
// replace an unrelated mp4 of the same stem.
func TestOptimizeVideoOutputCollision(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.avi": "avi",
		"a.mp4": "mp4",
	})
	env, _, _ := newEnv(root)

	if res := (Optimize{}).Run(context.Background(), env); res.Outcome != Succeeded {
		t.Fatal(res.Err)
	}
	// a.avi is processed first and claims a_1.mp4; a.mp4 is re-encoded in place.
	if readFile(t, filepath.Join(root, "a.mp4")) != "mp4" {
		t.Error("a.mp4 content changed")
	}
	if readFile(t, filepath.Join(root, "a_1.mp4")) != "avi" {
		t.Error("a.avi output not at a_1.mp4")
	}
	if exists(filepath.Join(root, "a.avi")) {
		t.Error("original a.avi should be gone")
	}
}

func TestOptimizeDegradedModes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"p.png": "img",
		"v.mkv": "vid",
	})

	env, _, _ := newEnv(root)
	env.FindTool = func(context.Context) (Transcoder, error) { return nil, mediatool.ErrToolNotFound }
	res := Optimize{}.Run(context.Background(), env)
	if res.Outcome != Succeeded || res.Counts["images"] != 1 || res.Counts["videos"] != 0 {
		t.Errorf("image-only: got %+v", res)
	}
	if !exists(filepath.Join(root, "v.mkv")) {
		t.Error("video must be left alone without a transcoder")
	}

	env, _, _ = newEnv(root)
	env.FindTool = nil
	env.Images = fakeCodec{unavailable: true}
	res = Optimize{}.Run(context.Background(), env)
	if res.Outcome != Failed || !errors.Is(res.Err, ErrNoMediaTools) {
		t.Errorf("nothing available: got %+v", res)
	}
}
