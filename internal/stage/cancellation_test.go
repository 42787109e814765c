package stage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

// cancelAfter returns a recorder that sets tok once item n has finished.
func cancelAfter(tok *Token, n int) *recorder {
	rec := &recorder{}
	rec.onStep = func(current, total int) {
		if current == n {
			tok.Cancel()
		}
	}
	return rec
}

type cancelCase struct {
	name     string
	stage    Stage
	files    map[string]string
	cancelAt int
	want     []string
	// check runs extra assertions on the finished tree.
	check func(t *testing.T, root string)
}

// runCancelCases runs every case with the token set after item cancelAt
// and verifies the tree, the empty result and the silence that follows.
func runCancelCases(t *testing.T, cases []cancelCase) {
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			writeTree(t, root, tc.files)
			env, _, tok := newEnv(root)
			rec := cancelAfter(tok, tc.cancelAt)
			env.Progress = rec

			res := tc.stage.Run(context.Background(), env)
			if res.Outcome != Cancelled {
				t.Fatalf("outcome: got %s, want cancelled (err %v)", res.Outcome, res.Err)
			}
			if res.Counts != nil || res.Err != nil {
				t.Errorf("cancelled result must be empty, got %+v", res)
			}
			if got := listFiles(t, root); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("tree:\n got %v\nwant %v", got, tc.want)
			}
			if len(rec.events) == 0 {
				t.Fatal("no progress events")
			}
			if last := rec.events[len(rec.events)-1]; last[0] != tc.cancelAt {
				t.Errorf("progress emitted after cancellation: last event %v", last)
			}
			rec.assertMonotonic(t)
			if tc.check != nil {
				tc.check(t, root)
			}
		})
	}
}

// TestCancellationMidStage verifies that cancelling after item i of N
// leaves items i+1..N untouched in every stage.
func TestCancellationMidStage(t *testing.T) {
	runCancelCases(t, []cancelCase{
		{
			name:  "dedup",
			stage: Dedup{},
			files: map[string]string{
				"a.txt": "same", "b.txt": "same", "c.txt": "same", "d.txt": "same",
			},
			cancelAt: 2,
			want:     []string{"a.txt", "c.txt", "d.txt", "trash/b.txt"},
		},
		{
			name:     "convert",
			stage:    Convert{},
			files:    map[string]string{"a.ts": "a", "b.ts": "b", "c.ts": "c"},
			cancelAt: 1,
			want:     []string{"a.mp4", "b.ts", "c.ts", "trash/a.ts"},
		},
		{
			name:  "flatten",
			stage: Flatten{},
			files: map[string]string{
				"x/y/z/a.txt": "a", "x/y/b.txt": "b", "x/c.txt": "c",
			},
			cancelAt: 1,
			want:     []string{"a.txt", "x/c.txt", "x/y/b.txt"},
			check: func(t *testing.T, root string) {
				if !exists(filepath.Join(root, "x", "y", "z")) {
					t.Error("empty directories must not be removed after cancellation")
				}
			},
		},
		{
			name:     "optimize",
			stage:    Optimize{},
			files:    map[string]string{"a.jpg": "a", "b.jpg": "b", "c.jpg": "c"},
			cancelAt: 1,
			want:     []string{"a.jpg", "b.jpg", "c.jpg", "sin_edit/a.jpg"},
			check: func(t *testing.T, root string) {
				if got := readFile(t, filepath.Join(root, "a.jpg")); got != "A" {
					t.Errorf("a.jpg: got %q, want optimized content", got)
				}
				if got := readFile(t, filepath.Join(root, "b.jpg")); got != "b" {
					t.Errorf("b.jpg was touched: %q", got)
				}
			},
		},
		{
			name:  "cleanup",
			stage: Cleanup{},
			files: map[string]string{
				"trash/t.txt": "t", "sin_edit/s.txt": "s", "fallos/f.txt": "f",
			},
			cancelAt: 1,
			want:     []string{"fallos/f.txt", "sin_edit/s.txt"},
		},
		{
			name:  "split",
			stage: Split{PerFolder: 2},
			files: map[string]string{
				"a.txt": "a", "b.txt": "b", "c.txt": "c", "d.txt": "d", "e.txt": "e",
			},
			cancelAt: 3,
			want:     []string{"0001/a.txt", "0001/b.txt", "0002/c.txt", "d.txt", "e.txt"},
		},
	})
}

// TestCancellationOnLastItem verifies a stage that sees the token during
// its final item still ends cancelled, after finishing that item.
func TestCancellationOnLastItem(t *testing.T) {
	runCancelCases(t, []cancelCase{
		{
			name:     "dedup",
			stage:    Dedup{},
			files:    map[string]string{"a.txt": "same", "b.txt": "same"},
			cancelAt: 2,
			want:     []string{"a.txt", "trash/b.txt"},
		},
		{
			name:     "classify",
			stage:    Classify{},
			files:    map[string]string{"a.txt": "a", "b.png": "b"},
			cancelAt: 2,
			want:     []string{"Documentos/a.txt", "Imagenes/b.png"},
		},
		{
			name:     "convert",
			stage:    Convert{},
			files:    map[string]string{"a.ts": "a"},
			cancelAt: 1,
			want:     []string{"a.mp4", "trash/a.ts"},
		},
		{
			name:     "flatten",
			stage:    Flatten{},
			files:    map[string]string{"x/a.txt": "a", "y/b.txt": "b"},
			cancelAt: 2,
			want:     []string{"a.txt", "b.txt"},
			check: func(t *testing.T, root string) {
				if !exists(filepath.Join(root, "x")) {
					t.Error("empty directories must not be removed after cancellation")
				}
			},
		},
		{
			name:     "optimize",
			stage:    Optimize{},
			files:    map[string]string{"a.jpg": "a"},
			cancelAt: 1,
			want:     []string{"a.jpg", "sin_edit/a.jpg"},
		},
		{
			name:  "cleanup",
			stage: Cleanup{},
			files: map[string]string{
				"trash/t.txt": "t", "sin_edit/s.txt": "s", "fallos/f.txt": "f",
			},
			cancelAt: 3,
			want:     nil,
		},
		{
			name:     "split",
			stage:    Split{PerFolder: 1},
			files:    map[string]string{"a.txt": "a", "b.txt": "b"},
			cancelAt: 2,
			want:     []string{"0001/a.txt", "0002/b.txt"},
		},
	})
}
