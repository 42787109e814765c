package stage

import (
	"reflect"
	"testing"
)

func TestDefaultOrder(t *testing.T) {
	names := func(ss []Stage) []string {
		out := make([]string, len(ss))
		for i, s := range ss {
			out[i] = s.Name()
		}
		return out
	}
	if got, want := names(Default(true)), []string{"dedup", "classify", "convert", "flatten", "optimize", "cleanup"}; !reflect.DeepEqual(got, want) {
		t.Errorf("with optimize: got %v", got)
	}
	if got, want := names(Default(false)), []string{"dedup", "classify", "convert", "flatten", "cleanup"}; !reflect.DeepEqual(got, want) {
		t.Errorf("without optimize: got %v", got)
	}
}

func TestByName(t *testing.T) {
	s, err := ByName("split", Options{PerFolder: 7})
	if err != nil {
		t.Fatal(err)
	}
	if sp, ok := s.(Split); !ok || sp.PerFolder != 7 {
		t.Errorf("got %#v", s)
	}
	if _, err := ByName("nope", Options{}); err == nil {
		t.Error("expected error for unknown stage")
	}
}

func TestTokenIdempotent(t *testing.T) {
	tok := NewToken()
	if tok.Cancelled() {
		t.Fatal("new token is set")
	}
	tok.Cancel()
	tok.Cancel()
	if !tok.Cancelled() {
		t.Error("token not set after Cancel")
	}
}

func TestBuild(t *testing.T) {
	got, err := Build([]string{"split", "cleanup"}, false, Options{PerFolder: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].(Split).PerFolder != 3 || got[1].Name() != "cleanup" {
		t.Errorf("got %v", got)
	}
	if got, _ := Build(nil, false, Options{}); len(got) != 5 {
		t.Errorf("empty names: got %d stages, want the 5 default ones", len(got))
	}
	if _, err := Build([]string{"dedup", "bogus"}, true, Options{}); err == nil {
		t.Error("expected unknown stage error")
	}
}
