package editor

import (
	"errors"
	"reflect"
	"testing"

	"github.com/openfroyo/cfgtree/pkg/engine"
	"github.com/openfroyo/cfgtree/pkg/schema"
)

func psramOrder(t *testing.T) *engine.EvaluationOrder {
	t.Helper()
	tree, err := schema.Merge([]*schema.Component{{
		Name: "fake-hal",
		Options: []*schema.Definition{
			{
				Name:        "psram",
				Description: "PSRAM",
				Depends:     `feature("esp32") || feature("esp32s3")`,
				Options: []*schema.Definition{
					{Name: "enable", Type: "bool", Default: false},
					{
						Name:    "size",
						Type:    "enum",
						Depends: `enabled("psram.enable")`,
						Values:  []schema.EnumValue{{Literal: "1"}, {Literal: "2"}, {Literal: "4"}},
						Default: "2",
					},
					{
						Name:    "type",
						Depends: `feature("esp32s3") && enabled("psram.enable")`,
						Options: []*schema.Definition{{
							Name:    "type",
							Type:    "enum",
							Values:  []schema.EnumValue{{Literal: "quad"}, {Literal: "octal"}},
							Default: "quad",
						}},
					},
				},
			},
			{
				Name:        "heap",
				Description: "Heapsize",
				Options: []*schema.Definition{
					{Name: "size", Type: "u32", Valid: "value >= 0 && value <= 80000"},
				},
			},
		},
	}})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	order, err := engine.BuildOrder(tree)
	if err != nil {
		t.Fatalf("BuildOrder failed: %v", err)
	}
	return order
}

func psramRaw() engine.RawValues {
	return engine.RawValues{
		"fake-hal.psram.enable":    true,
		"fake-hal.psram.size":      "4",
		"fake-hal.psram.type.type": "octal",
		"fake-hal.heap.size":       int64(90000),
	}
}

func mustDo(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func currentPath(s *Session) string {
	row, ok := s.Current()
	if !ok {
		return ""
	}
	return row.Node.Path
}

func activeRows(s *Session) []string {
	var out []string
	for _, r := range s.Rows() {
		if r.Active {
			out = append(out, r.Node.Path)
		}
	}
	return out
}

func TestSession_Navigation(t *testing.T) {
	s := NewSession(psramOrder(t), engine.NewFeatureSet("esp32s3"), psramRaw())

	if s.State().Kind != Browsing {
		t.Fatalf("new session should be browsing, got %v", s.State().Kind)
	}
	if got := currentPath(s); got != "fake-hal" {
		t.Fatalf("cursor at %q, want fake-hal", got)
	}

	mustDo(t, s.Enter())
	if got := currentPath(s); got != "fake-hal.psram" {
		t.Errorf("cursor at %q, want fake-hal.psram", got)
	}
	mustDo(t, s.Down())
	if got := currentPath(s); got != "fake-hal.heap" {
		t.Errorf("cursor at %q, want fake-hal.heap", got)
	}
	mustDo(t, s.Down())
	if got := currentPath(s); got != "fake-hal.heap" {
		t.Errorf("Down past the last row should stay, got %q", got)
	}
	mustDo(t, s.Up())
	mustDo(t, s.Select())
	if got := s.Breadcrumb(); !reflect.DeepEqual(got, []string{"Configuration", "fake-hal", "PSRAM"}) {
		t.Errorf("Breadcrumb() = %v", got)
	}
	if s.Title() != "PSRAM" {
		t.Errorf("Title() = %q", s.Title())
	}

	ok, err := s.Back()
	mustDo(t, err)
	if !ok || currentPath(s) != "fake-hal.psram" {
		t.Errorf("Back should restore the cursor, got %q", currentPath(s))
	}
	_, _ = s.Back()
	ok, err = s.Back()
	mustDo(t, err)
	if ok {
		t.Error("Back at the top level should report false")
	}
}

func TestSession_CursorSkipsInactiveRows(t *testing.T) {
	tree, err := schema.Merge([]*schema.Component{{
		Name: "c",
		Options: []*schema.Definition{
			{Name: "a", Type: "bool"},
			{Name: "b", Type: "bool", Depends: `feature("x")`},
			{Name: "d", Type: "bool"},
		},
	}})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	order, err := engine.BuildOrder(tree)
	if err != nil {
		t.Fatalf("BuildOrder failed: %v", err)
	}

	s := NewSession(order, engine.NewFeatureSet(), nil)
	mustDo(t, s.Enter())
	if len(s.Rows()) != 3 {
		t.Fatalf("inactive rows should still be listed, got %d rows", len(s.Rows()))
	}
	mustDo(t, s.Down())
	if got := currentPath(s); got != "c.d" {
		t.Errorf("cursor at %q, want c.d", got)
	}
	mustDo(t, s.Up())
	if got := currentPath(s); got != "c.a" {
		t.Errorf("cursor at %q, want c.a", got)
	}
}

func TestSession_FirstActiveRowSelected(t *testing.T) {
	s := NewSession(psramOrder(t), engine.NewFeatureSet(), nil)
	mustDo(t, s.Enter())
	if got := currentPath(s); got != "fake-hal.heap" {
		t.Errorf("cursor at %q, want the first active row fake-hal.heap", got)
	}
}

func TestSession_ToggleAndRevert(t *testing.T) {
	s := NewSession(psramOrder(t), engine.NewFeatureSet("esp32s3"), psramRaw())
	mustDo(t, s.Enter())
	mustDo(t, s.Enter())

	want := []string{"fake-hal.psram.enable", "fake-hal.psram.size", "fake-hal.psram.type"}
	if got := activeRows(s); !reflect.DeepEqual(got, want) {
		t.Fatalf("active rows = %v, want %v", got, want)
	}

	mustDo(t, s.Activate())
	if got := activeRows(s); !reflect.DeepEqual(got, []string{"fake-hal.psram.enable"}) {
		t.Errorf("after disabling, active rows = %v", got)
	}
	if _, ok := s.Resolution().Config.Get("fake-hal.psram.size"); ok {
		t.Error("psram.size should vanish from the resolved config")
	}
	raw := s.Raw()
	if raw["fake-hal.psram.size"] != "4" || raw["fake-hal.psram.type.type"] != "octal" {
		t.Errorf("raw values of inactive options must be kept: %v", raw)
	}
	mustDo(t, s.Down())
	if got := currentPath(s); got != "fake-hal.psram.enable" {
		t.Errorf("cursor must not land on inactive rows, got %q", got)
	}

	mustDo(t, s.Activate())
	v, ok := s.Resolution().Config.Value("fake-hal.psram.size")
	if !ok || v.AsString() != "4" {
		t.Errorf("psram.size should be restored to 4, got %v", v)
	}
	v, ok = s.Resolution().Config.Value("fake-hal.psram.type.type")
	if !ok || v.AsString() != "octal" {
		t.Errorf("psram.type.type should be restored to octal, got %v", v)
	}
}

func TestSession_EnumCycles(t *testing.T) {
	s := NewSession(psramOrder(t), engine.NewFeatureSet("esp32"), engine.RawValues{"fake-hal.psram.enable": true})
	mustDo(t, s.Enter())
	mustDo(t, s.Enter())
	mustDo(t, s.Down())
	if got := currentPath(s); got != "fake-hal.psram.size" {
		t.Fatalf("cursor at %q", got)
	}

	var seen []string
	for i := 0; i < 4; i++ {
		mustDo(t, s.Activate())
		v, _ := s.Resolution().Config.Value("fake-hal.psram.size")
		seen = append(seen, v.AsString())
	}
	// Default is "2": next is "4", then wraps.
	if want := []string{"4", "1", "2", "4"}; !reflect.DeepEqual(seen, want) {
		t.Errorf("enum sequence = %v, want %v", seen, want)
	}
}

func toHeapSize(t *testing.T, s *Session) {
	t.Helper()
	mustDo(t, s.Enter())
	mustDo(t, s.Down())
	mustDo(t, s.Enter())
	if got := currentPath(s); got != "fake-hal.heap.size" {
		t.Fatalf("cursor at %q, want fake-hal.heap.size", got)
	}
}

func TestSession_EditCommit(t *testing.T) {
	s := NewSession(psramOrder(t), engine.NewFeatureSet("esp32s3"), psramRaw())
	toHeapSize(t, s)

	if len(s.DiagnosticsAt("fake-hal.heap.size")) == 0 {
		t.Fatal("90000 should be reported as invalid")
	}

	mustDo(t, s.Activate())
	if st := s.State(); st.Kind != Editing || st.Path != "fake-hal.heap.size" {
		t.Fatalf("State() = %+v, want Editing(fake-hal.heap.size)", st)
	}
	if s.Buffer() != "90000" {
		t.Errorf("buffer prefill = %q, want the rejected input", s.Buffer())
	}

	mustDo(t, s.SetBuffer("30000"))
	mustDo(t, s.Commit())
	if s.State().Kind != Browsing {
		t.Errorf("Commit should return to Browsing")
	}
	if v, ok := s.Resolution().Config.Value("fake-hal.heap.size"); !ok || v.AsInt() != 30000 {
		t.Errorf("heap.size = %v", v)
	}
	if d := s.DiagnosticsAt("fake-hal.heap.size"); len(d) != 0 {
		t.Errorf("expected no diagnostics, got %v", d)
	}

	mustDo(t, s.Activate())
	if s.Buffer() != "30000" {
		t.Errorf("buffer prefill = %q", s.Buffer())
	}
	mustDo(t, s.SetBuffer("lots"))
	mustDo(t, s.Commit())
	if got := s.Raw()["fake-hal.heap.size"]; got != "lots" {
		t.Errorf("unparsable input should be stored as typed, got %v", got)
	}
	diags := s.DiagnosticsAt("fake-hal.heap.size")
	if len(diags) == 0 || diags[0].Kind != engine.TypeMismatch {
		t.Errorf("expected TypeMismatch, got %v", diags)
	}
}

func TestSession_EditAbort(t *testing.T) {
	s := NewSession(psramOrder(t), engine.NewFeatureSet("esp32s3"), psramRaw())
	toHeapSize(t, s)

	mustDo(t, s.Activate())
	mustDo(t, s.SetBuffer("1"))
	mustDo(t, s.Abort())

	if s.State().Kind != Browsing {
		t.Errorf("Abort should return to Browsing")
	}
	if got := s.Raw()["fake-hal.heap.size"]; got != int64(90000) {
		t.Errorf("Abort must leave the raw value unchanged, got %v", got)
	}
	if s.Dirty() {
		t.Error("session should not be dirty after an aborted edit")
	}
}

func TestSession_Reset(t *testing.T) {
	s := NewSession(psramOrder(t), engine.NewFeatureSet("esp32s3"), psramRaw())
	toHeapSize(t, s)
	mustDo(t, s.Reset())
	if _, ok := s.Raw()["fake-hal.heap.size"]; ok {
		t.Error("Reset should remove the raw value")
	}
	if !s.Dirty() {
		t.Error("session should be dirty after Reset")
	}
}

func TestSession_InvalidTransitions(t *testing.T) {
	s := NewSession(psramOrder(t), engine.NewFeatureSet("esp32s3"), psramRaw())

	if err := s.Commit(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Commit while browsing: %v", err)
	}
	if err := s.Activate(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Activate on a menu: %v", err)
	}

	toHeapSize(t, s)
	mustDo(t, s.Activate())
	if err := s.Up(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Up while editing: %v", err)
	}
	if err := s.Save(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Save while editing: %v", err)
	}
}

func TestSession_CancelDiscards(t *testing.T) {
	called := false
	p := PersisterFunc(func(engine.RawValues) error {
		called = true
		return nil
	})
	s := NewSession(psramOrder(t), engine.NewFeatureSet("esp32s3"), psramRaw(), WithPersister(p))
	toHeapSize(t, s)
	mustDo(t, s.Activate())
	mustDo(t, s.Cancel())

	if st := s.State(); st.Kind != Exiting || st.Exit != ExitDiscard {
		t.Errorf("State() = %+v, want Exiting(Discard)", st)
	}
	if called {
		t.Error("Cancel must not persist anything")
	}
	if err := s.Cancel(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Cancel after exit: %v", err)
	}
}

func TestSession_SavePersistsPrunedValues(t *testing.T) {
	var saved engine.RawValues
	p := PersisterFunc(func(v engine.RawValues) error {
		saved = v
		return nil
	})
	raw := psramRaw()
	raw["fake-hal.removed"] = true

	s := NewSession(psramOrder(t), engine.NewFeatureSet("esp32s3"), raw, WithPersister(p))
	mustDo(t, s.Enter())
	mustDo(t, s.Enter())
	mustDo(t, s.Activate()) // disable psram
	mustDo(t, s.Save())

	if st := s.State(); st.Kind != Exiting || st.Exit != ExitSave {
		t.Errorf("State() = %+v, want Exiting(Save)", st)
	}
	want := engine.RawValues{
		"fake-hal.psram.enable": false,
		"fake-hal.heap.size":    int64(90000),
	}
	if !reflect.DeepEqual(saved, want) {
		t.Errorf("saved = %v, want %v", saved, want)
	}
}

func TestSession_SaveErrorKeepsSession(t *testing.T) {
	p := PersisterFunc(func(engine.RawValues) error { return errors.New("disk full") })
	s := NewSession(psramOrder(t), engine.NewFeatureSet(), nil, WithPersister(p))

	if err := s.Save(); err == nil {
		t.Fatal("expected persistence error")
	}
	if s.State().Kind != Browsing {
		t.Errorf("session should stay in Browsing after a failed save, got %v", s.State().Kind)
	}
}
