package synth

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"jobmono/internal/index"
	"jobmono/internal/meta"
	"jobmono/internal/mono"
	"jobmono/internal/store"
	"jobmono/internal/testkit"
)

func instance(arg string) mono.Instance {
	ref := meta.Inst("Game.Job`1", meta.Named(arg))
	return mono.Instance{
		Entity: "Game.Job`1",
		Args:   []meta.TypeRef{meta.Named(arg)},
		Type:   ref,
		Name:   ref.String(),
	}
}

func typeNames(m *meta.Module) []string {
	var out []string
	for _, td := range m.Types {
		out = append(out, td.Name)
	}
	return out
}

func TestSynthesizeBuildsClosedTypes(t *testing.T) {
	target := testkit.NewModule("App").Build()
	target.Types = append(target.Types, meta.TypeDef{Name: "App.Main"})

	defs, replaced, err := Synthesize(target, "", []mono.Instance{instance("System.Single"), instance("System.Int32")}, nil)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if replaced != 0 || len(defs) != 2 {
		t.Fatalf("defs=%d replaced=%d", len(defs), replaced)
	}
	if !strings.HasPrefix(defs[0].Name, DefaultGroup+".Game_Job_1_System_Int32_") {
		t.Fatalf("name: got=%s", defs[0].Name)
	}
	if defs[0].Name > defs[1].Name {
		t.Fatalf("definitions are not sorted: %s > %s", defs[0].Name, defs[1].Name)
	}
	for _, d := range defs {
		if !d.Synthetic || !d.HasAttribute(Attribute) || d.BaseType == nil || d.BaseType.HasParams() {
			t.Fatalf("bad synthesized type: %+v", d)
		}
	}
	if got := typeNames(target); len(got) != 3 || got[0] != "App.Main" {
		t.Fatalf("target types: %v", got)
	}
}

func TestSynthesizeIsIdempotent(t *testing.T) {
	target := testkit.NewModule("App").Build()
	insts := []mono.Instance{instance("System.Int32"), instance("System.Single")}

	if _, _, err := Synthesize(target, "Gen", insts, nil); err != nil {
		t.Fatalf("first: %v", err)
	}
	first := typeNames(target)
	_, replaced, err := Synthesize(target, "Gen", insts, nil)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if replaced != 2 {
		t.Fatalf("replaced: got=%d want=2", replaced)
	}
	if second := typeNames(target); !slices.Equal(first, second) {
		t.Fatalf("rerun changed the module:\n%v\n%v", first, second)
	}

	if _, _, err := Synthesize(target, "Other", insts[:1], nil); err != nil {
		t.Fatalf("other group: %v", err)
	}
	if len(target.Types) != 3 {
		t.Fatalf("another group must not replace Gen types: %v", typeNames(target))
	}
}

func TestSynthesizeRejectsOpenAndClashingTypes(t *testing.T) {
	target := testkit.NewModule("App").Build()
	open := mono.Instance{Entity: "Game.Job`1", Type: meta.Inst("Game.Job`1", meta.TypeParam("Game.Job`1", 0, "T")), Name: "Game.Job`1<!T>"}
	var serr *SynthesisError
	if _, _, err := Synthesize(target, "Gen", []mono.Instance{open}, nil); !errors.As(err, &serr) {
		t.Fatalf("open instance: got %v", err)
	}

	inst := instance("System.Int32")
	target.Types = append(target.Types, meta.TypeDef{Name: Name("Gen", inst)})
	if _, _, err := Synthesize(target, "Gen", []mono.Instance{inst}, nil); !errors.As(err, &serr) {
		t.Fatalf("clash: got %v", err)
	}
	if len(target.Types) != 1 {
		t.Fatalf("failed synthesis modified the target: %v", typeNames(target))
	}
}

func TestSynthesizePointsSymbolsAtDefinition(t *testing.T) {
	game := testkit.NewModule("Game")
	game.Type("Game.Job`1", "T")
	gm := game.Build()
	gm.Symbols = &meta.Symbols{Schema: meta.Schema, Module: "Game", Entries: []meta.SymbolEntry{{Type: "Game.Job`1", File: "Job.cs", Line: 12}}}
	ix := index.Build([]*meta.Module{gm})

	target := testkit.NewModule("App").Build()
	inst := instance("System.Int32")
	if _, _, err := Synthesize(target, "Gen", []mono.Instance{inst}, ix); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	loc, ok := target.Symbols.Lookup(Name("Gen", inst), "")
	if !ok || loc.File != "Job.cs" || loc.Line != 12 {
		t.Fatalf("symbol: got=%+v ok=%v", loc, ok)
	}
}

func TestEmitWritesTarget(t *testing.T) {
	dir := t.TempDir()
	path, err := testkit.NewModule("App").WriteTo(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(context.Background(), store.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	rep, err := Emit(context.Background(), st, nil, path, "Gen", []mono.Instance{instance("System.Int32")})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(rep.Types) != 1 {
		t.Fatalf("report: %+v", rep)
	}
	back, err := meta.Read(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if td := back.FindType(rep.Types[0]); td == nil || !td.Synthetic {
		t.Fatalf("synthesized type missing after write: %v", typeNames(back))
	}
}

type failingStore struct{ m *meta.Module }

func (s failingStore) Add(context.Context, string) (*meta.Module, error) { return s.m, nil }

func (failingStore) Write(*meta.Module, meta.WriteOptions) error { return errors.New("disk full") }

func TestEmitReportsWriteFailure(t *testing.T) {
	st := failingStore{m: testkit.NewModule("App").Build()}
	_, err := Emit(context.Background(), st, nil, "App.mod.mp", "Gen", []mono.Instance{instance("System.Int32")})
	var serr *SynthesisError
	if !errors.As(err, &serr) || serr.Op != "write" {
		t.Fatalf("expected write SynthesisError, got %v", err)
	}
}
