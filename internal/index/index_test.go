package index

import (
	"errors"
	"testing"

	"jobmono/internal/meta"
	"jobmono/internal/testkit"
)

func buildJobs() (*meta.Module, *meta.Module) {
	core := testkit.NewModule("Jobs")
	core.Interface("Jobs.IJob", testkit.Marker)
	core.Interface("Jobs.IJobChild").Implements(meta.Named("Jobs.IJob"))
	core.Interface("Jobs.IDisposable")

	game := testkit.NewModule("Game", "Jobs")
	base := game.Type("Game.JobBase`1", "T").Implements(meta.Named("Jobs.IJobChild"))
	game.Type("Game.Job`1", "T").Base(meta.Inst(base.Name(), meta.TypeParam("Game.Job`1", 0, "T")))
	game.Type("Game.Plain`1", "T").Implements(meta.Named("Jobs.IDisposable")).Runtime("Game.Plain`1[T], Game, Version=1.0")
	util := game.Type("Game.Util")
	util.Method("Run", "int32")
	util.Method("Run", "float")
	util.Method("Once", "")
	return core.Build(), game.Build()
}

func TestTypesKeepDeclarationOrder(t *testing.T) {
	core, game := buildJobs()
	ix := Build([]*meta.Module{core, game})

	got := ix.Types(game)
	want := []string{"Game.JobBase`1", "Game.Job`1", "Game.Plain`1", "Game.Util"}
	if len(got) != len(want) {
		t.Fatalf("type count: got=%d want=%d", len(got), len(want))
	}
	for i := range want {
		if got[i].Name != want[i] {
			t.Fatalf("type %d: got=%s want=%s", i, got[i].Name, want[i])
		}
	}
}

func TestInterfaceClosureIsTransitive(t *testing.T) {
	core, game := buildJobs()
	ix := Build([]*meta.Module{core, game})

	job, ok := ix.Type("Game.Job`1")
	if !ok {
		t.Fatalf("Game.Job`1 not indexed")
	}
	if !ix.Implements(job, "Jobs.IJob") {
		t.Fatalf("Job`1 should implement IJob through its base and IJobChild")
	}
	if !ix.HasMarkedInterface(job, testkit.Marker) {
		t.Fatalf("Job`1 should reach the marked interface")
	}
	plain, _ := ix.Type("Game.Plain`1")
	if ix.HasMarkedInterface(plain, testkit.Marker) {
		t.Fatalf("Plain`1 implements only an unmarked interface")
	}
}

func TestResolveBothLayers(t *testing.T) {
	core, game := buildJobs()
	ix := Build([]*meta.Module{core, game})

	byMeta, err := ix.Resolve(Identity{Layer: LayerMetadata, Name: " Game.Plain`1 "})
	if err != nil {
		t.Fatalf("metadata identity: %v", err)
	}
	byRuntime, err := ix.RuntimeType(game, "Game.Plain`1[T], Game, Version=1.0")
	if err != nil {
		t.Fatalf("runtime identity: %v", err)
	}
	if byMeta != byRuntime {
		t.Fatalf("layers resolved to different descriptors")
	}
	defaulted, err := ix.Resolve(Identity{Layer: LayerRuntime, Name: "Game.Util, Game"})
	if err != nil || defaulted.Name != "Game.Util" {
		t.Fatalf("default runtime name: got=%v err=%v", defaulted, err)
	}
	if _, err := ix.RuntimeType(core, "Game.Util, Game"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-module runtime lookup should fail, got %v", err)
	}
}

func TestMethodOverloads(t *testing.T) {
	core, game := buildJobs()
	ix := Build([]*meta.Module{core, game})
	util, _ := ix.Type("Game.Util")

	md, err := ix.Method(util, "Run", "float")
	if err != nil || md.Def.Signature != "float" {
		t.Fatalf("exact overload: got=%v err=%v", md, err)
	}
	if _, err := ix.Method(util, "Run", ""); !errors.Is(err, ErrAmbiguous) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ambiguous (wrapping not found), got %v", err)
	}
	if md, err := ix.Method(util, "Once", ""); err != nil || md.Key != meta.KeyOf("Game.Util", "Once", "") {
		t.Fatalf("unique name: got=%v err=%v", md, err)
	}
	if _, err := ix.Method(util, "Missing", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
