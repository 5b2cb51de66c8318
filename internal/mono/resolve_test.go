package mono

import (
	"context"
	"errors"
	"slices"
	"testing"

	"jobmono/internal/index"
	"jobmono/internal/meta"
	"jobmono/internal/scan"
	"jobmono/internal/testkit"
	"jobmono/internal/types"
)

var (
	int32Ref  = meta.Named("System.Int32")
	singleRef = meta.Named("System.Single")
	stringRef = meta.Named("System.String")
)

type corpus struct {
	jobs *testkit.ModuleBuilder
	game *testkit.ModuleBuilder
	job  *testkit.TypeBuilder
	ctor *testkit.MethodBuilder
}

func newCorpus() *corpus {
	jobs := testkit.NewModule("Jobs")
	jobs.Interface("Jobs.IJob", testkit.Marker)
	game := testkit.NewModule("Game", "Jobs")
	job := game.Type("Game.Job`1", "T").Implements(meta.Named("Jobs.IJob"))
	ctor := job.Method(".ctor", "")
	return &corpus{jobs: jobs, game: game, job: job, ctor: ctor}
}

// spawn makes m construct Job<arg>.
func (c *corpus) spawn(m *testkit.MethodBuilder, arg meta.TypeRef) {
	m.NewObj(c.ctor.Ref(meta.Inst(c.job.Name(), arg)))
}

func (c *corpus) resolve(t *testing.T, opt Options) *Result {
	t.Helper()
	res, err := c.resolveCtx(context.Background(), opt)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := res.Validate(); err != nil {
		t.Fatalf("invalid result: %v", err)
	}
	return res
}

func (c *corpus) resolveCtx(ctx context.Context, opt Options) (*Result, error) {
	mods := []*meta.Module{c.jobs.Build(), c.game.Build()}
	ix := index.Build(mods)
	sc, err := scan.Scan(ctx, ix, mods, scan.Options{Capability: scan.Capability{Marker: testkit.Marker}, Jobs: 2})
	if err != nil {
		return nil, err
	}
	return Resolve(ctx, ix, sc.Graph, sc.Calls, opt)
}

func names(res *Result) []string {
	out := make([]string, 0, len(res.Instances))
	for _, inst := range res.Instances {
		out = append(out, inst.Name)
	}
	return out
}

func wantNames(t *testing.T, res *Result, want ...string) {
	t.Helper()
	if got := names(res); !slices.Equal(got, want) {
		t.Fatalf("instances:\n got=%q\nwant=%q", got, want)
	}
}

func TestResolveThroughGenericMethod(t *testing.T) {
	c := newCorpus()
	sched := c.game.Type("Game.Scheduler")
	run := sched.Method("Run", "", "U")
	c.spawn(run, run.Param(0))
	main := c.game.Type("Game.Program").Method("Main", "")
	main.Call(run.Ref(sched.Ref(), int32Ref)).
		Call(run.Ref(sched.Ref(), singleRef)).
		Call(run.Ref(sched.Ref(), int32Ref))

	res := c.resolve(t, Options{})
	wantNames(t, res, "Game.Job`1<System.Int32>", "Game.Job`1<System.Single>")

	inst := res.Instances[0]
	if inst.Entity != "Game.Job`1" {
		t.Fatalf("entity: got=%s", inst.Entity)
	}
	if len(inst.Args) != 1 || inst.Args[0].Name != "System.Int32" {
		t.Fatalf("args: got=%v", inst.Args)
	}
	if len(inst.UseSites) != 1 {
		t.Fatalf("repeated caller should collapse into one use site, got %v", inst.UseSites)
	}
	site := inst.UseSites[0]
	if site.Caller != main.Key() || site.Root != run.Key() || site.Depth != 1 {
		t.Fatalf("use site: got=%+v", site)
	}
}

func TestResolveTypeParameterFromDeclaringInstance(t *testing.T) {
	c := newCorpus()
	pool := c.game.Type("Game.Pool`1", "T")
	spawn := pool.Method("Spawn", "")
	c.spawn(spawn, pool.Param(0))
	main := c.game.Type("Game.Program").Method("Main", "")
	main.Call(spawn.Ref(meta.Inst(pool.Name(), stringRef)))

	res := c.resolve(t, Options{})
	wantNames(t, res, "Game.Job`1<System.String>")
}

func TestResolveNestedArguments(t *testing.T) {
	c := newCorpus()
	sched := c.game.Type("Game.Scheduler")
	run := sched.Method("Run", "", "U")
	c.spawn(run, meta.ArrayOf(run.Param(0)))
	outer := c.game.Type("Game.Outer").Method("Batch", "", "V")
	outer.Call(run.Ref(sched.Ref(), meta.Inst("Game.Box`1", outer.Param(0))))
	main := c.game.Type("Game.Program").Method("Main", "")
	main.Call(outer.Ref(meta.Named("Game.Outer"), int32Ref))

	res := c.resolve(t, Options{})
	wantNames(t, res, "Game.Job`1<Game.Box`1<System.Int32>[]>")
	if d := res.Instances[0].UseSites[0].Depth; d != 2 {
		t.Fatalf("depth: got=%d want=2", d)
	}
}

func TestResolveFanOut(t *testing.T) {
	c := newCorpus()
	sched := c.game.Type("Game.Scheduler")
	run := sched.Method("Run", "", "U")
	c.spawn(run, run.Param(0))
	prog := c.game.Type("Game.Program")
	prog.Method("A", "").Call(run.Ref(sched.Ref(), int32Ref))
	prog.Method("B", "").Call(run.Ref(sched.Ref(), singleRef))
	prog.Method("C", "").Call(run.Ref(sched.Ref(), stringRef))

	res := c.resolve(t, Options{})
	wantNames(t, res,
		"Game.Job`1<System.Int32>",
		"Game.Job`1<System.Single>",
		"Game.Job`1<System.String>",
	)
}

func TestResolveTerminatesOnCycles(t *testing.T) {
	c := newCorpus()
	loop := c.game.Type("Game.Loop")
	a := loop.Method("A", "", "T")
	b := loop.Method("B", "", "T")
	c.spawn(a, a.Param(0))
	a.Call(b.Ref(loop.Ref(), a.Param(0)))
	b.Call(a.Ref(loop.Ref(), b.Param(0)))
	main := c.game.Type("Game.Program").Method("Main", "")
	main.Call(b.Ref(loop.Ref(), int32Ref))

	res := c.resolve(t, Options{})
	wantNames(t, res, "Game.Job`1<System.Int32>")
	if res.Stats.Revisits == 0 {
		t.Fatalf("expected the cycle to be cut by a revisit, stats=%+v", res.Stats)
	}
}

func TestResolveDepthLimitsPolymorphicRecursion(t *testing.T) {
	c := newCorpus()
	rec := c.game.Type("Game.Rec")
	grow := rec.Method("Grow", "", "T")
	c.spawn(grow, grow.Param(0))
	grow.Call(grow.Ref(rec.Ref(), meta.Inst("Game.Box`1", grow.Param(0))))
	main := c.game.Type("Game.Program").Method("Main", "")
	main.Call(grow.Ref(rec.Ref(), int32Ref))

	res := c.resolve(t, Options{MaxDepth: 3})
	wantNames(t, res,
		"Game.Job`1<Game.Box`1<Game.Box`1<System.Int32>>>",
		"Game.Job`1<Game.Box`1<System.Int32>>",
		"Game.Job`1<System.Int32>",
	)
	if res.Stats.DepthLimited != 1 {
		t.Fatalf("depth limited: got=%d want=1", res.Stats.DepthLimited)
	}
}

func TestResolveDropsUncalledMethods(t *testing.T) {
	c := newCorpus()
	orphan := c.game.Type("Game.Orphan").Method("Spawn", "", "U")
	c.spawn(orphan, orphan.Param(0))

	res := c.resolve(t, Options{})
	if len(res.Instances) != 0 {
		t.Fatalf("expected no instances, got %q", names(res))
	}
	if res.Stats.Seeds != 1 || res.Stats.DeadEnds != 1 {
		t.Fatalf("stats: %+v", res.Stats)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	build := func() *corpus {
		c := newCorpus()
		sched := c.game.Type("Game.Scheduler")
		run := sched.Method("Run", "", "U")
		c.spawn(run, run.Param(0))
		c.spawn(run, meta.ArrayOf(run.Param(0)))
		prog := c.game.Type("Game.Program")
		prog.Method("Z", "").Call(run.Ref(sched.Ref(), stringRef))
		prog.Method("A", "").Call(run.Ref(sched.Ref(), int32Ref))
		return c
	}
	first := build().resolve(t, Options{})
	for i := 0; i < 5; i++ {
		again := build().resolve(t, Options{})
		if !slices.Equal(names(first), names(again)) {
			t.Fatalf("order changed:\n%q\n%q", names(first), names(again))
		}
	}
	if len(first.Instances) != 4 {
		t.Fatalf("instances: got=%q", names(first))
	}
}

func TestResolveHonorsCancellation(t *testing.T) {
	c := newCorpus()
	run := c.game.Type("Game.Scheduler").Method("Run", "", "U")
	c.spawn(run, run.Param(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.resolveCtx(ctx, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type countingRecorder struct{ n int }

func (r *countingRecorder) RecordInstantiation(string, types.TypeID, []types.TypeID, UseSite) { r.n++ }

func TestResolveForwardsToRecorder(t *testing.T) {
	c := newCorpus()
	sched := c.game.Type("Game.Scheduler")
	run := sched.Method("Run", "", "U")
	c.spawn(run, run.Param(0))
	main := c.game.Type("Game.Program").Method("Main", "")
	main.Call(run.Ref(sched.Ref(), int32Ref)).Call(run.Ref(sched.Ref(), int32Ref))

	var rec countingRecorder
	res := c.resolve(t, Options{Recorder: &rec})
	if rec.n != 2 || len(res.Instances) != 1 {
		t.Fatalf("recorder saw %d records for %d instances", rec.n, len(res.Instances))
	}
}
