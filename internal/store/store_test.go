package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"jobmono/internal/meta"
	"jobmono/internal/testkit"
)

func writeModule(t *testing.T, dir, name string, refs ...string) string {
	t.Helper()
	b := testkit.NewModule(name, refs...)
	b.Type(name + ".Thing")
	path, err := b.WriteTo(dir, nil)
	if err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func moduleNames(s *Store) []string {
	var out []string
	for _, m := range s.Modules() {
		out = append(out, m.Name)
	}
	return out
}

func TestOpenSelectsByHints(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "Game.Jobs")
	writeModule(t, dir, "Game.UI")
	writeModule(t, dir, "Engine.Jobs")

	s, err := Open(context.Background(), Options{Search: []string{dir}, Hints: []string{"Jobs"}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if got, want := moduleNames(s), []string{"Engine.Jobs", "Game.Jobs"}; !slices.Equal(got, want) {
		t.Fatalf("included: got=%v want=%v", got, want)
	}

	ex, err := Open(context.Background(), Options{Search: []string{dir}, Hints: []string{"Jobs"}, Exclude: true})
	if err != nil {
		t.Fatalf("open exclude: %v", err)
	}
	defer ex.Close()
	if got, want := moduleNames(ex), []string{"Game.UI"}; !slices.Equal(got, want) {
		t.Fatalf("excluded: got=%v want=%v", got, want)
	}
}

func TestOpenDeduplicatesByPathAndName(t *testing.T) {
	dir := t.TempDir()
	p := writeModule(t, dir, "Game")
	other := filepath.Join(t.TempDir(), "copy")
	if err := os.MkdirAll(other, 0o755); err != nil {
		t.Fatal(err)
	}
	writeModule(t, other, "Game")

	s, err := Open(context.Background(), Options{
		Paths:  []string{p, filepath.Join(dir, ".", filepath.Base(p))},
		Search: []string{dir, other},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	mods := s.Modules()
	if len(mods) != 1 || mods[0].Path != p {
		t.Fatalf("expected one module from %s, got %v", p, moduleNames(s))
	}
}

func TestOpenSkipsBrokenCandidates(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "Good")
	broken := filepath.Join(dir, "Broken"+meta.Ext)
	if err := os.WriteFile(broken, []byte{0xc1}, 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Open(context.Background(), Options{Search: []string{dir}})
	if err != nil {
		t.Fatalf("a broken candidate among many should be skipped: %v", err)
	}
	defer s.Close()
	if got := moduleNames(s); !slices.Equal(got, []string{"Good"}) {
		t.Fatalf("modules: got=%v", got)
	}

	_, err = Open(context.Background(), Options{Paths: []string{broken}})
	var lerr *LoadError
	if !errors.As(err, &lerr) || lerr.Path != broken {
		t.Fatalf("sole broken input should fail with LoadError, got %v", err)
	}
}

func TestOpenResolvesReferences(t *testing.T) {
	dir := t.TempDir()
	app := writeModule(t, dir, "App", "Game", "System.Runtime")
	writeModule(t, dir, "Game", "Jobs")
	writeModule(t, dir, "Jobs")
	writeModule(t, dir, "Unrelated")

	s, err := Open(context.Background(), Options{Paths: []string{app}, Search: []string{dir}, Hints: []string{"App"}, ResolveReferences: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if got, want := moduleNames(s), []string{"App", "Game", "Jobs"}; !slices.Equal(got, want) {
		t.Fatalf("modules: got=%v want=%v", got, want)
	}
}

func TestAddWriteAndClose(t *testing.T) {
	dir := t.TempDir()
	p := writeModule(t, dir, "Target")
	s, err := Open(context.Background(), Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	m, err := s.Add(context.Background(), p)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	again, err := s.Add(context.Background(), p)
	if err != nil || again != m {
		t.Fatalf("second add should return the open module, got %p err=%v", again, err)
	}
	if _, ok := s.Lookup("Target"); !ok {
		t.Fatalf("lookup by name failed")
	}

	m.Types = append(m.Types, meta.TypeDef{Name: "Target.Added"})
	if err := s.Write(m, meta.WriteOptions{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	back, err := meta.Read(p)
	if err != nil || back.FindType("Target.Added") == nil {
		t.Fatalf("written module lost the new type: err=%v", err)
	}

	if err := s.Write(&meta.Module{Name: "Foreign", Path: filepath.Join(dir, "Foreign"+meta.Ext)}, meta.WriteOptions{}); err == nil {
		t.Fatalf("writing a module the store does not own should fail")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if len(s.Modules()) != 0 {
		t.Fatalf("closed store still lists modules")
	}
	if _, err := s.Add(context.Background(), p); !errors.Is(err, ErrClosed) {
		t.Fatalf("add after close: got %v", err)
	}
}
