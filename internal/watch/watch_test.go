package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"jobmono/internal/meta"
)

var errStop = errors.New("stop")

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte{0x80}, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// collect runs w until the first batch and returns it.
func collect(t *testing.T, w *Watcher, act func()) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var got []string
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, changed []string) error {
			got = changed
			return errStop
		})
	}()
	// Give the event loop a moment before producing events.
	time.Sleep(50 * time.Millisecond)
	act()

	if err := <-done; !errors.Is(err, errStop) {
		t.Fatalf("Run returned %v, want errStop", err)
	}
	return got
}

func TestRunBatchesModuleChanges(t *testing.T) {
	dir, err := filepath.Abs(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	w, err := New(Options{Dirs: []string{dir}, Debounce: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	game := filepath.Join(dir, "Game"+meta.Ext)
	core := filepath.Join(dir, "Core"+meta.Ext)
	got := collect(t, w, func() {
		touch(t, filepath.Join(dir, "notes.txt"))
		touch(t, game)
		touch(t, core)
		touch(t, game)
	})
	want := []string{core, game}
	if !slices.Equal(got, want) {
		t.Fatalf("batch = %v, want %v", got, want)
	}
}

func TestRunSkipsIgnoredAndUnlistedFiles(t *testing.T) {
	dir, err := filepath.Abs(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	game := filepath.Join(dir, "Game"+meta.Ext)
	target := filepath.Join(dir, "Jobs"+meta.Ext)
	w, err := New(Options{
		Files:    []string{game, target},
		Ignore:   []string{target},
		Debounce: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	got := collect(t, w, func() {
		touch(t, target)
		touch(t, filepath.Join(dir, "Other"+meta.Ext))
		touch(t, meta.SymbolsPath(game))
	})
	want := []string{meta.SymbolsPath(game)}
	if !slices.Equal(got, want) {
		t.Fatalf("batch = %v, want %v", got, want)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	w, err := New(Options{Dirs: []string{t.TempDir()}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx, func(context.Context, []string) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

func TestNewRequiresSomething(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error with nothing to watch")
	}
}

func TestNewAddsNestedDirs(t *testing.T) {
	dir, err := filepath.Abs(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	w, err := New(Options{Dirs: []string{dir}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	want := []string{dir, filepath.Join(dir, "a"), nested}
	if got := w.Watching(); !slices.Equal(got, want) {
		t.Fatalf("Watching = %v, want %v", got, want)
	}
}
