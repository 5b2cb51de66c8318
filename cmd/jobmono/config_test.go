package main

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, configFileName)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigRebasesPaths(t *testing.T) {
	path := writeConfig(t, `# analysis settings
[analysis]
paths = ["build/Game.mod.mp", "/abs/Core.mod.mp"]
search = ["build"]
hints = ["Game"]
max_depth = 12

[output]
target = "build/Jobs.mod.mp"
group = "Demo.Jobs"
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	base := filepath.Dir(path)
	wantPaths := []string{filepath.Join(base, "build/Game.mod.mp"), "/abs/Core.mod.mp"}
	if !slices.Equal(cfg.Analysis.Paths, wantPaths) {
		t.Fatalf("paths = %v, want %v", cfg.Analysis.Paths, wantPaths)
	}
	if got := cfg.Analysis.Search; len(got) != 1 || got[0] != filepath.Join(base, "build") {
		t.Fatalf("search = %v", got)
	}
	if cfg.Analysis.MaxDepth != 12 || cfg.Output.Group != "Demo.Jobs" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Output.Target != filepath.Join(base, "build/Jobs.mod.mp") {
		t.Fatalf("target = %q", cfg.Output.Target)
	}
}

func TestLoadConfigRejectsBadFiles(t *testing.T) {
	cases := []struct {
		name string
		data string
		want string
	}{
		{"no analysis", "[output]\ngroup = \"x\"\n", "missing [analysis]"},
		{"unknown key", "[analysis]\nhint = [\"x\"]\n", "unknown keys"},
		{"bad depth", "[analysis]\nmax_depth = 0\n", "max_depth"},
		{"syntax", "[analysis\n", "failed to parse TOML"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, tc.data))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("loadConfig error = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestLoadConfigExplicitMissing(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), configFileName)); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestFindConfigWalksUp(t *testing.T) {
	path := writeConfig(t, "[analysis]\n")
	nested := filepath.Join(filepath.Dir(path), "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	got, ok, err := findConfig(nested)
	if err != nil || !ok {
		t.Fatalf("findConfig: ok=%v err=%v", ok, err)
	}
	if got != path {
		t.Fatalf("findConfig = %q, want %q", got, path)
	}
}

func testCommand(t *testing.T, configPath string) *cobra.Command {
	t.Helper()
	root := &cobra.Command{Use: "jobmono"}
	root.PersistentFlags().String("config", configPath, "")
	child := &cobra.Command{Use: "resolve"}
	addAnalysisFlags(child)
	root.AddCommand(child)
	return child
}

func TestBuildRequestFlagsOverrideConfig(t *testing.T) {
	path := writeConfig(t, `[analysis]
paths = ["Game.mod.mp"]
hints = ["Game"]
max_depth = 12
`)
	cmd := testCommand(t, path)
	if err := cmd.Flags().Set("hint", "Core"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("marker", "My.Marker"); err != nil {
		t.Fatal(err)
	}

	req, err := buildRequest(cmd, []string{"Extra.mod.mp"})
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if !slices.Equal(req.Store.Hints, []string{"Core"}) {
		t.Fatalf("hints = %v, want [Core]", req.Store.Hints)
	}
	wantPaths := []string{filepath.Join(filepath.Dir(path), "Game.mod.mp"), "Extra.mod.mp"}
	if !slices.Equal(req.Store.Paths, wantPaths) {
		t.Fatalf("paths = %v, want %v", req.Store.Paths, wantPaths)
	}
	if req.Analysis.MaxDepth != 12 || req.Analysis.Marker != "My.Marker" {
		t.Fatalf("analysis = %+v", req.Analysis)
	}
}

func TestBuildRequestNeedsModules(t *testing.T) {
	cmd := testCommand(t, writeConfig(t, "[analysis]\n"))
	if _, err := buildRequest(cmd, nil); err == nil || !strings.Contains(err.Error(), "no modules") {
		t.Fatalf("buildRequest error = %v, want no modules", err)
	}
}

func TestBuildRequestRejectsDepth(t *testing.T) {
	cmd := testCommand(t, writeConfig(t, "[analysis]\n"))
	if err := cmd.Flags().Set("max-depth", "-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := buildRequest(cmd, []string{"a.mod.mp"}); err == nil {
		t.Fatal("expected error for negative depth")
	}
}
