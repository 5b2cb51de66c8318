package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

const configFileName = "jobmono.toml"

type fileConfig struct {
	Analysis analysisConfig `toml:"analysis"`
	Output   outputConfig   `toml:"output"`
}

type analysisConfig struct {
	Hints             []string `toml:"hints"`
	Exclude           bool     `toml:"exclude"`
	Paths             []string `toml:"paths"`
	Search            []string `toml:"search"`
	Marker            string   `toml:"marker"`
	ResolveReferences bool     `toml:"resolve_references"`
	MaxDepth          int      `toml:"max_depth"`
	Jobs              int      `toml:"jobs"`
}

type outputConfig struct {
	Target string `toml:"target"`
	Group  string `toml:"group"`
}

func findConfig(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, configFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// loadConfig decodes path and rebases relative paths on its directory. An
// explicitly named file must exist; otherwise a missing file yields defaults.
func loadConfig(path string) (fileConfig, error) {
	explicit := path != ""
	if !explicit {
		found, ok, err := findConfig(".")
		if err != nil || !ok {
			return fileConfig{}, err
		}
		path = found
	}

	var cfg fileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return fileConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("analysis") {
		return fileConfig{}, fmt.Errorf("%s: missing [analysis] section", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fileConfig{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("analysis", "max_depth") && cfg.Analysis.MaxDepth <= 0 {
		return fileConfig{}, fmt.Errorf("%s: analysis.max_depth must be positive", path)
	}

	base := filepath.Dir(path)
	rebase := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	cfg.Analysis.Paths = mapStrings(cfg.Analysis.Paths, rebase)
	cfg.Analysis.Search = mapStrings(cfg.Analysis.Search, rebase)
	cfg.Output.Target = rebase(cfg.Output.Target)
	return cfg, nil
}

func mapStrings(in []string, f func(string) string) []string {
	out := slices.Clone(in)
	for i := range out {
		out[i] = f(out[i])
	}
	return out
}
