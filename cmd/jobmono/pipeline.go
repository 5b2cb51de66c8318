package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"jobmono/internal/driver"
	"jobmono/internal/meta"
	"jobmono/internal/mono"
	"jobmono/internal/store"
	"jobmono/internal/synth"
	"jobmono/internal/trace"
)

// addAnalysisFlags registers the flags shared by every pipeline command. Flags
// that are set override the config file.
func addAnalysisFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSlice("hint", nil, "select searched modules whose name contains this text (repeatable)")
	f.Bool("exclude", false, "select searched modules that match no hint instead")
	f.StringSlice("search", nil, "directory searched for *"+meta.Ext+" files (repeatable)")
	f.String("marker", "", "job producer attribute (default "+driver.DefaultMarker+")")
	f.Bool("resolve-references", false, "also open referenced modules found in the search directories")
	f.Int("max-depth", mono.DefaultMaxDepth, "max call depth traced from one open job call")
	f.Int("jobs", 0, "max parallel workers (0=auto)")
	f.String("format", "pretty", "output format (pretty|json)")
}

// buildRequest merges the config file, the flags and the module arguments.
func buildRequest(cmd *cobra.Command, args []string) (driver.Request, error) {
	cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return driver.Request{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return driver.Request{}, err
	}
	a := cfg.Analysis
	f := cmd.Flags()

	if f.Changed("hint") {
		if a.Hints, err = f.GetStringSlice("hint"); err != nil {
			return driver.Request{}, err
		}
	}
	if f.Changed("exclude") {
		if a.Exclude, err = f.GetBool("exclude"); err != nil {
			return driver.Request{}, err
		}
	}
	if f.Changed("search") {
		if a.Search, err = f.GetStringSlice("search"); err != nil {
			return driver.Request{}, err
		}
	}
	if f.Changed("marker") {
		if a.Marker, err = f.GetString("marker"); err != nil {
			return driver.Request{}, err
		}
	}
	if f.Changed("resolve-references") {
		if a.ResolveReferences, err = f.GetBool("resolve-references"); err != nil {
			return driver.Request{}, err
		}
	}
	if f.Changed("max-depth") || a.MaxDepth == 0 {
		if a.MaxDepth, err = f.GetInt("max-depth"); err != nil {
			return driver.Request{}, err
		}
	}
	if f.Changed("jobs") {
		if a.Jobs, err = f.GetInt("jobs"); err != nil {
			return driver.Request{}, err
		}
	}
	if a.MaxDepth <= 0 {
		return driver.Request{}, fmt.Errorf("--max-depth must be positive, got %d", a.MaxDepth)
	}

	paths := append(a.Paths, args...)
	if len(paths) == 0 && len(a.Search) == 0 {
		return driver.Request{}, errors.New("no modules: pass module files or --search (or set them in " + configFileName + ")")
	}

	return driver.Request{
		Store: store.Options{
			Paths:             paths,
			Search:            a.Search,
			Hints:             a.Hints,
			Exclude:           a.Exclude,
			ResolveReferences: a.ResolveReferences,
			Jobs:              a.Jobs,
		},
		Analysis: driver.Options{
			Marker:   a.Marker,
			MaxDepth: a.MaxDepth,
			Jobs:     a.Jobs,
		},
		Target: cfg.Output.Target,
		Group:  cfg.Output.Group,
	}, nil
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return "", fmt.Errorf("failed to get format flag: %w", err)
	}
	format = strings.ToLower(format)
	switch format {
	case "pretty", "json":
		return format, nil
	default:
		return "", fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
}

func configureColor(cmd *cobra.Command) error {
	colorFlag, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	switch colorFlag {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", colorFlag)
	}
	return nil
}

// session holds the per-process setup shared by every pipeline run of one
// command: tracing, profiling, color and the timing flags.
type session struct {
	cmd         *cobra.Command
	cleanups    []func()
	showTimings bool
	progress    bool
}

func startSession(cmd *cobra.Command) (*session, error) {
	s := &session{cmd: cmd}
	stopTracing, err := setupTracing(cmd)
	if err != nil {
		return nil, err
	}
	s.cleanups = append(s.cleanups, stopTracing)

	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		s.close()
		return nil, err
	}
	s.cleanups = append(s.cleanups, stopProfiling)

	if err := configureColor(cmd); err != nil {
		s.close()
		return nil, err
	}
	pf := cmd.Root().PersistentFlags()
	if s.showTimings, err = pf.GetBool("timings"); err != nil {
		s.close()
		return nil, fmt.Errorf("failed to get timings flag: %w", err)
	}
	if s.progress, err = pf.GetBool("progress"); err != nil {
		s.close()
		return nil, fmt.Errorf("failed to get progress flag: %w", err)
	}
	return s, nil
}

// close runs the cleanups in reverse order.
func (s *session) close() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
	s.cleanups = nil
}

// request builds the request for args and lets configure adjust it.
func (s *session) request(args []string, configure func(*driver.Request) error) (driver.Request, error) {
	req, err := buildRequest(s.cmd, args)
	if err != nil {
		return driver.Request{}, err
	}
	if configure != nil {
		if err := configure(&req); err != nil {
			return driver.Request{}, err
		}
	}
	if req.Group == "" {
		req.Group = synth.DefaultGroup
	}
	return req, nil
}

func (s *session) run(req driver.Request) (*driver.Outcome, error) {
	if s.progress {
		req.Analysis.Observer = phaseLogger(s.cmd.ErrOrStderr())
	}
	// Every run gets its own timer.
	req.Analysis.Timer = nil
	out, err := driver.Run(s.cmd.Context(), req)
	if err != nil {
		return nil, err
	}
	if s.showTimings {
		printTimings(s.cmd.ErrOrStderr(), out.Timings)
	}
	return out, nil
}

// runPipeline runs a single request inside a fresh session.
func runPipeline(cmd *cobra.Command, args []string, configure func(*driver.Request) error) (*driver.Outcome, error) {
	s, err := startSession(cmd)
	if err != nil {
		return nil, err
	}
	defer s.close()
	defer dumpTraceOnPanic(trace.FromContext(cmd.Context()))

	req, err := s.request(args, configure)
	if err != nil {
		return nil, err
	}
	return s.run(req)
}
