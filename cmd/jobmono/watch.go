package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"jobmono/internal/driver"
	"jobmono/internal/meta"
	"jobmono/internal/trace"
	"jobmono/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [flags] [module.mod.mp...]",
	Short: "Re-resolve (and optionally emit) whenever input modules change",
	RunE:  runWatch,
}

func init() {
	addAnalysisFlags(watchCmd)
	watchCmd.Flags().String("target", "", "module file receiving the synthesized types (default: resolve only)")
	watchCmd.Flags().String("group", "", "namespace of the synthesized types")
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period before a change batch is processed")
}

func runWatch(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	debounce, err := cmd.Flags().GetDuration("debounce")
	if err != nil {
		return fmt.Errorf("failed to get debounce flag: %w", err)
	}

	s, err := startSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()
	defer dumpTraceOnPanic(trace.FromContext(cmd.Context()))

	req, err := s.request(args, func(req *driver.Request) error {
		f := cmd.Flags()
		if f.Changed("target") {
			if req.Target, err = f.GetString("target"); err != nil {
				return fmt.Errorf("failed to get target flag: %w", err)
			}
		}
		if f.Changed("group") {
			if req.Group, err = f.GetString("group"); err != nil {
				return fmt.Errorf("failed to get group flag: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	opts := watch.Options{
		Dirs:     req.Store.Search,
		Files:    req.Store.Paths,
		Debounce: debounce,
	}
	if req.Target != "" {
		opts.Ignore = []string{req.Target}
	}
	w, err := watch.New(opts)
	if err != nil {
		return err
	}
	defer w.Close()

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	var last meta.Digest
	pass := func(reason string) {
		fmt.Fprintln(errOut, siteColor.Sprintf("[%s] %s", time.Now().Format(time.TimeOnly), reason))
		res, err := s.run(req)
		if err != nil {
			// Keep watching; the next change triggers another pass.
			fmt.Fprintf(errOut, "error: %v\n", err)
			return
		}
		if !res.Inputs.IsZero() && res.Inputs == last {
			fmt.Fprintln(errOut, siteColor.Sprintf("inputs unchanged (%s)", res.Inputs.Short()))
			return
		}
		last = res.Inputs
		if format == "json" {
			if err := renderJSON(out, res, false); err != nil {
				fmt.Fprintf(errOut, "error: %v\n", err)
			}
			return
		}
		if res.Report != nil {
			printReport(out, res.Report)
			return
		}
		printInstances(out, res.Resolved, res.ScanStats, len(res.Calls))
	}

	pass("initial run")
	err = w.Run(cmd.Context(), func(_ context.Context, changed []string) error {
		pass(fmt.Sprintf("%d changed: %s", len(changed), changed[0]))
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
