package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"jobmono/internal/driver"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [flags] [module.mod.mp...]",
	Short: "Print every concrete instantiation of generic jobs",
	RunE:  runResolve,
}

var emitCmd = &cobra.Command{
	Use:   "emit [flags] [module.mod.mp...]",
	Short: "Write closed job types into a target module",
	Long: `emit resolves every generic job instantiation and injects one closed type per
instantiation into the target module. Types from an earlier emit into the same
group are replaced.`,
	RunE: runEmit,
}

var callsCmd = &cobra.Command{
	Use:   "calls [flags] [module.mod.mp...]",
	Short: "Print generic job calls whose arguments are still open",
	RunE:  runCalls,
}

func init() {
	addAnalysisFlags(resolveCmd)
	addAnalysisFlags(emitCmd)
	addAnalysisFlags(callsCmd)
	emitCmd.Flags().String("target", "", "module file receiving the synthesized types")
	emitCmd.Flags().String("group", "", "namespace of the synthesized types")
}

func runResolve(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	out, err := runPipeline(cmd, args, func(req *driver.Request) error {
		req.Target = ""
		return nil
	})
	if err != nil {
		return err
	}
	if format == "json" {
		return renderJSON(cmd.OutOrStdout(), out, false)
	}
	printInstances(cmd.OutOrStdout(), out.Resolved, out.ScanStats, len(out.Calls))
	return nil
}

func runEmit(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	out, err := runPipeline(cmd, args, func(req *driver.Request) error {
		f := cmd.Flags()
		if f.Changed("target") {
			target, err := f.GetString("target")
			if err != nil {
				return fmt.Errorf("failed to get target flag: %w", err)
			}
			req.Target = target
		}
		if f.Changed("group") {
			group, err := f.GetString("group")
			if err != nil {
				return fmt.Errorf("failed to get group flag: %w", err)
			}
			req.Group = group
		}
		if req.Target == "" {
			return errors.New("emit needs a target module: pass --target or set output.target")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if format == "json" {
		return renderJSON(cmd.OutOrStdout(), out, false)
	}
	printReport(cmd.OutOrStdout(), out.Report)
	return nil
}

func runCalls(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	out, err := runPipeline(cmd, args, func(req *driver.Request) error {
		req.Target = ""
		req.CallsOnly = true
		return nil
	})
	if err != nil {
		return err
	}
	if format == "json" {
		return renderJSON(cmd.OutOrStdout(), out, true)
	}
	printCalls(cmd.OutOrStdout(), out.Calls)
	return nil
}
