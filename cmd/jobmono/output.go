package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"jobmono/internal/driver"
	"jobmono/internal/mono"
	"jobmono/internal/observ"
	"jobmono/internal/scan"
	"jobmono/internal/synth"
)

var (
	typeColor  = color.New(color.FgCyan, color.Bold)
	siteColor  = color.New(color.FgHiBlack)
	countColor = color.New(color.FgYellow)
	okColor    = color.New(color.FgGreen, color.Bold)
)

// column pads s to width terminal cells.
func column(s string, width int) string {
	return runewidth.FillRight(s, width)
}

func widest(items []string) int {
	w := 0
	for _, s := range items {
		w = max(w, runewidth.StringWidth(s))
	}
	return w
}

func printInstances(out io.Writer, res *mono.Result, stats scan.Stats, calls int) {
	names := make([]string, len(res.Instances))
	for i, inst := range res.Instances {
		names[i] = inst.Name
	}
	width := widest(names)
	for _, inst := range res.Instances {
		via := make([]string, 0, len(inst.UseSites))
		for _, s := range inst.UseSites {
			via = append(via, string(s.Caller))
		}
		fmt.Fprintf(out, "%s  %s  %s\n",
			typeColor.Sprint(column(inst.Name, width)),
			countColor.Sprintf("%2d", len(inst.UseSites)),
			siteColor.Sprint("via "+strings.Join(via, ", ")))
	}
	fmt.Fprintf(out, "%s from %d open job calls (%d modules, %d methods, %d skipped, %d dead ends)\n",
		okColor.Sprintf("%d instantiations", len(res.Instances)),
		calls, stats.Modules, stats.Methods, stats.Skipped, res.Stats.DeadEnds)
}

func printCalls(out io.Writer, calls []scan.CallReference) {
	types := make([]string, len(calls))
	entries := make([]string, len(calls))
	for i, c := range calls {
		types[i] = c.Type.String()
		entries[i] = string(c.Entry)
	}
	tw, ew := widest(types), widest(entries)
	for i, c := range calls {
		fmt.Fprintf(out, "%s  %-9s %s  %s\n",
			typeColor.Sprint(column(types[i], tw)),
			c.Op,
			column(entries[i], ew),
			siteColor.Sprintf("@%04x [%s]", c.Offset, c.Module))
	}
	fmt.Fprintln(out, okColor.Sprintf("%d open job calls", len(calls)))
}

func printReport(out io.Writer, rep *synth.Report) {
	fmt.Fprintf(out, "%s to %s (replaced %d)\n",
		okColor.Sprintf("wrote %d types", len(rep.Types)), rep.Target, rep.Replaced)
	for _, name := range rep.Types {
		fmt.Fprintf(out, "  %s\n", typeColor.Sprint(name))
	}
}

type instancePayload struct {
	Entity   string        `json:"entity"`
	Name     string        `json:"name"`
	Args     []string      `json:"args"`
	UseSites []sitePayload `json:"use_sites"`
}

type sitePayload struct {
	Caller string `json:"caller"`
	Root   string `json:"root"`
	Offset uint32 `json:"offset"`
	Depth  int    `json:"depth"`
}

type callPayload struct {
	Type   string `json:"type"`
	Entity string `json:"entity"`
	Entry  string `json:"entry"`
	Module string `json:"module"`
	Op     string `json:"op"`
	Offset uint32 `json:"offset"`
}

type outcomePayload struct {
	RunID     string            `json:"run_id"`
	Inputs    string            `json:"inputs"`
	Instances []instancePayload `json:"instances,omitempty"`
	Calls     []callPayload     `json:"calls,omitempty"`
	Scan      scan.Stats        `json:"scan"`
	Resolve   *mono.Stats       `json:"resolve,omitempty"`
	Report    *synth.Report     `json:"report,omitempty"`
	Timings   *observ.Report    `json:"timings,omitempty"`
}

func renderJSON(out io.Writer, o *driver.Outcome, withCalls bool) error {
	payload := outcomePayload{RunID: o.RunID, Inputs: o.Inputs.String(), Scan: o.ScanStats, Report: o.Report}
	if o.Resolved != nil {
		payload.Resolve = &o.Resolved.Stats
		for _, inst := range o.Resolved.Instances {
			p := instancePayload{Entity: inst.Entity, Name: inst.Name}
			for _, a := range inst.Args {
				p.Args = append(p.Args, a.String())
			}
			for _, s := range inst.UseSites {
				p.UseSites = append(p.UseSites, sitePayload{Caller: string(s.Caller), Root: string(s.Root), Offset: s.Offset, Depth: s.Depth})
			}
			payload.Instances = append(payload.Instances, p)
		}
	}
	if withCalls {
		for _, c := range o.Calls {
			payload.Calls = append(payload.Calls, callPayload{
				Type: c.Type.String(), Entity: c.Entity, Entry: string(c.Entry),
				Module: c.Module, Op: c.Op.String(), Offset: c.Offset,
			})
		}
	}
	if len(o.Timings.Phases) > 0 {
		payload.Timings = &o.Timings
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func printTimings(out io.Writer, report observ.Report) {
	names := make([]string, len(report.Phases))
	for i, p := range report.Phases {
		names[i] = p.Name
	}
	width := max(widest(names), len("total"))
	for _, p := range report.Phases {
		fmt.Fprintf(out, "%s %9.2f ms", column(p.Name, width), p.DurationMS)
		if p.Note != "" {
			fmt.Fprint(out, siteColor.Sprint("  "+p.Note))
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "%s %9.2f ms\n", column("total", width), report.TotalMS)
}

// phaseLogger prints a line per finished phase.
func phaseLogger(out io.Writer) driver.PhaseObserver {
	return func(ev driver.PhaseEvent) {
		if ev.Status != driver.PhaseEnd {
			return
		}
		fmt.Fprintf(out, "%s %.1f ms\n", ev.Name, toMillis(ev.Elapsed))
	}
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
