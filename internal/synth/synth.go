// Package synth injects one closed type per resolved job instantiation into a
// target module, so an ahead-of-time compiler sees every instantiation it must
// generate code for.
package synth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"jobmono/internal/index"
	"jobmono/internal/meta"
	"jobmono/internal/mono"
	"jobmono/internal/trace"
)

const (
	// Attribute marks every synthesized type.
	Attribute = "jobmono.Synthetic"
	// DefaultGroup is the namespace synthesized types live in.
	DefaultGroup = "JobMono.Generated"
)

// SynthesisError reports a failure to build or persist synthesized types.
type SynthesisError struct {
	Target string
	Op     string
	Err    error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize %s: %s: %v", e.Target, e.Op, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Store is the part of the module store synthesis needs.
type Store interface {
	Add(ctx context.Context, path string) (*meta.Module, error)
	Write(m *meta.Module, opts meta.WriteOptions) error
}

// Report describes one synthesis.
type Report struct {
	Target   string
	Types    []string
	Replaced int
}

// Name returns the synthesized type name for inst within group. The hash
// suffix keeps distinct instantiations apart after mangling.
func Name(group string, inst mono.Instance) string {
	digest := meta.DigestOf([]byte(inst.Entity + "|" + inst.Key()))
	return group + "." + mangle(inst.Name) + "_" + digest.Short()[:8]
}

func mangle(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	under := false
	for _, r := range s {
		ok := r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
		if !ok {
			if !under && b.Len() > 0 {
				b.WriteByte('_')
			}
			under = true
			continue
		}
		b.WriteRune(r)
		under = false
	}
	return strings.TrimRight(b.String(), "_")
}

// Synthesize replaces every synthesized type of group in target with one type
// per instance and returns the new definitions sorted by name. Each type
// derives from the closed job type. When ix knows the generic definition and
// its module carries symbols, the new type is located at the definition.
func Synthesize(target *meta.Module, group string, instances []mono.Instance, ix *index.Index) ([]meta.TypeDef, int, error) {
	if target == nil {
		return nil, 0, &SynthesisError{Op: "inject", Err: errors.New("no target module")}
	}
	if group == "" {
		group = DefaultGroup
	}
	prefix := group + "."
	owned := func(td *meta.TypeDef) bool {
		return td.Synthetic && td.HasAttribute(Attribute) && strings.HasPrefix(td.Name, prefix)
	}

	defs := make([]meta.TypeDef, 0, len(instances))
	names := make(map[string]struct{}, len(instances))
	for _, inst := range instances {
		if inst.Type.HasParams() {
			return nil, 0, &SynthesisError{Target: target.Path, Op: "inject", Err: fmt.Errorf("%s is not closed", inst.Name)}
		}
		name := Name(group, inst)
		if _, dup := names[name]; dup {
			continue
		}
		names[name] = struct{}{}
		base := inst.Type
		defs = append(defs, meta.TypeDef{
			Name:       name,
			BaseType:   &base,
			Attributes: []string{Attribute},
			Synthetic:  true,
		})
	}
	slices.SortFunc(defs, func(a, b meta.TypeDef) int { return strings.Compare(a.Name, b.Name) })

	for i := range target.Types {
		td := &target.Types[i]
		if _, clash := names[td.Name]; clash && !owned(td) {
			return nil, 0, &SynthesisError{Target: target.Path, Op: "inject", Err: fmt.Errorf("type %s already declared", td.Name)}
		}
	}
	kept := target.Types[:0]
	removed := make(map[string]struct{})
	for i := range target.Types {
		if owned(&target.Types[i]) {
			removed[target.Types[i].Name] = struct{}{}
			continue
		}
		kept = append(kept, target.Types[i])
	}
	target.Types = append(kept, defs...)

	target.Symbols.Drop(func(typeName string) bool {
		_, ok := removed[typeName]
		return ok
	})
	for _, inst := range instances {
		loc, ok := sourceOf(ix, inst.Entity)
		if !ok {
			continue
		}
		if target.Symbols == nil {
			target.Symbols = &meta.Symbols{Schema: meta.Schema, Module: target.Name}
		}
		loc.Type = Name(group, inst)
		loc.Method = ""
		target.Symbols.Put(loc)
	}
	target.Symbols.Sort()
	return defs, len(removed), nil
}

func sourceOf(ix *index.Index, entity string) (meta.SymbolEntry, bool) {
	if ix == nil {
		return meta.SymbolEntry{}, false
	}
	td, ok := ix.Type(entity)
	if !ok || td.Module == nil {
		return meta.SymbolEntry{}, false
	}
	return td.Module.Symbols.Lookup(td.Name, "")
}

// Emit opens target through st, injects the synthesized types and writes the
// module back, with its symbols when it has any.
func Emit(ctx context.Context, st Store, ix *index.Index, target, group string, instances []mono.Instance) (*Report, error) {
	ctx, span := trace.Start(ctx, trace.ScopePass, "emit")
	m, err := st.Add(ctx, target)
	if err != nil {
		span.End("error")
		return nil, &SynthesisError{Target: target, Op: "open", Err: err}
	}
	defs, replaced, err := Synthesize(m, group, instances, ix)
	if err != nil {
		span.End("error")
		return nil, err
	}
	if err := st.Write(m, meta.WriteOptions{Symbols: m.Symbols != nil}); err != nil {
		span.End("error")
		return nil, &SynthesisError{Target: target, Op: "write", Err: err}
	}
	rep := &Report{Target: m.Path, Replaced: replaced}
	for _, d := range defs {
		rep.Types = append(rep.Types, d.Name)
	}
	span.WithExtra("types", fmt.Sprint(len(defs))).End("")
	return rep, nil
}
