// Package index builds the per-request type graph over a set of loaded modules.
//
// The index is immutable once Build returns and is shared read-only by the
// scanner goroutines and the resolver. It is not updated when synthesis later
// writes new types into a module.
package index

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"jobmono/internal/meta"
)

var (
	// ErrNotFound reports a missing type or method.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguous reports an overload set with no single best match. It wraps
	// ErrNotFound.
	ErrAmbiguous = fmt.Errorf("%w: ambiguous overload", ErrNotFound)
)

// Layer selects which identity namespace a name belongs to.
type Layer uint8

const (
	// LayerMetadata names types the way instructions reference them.
	LayerMetadata Layer = iota + 1
	// LayerRuntime names types the way reflection reports them.
	LayerRuntime
)

// Identity is a type name in one of the two layers.
type Identity struct {
	Layer Layer
	Name  string
}

// TypeDescriptor is the canonical view of one type definition.
type TypeDescriptor struct {
	Name        string
	RuntimeName string
	Module      *meta.Module
	Def         *meta.TypeDef
	Arity       int
	IsInterface bool

	// closure holds every interface implemented directly or transitively,
	// sorted by name. Filled by Build.
	closure []*TypeDescriptor
}


func (d *TypeDescriptor) String() string { return d.Name }

// MethodDescriptor is the canonical view of one method definition.
type MethodDescriptor struct {
	Key    meta.MethodKey
	Type   *TypeDescriptor
	Def    *meta.MethodDef
	Arity  int
	Module *meta.Module
}

func (m *MethodDescriptor) String() string { return string(m.Key) }

// ModuleIndex lists the descriptors declared by one module.
type ModuleIndex struct {
	Module *meta.Module
	Types  []*TypeDescriptor

	byRuntime map[string]*TypeDescriptor
}

// Index is the cross-module type graph.
type Index struct {
	modules    []*ModuleIndex
	byModule   map[*meta.Module]*ModuleIndex
	identities map[Identity]*TypeDescriptor
	methods    map[meta.MethodKey]*MethodDescriptor
	byName     map[string][]*MethodDescriptor // "Type::Name" -> overloads
}

// Canonical normalizes a type or method name for identity comparisons.
func Canonical(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// DefaultRuntimeName is the reflection identity used when a definition does
// not carry one.
func DefaultRuntimeName(typeName, module string) string {
	return typeName + ", " + module
}

// Build indexes mods in order. When two modules declare the same type name the
// first one wins.
func Build(mods []*meta.Module) *Index {
	ix := &Index{
		byModule:   make(map[*meta.Module]*ModuleIndex, len(mods)),
		identities: make(map[Identity]*TypeDescriptor),
		methods:    make(map[meta.MethodKey]*MethodDescriptor),
		byName:     make(map[string][]*MethodDescriptor),
	}
	for _, m := range mods {
		if m == nil {
			continue
		}
		if _, dup := ix.byModule[m]; dup {
			continue
		}
		mi := &ModuleIndex{
			Module:    m,
			Types:     make([]*TypeDescriptor, 0, len(m.Types)),
			byRuntime: make(map[string]*TypeDescriptor, len(m.Types)),
		}
		for i := range m.Types {
			def := &m.Types[i]
			name := Canonical(def.Name)
			runtime := def.RuntimeName
			if runtime == "" {
				runtime = DefaultRuntimeName(def.Name, m.Name)
			}
			td := &TypeDescriptor{
				Name:        name,
				RuntimeName: Canonical(runtime),
				Module:      m,
				Def:         def,
				Arity:       len(def.GenericParams),
				IsInterface: def.IsInterface,
			}
			mi.Types = append(mi.Types, td)
			mi.byRuntime[td.RuntimeName] = td
			ix.addIdentity(Identity{Layer: LayerMetadata, Name: td.Name}, td)
			ix.addIdentity(Identity{Layer: LayerRuntime, Name: td.RuntimeName}, td)
			ix.addMethods(td)
		}
		ix.modules = append(ix.modules, mi)
		ix.byModule[m] = mi
	}
	for _, mi := range ix.modules {
		for _, td := range mi.Types {
			td.closure = ix.interfaceClosure(td)
		}
	}
	return ix
}

func (ix *Index) addIdentity(id Identity, td *TypeDescriptor) {
	if _, ok := ix.identities[id]; !ok {
		ix.identities[id] = td
	}
}

func (ix *Index) addMethods(td *TypeDescriptor) {
	for i := range td.Def.Methods {
		def := &td.Def.Methods[i]
		key := meta.KeyOf(td.Name, Canonical(def.Name), Canonical(def.Signature))
		if _, ok := ix.methods[key]; ok {
			continue
		}
		md := &MethodDescriptor{
			Key:    key,
			Type:   td,
			Def:    def,
			Arity:  len(def.GenericParams),
			Module: td.Module,
		}
		ix.methods[key] = md
		overloads := td.Name + "::" + Canonical(def.Name)
		ix.byName[overloads] = append(ix.byName[overloads], md)
	}
}

// interfaceClosure walks base types and interface inheritance.
func (ix *Index) interfaceClosure(td *TypeDescriptor) []*TypeDescriptor {
	seen := make(map[*TypeDescriptor]struct{})
	var out []*TypeDescriptor
	var walk func(d *TypeDescriptor)
	walk = func(d *TypeDescriptor) {
		for _, ref := range d.Def.Interfaces {
			iface, ok := ix.Type(ref.DefName())
			if !ok {
				continue
			}
			if _, dup := seen[iface]; dup {
				continue
			}
			seen[iface] = struct{}{}
			out = append(out, iface)
			walk(iface)
		}
		if d.Def.BaseType != nil {
			if base, ok := ix.Type(d.Def.BaseType.DefName()); ok {
				if _, dup := seen[base]; !dup {
					seen[base] = struct{}{}
					walk(base)
				}
			}
		}
	}
	seen[td] = struct{}{}
	walk(td)
	slices.SortFunc(out, func(a, b *TypeDescriptor) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Modules returns the indexed modules in build order.
func (ix *Index) Modules() []*ModuleIndex { return ix.modules }

// Types returns the descriptors declared by m in declaration order.
func (ix *Index) Types(m *meta.Module) []*TypeDescriptor {
	if mi := ix.byModule[m]; mi != nil {
		return mi.Types
	}
	return nil
}

// Type looks up a definition by metadata name.
func (ix *Index) Type(name string) (*TypeDescriptor, bool) {
	if name == "" {
		return nil, false
	}
	td, ok := ix.identities[Identity{Layer: LayerMetadata, Name: Canonical(name)}]
	return td, ok
}

// Resolve maps an identity from either layer to its canonical descriptor.
func (ix *Index) Resolve(id Identity) (*TypeDescriptor, error) {
	id.Name = Canonical(id.Name)
	if td, ok := ix.identities[id]; ok {
		return td, nil
	}
	return nil, fmt.Errorf("type %q: %w", id.Name, ErrNotFound)
}

// RuntimeType cross-references a reflection identity with the descriptor
// declared by module m.
func (ix *Index) RuntimeType(m *meta.Module, runtimeName string) (*TypeDescriptor, error) {
	mi := ix.byModule[m]
	if mi == nil {
		return nil, fmt.Errorf("module %q: %w", moduleName(m), ErrNotFound)
	}
	if td, ok := mi.byRuntime[Canonical(runtimeName)]; ok {
		return td, nil
	}
	return nil, fmt.Errorf("runtime type %q in module %q: %w", runtimeName, m.Name, ErrNotFound)
}

// MethodByKey returns the method with exactly this identity.
func (ix *Index) MethodByKey(key meta.MethodKey) (*MethodDescriptor, bool) {
	md, ok := ix.methods[key]
	return md, ok
}

// Method finds name on td. Overloads are matched by exact signature, then by
// whitespace-insensitive signature, then by uniqueness of the name.
func (ix *Index) Method(td *TypeDescriptor, name, signature string) (*MethodDescriptor, error) {
	return ix.method(td, name, signature, -1)
}

func (ix *Index) method(td *TypeDescriptor, name, signature string, arity int) (*MethodDescriptor, error) {
	if td == nil {
		return nil, fmt.Errorf("method %q: nil type: %w", name, ErrNotFound)
	}
	name = Canonical(name)
	signature = Canonical(signature)
	if md, ok := ix.methods[meta.KeyOf(td.Name, name, signature)]; ok {
		return md, nil
	}

	var candidates []*MethodDescriptor
	for _, md := range ix.byName[td.Name+"::"+name] {
		if arity >= 0 && md.Arity != arity {
			continue
		}
		candidates = append(candidates, md)
	}
	if signature != "" {
		want := squash(signature)
		for _, md := range candidates {
			if squash(md.Def.Signature) == want {
				return md, nil
			}
		}
	}
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("method %s::%s(%s): %w", td.Name, name, signature, ErrNotFound)
	case 1:
		if signature == "" {
			return candidates[0], nil
		}
		return nil, fmt.Errorf("method %s::%s(%s): %w", td.Name, name, signature, ErrNotFound)
	default:
		if signature != "" {
			return nil, fmt.Errorf("method %s::%s(%s): %w", td.Name, name, signature, ErrNotFound)
		}
		return nil, fmt.Errorf("method %s::%s: %d overloads: %w", td.Name, name, len(candidates), ErrAmbiguous)
	}
}

// ResolveMethodRef finds the definition a call instruction targets.
func (ix *Index) ResolveMethodRef(ref meta.MethodRef) (*MethodDescriptor, error) {
	td, ok := ix.Type(ref.DeclaringType.DefName())
	if !ok {
		return nil, fmt.Errorf("declaring type %q: %w", ref.DeclaringType.DefName(), ErrNotFound)
	}
	return ix.method(td, ref.Name, ref.Signature, len(ref.GenericArgs))
}

// HasMarkedInterface reports whether some interface in the closure of td
// carries the attribute marker.
func (ix *Index) HasMarkedInterface(td *TypeDescriptor, marker string) bool {
	if td == nil || marker == "" {
		return false
	}
	for _, iface := range td.closure {
		if iface.IsInterface && iface.Def.HasAttribute(marker) {
			return true
		}
	}
	return false
}

// Implements reports whether td implements the interface named iface.
func (ix *Index) Implements(td *TypeDescriptor, iface string) bool {
	if td == nil {
		return false
	}
	iface = Canonical(iface)
	for _, d := range td.closure {
		if d.Name == iface {
			return true
		}
	}
	return false
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func moduleName(m *meta.Module) string {
	if m == nil {
		return "<nil>"
	}
	return m.Name
}
