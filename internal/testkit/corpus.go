// Package testkit builds small module corpora for tests.
package testkit

import (
	"fmt"
	"path/filepath"

	"fortio.org/safecast"

	"jobmono/internal/meta"
)

// Marker is the producer attribute used by test corpora.
const Marker = "Jobs.JobProducerTypeAttribute"

// ModuleBuilder assembles a meta.Module.
type ModuleBuilder struct {
	mod   *meta.Module
	types []*TypeBuilder
}

// NewModule starts a module named name.
func NewModule(name string, refs ...string) *ModuleBuilder {
	return &ModuleBuilder{mod: &meta.Module{Schema: meta.Schema, Name: name, References: refs}}
}

// TypeBuilder assembles a meta.TypeDef.
type TypeBuilder struct {
	def     meta.TypeDef
	methods []*MethodBuilder
}

// MethodBuilder assembles a meta.MethodDef and its body.
type MethodBuilder struct {
	owner  *TypeBuilder
	def    meta.MethodDef
	instrs []meta.Instr
	raw    []byte
}

// Type declares a class or struct with optional generic parameters.
func (b *ModuleBuilder) Type(name string, generic ...string) *TypeBuilder {
	tb := &TypeBuilder{def: meta.TypeDef{Name: name, GenericParams: generic}}
	b.types = append(b.types, tb)
	return tb
}

// Interface declares an interface carrying attrs.
func (b *ModuleBuilder) Interface(name string, attrs ...string) *TypeBuilder {
	tb := b.Type(name)
	tb.def.IsInterface = true
	tb.def.Attributes = attrs
	return tb
}

// Build encodes method bodies and returns the module.
func (b *ModuleBuilder) Build() *meta.Module {
	b.mod.Types = b.mod.Types[:0]
	for _, tb := range b.types {
		def := tb.def
		def.Methods = nil
		for _, mb := range tb.methods {
			md := mb.def
			switch {
			case mb.raw != nil:
				md.Body = mb.raw
			case len(mb.instrs) > 0:
				if err := md.EncodeBody(&meta.Body{Instrs: mb.instrs}); err != nil {
					panic(err)
				}
			}
			def.Methods = append(def.Methods, md)
		}
		b.mod.Types = append(b.mod.Types, def)
	}
	return b.mod
}

// WriteTo builds the module and writes it as <dir>/<name>.mod.mp.
func (b *ModuleBuilder) WriteTo(dir string, syms *meta.Symbols) (string, error) {
	m := b.Build()
	m.Path = filepath.Join(dir, m.Name+meta.Ext)
	m.Symbols = syms
	if err := meta.Write(m, meta.WriteOptions{Symbols: syms != nil}); err != nil {
		return "", fmt.Errorf("testkit: %w", err)
	}
	return m.Path, nil
}

// Implements adds implemented interfaces.
func (t *TypeBuilder) Implements(refs ...meta.TypeRef) *TypeBuilder {
	t.def.Interfaces = append(t.def.Interfaces, refs...)
	return t
}

// Base sets the base type.
func (t *TypeBuilder) Base(ref meta.TypeRef) *TypeBuilder {
	t.def.BaseType = &ref
	return t
}

// Runtime overrides the reflection identity.
func (t *TypeBuilder) Runtime(name string) *TypeBuilder {
	t.def.RuntimeName = name
	return t
}

// Param references generic parameter pos of this type.
func (t *TypeBuilder) Param(pos uint16) meta.TypeRef {
	return meta.TypeParam(t.def.Name, pos, t.def.GenericParams[pos])
}

// Ref references the type itself (open template for generic types).
func (t *TypeBuilder) Ref() meta.TypeRef { return meta.Named(t.def.Name) }

// Name returns the type's full name.
func (t *TypeBuilder) Name() string { return t.def.Name }

// Method declares a method with optional generic parameters.
func (t *TypeBuilder) Method(name, sig string, generic ...string) *MethodBuilder {
	mb := &MethodBuilder{owner: t, def: meta.MethodDef{Name: name, Signature: sig, GenericParams: generic}}
	t.methods = append(t.methods, mb)
	return mb
}

// Key returns the method identity.
func (m *MethodBuilder) Key() meta.MethodKey {
	return meta.KeyOf(m.owner.def.Name, m.def.Name, m.def.Signature)
}

// Param references generic parameter pos of this method.
func (m *MethodBuilder) Param(pos uint16) meta.TypeRef {
	return meta.MethodParam(string(m.Key()), pos, m.def.GenericParams[pos])
}

// Ref builds a reference to this method as seen from a call site. declaring
// may be an instance of the owner type; args instantiate method parameters.
func (m *MethodBuilder) Ref(declaring meta.TypeRef, args ...meta.TypeRef) meta.MethodRef {
	return meta.MethodRef{DeclaringType: declaring, Name: m.def.Name, Signature: m.def.Signature, GenericArgs: args}
}

// Call appends a call instruction.
func (m *MethodBuilder) Call(ref meta.MethodRef) *MethodBuilder {
	return m.emit(meta.Instr{Op: meta.OpCall, Method: &ref})
}

// NewObj appends an object construction through ref (a constructor).
func (m *MethodBuilder) NewObj(ref meta.MethodRef) *MethodBuilder {
	return m.emit(meta.Instr{Op: meta.OpNewObj, Method: &ref})
}

// InitObj appends a value-type initialization of t.
func (m *MethodBuilder) InitObj(t meta.TypeRef) *MethodBuilder {
	return m.emit(meta.Instr{Op: meta.OpInitObj, Type: &t})
}

// Malformed replaces the body with bytes that do not decode.
func (m *MethodBuilder) Malformed() *MethodBuilder {
	m.raw = []byte{0xc1, 0xff, 0x00}
	return m
}

func (m *MethodBuilder) emit(in meta.Instr) *MethodBuilder {
	off, err := safecast.Conv[uint32](len(m.instrs) * 4)
	if err != nil {
		panic(fmt.Sprintf("testkit: method %s too long: %v", m.def.Name, err))
	}
	in.Offset = off
	m.instrs = append(m.instrs, in)
	return m
}
