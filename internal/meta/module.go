package meta

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Schema is the current module file schema. Bump it when the encoding changes.
const Schema uint16 = 1

// Module is the metadata graph of one compiled module.
type Module struct {
	Schema     uint16    `msgpack:"schema"`
	Name       string    `msgpack:"name"`
	References []string  `msgpack:"refs,omitempty"`
	Types      []TypeDef `msgpack:"types"`

	// Set on load; never serialized.
	Path    string   `msgpack:"-"`
	Digest  Digest   `msgpack:"-"`
	Symbols *Symbols `msgpack:"-"`
}

// TypeDef is a type definition declared by a module.
type TypeDef struct {
	Name          string      `msgpack:"name"`
	RuntimeName   string      `msgpack:"rt,omitempty"`
	GenericParams []string    `msgpack:"gp,omitempty"`
	IsInterface   bool        `msgpack:"iface,omitempty"`
	BaseType      *TypeRef    `msgpack:"base,omitempty"`
	Interfaces    []TypeRef   `msgpack:"ifaces,omitempty"`
	Attributes    []string    `msgpack:"attrs,omitempty"`
	Methods       []MethodDef `msgpack:"methods,omitempty"`
	Synthetic     bool        `msgpack:"synthetic,omitempty"`
}

// IsGeneric reports whether the definition is an open template.
func (t *TypeDef) IsGeneric() bool { return len(t.GenericParams) > 0 }

// HasAttribute reports whether attr is attached to the definition.
func (t *TypeDef) HasAttribute(attr string) bool {
	for _, a := range t.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}

// MethodDef is a method definition. Body is a nested msgpack blob that stays
// encoded until someone asks for it, so one stripped or corrupt body does not
// prevent loading the module.
type MethodDef struct {
	Name          string   `msgpack:"name"`
	Signature     string   `msgpack:"sig,omitempty"`
	GenericParams []string `msgpack:"gp,omitempty"`
	Static        bool     `msgpack:"static,omitempty"`
	Body          []byte   `msgpack:"body,omitempty"`
}

// Key returns the method identity within declType.
func (m *MethodDef) Key(declType string) MethodKey {
	return KeyOf(declType, m.Name, m.Signature)
}

// HasBody reports whether the method carries an encoded body.
func (m *MethodDef) HasBody() bool { return len(m.Body) > 0 }

// DecodeBody decodes the instruction stream of the method.
func (m *MethodDef) DecodeBody() (*Body, error) {
	if len(m.Body) == 0 {
		return &Body{}, nil
	}
	var b Body
	if err := msgpack.Unmarshal(m.Body, &b); err != nil {
		return nil, fmt.Errorf("method %s: decode body: %w", m.Name, err)
	}
	for i := range b.Instrs {
		if !b.Instrs[i].Op.Valid() {
			return nil, fmt.Errorf("method %s: instr %d: unknown opcode %d", m.Name, i, b.Instrs[i].Op)
		}
	}
	return &b, nil
}

// EncodeBody replaces the method body with the encoding of b.
func (m *MethodDef) EncodeBody(b *Body) error {
	if b == nil {
		m.Body = nil
		return nil
	}
	raw, err := msgpack.Marshal(b)
	if err != nil {
		return fmt.Errorf("method %s: encode body: %w", m.Name, err)
	}
	m.Body = raw
	return nil
}

// Opcode enumerates the instructions the analysis cares about.
type Opcode uint8

const (
	OpNop Opcode = iota
	OpCall
	OpCallVirt
	OpNewObj
	OpInitObj
	OpLdToken
	opMax
)

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool { return op < opMax }

func (op Opcode) String() string {
	switch op {
	case OpNop:
		return "nop"
	case OpCall:
		return "call"
	case OpCallVirt:
		return "callvirt"
	case OpNewObj:
		return "newobj"
	case OpInitObj:
		return "initobj"
	case OpLdToken:
		return "ldtoken"
	default:
		return fmt.Sprintf("op(%d)", op)
	}
}

// Body is a decoded method body.
type Body struct {
	Instrs []Instr `msgpack:"instrs"`
}

// Instr is a single instruction with an optional method or type operand.
type Instr struct {
	Op     Opcode     `msgpack:"op"`
	Offset uint32     `msgpack:"off,omitempty"`
	Method *MethodRef `msgpack:"m,omitempty"`
	Type   *TypeRef   `msgpack:"t,omitempty"`
}

// FindType returns the definition named name, or nil.
func (m *Module) FindType(name string) *TypeDef {
	if m == nil {
		return nil
	}
	for i := range m.Types {
		if m.Types[i].Name == name {
			return &m.Types[i]
		}
	}
	return nil
}
