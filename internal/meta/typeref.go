package meta

import (
	"fmt"
	"strconv"
	"strings"
)

// RefKind tags the shape of a TypeRef.
type RefKind uint8

const (
	RefInvalid RefKind = iota
	// RefNamed is a plain reference to a type definition.
	RefNamed
	// RefParam is an open generic parameter.
	RefParam
	// RefInst is a generic type instantiated with arguments.
	RefInst
	// RefArray is a single-dimension array of Elem.
	RefArray
	// RefByRef is a managed reference to Elem.
	RefByRef
)

func (k RefKind) String() string {
	switch k {
	case RefNamed:
		return "named"
	case RefParam:
		return "param"
	case RefInst:
		return "inst"
	case RefArray:
		return "array"
	case RefByRef:
		return "byref"
	default:
		return fmt.Sprintf("RefKind(%d)", k)
	}
}

// ParamOwner says whether a generic parameter belongs to a type or a method.
type ParamOwner uint8

const (
	OwnerType ParamOwner = iota + 1
	OwnerMethod
)

func (o ParamOwner) String() string {
	switch o {
	case OwnerType:
		return "type"
	case OwnerMethod:
		return "method"
	default:
		return "?"
	}
}

// TypeRef is a type reference as it appears in metadata: instruction operands,
// base types, implemented interfaces and method generic arguments.
type TypeRef struct {
	Kind RefKind `msgpack:"k"`
	// Name is the full metadata name of the referenced definition
	// (RefNamed, RefInst) or the parameter name (RefParam).
	Name string `msgpack:"n,omitempty"`

	// RefParam only.
	Owner     ParamOwner `msgpack:"o,omitempty"`
	OwnerName string     `msgpack:"on,omitempty"`
	Position  uint16     `msgpack:"p,omitempty"`

	// RefInst arguments.
	Args []TypeRef `msgpack:"a,omitempty"`
	// RefArray / RefByRef element.
	Elem *TypeRef `msgpack:"e,omitempty"`
}

// Named builds a reference to a non-generic (or open template) definition.
func Named(name string) TypeRef { return TypeRef{Kind: RefNamed, Name: name} }

// Inst builds a generic instance reference.
func Inst(name string, args ...TypeRef) TypeRef {
	return TypeRef{Kind: RefInst, Name: name, Args: args}
}

// TypeParam references generic parameter pos of type owner.
func TypeParam(owner string, pos uint16, name string) TypeRef {
	return TypeRef{Kind: RefParam, Name: name, Owner: OwnerType, OwnerName: owner, Position: pos}
}

// MethodParam references generic parameter pos of method owner (a method key).
func MethodParam(owner string, pos uint16, name string) TypeRef {
	return TypeRef{Kind: RefParam, Name: name, Owner: OwnerMethod, OwnerName: owner, Position: pos}
}

// ArrayOf wraps elem into an array reference.
func ArrayOf(elem TypeRef) TypeRef { return TypeRef{Kind: RefArray, Elem: &elem} }

// ByRefOf wraps elem into a by-reference.
func ByRefOf(elem TypeRef) TypeRef { return TypeRef{Kind: RefByRef, Elem: &elem} }

// DefName returns the name of the definition a reference ultimately points at,
// or "" for parameters.
func (r TypeRef) DefName() string {
	switch r.Kind {
	case RefNamed, RefInst:
		return r.Name
	case RefArray, RefByRef:
		if r.Elem != nil {
			return r.Elem.DefName()
		}
	}
	return ""
}

// HasParams reports whether the reference mentions an open generic parameter.
func (r TypeRef) HasParams() bool {
	switch r.Kind {
	case RefParam:
		return true
	case RefInst:
		for _, a := range r.Args {
			if a.HasParams() {
				return true
			}
		}
	case RefArray, RefByRef:
		return r.Elem != nil && r.Elem.HasParams()
	}
	return false
}

func (r TypeRef) String() string {
	var b strings.Builder
	r.write(&b, false)
	return b.String()
}

// Identity renders the reference with fully qualified parameter owners, so two
// references are the same type exactly when their identities are equal.
func (r TypeRef) Identity() string {
	var b strings.Builder
	r.write(&b, true)
	return b.String()
}

func (r TypeRef) write(b *strings.Builder, qualified bool) {
	switch r.Kind {
	case RefNamed:
		b.WriteString(r.Name)
	case RefParam:
		if r.Owner == OwnerMethod {
			b.WriteString("!!")
		} else {
			b.WriteString("!")
		}
		if qualified {
			b.WriteString(r.OwnerName)
			b.WriteByte('#')
			b.WriteString(strconv.FormatUint(uint64(r.Position), 10))
			return
		}
		b.WriteString(r.Name)
	case RefInst:
		b.WriteString(r.Name)
		b.WriteByte('<')
		for i, a := range r.Args {
			if i > 0 {
				b.WriteByte(',')
			}
			a.write(b, qualified)
		}
		b.WriteByte('>')
	case RefArray:
		if r.Elem != nil {
			r.Elem.write(b, qualified)
		}
		b.WriteString("[]")
	case RefByRef:
		if r.Elem != nil {
			r.Elem.write(b, qualified)
		}
		b.WriteByte('&')
	default:
		b.WriteString("<invalid>")
	}
}

// MethodRef is a method reference operand of a call instruction.
type MethodRef struct {
	DeclaringType TypeRef   `msgpack:"dt"`
	Name          string    `msgpack:"n"`
	Signature     string    `msgpack:"s,omitempty"`
	GenericArgs   []TypeRef `msgpack:"ga,omitempty"`
}

// MethodKey is the identity of a method definition: declaring type + name +
// signature.
type MethodKey string

// KeyOf builds the method identity used across the corpus.
func KeyOf(declType, name, signature string) MethodKey {
	return MethodKey(declType + "::" + name + "(" + signature + ")")
}

// Split breaks a MethodKey back into its parts.
func (k MethodKey) Split() (declType, name, signature string) {
	s := string(k)
	idx := strings.Index(s, "::")
	if idx < 0 {
		return "", s, ""
	}
	declType = s[:idx]
	rest := s[idx+2:]
	if open := strings.IndexByte(rest, '('); open >= 0 && strings.HasSuffix(rest, ")") {
		return declType, rest[:open], rest[open+1 : len(rest)-1]
	}
	return declType, rest, ""
}

func (r MethodRef) String() string {
	var b strings.Builder
	r.DeclaringType.write(&b, false)
	b.WriteString("::")
	b.WriteString(r.Name)
	if len(r.GenericArgs) > 0 {
		b.WriteByte('<')
		for i, a := range r.GenericArgs {
			if i > 0 {
				b.WriteByte(',')
			}
			a.write(&b, false)
		}
		b.WriteByte('>')
	}
	b.WriteByte('(')
	b.WriteString(r.Signature)
	b.WriteByte(')')
	return b.String()
}
