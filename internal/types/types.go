package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates the shapes of metadata types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNamed
	KindGenericParam
	KindInstance
	KindArray
	KindByRef
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNamed:
		return "named"
	case KindGenericParam:
		return "param"
	case KindInstance:
		return "instance"
	case KindArray:
		return "array"
	case KindByRef:
		return "byref"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Type is a compact descriptor for any interned type.
type Type struct {
	Kind    Kind
	Name    string // definition name (named, instance)
	Elem    TypeID // array / byref element
	Payload uint32 // slot in the param or instance side tables
}

// MakeNamed describes a reference to a definition without arguments.
func MakeNamed(name string) Type {
	return Type{Kind: KindNamed, Name: name}
}

// MakeArray describes an array of elem.
func MakeArray(elem TypeID) Type {
	return Type{Kind: KindArray, Elem: elem}
}

// MakeByRef describes a managed reference to elem.
func MakeByRef(elem TypeID) Type {
	return Type{Kind: KindByRef, Elem: elem}
}
