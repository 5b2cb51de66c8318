package types

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"jobmono/internal/meta"
)

// Interner provides stable TypeIDs by hashing structural descriptors.
// It is not safe for concurrent use; the pipeline interns on a single goroutine.
type Interner struct {
	types  []Type
	index  map[typeKey]TypeID
	params []ParamInfo
	insts  [][]TypeID

	// open caches ContainsParam results: 0 unknown, 1 closed, 2 open.
	open []uint8
}

type typeKey struct {
	Kind  Kind
	Name  string
	Elem  TypeID
	Args  string
	Owner meta.ParamOwner
	Index uint16
}

// NewInterner constructs an empty interner. Slot 0 of every table is reserved.
func NewInterner() *Interner {
	in := &Interner{
		index: make(map[typeKey]TypeID, 64),
	}
	in.types = append(in.types, Type{Kind: KindInvalid})
	in.open = append(in.open, 1)
	in.params = append(in.params, ParamInfo{})
	in.insts = append(in.insts, nil)
	return in
}

// Len returns the number of interned types including the invalid sentinel.
func (in *Interner) Len() int { return len(in.types) }

// Intern ensures the provided descriptor has a stable TypeID. Parameters and
// instances go through Param and Instance.
func (in *Interner) Intern(t Type) TypeID {
	switch t.Kind {
	case KindInvalid:
		return NoTypeID
	case KindGenericParam, KindInstance:
		panic(fmt.Sprintf("types: Intern called with %s; use Param/Instance", t.Kind))
	}
	return in.internKeyed(typeKey{Kind: t.Kind, Name: t.Name, Elem: t.Elem}, t)
}

// Instance interns the generic instance name<args...>.
func (in *Interner) Instance(name string, args []TypeID) TypeID {
	key := typeKey{Kind: KindInstance, Name: name, Args: ArgsKey(args)}
	if id, ok := in.index[key]; ok {
		return id
	}
	slot, err := safecast.Conv[uint32](len(in.insts))
	if err != nil {
		panic(fmt.Errorf("len(insts) overflow: %w", err))
	}
	in.insts = append(in.insts, slices.Clone(args))
	return in.internKeyed(key, Type{Kind: KindInstance, Name: name, Payload: slot})
}

func (in *Interner) internKeyed(key typeKey, t Type) TypeID {
	if id, ok := in.index[key]; ok {
		return id
	}
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	in.open = append(in.open, 0)
	in.index[key] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if in == nil || id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// Args returns the type arguments of an instance (nil otherwise).
func (in *Interner) Args(id TypeID) []TypeID {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindInstance {
		return nil
	}
	return in.insts[tt.Payload]
}

// FromRef interns a metadata type reference.
func (in *Interner) FromRef(r meta.TypeRef) TypeID {
	switch r.Kind {
	case meta.RefNamed:
		return in.Intern(MakeNamed(r.Name))
	case meta.RefParam:
		return in.Param(r.Owner, r.OwnerName, r.Position, r.Name)
	case meta.RefInst:
		args := make([]TypeID, len(r.Args))
		for i, a := range r.Args {
			args[i] = in.FromRef(a)
		}
		return in.Instance(r.Name, args)
	case meta.RefArray:
		if r.Elem == nil {
			return NoTypeID
		}
		return in.Intern(MakeArray(in.FromRef(*r.Elem)))
	case meta.RefByRef:
		if r.Elem == nil {
			return NoTypeID
		}
		return in.Intern(MakeByRef(in.FromRef(*r.Elem)))
	default:
		return NoTypeID
	}
}

// Ref converts an interned type back to a metadata reference.
func (in *Interner) Ref(id TypeID) meta.TypeRef {
	tt, ok := in.Lookup(id)
	if !ok {
		return meta.TypeRef{}
	}
	switch tt.Kind {
	case KindNamed:
		return meta.Named(tt.Name)
	case KindGenericParam:
		info := in.params[tt.Payload]
		return meta.TypeRef{Kind: meta.RefParam, Name: info.Name, Owner: info.Owner, OwnerName: info.OwnerName, Position: info.Index}
	case KindInstance:
		args := in.insts[tt.Payload]
		refs := make([]meta.TypeRef, len(args))
		for i, a := range args {
			refs[i] = in.Ref(a)
		}
		return meta.Inst(tt.Name, refs...)
	case KindArray:
		return meta.ArrayOf(in.Ref(tt.Elem))
	case KindByRef:
		return meta.ByRefOf(in.Ref(tt.Elem))
	}
	return meta.TypeRef{}
}

// ContainsParam reports whether id mentions any open generic parameter.
func (in *Interner) ContainsParam(id TypeID) bool {
	if in == nil || id == NoTypeID || int(id) >= len(in.types) {
		return false
	}
	switch in.open[id] {
	case 1:
		return false
	case 2:
		return true
	}
	tt := in.types[id]
	var open bool
	switch tt.Kind {
	case KindGenericParam:
		open = true
	case KindArray, KindByRef:
		open = in.ContainsParam(tt.Elem)
	case KindInstance:
		for _, a := range in.insts[tt.Payload] {
			if in.ContainsParam(a) {
				open = true
				break
			}
		}
	}
	if open {
		in.open[id] = 2
	} else {
		in.open[id] = 1
	}
	return open
}

// Params appends every distinct generic parameter mentioned by id, in first
// occurrence order.
func (in *Interner) Params(id TypeID, out []TypeID) []TypeID {
	tt, ok := in.Lookup(id)
	if !ok || !in.ContainsParam(id) {
		return out
	}
	switch tt.Kind {
	case KindGenericParam:
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	case KindArray, KindByRef:
		out = in.Params(tt.Elem, out)
	case KindInstance:
		for _, a := range in.insts[tt.Payload] {
			out = in.Params(a, out)
		}
	}
	return out
}

// Depth returns the nesting depth of a type (named = 1).
func (in *Interner) Depth(id TypeID) int {
	tt, ok := in.Lookup(id)
	if !ok {
		return 0
	}
	switch tt.Kind {
	case KindArray, KindByRef:
		return 1 + in.Depth(tt.Elem)
	case KindInstance:
		deepest := 0
		for _, a := range in.insts[tt.Payload] {
			deepest = max(deepest, in.Depth(a))
		}
		return 1 + deepest
	}
	return 1
}

// Format renders id using metadata naming: Name<Arg,...>, !T for type
// parameters and !!T for method parameters.
func (in *Interner) Format(id TypeID) string {
	var b strings.Builder
	in.format(&b, id)
	return b.String()
}

func (in *Interner) format(b *strings.Builder, id TypeID) {
	tt, ok := in.Lookup(id)
	if !ok {
		b.WriteString("<invalid>")
		return
	}
	switch tt.Kind {
	case KindNamed:
		b.WriteString(tt.Name)
	case KindGenericParam:
		info := in.params[tt.Payload]
		if info.Owner == meta.OwnerMethod {
			b.WriteString("!!")
		} else {
			b.WriteString("!")
		}
		b.WriteString(info.Name)
	case KindInstance:
		b.WriteString(tt.Name)
		b.WriteByte('<')
		for i, a := range in.insts[tt.Payload] {
			if i > 0 {
				b.WriteByte(',')
			}
			in.format(b, a)
		}
		b.WriteByte('>')
	case KindArray:
		in.format(b, tt.Elem)
		b.WriteString("[]")
	case KindByRef:
		in.format(b, tt.Elem)
		b.WriteByte('&')
	}
}

// ArgsKey produces a stable comparable key for a list of TypeIDs.
func ArgsKey(args []TypeID) string {
	if len(args) == 0 {
		return ""
	}
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteByte('#')
		}
		b.WriteString(strconv.FormatUint(uint64(arg), 10))
	}
	return b.String()
}
