package mono

import (
	"jobmono/internal/meta"
	"jobmono/internal/types"
)

// Subst replaces the generic parameters of one method (and of its declaring
// type) with the arguments a call site supplies.
type Subst struct {
	Types *types.Interner

	Method     meta.MethodKey
	MethodArgs []types.TypeID

	Owner    string
	TypeArgs []types.TypeID

	cache map[types.TypeID]types.TypeID
}

// lookup returns the replacement for p when p belongs to the substituted
// method or owner type and the call site supplied that position.
func (s *Subst) lookup(p *types.ParamInfo) (types.TypeID, bool) {
	switch p.Owner {
	case meta.OwnerMethod:
		if p.OwnerName == string(s.Method) && int(p.Index) < len(s.MethodArgs) {
			return s.MethodArgs[p.Index], true
		}
	case meta.OwnerType:
		if p.OwnerName == s.Owner && int(p.Index) < len(s.TypeArgs) {
			return s.TypeArgs[p.Index], true
		}
	}
	return types.NoTypeID, false
}

// Covers reports whether every parameter mentioned by id has a replacement.
func (s *Subst) Covers(id types.TypeID) bool {
	for _, p := range s.Types.Params(id, nil) {
		info, ok := s.Types.ParamInfo(p)
		if !ok {
			return false
		}
		if _, ok := s.lookup(info); !ok {
			return false
		}
	}
	return true
}

// Type applies the substitution to id. Parameters without a replacement stay
// as they are.
func (s *Subst) Type(id types.TypeID) types.TypeID {
	if s == nil || s.Types == nil || id == types.NoTypeID || !s.Types.ContainsParam(id) {
		return id
	}
	if s.cache == nil {
		s.cache = make(map[types.TypeID]types.TypeID)
	}
	if out, ok := s.cache[id]; ok {
		return out
	}
	out := s.apply(id)
	s.cache[id] = out
	return out
}

func (s *Subst) apply(id types.TypeID) types.TypeID {
	tt, ok := s.Types.Lookup(id)
	if !ok {
		return id
	}
	switch tt.Kind {
	case types.KindGenericParam:
		info, ok := s.Types.ParamInfo(id)
		if !ok {
			return id
		}
		if repl, ok := s.lookup(info); ok && repl != types.NoTypeID {
			return repl
		}
		return id
	case types.KindArray:
		return s.Types.Intern(types.MakeArray(s.Type(tt.Elem)))
	case types.KindByRef:
		return s.Types.Intern(types.MakeByRef(s.Type(tt.Elem)))
	case types.KindInstance:
		args := s.Types.Args(id)
		next := make([]types.TypeID, len(args))
		changed := false
		for i, a := range args {
			next[i] = s.Type(a)
			changed = changed || next[i] != a
		}
		if !changed {
			return id
		}
		return s.Types.Instance(tt.Name, next)
	}
	return id
}
