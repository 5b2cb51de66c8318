package types

import (
	"fmt"

	"fortio.org/safecast"

	"jobmono/internal/meta"
)

// ParamInfo stores metadata about a generic parameter.
type ParamInfo struct {
	Name      string
	Owner     meta.ParamOwner
	OwnerName string // type name, or method key for method parameters
	Index     uint16
}

// Param interns the generic parameter index of owner.
func (in *Interner) Param(owner meta.ParamOwner, ownerName string, index uint16, name string) TypeID {
	key := typeKey{Kind: KindGenericParam, Name: ownerName, Owner: owner, Index: index}
	if id, ok := in.index[key]; ok {
		return id
	}
	slot, err := safecast.Conv[uint32](len(in.params))
	if err != nil {
		panic(fmt.Errorf("len(params) overflow: %w", err))
	}
	in.params = append(in.params, ParamInfo{Name: name, Owner: owner, OwnerName: ownerName, Index: index})
	return in.internKeyed(key, Type{Kind: KindGenericParam, Payload: slot})
}

// ParamInfo returns metadata for the provided generic parameter.
func (in *Interner) ParamInfo(id TypeID) (*ParamInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindGenericParam {
		return nil, false
	}
	if tt.Payload == 0 || int(tt.Payload) >= len(in.params) {
		return nil, false
	}
	info := in.params[tt.Payload]
	return &info, true
}
