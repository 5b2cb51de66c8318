package scan

import (
	"jobmono/internal/index"
	"jobmono/internal/meta"
)

// Capability is the predicate that flags a type as an ahead-of-time job.
type Capability struct {
	// Marker is the attribute an interface must carry for its implementers to
	// count as jobs.
	Marker string
}

// IsJobImpl reports whether ref names a non-interface type with some marked
// interface in its closure. Bare generic parameters never qualify.
func (c Capability) IsJobImpl(ix *index.Index, ref meta.TypeRef) bool {
	if ix == nil || c.Marker == "" {
		return false
	}
	if ref.Kind != meta.RefNamed && ref.Kind != meta.RefInst {
		return false
	}
	td, ok := ix.Type(ref.DefName())
	if !ok {
		return false
	}
	return c.IsJobType(ix, td)
}

// IsJobType is IsJobImpl for an already resolved definition.
func (c Capability) IsJobType(ix *index.Index, td *index.TypeDescriptor) bool {
	return td != nil && !td.IsInterface && ix.HasMarkedInterface(td, c.Marker)
}

// IsGenericJobCall reports whether ref is a job whose instantiation still
// depends on open generic parameters: the case an AOT compiler cannot see.
func (c Capability) IsGenericJobCall(ix *index.Index, ref meta.TypeRef) bool {
	return ref.HasParams() && c.IsJobImpl(ix, ref)
}
