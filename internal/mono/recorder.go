package mono

import (
	"jobmono/internal/trace"
	"jobmono/internal/types"
)

// InstantiationRecorder receives every concrete instantiation the resolver
// reaches, including repeats.
type InstantiationRecorder interface {
	RecordInstantiation(entity string, typ types.TypeID, typeArgs []types.TypeID, site UseSite)
}

// InstantiationMapRecorder collects instantiations into an InstantiationMap.
type InstantiationMapRecorder struct {
	Map *InstantiationMap
}

var _ InstantiationRecorder = (*InstantiationMapRecorder)(nil)

// NewInstantiationMapRecorder creates a new recorder bound to the provided map.
func NewInstantiationMapRecorder(m *InstantiationMap) *InstantiationMapRecorder {
	return &InstantiationMapRecorder{Map: m}
}

// RecordInstantiation implements InstantiationRecorder.
func (r *InstantiationMapRecorder) RecordInstantiation(entity string, typ types.TypeID, typeArgs []types.TypeID, site UseSite) {
	if r == nil || r.Map == nil {
		return
	}
	r.Map.Record(entity, typ, typeArgs, site)
}

// tracingRecorder emits a trace point per recorded instantiation before
// forwarding it.
type tracingRecorder struct {
	next   InstantiationRecorder
	tracer trace.Tracer
	types  *types.Interner
	parent uint64
}

func (r *tracingRecorder) RecordInstantiation(entity string, typ types.TypeID, typeArgs []types.TypeID, site UseSite) {
	trace.Point(r.tracer, trace.ScopeNode, "resolve.instance", r.types.Format(typ)+" via "+string(site.Caller), r.parent)
	r.next.RecordInstantiation(entity, typ, typeArgs, site)
}
