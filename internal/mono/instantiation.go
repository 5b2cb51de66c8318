package mono

import (
	"slices"
	"strings"

	"jobmono/internal/meta"
	"jobmono/internal/types"
)

// InstantiationKey is a comparable key for instantiations.
//
// Note: Go maps cannot use slices as keys, so we store a stable ArgsKey string.
// The corresponding TypeArgs are stored in InstEntry.
type InstantiationKey struct {
	Entity  string
	ArgsKey string
}

// UseSite records where a concrete instantiation was established.
type UseSite struct {
	// Caller is the method whose call finally fixed every argument.
	Caller meta.MethodKey
	// Root is the method holding the open job call that started the walk.
	Root   meta.MethodKey
	Offset uint32
	Depth  int
}

// InstEntry captures one concrete instantiation of a generic job.
type InstEntry struct {
	Key      InstantiationKey
	Type     types.TypeID
	TypeArgs []types.TypeID
	UseSites []UseSite
}

// InstantiationMap tracks all concrete instantiations found by one resolve run.
type InstantiationMap struct {
	Entries map[InstantiationKey]*InstEntry
}

// NewInstantiationMap creates a new empty InstantiationMap.
func NewInstantiationMap() *InstantiationMap {
	return &InstantiationMap{Entries: make(map[InstantiationKey]*InstEntry)}
}

// Record registers a concrete instantiation of entity. Repeated records of the
// same (entity, args) pair only add use sites.
func (m *InstantiationMap) Record(entity string, typ types.TypeID, typeArgs []types.TypeID, site UseSite) bool {
	if m == nil || entity == "" || typ == types.NoTypeID {
		return false
	}
	if m.Entries == nil {
		m.Entries = make(map[InstantiationKey]*InstEntry)
	}
	key := InstantiationKey{Entity: entity, ArgsKey: types.ArgsKey(typeArgs)}
	entry := m.Entries[key]
	added := entry == nil
	if added {
		entry = &InstEntry{
			Key:      key,
			Type:     typ,
			TypeArgs: slices.Clone(typeArgs),
		}
		m.Entries[key] = entry
	}
	if !slices.Contains(entry.UseSites, site) {
		entry.UseSites = append(entry.UseSites, site)
	}
	return added
}

// Len returns the number of distinct instantiations.
func (m *InstantiationMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Entries)
}

// Sorted returns the entries ordered by their rendered type name. Names do not
// depend on TypeID allocation order, so the result is stable across runs.
func (m *InstantiationMap) Sorted(in *types.Interner) []*InstEntry {
	if m == nil {
		return nil
	}
	entries := make([]*InstEntry, 0, len(m.Entries))
	names := make(map[*InstEntry]string, len(m.Entries))
	for _, e := range m.Entries {
		entries = append(entries, e)
		names[e] = in.Format(e.Type)
	}
	slices.SortFunc(entries, func(a, b *InstEntry) int {
		if c := strings.Compare(names[a], names[b]); c != 0 {
			return c
		}
		return strings.Compare(a.Key.Entity, b.Key.Entity)
	})
	for _, e := range entries {
		slices.SortFunc(e.UseSites, compareUseSites)
	}
	return entries
}

func compareUseSites(a, b UseSite) int {
	if c := strings.Compare(string(a.Caller), string(b.Caller)); c != 0 {
		return c
	}
	if c := strings.Compare(string(a.Root), string(b.Root)); c != 0 {
		return c
	}
	if a.Offset != b.Offset {
		if a.Offset < b.Offset {
			return -1
		}
		return 1
	}
	return a.Depth - b.Depth
}
