package meta

import "sort"

// Symbols is the debug sidecar of a module: source locations for types and
// methods so tooling can map synthesized code back to its origin.
type Symbols struct {
	Schema  uint16        `msgpack:"schema"`
	Module  string        `msgpack:"module"`
	Entries []SymbolEntry `msgpack:"entries"`
}

// SymbolEntry locates one type or method in source. Method is empty for types.
type SymbolEntry struct {
	Type   string `msgpack:"type"`
	Method string `msgpack:"method,omitempty"`
	File   string `msgpack:"file"`
	Line   uint32 `msgpack:"line"`
}

// Lookup finds the entry for a type (method == "") or a method.
func (s *Symbols) Lookup(typeName, method string) (SymbolEntry, bool) {
	if s == nil {
		return SymbolEntry{}, false
	}
	for _, e := range s.Entries {
		if e.Type == typeName && e.Method == method {
			return e, true
		}
	}
	return SymbolEntry{}, false
}

// Put inserts or replaces an entry.
func (s *Symbols) Put(e SymbolEntry) {
	for i := range s.Entries {
		if s.Entries[i].Type == e.Type && s.Entries[i].Method == e.Method {
			s.Entries[i] = e
			return
		}
	}
	s.Entries = append(s.Entries, e)
}

// Drop removes every entry whose type satisfies pred.
func (s *Symbols) Drop(pred func(typeName string) bool) {
	if s == nil {
		return
	}
	kept := s.Entries[:0]
	for _, e := range s.Entries {
		if !pred(e.Type) {
			kept = append(kept, e)
		}
	}
	s.Entries = kept
}

// Sort orders entries by type then method for stable output.
func (s *Symbols) Sort() {
	if s == nil {
		return
	}
	sort.SliceStable(s.Entries, func(i, j int) bool {
		if s.Entries[i].Type != s.Entries[j].Type {
			return s.Entries[i].Type < s.Entries[j].Type
		}
		return s.Entries[i].Method < s.Entries[j].Method
	})
}
