package meta

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// Ext is the file extension of encoded modules.
	Ext = ".mod.mp"
	// SymExt is the file extension of the debug symbol sidecar.
	SymExt = ".sym.mp"
)

// WriteOptions controls how a module is persisted.
type WriteOptions struct {
	// Symbols writes the debug sidecar next to the module.
	Symbols bool
}

// SymbolsPath returns the sidecar path for a module file.
func SymbolsPath(modPath string) string {
	return strings.TrimSuffix(modPath, Ext) + SymExt
}

// NameFromPath derives a module name from its file name.
func NameFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), Ext)
}

// Read loads a module and, when present, its symbol sidecar.
func Read(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = path
	if m.Name == "" {
		m.Name = NameFromPath(path)
	}

	syms, err := readSymbols(SymbolsPath(path))
	if err != nil {
		return nil, err
	}
	m.Symbols = syms
	return m, nil
}

// Decode parses an encoded module and validates its schema.
func Decode(data []byte) (*Module, error) {
	var m Module
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode module: %w", err)
	}
	if m.Schema != Schema {
		return nil, fmt.Errorf("unsupported module schema %d (want %d)", m.Schema, Schema)
	}
	m.Digest = DigestOf(data)
	return &m, nil
}

// Encode serializes a module. The schema field is always stamped.
func Encode(m *Module) ([]byte, error) {
	if m == nil {
		return nil, errors.New("encode module: nil module")
	}
	m.Schema = Schema
	data, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode module %s: %w", m.Name, err)
	}
	return data, nil
}

// Write persists the module at m.Path, atomically replacing the previous file.
func Write(m *Module, opts WriteOptions) error {
	if m == nil || m.Path == "" {
		return errors.New("write module: missing path")
	}
	data, err := Encode(m)
	if err != nil {
		return err
	}
	if err := writeAtomic(m.Path, data); err != nil {
		return fmt.Errorf("write module %s: %w", m.Path, err)
	}
	m.Digest = DigestOf(data)

	if !opts.Symbols {
		return nil
	}
	syms := m.Symbols
	if syms == nil {
		syms = &Symbols{}
	}
	syms.Schema = Schema
	syms.Module = m.Name
	syms.Sort()
	raw, err := msgpack.Marshal(syms)
	if err != nil {
		return fmt.Errorf("encode symbols %s: %w", m.Name, err)
	}
	if err := writeAtomic(SymbolsPath(m.Path), raw); err != nil {
		return fmt.Errorf("write symbols %s: %w", m.Path, err)
	}
	m.Symbols = syms
	return nil
}

func readSymbols(path string) (*Symbols, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var s Symbols
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%s: decode symbols: %w", path, err)
	}
	return &s, nil
}

// writeAtomic writes to a temp file in the same directory and renames it over
// the destination.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
