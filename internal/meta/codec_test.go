package meta

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func sampleModule(dir string) *Module {
	job := MethodDef{Name: "Execute"}
	if err := job.EncodeBody(&Body{Instrs: []Instr{{Op: OpNop}}}); err != nil {
		panic(err)
	}
	return &Module{
		Name: "Game",
		Path: filepath.Join(dir, "Game"+Ext),
		Types: []TypeDef{
			{Name: "Game.Job`1", GenericParams: []string{"T"}, Methods: []MethodDef{job, {Name: "Broken", Body: []byte{0xc1}}}},
		},
		Symbols: &Symbols{Entries: []SymbolEntry{{Type: "Game.Job`1", File: "Job.cs", Line: 12}}},
	}
}

func TestWriteReadKeepsSymbolsAndCorruptBodies(t *testing.T) {
	dir := t.TempDir()
	m := sampleModule(dir)
	if err := Write(m, WriteOptions{Symbols: true}); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Read(m.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Digest != m.Digest || got.Digest.IsZero() {
		t.Fatalf("digest mismatch: got=%s want=%s", got.Digest, m.Digest)
	}
	if e, ok := got.Symbols.Lookup("Game.Job`1", ""); !ok || e.Line != 12 {
		t.Fatalf("symbols not restored: %+v", got.Symbols)
	}

	def := got.FindType("Game.Job`1")
	if def == nil || len(def.Methods) != 2 {
		t.Fatalf("unexpected type: %+v", def)
	}
	if _, err := def.Methods[0].DecodeBody(); err != nil {
		t.Fatalf("valid body failed to decode: %v", err)
	}
	if _, err := def.Methods[1].DecodeBody(); err == nil {
		t.Fatalf("corrupt body decoded without error")
	}
}

func TestReadRejectsForeignSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Old"+Ext)
	raw, err := msgpack.Marshal(&Module{Schema: Schema + 1, Name: "Old"})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil || !strings.Contains(err.Error(), "schema") {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestWriteWithoutSymbolsLeavesNoSidecar(t *testing.T) {
	dir := t.TempDir()
	m := sampleModule(dir)
	if err := Write(m, WriteOptions{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(SymbolsPath(m.Path)); !os.IsNotExist(err) {
		t.Fatalf("unexpected sidecar: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestMethodKeySplit(t *testing.T) {
	key := KeyOf("Game.Scheduler", "Run", "int32,float")
	decl, name, sig := key.Split()
	if decl != "Game.Scheduler" || name != "Run" || sig != "int32,float" {
		t.Fatalf("split: got=%q %q %q", decl, name, sig)
	}
}
