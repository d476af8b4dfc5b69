package proxy_test

import (
	"bytes"
	"log"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/carved4/go-dllproxy/pkg/errors"
	"github.com/carved4/go-dllproxy/pkg/exports"
	"github.com/carved4/go-dllproxy/pkg/proxy"
)

var sampleCatalog = exports.Catalog{
	{Ordinal: 1, Name: "Foo", EntryPoint: 0x180001000},
	{Ordinal: 3, Name: "Bar", EntryPoint: 0x180003000},
	{Ordinal: 2, Name: exports.NoName, EntryPoint: 0x180002000},
}

func generate(t *testing.T, p proxy.Project, c exports.Catalog) map[string]string {
	t.Helper()
	arts, err := proxy.Generate(p, c)
	if err != nil {
		t.Fatal("Generate:", err)
	}
	m := make(map[string]string, len(arts))
	for _, a := range arts {
		m[a.Name] = string(a.Body)
	}
	return m
}

func mustContain(t *testing.T, name, body string, subs ...string) {
	t.Helper()
	for _, s := range subs {
		if !strings.Contains(body, s) {
			t.Errorf("%s: missing %q in:\n%s", name, s, body)
		}
	}
}

func TestSampleScenario(t *testing.T) {
	arts := generate(t, proxy.Project{BinaryName: "sample"}, sampleCatalog)

	mustContain(t, "sample.h", arts["sample.h"],
		"namespace sample\n",
		"class sample_initialize",
		"static bool initialize();")

	mustContain(t, "sample.cc", arts["sample.cc"],
		`#include "sample.h"`,
		"const size_t sample_size = 3;",
		`extern "C" FARPROC sample_functions[sample_size];`,
		`sample_functions[0] = GetProcAddress(sample_module, "Foo");`,
		`sample_functions[2] = GetProcAddress(sample_module, "Bar");`,
		`sample_functions[1] = GetProcAddress(sample_module, "[NONAME]");`)

	mustContain(t, "sample_exports.asm", arts["sample_exports.asm"],
		"PUBLIC sample_Foo\nPUBLIC sample_Bar\nPUBLIC sample_[NONAME]\n",
		"EXTERN sample_functions:QWORD",
		"; [0000000180001000] sample:1\nsample_Foo PROC\n  jmp QWORD PTR [sample_functions + 0*8]\nsample_Foo ENDP\n",
		"; [0000000180003000] sample:3\nsample_Bar PROC\n  jmp QWORD PTR [sample_functions + 2*8]\nsample_Bar ENDP\n",
		"; [0000000180002000] sample:2\nsample_[NONAME] PROC\n  jmp QWORD PTR [sample_functions + 1*8]\nsample_[NONAME] ENDP\n")
	if !strings.HasSuffix(arts["sample_exports.asm"], "END\n") {
		t.Errorf("sample_exports.asm: missing END terminator")
	}

	wantDef := "LIBRARY \"sample\"\n\nEXPORTS\n" +
		"  Foo   = sample_Foo   @1   PRIVATE\n" +
		"  Bar   = sample_Bar   @3   PRIVATE\n" +
		"  [NONAME]   = sample_[NONAME]   @2   PRIVATE\n"
	if arts["sample.def"] != wantDef {
		t.Errorf("sample.def: got\n%s\nexpected\n%s", arts["sample.def"], wantDef)
	}

	for _, name := range []string{"sample_binary.h", proxy.DllMainFile} {
		if _, ok := arts[name]; ok {
			t.Errorf("%s generated without being requested", name)
		}
	}
}

var (
	reSourceSlot = regexp.MustCompile(`(?m)^    \w+_functions\[(\d+)\] = GetProcAddress\(\w+_module, "([^"]*)"\);$`)
	reAsmStub    = regexp.MustCompile(`(?m)^; \[[0-9A-F]{16}\] \w+:(\d+)\n(\S+) PROC\n  jmp QWORD PTR \[\w+_functions \+ (\d+)\*8\]$`)
	reDefEntry   = regexp.MustCompile(`(?m)^  (\S+)   = (\S+)   @(\d+)   PRIVATE$`)
	reArraySize  = regexp.MustCompile(`const size_t \w+_size = (\d+);`)
)

func atoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

// scrambled returns n exports with ordinals 1..n in a fixed non-sorted order.
func scrambled(n int) exports.Catalog {
	c := make(exports.Catalog, 0, n)
	for i := 0; i < n; i++ {
		ord := uint32((i*7)%n + 1)
		name := "Fn" + strconv.Itoa(int(ord))
		if ord%5 == 0 {
			name = exports.NoName + strconv.Itoa(int(ord))
		}
		c = append(c, exports.Export{Ordinal: ord, Name: name, EntryPoint: uint64(ord) << 4})
	}
	return c
}

func TestSlotBijection(t *testing.T) {
	const n = 64
	c := scrambled(n)
	arts := generate(t, proxy.Project{BinaryName: "lib"}, c)
	src, asm, def := arts["lib.cc"], arts["lib_exports.asm"], arts["lib.def"]

	m := reArraySize.FindStringSubmatch(src)
	if m == nil || atoi(t, m[1]) != n {
		t.Fatalf("array size: got %v, expected %d", m, n)
	}

	slots := reSourceSlot.FindAllStringSubmatch(src, -1)
	stubs := reAsmStub.FindAllStringSubmatch(asm, -1)
	defs := reDefEntry.FindAllStringSubmatch(def, -1)
	if len(slots) != n || len(stubs) != n || len(defs) != n {
		t.Fatalf("entries: source %d, asm %d, def %d, expected %d each", len(slots), len(stubs), len(defs), n)
	}

	seen := make(map[int]bool)
	for i, e := range c {
		slot := int(e.Ordinal) - 1
		if seen[slot] {
			t.Fatalf("slot %d assigned twice", slot)
		}
		seen[slot] = true

		if got := atoi(t, slots[i][1]); got != slot || slots[i][2] != e.Name {
			t.Errorf("source %d: got slot %d %q, expected %d %q", i, got, slots[i][2], slot, e.Name)
		}
		if atoi(t, stubs[i][1]) != int(e.Ordinal) || stubs[i][2] != "lib_"+e.Name || atoi(t, stubs[i][3]) != slot {
			t.Errorf("asm %d: got %v, expected ordinal %d symbol lib_%s slot %d", i, stubs[i][1:], e.Ordinal, e.Name, slot)
		}
		if defs[i][1] != e.Name || defs[i][2] != "lib_"+e.Name || atoi(t, defs[i][3]) != int(e.Ordinal) {
			t.Errorf("def %d: got %v, expected %s = lib_%s @%d", i, defs[i][1:], e.Name, e.Name, e.Ordinal)
		}
		if !strings.Contains(asm, "PUBLIC lib_"+e.Name+"\n") {
			t.Errorf("asm: no PUBLIC for lib_%s", e.Name)
		}
	}
}

func TestAllOrNothingResolution(t *testing.T) {
	arts := generate(t, proxy.Project{BinaryName: "sample"}, sampleCatalog)
	mustContain(t, "sample.cc", arts["sample.cc"],
		"for (size_t i = 0; i < sample_size; ++i)\n    {\n      if (!sample_functions[i])\n      {\n        return false;\n      }\n    }\n\n    return true;",
		"if (!sample_module)\n    {\n      return false;\n    }")
}

func TestUnpackedLoadsFromSystemDirectory(t *testing.T) {
	arts := generate(t, proxy.Project{BinaryName: "sample"}, sampleCatalog)
	src := arts["sample.cc"]
	mustContain(t, "sample.cc", src,
		"#include <shlobj.h>",
		"SHGetFolderPathA(0, CSIDL_SYSTEM, 0, 0, sample_path)",
		`StringCchCatA(sample_path, MAX_PATH, "\\sample.dll")`,
		"HMODULE sample_module = LoadLibraryA(sample_path);")
	if strings.Contains(src, "sample_binary") {
		t.Error("unpacked source references the embedded binary")
	}
}

var reHexByte = regexp.MustCompile(`0x([0-9a-f]{2})`)

func TestPackedRoundTrip(t *testing.T) {
	orig := make([]byte, 0, 300)
	for i := 0; i < 300; i++ {
		orig = append(orig, byte(i*37))
	}
	orig[0], orig[1] = 'M', 'Z'

	p := proxy.Project{BinaryName: "sample", PackOriginal: true, Original: orig}
	arts := generate(t, p, sampleCatalog)

	bin, ok := arts["sample_binary.h"]
	if !ok {
		t.Fatal("sample_binary.h not generated")
	}
	mustContain(t, "sample_binary.h", bin, "#pragma once", "uint8_t sample_binary[] = {")
	body := bin[strings.Index(bin, "{")+1 : strings.LastIndex(bin, "}")]
	var got []byte
	for _, m := range reHexByte.FindAllStringSubmatch(body, -1) {
		v, err := strconv.ParseUint(m[1], 16, 8)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, byte(v))
	}
	if !bytes.Equal(got, orig) {
		t.Errorf("packed bytes differ: got %d bytes, expected %d", len(got), len(orig))
	}

	mustContain(t, "sample.cc", arts["sample.cc"],
		"#include <fstream>",
		`#include "sample_binary.h"`,
		`"sample_data.bin"`,
		"sizeof(sample_binary)",
		"HMODULE sample_module = LoadLibraryA(sample_path);")
	if strings.Contains(arts["sample.cc"], "SHGetFolderPathA") {
		t.Error("packed source still resolves the system directory")
	}
}

func TestPackedWithoutBytes(t *testing.T) {
	_, err := proxy.Generate(proxy.Project{BinaryName: "sample", PackOriginal: true}, sampleCatalog)
	if !errors.IsCode(err, errors.ErrRender) {
		t.Errorf("got %v, expected render error", err)
	}
}

func TestEntryStub(t *testing.T) {
	p := proxy.Project{BinaryName: "sample", EmitEntryStub: true}
	arts := generate(t, p, sampleCatalog)
	mustContain(t, proxy.DllMainFile, arts[proxy.DllMainFile],
		`#include "sample.h"`,
		"BOOL WINAPI DllMain(",
		"case DLL_PROCESS_ATTACH:\n      DisableThreadLibraryCalls(hinstDLL);\n      if (!sample::sample_initialize::initialize())",
		"case DLL_PROCESS_DETACH:\n      break;",
		"return TRUE;")
}

func TestGenerateArtifactOrder(t *testing.T) {
	p := proxy.Project{BinaryName: "sample", PackOriginal: true, EmitEntryStub: true, Original: []byte{0x4d, 0x5a}}
	arts, err := proxy.Generate(p, sampleCatalog)
	if err != nil {
		t.Fatal("Generate:", err)
	}
	want := []string{"sample_binary.h", "dll_main.cc", "sample.h", "sample.cc", "sample_exports.asm", "sample.def"}
	if len(arts) != len(want) {
		t.Fatalf("got %d artifacts, expected %d", len(arts), len(want))
	}
	for i, a := range arts {
		if a.Name != want[i] {
			t.Errorf("artifact %d: got %s, expected %s", i, a.Name, want[i])
		}
	}
}

func TestGenerateArtifactNameClash(t *testing.T) {
	p := proxy.Project{BinaryName: "dll_main", EmitEntryStub: true}
	if _, err := proxy.Generate(p, sampleCatalog); !errors.IsCode(err, errors.ErrLayout) {
		t.Errorf("got %v, expected layout error", err)
	}
	p.EmitEntryStub = false
	if _, err := proxy.Generate(p, sampleCatalog); err != nil {
		t.Errorf("without entry stub: got %v", err)
	}
}

func TestLayoutRejectsBadOrdinals(t *testing.T) {
	tests := []struct {
		name string
		c    exports.Catalog
	}{
		{"zero", exports.Catalog{{Ordinal: 0, Name: "A"}}},
		{"past end", exports.Catalog{{Ordinal: 1, Name: "A"}, {Ordinal: 5, Name: "B"}}},
		{"duplicate", exports.Catalog{{Ordinal: 1, Name: "A"}, {Ordinal: 1, Name: "B"}}},
	}
	for _, tt := range tests {
		_, err := proxy.NewLayout(proxy.Project{BinaryName: "x"}, tt.c)
		if !errors.IsCode(err, errors.ErrLayout) {
			t.Errorf("%s: got %v, expected layout error", tt.name, err)
		}
	}
	if _, err := proxy.NewLayout(proxy.Project{}, sampleCatalog); !errors.IsCode(err, errors.ErrLayout) {
		t.Errorf("empty binary name: got %v, expected layout error", err)
	}
}

func TestLayoutSlots(t *testing.T) {
	l, err := proxy.NewLayout(proxy.Project{BinaryName: "sample"}, sampleCatalog)
	if err != nil {
		t.Fatal("NewLayout:", err)
	}
	if l.Size != 3 {
		t.Errorf("Size: got %d, expected 3", l.Size)
	}
	want := []int{0, 2, 1}
	for i, s := range l.Slots {
		if s.Index != want[i] {
			t.Errorf("slot %d index: got %d, expected %d", i, s.Index, want[i])
		}
		if s.Symbol != "sample_"+s.Name {
			t.Errorf("slot %d symbol: got %s, expected sample_%s", i, s.Symbol, s.Name)
		}
	}
}

func TestDuplicateSymbols(t *testing.T) {
	c := exports.Catalog{{Ordinal: 1, Name: "Foo"}, {Ordinal: 2, Name: "FOO"}}

	_, err := proxy.Generate(proxy.Project{BinaryName: "dup", Strict: true}, c)
	if !errors.IsCode(err, errors.ErrDuplicate) {
		t.Errorf("strict: got %v, expected duplicate error", err)
	}

	var buf bytes.Buffer
	arts := generate(t, proxy.Project{BinaryName: "dup", Logger: log.New(&buf, "", 0)}, c)
	if !strings.Contains(buf.String(), "case-folded duplicate") {
		t.Errorf("expected a warning, got %q", buf.String())
	}
	mustContain(t, "dup.def", arts["dup.def"], "  Foo   = dup_Foo   @1", "  FOO   = dup_FOO   @2")
}
