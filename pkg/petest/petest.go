// Package petest builds a minimal PE32+ DLL with a known export table for tests.
//
//	ordinal 1  Foo       -> 0x2000
//	ordinal 2  (no name) -> 0 (unused slot)
//	ordinal 3  Bar       -> 0x2020
//	ordinal 4  Fwd       -> forwarder "fwd.Target"
package petest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/Binject/debug/pe"
)

const (
	ImageBase  = 0x180000000
	EdataRVA   = 0x1000
	EdataSize  = 0x80
	fileOff    = 0x200
	rawSize    = 0x200
	ForwardRVA = 0x1060
)

// Name table slots, for tests that patch a name pointer.
const (
	NameRVABar = 0x1038
	NameRVAFoo = 0x103C
	NameRVAFwd = 0x1040
)

// EData returns the export section contents, addressed from EdataRVA.
func EData() []byte {
	b := make([]byte, rawSize)
	put32 := func(rva, v uint32) { binary.LittleEndian.PutUint32(b[rva-EdataRVA:], v) }
	put16 := func(rva uint32, v uint16) { binary.LittleEndian.PutUint16(b[rva-EdataRVA:], v) }
	str := func(rva uint32, s string) { copy(b[rva-EdataRVA:], s+"\x00") }

	// IMAGE_EXPORT_DIRECTORY
	put32(0x100C, 0x1050) // Name
	put32(0x1010, 1)      // Base
	put32(0x1014, 4)      // NumberOfFunctions
	put32(0x1018, 3)      // NumberOfNames
	put32(0x101C, 0x1028) // AddressOfFunctions
	put32(0x1020, 0x1038) // AddressOfNames
	put32(0x1024, 0x1044) // AddressOfNameOrdinals

	put32(0x1028, 0x2000)
	put32(0x102C, 0)
	put32(0x1030, 0x2020)
	put32(0x1034, ForwardRVA)

	put32(NameRVABar, 0x1070)
	put32(NameRVAFoo, 0x1074)
	put32(NameRVAFwd, 0x1078)
	put16(0x1044, 2)
	put16(0x1046, 0)
	put16(0x1048, 3)

	str(0x1050, "sample.dll")
	str(ForwardRVA, "fwd.Target")
	str(0x1070, "Bar")
	str(0x1074, "Foo")
	str(0x1078, "Fwd")
	return b
}

// Image returns the DLL file bytes with EData in a single .edata section.
func Image(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	dos := make([]byte, 0x80)
	dos[0], dos[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(dos[0x3C:], 0x80)
	buf.Write(dos)
	buf.WriteString("PE\x00\x00")

	fh := pe.FileHeader{
		Machine:              0x8664,
		NumberOfSections:     1,
		SizeOfOptionalHeader: 240,
		Characteristics:      0x2022,
	}
	oh := pe.OptionalHeader64{
		Magic:               0x20b,
		ImageBase:           ImageBase,
		SectionAlignment:    0x1000,
		FileAlignment:       0x200,
		SizeOfImage:         0x3000,
		SizeOfHeaders:       0x200,
		NumberOfRvaAndSizes: 16,
	}
	oh.DataDirectory[0] = pe.DataDirectory{VirtualAddress: EdataRVA, Size: EdataSize}
	sh := pe.SectionHeader32{
		VirtualSize:      rawSize,
		VirtualAddress:   EdataRVA,
		SizeOfRawData:    rawSize,
		PointerToRawData: fileOff,
		Characteristics:  0x40000040,
	}
	copy(sh.Name[:], ".edata")
	for _, v := range []any{&fh, &oh, &sh} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatal("binary.Write:", err)
		}
	}
	img := make([]byte, fileOff+rawSize)
	copy(img, buf.Bytes())
	copy(img[fileOff:], EData())
	return img
}

// WriteImage writes Image to sample.dll in a fresh temporary directory.
func WriteImage(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.dll")
	if err := os.WriteFile(path, Image(t), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
