package wazero

import (
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"
	"golang.org/x/text/encoding/unicode"
)

// readBytes copies n bytes at ptr out of guest memory. The copy matters:
// a later memory.grow may move the view Read returns.
func readBytes(mem api.Memory, ptr, n uint32) ([]byte, bool) {
	if n == 0 {
		return []byte{}, true
	}
	view, ok := mem.Read(ptr, n)
	if !ok {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, view)
	return out, true
}

// readUTF8 reads a UTF-8 string. valid is false when the bytes are not UTF-8.
func readUTF8(mem api.Memory, ptr, n uint32) (s string, inBounds, valid bool) {
	b, ok := readBytes(mem, ptr, n)
	if !ok {
		return "", false, false
	}
	if !utf8.Valid(b) {
		return "", true, false
	}
	return string(b), true, true
}

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// readAssemblyScriptString decodes an AssemblyScript string: UTF-16LE code
// units preceded by a u32 byte length at ptr-4.
func readAssemblyScriptString(mem api.Memory, ptr uint32) (string, bool) {
	if ptr < 4 {
		return "", false
	}
	n, ok := mem.ReadUint32Le(ptr - 4)
	if !ok {
		return "", false
	}
	raw, ok := readBytes(mem, ptr, n)
	if !ok {
		return "", false
	}
	decoded, err := utf16LE.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

// packPtrLen packs a pointer and length into a single i64.
// Upper 32 bits: pointer, lower 32 bits: length.
func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// unpackPtrLen unpacks a pointer and length from a packed i64.
func unpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> 32)           //nolint:gosec // G115: Packed format stores 32-bit values
	length = uint32(packed & 0xFFFFFFFF) //nolint:gosec // G115: Packed format stores 32-bit values
	return ptr, length
}
