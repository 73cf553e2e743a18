// Package testutil builds small WebAssembly modules for tests, so host
// behavior can be exercised without a guest toolchain.
package testutil

import (
	"bytes"
	"encoding/binary"
)

// ValType is a WebAssembly value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
	F64 ValType = 0x7c
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Import is an imported function.
type Import struct {
	Module string
	Name   string
	Type   FuncType
}

// Func is a module-defined function. Body holds the instructions without
// the trailing end opcode.
type Func struct {
	Export string
	Type   FuncType
	Locals []ValType
	Body   []byte
}

// Data is an active data segment in memory 0.
type Data struct {
	Bytes  []byte
	Offset uint32
}

// Module describes a module to encode. Function indices number the imports
// first, then Funcs in order.
type Module struct {
	Imports     []Import
	Funcs       []Func
	Data        []Data
	MemoryPages uint32
}

// Encode returns the binary module.
func (m Module) Encode() []byte {
	var out bytes.Buffer
	out.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	var types [][]byte
	for _, imp := range m.Imports {
		types = append(types, encodeFuncType(imp.Type))
	}
	for _, f := range m.Funcs {
		types = append(types, encodeFuncType(f.Type))
	}
	writeSection(&out, 1, vec(types))

	if len(m.Imports) > 0 {
		var imports [][]byte
		for i, imp := range m.Imports {
			var b bytes.Buffer
			b.Write(name(imp.Module))
			b.Write(name(imp.Name))
			b.WriteByte(0x00)
			b.Write(uleb(uint64(i)))
			imports = append(imports, b.Bytes())
		}
		writeSection(&out, 2, vec(imports))
	}

	if len(m.Funcs) > 0 {
		var funcs [][]byte
		for i := range m.Funcs {
			funcs = append(funcs, uleb(uint64(len(m.Imports)+i)))
		}
		writeSection(&out, 3, vec(funcs))
	}

	if m.MemoryPages > 0 {
		writeSection(&out, 5, vec([][]byte{append([]byte{0x00}, uleb(uint64(m.MemoryPages))...)}))
	}

	var exports [][]byte
	for i, f := range m.Funcs {
		if f.Export == "" {
			continue
		}
		e := name(f.Export)
		e = append(e, 0x00)
		e = append(e, uleb(uint64(len(m.Imports)+i))...)
		exports = append(exports, e)
	}
	if m.MemoryPages > 0 {
		e := append(name("memory"), 0x02, 0x00)
		exports = append(exports, e)
	}
	if len(exports) > 0 {
		writeSection(&out, 7, vec(exports))
	}

	if len(m.Funcs) > 0 {
		var codes [][]byte
		for _, f := range m.Funcs {
			var body bytes.Buffer
			var locals [][]byte
			for _, l := range f.Locals {
				locals = append(locals, []byte{0x01, byte(l)})
			}
			body.Write(vec(locals))
			body.Write(f.Body)
			body.WriteByte(0x0b)
			codes = append(codes, append(uleb(uint64(body.Len())), body.Bytes()...))
		}
		writeSection(&out, 10, vec(codes))
	}

	if len(m.Data) > 0 {
		var segs [][]byte
		for _, d := range m.Data {
			var b bytes.Buffer
			b.WriteByte(0x00)
			b.Write(I32Const(int32(d.Offset))) //nolint:gosec // G115: test offsets are small
			b.WriteByte(0x0b)
			b.Write(uleb(uint64(len(d.Bytes))))
			b.Write(d.Bytes)
			segs = append(segs, b.Bytes())
		}
		writeSection(&out, 11, vec(segs))
	}

	return out.Bytes()
}

func encodeFuncType(t FuncType) []byte {
	b := []byte{0x60}
	b = append(b, uleb(uint64(len(t.Params)))...)
	for _, p := range t.Params {
		b = append(b, byte(p))
	}
	b = append(b, uleb(uint64(len(t.Results)))...)
	for _, r := range t.Results {
		b = append(b, byte(r))
	}
	return b
}

func writeSection(out *bytes.Buffer, id byte, content []byte) {
	out.WriteByte(id)
	out.Write(uleb(uint64(len(content))))
	out.Write(content)
}

func vec(items [][]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func name(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func uleb(v uint64) []byte {
	return binary.AppendUvarint(nil, v)
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// Code concatenates instruction fragments.
func Code(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Instructions.
var (
	Unreachable = []byte{0x00}
	Drop        = []byte{0x1a}
	End         = []byte{0x0b}
	I32Eqz      = []byte{0x45}
	I32Ne       = []byte{0x47}
	// If opens a block with no result.
	If = []byte{0x04, 0x40}
	// Loop opens a loop with no result.
	Loop = []byte{0x03, 0x40}
)

// I32Const pushes an i32.
func I32Const(v int32) []byte { return append([]byte{0x41}, sleb(int64(v))...) }

// I64Const pushes an i64.
func I64Const(v int64) []byte { return append([]byte{0x42}, sleb(v)...) }

// Call calls function idx.
func Call(idx uint32) []byte { return append([]byte{0x10}, uleb(uint64(idx))...) }

// Br branches to the enclosing block at depth.
func Br(depth uint32) []byte { return append([]byte{0x0c}, uleb(uint64(depth))...) }

// LocalGet pushes local idx.
func LocalGet(idx uint32) []byte { return append([]byte{0x20}, uleb(uint64(idx))...) }

// I32Load loads an i32 from the address on the stack plus offset.
func I32Load(offset uint32) []byte { return append([]byte{0x28, 0x02}, uleb(uint64(offset))...) }

// I32Load16U loads a zero-extended u16.
func I32Load16U(offset uint32) []byte { return append([]byte{0x2f, 0x01}, uleb(uint64(offset))...) }

// I32Store stores the i32 on the stack at the address below it plus offset.
func I32Store(offset uint32) []byte { return append([]byte{0x36, 0x02}, uleb(uint64(offset))...) }

// I64Store stores the i64 on the stack at the address below it plus offset.
func I64Store(offset uint32) []byte { return append([]byte{0x37, 0x03}, uleb(uint64(offset))...) }

// TrapIfNonZero consumes an i32 and traps when it is non-zero.
func TrapIfNonZero() []byte {
	return Code(If, Unreachable, End)
}
