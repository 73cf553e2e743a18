package testutil

import (
	"encoding/binary"
	"unicode/utf16"
)

// WASIModule is the WASI preview1 import module.
const WASIModule = "wasi_snapshot_preview1"

var (
	voidFunc    = FuncType{}
	procExit    = FuncType{Params: []ValType{I32}}
	fdIO        = FuncType{Params: []ValType{I32, I32, I32, I32}, Results: []ValType{I32}}
	abortType   = FuncType{Params: []ValType{I32, I32, I32, I32}}
	reqType     = FuncType{Params: []ValType{I32, I32, I32, I32, I32, I32, I32, I32, I32, I32}, Results: []ValType{I32}}
	headerGet   = FuncType{Params: []ValType{I32, I32, I32, I32, I32, I32}, Results: []ValType{I32}}
	closeType   = FuncType{Params: []ValType{I32}, Results: []ValType{I32}}
	bodyRead    = FuncType{Params: []ValType{I32, I32, I32, I32}, Results: []ValType{I32}}
	packedCall  = FuncType{Params: []ValType{I64}, Results: []ValType{I64}}
	allocateFun = FuncType{Params: []ValType{I32}, Results: []ValType{I32}}
)

func start(imports []Import, body []byte, data ...Data) []byte {
	return Module{
		Imports:     imports,
		Funcs:       []Func{{Export: "_start", Type: voidFunc, Body: body}},
		MemoryPages: 1,
		Data:        data,
	}.Encode()
}

// SuccessGuest returns normally from _start.
func SuccessGuest() []byte {
	return start(nil, nil)
}

// TrapGuest executes unreachable.
func TrapGuest() []byte {
	return start(nil, Unreachable)
}

// LoopGuest spins forever.
func LoopGuest() []byte {
	return start(nil, Code(Loop, Br(0), End))
}

// ExitGuest calls proc_exit(code).
func ExitGuest(code uint32) []byte {
	return start(
		[]Import{{Module: WASIModule, Name: "proc_exit", Type: procExit}},
		Code(I32Const(int32(code)), Call(0)), //nolint:gosec // G115: exit codes are reinterpreted as u32 by WASI
	)
}

// StdoutGuest writes text to stdout.
func StdoutGuest(text string) []byte {
	iov := make([]byte, 8)
	binary.LittleEndian.PutUint32(iov[0:], 64)
	binary.LittleEndian.PutUint32(iov[4:], uint32(len(text))) //nolint:gosec // G115: test data
	return start(
		[]Import{{Module: WASIModule, Name: "fd_write", Type: fdIO}},
		Code(I32Const(1), I32Const(8), I32Const(1), I32Const(16), Call(0), Drop),
		Data{Offset: 8, Bytes: iov},
		Data{Offset: 64, Bytes: []byte(text)},
	)
}

// EchoGuest copies up to 1024 bytes of stdin to stdout.
func EchoGuest() []byte {
	iov := make([]byte, 8)
	binary.LittleEndian.PutUint32(iov[0:], 64)
	binary.LittleEndian.PutUint32(iov[4:], 1024)
	return start(
		[]Import{
			{Module: WASIModule, Name: "fd_read", Type: fdIO},
			{Module: WASIModule, Name: "fd_write", Type: fdIO},
		},
		Code(
			I32Const(0), I32Const(8), I32Const(1), I32Const(16), Call(0), Drop,
			// iov.len = bytes read
			I32Const(12), I32Const(16), I32Load(0), I32Store(0),
			I32Const(1), I32Const(8), I32Const(1), I32Const(20), Call(1), Drop,
		),
		Data{Offset: 8, Bytes: iov},
	)
}

// assemblyScriptString lays out s as AssemblyScript does: a u32 byte length
// followed by UTF-16LE code units. The string pointer is the returned
// offset + 4.
func assemblyScriptString(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 4+2*len(units))
	binary.LittleEndian.PutUint32(out, uint32(2*len(units))) //nolint:gosec // G115: test data
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[4+2*i:], u)
	}
	return out
}

// AbortGuest calls env.abort. An empty message passes a null pointer.
func AbortGuest(message, file string, line, column uint32) []byte {
	var data []Data
	msgPtr, filePtr := int32(0), int32(0)
	if message != "" {
		data = append(data, Data{Offset: 96, Bytes: assemblyScriptString(message)})
		msgPtr = 100
	}
	if file != "" {
		data = append(data, Data{Offset: 1024, Bytes: assemblyScriptString(file)})
		filePtr = 1028
	}
	return start(
		[]Import{{Module: "env", Name: "abort", Type: abortType}},
		Code(
			I32Const(msgPtr), I32Const(filePtr),
			I32Const(int32(line)), I32Const(int32(column)), //nolint:gosec // G115: test data
			Call(0),
		),
		data...,
	)
}

// HTTPGuest describes a guest that performs one request through the
// wasi_experimental_http ABI and traps if anything goes wrong.
type HTTPGuest struct {
	URL     string
	Method  string
	Headers string
	Body    string

	// ExpectStatus, when set, traps on any other status.
	ExpectStatus uint16

	// HeaderName, when set, traps unless header_get finds it.
	HeaderName string

	// ReadBody reads one chunk of the body into HTTPBodyOutOffset and
	// stores its length at HTTPBodyReadOffset.
	ReadBody bool

	// ReadCountAt overrides where body_read stores the byte count.
	ReadCountAt uint32
}

// Fixed memory layout of an HTTPGuest.
const (
	httpURLOffset      = 0
	httpMethodOffset   = 256
	httpHeadersOffset  = 272
	httpBodyOffset     = 400
	httpNameOffset     = 448
	HTTPStatusOffset   = 1024
	HTTPHandleOffset   = 1028
	httpWrittenOffset  = 1032
	HTTPBodyReadOffset = 1036
	httpValueOffset    = 1100
	httpValueLen       = 256
	HTTPBodyOutOffset  = 1400
	HTTPBodyOutLen     = 512
)

// Encode builds the module.
func (g HTTPGuest) Encode() []byte {
	imports := []Import{
		{Module: "wasi_experimental_http", Name: "req", Type: reqType},
		{Module: "wasi_experimental_http", Name: "header_get", Type: headerGet},
		{Module: "wasi_experimental_http", Name: "close", Type: closeType},
		{Module: "wasi_experimental_http", Name: "body_read", Type: bodyRead},
	}
	const (
		fnReq       = 0
		fnHeaderGet = 1
		fnClose     = 2
		fnBodyRead  = 3
	)
	l := func(s string) []byte { return I32Const(int32(len(s))) } //nolint:gosec // G115: test data

	body := Code(
		I32Const(httpURLOffset), l(g.URL),
		I32Const(httpMethodOffset), l(g.Method),
		I32Const(httpHeadersOffset), l(g.Headers),
		I32Const(httpBodyOffset), l(g.Body),
		I32Const(HTTPStatusOffset), I32Const(HTTPHandleOffset),
		Call(fnReq), TrapIfNonZero(),
	)
	if g.ExpectStatus != 0 {
		body = Code(body,
			I32Const(HTTPStatusOffset), I32Load16U(0), I32Const(int32(g.ExpectStatus)), I32Ne, TrapIfNonZero(),
		)
	}
	if g.HeaderName != "" {
		body = Code(body,
			I32Const(HTTPHandleOffset), I32Load(0),
			I32Const(httpNameOffset), l(g.HeaderName),
			I32Const(httpValueOffset), I32Const(httpValueLen), I32Const(httpWrittenOffset),
			Call(fnHeaderGet), TrapIfNonZero(),
		)
	}
	readCount := uint32(HTTPBodyReadOffset)
	if g.ReadCountAt != 0 {
		readCount = g.ReadCountAt
	}
	if g.ReadBody {
		body = Code(body,
			I32Const(HTTPHandleOffset), I32Load(0),
			I32Const(HTTPBodyOutOffset), I32Const(HTTPBodyOutLen), I32Const(int32(readCount)), //nolint:gosec // G115: test offsets
			Call(fnBodyRead), TrapIfNonZero(),
		)
	}
	body = Code(body, I32Const(HTTPHandleOffset), I32Load(0), Call(fnClose), Drop)

	return start(imports, body,
		Data{Offset: httpURLOffset, Bytes: []byte(g.URL)},
		Data{Offset: httpMethodOffset, Bytes: []byte(g.Method)},
		Data{Offset: httpHeadersOffset, Bytes: []byte(g.Headers)},
		Data{Offset: httpBodyOffset, Bytes: []byte(g.Body)},
		Data{Offset: httpNameOffset, Bytes: []byte(g.HeaderName)},
	)
}

// MemorylessHeaderGuest declares no memory and exports check, which calls
// header_get(1, 0, 0, 0, 0, 0) and returns its status.
func MemorylessHeaderGuest() []byte {
	return Module{
		Imports: []Import{{Module: "wasi_experimental_http", Name: "header_get", Type: headerGet}},
		Funcs: []Func{{
			Export: "check",
			Type:   FuncType{Results: []ValType{I32}},
			Body: Code(
				I32Const(1), I32Const(0), I32Const(0), I32Const(0), I32Const(0), I32Const(0),
				Call(0),
			),
		}},
	}.Encode()
}

// JSONResultOffset is where JSONCallGuest stores the packed response.
const JSONResultOffset = 2048

const (
	jsonRequestOffset  = 4096
	jsonResponseOffset = 8192
)

// JSONCallGuest calls module.function over the JSON ABI with request and
// stores the packed i64 response at JSONResultOffset. Its allocate export
// always returns the same buffer.
func JSONCallGuest(module, function string, request []byte) []byte {
	packed := int64(jsonRequestOffset)<<32 | int64(len(request))
	return Module{
		Imports: []Import{{Module: module, Name: function, Type: packedCall}},
		Funcs: []Func{
			{Export: "allocate", Type: allocateFun, Body: I32Const(jsonResponseOffset)},
			{Export: "_start", Type: voidFunc, Body: Code(
				I32Const(JSONResultOffset), I64Const(packed), Call(0), I64Store(0),
			)},
		},
		MemoryPages: 1,
		Data:        []Data{{Offset: jsonRequestOffset, Bytes: request}},
	}.Encode()
}
