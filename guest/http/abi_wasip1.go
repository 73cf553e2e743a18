//go:build wasip1

package http

import "unsafe"

//go:wasmimport wasi_experimental_http req
func rawReq(urlPtr, urlLen, methodPtr, methodLen, headersPtr, headersLen, bodyPtr, bodyLen, statusPtr, handlePtr uint32) uint32

//go:wasmimport wasi_experimental_http header_get
func rawHeaderGet(handle, namePtr, nameLen, valuePtr, valueLen, writtenPtr uint32) uint32

//go:wasmimport wasi_experimental_http headers_get_all
func rawHeadersGetAll(handle, bufPtr, bufLen, writtenPtr uint32) uint32

//go:wasmimport wasi_experimental_http body_read
func rawBodyRead(handle, bufPtr, bufLen, readPtr uint32) uint32

//go:wasmimport wasi_experimental_http close
func rawClose(handle uint32) uint32

func bytesPtr(b []byte) uint32 {
	if len(b) == 0 {
		return 0
	}
	return uint32(uintptr(unsafe.Pointer(unsafe.SliceData(b))))
}

func stringPtr(s string) uint32 {
	if len(s) == 0 {
		return 0
	}
	return uint32(uintptr(unsafe.Pointer(unsafe.StringData(s))))
}

func u32Ptr[T uint16 | uint32](p *T) uint32 {
	return uint32(uintptr(unsafe.Pointer(p)))
}

func req(url, method, headers string, body []byte) (uint16, uint32, error) {
	var status uint16
	var handle uint32
	code := rawReq(
		stringPtr(url), uint32(len(url)),
		stringPtr(method), uint32(len(method)),
		stringPtr(headers), uint32(len(headers)),
		bytesPtr(body), uint32(len(body)),
		u32Ptr(&status), u32Ptr(&handle),
	)
	return status, handle, check(code)
}

func headerGet(handle uint32, name string, buf []byte) (int, error) {
	var written uint32
	code := rawHeaderGet(handle, stringPtr(name), uint32(len(name)), bytesPtr(buf), uint32(len(buf)), u32Ptr(&written))
	return int(written), check(code)
}

func headersGetAll(handle uint32, buf []byte) (int, error) {
	var written uint32
	code := rawHeadersGetAll(handle, bytesPtr(buf), uint32(len(buf)), u32Ptr(&written))
	return int(written), check(code)
}

func bodyRead(handle uint32, buf []byte) (int, error) {
	var read uint32
	code := rawBodyRead(handle, bytesPtr(buf), uint32(len(buf)), u32Ptr(&read))
	return int(read), check(code)
}

func closeHandle(handle uint32) error {
	return check(rawClose(handle))
}
