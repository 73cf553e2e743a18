// Package http is the guest side of the wasi_experimental_http ABI: Go
// handlers compiled with GOOS=wasip1 use it to make outbound requests
// through the host's allow-list.
//
//	resp, err := http.Request("POST", "https://postman-echo.com/post",
//	    http.Header{{"Content-Type", "text/plain"}}, []byte("Testing"))
//	if err != nil {
//	    return err
//	}
//	defer resp.Close()
//
// On other platforms every call fails with ErrUnsupported.
package http
