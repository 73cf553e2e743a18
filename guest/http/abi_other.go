//go:build !wasip1

package http

func req(string, string, string, []byte) (uint16, uint32, error) {
	return 0, 0, ErrUnsupported
}

func headerGet(uint32, string, []byte) (int, error) { return 0, ErrUnsupported }

func headersGetAll(uint32, []byte) (int, error) { return 0, ErrUnsupported }

func bodyRead(uint32, []byte) (int, error) { return 0, ErrUnsupported }

func closeHandle(uint32) error { return ErrUnsupported }
