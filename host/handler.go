package host

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/reglet-dev/reglet-lambda/domain/errors"
)

// DefaultTaskRoot is where the fabric unpacks the function code.
const DefaultTaskRoot = "/var/task"

// Handler names the module file and export that serve invocations.
type Handler struct {
	// Path is the module file.
	Path string

	// Export is the function called per invocation.
	Export string
}

// ParseHandler resolves a handler setting of the form <module>[.<export>]
// against taskRoot:
//
//	handler        -> handler.wasm, _start
//	handler.run    -> handler.wasm, run
//	handler.wasm   -> handler.wasm, _start
//	handler.wat    -> handler.wat,  _start
func ParseHandler(taskRoot, spec string) (Handler, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Handler{}, &errors.ConfigError{Field: "handler", Err: fmt.Errorf("handler is empty")}
	}
	if taskRoot == "" {
		taskRoot = DefaultTaskRoot
	}

	name, export := spec, DefaultEntryPoint
	switch ext := filepath.Ext(spec); ext {
	case ".wasm", ".wat":
	case "":
		name = spec + ".wasm"
	default:
		name = strings.TrimSuffix(spec, ext) + ".wasm"
		export = strings.TrimPrefix(ext, ".")
	}
	if strings.HasSuffix(name, "/.wasm") || name == ".wasm" {
		return Handler{}, &errors.ConfigError{Field: "handler", Err: fmt.Errorf("handler %q names no module", spec)}
	}

	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(taskRoot, name)
	}
	return Handler{Path: path, Export: export}, nil
}

// Load reads the module binary. The text format is not accepted; modules
// must be assembled ahead of time.
func (h Handler) Load() ([]byte, error) {
	if filepath.Ext(h.Path) == ".wat" {
		return nil, &errors.ConfigError{Field: "handler", Err: fmt.Errorf("%s: text format modules must be assembled to .wasm", h.Path)}
	}
	wasm, err := os.ReadFile(h.Path)
	if err != nil {
		return nil, &errors.ConfigError{Field: "handler", Err: err}
	}
	return wasm, nil
}
