package hostfuncs

import (
	"embed"
	"fmt"
	"slices"

	domerrors "github.com/reglet-dev/reglet-script/domain/errors"
	"github.com/reglet-dev/reglet-script/domain/ports"
)

// Extension names.
const (
	ExtIO        = "io"
	ExtFS        = "fs"
	ExtBootstrap = "bootstrap"
)

//go:embed js/*.js
var scripts embed.FS

// Extension is one unit installed into an engine: host ops, an optional
// trusted script, and an optional State initializer. Extensions are installed
// in list order; each may only depend on extensions before it.
//
// Script evaluates to a function expression called as
// fn(ops, define, load, global). ops holds every op installed so far,
// define(name, exports, internal) publishes a builtin module, and load(name)
// returns a builtin published by an earlier extension.
type Extension struct {
	Bundle    HostFuncBundle
	StateInit func(*State) error
	Name      string
	Script    string
	Deps      []string
}

// IOExtension serves the resource-table ops and the io builtin.
func IOExtension() Extension {
	return Extension{
		Name:   ExtIO,
		Bundle: IOModule{}.Bundle(),
		Script: mustScript("io.js"),
	}
}

// FSExtension serves the filesystem ops and the fs builtin.
func FSExtension(m *FSModule) Extension {
	return Extension{
		Name:   ExtFS,
		Deps:   []string{ExtIO},
		Bundle: m.Bundle(),
		Script: mustScript("fs.js"),
	}
}

// BootstrapExtension installs broker into engine state and exposes the fs
// and console globals to script code.
func BootstrapExtension(broker ports.PermissionBroker) Extension {
	return Extension{
		Name: ExtBootstrap,
		Deps: []string{ExtIO, ExtFS},
		StateInit: func(st *State) error {
			return st.SetBroker(broker)
		},
		Script: mustScript("bootstrap.js"),
	}
}

// BuildExtensions returns the standard extension list: io, fs, bootstrap.
func BuildExtensions(broker ports.PermissionBroker, m *FSModule) []Extension {
	return []Extension{
		IOExtension(),
		FSExtension(m),
		BootstrapExtension(broker),
	}
}

// ValidateExtensions checks that names are unique and that every dependency
// appears earlier in the list.
func ValidateExtensions(exts []Extension) error {
	seen := make([]string, 0, len(exts))
	for _, ext := range exts {
		if ext.Name == "" {
			return &domerrors.ExtensionError{Reason: "extension name cannot be empty"}
		}
		if slices.Contains(seen, ext.Name) {
			return &domerrors.ExtensionError{Extension: ext.Name, Reason: "installed twice"}
		}
		for _, dep := range ext.Deps {
			if !slices.Contains(seen, dep) {
				return &domerrors.ExtensionError{
					Extension: ext.Name,
					Reason:    fmt.Sprintf("depends on %q, which must be installed first", dep),
				}
			}
		}
		seen = append(seen, ext.Name)
	}
	return nil
}

// NewExtensionRegistry validates exts and builds one registry serving all of
// their ops, wrapped by mw.
func NewExtensionRegistry(exts []Extension, mw ...Middleware) (*HandlerRegistry, error) {
	if err := ValidateExtensions(exts); err != nil {
		return nil, err
	}
	opts := []RegistryOption{WithMiddleware(mw...)}
	for _, ext := range exts {
		opts = append(opts, WithBundle(ext.Bundle))
	}
	reg, err := NewRegistry(opts...)
	if err != nil {
		return nil, &domerrors.ExtensionError{Extension: "registry", Reason: err.Error()}
	}
	return reg, nil
}

func mustScript(name string) string {
	b, err := scripts.ReadFile("js/" + name)
	if err != nil {
		panic(fmt.Sprintf("missing embedded script %s: %v", name, err))
	}
	return string(b)
}
