package goja

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dop251/goja"
	domerrors "github.com/reglet-dev/reglet-script/domain/errors"
	"github.com/reglet-dev/reglet-script/hostfuncs"
	"go.uber.org/zap"
)

// bridgeConfig holds configuration for a Bridge.
type bridgeConfig struct {
	logger *zap.Logger
}

// BridgeOption configures a Bridge.
type BridgeOption func(*bridgeConfig)

// WithBridgeLogger sets the logger used for install events.
func WithBridgeLogger(logger *zap.Logger) BridgeOption {
	return func(c *bridgeConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Bridge connects one goja runtime to a host-call registry and engine State.
// It is not safe for concurrent use; one goroutine drives one runtime.
type Bridge struct {
	vm        *goja.Runtime
	registry  *hostfuncs.HandlerRegistry
	state     *hostfuncs.State
	ctx       context.Context
	ops       *goja.Object
	builtins  map[string]goja.Value
	internal  map[string]goja.Value
	installed []string
	config    bridgeConfig
}

// NewBridge creates a Bridge. Nothing is installed until Install.
func NewBridge(vm *goja.Runtime, registry *hostfuncs.HandlerRegistry, state *hostfuncs.State, opts ...BridgeOption) *Bridge {
	cfg := bridgeConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	b := &Bridge{
		vm:       vm,
		registry: registry,
		state:    state,
		ops:      vm.NewObject(),
		builtins: make(map[string]goja.Value),
		internal: make(map[string]goja.Value),
		config:   cfg,
	}
	b.SetContext(context.Background())
	return b
}

// VM returns the underlying runtime.
func (b *Bridge) VM() *goja.Runtime { return b.vm }

// State returns the engine State ops run against.
func (b *Bridge) State() *hostfuncs.State { return b.state }

// SetContext sets the context host ops and module loads run under. The
// engine State is attached to it.
func (b *Bridge) SetContext(ctx context.Context) {
	b.ctx = hostfuncs.WithState(ctx, b.state)
}

// Context returns the current op context.
func (b *Bridge) Context() context.Context { return b.ctx }

// Installed returns the names of installed extensions in install order.
func (b *Bridge) Installed() []string {
	return slices.Clone(b.installed)
}

// Install installs exts in order. Any failure is an ExtensionError and leaves
// the runtime unusable.
func (b *Bridge) Install(exts []hostfuncs.Extension) error {
	if err := hostfuncs.ValidateExtensions(exts); err != nil {
		return err
	}
	for _, ext := range exts {
		if slices.Contains(b.installed, ext.Name) {
			return &domerrors.ExtensionError{Extension: ext.Name, Reason: "installed twice"}
		}
		for _, dep := range ext.Deps {
			if !slices.Contains(b.installed, dep) {
				return &domerrors.ExtensionError{
					Extension: ext.Name,
					Reason:    fmt.Sprintf("depends on %q, which must be installed first", dep),
				}
			}
		}
		if err := b.install(ext); err != nil {
			return err
		}
		b.installed = append(b.installed, ext.Name)
		b.config.logger.Debug("extension installed", zap.String("extension", ext.Name))
	}
	return nil
}

func (b *Bridge) install(ext hostfuncs.Extension) error {
	fail := func(format string, args ...any) error {
		return &domerrors.ExtensionError{Extension: ext.Name, Reason: fmt.Sprintf(format, args...)}
	}

	if ext.StateInit != nil {
		if err := ext.StateInit(b.state); err != nil {
			return fail("state init: %v", err)
		}
	}

	if ext.Bundle != nil {
		names := make([]string, 0)
		for name := range ext.Bundle.Handlers() {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			if !b.registry.Has(name) {
				return fail("op %s is not in the host registry", name)
			}
			if v := b.ops.Get(name); v != nil && !goja.IsUndefined(v) {
				return fail("op %s is already installed", name)
			}
			if err := b.ops.Set(name, b.opFunc(name)); err != nil {
				return fail("op %s: %v", name, err)
			}
		}
	}

	if ext.Script == "" {
		return nil
	}
	prog, err := goja.Compile(fmt.Sprintf("ext:%s/init.js", ext.Name), ext.Script, true)
	if err != nil {
		return fail("compile: %v", err)
	}
	v, err := b.vm.RunProgram(prog)
	if err != nil {
		return fail("evaluate: %v", err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return fail("script must evaluate to a function")
	}
	_, err = fn(goja.Undefined(),
		b.ops,
		b.vm.ToValue(b.defineFunc(ext.Name)),
		b.vm.ToValue(b.loadFunc()),
		b.vm.GlobalObject(),
	)
	if err != nil {
		return fail("%v", Translate(err))
	}
	return nil
}

// opFunc exposes one registry op to extension scripts: a JSON string in, a
// JSON string out. Go-level failures are thrown.
func (b *Bridge) opFunc(name string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var payload []byte
		if arg := call.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			payload = []byte(arg.String())
		}
		resp, err := b.registry.Invoke(b.ctx, name, payload)
		if err != nil {
			b.Throw(err)
		}
		return b.vm.ToValue(string(resp))
	}
}

func (b *Bridge) defineFunc(ext string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		internal := call.Argument(2).ToBoolean()
		if err := b.define(name, call.Argument(1), internal); err != nil {
			panic(b.vm.NewTypeError(fmt.Sprintf("extension %s: %v", ext, err)))
		}
		return goja.Undefined()
	}
}

func (b *Bridge) loadFunc() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		if v, ok := b.builtins[name]; ok {
			return v
		}
		if v, ok := b.internal[name]; ok {
			return v
		}
		panic(b.vm.NewTypeError(fmt.Sprintf("builtin %q is not defined", name)))
	}
}

// DefineBuiltin publishes exports as the builtin "ext:"+name.
func (b *Bridge) DefineBuiltin(name string, exports goja.Value) error {
	return b.define(name, exports, false)
}

func (b *Bridge) define(name string, exports goja.Value, internal bool) error {
	if name == "" || strings.Contains(name, ":") {
		return fmt.Errorf("invalid builtin name %q", name)
	}
	if _, ok := b.builtins[name]; ok {
		return fmt.Errorf("builtin %q is already defined", name)
	}
	if _, ok := b.internal[name]; ok {
		return fmt.Errorf("builtin %q is already defined", name)
	}
	if internal {
		b.internal[name] = exports
	} else {
		b.builtins[name] = exports
	}
	return nil
}

// Builtin returns the exports of a public builtin. Internal builtins are
// only visible to extension scripts.
func (b *Bridge) Builtin(name string) (goja.Value, bool) {
	v, ok := b.builtins[name]
	return v, ok
}

// Builtins returns the sorted names of the public builtins.
func (b *Bridge) Builtins() []string {
	names := make([]string, 0, len(b.builtins))
	for name := range b.builtins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
