package goja

import (
	"context"
	stdErrors "errors"
	"fmt"
	"path"
	"strings"

	"github.com/dop251/goja"
	"github.com/reglet-dev/reglet-script/application/modcache"
	"github.com/reglet-dev/reglet-script/domain/entities"
	domerrors "github.com/reglet-dev/reglet-script/domain/errors"
	"go.uber.org/zap"
)

// ErrNativeDisabled is returned when a .wasm module is loaded without a
// native instantiator.
var ErrNativeDisabled = stdErrors.New("native modules are not enabled")

// Resolver maps specifiers to identities.
type Resolver interface {
	Resolve(spec entities.ModuleSpecifier, referrer *entities.ModuleIdentity) (entities.ModuleIdentity, error)
}

// ModuleCache loads each identity at most once.
type ModuleCache interface {
	LoadOrGet(ctx context.Context, id entities.ModuleIdentity, fetch modcache.Fetcher) (entities.ModuleRecord, error)
}

// FetchFunc reads the payload of one module.
type FetchFunc func(ctx context.Context, id entities.ModuleIdentity) ([]byte, error)

// NativeModule is an instantiated native extension module.
type NativeModule interface {
	Functions() []string
	Call(ctx context.Context, name string, args ...float64) ([]float64, error)
	Close(ctx context.Context) error
}

// NativeFunc instantiates a native module payload.
type NativeFunc func(ctx context.Context, id entities.ModuleIdentity, payload []byte) (NativeModule, error)

// loaderConfig holds configuration for a Loader.
type loaderConfig struct {
	native NativeFunc
	logger *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*loaderConfig)

// WithNative enables .wasm modules.
func WithNative(fn NativeFunc) LoaderOption {
	return func(c *loaderConfig) {
		c.native = fn
	}
}

// WithLoaderLogger sets the logger for evaluation events.
func WithLoaderLogger(logger *zap.Logger) LoaderOption {
	return func(c *loaderConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// instance is the engine-side state of one loaded module, keyed by the arena
// index of its cache record.
type instance struct {
	err    error
	native NativeModule
	module *goja.Object
	id     entities.ModuleIdentity
}

func (i *instance) exports() goja.Value {
	return i.module.Get("exports")
}

// Loader implements CommonJS require for one Bridge.
type Loader struct {
	bridge    *Bridge
	resolver  Resolver
	cache     ModuleCache
	fetch     FetchFunc
	jsonParse goja.Callable
	instances map[int]*instance
	config    loaderConfig
}

// NewLoader creates a Loader. Every non-builtin module goes through resolver,
// then cache with fetch.
func NewLoader(b *Bridge, resolver Resolver, cache ModuleCache, fetch FetchFunc, opts ...LoaderOption) (*Loader, error) {
	cfg := loaderConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	jsonObj := b.vm.Get("JSON")
	if jsonObj == nil {
		return nil, fmt.Errorf("runtime has no JSON object")
	}
	parse, ok := goja.AssertFunction(jsonObj.ToObject(b.vm).Get("parse"))
	if !ok {
		return nil, fmt.Errorf("runtime has no JSON.parse")
	}

	return &Loader{
		bridge:    b,
		resolver:  resolver,
		cache:     cache,
		fetch:     fetch,
		jsonParse: parse,
		instances: make(map[int]*instance),
		config:    cfg,
	}, nil
}

// Import loads spec as a top-level module and returns its identity and exports.
func (l *Loader) Import(ctx context.Context, spec entities.ModuleSpecifier) (entities.ModuleIdentity, goja.Value, error) {
	return l.load(ctx, spec, nil)
}

// Require loads spec imported from referrer.
func (l *Loader) Require(ctx context.Context, spec entities.ModuleSpecifier, referrer *entities.ModuleIdentity) (goja.Value, error) {
	_, v, err := l.load(ctx, spec, referrer)
	return v, err
}

func (l *Loader) load(ctx context.Context, spec entities.ModuleSpecifier, referrer *entities.ModuleIdentity) (entities.ModuleIdentity, goja.Value, error) {
	id, err := l.resolver.Resolve(spec, referrer)
	if err != nil {
		return "", nil, err
	}

	if id.IsBuiltin() {
		v, ok := l.bridge.Builtin(strings.TrimPrefix(id.String(), entities.BuiltinScheme))
		if !ok {
			e := &domerrors.ResolutionError{Kind: domerrors.ResolutionUnsupported, Specifier: string(spec)}
			if referrer != nil {
				e.Referrer = referrer.String()
			}
			return id, nil, e
		}
		return id, v, nil
	}

	rec, err := l.cache.LoadOrGet(ctx, id, func(ctx context.Context) ([]byte, error) {
		return l.fetch(ctx, id)
	})
	if err != nil {
		return id, nil, err
	}

	if inst, ok := l.instances[rec.Index]; ok && inst.id == id {
		if inst.err != nil {
			return id, nil, inst.err
		}
		// A module still evaluating hands out its partial exports.
		return id, inst.exports(), nil
	}

	inst := &instance{id: id, module: l.newModule(id)}
	l.instances[rec.Index] = inst
	if err := l.evaluate(ctx, inst, rec); err != nil {
		if isInterrupt(err) {
			// An interrupted module has not failed; the next run evaluates it again.
			delete(l.instances, rec.Index)
			return id, nil, err
		}
		inst.err = err
		l.config.logger.Debug("module evaluation failed",
			zap.String("module", id.String()),
			zap.Error(err))
		return id, nil, err
	}
	_ = inst.module.Set("loaded", true)
	return id, inst.exports(), nil
}

// isInterrupt reports whether err is an interrupt, possibly rethrown from a
// nested require.
func isInterrupt(err error) bool {
	var ie *goja.InterruptedError
	return stdErrors.As(err, &ie) || stdErrors.As(Translate(err), &ie)
}

func (l *Loader) newModule(id entities.ModuleIdentity) *goja.Object {
	vm := l.bridge.vm
	module := vm.NewObject()
	_ = module.Set("id", id.String())
	_ = module.Set("filename", id.String())
	_ = module.Set("loaded", false)
	_ = module.Set("exports", vm.NewObject())
	return module
}

func (l *Loader) evaluate(ctx context.Context, inst *instance, rec entities.ModuleRecord) error {
	switch rec.Kind {
	case entities.ModuleKindJSON:
		return l.evaluateJSON(inst, rec.Payload)
	case entities.ModuleKindNative:
		return l.evaluateNative(ctx, inst, rec.Payload)
	default:
		return l.evaluateScript(inst, rec.Payload)
	}
}

func (l *Loader) evaluateScript(inst *instance, payload []byte) error {
	vm := l.bridge.vm
	src := "(function (exports, require, module, __filename, __dirname) {" + string(payload) + "\n})"
	prog, err := goja.Compile(inst.id.String(), src, false)
	if err != nil {
		return err
	}
	v, err := vm.RunProgram(prog)
	if err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return fmt.Errorf("module wrapper for %s is not a function", inst.id)
	}

	filename := inst.id.String()
	exports := inst.exports()
	_, err = fn(exports,
		exports,
		vm.ToValue(l.requireFunc(inst.id)),
		inst.module,
		vm.ToValue(filename),
		vm.ToValue(path.Dir(filename)),
	)
	return err
}

func (l *Loader) evaluateJSON(inst *instance, payload []byte) error {
	v, err := l.jsonParse(goja.Undefined(), l.bridge.vm.ToValue(string(payload)))
	if err != nil {
		return err
	}
	return inst.module.Set("exports", v)
}

func (l *Loader) evaluateNative(ctx context.Context, inst *instance, payload []byte) error {
	if l.config.native == nil {
		return ErrNativeDisabled
	}
	nm, err := l.config.native(ctx, inst.id, payload)
	if err != nil {
		return err
	}
	inst.native = nm

	vm := l.bridge.vm
	exports := vm.NewObject()
	for _, name := range nm.Functions() {
		if err := exports.Set(name, l.nativeFunc(nm, name)); err != nil {
			return err
		}
	}
	return inst.module.Set("exports", exports)
}

func (l *Loader) nativeFunc(nm NativeModule, name string) func(goja.FunctionCall) goja.Value {
	vm := l.bridge.vm
	return func(call goja.FunctionCall) goja.Value {
		args := make([]float64, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.ToFloat()
		}
		out, err := nm.Call(l.bridge.Context(), name, args...)
		if err != nil {
			l.bridge.Throw(err)
		}
		switch len(out) {
		case 0:
			return goja.Undefined()
		case 1:
			return vm.ToValue(out[0])
		default:
			vals := make([]any, len(out))
			for i, v := range out {
				vals[i] = v
			}
			return vm.NewArray(vals...)
		}
	}
}

// requireFunc is the require function handed to the module referrer.
func (l *Loader) requireFunc(referrer entities.ModuleIdentity) func(goja.FunctionCall) goja.Value {
	vm := l.bridge.vm
	return func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if _, ok := arg.Export().(string); !ok {
			panic(vm.NewTypeError("require expects a string specifier"))
		}
		v, err := l.Require(l.bridge.Context(), entities.ModuleSpecifier(arg.String()), &referrer)
		if err != nil {
			l.bridge.Throw(err)
		}
		return v
	}
}

// Exports returns the exports of a module evaluated by this loader.
func (l *Loader) Exports(id entities.ModuleIdentity) (goja.Value, bool) {
	for _, inst := range l.instances {
		if inst.id == id && inst.err == nil {
			return inst.exports(), true
		}
	}
	return nil, false
}

// Forget drops the instance of id so the next require evaluates it again.
func (l *Loader) Forget(ctx context.Context, id entities.ModuleIdentity) bool {
	for idx, inst := range l.instances {
		if inst.id != id {
			continue
		}
		if inst.native != nil {
			_ = inst.native.Close(ctx)
		}
		delete(l.instances, idx)
		return true
	}
	return false
}

// Close releases every native module instance.
func (l *Loader) Close(ctx context.Context) error {
	var errs []error
	for idx, inst := range l.instances {
		if inst.native != nil {
			errs = append(errs, inst.native.Close(ctx))
		}
		delete(l.instances, idx)
	}
	return stdErrors.Join(errs...)
}
