package host

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"sync"

	"github.com/dop251/goja"
	"github.com/reglet-dev/reglet-script/application/modcache"
	"github.com/reglet-dev/reglet-script/application/resolver"
	"github.com/reglet-dev/reglet-script/domain/entities"
	domerrors "github.com/reglet-dev/reglet-script/domain/errors"
	"github.com/reglet-dev/reglet-script/hostfuncs"
	"github.com/reglet-dev/reglet-script/infrastructure/fsys"
	engine "github.com/reglet-dev/reglet-script/infrastructure/goja"
	nativewasm "github.com/reglet-dev/reglet-script/infrastructure/wazero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotRun is wrapped by export queries made before a successful Run.
	ErrNotRun = stdErrors.New("entry module has not run")

	// ErrDisposed is wrapped by EngineErrors returned after Dispose.
	ErrDisposed = stdErrors.New("runtime disposed")
)

// Runtime owns one script engine and the module graph loaded into it.
// Methods are safe for concurrent use; script execution is serialized.
type Runtime struct {
	vm       *goja.Runtime
	bridge   *engine.Bridge
	loader   *engine.Loader
	resolver *resolver.Resolver
	cache    *modcache.Cache
	fs       *hostfuncs.FSModule
	native   *nativewasm.NativeLoader
	state    *hostfuncs.State
	stdout   *hostfuncs.BoundedBuffer
	stderr   *hostfuncs.BoundedBuffer
	exports  goja.Value
	logger   *zap.Logger
	entry    entities.ModuleSpecifier
	entryID  entities.ModuleIdentity
	opts     Options
	mu       sync.Mutex
	disposed bool
}

// New builds a Runtime for entry. Extensions are installed into a fresh
// engine, binding the broker, before entry is resolved. Any failure is an
// EngineError of kind startup.
func New(ctx context.Context, entry string, opts ...Option) (*Runtime, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Broker == nil {
		o.Broker = denyAll()
	}
	if o.FileSystem == nil {
		o.FileSystem = fsys.NewOS()
	}
	if o.BaseDir == "" {
		o.BaseDir = o.FileSystem.Getwd()
	}
	startup := func(err error) error {
		return &domerrors.EngineError{Kind: domerrors.EngineStartup, Err: err}
	}

	r := &Runtime{
		entry:  entities.ModuleSpecifier(entry),
		opts:   o,
		logger: o.Logger,
		stdout: hostfuncs.NewBoundedBuffer(o.MaxOutput),
		stderr: hostfuncs.NewBoundedBuffer(o.MaxOutput),
	}

	r.fs = hostfuncs.NewFSModule(o.FileSystem,
		hostfuncs.WithFetchTimeout(o.FetchTimeout),
		hostfuncs.WithFSLogger(o.Logger))
	exts := o.Extensions(o.Broker, r.fs)

	registry, err := hostfuncs.NewExtensionRegistry(exts,
		hostfuncs.PanicRecoveryMiddleware(),
		hostfuncs.LoggingMiddleware(o.Logger),
		hostfuncs.MetricsMiddleware(o.Recorder))
	if err != nil {
		return nil, startup(err)
	}

	r.state = hostfuncs.NewState(
		hostfuncs.WithStdout(tee(r.stdout, o.Stdout)),
		hostfuncs.WithStderr(tee(r.stderr, o.Stderr)))

	r.vm = goja.New()
	r.vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	r.bridge = engine.NewBridge(r.vm, registry, r.state, engine.WithBridgeLogger(o.Logger))
	if err := r.bridge.Install(exts); err != nil {
		_ = r.state.Close()
		return nil, startup(err)
	}
	if err := engine.DefinePathBuiltin(r.bridge); err != nil {
		_ = r.state.Close()
		return nil, startup(err)
	}

	r.native, err = nativewasm.NewNativeLoader(ctx,
		nativewasm.WithCompilationCache(o.CacheBackend, o.CacheDir),
		nativewasm.WithHostRegistry(registry),
		nativewasm.WithLogger(o.Logger))
	if err != nil {
		_ = r.state.Close()
		return nil, startup(err)
	}

	r.resolver = resolver.New(
		resolver.WithBaseDir(o.BaseDir),
		resolver.WithBuiltins(r.bridge.Builtins()...))
	r.cache = modcache.New(modcache.WithLogger(o.Logger), modcache.WithRecorder(o.Recorder))
	r.loader, err = engine.NewLoader(r.bridge, r.resolver, r.cache, r.fs.Fetch,
		engine.WithNative(r.instantiate),
		engine.WithLoaderLogger(o.Logger))
	if err != nil {
		_ = r.native.Close(ctx)
		_ = r.state.Close()
		return nil, startup(err)
	}

	r.entryID, err = r.resolver.Resolve(r.entry, nil)
	if err != nil {
		_ = r.native.Close(ctx)
		_ = r.state.Close()
		return nil, &domerrors.EngineError{Kind: domerrors.EngineLoad, Err: err}
	}

	r.logger.Debug("runtime ready",
		zap.String("entry", r.entryID.String()),
		zap.Strings("extensions", r.bridge.Installed()))
	return r, nil
}

func tee(buf *hostfuncs.BoundedBuffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}

func (r *Runtime) instantiate(ctx context.Context, id entities.ModuleIdentity, payload []byte) (engine.NativeModule, error) {
	m, err := r.native.Instantiate(ctx, id, payload)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Entry returns the resolved identity of the entry module.
func (r *Runtime) Entry() entities.ModuleIdentity {
	return r.entryID
}

// Run loads and evaluates the entry module. A Runtime that already ran
// returns immediately; modules are evaluated at most once per Runtime.
func (r *Runtime) Run(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return &domerrors.EngineError{Kind: domerrors.EngineDisposed, Identity: r.entryID, Err: ErrDisposed}
	}
	if r.exports != nil {
		return nil
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
	}
	defer cancel()

	stop, done := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-runCtx.Done():
			r.vm.Interrupt(runCtx.Err())
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		<-done
		r.vm.ClearInterrupt()
	}()

	r.bridge.SetContext(runCtx)
	defer r.bridge.SetContext(context.Background())

	id, exports, err := r.loader.Import(r.bridge.Context(), r.entry)
	if err != nil {
		if id == "" {
			id = r.entryID
		}
		ee := r.engineError(runCtx, id, err)
		r.logger.Debug("run failed",
			zap.String("entry", id.String()),
			zap.String("kind", string(ee.Kind)),
			zap.Error(ee.Err))
		return ee
	}
	r.exports = exports
	return nil
}

// engineError classifies a failed load of the entry graph.
func (r *Runtime) engineError(ctx context.Context, id entities.ModuleIdentity, err error) *domerrors.EngineError {
	var ie *goja.InterruptedError
	if stdErrors.As(err, &ie) || stdErrors.As(engine.Translate(err), &ie) {
		inner := error(ie)
		if v, ok := ie.Value().(error); ok {
			inner = v
		}
		return &domerrors.EngineError{Kind: domerrors.EngineInterrupted, Identity: id, Err: inner}
	}

	var exc *goja.Exception
	thrown := stdErrors.As(err, &exc)
	err = engine.Translate(err)

	if ctx.Err() != nil && stdErrors.Is(err, domerrors.ErrAborted) {
		return &domerrors.EngineError{Kind: domerrors.EngineInterrupted, Identity: id, Err: ctx.Err()}
	}

	var (
		res *domerrors.ResolutionError
		fe  *domerrors.FetchError
		le  *domerrors.LoadError
	)
	if !thrown || stdErrors.As(err, &res) || stdErrors.As(err, &fe) || stdErrors.As(err, &le) {
		return &domerrors.EngineError{Kind: domerrors.EngineLoad, Identity: id, Err: err}
	}
	return &domerrors.EngineError{Kind: domerrors.EngineThrew, Identity: id, Err: err}
}

// Get converts the entry export name to T. "default" falls back to the whole
// exports value when the entry has no default export.
func Get[T any](r *Runtime, name string) (T, error) {
	var out T
	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.export(name)
	if err != nil {
		return out, err
	}

	target := reflect.TypeOf((*T)(nil)).Elem()
	if err := checkKind(v, target); err != nil {
		return out, &domerrors.EngineError{Kind: domerrors.EngineTypeMismatch, Identity: r.entryID, Export: name, Err: err}
	}
	if err := r.vm.ExportTo(v, &out); err != nil {
		return out, &domerrors.EngineError{Kind: domerrors.EngineTypeMismatch, Identity: r.entryID, Export: name, Err: err}
	}
	return out, nil
}

func (r *Runtime) export(name string) (goja.Value, error) {
	if r.disposed {
		return nil, &domerrors.EngineError{Kind: domerrors.EngineDisposed, Identity: r.entryID, Export: name, Err: ErrDisposed}
	}
	if r.exports == nil {
		return nil, &domerrors.EngineError{Kind: domerrors.EngineMissingExport, Identity: r.entryID, Export: name, Err: ErrNotRun}
	}

	if obj, ok := r.exports.(*goja.Object); ok {
		if v := obj.Get(name); v != nil && !goja.IsUndefined(v) {
			return v, nil
		}
	}
	if name == "default" {
		return r.exports, nil
	}
	return nil, &domerrors.EngineError{
		Kind:     domerrors.EngineMissingExport,
		Identity: r.entryID,
		Export:   name,
		Err:      fmt.Errorf("no export named %q", name),
	}
}

// checkKind rejects primitive conversions goja would otherwise coerce, such
// as a string export read as a number.
func checkKind(v goja.Value, target reflect.Type) error {
	if goja.IsNull(v) {
		switch target.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
			return nil
		default:
			return fmt.Errorf("cannot convert null to %s", target)
		}
	}

	got := v.ExportType()
	if got == nil {
		return nil
	}
	mismatch := func() error {
		return fmt.Errorf("cannot convert %s to %s", got, target)
	}
	switch target.Kind() {
	case reflect.String:
		if got.Kind() != reflect.String {
			return mismatch()
		}
	case reflect.Bool:
		if got.Kind() != reflect.Bool {
			return mismatch()
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if k := got.Kind(); k != reflect.Int64 && k != reflect.Float64 {
			return mismatch()
		}
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Func:
		if _, ok := v.(*goja.Object); !ok {
			return mismatch()
		}
	}
	return nil
}

// Keys returns the sorted own enumerable export names of the entry module.
func (r *Runtime) Keys() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil, &domerrors.EngineError{Kind: domerrors.EngineDisposed, Identity: r.entryID, Err: ErrDisposed}
	}
	if r.exports == nil {
		return nil, &domerrors.EngineError{Kind: domerrors.EngineMissingExport, Identity: r.entryID, Err: ErrNotRun}
	}
	obj, ok := r.exports.(*goja.Object)
	if !ok {
		return nil, nil
	}
	keys := obj.Keys()
	slices.Sort(keys)
	return keys, nil
}

// Preload fetches specs concurrently into the module cache without
// evaluating them. Specifiers resolve against the base directory; builtins
// are skipped. Fetch failures are cached like any other load.
func (r *Runtime) Preload(ctx context.Context, specs ...string) error {
	r.mu.Lock()
	disposed := r.disposed
	r.mu.Unlock()
	if disposed {
		return &domerrors.EngineError{Kind: domerrors.EngineDisposed, Err: ErrDisposed}
	}

	ids := make([]entities.ModuleIdentity, 0, len(specs))
	for _, spec := range specs {
		id, err := r.resolver.Resolve(entities.ModuleSpecifier(spec), nil)
		if err != nil {
			return err
		}
		if !id.IsBuiltin() {
			ids = append(ids, id)
		}
	}

	g, gctx := errgroup.WithContext(hostfuncs.WithState(ctx, r.state))
	for _, id := range ids {
		g.Go(func() error {
			_, err := r.cache.LoadOrGet(gctx, id, func(ctx context.Context) ([]byte, error) {
				return r.fs.Fetch(ctx, id)
			})
			return err
		})
	}
	return g.Wait()
}

// Record returns the cache record for spec, resolved against the base
// directory.
func (r *Runtime) Record(spec string) (entities.ModuleRecord, bool) {
	id, err := r.resolver.Resolve(entities.ModuleSpecifier(spec), nil)
	if err != nil {
		return entities.ModuleRecord{}, false
	}
	return r.cache.Record(id)
}

// Records returns every cache record in arena order.
func (r *Runtime) Records() []entities.ModuleRecord {
	return r.cache.Records()
}

// Invalidate drops spec from the module cache and forgets its evaluated
// instance, so the next require fetches and evaluates it again. Modules that
// already hold its exports keep them.
func (r *Runtime) Invalidate(ctx context.Context, spec string) bool {
	id, err := r.resolver.Resolve(entities.ModuleSpecifier(spec), nil)
	if err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return false
	}
	forgot := r.loader.Forget(ctx, id)
	dropped := r.cache.Invalidate(id)
	if id == r.entryID {
		r.exports = nil
	}
	return forgot || dropped
}

// Output returns what script code wrote to stdout and stderr, each capped at
// the configured maximum.
func (r *Runtime) Output() (stdout, stderr string) {
	return r.stdout.String(), r.stderr.String()
}

// OutputTruncated reports whether either stream exceeded the cap.
func (r *Runtime) OutputTruncated() bool {
	return r.stdout.Truncated() || r.stderr.Truncated()
}

// Dispose releases the engine, native modules and module cache. It is safe
// to call more than once.
func (r *Runtime) Dispose(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil
	}
	r.disposed = true
	r.exports = nil

	err := stdErrors.Join(
		r.loader.Close(ctx),
		r.native.Close(ctx),
		r.state.Close(),
	)
	r.cache.Close()
	r.logger.Debug("runtime disposed", zap.String("entry", r.entryID.String()))
	return err
}
