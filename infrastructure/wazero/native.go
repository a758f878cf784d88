package wazero

import (
	"context"
	stdErrors "errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/hostfuncs"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// CacheBackend selects where compiled native modules are kept.
type CacheBackend string

const (
	// CacheMemory keeps compiled code for the life of the loader.
	CacheMemory CacheBackend = "memory"
	// CacheDir persists compiled code in a directory shared across runs.
	CacheDir CacheBackend = "dir"
)

var (
	// ErrUnknownExport is returned when calling a function the module does not export.
	ErrUnknownExport = stdErrors.New("unknown native export")

	// ErrArity is returned when a call passes the wrong number of arguments.
	ErrArity = stdErrors.New("wrong number of arguments")
)

// reservedExports are guest ABI functions never exposed to script code.
var reservedExports = []string{"_initialize", "_start", "allocate", "deallocate"}

// loaderConfig holds configuration for the NativeLoader.
type loaderConfig struct {
	registry    *hostfuncs.HandlerRegistry
	logger      *zap.Logger
	backend     CacheBackend
	cacheDir    string
	adapterOpts []AdapterOption
}

func defaultLoaderConfig() loaderConfig {
	return loaderConfig{
		backend: CacheMemory,
		logger:  zap.NewNop(),
	}
}

// Option configures a NativeLoader.
type Option func(*loaderConfig)

// WithCompilationCache selects the compilation cache. dir is only used by CacheDir.
func WithCompilationCache(backend CacheBackend, dir string) Option {
	return func(c *loaderConfig) {
		c.backend = backend
		c.cacheDir = dir
	}
}

// WithHostRegistry exposes registry to guests as the host module.
func WithHostRegistry(registry *hostfuncs.HandlerRegistry, opts ...AdapterOption) Option {
	return func(c *loaderConfig) {
		c.registry = registry
		c.adapterOpts = append(c.adapterOpts, opts...)
	}
}

// WithLogger sets the logger for instantiation and ABI events.
func WithLogger(logger *zap.Logger) Option {
	return func(c *loaderConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NativeLoader compiles and instantiates native extension modules.
type NativeLoader struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	config  loaderConfig
	seq     atomic.Uint64
}

// NewNativeLoader starts a wazero runtime with the configured compilation
// cache and, when a registry is given, the host module.
func NewNativeLoader(ctx context.Context, opts ...Option) (*NativeLoader, error) {
	cfg := defaultLoaderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var cache wazero.CompilationCache
	switch cfg.backend {
	case CacheMemory, "":
		cache = wazero.NewCompilationCache()
	case CacheDir:
		if cfg.cacheDir == "" {
			return nil, fmt.Errorf("compilation cache directory is required for backend %q", cfg.backend)
		}
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cfg.cacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open compilation cache: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown compilation cache backend %q", cfg.backend)
	}

	rtConfig := wazero.NewRuntimeConfig().
		WithCompilationCache(cache).
		WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)

	if cfg.registry != nil {
		adapterOpts := append([]AdapterOption{WithAdapterLogger(cfg.logger)}, cfg.adapterOpts...)
		if err := RegisterWithRuntime(ctx, rt, cfg.registry, adapterOpts...); err != nil {
			_ = rt.Close(ctx)
			_ = cache.Close(ctx)
			return nil, fmt.Errorf("failed to register host functions: %w", err)
		}
	}

	return &NativeLoader{runtime: rt, cache: cache, config: cfg}, nil
}

// Instantiate compiles payload and instantiates it as the module id.
func (l *NativeLoader) Instantiate(ctx context.Context, id entities.ModuleIdentity, payload []byte) (*Module, error) {
	ctx = WithCaller(ctx, id)
	compiled, err := l.runtime.CompileModule(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", id, err)
	}

	name := fmt.Sprintf("%s#%d", id, l.seq.Add(1))
	mod, err := l.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name).WithStartFunctions())
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate %s: %w", id, err)
	}

	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			_ = mod.Close(ctx)
			_ = compiled.Close(ctx)
			return nil, fmt.Errorf("failed to call _initialize: %w", err)
		}
	}

	m := &Module{id: id, module: mod, compiled: compiled}
	l.config.logger.Debug("native module instantiated",
		zap.String("module", id.String()),
		zap.Strings("exports", m.Functions()))
	return m, nil
}

// Close releases the runtime and every module instantiated from it.
func (l *NativeLoader) Close(ctx context.Context) error {
	return stdErrors.Join(l.runtime.Close(ctx), l.cache.Close(ctx))
}

// Module is one instantiated native extension module.
type Module struct {
	module   api.Module
	compiled wazero.CompiledModule
	id       entities.ModuleIdentity
}

// Identity returns the module identity the instance was created for.
func (m *Module) Identity() entities.ModuleIdentity { return m.id }

// Functions returns the sorted names of the callable exports.
func (m *Module) Functions() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		if slices.Contains(reservedExports, name) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Call invokes the export name. Arguments and results are numbers converted
// according to the function signature.
func (m *Module) Call(ctx context.Context, name string, args ...float64) ([]float64, error) {
	if slices.Contains(reservedExports, name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExport, name)
	}
	fn := m.module.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExport, name)
	}

	def := fn.Definition()
	params := def.ParamTypes()
	if len(args) != len(params) {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrArity, name, len(params), len(args))
	}

	stack := make([]uint64, len(params))
	for i, t := range params {
		v, err := encodeValue(t, args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, name, err)
		}
		stack[i] = v
	}

	results, err := fn.Call(WithCaller(ctx, m.id), stack...)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(results))
	for i, t := range def.ResultTypes() {
		v, err := decodeValue(t, results[i])
		if err != nil {
			return nil, fmt.Errorf("result %d of %s: %w", i, name, err)
		}
		out[i] = v
	}
	return out, nil
}

// Close releases the instance and its compiled code.
func (m *Module) Close(ctx context.Context) error {
	return stdErrors.Join(m.module.Close(ctx), m.compiled.Close(ctx))
}

func encodeValue(t api.ValueType, v float64) (uint64, error) {
	switch t {
	case api.ValueTypeI32:
		return api.EncodeI32(int32(v)), nil
	case api.ValueTypeI64:
		return api.EncodeI64(int64(v)), nil
	case api.ValueTypeF32:
		return api.EncodeF32(float32(v)), nil
	case api.ValueTypeF64:
		return api.EncodeF64(v), nil
	default:
		return 0, fmt.Errorf("unsupported value type %s", api.ValueTypeName(t))
	}
}

func decodeValue(t api.ValueType, v uint64) (float64, error) {
	switch t {
	case api.ValueTypeI32:
		return float64(api.DecodeI32(v)), nil
	case api.ValueTypeI64:
		return float64(int64(v)), nil //nolint:gosec // G115: i64 results are signed
	case api.ValueTypeF32:
		return float64(api.DecodeF32(v)), nil
	case api.ValueTypeF64:
		return api.DecodeF64(v), nil
	default:
		return 0, fmt.Errorf("unsupported value type %s", api.ValueTypeName(t))
	}
}
