package host

import (
	"io"
	"time"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/policy"
	"github.com/reglet-dev/reglet-script/domain/ports"
	"github.com/reglet-dev/reglet-script/hostfuncs"
	nativewasm "github.com/reglet-dev/reglet-script/infrastructure/wazero"
	"go.uber.org/zap"
)

// CacheBackend selects where compiled native modules are kept.
type CacheBackend = nativewasm.CacheBackend

// Cache backends.
const (
	CacheMemory = nativewasm.CacheMemory
	CacheDir    = nativewasm.CacheDir
)

// ExtensionsFunc builds the ordered extension list for one engine.
type ExtensionsFunc func(broker ports.PermissionBroker, fs *hostfuncs.FSModule) []hostfuncs.Extension

// Options configures a Runtime.
type Options struct {
	// Broker decides every capability request. Nil denies everything.
	Broker ports.PermissionBroker
	// FileSystem backs the fs ops and module fetches. Nil uses the OS.
	FileSystem ports.FileSystem
	Logger     *zap.Logger
	// Recorder receives decision, load and host-call metrics. Nil disables them.
	Recorder ports.MetricsRecorder
	Stdout   io.Writer
	Stderr   io.Writer
	// Extensions builds the extension list. Nil installs io, fs, bootstrap.
	Extensions   ExtensionsFunc
	CacheBackend CacheBackend
	CacheDir     string
	// BaseDir anchors specifiers without a referrer. Empty uses the working
	// directory of FileSystem.
	BaseDir      string
	Timeout      time.Duration
	FetchTimeout time.Duration
	MaxOutput    int
}

func defaultOptions() Options {
	return Options{
		Logger:       zap.NewNop(),
		Extensions:   hostfuncs.BuildExtensions,
		CacheBackend: CacheMemory,
		FetchTimeout: 30 * time.Second,
		MaxOutput:    hostfuncs.DefaultMaxOutputSize,
	}
}

// denyAll is the broker used when none is configured.
func denyAll() ports.PermissionBroker {
	return policy.NewBroker(&entities.GrantSet{})
}

// Option configures a Runtime.
type Option func(*Options)

// WithOptions replaces every option with o. Later options still apply.
func WithOptions(o Options) Option {
	return func(dst *Options) {
		def := defaultOptions()
		if o.Logger == nil {
			o.Logger = def.Logger
		}
		if o.Extensions == nil {
			o.Extensions = def.Extensions
		}
		if o.CacheBackend == "" {
			o.CacheBackend = def.CacheBackend
		}
		if o.MaxOutput == 0 {
			o.MaxOutput = def.MaxOutput
		}
		*dst = o
	}
}

// WithBroker sets the permission broker.
func WithBroker(b ports.PermissionBroker) Option {
	return func(o *Options) {
		o.Broker = b
	}
}

// WithFileSystem sets the filesystem backend.
func WithFileSystem(fs ports.FileSystem) Option {
	return func(o *Options) {
		o.FileSystem = fs
	}
}

// WithBaseDir sets the directory entry specifiers resolve against.
func WithBaseDir(dir string) Option {
	return func(o *Options) {
		o.BaseDir = dir
	}
}

// WithCacheBackend selects the native compilation cache. dir is only used by
// CacheDir.
func WithCacheBackend(backend CacheBackend, dir string) Option {
	return func(o *Options) {
		o.CacheBackend = backend
		o.CacheDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithRecorder enables metrics.
func WithRecorder(r ports.MetricsRecorder) Option {
	return func(o *Options) {
		o.Recorder = r
	}
}

// WithTimeout bounds each Run. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithFetchTimeout bounds each module fetch. Zero disables the bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.FetchTimeout = d
	}
}

// WithStdout also sends script stdout to w.
func WithStdout(w io.Writer) Option {
	return func(o *Options) {
		o.Stdout = w
	}
}

// WithStderr also sends script stderr to w.
func WithStderr(w io.Writer) Option {
	return func(o *Options) {
		o.Stderr = w
	}
}

// WithMaxOutput caps the captured output per stream.
func WithMaxOutput(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxOutput = n
		}
	}
}

// WithExtensions replaces the extension list builder.
func WithExtensions(fn ExtensionsFunc) Option {
	return func(o *Options) {
		if fn != nil {
			o.Extensions = fn
		}
	}
}
