// Package fsys provides the filesystem backends capability modules operate on.
package fsys

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/reglet-dev/reglet-script/domain/ports"
	"github.com/spf13/afero"
)

// aferoConfig holds configuration for an Afero backend.
type aferoConfig struct {
	cwd     string
	tempDir string
}

// Option configures an Afero backend.
type Option func(*aferoConfig)

// WithWorkingDirectory sets the directory relative names are resolved against.
func WithWorkingDirectory(dir string) Option {
	return func(c *aferoConfig) {
		if dir != "" {
			c.cwd = filepath.Clean(dir)
		}
	}
}

// WithTempDir sets the directory CreateTemp uses when none is given.
func WithTempDir(dir string) Option {
	return func(c *aferoConfig) {
		if dir != "" {
			c.tempDir = filepath.Clean(dir)
		}
	}
}

// Afero adapts an afero.Fs to ports.FileSystem.
type Afero struct {
	fs     afero.Fs
	root   afero.Fs // fs rooted at "/" for io/fs consumers
	config aferoConfig
}

var _ ports.FileSystem = (*Afero)(nil)

// New wraps an arbitrary afero filesystem.
func New(backing afero.Fs, opts ...Option) *Afero {
	cfg := aferoConfig{cwd: "/", tempDir: "/tmp"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Afero{
		fs:     backing,
		root:   afero.NewBasePathFs(backing, "/"),
		config: cfg,
	}
}

// NewOS returns a backend over the host filesystem rooted at the process
// working directory.
func NewOS(opts ...Option) *Afero {
	cwd, _ := os.Getwd() // best effort; "/" is used when unavailable
	base := []Option{WithWorkingDirectory(cwd), WithTempDir(os.TempDir())}
	return New(afero.NewOsFs(), append(base, opts...)...)
}

// NewMemory returns an empty in-memory backend.
func NewMemory(opts ...Option) *Afero {
	return New(afero.NewMemMapFs(), opts...)
}

// Fs returns the underlying afero filesystem.
func (a *Afero) Fs() afero.Fs {
	return a.fs
}

func (a *Afero) abs(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(a.config.cwd, name)
}

// ReadFile implements ports.FileSystem.
func (a *Afero) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return afero.ReadFile(a.fs, a.abs(name))
}

// WriteFile implements ports.FileSystem.
func (a *Afero) WriteFile(ctx context.Context, name string, data []byte, perm fs.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return afero.WriteFile(a.fs, a.abs(name), data, perm)
}

// AppendFile implements ports.FileSystem.
func (a *Afero) AppendFile(ctx context.Context, name string, data []byte, perm fs.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := a.fs.OpenFile(a.abs(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Truncate implements ports.FileSystem.
func (a *Afero) Truncate(ctx context.Context, name string, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := a.fs.OpenFile(a.abs(name), os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Stat implements ports.FileSystem.
func (a *Afero) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.fs.Stat(a.abs(name))
}

// ReadDir implements ports.FileSystem.
func (a *Afero) ReadDir(ctx context.Context, name string) ([]fs.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return afero.ReadDir(a.fs, a.abs(name))
}

// Realpath implements ports.FileSystem. Symlinks are resolved only on the
// host filesystem; other backends return the cleaned path of an existing entry.
func (a *Afero) Realpath(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := a.abs(name)
	if _, ok := a.fs.(*afero.OsFs); ok {
		return filepath.EvalSymlinks(path)
	}
	if _, err := a.fs.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

// MkdirAll implements ports.FileSystem.
func (a *Afero) MkdirAll(ctx context.Context, name string, perm fs.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.fs.MkdirAll(a.abs(name), perm)
}

// Remove implements ports.FileSystem.
func (a *Afero) Remove(ctx context.Context, name string, recursive bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := a.abs(name)
	if recursive {
		if _, err := a.fs.Stat(path); err != nil {
			return err
		}
		return a.fs.RemoveAll(path)
	}
	return a.fs.Remove(path)
}

// OpenFile implements ports.FileSystem.
func (a *Afero) OpenFile(ctx context.Context, name string, flag int, perm fs.FileMode) (ports.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.fs.OpenFile(a.abs(name), flag, perm)
}

// CreateTemp implements ports.FileSystem. The file is created empty and closed.
func (a *Afero) CreateTemp(ctx context.Context, dir, pattern string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if dir == "" {
		dir = a.config.tempDir
	}
	dir = a.abs(dir)
	if err := a.fs.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	f, err := afero.TempFile(a.fs, dir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", err
	}
	return name, nil
}

// Glob implements ports.FileSystem. Relative patterns are anchored at the
// working directory; matches are absolute.
func (a *Afero) Glob(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs := filepath.ToSlash(a.abs(pattern))
	matches, err := doublestar.Glob(afero.NewIOFS(a.root), strings.TrimPrefix(abs, "/"))
	if err != nil {
		return nil, err
	}
	for i, m := range matches {
		matches[i] = "/" + m
	}
	return matches, nil
}

// Getwd implements ports.FileSystem.
func (a *Afero) Getwd() string {
	return a.config.cwd
}

// TempDir implements ports.FileSystem.
func (a *Afero) TempDir() string {
	return a.config.tempDir
}
