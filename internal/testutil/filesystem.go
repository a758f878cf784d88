package testutil

import (
	"context"
	"io/fs"
	"sync"
	"sync/atomic"

	"github.com/reglet-dev/reglet-script/domain/ports"
)

// CountingFS counts backend operations. Getwd and TempDir are not counted.
type CountingFS struct {
	ports.FileSystem
	calls atomic.Int64
	reads sync.Map // name -> *atomic.Int64
}

// NewCountingFS wraps inner.
func NewCountingFS(inner ports.FileSystem) *CountingFS {
	return &CountingFS{FileSystem: inner}
}

// Calls returns the number of backend operations performed.
func (c *CountingFS) Calls() int64 {
	return c.calls.Load()
}

// Reads returns how many times name was read with ReadFile.
func (c *CountingFS) Reads(name string) int64 {
	if v, ok := c.reads.Load(name); ok {
		return v.(*atomic.Int64).Load()
	}
	return 0
}

func (c *CountingFS) ReadFile(ctx context.Context, name string) ([]byte, error) {
	c.calls.Add(1)
	v, _ := c.reads.LoadOrStore(name, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
	return c.FileSystem.ReadFile(ctx, name)
}

func (c *CountingFS) WriteFile(ctx context.Context, name string, data []byte, perm fs.FileMode) error {
	c.calls.Add(1)
	return c.FileSystem.WriteFile(ctx, name, data, perm)
}

func (c *CountingFS) AppendFile(ctx context.Context, name string, data []byte, perm fs.FileMode) error {
	c.calls.Add(1)
	return c.FileSystem.AppendFile(ctx, name, data, perm)
}

func (c *CountingFS) Truncate(ctx context.Context, name string, size int64) error {
	c.calls.Add(1)
	return c.FileSystem.Truncate(ctx, name, size)
}

func (c *CountingFS) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	c.calls.Add(1)
	return c.FileSystem.Stat(ctx, name)
}

func (c *CountingFS) ReadDir(ctx context.Context, name string) ([]fs.FileInfo, error) {
	c.calls.Add(1)
	return c.FileSystem.ReadDir(ctx, name)
}

func (c *CountingFS) Realpath(ctx context.Context, name string) (string, error) {
	c.calls.Add(1)
	return c.FileSystem.Realpath(ctx, name)
}

func (c *CountingFS) MkdirAll(ctx context.Context, name string, perm fs.FileMode) error {
	c.calls.Add(1)
	return c.FileSystem.MkdirAll(ctx, name, perm)
}

func (c *CountingFS) Remove(ctx context.Context, name string, recursive bool) error {
	c.calls.Add(1)
	return c.FileSystem.Remove(ctx, name, recursive)
}

func (c *CountingFS) OpenFile(ctx context.Context, name string, flag int, perm fs.FileMode) (ports.File, error) {
	c.calls.Add(1)
	return c.FileSystem.OpenFile(ctx, name, flag, perm)
}

func (c *CountingFS) CreateTemp(ctx context.Context, dir, pattern string) (string, error) {
	c.calls.Add(1)
	return c.FileSystem.CreateTemp(ctx, dir, pattern)
}

func (c *CountingFS) Glob(ctx context.Context, pattern string) ([]string, error) {
	c.calls.Add(1)
	return c.FileSystem.Glob(ctx, pattern)
}

// GatedFS blocks ReadFile until Release is called or the context ends.
type GatedFS struct {
	ports.FileSystem
	gate    chan struct{}
	entered chan string
	once    sync.Once
}

// NewGatedFS wraps inner with a closed gate.
func NewGatedFS(inner ports.FileSystem) *GatedFS {
	return &GatedFS{
		FileSystem: inner,
		gate:       make(chan struct{}),
		entered:    make(chan string, 64),
	}
}

// Entered receives the name of every ReadFile as it starts blocking.
func (g *GatedFS) Entered() <-chan string {
	return g.entered
}

// Release opens the gate for all current and future reads.
func (g *GatedFS) Release() {
	g.once.Do(func() { close(g.gate) })
}

func (g *GatedFS) ReadFile(ctx context.Context, name string) ([]byte, error) {
	select {
	case g.entered <- name:
	default:
	}
	select {
	case <-g.gate:
		return g.FileSystem.ReadFile(ctx, name)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
