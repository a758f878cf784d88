package ports

import (
	"context"
	"io"
	"io/fs"
)

// File is an open handle returned by FileSystem.OpenFile.
type File interface {
	io.Reader
	io.Writer
	io.Closer
	Name() string
}

// FileSystem is the backend capability modules and the module fetcher operate on.
// Paths are absolute and have already been approved by the broker; a
// FileSystem performs no permission checks of its own.
type FileSystem interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
	WriteFile(ctx context.Context, name string, data []byte, perm fs.FileMode) error
	AppendFile(ctx context.Context, name string, data []byte, perm fs.FileMode) error
	Truncate(ctx context.Context, name string, size int64) error
	Stat(ctx context.Context, name string) (fs.FileInfo, error)
	ReadDir(ctx context.Context, name string) ([]fs.FileInfo, error)
	Realpath(ctx context.Context, name string) (string, error)
	MkdirAll(ctx context.Context, name string, perm fs.FileMode) error
	Remove(ctx context.Context, name string, recursive bool) error
	OpenFile(ctx context.Context, name string, flag int, perm fs.FileMode) (File, error)
	CreateTemp(ctx context.Context, dir, pattern string) (string, error)
	Glob(ctx context.Context, pattern string) ([]string, error)

	// Getwd returns the working directory relative paths are resolved against.
	Getwd() string

	// TempDir returns the directory CreateTemp uses when dir is empty.
	TempDir() string
}
