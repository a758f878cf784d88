package fsys_test

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reglet-dev/reglet-script/infrastructure/fsys"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) *fsys.Afero {
	t.Helper()
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/project/main.js", []byte("main"), 0o644))
	require.NoError(t, afero.WriteFile(mem, "/project/lib/util.js", []byte("util"), 0o644))
	require.NoError(t, afero.WriteFile(mem, "/project/lib/data.json", []byte("{}"), 0o644))
	return fsys.New(mem, fsys.WithWorkingDirectory("/project"), fsys.WithTempDir("/tmp"))
}

func TestAfero_ReadWrite(t *testing.T) {
	ctx := context.Background()
	a := seeded(t)

	data, err := a.ReadFile(ctx, "main.js")
	require.NoError(t, err)
	assert.Equal(t, "main", string(data))

	require.NoError(t, a.WriteFile(ctx, "/project/out.txt", []byte("one"), 0o644))
	require.NoError(t, a.AppendFile(ctx, "out.txt", []byte("two"), 0o644))
	data, err = a.ReadFile(ctx, "/project/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "onetwo", string(data))

	require.NoError(t, a.Truncate(ctx, "out.txt", 3))
	data, err = a.ReadFile(ctx, "out.txt")
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
}

func TestAfero_NotFound(t *testing.T) {
	_, err := seeded(t).ReadFile(context.Background(), "/nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestAfero_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := seeded(t).ReadFile(ctx, "main.js")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAfero_StatReadDir(t *testing.T) {
	ctx := context.Background()
	a := seeded(t)

	info, err := a.Stat(ctx, "lib")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	entries, err := a.ReadDir(ctx, "/project/lib")
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"util.js", "data.json"}, names)
}

func TestAfero_MkdirRemove(t *testing.T) {
	ctx := context.Background()
	a := seeded(t)

	require.NoError(t, a.MkdirAll(ctx, "a/b/c", 0o755))
	_, err := a.Stat(ctx, "/project/a/b/c")
	require.NoError(t, err)

	require.NoError(t, a.Remove(ctx, "a", true))
	_, err = a.Stat(ctx, "/project/a")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	assert.ErrorIs(t, a.Remove(ctx, "missing", true), fs.ErrNotExist)
}

func TestAfero_OpenFile(t *testing.T) {
	ctx := context.Background()
	a := seeded(t)

	f, err := a.OpenFile(ctx, "new.txt", os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = a.OpenFile(ctx, "/project/new.txt", os.O_RDONLY, 0)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "hello", string(data))
}

func TestAfero_CreateTemp(t *testing.T) {
	ctx := context.Background()
	a := seeded(t)

	name, err := a.CreateTemp(ctx, "", "script-*.tmp")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "/tmp/script-"))
	assert.True(t, strings.HasSuffix(name, ".tmp"))

	info, err := a.Stat(ctx, name)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestAfero_Glob(t *testing.T) {
	ctx := context.Background()
	a := seeded(t)

	matches, err := a.Glob(ctx, "**/*.js")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/project/main.js", "/project/lib/util.js"}, matches)

	matches, err = a.Glob(ctx, "/project/lib/*.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"/project/lib/data.json"}, matches)
}

func TestAfero_RealpathMemory(t *testing.T) {
	ctx := context.Background()
	a := seeded(t)

	path, err := a.Realpath(ctx, "lib/../main.js")
	require.NoError(t, err)
	assert.Equal(t, "/project/main.js", path)

	_, err = a.Realpath(ctx, "missing.js")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestAfero_RealpathOS(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	target := filepath.Join(dir, "target.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o600))
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.Symlink(target, link))

	a := fsys.NewOS(fsys.WithWorkingDirectory(dir))
	path, err := a.Realpath(context.Background(), "link.txt")
	require.NoError(t, err)
	assert.Equal(t, target, path)
}

func TestAfero_Defaults(t *testing.T) {
	a := fsys.NewMemory()
	assert.Equal(t, "/", a.Getwd())
	assert.Equal(t, "/tmp", a.TempDir())
	assert.NotNil(t, a.Fs())
}
