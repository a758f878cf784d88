package wazero

import (
	"context"
	"sync"
	"testing"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/hostfuncs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addWasm exports add(i32, i32) -> i32.
var addWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 0x61, 0x64, 0x64, 0x00, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

// echoWasm imports reglet_host.op_echo, exports memory, allocate (always
// 1024) and run, which calls op_echo with the two bytes "{}" at offset 0.
var echoWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// types: (i64)->i64, (i32)->i32, ()->i64
	0x01, 0x0f, 0x03, 0x60, 0x01, 0x7e, 0x01, 0x7e, 0x60, 0x01, 0x7f, 0x01, 0x7f, 0x60, 0x00, 0x01, 0x7e,
	// import reglet_host.op_echo
	0x02, 0x17, 0x01,
	0x0b, 0x72, 0x65, 0x67, 0x6c, 0x65, 0x74, 0x5f, 0x68, 0x6f, 0x73, 0x74,
	0x07, 0x6f, 0x70, 0x5f, 0x65, 0x63, 0x68, 0x6f, 0x00, 0x00,
	// functions: allocate, run
	0x03, 0x03, 0x02, 0x01, 0x02,
	// one page of memory
	0x05, 0x03, 0x01, 0x00, 0x01,
	// exports: memory, allocate, run
	0x07, 0x1b, 0x03,
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00,
	0x08, 0x61, 0x6c, 0x6c, 0x6f, 0x63, 0x61, 0x74, 0x65, 0x00, 0x01,
	0x03, 0x72, 0x75, 0x6e, 0x00, 0x02,
	// code
	0x0a, 0x0e, 0x02,
	0x05, 0x00, 0x41, 0x80, 0x08, 0x0b,
	0x06, 0x00, 0x42, 0x02, 0x10, 0x00, 0x0b,
	// data: "{}" at 0
	0x0b, 0x08, 0x01, 0x00, 0x41, 0x00, 0x0b, 0x02, 0x7b, 0x7d,
}

func newLoader(t *testing.T, opts ...Option) *NativeLoader {
	t.Helper()
	ctx := context.Background()
	l, err := NewNativeLoader(ctx, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close(ctx) })
	return l
}

func TestNativeLoader_CallExport(t *testing.T) {
	ctx := context.Background()
	l := newLoader(t)

	mod, err := l.Instantiate(ctx, "/project/math.wasm", addWasm)
	require.NoError(t, err)

	assert.Equal(t, entities.ModuleIdentity("/project/math.wasm"), mod.Identity())
	assert.Equal(t, []string{"add"}, mod.Functions())

	out, err := mod.Call(ctx, "add", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, out)

	out, err = mod.Call(ctx, "add", -7, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{-5}, out)
}

func TestNativeLoader_CallErrors(t *testing.T) {
	ctx := context.Background()
	l := newLoader(t)

	mod, err := l.Instantiate(ctx, "/project/math.wasm", addWasm)
	require.NoError(t, err)

	_, err = mod.Call(ctx, "sub", 1, 2)
	require.ErrorIs(t, err, ErrUnknownExport)

	_, err = mod.Call(ctx, "add", 1)
	require.ErrorIs(t, err, ErrArity)
}

func TestNativeLoader_SameIdentityTwice(t *testing.T) {
	ctx := context.Background()
	l := newLoader(t)

	first, err := l.Instantiate(ctx, "/project/math.wasm", addWasm)
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second, err := l.Instantiate(ctx, "/project/math.wasm", addWasm)
	require.NoError(t, err)
	out, err := second.Call(ctx, "add", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, out)
}

func TestNativeLoader_InvalidPayload(t *testing.T) {
	l := newLoader(t)

	_, err := l.Instantiate(context.Background(), "/project/bad.wasm", []byte("not wasm"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/project/bad.wasm")
}

func TestNativeLoader_DirCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for range 2 {
		l, err := NewNativeLoader(ctx, WithCompilationCache(CacheDir, dir))
		require.NoError(t, err)

		mod, err := l.Instantiate(ctx, "/project/math.wasm", addWasm)
		require.NoError(t, err)
		out, err := mod.Call(ctx, "add", 20, 22)
		require.NoError(t, err)
		assert.Equal(t, []float64{42}, out)
		require.NoError(t, l.Close(ctx))
	}
}

func TestNewNativeLoader_BadCacheConfig(t *testing.T) {
	ctx := context.Background()

	_, err := NewNativeLoader(ctx, WithCompilationCache(CacheDir, ""))
	require.Error(t, err)

	_, err = NewNativeLoader(ctx, WithCompilationCache("redis", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestNativeLoader_HostCallReachesRegistry(t *testing.T) {
	ctx := context.Background()

	var (
		mu       sync.Mutex
		payloads []string
		hadState bool
	)
	reg, err := hostfuncs.NewRegistry(
		hostfuncs.WithByteHandler("op_echo", func(ctx context.Context, payload []byte) ([]byte, error) {
			mu.Lock()
			defer mu.Unlock()
			payloads = append(payloads, string(payload))
			hadState = hostfuncs.StateFrom(ctx) != nil
			return []byte(`{"ok":true}`), nil
		}),
	)
	require.NoError(t, err)

	l := newLoader(t, WithHostRegistry(reg))
	mod, err := l.Instantiate(ctx, "/project/echo.wasm", echoWasm)
	require.NoError(t, err)
	assert.Equal(t, []string{"run"}, mod.Functions())

	st := hostfuncs.NewState()
	t.Cleanup(func() { _ = st.Close() })

	out, err := mod.Call(hostfuncs.WithState(ctx, st), "run")
	require.NoError(t, err)

	resp := `{"ok":true}`
	assert.Equal(t, []float64{float64(packPtrLen(1024, uint32(len(resp))))}, out)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"{}"}, payloads)
	assert.True(t, hadState, "engine State must reach the handler")
}
