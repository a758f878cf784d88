package goja

import (
	"bytes"
	"context"
	"testing"

	"github.com/dop251/goja"
	"github.com/reglet-dev/reglet-script/application/modcache"
	"github.com/reglet-dev/reglet-script/application/resolver"
	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/policy"
	"github.com/reglet-dev/reglet-script/domain/ports"
	"github.com/reglet-dev/reglet-script/hostfuncs"
	"github.com/reglet-dev/reglet-script/infrastructure/fsys"
	"github.com/reglet-dev/reglet-script/internal/testutil"
	"github.com/spf13/afero"
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

type engineEnv struct {
	vm      *goja.Runtime
	bridge  *Bridge
	loader  *Loader
	broker  *testutil.RecordingBroker
	backend *testutil.CountingFS
	fs      *hostfuncs.FSModule
	cache   *modcache.Cache
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
}

// readOnlyProject allows reads under /project and nothing else.
func readOnlyProject() ports.PermissionBroker {
	return policy.NewBroker(&entities.GrantSet{
		FS: &entities.FileSystemCapability{
			Rules: []entities.FileSystemRule{entities.RootRule("/project", false)},
		},
	})
}

func newEngine(t *testing.T, inner ports.PermissionBroker, files map[string]string, opts ...LoaderOption) *engineEnv {
	t.Helper()

	mem := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(mem, name, []byte(content), 0o644))
	}
	backend := testutil.NewCountingFS(fsys.New(mem, fsys.WithWorkingDirectory("/project")))
	fsMod := hostfuncs.NewFSModule(backend)
	broker := testutil.NewRecordingBroker(inner)

	exts := hostfuncs.BuildExtensions(broker, fsMod)
	reg, err := hostfuncs.NewExtensionRegistry(exts)
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	st := hostfuncs.NewState(hostfuncs.WithStdout(&stdout), hostfuncs.WithStderr(&stderr))
	t.Cleanup(func() { _ = st.Close() })

	vm := goja.New()
	b := NewBridge(vm, reg, st)
	require.NoError(t, b.Install(exts))
	require.NoError(t, DefinePathBuiltin(b))

	res := resolver.New(resolver.WithBaseDir("/project"), resolver.WithBuiltins(b.Builtins()...))
	cache := modcache.New()
	l, err := NewLoader(b, res, cache, fsMod.Fetch, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close(context.Background()) })

	return &engineEnv{
		vm:      vm,
		bridge:  b,
		loader:  l,
		broker:  broker,
		backend: backend,
		fs:      fsMod,
		cache:   cache,
		stdout:  &stdout,
		stderr:  &stderr,
	}
}

func (e *engineEnv) importModule(t *testing.T, spec string) (entities.ModuleIdentity, goja.Value, error) {
	t.Helper()
	return e.loader.Import(e.bridge.Context(), entities.ModuleSpecifier(spec))
}

func isUndefined(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v)
}
