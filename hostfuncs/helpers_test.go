package hostfuncs

import (
	"bytes"
	"context"
	"testing"

	"github.com/reglet-dev/reglet-script/domain/ports"
	"github.com/reglet-dev/reglet-script/infrastructure/fsys"
	"github.com/reglet-dev/reglet-script/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type fsEnv struct {
	ctx     context.Context
	module  *FSModule
	backend *testutil.CountingFS
	state   *State
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
}

func newFSEnv(t *testing.T, broker ports.PermissionBroker, opts ...FSOption) *fsEnv {
	t.Helper()
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/project/main.js", []byte("console.log('hi')"), 0o644))
	require.NoError(t, afero.WriteFile(mem, "/project/data.json", []byte(`{"n":1}`), 0o644))
	require.NoError(t, afero.WriteFile(mem, "/secret/key", []byte("k"), 0o600))

	backend := testutil.NewCountingFS(fsys.New(mem, fsys.WithWorkingDirectory("/project")))
	var stdout, stderr bytes.Buffer
	st := NewState(WithStdout(&stdout), WithStderr(&stderr))
	if broker != nil {
		require.NoError(t, st.SetBroker(broker))
	}
	return &fsEnv{
		ctx:     WithState(context.Background(), st),
		module:  NewFSModule(backend, opts...),
		backend: backend,
		state:   st,
		stdout:  &stdout,
		stderr:  &stderr,
	}
}
