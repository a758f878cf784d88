package host_test

import (
	"context"
	"testing"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/policy"
	"github.com/reglet-dev/reglet-script/host"
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

// project is an in-memory /project tree readable by scripts.
type project struct {
	mem     afero.Fs
	backend *testutil.CountingFS
	broker  *testutil.RecordingBroker
}

func newProject(t *testing.T, files map[string]string) *project {
	t.Helper()
	mem := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(mem, name, []byte(content), 0o644))
	}
	return &project{
		mem:     mem,
		backend: testutil.NewCountingFS(fsys.New(mem, fsys.WithWorkingDirectory("/project"))),
		broker: testutil.NewRecordingBroker(policy.NewBroker(&entities.GrantSet{
			FS: &entities.FileSystemCapability{
				Rules: []entities.FileSystemRule{entities.RootRule("/project", false)},
			},
		})),
	}
}

func (p *project) options(extra ...host.Option) []host.Option {
	return append([]host.Option{
		host.WithBroker(p.broker),
		host.WithFileSystem(p.backend),
		host.WithBaseDir("/project"),
	}, extra...)
}

// start builds a Runtime for entry and disposes it when the test ends.
func (p *project) start(t *testing.T, entry string, extra ...host.Option) *host.Runtime {
	t.Helper()
	r, err := host.New(context.Background(), entry, p.options(extra...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Dispose(context.Background()) })
	return r
}

func (p *project) exists(t *testing.T, name string) bool {
	t.Helper()
	ok, err := afero.Exists(p.mem, name)
	require.NoError(t, err)
	return ok
}
