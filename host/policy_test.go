package host_test

import (
	"testing"

	"github.com/reglet-dev/reglet-script/application/validation"
	"github.com/reglet-dev/reglet-script/domain/entities"
	domerrors "github.com/reglet-dev/reglet-script/domain/errors"
	"github.com/reglet-dev/reglet-script/host"
	"github.com/reglet-dev/reglet-script/infrastructure/grantstore"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const projectPolicy = `
fs:
  rules:
    - read: ["/project/**"]
deny: [write_all]
`

func newValidatingLoader(t *testing.T, opts ...host.PolicyLoaderOption) *host.PolicyLoader {
	t.Helper()
	v, err := validation.NewPolicyValidator()
	require.NoError(t, err)
	return host.NewPolicyLoader(append([]host.PolicyLoaderOption{host.WithPolicyValidator(v)}, opts...)...)
}

func TestPolicyLoader_Load(t *testing.T) {
	grants, err := newValidatingLoader(t).Load([]byte(projectPolicy))
	require.NoError(t, err)

	require.NotNil(t, grants.FS)
	require.Len(t, grants.FS.Rules, 1)
	assert.Equal(t, []string{"/project/**"}, grants.FS.Rules[0].Read)
	assert.True(t, grants.Denies(entities.CapabilityWriteAll))
}

func TestPolicyLoader_EmptyDocumentGrantsNothing(t *testing.T) {
	grants, err := host.NewPolicyLoader().Load(nil)
	require.NoError(t, err)
	assert.True(t, grants.IsEmpty())
}

func TestPolicyLoader_SchemaViolation(t *testing.T) {
	_, err := newValidatingLoader(t).Load([]byte("deny: [teleport]\n"))
	require.Error(t, err)

	var se *domerrors.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "policy", se.Type)
}

func TestPolicyLoader_ParseErrorWithoutValidator(t *testing.T) {
	_, err := host.NewPolicyLoader().Load([]byte("fs: [not, a, map]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse policy")
}

func TestPolicyLoader_MergesStoredGrants(t *testing.T) {
	store := grantstore.NewFileStore(
		grantstore.WithFs(afero.NewMemMapFs()),
		grantstore.WithPath("/home/user/.reglet/script-grants.yaml"))
	require.NoError(t, store.Save(&entities.GrantSet{
		FS: &entities.FileSystemCapability{
			Rules: []entities.FileSystemRule{entities.PathRule("/tmp/out.txt", false, true)},
		},
		Deny: []entities.Capability{entities.CapabilityWriteAll},
	}))

	grants, err := newValidatingLoader(t, host.WithStoredGrants(store)).Load([]byte(projectPolicy))
	require.NoError(t, err)

	require.Len(t, grants.FS.Rules, 2)
	assert.Equal(t, []string{"/tmp/out.txt"}, grants.FS.Rules[1].Write)
	assert.Equal(t, []entities.Capability{entities.CapabilityWriteAll}, grants.Deny)
}
