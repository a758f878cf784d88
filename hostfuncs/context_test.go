package hostfuncs

import (
	"context"
	"testing"
	"time"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHostContext(t *testing.T) {
	hc := NewHostContext(context.Background(), "op_fs_read_file")

	require.NotNil(t, hc)
	assert.Equal(t, "op_fs_read_file", hc.FunctionName())
	assert.Empty(t, hc.Checks())
}

func TestHostContext_ImplementsContext(t *testing.T) {
	hc := NewHostContext(context.Background(), "op_io_write")

	var ctx context.Context = hc
	assert.NotNil(t, ctx)
	assert.Nil(t, hc.Done())
	assert.Nil(t, hc.Err())
	assert.Nil(t, hc.Value("nonexistent"))
}

func TestHostContextFrom(t *testing.T) {
	t.Run("wraps plain context", func(t *testing.T) {
		hc := HostContextFrom(context.Background(), "op_fs_stat")
		assert.Equal(t, "op_fs_stat", hc.FunctionName())
	})

	t.Run("returns existing HostContext for same function", func(t *testing.T) {
		original := NewHostContext(context.Background(), "op_fs_stat")
		assert.Same(t, original, HostContextFrom(original, "op_fs_stat"))
	})

	t.Run("wraps HostContext of another function", func(t *testing.T) {
		outer := NewHostContext(context.Background(), "op_fs_open")
		returned := HostContextFrom(outer, "op_io_read")
		assert.Equal(t, "op_io_read", returned.FunctionName())
		assert.NotSame(t, outer, returned)
	})

	t.Run("keeps deadlines of derived contexts", func(t *testing.T) {
		outer := NewHostContext(context.Background(), "op_fs_stat")
		derived, cancel := context.WithTimeout(outer, time.Minute)
		defer cancel()

		returned := HostContextFrom(derived, "op_fs_stat")
		_, ok := returned.Deadline()
		assert.True(t, ok)
	})
}

func TestAuthorize_RecordsChecks(t *testing.T) {
	broker := testutil.NewRecordingBroker(nil)
	st := NewState()
	require.NoError(t, st.SetBroker(broker))
	hc := NewHostContext(WithState(context.Background(), st), "op_fs_copy_file")

	// Handlers may derive contexts; checks still land on the HostContext.
	derived, cancel := context.WithCancel(hc)
	defer cancel()

	_, err := Authorize(derived, entities.NewRequest(entities.CapabilityRead, "/project/a.txt", "copyFile"))
	require.NoError(t, err)
	_, err = Authorize(hc, entities.NewRequest(entities.CapabilityWrite, "/project/b.txt", "copyFile"))
	require.NoError(t, err)

	checks := hc.Checks()
	require.Len(t, checks, 2)
	assert.Equal(t, AccessCheck{Capability: entities.CapabilityRead, Path: "/project/a.txt", Allowed: true}, checks[0])
	assert.Equal(t, entities.CapabilityWrite, checks[1].Capability)
}

func TestAuthorize_RecordsDenial(t *testing.T) {
	hc := NewHostContext(WithState(context.Background(), NewState()), "op_fs_write_file")

	_, err := Authorize(hc, entities.NewRequest(entities.CapabilityWrite, "/etc/passwd", "writeFile"))
	require.Error(t, err)

	checks := hc.Checks()
	require.Len(t, checks, 1)
	assert.False(t, checks[0].Allowed)
	assert.Equal(t, reasonNoBroker, checks[0].Reason)
}
