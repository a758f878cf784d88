package entities_test

import (
	"testing"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/stretchr/testify/assert"
)

func TestModuleIdentity_Kind(t *testing.T) {
	tests := []struct {
		id   entities.ModuleIdentity
		want entities.ModuleKind
	}{
		{"/project/main.js", entities.ModuleKindScript},
		{"/project/lib/util", entities.ModuleKindScript},
		{"/project/data.json", entities.ModuleKindJSON},
		{"/project/DATA.JSON", entities.ModuleKindJSON},
		{"/project/add.wasm", entities.ModuleKindNative},
		{"ext:fs", entities.ModuleKindBuiltin},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.Kind())
		})
	}
}

func TestModuleIdentity_IsBuiltin(t *testing.T) {
	assert.True(t, entities.ModuleIdentity("ext:path").IsBuiltin())
	assert.False(t, entities.ModuleIdentity("/ext:path").IsBuiltin())
}

func TestModuleState_String(t *testing.T) {
	assert.Equal(t, "pending", entities.ModuleStatePending.String())
	assert.Equal(t, "ready", entities.ModuleStateReady.String())
	assert.Equal(t, "failed", entities.ModuleStateFailed.String())
}
