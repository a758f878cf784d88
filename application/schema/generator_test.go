package schema

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var decoded map[string]any
	require.NoError(t, sonic.Unmarshal(data, &decoded))
	return decoded
}

func TestGenerateSchema_SimpleStruct(t *testing.T) {
	type SimpleConfig struct {
		Host string `json:"host"`
		Port int    `json:"port,omitempty"`
	}

	schema, err := GenerateSchema(SimpleConfig{})
	require.NoError(t, err)

	decoded := decode(t, schema)
	properties, ok := decoded["properties"].(map[string]any)
	require.True(t, ok, "properties should be a map")
	assert.Contains(t, properties, "host")
	assert.Contains(t, properties, "port")

	required, ok := decoded["required"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"host"}, required)
}

func TestGenerateSchema_NestedStructInlined(t *testing.T) {
	type ServerConfig struct {
		Host string `json:"host"`
	}
	type Config struct {
		Server ServerConfig `json:"server"`
	}

	schema, err := GenerateSchema(Config{})
	require.NoError(t, err)

	assert.NotContains(t, string(schema), "$ref")
	assert.Contains(t, string(schema), "host")
}

func TestPolicySchema(t *testing.T) {
	schema, err := PolicySchema()
	require.NoError(t, err)

	decoded := decode(t, schema)
	assert.Equal(t, false, decoded["additionalProperties"])

	properties := decoded["properties"].(map[string]any)
	for _, key := range []string{"fs", "deny", "allow_read_all", "allow_write_all", "allow_blind"} {
		assert.Contains(t, properties, key)
	}
	assert.NotContains(t, decoded, "required", "every top-level field is optional")

	t.Run("deny is a capability enum", func(t *testing.T) {
		deny := properties["deny"].(map[string]any)
		items := deny["items"].(map[string]any)
		assert.Equal(t, "string", items["type"])
		assert.Equal(t, []any{
			"open", "read", "read_all", "read_blind",
			"write", "write_partial", "write_all", "write_blind",
		}, items["enum"])
	})

	t.Run("fs requires rules", func(t *testing.T) {
		fs := properties["fs"].(map[string]any)
		assert.Equal(t, []any{"rules"}, fs["required"])
	})
}
