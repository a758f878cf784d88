// Package schema generates JSON schemas for host documents.
package schema

import (
	"fmt"
	"reflect"

	"github.com/bytedance/sonic"
	"github.com/invopop/jsonschema"
	"github.com/reglet-dev/reglet-script/domain/entities"
)

var capabilityType = reflect.TypeOf(entities.Capability(0))

// GenerateSchema creates a JSON schema from a Go struct.
// Nested types are inlined and Capability fields become an enum of
// capability names.
func GenerateSchema(v any) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
		Mapper:         mapType,
	}
	schema := reflector.Reflect(v)

	jsonBytes, err := sonic.ConfigStd.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return jsonBytes, nil
}

// PolicySchema returns the schema of a policy document.
func PolicySchema() ([]byte, error) {
	return GenerateSchema(&entities.GrantSet{})
}

func mapType(t reflect.Type) *jsonschema.Schema {
	if t != capabilityType {
		return nil
	}
	caps := entities.AllCapabilities()
	enum := make([]any, len(caps))
	for i, c := range caps {
		enum[i] = c.String()
	}
	return &jsonschema.Schema{Type: "string", Enum: enum}
}
