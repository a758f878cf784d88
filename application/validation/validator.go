// Package validation checks policy documents against the policy schema.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/reglet-dev/reglet-script/application/schema"
	"github.com/reglet-dev/reglet-script/domain/entities"
	domerrors "github.com/reglet-dev/reglet-script/domain/errors"
	"github.com/reglet-dev/reglet-script/domain/ports"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const policyResource = "policy.schema.json"

// PolicyValidator validates YAML or JSON policy documents.
type PolicyValidator struct {
	schema *jsonschema.Schema
}

var _ ports.PolicyValidator = (*PolicyValidator)(nil)

// NewPolicyValidator compiles the policy schema.
func NewPolicyValidator() (*PolicyValidator, error) {
	raw, err := schema.PolicySchema()
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(policyResource, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add policy schema: %w", err)
	}
	sch, err := compiler.Compile(policyResource)
	if err != nil {
		return nil, fmt.Errorf("invalid policy schema: %w", err)
	}
	return &PolicyValidator{schema: sch}, nil
}

// Validate returns a SchemaError listing every violation, or nil.
func (v *PolicyValidator) Validate(data []byte) error {
	result, err := v.Check(data)
	if err != nil {
		return &domerrors.SchemaError{Type: "policy", Err: err}
	}
	if result.Valid {
		return nil
	}
	msgs := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		msgs[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return &domerrors.SchemaError{Type: "policy", Err: errors.New(strings.Join(msgs, "; "))}
}

// Check validates data and reports each violation with its document
// location. The error is only set when data is not YAML or JSON.
func (v *PolicyValidator) Check(data []byte) (*entities.ValidationResult, error) {
	doc, err := toJSONValue(data)
	if err != nil {
		return nil, err
	}

	result := &entities.ValidationResult{Valid: true}
	err = v.schema.Validate(doc)
	if err == nil {
		return result, nil
	}

	result.Valid = false
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		result.Errors = append(result.Errors, entities.ValidationError{Field: "/", Message: err.Error()})
		return result, nil
	}
	for _, unit := range ve.BasicOutput().Errors {
		if unit.Error == "" || strings.HasPrefix(unit.Error, "doesn't validate with") {
			continue
		}
		field := unit.InstanceLocation
		if field == "" {
			field = "/"
		}
		result.Errors = append(result.Errors, entities.ValidationError{Field: field, Message: unit.Error})
	}
	if len(result.Errors) == 0 {
		result.Errors = append(result.Errors, entities.ValidationError{Field: "/", Message: ve.Message})
	}
	return result, nil
}

// toJSONValue decodes a YAML (or JSON) document into the value model the
// schema validator expects.
func toJSONValue(data []byte) (any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	b, err := sonic.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert policy: %w", err)
	}
	var v any
	if err := numberAPI.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("failed to convert policy: %w", err)
	}
	return v, nil
}

// numberAPI keeps numbers as json.Number, the form the schema validator
// compares exactly.
var numberAPI = sonic.Config{UseNumber: true}.Froze()
