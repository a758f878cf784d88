// Package parser decodes policy documents.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/ports"
	"gopkg.in/yaml.v3"
)

// YamlPolicyParser implements PolicyParser for YAML. JSON documents parse too,
// since JSON is a subset of YAML.
type YamlPolicyParser struct{}

var _ ports.PolicyParser = (*YamlPolicyParser)(nil)

// NewYamlPolicyParser creates a new YamlPolicyParser.
func NewYamlPolicyParser() *YamlPolicyParser {
	return &YamlPolicyParser{}
}

// Parse decodes data into a GrantSet. Unknown fields and unknown capability
// names are errors. An empty document is an empty GrantSet.
func (p *YamlPolicyParser) Parse(data []byte) (*entities.GrantSet, error) {
	var grants entities.GrantSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&grants); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if grants.FS != nil {
		for i, rule := range grants.FS.Rules {
			if len(rule.Read) == 0 && len(rule.Write) == 0 {
				return nil, fmt.Errorf("failed to parse policy: fs rule %d grants nothing", i)
			}
		}
	}
	return &grants, nil
}
