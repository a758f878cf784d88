package host

import (
	"fmt"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/ports"
	"github.com/reglet-dev/reglet-script/infrastructure/parser"
)

// policyLoaderConfig holds configuration for the PolicyLoader.
type policyLoaderConfig struct {
	parser    ports.PolicyParser
	validator ports.PolicyValidator
	store     ports.GrantStore
}

func defaultPolicyLoaderConfig() policyLoaderConfig {
	return policyLoaderConfig{
		parser: parser.NewYamlPolicyParser(),
	}
}

// PolicyLoaderOption configures the PolicyLoader.
type PolicyLoaderOption func(*policyLoaderConfig)

// WithPolicyParser sets a custom policy parser.
func WithPolicyParser(p ports.PolicyParser) PolicyLoaderOption {
	return func(c *policyLoaderConfig) {
		c.parser = p
	}
}

// WithPolicyValidator checks documents against the policy schema before parsing.
func WithPolicyValidator(v ports.PolicyValidator) PolicyLoaderOption {
	return func(c *policyLoaderConfig) {
		c.validator = v
	}
}

// WithStoredGrants merges grants persisted in store into every loaded policy.
func WithStoredGrants(store ports.GrantStore) PolicyLoaderOption {
	return func(c *policyLoaderConfig) {
		c.store = store
	}
}

// PolicyLoader turns a raw policy document into the GrantSet a broker
// enforces: validate, parse, then merge stored grants.
type PolicyLoader struct {
	config policyLoaderConfig
}

// NewPolicyLoader creates a new PolicyLoader with defaults.
func NewPolicyLoader(opts ...PolicyLoaderOption) *PolicyLoader {
	cfg := defaultPolicyLoaderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &PolicyLoader{config: cfg}
}

// Load builds the GrantSet for raw. An empty document grants nothing beyond
// stored grants.
func (l *PolicyLoader) Load(raw []byte) (*entities.GrantSet, error) {
	if l.config.validator != nil {
		if err := l.config.validator.Validate(raw); err != nil {
			return nil, err
		}
	}

	grants, err := l.config.parser.Parse(raw)
	if err != nil {
		return nil, err
	}

	if l.config.store != nil {
		stored, err := l.config.store.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load stored grants from %s: %w", l.config.store.ConfigPath(), err)
		}
		grants.Merge(stored)
	}
	return grants, nil
}
