package policy

import (
	"fmt"
	"sync"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/ports"
)

// promptingConfig holds configuration for the PromptingBroker.
type promptingConfig struct {
	store        ports.GrantStore
	assessor     *entities.RiskAssessor
	onStoreError func(error)
}

// PromptingOption configures a PromptingBroker.
type PromptingOption func(*promptingConfig)

// WithGrantStore persists "always" answers to store.
func WithGrantStore(store ports.GrantStore) PromptingOption {
	return func(c *promptingConfig) {
		c.store = store
	}
}

// WithStoreErrorHandler receives errors from persisting "always" answers.
func WithStoreErrorHandler(fn func(error)) PromptingOption {
	return func(c *promptingConfig) {
		c.onStoreError = fn
	}
}

// PromptingBroker asks a Prompter before denying a path request. An approved
// prompt becomes a grant on the wrapped Broker, so later identical requests are
// decided without asking again.
type PromptingBroker struct {
	inner    *Broker
	prompter ports.Prompter
	config   promptingConfig
	mu       sync.Mutex // one prompt at a time
}

var _ ports.PermissionBroker = (*PromptingBroker)(nil)

// NewPromptingBroker wraps inner with interactive prompting.
func NewPromptingBroker(inner *Broker, prompter ports.Prompter, opts ...PromptingOption) *PromptingBroker {
	cfg := promptingConfig{assessor: entities.NewRiskAssessor()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &PromptingBroker{inner: inner, prompter: prompter, config: cfg}
}

// Decide implements ports.PermissionBroker.
func (p *PromptingBroker) Decide(req entities.PermissionRequest) entities.Decision {
	d := p.inner.decide(req)
	if d.Allowed() || d.Reason() != ReasonPathNotPermitted || !p.prompter.IsInteractive() {
		return p.inner.report(req, d)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another prompt may have granted this path while we waited.
	if d = p.inner.decide(req); d.Allowed() {
		return p.inner.report(req, d)
	}

	path, _ := p.inner.normalize(req)
	read, write := accessOf(req)
	rule := entities.PathRule(path, read, write)
	granted, always, err := p.prompter.PromptForCapability(entities.CapabilityRequest{
		Capability:  req.Capability(),
		Description: describe(req, path),
		Rule:        rule,
		RiskLevel:   p.config.assessor.AssessCapability(req.Capability(), path),
	})
	if err != nil || !granted {
		return p.inner.report(req, d)
	}

	p.inner.Grant(rule)
	if always {
		p.persist(rule)
	}
	return p.inner.report(req, p.inner.decide(req))
}

func (p *PromptingBroker) persist(rule entities.FileSystemRule) {
	if p.config.store == nil {
		return
	}
	err := func() error {
		stored, err := p.config.store.Load()
		if err != nil {
			return err
		}
		stored.AddRule(rule)
		return p.config.store.Save(stored)
	}()
	if err != nil && p.config.onStoreError != nil {
		p.config.onStoreError(fmt.Errorf("persist grant to %s: %w", p.config.store.ConfigPath(), err))
	}
}

func describe(req entities.PermissionRequest, path string) string {
	if api := req.APIName(); api != "" {
		return fmt.Sprintf("%s access to %s (%s)", req.Capability(), path, api)
	}
	return fmt.Sprintf("%s access to %s", req.Capability(), path)
}
