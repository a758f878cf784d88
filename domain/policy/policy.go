package policy

import (
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/ports"
)

// Denial reasons. They describe the policy outcome only, never filesystem state.
const (
	ReasonMalformed        = "malformed request"
	ReasonCategoryDenied   = "capability denied by policy"
	ReasonNotGranted       = "capability not granted"
	ReasonBlindNotGranted  = "blind access not granted"
	ReasonRelativePath     = "relative path without working directory"
	ReasonPathNotPermitted = "path not permitted"
	ReasonUnresolvedPath   = "path could not be resolved"
)

// policyConfig holds configuration for the Broker.
type policyConfig struct {
	denialHandler   ports.DenialHandler   // Handler invoked on policy denials
	recorder        ports.MetricsRecorder // Optional decision counter
	cwd             string                // Working directory for relative path resolution
	resolveSymlinks bool                  // Whether to resolve symlinks (security feature)
}

func defaultPolicyConfig() policyConfig {
	return policyConfig{
		cwd:             "",
		resolveSymlinks: true,                   // Secure default
		denialHandler:   &StderrDenialHandler{}, // Log to stderr by default
	}
}

// PolicyOption configures the Broker.
type PolicyOption func(*policyConfig)

// WithWorkingDirectory sets the working directory for relative path resolution.
func WithWorkingDirectory(cwd string) PolicyOption {
	return func(c *policyConfig) {
		c.cwd = cwd
	}
}

// WithSymlinkResolution enables/disables symlink resolution.
// Default is true (secure). Disable for non-OS backends and tests.
func WithSymlinkResolution(enabled bool) PolicyOption {
	return func(c *policyConfig) {
		c.resolveSymlinks = enabled
	}
}

// WithDenialHandler sets the denial handler.
func WithDenialHandler(h ports.DenialHandler) PolicyOption {
	return func(c *policyConfig) {
		if h != nil {
			c.denialHandler = h
		}
	}
}

// WithRecorder counts every decision on r.
func WithRecorder(r ports.MetricsRecorder) PolicyOption {
	return func(c *policyConfig) {
		c.recorder = r
	}
}

// Broker is the restrictive PermissionBroker. It evaluates requests against a
// GrantSet snapshot; the snapshot is replaced atomically by UpdatePolicy and Grant.
type Broker struct {
	current atomic.Pointer[compiledPolicy]
	config  policyConfig
	mu      sync.Mutex // serializes writers
}

var _ ports.PermissionBroker = (*Broker)(nil)

type compiledPolicy struct {
	grants *entities.GrantSet
	rules  []compiledFSRule
	epoch  uint64
}

type compiledFSRule struct {
	read  []string
	write []string
}

// NewBroker creates a restrictive broker enforcing grants. A nil grant set denies
// everything.
func NewBroker(grants *entities.GrantSet, opts ...PolicyOption) *Broker {
	cfg := defaultPolicyConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	b := &Broker{config: cfg}
	b.current.Store(compile(grants, 0))
	return b
}

func compile(grants *entities.GrantSet, epoch uint64) *compiledPolicy {
	c := &compiledPolicy{epoch: epoch}
	if grants == nil {
		c.grants = &entities.GrantSet{}
		return c
	}
	c.grants = grants.Clone()
	if grants.FS != nil {
		for _, rule := range grants.FS.Rules {
			cr := compiledFSRule{}
			for _, r := range rule.Read {
				if doublestar.ValidatePattern(r) {
					cr.read = append(cr.read, r)
				}
			}
			for _, w := range rule.Write {
				if doublestar.ValidatePattern(w) {
					cr.write = append(cr.write, w)
				}
			}
			c.rules = append(c.rules, cr)
		}
	}
	return c
}

// UpdatePolicy replaces the grant set. Requests already being decided finish
// against the previous snapshot.
func (b *Broker) UpdatePolicy(grants *entities.GrantSet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current.Store(compile(grants, b.current.Load().epoch+1))
}

// Grant merges rule into the current policy.
func (b *Broker) Grant(rule entities.FileSystemRule) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.current.Load()
	next := cur.grants.Clone()
	next.AddRule(rule)
	b.current.Store(compile(next, cur.epoch+1))
}

// Policy returns a copy of the grant set currently enforced.
func (b *Broker) Policy() *entities.GrantSet {
	return b.current.Load().grants.Clone()
}

// Epoch returns the number of policy updates applied so far.
func (b *Broker) Epoch() uint64 {
	return b.current.Load().epoch
}

// Decide implements ports.PermissionBroker.
func (b *Broker) Decide(req entities.PermissionRequest) entities.Decision {
	return b.report(req, b.decide(req))
}

func (b *Broker) report(req entities.PermissionRequest, d entities.Decision) entities.Decision {
	if b.config.recorder != nil {
		b.config.recorder.RecordDecision(req.Capability(), d.Allowed())
	}
	if !d.Allowed() {
		b.config.denialHandler.OnDenial(req, d.Reason())
	}
	return d
}

func (b *Broker) decide(req entities.PermissionRequest) entities.Decision {
	if !wellFormed(req) {
		return entities.Deny(ReasonMalformed)
	}

	snap := b.current.Load()
	c := req.Capability()
	if snap.grants.Denies(c) {
		return entities.Deny(ReasonCategoryDenied)
	}

	switch c {
	case entities.CapabilityReadAll:
		if snap.grants.AllowReadAll {
			return entities.Allow("")
		}
		return entities.Deny(ReasonNotGranted)
	case entities.CapabilityWriteAll:
		if snap.grants.AllowWriteAll {
			return entities.Allow("")
		}
		return entities.Deny(ReasonNotGranted)
	}

	if c.IsBlind() && !snap.grants.AllowBlind {
		return entities.Deny(ReasonBlindNotGranted)
	}

	path, reason := b.normalize(req)
	if reason != "" {
		return entities.Deny(reason)
	}

	read, write := accessOf(req)
	if read && !snap.grants.AllowReadAll && !snap.matches(path, false) {
		return entities.Deny(ReasonPathNotPermitted)
	}
	if write && !snap.grants.AllowWriteAll && !snap.matches(path, true) {
		return entities.Deny(ReasonPathNotPermitted)
	}
	return entities.Allow(path)
}

// normalize cleans the request path, anchors it to the working directory, and
// resolves symlinks, including those above a component that does not exist
// yet. A path that cannot be resolved is denied with the returned reason.
func (b *Broker) normalize(req entities.PermissionRequest) (string, string) {
	path := filepath.Clean(req.Path())
	if !filepath.IsAbs(path) {
		if b.config.cwd == "" {
			return "", ReasonRelativePath
		}
		path = filepath.Join(b.config.cwd, path)
	}

	if b.config.resolveSymlinks && !req.Open().Resolved {
		resolved, err := resolvePath(path)
		if err != nil {
			return "", ReasonUnresolvedPath
		}
		path = resolved
	}
	return path, ""
}

func (c *compiledPolicy) matches(path string, write bool) bool {
	for _, rule := range c.rules {
		patterns := rule.read
		if write {
			patterns = rule.write
		}
		for _, pattern := range patterns {
			if matched, _ := doublestar.Match(pattern, path); matched {
				return true
			}
		}
	}
	return false
}

func wellFormed(req entities.PermissionRequest) bool {
	c := req.Capability()
	if !c.Valid() {
		return false
	}
	if strings.ContainsRune(req.Path(), 0) {
		return false
	}
	if c.RequiresPath() && req.Path() == "" {
		return false
	}
	if c.IsBlind() && req.Detail() == "" {
		return false
	}
	if c == entities.CapabilityOpen && !req.Open().Read && !req.Open().Write {
		return false
	}
	return true
}

func accessOf(req entities.PermissionRequest) (read, write bool) {
	c := req.Capability()
	if c == entities.CapabilityOpen {
		return req.Open().Read, req.Open().Write
	}
	return c.IsRead(), c.IsWrite()
}
