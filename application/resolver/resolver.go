// Package resolver maps module specifiers to canonical module identities.
//
// Resolution is purely lexical: it never touches the filesystem and never
// consults a PermissionBroker. The same specifier and referrer always resolve
// to the same identity or the same error.
package resolver

import (
	"net/url"
	"path"
	"strings"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/errors"
)

// resolverConfig holds configuration for the Resolver.
type resolverConfig struct {
	baseDir  string
	builtins map[string]bool
}

// Option configures a Resolver.
type Option func(*resolverConfig)

// WithBaseDir sets the directory relative specifiers resolve against when there
// is no referrer (the entry module).
func WithBaseDir(dir string) Option {
	return func(c *resolverConfig) {
		c.baseDir = dir
	}
}

// WithBuiltins restricts the builtin scheme to the given names
// (for example "fs" for "ext:fs"). Without it every well-formed ext: name resolves.
func WithBuiltins(names ...string) Option {
	return func(c *resolverConfig) {
		if c.builtins == nil {
			c.builtins = make(map[string]bool, len(names))
		}
		for _, n := range names {
			c.builtins[n] = true
		}
	}
}

// Resolver implements module resolution.
type Resolver struct {
	config resolverConfig
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	var cfg resolverConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.baseDir != "" {
		cfg.baseDir = path.Clean(cfg.baseDir)
	}
	return &Resolver{config: cfg}
}

// BaseDir returns the directory used for referrer-less relative specifiers.
func (r *Resolver) BaseDir() string {
	return r.config.baseDir
}

// Resolve maps spec, imported from referrer (nil for the entry module), to a
// module identity.
func (r *Resolver) Resolve(spec entities.ModuleSpecifier, referrer *entities.ModuleIdentity) (entities.ModuleIdentity, error) {
	s := string(spec)
	fail := func(kind errors.ResolutionErrorKind) (entities.ModuleIdentity, error) {
		e := &errors.ResolutionError{Kind: kind, Specifier: s}
		if referrer != nil {
			e.Referrer = referrer.String()
		}
		return "", e
	}

	if strings.TrimSpace(s) == "" || strings.ContainsRune(s, 0) {
		return fail(errors.ResolutionMalformed)
	}

	switch {
	case strings.HasPrefix(s, entities.BuiltinScheme):
		name := strings.TrimPrefix(s, entities.BuiltinScheme)
		if !validBuiltinName(name) {
			return fail(errors.ResolutionMalformed)
		}
		if r.config.builtins != nil && !r.config.builtins[name] {
			return fail(errors.ResolutionUnsupported)
		}
		return entities.ModuleIdentity(s), nil

	case strings.HasPrefix(s, "file:"):
		u, err := url.Parse(s)
		if err != nil || u.Path == "" || (u.Host != "" && u.Host != "localhost") {
			return fail(errors.ResolutionMalformed)
		}
		return entities.ModuleIdentity(path.Clean(u.Path)), nil

	case path.IsAbs(s):
		return entities.ModuleIdentity(path.Clean(s)), nil

	case isRelative(s):
		base, ok := r.base(referrer)
		if !ok {
			return fail(errors.ResolutionNoReferrer)
		}
		return entities.ModuleIdentity(path.Join(base, s)), nil

	case hasScheme(s):
		return fail(errors.ResolutionUnsupported)

	default:
		// Bare specifiers ("lodash") have no package lookup in this host.
		return fail(errors.ResolutionUnsupported)
	}
}

func (r *Resolver) base(referrer *entities.ModuleIdentity) (string, bool) {
	if referrer != nil {
		if referrer.IsBuiltin() || *referrer == "" {
			return "", false
		}
		return path.Dir(referrer.String()), true
	}
	if r.config.baseDir == "" {
		return "", false
	}
	return r.config.baseDir, true
}

func isRelative(s string) bool {
	return s == "." || s == ".." || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../")
}

func hasScheme(s string) bool {
	i := strings.Index(s, ":")
	if i <= 0 {
		return false
	}
	for _, r := range s[:i] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return false
		}
	}
	return true
}

func validBuiltinName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '-' || r == '/') {
			return false
		}
	}
	return true
}
