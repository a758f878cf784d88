package entities

import (
	"path"
	"strings"
)

// BuiltinScheme prefixes specifiers served by the host without touching the filesystem.
const BuiltinScheme = "ext:"

// ModuleSpecifier is the raw string a script passes to require.
type ModuleSpecifier string

// ModuleIdentity is the canonical, absolute key of a resolved module.
// Two imports of the same file resolve to the same identity.
type ModuleIdentity string

// String returns the identity as a string.
func (id ModuleIdentity) String() string { return string(id) }

// IsBuiltin reports whether the identity names a host-provided builtin.
func (id ModuleIdentity) IsBuiltin() bool {
	return strings.HasPrefix(string(id), BuiltinScheme)
}

// Kind derives the module kind from the identity.
func (id ModuleIdentity) Kind() ModuleKind {
	if id.IsBuiltin() {
		return ModuleKindBuiltin
	}
	switch strings.ToLower(path.Ext(string(id))) {
	case ".json":
		return ModuleKindJSON
	case ".wasm":
		return ModuleKindNative
	default:
		return ModuleKindScript
	}
}

// ModuleKind classifies how a module payload is evaluated.
type ModuleKind int

const (
	ModuleKindScript ModuleKind = iota
	ModuleKindJSON
	ModuleKindNative
	ModuleKindBuiltin
)

// String returns the kind name.
func (k ModuleKind) String() string {
	switch k {
	case ModuleKindScript:
		return "script"
	case ModuleKindJSON:
		return "json"
	case ModuleKindNative:
		return "native"
	case ModuleKindBuiltin:
		return "builtin"
	default:
		return "unknown"
	}
}

// ModuleState tracks a record through its fetch lifecycle.
type ModuleState int

const (
	// ModuleStatePending means a fetch is in flight or was abandoned.
	ModuleStatePending ModuleState = iota
	// ModuleStateReady means the payload is available.
	ModuleStateReady
	// ModuleStateFailed means the fetch failed permanently; the error is cached.
	ModuleStateFailed
)

// String returns the state name.
func (s ModuleState) String() string {
	switch s {
	case ModuleStatePending:
		return "pending"
	case ModuleStateReady:
		return "ready"
	case ModuleStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ModuleRecord is one slot of the module arena. Index is stable for the life
// of the cache and is the only handle other records hold.
type ModuleRecord struct {
	Err      error
	Identity ModuleIdentity
	Digest   string
	Payload  []byte
	Index    int
	Kind     ModuleKind
	State    ModuleState
}

// Snapshot returns a copy safe to hand out of the cache lock.
func (r *ModuleRecord) Snapshot() ModuleRecord {
	return *r
}
