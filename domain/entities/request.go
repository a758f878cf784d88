package entities

// OpenFlags describes the intent of an Open request.
type OpenFlags struct {
	Read  bool
	Write bool
	// Resolved reports that the caller already canonicalized the path.
	Resolved bool
}

// PermissionRequest is a single query put to a PermissionBroker.
// It is immutable once constructed.
type PermissionRequest struct {
	path       string
	apiName    string
	detail     string
	capability Capability
	open       OpenFlags
}

// NewRequest builds a path-carrying request for a non-Open capability.
func NewRequest(c Capability, path, apiName string) PermissionRequest {
	return PermissionRequest{capability: c, path: path, apiName: apiName}
}

// NewOpenRequest builds an Open request.
func NewOpenRequest(path string, flags OpenFlags, apiName string) PermissionRequest {
	return PermissionRequest{capability: CapabilityOpen, path: path, apiName: apiName, open: flags}
}

// NewBlindRequest builds a ReadBlind or WriteBlind request. detail names the
// hidden target (for example "CWD" or "TMP").
func NewBlindRequest(c Capability, path, detail, apiName string) PermissionRequest {
	return PermissionRequest{capability: c, path: path, detail: detail, apiName: apiName}
}

// NewCategoryRequest builds a ReadAll or WriteAll request.
func NewCategoryRequest(c Capability, apiName string) PermissionRequest {
	return PermissionRequest{capability: c, apiName: apiName}
}

// Capability returns the requested capability.
func (r PermissionRequest) Capability() Capability { return r.capability }

// Path returns the requested path; empty for category requests.
func (r PermissionRequest) Path() string { return r.path }

// APIName returns the name of the operation that issued the request.
func (r PermissionRequest) APIName() string { return r.apiName }

// Detail returns the blind-variant detail.
func (r PermissionRequest) Detail() string { return r.detail }

// Open returns the open flags; zero for non-Open requests.
func (r PermissionRequest) Open() OpenFlags { return r.open }

// Decision is the broker's answer to one request. Decisions are never cached
// by capability modules.
type Decision struct {
	path    string
	reason  string
	allowed bool
}

// Allow returns an allowing decision carrying the path the operation must use.
func Allow(path string) Decision {
	return Decision{allowed: true, path: path}
}

// Deny returns a denying decision. reason must describe the policy outcome only.
func Deny(reason string) Decision {
	return Decision{reason: reason}
}

// Allowed reports whether the request was granted.
func (d Decision) Allowed() bool { return d.allowed }

// Path returns the path to operate on for an allowed decision.
func (d Decision) Path() string { return d.path }

// Reason returns the denial reason.
func (d Decision) Reason() string { return d.reason }

// CapabilityRequest represents a request for a capability to be granted (e.g. via prompt).
type CapabilityRequest struct {
	Rule        FileSystemRule
	Description string
	Capability  Capability
	RiskLevel   RiskLevel
}
