package ports

import "github.com/reglet-dev/reglet-script/domain/entities"

// PermissionBroker is the single decision point for every host resource access
// made on behalf of script code. Implementations must be safe for concurrent use
// and must answer every request, including malformed ones, with a Decision.
type PermissionBroker interface {
	Decide(req entities.PermissionRequest) entities.Decision
}

// PermissionBrokerFunc adapts a function to PermissionBroker.
type PermissionBrokerFunc func(req entities.PermissionRequest) entities.Decision

// Decide implements PermissionBroker.
func (f PermissionBrokerFunc) Decide(req entities.PermissionRequest) entities.Decision {
	return f(req)
}
