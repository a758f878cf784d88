package ports

import "github.com/reglet-dev/reglet-script/domain/entities"

// DenialHandler is called when a broker denies a request.
// Implementations can log, collect metrics, or take other actions.
type DenialHandler interface {
	// OnDenial is called once per denied request with the policy reason.
	OnDenial(req entities.PermissionRequest, reason string)
}
