package policy

import (
	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/ports"
)

// Permissive allows every request unchanged.
type Permissive struct{}

var _ ports.PermissionBroker = Permissive{}

// Decide implements ports.PermissionBroker.
func (Permissive) Decide(req entities.PermissionRequest) entities.Decision {
	return entities.Allow(req.Path())
}
