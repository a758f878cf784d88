package ports

import "github.com/reglet-dev/reglet-script/domain/entities"

// PolicyParser parses a raw policy document into a GrantSet.
type PolicyParser interface {
	Parse(data []byte) (*entities.GrantSet, error)
}
