package hostfuncs

import (
	"context"

	"github.com/reglet-dev/reglet-script/domain/entities"
	domerrors "github.com/reglet-dev/reglet-script/domain/errors"
)

// reasonNoBroker is reported when a capability module runs before bootstrap.
const reasonNoBroker = "no permission broker installed"

// Authorize puts req to the broker installed in the State attached to ctx and
// returns the path the operation must use. A missing State or broker denies.
func Authorize(ctx context.Context, req entities.PermissionRequest) (string, error) {
	var d entities.Decision
	st := StateFrom(ctx)
	if st == nil || st.Broker() == nil {
		d = entities.Deny(reasonNoBroker)
	} else {
		d = st.Broker().Decide(req)
	}
	recordCheck(ctx, req, d)

	if !d.Allowed() {
		return "", &domerrors.PermissionDeniedError{
			Path:       req.Path(),
			APIName:    req.APIName(),
			Reason:     d.Reason(),
			Capability: req.Capability(),
		}
	}
	if d.Path() == "" {
		return req.Path(), nil
	}
	return d.Path(), nil
}

// authorizeOp is Authorize for op handlers.
func authorizeOp(ctx context.Context, req entities.PermissionRequest) (string, *ErrorResponse) {
	path, err := Authorize(ctx, req)
	if err != nil {
		return "", NewPermissionDeniedError(req).Ptr()
	}
	return path, nil
}
