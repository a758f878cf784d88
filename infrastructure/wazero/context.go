package wazero

import (
	"context"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/tetratelabs/wazero/api"
)

// contextKey is a private type for context keys.
type contextKey struct {
	name string
}

var callerKey = &contextKey{name: "native_caller"}

// WithCaller records the native module making host calls under ctx.
func WithCaller(ctx context.Context, id entities.ModuleIdentity) context.Context {
	return context.WithValue(ctx, callerKey, id)
}

// CallerFromContext retrieves the native module recorded by WithCaller.
func CallerFromContext(ctx context.Context) (entities.ModuleIdentity, bool) {
	id, ok := ctx.Value(callerKey).(entities.ModuleIdentity)
	return id, ok
}

// callerName extracts the caller from ctx, falling back to the module name.
func callerName(ctx context.Context, mod api.Module) string {
	if id, ok := CallerFromContext(ctx); ok {
		return id.String()
	}
	return mod.Name()
}
