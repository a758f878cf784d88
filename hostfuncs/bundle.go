package hostfuncs

// HostFuncBundle is a pre-configured set of related host functions.
// Bundles allow registering multiple handlers at once for common use cases.
type HostFuncBundle interface {
	// Handlers returns a map of handler names to ByteHandler functions.
	Handlers() map[string]ByteHandler
}

// staticBundle implements HostFuncBundle with a fixed set of handlers.
type staticBundle struct {
	handlers map[string]ByteHandler
}

func (b *staticBundle) Handlers() map[string]ByteHandler {
	return b.handlers
}

// NewBundle returns a bundle serving the given handlers.
func NewBundle(handlers map[string]ByteHandler) HostFuncBundle {
	return &staticBundle{handlers: handlers}
}

// compositeBundle combines multiple bundles into one.
type compositeBundle struct {
	bundles []HostFuncBundle
}

func (b *compositeBundle) Handlers() map[string]ByteHandler {
	result := make(map[string]ByteHandler)
	for _, bundle := range b.bundles {
		if bundle == nil {
			continue
		}
		for name, handler := range bundle.Handlers() {
			result[name] = handler
		}
	}
	return result
}

// CombineBundles merges bundles. Later bundles win on name collisions; use
// separate WithBundle options to have collisions reported instead.
func CombineBundles(bundles ...HostFuncBundle) HostFuncBundle {
	return &compositeBundle{bundles: bundles}
}

// WithBundle registers all handlers from a bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		if bundle == nil {
			return
		}
		for name, handler := range bundle.Handlers() {
			b.add(name, handler)
		}
	}
}

// WithHandler registers a typed host function with automatic JSON handling.
// The handler will be wrapped with NewJSONHandler for JSON serialization.
//
// Example usage:
//
//	WithHandler("op_custom", func(ctx context.Context, req MyRequest) MyResponse {
//	    return MyResponse{Result: req.Input}
//	})
func WithHandler[Req any, Resp any](name string, fn HostFunc[Req, Resp]) RegistryOption {
	return func(b *registryBuilder) {
		b.add(name, NewJSONHandler(fn))
	}
}
