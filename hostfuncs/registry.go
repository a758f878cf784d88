package hostfuncs

import (
	"context"
	"fmt"
	"slices"
)

// HandlerRegistry is the op table of one engine. It is built once from the
// installed extensions' bundles and never changes afterwards, so dispatch
// needs no locking. Every op is wrapped in the same middleware chain.
type HandlerRegistry struct {
	ops   map[string]ByteHandler
	names []string
}

type registryBuilder struct {
	ops        map[string]ByteHandler
	middleware []Middleware
	err        error
}

// NewRegistry builds an op table. Registering an op name twice, or an empty
// name, is an error; the first such error is returned.
//
//	reg, err := NewRegistry(
//	    WithMiddleware(PanicRecoveryMiddleware(), LoggingMiddleware(logger)),
//	    WithBundle(IOModule{}.Bundle()),
//	    WithBundle(fsModule.Bundle()),
//	)
//
// Engines normally get their table from NewExtensionRegistry, which checks
// extension order first.
func NewRegistry(opts ...RegistryOption) (*HandlerRegistry, error) {
	b := &registryBuilder{ops: make(map[string]ByteHandler)}
	for _, opt := range opts {
		opt(b)
	}
	if b.err != nil {
		return nil, b.err
	}

	reg := &HandlerRegistry{
		ops:   make(map[string]ByteHandler, len(b.ops)),
		names: make([]string, 0, len(b.ops)),
	}
	for name, op := range b.ops {
		// The first middleware ends up outermost.
		for i := len(b.middleware) - 1; i >= 0; i-- {
			op = b.middleware[i](op)
		}
		reg.ops[name] = op
		reg.names = append(reg.names, name)
	}
	slices.Sort(reg.names)
	return reg, nil
}

// Invoke dispatches op name with payload under a HostContext for name. An
// unknown op yields a NOT_FOUND response, not a Go error. A ctx that is
// already done is returned as its error without running the op.
func (r *HandlerRegistry) Invoke(ctx context.Context, name string, payload []byte) ([]byte, error) {
	op, ok := r.ops[name]
	if !ok {
		return NewNotFoundError(name).ToJSON(), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return op(HostContextFrom(ctx, name), payload)
}

// Has reports whether op name is registered.
func (r *HandlerRegistry) Has(name string) bool {
	_, ok := r.ops[name]
	return ok
}

// Names returns the registered op names, sorted.
func (r *HandlerRegistry) Names() []string {
	return slices.Clone(r.names)
}

func (b *registryBuilder) add(name string, op ByteHandler) {
	if b.err != nil {
		return
	}
	switch {
	case name == "":
		b.err = fmt.Errorf("handler name cannot be empty")
	case b.ops[name] != nil:
		b.err = fmt.Errorf("duplicate handler name: %q", name)
	default:
		b.ops[name] = op
	}
}

// WithByteHandler registers a raw op. WithHandler registers a typed one.
func WithByteHandler(name string, handler ByteHandler) RegistryOption {
	return func(b *registryBuilder) {
		b.add(name, handler)
	}
}

// WithMiddleware appends mw to the chain every op is wrapped in. The first
// middleware added runs first.
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
