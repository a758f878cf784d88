package hostfuncs

import (
	"context"
	"sync"

	"github.com/reglet-dev/reglet-script/domain/entities"
)

// AccessCheck is one broker decision made while serving a host call.
type AccessCheck struct {
	Capability entities.Capability
	Path       string
	Reason     string
	Allowed    bool
}

// HostContext is the context a registry passes to an op. It names the op
// being served and collects the access checks Authorize makes on its behalf,
// so middleware can report what an op asked for without parsing its payload.
type HostContext interface {
	context.Context

	// FunctionName returns the name of the op being invoked.
	FunctionName() string

	// Checks returns the access checks made so far, in order.
	Checks() []AccessCheck
}

type hostContextKey struct{}

type hostContext struct {
	context.Context
	funcName string

	mu     sync.Mutex
	checks []AccessCheck
}

// NewHostContext creates a HostContext for funcName wrapping ctx.
func NewHostContext(ctx context.Context, funcName string) HostContext {
	return &hostContext{Context: ctx, funcName: funcName}
}

func (c *hostContext) FunctionName() string {
	return c.funcName
}

func (c *hostContext) Checks() []AccessCheck {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]AccessCheck(nil), c.checks...)
}

func (c *hostContext) record(check AccessCheck) {
	c.mu.Lock()
	c.checks = append(c.checks, check)
	c.mu.Unlock()
}

// Value makes the HostContext reachable from contexts derived from it.
func (c *hostContext) Value(key any) any {
	if key == (hostContextKey{}) {
		return c
	}
	return c.Context.Value(key)
}

// HostContextFrom returns the HostContext for funcName carried by ctx. A
// HostContext for the same op is returned directly; one created for a
// different op (a host call made from inside another) is wrapped anew.
func HostContextFrom(ctx context.Context, funcName string) HostContext {
	if hc, ok := ctx.(*hostContext); ok && hc.funcName == funcName {
		return hc
	}
	return NewHostContext(ctx, funcName)
}

func hostContextOf(ctx context.Context) *hostContext {
	hc, _ := ctx.Value(hostContextKey{}).(*hostContext)
	return hc
}

// recordCheck notes a broker decision on the HostContext carried by ctx, if any.
func recordCheck(ctx context.Context, req entities.PermissionRequest, d entities.Decision) {
	hc := hostContextOf(ctx)
	if hc == nil {
		return
	}
	hc.record(AccessCheck{
		Capability: req.Capability(),
		Path:       req.Path(),
		Reason:     d.Reason(),
		Allowed:    d.Allowed(),
	})
}
