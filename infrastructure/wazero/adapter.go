package wazero

import (
	"context"
	"fmt"

	"github.com/reglet-dev/reglet-script/hostfuncs"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// DefaultHostModule is the import module name native code uses for host ops.
const DefaultHostModule = "reglet_host"

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	logger *zap.Logger

	// ModuleName is the host module name (default: "reglet_host").
	ModuleName string

	// MaxRequestSize limits the size of incoming requests from guest memory.
	// Default is 1MB.
	MaxRequestSize uint32
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name (default: "reglet_host").
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.ModuleName = name
	}
}

// WithMaxRequestSize sets the maximum request size from guest memory.
func WithMaxRequestSize(size uint32) AdapterOption {
	return func(c *AdapterConfig) {
		c.MaxRequestSize = size
	}
}

// WithAdapterLogger sets the logger for ABI failures.
func WithAdapterLogger(logger *zap.Logger) AdapterOption {
	return func(c *AdapterConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// defaultAdapterConfig returns the default adapter configuration.
func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ModuleName:     DefaultHostModule,
		MaxRequestSize: hostfuncs.DefaultMaxRequestSize,
		logger:         zap.NewNop(),
	}
}

// RegisterWithRuntime registers all handlers from a HandlerRegistry with a wazero runtime.
// This creates a host module with the configured name (default: "reglet_host") and
// exports all handlers from the registry.
//
// Each handler is wrapped to:
//   - Read request bytes from guest memory using the packed i64 ptr+len format
//   - Invoke the ByteHandler with the request payload
//   - Allocate response memory in the guest using the "allocate" export
//   - Write response bytes to guest memory
//   - Return packed i64 ptr+len of the response
//
// The context of the guest call is passed to the handler unchanged, so the
// engine State attached by the caller reaches the capability modules.
func RegisterWithRuntime(ctx context.Context, runtime wazero.Runtime, registry *hostfuncs.HandlerRegistry, opts ...AdapterOption) error {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	builder := runtime.NewHostModuleBuilder(cfg.ModuleName)

	for _, name := range registry.Names() {
		funcName := name
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				handleRegistryCall(ctx, mod, stack, registry, funcName, &cfg)
			}), []api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
			Export(funcName)
	}

	_, err := builder.Instantiate(ctx)
	return err
}

// handleRegistryCall handles a host function call from WASM.
// It reads the request from guest memory, invokes the handler, and writes the response.
func handleRegistryCall(ctx context.Context, mod api.Module, stack []uint64, registry *hostfuncs.HandlerRegistry, name string, cfg *AdapterConfig) {
	log := cfg.logger.With(zap.String("op", name), zap.String("caller", callerName(ctx, mod)))
	ptr, length := unpackPtrLen(stack[0])

	if length > cfg.MaxRequestSize {
		errMsg := fmt.Sprintf("request size %d exceeds maximum %d bytes", length, cfg.MaxRequestSize)
		log.Error("wazero: " + errMsg)
		stack[0] = writeResponse(ctx, mod, log, hostfuncs.NewValidationError(errMsg).ToJSON())
		return
	}

	requestBytes, ok := mod.Memory().Read(ptr, length)
	if !ok {
		log.Error("wazero: failed to read request from guest memory")
		stack[0] = writeResponse(ctx, mod, log, hostfuncs.NewInternalError("failed to read request from guest memory").ToJSON())
		return
	}

	responseBytes, err := registry.Invoke(ctx, name, requestBytes)
	if err != nil {
		log.Error("wazero: handler invocation failed", zap.Error(err))
		stack[0] = writeResponse(ctx, mod, log, hostfuncs.NewInternalError(err.Error()).ToJSON())
		return
	}

	stack[0] = writeResponse(ctx, mod, log, responseBytes)
}

// writeResponse allocates memory in the guest and writes the response bytes.
// Returns packed ptr+len or 0 on failure.
func writeResponse(ctx context.Context, mod api.Module, log *zap.Logger, data []byte) uint64 {
	allocateFn := mod.ExportedFunction("allocate")
	if allocateFn == nil {
		log.Error("wazero: guest module missing 'allocate' export")
		return 0
	}

	results, err := allocateFn.Call(ctx, uint64(len(data)))
	if err != nil {
		log.Error("wazero: failed to call guest allocate", zap.Error(err))
		return 0
	}
	ptr := uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit

	if !mod.Memory().Write(ptr, data) {
		log.Error("wazero: failed to write response to guest memory")
		return 0
	}

	return packPtrLen(ptr, uint32(len(data))) //nolint:gosec // G115: Data length is bounded by config
}

// packPtrLen packs a pointer and length into a single i64.
// Upper 32 bits: pointer, lower 32 bits: length.
func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// unpackPtrLen unpacks a pointer and length from a packed i64.
func unpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> 32)           //nolint:gosec // G115: Packed format stores 32-bit values
	length = uint32(packed & 0xFFFFFFFF) //nolint:gosec // G115: Packed format stores 32-bit values
	return ptr, length
}
