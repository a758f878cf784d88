// Package wazero runs native WebAssembly extension modules for the script host.
//
// It has two halves:
//
//   - RegisterWithRuntime exposes a hostfuncs.HandlerRegistry to guests as the
//     "reglet_host" host module, so native code reaches the same capability
//     ops, and the same broker, as script code.
//   - NativeLoader compiles and instantiates .wasm payloads taken from the
//     module cache, backed by an in-memory or on-disk compilation cache.
//
// # Host-call ABI
//
// Every op is exported as a function taking and returning one i64 holding a
// packed pointer (upper 32 bits) and length (lower 32 bits) into guest memory.
// The request is the op's JSON payload; the response is written into memory
// the guest hands out from its "allocate" export.
//
//	loader, err := wazero.NewNativeLoader(ctx,
//	    wazero.WithHostRegistry(registry),
//	    wazero.WithCompilationCache(wazero.CacheDir, "/var/cache/reglet"),
//	)
//	mod, err := loader.Instantiate(ctx, "/project/math.wasm", payload)
//	out, err := mod.Call(ctx, "add", 2, 3)
package wazero
