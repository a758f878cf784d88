// Package host runs capability-gated scripts.
//
// A Runtime owns one goja engine. Construction installs the io, fs and
// bootstrap extensions, binding the PermissionBroker into engine state, before
// the entry module is resolved. The entry module and every module it requires
// go through the same resolver and module cache; .wasm modules are
// instantiated as native extension modules on wazero and reach the same host
// ops through the reglet_host import module.
//
//	rt, err := host.New(ctx, "./main.js",
//		host.WithBroker(broker),
//		host.WithBaseDir("/project"))
//	if err != nil {
//		return err
//	}
//	defer rt.Dispose(ctx)
//
//	if err := rt.Run(ctx); err != nil {
//		return err
//	}
//	answer, err := host.Get[int](rt, "answer")
package host
