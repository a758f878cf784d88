// Package hostfuncs implements the host side of the script engine: a registry of
// named host calls, the io and fs capability modules built on it, and the
// ordered extension list (io, fs, bootstrap) installed into every engine.
//
// Host calls exchange JSON. They have no script-engine dependency, so the same
// registry serves script code and native WebAssembly modules.
package hostfuncs
