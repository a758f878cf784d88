// Package goja binds the capability host to the goja JavaScript engine.
//
// A Bridge owns one goja.Runtime. Install runs an ordered extension list:
// each extension's State initializer, its host ops, and its trusted script.
// Ops are handed to extension scripts as a private table and never become
// globals. Builtin modules published by extensions are served under the
// "ext:" scheme without consulting the permission broker.
//
// A Loader implements CommonJS require on top of the module resolver and the
// module cache. Script modules are wrapped in the usual
// (exports, require, module, __filename, __dirname) function, JSON modules are
// parsed as data, and .wasm modules are instantiated as native extension
// modules whose exports become plain JavaScript functions.
package goja
