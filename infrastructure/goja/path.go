package goja

import (
	"path"
	"strings"

	"github.com/dop251/goja"
)

// BuiltinPath is the name of the lexical path builtin ("ext:path").
const BuiltinPath = "path"

// DefinePathBuiltin publishes the POSIX path helpers as "ext:path". They are
// purely lexical and need no capability.
func DefinePathBuiltin(b *Bridge) error {
	vm := b.vm
	obj := vm.NewObject()
	set := func(name string, fn func(goja.FunctionCall) goja.Value) {
		_ = obj.Set(name, fn)
	}

	set("join", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(path.Join(stringArgs(call)...))
	})
	set("resolve", func(call goja.FunctionCall) goja.Value {
		resolved := "/"
		for _, p := range stringArgs(call) {
			if path.IsAbs(p) {
				resolved = p
			} else {
				resolved = path.Join(resolved, p)
			}
		}
		return vm.ToValue(path.Clean(resolved))
	})
	set("normalize", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(path.Clean(call.Argument(0).String()))
	})
	set("dirname", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(path.Dir(call.Argument(0).String()))
	})
	set("basename", func(call goja.FunctionCall) goja.Value {
		base := path.Base(call.Argument(0).String())
		if ext := call.Argument(1); !goja.IsUndefined(ext) {
			base = strings.TrimSuffix(base, ext.String())
		}
		return vm.ToValue(base)
	})
	set("extname", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(path.Ext(call.Argument(0).String()))
	})
	set("isAbsolute", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(path.IsAbs(call.Argument(0).String()))
	})
	_ = obj.Set("sep", "/")

	return b.DefineBuiltin(BuiltinPath, obj)
}

func stringArgs(call goja.FunctionCall) []string {
	out := make([]string, len(call.Arguments))
	for i, a := range call.Arguments {
		out[i] = a.String()
	}
	return out
}
