package goja

import (
	stdErrors "errors"

	"github.com/dop251/goja"
	"github.com/reglet-dev/reglet-script/domain/entities"
	domerrors "github.com/reglet-dev/reglet-script/domain/errors"
)

// Error names seen by script code.
const (
	NamePermissionDenied = "PermissionDenied"
	NameResolution       = "ResolutionError"
	NameFetch            = "FetchError"
	NameLoad             = "LoadError"

	codePermissionDenied = "ERR_PERMISSION_DENIED"
)

// ScriptError is a value thrown by script code that does not wrap a host error.
type ScriptError struct {
	Name    string
	Message string
	Stack   string
}

func (e *ScriptError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// ToErrorDetail implements domerrors.DetailedError.
func (e *ScriptError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "script", Code: e.Name}
}

// Throw panics with the script value for err. It must only be called from
// Go functions invoked by the runtime. An interrupt raised below this call is
// re-armed so script code cannot swallow it.
func (b *Bridge) Throw(err error) {
	var ie *goja.InterruptedError
	if stdErrors.As(err, &ie) {
		b.vm.Interrupt(ie.Value())
	}
	panic(b.ErrorValue(err))
}

// ErrorValue converts err to a value script code can catch. Exceptions keep
// their original value; host errors become Go errors carrying a script-visible
// name and, for denials, the capability and path.
func (b *Bridge) ErrorValue(err error) goja.Value {
	var exc *goja.Exception
	if stdErrors.As(err, &exc) {
		return exc.Value()
	}

	obj := b.vm.NewGoError(err)
	var (
		pd  *domerrors.PermissionDeniedError
		res *domerrors.ResolutionError
		fe  *domerrors.FetchError
		le  *domerrors.LoadError
	)
	switch {
	case stdErrors.As(err, &pd):
		_ = obj.Set("name", NamePermissionDenied)
		_ = obj.Set("code", codePermissionDenied)
		_ = obj.Set("capability", pd.Capability.String())
		if pd.Path != "" {
			_ = obj.Set("path", pd.Path)
		}
		if pd.APIName != "" {
			_ = obj.Set("api", pd.APIName)
		}
	case stdErrors.As(err, &res):
		_ = obj.Set("name", NameResolution)
		_ = obj.Set("code", string(res.Kind))
	case stdErrors.As(err, &fe):
		_ = obj.Set("name", NameFetch)
		_ = obj.Set("code", string(fe.Kind))
	case stdErrors.As(err, &le):
		_ = obj.Set("name", NameLoad)
	}
	return obj
}

// Translate converts an error returned by the runtime into a host error.
// A thrown host error is unwrapped back to the Go error; a PermissionDenied
// error raised by a capability module becomes a PermissionDeniedError; any
// other thrown value becomes a ScriptError. Interrupts and non-runtime errors
// are returned unchanged.
func Translate(err error) error {
	var exc *goja.Exception
	if !stdErrors.As(err, &exc) {
		return err
	}

	obj, ok := exc.Value().(*goja.Object)
	if !ok {
		return &ScriptError{Message: valueString(exc.Value()), Stack: exc.String()}
	}

	if v := obj.Get("value"); v != nil {
		if goErr, ok := v.Export().(error); ok {
			return goErr
		}
	}

	name := valueString(obj.Get("name"))
	if name == NamePermissionDenied {
		capability, _ := entities.ParseCapability(valueString(obj.Get("capability")))
		return &domerrors.PermissionDeniedError{
			Capability: capability,
			Path:       valueString(obj.Get("path")),
			APIName:    valueString(obj.Get("api")),
			Reason:     valueString(obj.Get("message")),
		}
	}

	return &ScriptError{
		Name:    name,
		Message: valueString(obj.Get("message")),
		Stack:   exc.String(),
	}
}

func valueString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
