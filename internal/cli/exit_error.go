package cli

import (
	"errors"
	"fmt"

	domerrors "github.com/reglet-dev/reglet-script/domain/errors"
)

// Exit codes.
const (
	ExitFailure     = 1
	ExitUsage       = 2
	ExitThrew       = 3
	ExitLoad        = 4
	ExitInterrupted = 5
	ExitDenied      = 6
)

// ExitError signals a non-zero exit code without calling os.Exit in RunE
// handlers.
type ExitError struct {
	Err  error
	Code int
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCode maps a run failure to the process exit code. A permission denial
// wins over the engine kind that carried it.
func exitCode(err error) int {
	var pd *domerrors.PermissionDeniedError
	if errors.As(err, &pd) {
		return ExitDenied
	}
	var fe *domerrors.FetchError
	if errors.As(err, &fe) && fe.Kind == domerrors.FetchDenied {
		return ExitDenied
	}

	var ee *domerrors.EngineError
	if !errors.As(err, &ee) {
		return ExitFailure
	}
	switch ee.Kind {
	case domerrors.EngineThrew:
		return ExitThrew
	case domerrors.EngineLoad:
		return ExitLoad
	case domerrors.EngineInterrupted:
		return ExitInterrupted
	case domerrors.EngineStartup:
		return ExitUsage
	default:
		return ExitFailure
	}
}
