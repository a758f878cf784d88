package hostfuncs

import (
	"context"
	stdErrors "errors"
	"io/fs"
	"syscall"

	"github.com/reglet-dev/reglet-script/domain/entities"
	domerrors "github.com/reglet-dev/reglet-script/domain/errors"
	"go.uber.org/zap"
)

type fetchResult struct {
	err  error
	data []byte
}

// Fetch reads a module source for the loader. The read is authorized like
// readFile and bounded by the fetch timeout. Cancellation of ctx is returned
// as ctx.Err() so the cache can leave the record retryable.
func (m *FSModule) Fetch(ctx context.Context, id entities.ModuleIdentity) ([]byte, error) {
	path, err := Authorize(ctx, entities.NewRequest(entities.CapabilityRead, id.String(), "require"))
	if err != nil {
		return nil, &domerrors.FetchError{Kind: domerrors.FetchDenied, Identity: id, Err: err}
	}

	readCtx, cancel := ctx, context.CancelFunc(func() {})
	if m.config.fetchTimeout > 0 {
		readCtx, cancel = context.WithTimeout(ctx, m.config.fetchTimeout)
	}
	defer cancel()

	done := make(chan fetchResult, 1)
	go func() {
		data, err := m.backend.ReadFile(readCtx, path)
		done <- fetchResult{data: data, err: err}
	}()

	var res fetchResult
	select {
	case res = <-done:
	case <-readCtx.Done():
		select {
		case res = <-done:
		default:
			res.err = readCtx.Err()
		}
	}

	cancelled := stdErrors.Is(res.err, context.Canceled) || stdErrors.Is(res.err, context.DeadlineExceeded)
	switch {
	case res.err == nil:
		return res.data, nil
	case !cancelled:
		// A backend error is classified even when ctx has ended since.
		return nil, m.classify(id, res.err)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case readCtx.Err() != nil:
		m.config.logger.Warn("module fetch timed out",
			zap.String("module", id.String()),
			zap.Duration("timeout", m.config.fetchTimeout))
		return nil, &domerrors.FetchError{
			Kind:     domerrors.FetchTransient,
			Identity: id,
			Err:      &domerrors.TimeoutError{Operation: "fetch", Target: id.String(), Duration: m.config.fetchTimeout},
		}
	default:
		return nil, m.classify(id, res.err)
	}
}

func (m *FSModule) classify(id entities.ModuleIdentity, err error) error {
	kind := domerrors.FetchTransient
	switch {
	case stdErrors.Is(err, fs.ErrNotExist):
		kind = domerrors.FetchNotFound
	case stdErrors.Is(err, fs.ErrPermission):
		kind = domerrors.FetchDenied
	case stdErrors.Is(err, syscall.EISDIR), stdErrors.Is(err, fs.ErrInvalid):
		kind = domerrors.FetchInvalid
	}
	return &domerrors.FetchError{Kind: kind, Identity: id, Err: err}
}
