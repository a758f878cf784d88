package hostfuncs

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
)

// HostFunc is a generic function signature for host functions.
// It accepts a context and a typed request, and returns a typed response.
type HostFunc[Req any, Resp any] func(context.Context, Req) Resp

// ByteHandler is a function that accepts raw bytes (JSON) and returns raw bytes (JSON).
// This is the common interface engine bridges dispatch through.
type ByteHandler func(context.Context, []byte) ([]byte, error)

// NewJSONHandler wraps a typed HostFunc into a ByteHandler.
// It handles the JSON unmarshalling of the request and marshalling of the response.
// A malformed request yields a VALIDATION_ERROR response rather than a Go error.
//
// Usage:
//
//	statHandler := hostfuncs.NewJSONHandler(func(ctx context.Context, req hostfuncs.PathRequest) hostfuncs.StatResponse {
//	    return fsModule.Stat(ctx, req)
//	})
func NewJSONHandler[Req any, Resp any](fn HostFunc[Req, Resp]) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if len(payload) > 0 {
			if err := sonic.Unmarshal(payload, &req); err != nil {
				return NewValidationError(fmt.Sprintf("malformed request: %v", err)).ToJSON(), nil
			}
		}

		resp := fn(ctx, req)

		respBytes, err := sonic.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response: %w", err)
		}

		return respBytes, nil
	}
}
