package hostfuncs

import (
	"context"
	stdErrors "errors"
	"io"
)

// io op names.
const (
	OpIORead  = "op_io_read"
	OpIOWrite = "op_io_write"
	OpIOClose = "op_io_close"
	OpIOPrint = "op_io_print"
)

// defaultReadSize is used when a read request names no maximum.
const defaultReadSize = 64 * 1024

// ResourceRequest addresses an open resource.
type ResourceRequest struct {
	Rid int `json:"rid"`
}

// IOReadRequest reads up to Max bytes from a resource.
type IOReadRequest struct {
	Encoding string `json:"encoding,omitempty"`
	Rid      int    `json:"rid"`
	Max      int    `json:"max,omitempty"`
}

// IOReadResponse carries the bytes read; EOF is set once the resource is drained.
type IOReadResponse struct {
	*ErrorResponse
	Data string `json:"data"`
	EOF  bool   `json:"eof"`
}

// IOWriteRequest writes Data to a resource.
type IOWriteRequest struct {
	Data     string `json:"data"`
	Encoding string `json:"encoding,omitempty"`
	Rid      int    `json:"rid"`
}

// IOWriteResponse reports the number of bytes written.
type IOWriteResponse struct {
	*ErrorResponse
	N int `json:"n"`
}

// PrintRequest writes text to stdout or stderr.
type PrintRequest struct {
	Data   string `json:"data"`
	Stderr bool   `json:"stderr,omitempty"`
}

// EmptyResponse is returned by ops with no result beyond success.
type EmptyResponse struct {
	*ErrorResponse
}

// IOModule serves the resource-table ops. It needs no permission: resources
// are only created by ops that were already authorized.
type IOModule struct{}

// Bundle returns the io ops.
func (m IOModule) Bundle() HostFuncBundle {
	return NewBundle(map[string]ByteHandler{
		OpIORead:  NewJSONHandler(m.Read),
		OpIOWrite: NewJSONHandler(m.Write),
		OpIOClose: NewJSONHandler(m.Close),
		OpIOPrint: NewJSONHandler(m.Print),
	})
}

// Read implements op_io_read.
func (IOModule) Read(ctx context.Context, req IOReadRequest) IOReadResponse {
	res, errResp := resource(ctx, req.Rid)
	if errResp != nil {
		return IOReadResponse{ErrorResponse: errResp}
	}
	r, ok := res.(io.Reader)
	if !ok {
		return IOReadResponse{ErrorResponse: NewBadResourceError(req.Rid).Ptr()}
	}

	size := req.Max
	if size <= 0 {
		size = defaultReadSize
	}
	size = min(size, DefaultMaxRequestSize)

	buf := make([]byte, size)
	n, err := r.Read(buf)
	eof := stdErrors.Is(err, io.EOF)
	if err != nil && !eof {
		return IOReadResponse{ErrorResponse: NewIOError(err).Ptr()}
	}
	data, errResp := encodeData(buf[:n], req.Encoding)
	if errResp != nil {
		return IOReadResponse{ErrorResponse: errResp}
	}
	return IOReadResponse{Data: data, EOF: eof && n == 0}
}

// Write implements op_io_write.
func (IOModule) Write(ctx context.Context, req IOWriteRequest) IOWriteResponse {
	res, errResp := resource(ctx, req.Rid)
	if errResp != nil {
		return IOWriteResponse{ErrorResponse: errResp}
	}
	w, ok := res.(io.Writer)
	if !ok {
		return IOWriteResponse{ErrorResponse: NewBadResourceError(req.Rid).Ptr()}
	}
	data, errResp := decodeData(req.Data, req.Encoding)
	if errResp != nil {
		return IOWriteResponse{ErrorResponse: errResp}
	}
	n, err := w.Write(data)
	if err != nil {
		return IOWriteResponse{ErrorResponse: NewIOError(err).Ptr(), N: n}
	}
	return IOWriteResponse{N: n}
}

// Close implements op_io_close.
func (IOModule) Close(ctx context.Context, req ResourceRequest) EmptyResponse {
	st := StateFrom(ctx)
	if st == nil {
		return EmptyResponse{ErrorResponse: NewBadResourceError(req.Rid).Ptr()}
	}
	if err := st.CloseResource(req.Rid); err != nil {
		if stdErrors.Is(err, ErrBadResource) {
			return EmptyResponse{ErrorResponse: NewBadResourceError(req.Rid).Ptr()}
		}
		return EmptyResponse{ErrorResponse: NewIOError(err).Ptr()}
	}
	return EmptyResponse{}
}

// Print implements op_io_print.
func (m IOModule) Print(ctx context.Context, req PrintRequest) EmptyResponse {
	rid := RidStdout
	if req.Stderr {
		rid = RidStderr
	}
	resp := m.Write(ctx, IOWriteRequest{Rid: rid, Data: req.Data})
	return EmptyResponse{ErrorResponse: resp.ErrorResponse}
}

func resource(ctx context.Context, rid int) (Resource, *ErrorResponse) {
	st := StateFrom(ctx)
	if st == nil {
		return nil, NewBadResourceError(rid).Ptr()
	}
	res, ok := st.Resource(rid)
	if !ok {
		return nil, NewBadResourceError(rid).Ptr()
	}
	return res, nil
}
