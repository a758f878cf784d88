package policy

import (
	"fmt"
	"os"
	"sync"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/ports"
	"go.uber.org/zap"
)

// Ensure implementations satisfy the interface.
var (
	_ ports.DenialHandler = (*StderrDenialHandler)(nil)
	_ ports.DenialHandler = (*NopDenialHandler)(nil)
	_ ports.DenialHandler = (*LogDenialHandler)(nil)
	_ ports.DenialHandler = (*AuditDenialHandler)(nil)
)

// StderrDenialHandler logs denials to stderr.
type StderrDenialHandler struct{}

func (h *StderrDenialHandler) OnDenial(req entities.PermissionRequest, reason string) {
	fmt.Fprintf(os.Stderr, "Permission Denied [%s]: %q via %s (Reason: %s)\n",
		req.Capability(), req.Path(), req.APIName(), reason)
}

// NopDenialHandler does nothing.
type NopDenialHandler struct{}

func (h *NopDenialHandler) OnDenial(req entities.PermissionRequest, reason string) {}

// LogDenialHandler writes denials to a zap logger.
type LogDenialHandler struct {
	logger *zap.Logger
}

// NewLogDenialHandler returns a handler logging at warn level. A nil logger is
// replaced by a no-op logger.
func NewLogDenialHandler(logger *zap.Logger) *LogDenialHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDenialHandler{logger: logger}
}

func (h *LogDenialHandler) OnDenial(req entities.PermissionRequest, reason string) {
	h.logger.Warn("permission denied",
		zap.Stringer("capability", req.Capability()),
		zap.String("path", req.Path()),
		zap.String("api", req.APIName()),
		zap.String("reason", reason),
	)
}

// Denial is one entry of an audit trail.
type Denial struct {
	Request entities.PermissionRequest
	Reason  string
}

// AuditDenialHandler keeps the most recent denials in memory.
type AuditDenialHandler struct {
	entries []Denial
	limit   int
	mu      sync.Mutex
}

// NewAuditDenialHandler keeps at most limit entries; limit <= 0 means 256.
func NewAuditDenialHandler(limit int) *AuditDenialHandler {
	if limit <= 0 {
		limit = 256
	}
	return &AuditDenialHandler{limit: limit}
}

func (h *AuditDenialHandler) OnDenial(req entities.PermissionRequest, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == h.limit {
		h.entries = h.entries[1:]
	}
	h.entries = append(h.entries, Denial{Request: req, Reason: reason})
}

// Denials returns a copy of the recorded entries, oldest first.
func (h *AuditDenialHandler) Denials() []Denial {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Denial(nil), h.entries...)
}
