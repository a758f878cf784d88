// Package testutil provides brokers and filesystem wrappers for tests.
package testutil

import (
	"sync"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/policy"
	"github.com/reglet-dev/reglet-script/domain/ports"
)

// RecordingBroker records every request before delegating to an inner broker.
type RecordingBroker struct {
	inner    ports.PermissionBroker
	requests []entities.PermissionRequest
	mu       sync.Mutex
}

var _ ports.PermissionBroker = (*RecordingBroker)(nil)

// NewRecordingBroker wraps inner. A nil inner allows everything.
func NewRecordingBroker(inner ports.PermissionBroker) *RecordingBroker {
	if inner == nil {
		inner = policy.Permissive{}
	}
	return &RecordingBroker{inner: inner}
}

// DenyAll returns a RecordingBroker that denies every request.
func DenyAll() *RecordingBroker {
	return NewRecordingBroker(ports.PermissionBrokerFunc(func(entities.PermissionRequest) entities.Decision {
		return entities.Deny("denied by test")
	}))
}

// Decide implements ports.PermissionBroker.
func (b *RecordingBroker) Decide(req entities.PermissionRequest) entities.Decision {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()
	return b.inner.Decide(req)
}

// Requests returns a copy of the recorded requests.
func (b *RecordingBroker) Requests() []entities.PermissionRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]entities.PermissionRequest(nil), b.requests...)
}

// Count returns the number of recorded requests.
func (b *RecordingBroker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// Last returns the most recent request.
func (b *RecordingBroker) Last() (entities.PermissionRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return entities.PermissionRequest{}, false
	}
	return b.requests[len(b.requests)-1], true
}

// Reset forgets recorded requests.
func (b *RecordingBroker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = nil
}
