package policy_test

import (
	"errors"
	"sync"
	"time"

	"github.com/reglet-dev/reglet-script/domain/entities"
)

type countingRecorder struct {
	mu      sync.Mutex
	allowed int
	denied  int
}

func (r *countingRecorder) RecordDecision(_ entities.Capability, allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if allowed {
		r.allowed++
	} else {
		r.denied++
	}
}

func (r *countingRecorder) RecordModuleLoad(entities.ModuleKind, string, time.Duration) {}

func (r *countingRecorder) RecordHostCall(string, string, time.Duration) {}

type scriptedPrompter struct {
	err         error
	answers     []string
	requests    []entities.CapabilityRequest
	interactive bool
}

func (p *scriptedPrompter) IsInteractive() bool { return p.interactive }

func (p *scriptedPrompter) PromptForCapability(req entities.CapabilityRequest) (bool, bool, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return false, false, p.err
	}
	if len(p.answers) == 0 {
		return false, false, errors.New("no scripted answer")
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer != "n", answer == "always", nil
}

func (p *scriptedPrompter) FormatNonInteractiveError(*entities.GrantSet) error {
	return errors.New("non-interactive")
}

type memoryStore struct {
	grants  *entities.GrantSet
	saveErr error
	saves   int
}

func (s *memoryStore) Load() (*entities.GrantSet, error) {
	if s.grants == nil {
		return &entities.GrantSet{}, nil
	}
	return s.grants.Clone(), nil
}

func (s *memoryStore) Save(g *entities.GrantSet) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.grants = g.Clone()
	return nil
}

func (s *memoryStore) ConfigPath() string { return "memory" }
