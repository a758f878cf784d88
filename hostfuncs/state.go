package hostfuncs

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/reglet-dev/reglet-script/domain/ports"
)

// Well-known resource ids installed in every State.
const (
	RidStdin  = 0
	RidStdout = 1
	RidStderr = 2
)

var (
	// ErrBrokerInstalled is returned when a second broker is installed into a State.
	ErrBrokerInstalled = stdErrors.New("permission broker already installed")

	// ErrBadResource is returned for an unknown resource id.
	ErrBadResource = stdErrors.New("bad resource id")
)

// Resource is an entry of the per-engine resource table. Resources also
// implement io.Reader, io.Writer, or both.
type Resource interface {
	io.Closer
}

// stdinResource exposes the host input stream without letting scripts close it.
type stdinResource struct {
	r io.Reader
}

func (s *stdinResource) Read(p []byte) (int, error) {
	if s.r == nil {
		return 0, io.EOF
	}
	return s.r.Read(p)
}

func (s *stdinResource) Close() error { return nil }

// stdoutResource is the write-only counterpart for stdout and stderr.
type stdoutResource struct {
	w io.Writer
}

func (s *stdoutResource) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *stdoutResource) Close() error { return nil }

// stateConfig holds configuration for a State.
type stateConfig struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func defaultStateConfig() stateConfig {
	return stateConfig{
		stdout: io.Discard,
		stderr: io.Discard,
	}
}

// StateOption configures a State.
type StateOption func(*stateConfig)

// WithStdin serves r as resource 0.
func WithStdin(r io.Reader) StateOption {
	return func(c *stateConfig) {
		c.stdin = r
	}
}

// WithStdout serves w as resource 1.
func WithStdout(w io.Writer) StateOption {
	return func(c *stateConfig) {
		if w != nil {
			c.stdout = w
		}
	}
}

// WithStderr serves w as resource 2.
func WithStderr(w io.Writer) StateOption {
	return func(c *stateConfig) {
		if w != nil {
			c.stderr = w
		}
	}
}

// State is the per-engine store capability modules read from: the installed
// permission broker and the table of open resources.
type State struct {
	broker    ports.PermissionBroker
	resources map[int]Resource
	nextRid   int
	mu        sync.RWMutex
}

// NewState creates a State with the standard streams installed.
func NewState(opts ...StateOption) *State {
	cfg := defaultStateConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &State{
		resources: map[int]Resource{
			RidStdin:  &stdinResource{r: cfg.stdin},
			RidStdout: &stdoutResource{w: cfg.stdout},
			RidStderr: &stdoutResource{w: cfg.stderr},
		},
		nextRid: RidStderr + 1,
	}
}

// SetBroker installs the broker. It may be called once.
func (s *State) SetBroker(b ports.PermissionBroker) error {
	if b == nil {
		return fmt.Errorf("nil permission broker")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broker != nil {
		return ErrBrokerInstalled
	}
	s.broker = b
	return nil
}

// Broker returns the installed broker, or nil.
func (s *State) Broker() ports.PermissionBroker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.broker
}

// AddResource stores r and returns its id.
func (s *State) AddResource(r Resource) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	rid := s.nextRid
	s.nextRid++
	s.resources[rid] = r
	return rid
}

// Resource looks up an open resource.
func (s *State) Resource(rid int) (Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[rid]
	return r, ok
}

// CloseResource removes rid from the table and closes it.
func (s *State) CloseResource(rid int) error {
	s.mu.Lock()
	r, ok := s.resources[rid]
	delete(s.resources, rid)
	s.mu.Unlock()
	if !ok {
		return ErrBadResource
	}
	return r.Close()
}

// ResourceIDs returns the open resource ids in ascending order.
func (s *State) ResourceIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, len(s.resources))
	for rid := range s.resources {
		ids = append(ids, rid)
	}
	sort.Ints(ids)
	return ids
}

// Close closes every open resource.
func (s *State) Close() error {
	s.mu.Lock()
	resources := s.resources
	s.resources = map[int]Resource{}
	s.mu.Unlock()

	var errs []error
	for _, r := range resources {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stdErrors.Join(errs...)
}

type stateKey struct{}

// WithState attaches st to ctx for host calls dispatched under it.
func WithState(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, stateKey{}, st)
}

// StateFrom returns the State attached to ctx, or nil.
func StateFrom(ctx context.Context) *State {
	st, _ := ctx.Value(stateKey{}).(*State)
	return st
}
