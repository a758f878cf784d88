// Package prompter asks a terminal user to approve denied path requests.
package prompter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/ports"
)

// cliPrompterConfig holds configuration for the CliPrompter.
type cliPrompterConfig struct {
	interactive *bool
}

// Option configures a CliPrompter.
type Option func(*cliPrompterConfig)

// WithInteractive overrides terminal detection.
func WithInteractive(interactive bool) Option {
	return func(c *cliPrompterConfig) {
		c.interactive = &interactive
	}
}

// CliPrompter implements ports.Prompter for CLI environments.
type CliPrompter struct {
	in     io.Reader
	reader *bufio.Reader
	out    io.Writer
	config cliPrompterConfig
	mu     sync.Mutex
}

var _ ports.Prompter = (*CliPrompter)(nil)

// NewCliPrompter creates a new CliPrompter.
func NewCliPrompter(in io.Reader, out io.Writer, opts ...Option) *CliPrompter {
	var cfg cliPrompterConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	p := &CliPrompter{in: in, out: out, config: cfg}
	if in != nil {
		p.reader = bufio.NewReader(in)
	}
	return p
}

// IsInteractive reports whether answers can be read from a terminal.
func (p *CliPrompter) IsInteractive() bool {
	if p.config.interactive != nil {
		return *p.config.interactive && p.reader != nil
	}
	if f, ok := p.in.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// PromptForCapability asks the user to grant a single path request.
// Anything but yes or always is a denial.
func (p *CliPrompter) PromptForCapability(req entities.CapabilityRequest) (granted bool, always bool, err error) {
	if p.reader == nil {
		return false, false, io.EOF
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	_, _ = fmt.Fprintf(p.out, "Script Request: %s\n", req.Description)
	_, _ = fmt.Fprintf(p.out, "Capability: %s\n", req.Capability)
	_, _ = fmt.Fprintf(p.out, "Risk: %s\n", req.RiskLevel)
	_, _ = fmt.Fprintf(p.out, "Allow? [y/n/always]: ")

	line, err := p.reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return false, false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, false, nil
	case "a", "always":
		return true, true, nil
	default:
		return false, false, nil
	}
}

// FormatNonInteractiveError lists the rules a policy would need to allow
// what was denied.
func (p *CliPrompter) FormatNonInteractiveError(missing *entities.GrantSet) error {
	if missing.IsEmpty() {
		return errors.New("script requires capabilities in non-interactive mode; review the policy file")
	}

	var b strings.Builder
	b.WriteString("script requires capabilities in non-interactive mode; add to the policy file:")
	if missing.FS != nil {
		for _, rule := range missing.FS.Rules {
			for _, r := range rule.Read {
				fmt.Fprintf(&b, "\n  read: %s", r)
			}
			for _, w := range rule.Write {
				fmt.Fprintf(&b, "\n  write: %s", w)
			}
		}
	}
	if missing.AllowReadAll {
		b.WriteString("\n  allow_read_all: true")
	}
	if missing.AllowWriteAll {
		b.WriteString("\n  allow_write_all: true")
	}
	if missing.AllowBlind {
		b.WriteString("\n  allow_blind: true")
	}
	return errors.New(b.String())
}
