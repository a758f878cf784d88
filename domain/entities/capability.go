package entities

import "fmt"

// Capability is the closed set of permission kinds a capability module can request.
// The zero value is not a valid capability.
type Capability int

const (
	// CapabilityOpen covers opening a file handle with read and/or write intent.
	CapabilityOpen Capability = iota + 1
	// CapabilityRead covers reading one path.
	CapabilityRead
	// CapabilityReadAll covers reading any path (no path carried).
	CapabilityReadAll
	// CapabilityReadBlind covers reads whose target is not named by the caller (e.g. the working directory).
	CapabilityReadBlind
	// CapabilityWrite covers writing one path.
	CapabilityWrite
	// CapabilityWritePartial covers appending to or truncating one path.
	CapabilityWritePartial
	// CapabilityWriteAll covers writing any path (no path carried).
	CapabilityWriteAll
	// CapabilityWriteBlind covers writes whose target is chosen by the host (e.g. a temp file).
	CapabilityWriteBlind
)

var capabilityNames = map[Capability]string{
	CapabilityOpen:         "open",
	CapabilityRead:         "read",
	CapabilityReadAll:      "read_all",
	CapabilityReadBlind:    "read_blind",
	CapabilityWrite:        "write",
	CapabilityWritePartial: "write_partial",
	CapabilityWriteAll:     "write_all",
	CapabilityWriteBlind:   "write_blind",
}

// AllCapabilities lists every capability in declaration order.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityOpen,
		CapabilityRead,
		CapabilityReadAll,
		CapabilityReadBlind,
		CapabilityWrite,
		CapabilityWritePartial,
		CapabilityWriteAll,
		CapabilityWriteBlind,
	}
}

// String returns the snake_case name used in policy files and error payloads.
func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%d)", int(c))
}

// Valid reports whether c is one of the declared capabilities.
func (c Capability) Valid() bool {
	_, ok := capabilityNames[c]
	return ok
}

// IsRead reports whether c is in the read class.
func (c Capability) IsRead() bool {
	return c == CapabilityRead || c == CapabilityReadAll || c == CapabilityReadBlind
}

// IsWrite reports whether c is in the write class.
func (c Capability) IsWrite() bool {
	switch c {
	case CapabilityWrite, CapabilityWritePartial, CapabilityWriteAll, CapabilityWriteBlind:
		return true
	default:
		return false
	}
}

// IsBlind reports whether c is a blind variant.
func (c Capability) IsBlind() bool {
	return c == CapabilityReadBlind || c == CapabilityWriteBlind
}

// RequiresPath reports whether requests for c must carry a path.
func (c Capability) RequiresPath() bool {
	return c.Valid() && c != CapabilityReadAll && c != CapabilityWriteAll
}

// ParseCapability converts a name produced by String back to a Capability.
func ParseCapability(s string) (Capability, error) {
	for c, name := range capabilityNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", s)
}

// MarshalText implements encoding.TextMarshaler so capabilities serialize by name.
func (c Capability) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid capability %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Capability) UnmarshalText(text []byte) error {
	parsed, err := ParseCapability(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
