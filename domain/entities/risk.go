package entities

import "strings"

// RiskLevel represents the security risk level of a capability or grant set.
type RiskLevel int

const (
	RiskLevelLow    RiskLevel = iota // Specific, narrow permissions
	RiskLevelMedium                  // Writes, sensitive reads, blind access
	RiskLevelHigh                    // Category-wide or recursive root access
)

// String returns the human-readable name of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLevelLow:
		return "Low"
	case RiskLevelMedium:
		return "Medium"
	case RiskLevelHigh:
		return "High"
	default:
		return "Unknown"
	}
}

// Broad filesystem patterns that grant excessive access
var BroadFilesystemPatterns = []string{
	"**", "/**", "/",
	"/etc/**", "/root/**", "/home/**",
}

// SensitivePrefixes are path prefixes whose contents are considered sensitive to read.
var SensitivePrefixes = []string{"/etc/", "/root/", "/proc/", "/sys/"}

// riskAssessorConfig holds configuration for the RiskAssessor.
type riskAssessorConfig struct {
	customBroadPatterns []string
}

func defaultRiskAssessorConfig() riskAssessorConfig {
	return riskAssessorConfig{}
}

// RiskAssessorOption configures a RiskAssessor instance.
type RiskAssessorOption func(*riskAssessorConfig)

// WithCustomBroadPatterns adds additional patterns considered "broad".
func WithCustomBroadPatterns(patterns []string) RiskAssessorOption {
	return func(c *riskAssessorConfig) {
		c.customBroadPatterns = append(c.customBroadPatterns, patterns...)
	}
}

// RiskAssessor evaluates the security risk of grants.
type RiskAssessor struct {
	config riskAssessorConfig
}

// NewRiskAssessor creates a new RiskAssessor with the given options.
func NewRiskAssessor(opts ...RiskAssessorOption) *RiskAssessor {
	cfg := defaultRiskAssessorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RiskAssessor{config: cfg}
}

// AssessCapability returns the inherent risk of granting c for a single path.
func (r *RiskAssessor) AssessCapability(c Capability, path string) RiskLevel {
	switch {
	case c == CapabilityReadAll || c == CapabilityWriteAll:
		return RiskLevelHigh
	case matchesAny(path, r.broadPatterns()):
		return RiskLevelHigh
	case c.IsWrite() || c.IsBlind() || c == CapabilityOpen:
		return RiskLevelMedium
	case hasSensitivePrefix(path):
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// AssessGrantSet evaluates the overall risk level of a GrantSet.
func (r *RiskAssessor) AssessGrantSet(g *GrantSet) RiskLevel {
	if g == nil {
		return RiskLevelLow
	}
	if g.AllowReadAll || g.AllowWriteAll {
		return RiskLevelHigh
	}
	level := r.assessFS(g.FS)
	if level < RiskLevelMedium && g.AllowBlind {
		level = RiskLevelMedium
	}
	return level
}

func (r *RiskAssessor) assessFS(fs *FileSystemCapability) RiskLevel {
	if fs == nil || len(fs.Rules) == 0 {
		return RiskLevelLow
	}
	broad := r.broadPatterns()
	hasWrite := false
	hasSensitiveRead := false

	for _, rule := range fs.Rules {
		for _, p := range rule.Read {
			if matchesAny(p, broad) {
				return RiskLevelHigh
			}
			if hasSensitivePrefix(p) {
				hasSensitiveRead = true
			}
		}
		for _, p := range rule.Write {
			if matchesAny(p, broad) {
				return RiskLevelHigh
			}
			hasWrite = true
		}
	}

	if hasWrite || hasSensitiveRead {
		return RiskLevelMedium
	}
	return RiskLevelLow
}

// DescribeRisks returns a list of human-readable risk descriptions.
func (r *RiskAssessor) DescribeRisks(g *GrantSet) []string {
	if g == nil {
		return nil
	}

	var risks []string
	if g.AllowReadAll {
		risks = append(risks, "Reads any file (High Risk)")
	}
	if g.AllowWriteAll {
		risks = append(risks, "Writes any file (High Risk)")
	}
	if g.AllowBlind {
		risks = append(risks, "Accesses host-chosen locations such as the working directory or temp files")
	}
	if g.FS == nil {
		return risks
	}

	for _, rule := range g.FS.Rules {
		if containsRecursive(rule.Read) {
			risks = append(risks, "Recursive read access to filesystem")
			break
		}
	}
	for _, rule := range g.FS.Rules {
		if containsRecursive(rule.Write) {
			risks = append(risks, "Recursive write access to filesystem")
			break
		}
	}
	for _, rule := range g.FS.Rules {
		if len(rule.Write) > 0 {
			risks = append(risks, "Write access to filesystem")
			break
		}
	}
	return risks
}

func (r *RiskAssessor) broadPatterns() []string {
	patterns := make([]string, 0, len(BroadFilesystemPatterns)+len(r.config.customBroadPatterns))
	patterns = append(patterns, BroadFilesystemPatterns...)
	return append(patterns, r.config.customBroadPatterns...)
}

func containsRecursive(patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(p, "**") {
			return true
		}
	}
	return false
}

func hasSensitivePrefix(path string) bool {
	for _, prefix := range SensitivePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// matchesAny checks if value matches any pattern in the list.
func matchesAny(value string, patterns []string) bool {
	for _, p := range patterns {
		if value == p {
			return true
		}
	}
	return false
}
