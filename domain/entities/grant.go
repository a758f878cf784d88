package entities

import "slices"

// GrantSet is the policy document consulted by the restrictive broker.
type GrantSet struct {
	FS *FileSystemCapability `json:"fs,omitempty" yaml:"fs,omitempty"`

	// Deny lists capabilities refused regardless of path rules.
	Deny []Capability `json:"deny,omitempty" yaml:"deny,omitempty"`

	// AllowReadAll grants category-wide ReadAll requests.
	AllowReadAll bool `json:"allow_read_all,omitempty" yaml:"allow_read_all,omitempty"`

	// AllowWriteAll grants category-wide WriteAll requests.
	AllowWriteAll bool `json:"allow_write_all,omitempty" yaml:"allow_write_all,omitempty"`

	// AllowBlind lets ReadBlind/WriteBlind requests be matched against path rules.
	// Without it blind variants are always denied.
	AllowBlind bool `json:"allow_blind,omitempty" yaml:"allow_blind,omitempty"`
}

// IsEmpty returns true if the grant set grants nothing.
func (g *GrantSet) IsEmpty() bool {
	if g == nil {
		return true
	}
	if g.FS != nil && len(g.FS.Rules) > 0 {
		return false
	}
	return !g.AllowReadAll && !g.AllowWriteAll && !g.AllowBlind
}

// Denies reports whether c is listed in the deny set.
func (g *GrantSet) Denies(c Capability) bool {
	if g == nil {
		return false
	}
	return slices.Contains(g.Deny, c)
}

// Merge unions two grant sets. Deny lists are unioned too, so a merge never
// widens a category denial.
func (g *GrantSet) Merge(other *GrantSet) {
	if other == nil {
		return
	}
	g.mergeFS(other.FS)
	for _, c := range other.Deny {
		if !slices.Contains(g.Deny, c) {
			g.Deny = append(g.Deny, c)
		}
	}
	g.AllowReadAll = g.AllowReadAll || other.AllowReadAll
	g.AllowWriteAll = g.AllowWriteAll || other.AllowWriteAll
	g.AllowBlind = g.AllowBlind || other.AllowBlind
}

func (g *GrantSet) mergeFS(other *FileSystemCapability) {
	if other == nil || len(other.Rules) == 0 {
		return
	}
	if g.FS == nil {
		g.FS = &FileSystemCapability{}
	}
	for _, rule := range other.Rules {
		if !g.containsFSRule(rule) {
			g.FS.Rules = append(g.FS.Rules, cloneRule(rule))
		}
	}
}

// AddRule appends a filesystem rule unless an identical one is present.
func (g *GrantSet) AddRule(rule FileSystemRule) {
	g.mergeFS(&FileSystemCapability{Rules: []FileSystemRule{rule}})
}

// Clone returns a deep copy of the GrantSet.
func (g *GrantSet) Clone() *GrantSet {
	if g == nil {
		return nil
	}
	clone := &GrantSet{
		Deny:          append([]Capability(nil), g.Deny...),
		AllowReadAll:  g.AllowReadAll,
		AllowWriteAll: g.AllowWriteAll,
		AllowBlind:    g.AllowBlind,
	}
	if g.FS != nil {
		clone.FS = &FileSystemCapability{
			Rules: make([]FileSystemRule, len(g.FS.Rules)),
		}
		for i, rule := range g.FS.Rules {
			clone.FS.Rules[i] = cloneRule(rule)
		}
	}
	return clone
}

// Difference returns grants in g that are not covered by other.
// Useful for determining what still needs to be granted.
func (g *GrantSet) Difference(other *GrantSet) *GrantSet {
	if g == nil {
		return nil
	}
	if other == nil {
		return g.Clone()
	}

	result := &GrantSet{
		AllowReadAll:  g.AllowReadAll && !other.AllowReadAll,
		AllowWriteAll: g.AllowWriteAll && !other.AllowWriteAll,
		AllowBlind:    g.AllowBlind && !other.AllowBlind,
	}
	if g.FS != nil {
		var rules []FileSystemRule
		for _, rule := range g.FS.Rules {
			if !other.containsFSRule(rule) {
				rules = append(rules, cloneRule(rule))
			}
		}
		if len(rules) > 0 {
			result.FS = &FileSystemCapability{Rules: rules}
		}
	}
	return result
}

// Contains returns true if g covers all grants in other.
func (g *GrantSet) Contains(other *GrantSet) bool {
	if other == nil || other.IsEmpty() {
		return true
	}
	if g == nil {
		return false
	}
	return other.Difference(g).IsEmpty()
}

func (g *GrantSet) containsFSRule(rule FileSystemRule) bool {
	if g.FS == nil {
		return false
	}
	for _, r := range g.FS.Rules {
		if slices.Equal(r.Read, rule.Read) && slices.Equal(r.Write, rule.Write) {
			return true
		}
	}
	return false
}

func cloneRule(rule FileSystemRule) FileSystemRule {
	return FileSystemRule{
		Read:  append([]string(nil), rule.Read...),
		Write: append([]string(nil), rule.Write...),
	}
}
