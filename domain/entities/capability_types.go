package entities

import (
	"path/filepath"
	"strings"
)

// FileSystemCapability defines permitted filesystem access.
type FileSystemCapability struct {
	Rules []FileSystemRule `json:"rules" yaml:"rules" jsonschema:"required"`
}

// FileSystemRule defines a single filesystem access rule.
// Patterns use doublestar glob syntax and are matched against absolute paths.
type FileSystemRule struct {
	Read  []string `json:"read,omitempty" yaml:"read,omitempty"`
	Write []string `json:"write,omitempty" yaml:"write,omitempty"`
}

// RootRule returns a rule covering root and everything beneath it.
func RootRule(root string, write bool) FileSystemRule {
	root = filepath.Clean(root)
	patterns := []string{root, filepath.Join(root, "**")}
	rule := FileSystemRule{Read: patterns}
	if write {
		rule.Write = append([]string(nil), patterns...)
	}
	return rule
}

// PathRule returns a rule covering exactly one path. Glob metacharacters in
// path are escaped.
func PathRule(path string, read, write bool) FileSystemRule {
	path = globEscaper.Replace(filepath.Clean(path))
	var rule FileSystemRule
	if read {
		rule.Read = []string{path}
	}
	if write {
		rule.Write = []string{path}
	}
	return rule
}

var globEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`[`, `\[`,
	`{`, `\{`,
)
