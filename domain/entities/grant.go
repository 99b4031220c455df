package entities

import "slices"

// GrantSet is the collection of capabilities granted to a non-privileged identity.
type GrantSet struct {
	FS *FileSystemCapability `json:"fs,omitempty" yaml:"fs,omitempty"`
}

// FileSystemCapability defines permitted filesystem access.
type FileSystemCapability struct {
	Rules []FileSystemRule `json:"rules" yaml:"rules" jsonschema:"required"`
}

// FileSystemRule defines a single filesystem access rule.
// Patterns are doublestar globs matched against cleaned absolute paths.
type FileSystemRule struct {
	Read  []string `json:"read,omitempty" yaml:"read,omitempty"`
	Write []string `json:"write,omitempty" yaml:"write,omitempty"`
}

// IsEmpty returns true if no capabilities are present.
func (g *GrantSet) IsEmpty() bool {
	if g == nil {
		return true
	}
	return g.FS == nil || len(g.FS.Rules) == 0
}

// Merge unions two grant sets. Rules already present are not repeated.
func (g *GrantSet) Merge(other *GrantSet) {
	if other == nil || other.FS == nil || len(other.FS.Rules) == 0 {
		return
	}
	if g.FS == nil {
		g.FS = &FileSystemCapability{}
	}
	for _, rule := range other.FS.Rules {
		if !containsRule(g.FS.Rules, rule) {
			g.FS.Rules = append(g.FS.Rules, rule)
		}
	}
}

func containsRule(rules []FileSystemRule, r FileSystemRule) bool {
	for _, existing := range rules {
		if slices.Equal(existing.Read, r.Read) && slices.Equal(existing.Write, r.Write) {
			return true
		}
	}
	return false
}
