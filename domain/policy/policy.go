// Package policy decides which files a non-privileged guest may open.
package policy

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cervus-dev/cervus/domain/entities"
	"github.com/cervus-dev/cervus/domain/ports"
)

// policyConfig holds configuration for the Policy engine.
type policyConfig struct {
	cwd             string              // Working directory for relative path resolution
	resolveSymlinks bool                // Whether to resolve symlinks (security feature)
	denialHandler   ports.DenialHandler // Handler invoked on policy denials
}

func defaultPolicyConfig() policyConfig {
	return policyConfig{
		cwd:             "",
		resolveSymlinks: true,
		denialHandler:   &SlogDenialHandler{},
	}
}

// PolicyOption configures the Policy.
type PolicyOption func(*policyConfig)

// WithWorkingDirectory sets the working directory for relative path resolution.
func WithWorkingDirectory(cwd string) PolicyOption {
	return func(c *policyConfig) {
		c.cwd = cwd
	}
}

// WithSymlinkResolution enables/disables symlink resolution.
// Default is true. Disable only for testing.
func WithSymlinkResolution(enabled bool) PolicyOption {
	return func(c *policyConfig) {
		c.resolveSymlinks = enabled
	}
}

// WithDenialHandler sets the denial handler.
func WithDenialHandler(h ports.DenialHandler) PolicyOption {
	return func(c *policyConfig) {
		c.denialHandler = h
	}
}

// Policy implements ports.Policy with stateless enforcement.
type Policy struct {
	config policyConfig
}

type compiledFSRule struct {
	read  []string
	write []string
}

// NewPolicy creates a new Policy.
func NewPolicy(opts ...PolicyOption) ports.Policy {
	cfg := defaultPolicyConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Policy{config: cfg}
}

// compile drops patterns doublestar cannot parse so they never match.
func compile(grants *entities.GrantSet) []compiledFSRule {
	if grants == nil || grants.FS == nil {
		return nil
	}
	rules := make([]compiledFSRule, 0, len(grants.FS.Rules))
	for _, rule := range grants.FS.Rules {
		cr := compiledFSRule{}
		for _, r := range rule.Read {
			if doublestar.ValidatePattern(r) {
				cr.read = append(cr.read, r)
			}
		}
		for _, w := range rule.Write {
			if doublestar.ValidatePattern(w) {
				cr.write = append(cr.write, w)
			}
		}
		rules = append(rules, cr)
	}
	return rules
}

// CheckFileSystem reports whether req is allowed by grants.
func (p *Policy) CheckFileSystem(req entities.FileSystemRequest, grants *entities.GrantSet) bool {
	rules := compile(grants)
	if len(rules) == 0 {
		p.config.denialHandler.OnDenial("fs", req, "no grants")
		return false
	}

	path := filepath.Clean(req.Path)
	if !filepath.IsAbs(path) {
		if p.config.cwd == "" {
			p.config.denialHandler.OnDenial("fs", req, "relative path without working directory")
			return false
		}
		path = filepath.Join(p.config.cwd, path)
	}

	// Resolve symlinks to prevent traversal attacks
	if p.config.resolveSymlinks {
		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			path = resolved
		}
	}

	for _, rule := range rules {
		var patterns []string
		switch req.Operation {
		case "read":
			patterns = rule.read
		case "write":
			patterns = rule.write
		}

		for _, pattern := range patterns {
			if matched, _ := doublestar.Match(pattern, path); matched {
				return true
			}
		}
	}

	p.config.denialHandler.OnDenial("fs", req, "path not allowed")
	return false
}
