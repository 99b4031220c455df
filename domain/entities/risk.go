package entities

import "strings"

// RiskLevel is how much a grant set widens what a guest may open.
type RiskLevel int

const (
	RiskLevelLow    RiskLevel = iota // Specific files
	RiskLevelMedium                  // Writes, or reads under sensitive trees
	RiskLevelHigh                    // Recursive or root-wide access, writes to sensitive trees
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

var (
	// BroadFilesystemPatterns grant access to everything below the root.
	BroadFilesystemPatterns = []string{"**", "/**", "/*", "/"}

	// SensitivePrefixes are trees whose contents belong to the system or
	// to other users.
	SensitivePrefixes = []string{"/etc/", "/root/", "/home/", "/proc/", "/sys/", "/dev/", "/run/", "/var/lib/"}
)

// riskAssessorConfig holds configuration for the RiskAssessor.
type riskAssessorConfig struct {
	broad     []string
	sensitive []string
}

func defaultRiskAssessorConfig() riskAssessorConfig {
	return riskAssessorConfig{
		broad:     append([]string(nil), BroadFilesystemPatterns...),
		sensitive: append([]string(nil), SensitivePrefixes...),
	}
}

// RiskAssessorOption configures a RiskAssessor instance.
type RiskAssessorOption func(*riskAssessorConfig)

// WithCustomBroadPatterns adds patterns considered root-wide.
func WithCustomBroadPatterns(patterns ...string) RiskAssessorOption {
	return func(c *riskAssessorConfig) {
		c.broad = append(c.broad, patterns...)
	}
}

// WithSensitivePrefixes adds trees considered sensitive.
func WithSensitivePrefixes(prefixes ...string) RiskAssessorOption {
	return func(c *riskAssessorConfig) {
		c.sensitive = append(c.sensitive, prefixes...)
	}
}

// RiskAssessor evaluates filesystem grants.
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

// AssessGrantSet evaluates the overall risk level of a GrantSet.
func (r *RiskAssessor) AssessGrantSet(g *GrantSet) RiskLevel {
	if g.IsEmpty() {
		return RiskLevelLow
	}

	level := RiskLevelLow
	for _, rule := range g.FS.Rules {
		for _, p := range rule.Read {
			switch {
			case r.broad(p) || strings.Contains(p, "**"):
				return RiskLevelHigh
			case r.sensitive(p):
				level = RiskLevelMedium
			}
		}
		for _, p := range rule.Write {
			if r.broad(p) || strings.Contains(p, "**") || r.sensitive(p) {
				return RiskLevelHigh
			}
			level = RiskLevelMedium
		}
	}
	return level
}

// DescribeRisks returns a list of human-readable risk descriptions.
func (r *RiskAssessor) DescribeRisks(g *GrantSet) []string {
	if g.IsEmpty() {
		return nil
	}

	var risks []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			risks = append(risks, s)
		}
	}
	for _, rule := range g.FS.Rules {
		for _, p := range rule.Read {
			if strings.Contains(p, "**") || r.broad(p) {
				add("Recursive read access to filesystem (High Risk)")
			}
			if r.sensitive(p) {
				add("Reads under " + p)
			}
		}
		for _, p := range rule.Write {
			if strings.Contains(p, "**") || r.broad(p) {
				add("Recursive write access to filesystem (High Risk)")
			}
			if r.sensitive(p) {
				add("Writes under " + p + " (High Risk)")
			}
			add("Write access to filesystem")
		}
	}
	return risks
}

func (r *RiskAssessor) broad(pattern string) bool {
	for _, p := range r.config.broad {
		if pattern == p {
			return true
		}
	}
	return false
}

func (r *RiskAssessor) sensitive(pattern string) bool {
	for _, prefix := range r.config.sensitive {
		if strings.HasPrefix(pattern, prefix) || pattern+"/" == prefix {
			return true
		}
	}
	return false
}
