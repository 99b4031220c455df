// Package validation checks a host configuration before anything is mapped
// or listened on.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cervus-dev/cervus/domain/entities"
	"github.com/cervus-dev/cervus/domain/ports"
	"github.com/go-playground/validator/v10"
)

// maxLinearMemory is the most a 32-bit guest can address.
const maxLinearMemory = 4 << 30

// ConfigValidator validates struct tags with go-playground/validator, then
// checks what tags cannot express: region placement and grant syntax.
type ConfigValidator struct {
	validate *validator.Validate
}

// NewConfigValidator creates a new validator.
func NewConfigValidator() ports.ConfigValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their YAML names, the way users write them.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &ConfigValidator{validate: v}
}

// Validate returns every problem found. The error is reserved for failures
// of the validator itself.
func (v *ConfigValidator) Validate(cfg *entities.Config) (*entities.ValidationResult, error) {
	result := &entities.ValidationResult{Valid: true}
	fail := func(field, format string, args ...any) {
		result.Errors = append(result.Errors, entities.ValidationError{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
		})
	}

	if err := v.validate.Struct(cfg); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return nil, fmt.Errorf("validate config: %w", err)
		}
		for _, fe := range ves {
			msg := fmt.Sprintf("failed %q", fe.Tag())
			if fe.Param() != "" {
				msg = fmt.Sprintf("failed %q (%s)", fe.Tag(), fe.Param())
			}
			fail(fe.Namespace(), "%s", msg)
		}
	}

	checkLayout(cfg.Layout, fail)

	if cfg.Limits.MaxMemory > maxLinearMemory {
		fail("Config.limits.max_memory", "exceeds the 4 GiB a 32-bit guest can address")
	}

	for key, grants := range cfg.Grants {
		field := "Config.grants." + key
		if key != "*" {
			if _, err := strconv.ParseUint(key, 10, 32); err != nil {
				fail(field, "key must be a decimal uid or \"*\"")
			}
		}
		checkGrants(field, grants, fail)
	}

	if len(result.Errors) > 0 {
		result.Valid = false
	}
	return result, nil
}

func checkLayout(l entities.Layout, fail func(field, format string, args ...any)) {
	regions := l.Regions()
	for _, r := range regions {
		if r.End() < r.Base {
			fail("Config.layout."+r.Name, "region %s wraps the address space", r)
		}
	}
	for i := range regions {
		for j := i + 1; j < len(regions); j++ {
			a, b := regions[i], regions[j]
			if a.Base < b.End() && b.Base < a.End() {
				fail("Config.layout", "regions %s and %s overlap", a, b)
			}
		}
	}
}

func checkGrants(field string, grants *entities.GrantSet, fail func(field, format string, args ...any)) {
	if grants == nil || grants.FS == nil {
		return
	}
	check := func(kind string, patterns []string) {
		for _, p := range patterns {
			switch {
			case !filepath.IsAbs(p):
				fail(field+".fs", "%s pattern %q is not absolute", kind, p)
			case !doublestar.ValidatePattern(p):
				fail(field+".fs", "%s pattern %q is not a valid glob", kind, p)
			}
		}
	}
	for _, rule := range grants.FS.Rules {
		check("read", rule.Read)
		check("write", rule.Write)
	}
}
