// Package config loads the host configuration: defaults, then the YAML file,
// then the grants file, then validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cervus-dev/cervus/application/validation"
	"github.com/cervus-dev/cervus/domain/entities"
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/cervus-dev/cervus/domain/ports"
	"github.com/cervus-dev/cervus/infrastructure/grantstore"
	"github.com/cervus-dev/cervus/infrastructure/parser"
)

// Loader builds a validated entities.Config.
type Loader struct {
	parser    ports.ConfigParser
	validator ports.ConfigValidator
	grants    func(path string) ports.GrantStore
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithParser replaces the YAML parser.
func WithParser(p ports.ConfigParser) LoaderOption {
	return func(l *Loader) {
		l.parser = p
	}
}

// WithValidator replaces the config validator.
func WithValidator(v ports.ConfigValidator) LoaderOption {
	return func(l *Loader) {
		l.validator = v
	}
}

// NewLoader creates a loader with the YAML parser and the default validator.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		parser:    parser.NewYamlConfigParser(),
		validator: validation.NewConfigValidator(),
		grants:    grantstore.NewFileStore,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the file at path over the defaults. An empty path loads the
// defaults alone. Validation failures are returned as *errors.ConfigError.
func (l *Loader) Load(path string) (*entities.Config, error) {
	cfg := entities.DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		parsed, err := l.parser.Parse(data, cfg)
		if err != nil {
			return nil, &hosterrors.ConfigError{Err: err}
		}
		cfg = *parsed
	}
	return l.Finish(cfg, filepath.Dir(path))
}

// Finish merges the grants file and validates cfg. A relative grants_file
// is resolved against dir.
func (l *Loader) Finish(cfg entities.Config, dir string) (*entities.Config, error) {
	if cfg.GrantsFile != "" {
		gpath := cfg.GrantsFile
		if !filepath.IsAbs(gpath) && dir != "" {
			gpath = filepath.Join(dir, gpath)
		}
		extra, err := l.grants(gpath).Load()
		if err != nil {
			return nil, &hosterrors.ConfigError{Field: "grants_file", Err: err}
		}
		cfg.Grants = mergeGrants(cfg.Grants, extra)
	}

	result, err := l.validator.Validate(&cfg)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field, e.Message))
		}
		field := ""
		if len(result.Errors) == 1 {
			field = result.Errors[0].Field
		}
		return nil, &hosterrors.ConfigError{Field: field, Err: fmt.Errorf("%s", strings.Join(msgs, "; "))}
	}
	return &cfg, nil
}

func mergeGrants(base, extra map[string]*entities.GrantSet) map[string]*entities.GrantSet {
	out := make(map[string]*entities.GrantSet, len(base)+len(extra))
	for key, g := range base {
		merged := &entities.GrantSet{}
		merged.Merge(g)
		out[key] = merged
	}
	for key, g := range extra {
		if out[key] == nil {
			out[key] = &entities.GrantSet{}
		}
		out[key].Merge(g)
	}
	return out
}
