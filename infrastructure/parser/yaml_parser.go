package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/cervus-dev/cervus/domain/entities"
	"github.com/cervus-dev/cervus/domain/ports"
	"gopkg.in/yaml.v3"
)

// YamlConfigParser implements ConfigParser for YAML.
type YamlConfigParser struct{}

// NewYamlConfigParser creates a new YamlConfigParser.
func NewYamlConfigParser() ports.ConfigParser {
	return &YamlConfigParser{}
}

// Parse decodes YAML bytes over base. Keys absent from data keep their base
// values; unknown keys are an error.
func (p *YamlConfigParser) Parse(data []byte, base entities.Config) (*entities.Config, error) {
	cfg := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
