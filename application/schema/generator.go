// Package schema generates the JSON schema of the host configuration file.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/cervus-dev/cervus/domain/entities"
	"github.com/invopop/jsonschema"
)

// SchemaID identifies the configuration schema.
const SchemaID = "https://cervus.dev/schemas/cvd-config.json"

// GenerateSchema creates a JSON schema from a Go struct, naming properties
// after their YAML keys.
func GenerateSchema(v interface{}) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true, // Expand struct definitions inline
		FieldNameTag:   "yaml",
	}
	schema := reflector.Reflect(v)

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return jsonBytes, nil
}

// ConfigSchema returns the schema of the cvd configuration file.
func ConfigSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		FieldNameTag:   "yaml",
	}
	schema := reflector.Reflect(&entities.Config{})
	schema.ID = SchemaID
	schema.Title = "cvd configuration"

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config schema: %w", err)
	}
	return jsonBytes, nil
}
