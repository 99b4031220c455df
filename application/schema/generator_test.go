package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigSchema(t *testing.T) {
	data, err := ConfigSchema()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, SchemaID, decoded["$id"])

	props, ok := decoded["properties"].(map[string]interface{})
	require.True(t, ok)
	for _, key := range []string{"socket", "max_workers", "submission_budget", "limits", "layout", "grants"} {
		assert.Contains(t, props, key)
	}
	assert.NotContains(t, props, "MaxWorkers", "properties use YAML names")
}

func TestGenerateSchema_UsesYAMLNames(t *testing.T) {
	type probe struct {
		SocketPath string `yaml:"socket_path"`
	}
	data, err := GenerateSchema(probe{})
	require.NoError(t, err)
	assert.Contains(t, string(data), "socket_path")
}
