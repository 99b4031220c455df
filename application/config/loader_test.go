package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cervus-dev/cervus/domain/entities"
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoader_DefaultsWithoutFile(t *testing.T) {
	cfg, err := NewLoader().Load("")
	require.NoError(t, err)
	assert.Equal(t, entities.DefaultConfig().Socket, cfg.Socket)
}

func TestLoader_MergesGrantsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "grants.yaml", `
"1000":
  fs:
    rules:
      - write: ["/tmp/1000/**"]
`)
	path := writeFile(t, dir, "cvd.yaml", `
socket: /tmp/cvd.sock
grants_file: grants.yaml
grants:
  "1000":
    fs:
      rules:
        - read: ["/srv/**"]
`)

	cfg, err := NewLoader().Load(path)
	require.NoError(t, err)

	g := cfg.GrantsFor(1000)
	require.NotNil(t, g)
	require.Len(t, g.FS.Rules, 2)
	assert.Equal(t, []string{"/srv/**"}, g.FS.Rules[0].Read)
	assert.Equal(t, []string{"/tmp/1000/**"}, g.FS.Rules[1].Write)
	assert.Nil(t, cfg.GrantsFor(1001))
}

func TestLoader_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad-grants.yaml", "- not a map\n")

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"parse error", "max_workers: [\n", ""},
		{"validation error", "max_workers: 0\n", "Config.max_workers"},
		{"bad grants file", "grants_file: bad-grants.yaml\n", "grants_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "cvd.yaml", tt.body)
			_, err := NewLoader().Load(path)
			require.Error(t, err)

			var ce *hosterrors.ConfigError
			require.True(t, errors.As(err, &ce), "got %v", err)
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, ce.Field)
			}
		})
	}
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader().Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
