package grantstore

import (
	"fmt"
	"os"

	"github.com/cervus-dev/cervus/domain/entities"
	"github.com/cervus-dev/cervus/domain/ports"
	"gopkg.in/yaml.v3"
)

// maxPermissive is the loosest mode accepted for the grants file.
const maxPermissive os.FileMode = 0o644

// FileStore reads grants from a YAML file:
//
//	"1000":
//	  fs:
//	    rules:
//	      - read: ["/srv/data/**"]
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore for the file at path.
func NewFileStore(path string) ports.GrantStore {
	return &FileStore{path: path}
}

// Load retrieves all grants. A missing file yields no grants. A file that
// others can write is refused, since it widens what guests may open.
func (s *FileStore) Load() (map[string]*entities.GrantSet, error) {
	fi, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return map[string]*entities.GrantSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat grant store: %w", err)
	}
	if fi.Mode().Perm()&^maxPermissive != 0 {
		return nil, fmt.Errorf("grant store %s is writable by others (mode %v)", s.path, fi.Mode().Perm())
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read grant store: %w", err)
	}

	grants := map[string]*entities.GrantSet{}
	if err := yaml.Unmarshal(data, &grants); err != nil {
		return nil, fmt.Errorf("failed to parse grant store: %w", err)
	}
	return grants, nil
}

// Path returns the path to the backing store.
func (s *FileStore) Path() string {
	return s.path
}
