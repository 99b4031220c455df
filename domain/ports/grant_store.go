package ports

import "github.com/cervus-dev/cervus/domain/entities"

// GrantStore provides persisted filesystem grants, keyed like Config.Grants.
type GrantStore interface {
	// Load retrieves all grants.
	// Returns an empty map (not error) if no grants exist.
	Load() (map[string]*entities.GrantSet, error)

	// Path returns the path to the backing store (for user messaging).
	Path() string
}
