package ports

import "github.com/cervus-dev/cervus/domain/entities"

// Policy enforces capability grants against runtime requests.
type Policy interface {
	CheckFileSystem(req entities.FileSystemRequest, grants *entities.GrantSet) bool
}
