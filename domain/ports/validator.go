package ports

import "github.com/cervus-dev/cervus/domain/entities"

// ConfigValidator validates a host configuration.
type ConfigValidator interface {
	Validate(cfg *entities.Config) (*entities.ValidationResult, error)
}
