package ports

import "github.com/cervus-dev/cervus/domain/entities"

// ConfigParser parses raw configuration bytes on top of a base config.
type ConfigParser interface {
	Parse(data []byte, base entities.Config) (*entities.Config, error)
}
