package config

import (
	"context"
)

// Loader is the interface for a format-specific pipeline loader.
type Loader interface {
	// Load reads pipeline definitions from the given paths, applies variable
	// overrides and translates everything into the format-agnostic model.
	Load(ctx context.Context, vars map[string]string, paths ...string) (*Model, error)
}
