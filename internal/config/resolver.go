package config

import "time"

// Resolver points at the external AI resolution engine.
type Resolver struct {
	URL     string        `env:"RESOLVER_URL,notEmpty"`
	APIKey  string        `env:"RESOLVER_API_KEY"`
	Timeout time.Duration `env:"RESOLVER_TIMEOUT" envDefault:"2m"`
}
