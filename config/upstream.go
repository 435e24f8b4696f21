package config

import "time"

// UpstreamConfig contains marketplace API configuration.
type UpstreamConfig struct {
	// BaseURL is the marketplace API root all portal traffic is forwarded to.
	BaseURL string `env:"UPSTREAM_BASE_URL" envDefault:"https://api.propadda.in"`

	// Timeout bounds each upstream request.
	Timeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"15s"`
}

// Sanitize applies guardrails to upstream configuration values.
func (u *UpstreamConfig) Sanitize() {
	if u.Timeout <= 0 {
		u.Timeout = 15 * time.Second
	}
}
