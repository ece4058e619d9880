package source

import (
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
)

// Config holds source client settings.
type Config struct {
	SpaceID     string
	Environment string

	// DeliveryToken reads content; ManagementToken issues asset keys.
	DeliveryToken   string
	ManagementToken string

	DeliveryURL   string
	ManagementURL string

	PageSize int
	// RateDelay is the minimum spacing between requests
	RateDelay time.Duration

	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration

	// CacheTTL bounds how long listings are reused; zero keeps them for
	// the life of the client.
	CacheTTL time.Duration

	UserAgent string
	Transport http.RoundTripper

	// Observe, when set, is called after every HTTP exchange.
	Observe func(*http.Request, *http.Response, error)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Environment:   "master",
		DeliveryURL:   "https://cdn.contentful.com",
		ManagementURL: "https://api.contentful.com",
		PageSize:      100,
		RateDelay:     100 * time.Millisecond,
		Timeout:       60 * time.Second,
		MaxAttempts:   3,
		RetryDelay:    2 * time.Second,
		CacheTTL:      cache.NoExpiration,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Environment == "" {
		c.Environment = def.Environment
	}
	if c.DeliveryURL == "" {
		c.DeliveryURL = def.DeliveryURL
	}
	if c.ManagementURL == "" {
		c.ManagementURL = def.ManagementURL
	}
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = def.CacheTTL
	}
}
