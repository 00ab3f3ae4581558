package backend

import (
	"errors"
	"time"

	"github.com/openmined/vcscompare/internal/compare"
)

// Config is the configuration of backend connections
type Config struct {
	// Path is any path inside the working copy
	Path        string
	AccessToken string
	// APILevel overrides the level reported by the server when set
	APILevel   compare.APILevel
	Timeout    time.Duration
	RetryCount int
	// CacheSize bounds the per-connection lookup cache
	CacheSize int
}

const DefaultCacheSize = 256

func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("working copy path is required")
	}
	if c.APILevel < 0 {
		return errors.New("api level must not be negative")
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	return nil
}
