package reposdk

import (
	"net/url"
	"time"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultRetryCount = 3
)

// Config is the configuration for the RepoSDK
type Config struct {
	BaseURL     string        // BaseURL is required
	AccessToken string        // AccessToken is optional
	Timeout     time.Duration // Timeout defaults to DefaultTimeout
	RetryCount  int           // RetryCount defaults to DefaultRetryCount, negative disables retries
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoServerURL
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidServerURL
	}

	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryCount == 0 {
		c.RetryCount = DefaultRetryCount
	}
	if c.RetryCount < 0 {
		c.RetryCount = 0
	}
	return nil
}
