package server

import (
	"errors"
	"fmt"

	"github.com/openmined/vcscompare/internal/server/auth"
)

const (
	DefaultAddr      = "127.0.0.1:8080"
	DefaultRateLimit = "100-S"
	DefaultAPILevel  = 2
)

type Config struct {
	HTTP     HTTPConfig  `mapstructure:"http"`
	Auth     auth.Config `mapstructure:"auth"`
	DBPath   string      `mapstructure:"db_path"`
	APILevel int         `mapstructure:"api_level"`
}

type HTTPConfig struct {
	Addr      string `mapstructure:"addr"`
	CertFile  string `mapstructure:"cert_file"`
	KeyFile   string `mapstructure:"key_file"`
	RateLimit string `mapstructure:"rate_limit"`
}

func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("`db_path` is required")
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultAddr
	}
	if (c.HTTP.CertFile == "") != (c.HTTP.KeyFile == "") {
		return errors.New("`cert_file` and `key_file` must be set together")
	}
	if c.APILevel == 0 {
		c.APILevel = DefaultAPILevel
	}
	if c.APILevel < 1 || c.APILevel > DefaultAPILevel {
		return fmt.Errorf("`api_level` must be between 1 and %d", DefaultAPILevel)
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return nil
}
