package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// Config is the client configuration merged from flags, VCSCOMPARE_* env
// vars and the config file
type Config struct {
	Path     string `mapstructure:"-"`
	Token    string `mapstructure:"token"`
	APILevel int    `mapstructure:"api_level"`
	LogFile  string `mapstructure:"log_file"`
	LogLevel string `mapstructure:"log_level"`
	Format   string `mapstructure:"format"`
}

func (c *Config) Validate() error {
	switch c.Format {
	case "":
		c.Format = formatText
	case formatText, formatJSON, formatYAML:
	default:
		return fmt.Errorf("unsupported format %q", c.Format)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.APILevel < 0 {
		return errors.New("api level must not be negative")
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	configPath := resolveConfigPath(cmd)
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", configPath, err)
		}
	}

	// Bind flags to viper
	for key, flag := range map[string]string{
		"token":     "token",
		"api_level": "api-level",
		"log_file":  "log-file",
		"log_level": "log-level",
		"format":    "format",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil {
			v.BindPFlag(key, f)
		}
	}

	// Set up environment variables
	v.SetEnvPrefix("VCSCOMPARE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Path:     configPath,
		Token:    v.GetString("token"),
		APILevel: v.GetInt("api_level"),
		LogFile:  v.GetString("log_file"),
		LogLevel: v.GetString("log_level"),
		Format:   v.GetString("format"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
