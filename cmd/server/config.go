package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/vcscompare/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _       = os.UserHomeDir()
	defaultDBPath = filepath.Join(home, ".vcscompare", "server", "repo.db")
)

// loadConfig merges defaults, the config file, VCSCOMPARE_* env vars and
// flags into a server config. Nested keys map to env vars by replacing dots,
// so http.addr is read from VCSCOMPARE_HTTP_ADDR.
func loadConfig(cmd *cobra.Command) (*server.Config, error) {
	v := viper.New()

	// every key needs a default for AutomaticEnv to apply on Unmarshal
	v.SetDefault("db_path", defaultDBPath)
	v.SetDefault("api_level", server.DefaultAPILevel)
	v.SetDefault("http.addr", server.DefaultAddr)
	v.SetDefault("http.cert_file", "")
	v.SetDefault("http.key_file", "")
	v.SetDefault("http.rate_limit", server.DefaultRateLimit)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token_issuer", "")
	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.token_expiry", "0s")

	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Value.String() != "" {
		v.SetConfigFile(cfgFlag.Value.String())
	} else {
		v.SetConfigName("server")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".vcscompare"))
	}
	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	// Bind flags to viper
	for key, flag := range map[string]string{
		"db_path":        "db",
		"api_level":      "api-level",
		"http.addr":      "bind",
		"http.cert_file": "cert",
		"http.key_file":  "key",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil {
			v.BindPFlag(key, f)
		}
	}

	// Set up environment variables
	v.SetEnvPrefix("VCSCOMPARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg server.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	return &cfg, nil
}
