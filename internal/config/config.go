// Package config holds tool settings, layered as defaults, then the
// config file (~/.apm/config.yaml), then APM_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	homeDirName = ".apm"
	envPrefix   = "APM"
	fileName    = "config"
	fileType    = "yaml"
)

// Setting keys.
const (
	KeyDefaultHost  = "default_host"
	KeyConcurrency  = "concurrency"
	KeyFetchTimeout = "fetch_timeout"
	KeyStoreDir     = "store_dir"
)

// Dir returns the path to the apm home directory (~/.apm).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", homeDirName)
	}
	return filepath.Join(home, homeDirName)
}

// FilePath returns the full path to the config file (~/.apm/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the home directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load initializes Viper to read from the config file and environment.
// A missing config file is not an error; defaults and APM_* variables
// still apply.
func Load() {
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault(KeyDefaultHost, "github.com")
	viper.SetDefault(KeyConcurrency, 4)
	viper.SetDefault(KeyFetchTimeout, "30s")
	viper.SetDefault(KeyStoreDir, filepath.Join(Dir(), "store"))

	_ = viper.ReadInConfig()
}

// DefaultHost returns the host assumed for owner/repo references.
func DefaultHost() string { return viper.GetString(KeyDefaultHost) }

// Concurrency returns the fetch pool size.
func Concurrency() int { return viper.GetInt(KeyConcurrency) }

// FetchTimeout returns the per-fetch timeout.
func FetchTimeout() time.Duration {
	d := viper.GetDuration(KeyFetchTimeout)
	if d <= 0 {
		d = 30 * time.Second
	}
	return d
}

// StoreDir returns the local package store root.
func StoreDir() string { return viper.GetString(KeyStoreDir) }

// Get returns a config value by key, empty when unset.
func Get(key string) string {
	return viper.GetString(key)
}

// Set writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)

	configFile := FilePath()
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
