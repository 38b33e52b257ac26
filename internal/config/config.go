package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"billbuddy/internal/core"
	applog "billbuddy/internal/log"
)

// Environment keys, all prefixed with BILLBUDDY_.
const (
	envPrefix = "BILLBUDDY"

	KeyPort            = "PORT"
	KeyDBPath          = "DB_PATH"
	KeyLogLevel        = "LOG_LEVEL"
	KeyDefaultCurrency = "DEFAULT_CURRENCY"
	KeyShutdownTimeout = "SHUTDOWN_TIMEOUT"
)

type Config struct {
	// HTTP shell
	Port string

	// Database file, created on first run.
	DBPath string

	LogLevel        string
	DefaultCurrency core.Currency
	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment, after applying a .env file
// in the working directory if one exists.
func Load() *Config {
	_ = godotenv.Load()
	return LoadFrom(newViper())
}

// LoadFrom builds a Config from an already prepared viper instance.
func LoadFrom(v *viper.Viper) *Config {
	return &Config{
		Port:            v.GetString(KeyPort),
		DBPath:          v.GetString(KeyDBPath),
		LogLevel:        v.GetString(KeyLogLevel),
		DefaultCurrency: core.Currency(strings.ToUpper(strings.TrimSpace(v.GetString(KeyDefaultCurrency)))),
		ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault(KeyPort, "8081")
	v.SetDefault(KeyDBPath, "./expenses.db")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyDefaultCurrency, string(core.DefaultCurrency))
	v.SetDefault(KeyShutdownTimeout, "10s")
	return v
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.DBPath == "" {
		errors = append(errors, "database path cannot be empty")
	} else if info, err := os.Stat(c.DBPath); err == nil && info.IsDir() {
		errors = append(errors, fmt.Sprintf("database path '%s' is a directory", c.DBPath))
	} else if dir := filepath.Dir(c.DBPath); dir != "." && dir != "" {
		if info, err := os.Stat(dir); err == nil && !info.IsDir() {
			errors = append(errors, fmt.Sprintf("database directory '%s' is not a directory", dir))
		}
	}

	if _, err := applog.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if !c.DefaultCurrency.Supported() {
		errors = append(errors, fmt.Sprintf("unsupported default currency '%s': must be one of %v", c.DefaultCurrency, core.SupportedCurrencies()))
	}

	if c.ShutdownTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1 second", c.ShutdownTimeout))
	} else if c.ShutdownTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at most 5 minutes", c.ShutdownTimeout))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Addr is the listen address of the HTTP shell.
func (c *Config) Addr() string {
	return ":" + c.Port
}
