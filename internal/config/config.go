// Package config provides configuration management for the Kura server.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	Address string `mapstructure:"address"`
}

// StorageConfig holds storage backend settings. The metadata database
// lives inside DataDir.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    9100,
			Address: "0.0.0.0",
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Auth: AuthConfig{
			AccessKey: "kuraadmin",
			SecretKey: "kuraadmin",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from environment variables and an optional
// config file. Environment variables use the KURA_ prefix, e.g.
// KURA_SERVER_PORT.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := newViper(cfg)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/kura")
	v.AddConfigPath("$HOME/.kura")

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := newViper(cfg)
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newViper(cfg *Config) *viper.Viper {
	v := viper.New()

	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.address", cfg.Server.Address)
	v.SetDefault("storage.data_dir", cfg.Storage.DataDir)
	v.SetDefault("auth.access_key", cfg.Auth.AccessKey)
	v.SetDefault("auth.secret_key", cfg.Auth.SecretKey)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetEnvPrefix("KURA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}
