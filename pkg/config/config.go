// Package config builds the immutable configuration value the rest of the
// process is wired from. There is no package-level mutable singleton: the
// teacher's infra-core has a `globalConfig`/`Get()` pair, but spec.md's
// design notes call that out as an anti-pattern to drop, so Load returns a
// *Config and every component takes it as a constructor argument.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved server configuration.
type Config struct {
	Port         int    `yaml:"port" json:"port"`
	DBsPath      string `yaml:"dbs_path" json:"dbs_path"`
	TokenSecret  string `yaml:"-" json:"-"`
	AdminEmail   string `yaml:"-" json:"-"`
	AdminPass    string `yaml:"-" json:"-"`
	ProxyEnabled bool   `yaml:"proxy_enabled" json:"proxy_enabled"`
	ProxyPort    int    `yaml:"proxy_port" json:"proxy_port"`
	AppEnabled   bool   `yaml:"app_enabled" json:"app_enabled"`

	Log LogConfig `yaml:"log" json:"log"`
}

// LogConfig mirrors the teacher's LogConfig shape (pkg/config/config.go in
// infra-core): ambient logging settings carried even though spec.md's
// Non-goals say nothing about observability layers.
type LogConfig struct {
	Level   string `yaml:"level" json:"level"`
	Console bool   `yaml:"console" json:"console"`
}

const (
	envPort        = "QUERY_SERVER_PORT"
	envDBsPath     = "QUERY_SERVER_DBS_PATH"
	envTokenSecret = "QUERY_SERVER_TOKEN_SECRET"
	envAdminEmail  = "QUERY_SERVER_ADMIN_EMAIL"
	envAdminPass   = "QUERY_SERVER_ADMIN_PASSWORD"
	envProxy       = "QUERY_SERVER_PROXY"
	envProxyPort   = "QUERY_SERVER_PROXY_PORT"
	envApp         = "QUERY_SERVER_APP"

	defaultPort      = 3000
	defaultDBsPath   = "/mnt/dbs"
	defaultProxyPort = 3001
)

// Load resolves the server configuration from the environment (spec.md §6),
// optionally layering in an ambient YAML file at configPath for settings
// spec.md leaves to operator taste (log level/target). A missing configPath
// is not an error; missing required env vars is fatal to the caller.
func Load(configPath string) (*Config, error) {
	cfg := &Config{
		Port:      defaultPort,
		DBsPath:   defaultDBsPath,
		ProxyPort: defaultProxyPort,
		Log:       LogConfig{Level: "info", Console: true},
	}

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	if v := os.Getenv(envPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", envPort, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv(envDBsPath); v != "" {
		cfg.DBsPath = v
	}
	if v := os.Getenv(envProxyPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", envProxyPort, err)
		}
		cfg.ProxyPort = port
	}
	if v := os.Getenv(envProxy); v != "" {
		cfg.ProxyEnabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv(envApp); v != "" {
		cfg.AppEnabled = strings.EqualFold(v, "true")
	}

	cfg.TokenSecret = os.Getenv(envTokenSecret)
	cfg.AdminEmail = os.Getenv(envAdminEmail)
	cfg.AdminPass = os.Getenv(envAdminPass)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.DBsPath == "" {
		return fmt.Errorf("dbs_path cannot be empty")
	}
	if cfg.TokenSecret == "" {
		return fmt.Errorf("%s is not set", envTokenSecret)
	}
	if cfg.AdminEmail == "" {
		return fmt.Errorf("%s is not set", envAdminEmail)
	}
	if cfg.AdminPass == "" {
		return fmt.Errorf("%s is not set", envAdminPass)
	}
	if cfg.ProxyEnabled && (cfg.ProxyPort <= 0 || cfg.ProxyPort > 65535) {
		return fmt.Errorf("invalid proxy_port: %d", cfg.ProxyPort)
	}
	return nil
}
