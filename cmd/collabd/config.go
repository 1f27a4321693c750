package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML configuration for collabd. Every field has a
// working default; flags override whatever the file sets.
type fileConfig struct {
	Listen string `yaml:"listen"`
	WSPath string `yaml:"ws_path"`

	Log struct {
		Level  string `yaml:"level"`  // debug, info, warn, error
		Format string `yaml:"format"` // text, json
	} `yaml:"log"`

	Auth struct {
		Mode     string            `yaml:"mode"` // jwt, static
		Secret   string            `yaml:"secret"`
		Issuer   string            `yaml:"issuer"`
		Audience string            `yaml:"audience"`
		Tokens   map[string]string `yaml:"tokens"` // static mode only
	} `yaml:"auth"`

	Store struct {
		Backend string `yaml:"backend"` // memory, redis, s3

		Redis struct {
			Addr      string `yaml:"addr"`
			Password  string `yaml:"password"`
			DB        int    `yaml:"db"`
			KeyPrefix string `yaml:"key_prefix"`
		} `yaml:"redis"`

		S3 struct {
			Bucket string `yaml:"bucket"`
			Prefix string `yaml:"prefix"`
			Region string `yaml:"region"`
		} `yaml:"s3"`
	} `yaml:"store"`

	Limits struct {
		MaxConnections   int           `yaml:"max_connections"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
	} `yaml:"limits"`
}

func defaultFileConfig() *fileConfig {
	cfg := &fileConfig{
		Listen: ":8090",
		WSPath: "/ws",
	}
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Auth.Mode = "jwt"
	cfg.Store.Backend = "memory"
	cfg.Store.Redis.Addr = "localhost:6379"
	return cfg
}

// loadConfig reads the YAML file on top of the defaults. An empty path
// returns the defaults untouched.
func loadConfig(path string) (*fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *fileConfig) validate() error {
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	switch c.Auth.Mode {
	case "jwt":
		if c.Auth.Secret == "" {
			return fmt.Errorf("auth.secret is required in jwt mode")
		}
	case "static":
		if len(c.Auth.Tokens) == 0 {
			return fmt.Errorf("auth.tokens is required in static mode")
		}
	default:
		return fmt.Errorf("auth.mode must be jwt or static, got %q", c.Auth.Mode)
	}

	switch c.Store.Backend {
	case "memory", "redis":
	case "s3":
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("store.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("store.backend must be memory, redis, or s3, got %q", c.Store.Backend)
	}

	return nil
}
