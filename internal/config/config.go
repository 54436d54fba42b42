// Package config loads the document store coordinates the client talks to.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configFileName        = "config.yaml"
	DefaultRequestTimeout = 15 * time.Second
)

// Config names the store endpoint, tenant and the collections the todo
// list lives in. The first five fields are required.
type Config struct {
	Endpoint          string        `yaml:"endpoint" validate:"required,url"`
	Project           string        `yaml:"project" validate:"required"`
	DatabaseID        string        `yaml:"databaseId" validate:"required"`
	TodosCollectionID string        `yaml:"todosCollectionId" validate:"required"`
	StepsCollectionID string        `yaml:"stepsCollectionId" validate:"required"`
	RequestTimeout    time.Duration `yaml:"requestTimeout,omitempty"`
	LogLevel          string        `yaml:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error"`
}

var validate = validator.New()

// envKeys maps TADA_* variables onto config fields.
var envKeys = map[string]func(c *Config, v string) error{
	"TADA_ENDPOINT":            func(c *Config, v string) error { c.Endpoint = v; return nil },
	"TADA_PROJECT":             func(c *Config, v string) error { c.Project = v; return nil },
	"TADA_DATABASE_ID":         func(c *Config, v string) error { c.DatabaseID = v; return nil },
	"TADA_TODOS_COLLECTION_ID": func(c *Config, v string) error { c.TodosCollectionID = v; return nil },
	"TADA_STEPS_COLLECTION_ID": func(c *Config, v string) error { c.StepsCollectionID = v; return nil },
	"TADA_LOG_LEVEL":           func(c *Config, v string) error { c.LogLevel = strings.ToLower(v); return nil },
	"TADA_REQUEST_TIMEOUT": func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TADA_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = d
		return nil
	},
}

// Dir is ~/.tada, shared with the credentials file and the log.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, ".tada"), nil
}

// DefaultPath is ~/.tada/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads the yaml file at path, then overlays envFile (a dotenv file)
// and finally the process environment. Missing files are skipped. The
// result is not validated so callers can apply flags first.
func Load(path, envFile string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			if err := cfg.overlay(func(k string) string { return vars[k] }); err != nil {
				return nil, fmt.Errorf("%s: %w", envFile, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read env file: %w", err)
		}
	}

	if err := cfg.overlay(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlay(lookup func(string) string) error {
	for key, set := range envKeys {
		v := strings.TrimSpace(lookup(key))
		if v == "" {
			continue
		}
		if err := set(c, v); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			missing := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				missing = append(missing, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("config: invalid fields: %s", strings.Join(missing, ", "))
		}
		return fmt.Errorf("config: %w", err)
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

// Save writes the config as yaml, creating the directory if needed.
func Save(path string, c *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// CollectionChannel is the realtime channel name for document changes in
// one collection.
func (c *Config) CollectionChannel(collectionID string) string {
	return fmt.Sprintf("databases.%s.collections.%s.documents", c.DatabaseID, collectionID)
}

// Channels lists the todos and steps channels.
func (c *Config) Channels() []string {
	return []string{
		c.CollectionChannel(c.TodosCollectionID),
		c.CollectionChannel(c.StepsCollectionID),
	}
}
