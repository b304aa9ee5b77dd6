package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/habeanf/dbschema/internal/adapter"
)

// Environment variables consulted by FromEnv.
const (
	EnvBackend = "DBSCHEMA_BACKEND"
	EnvDSN     = "DBSCHEMA_DSN"
)

// Config holds all application configuration.
type Config struct {
	Theme       string            `yaml:"theme"`
	LogQueries  bool              `yaml:"log_queries"`
	Audit       AuditConfig       `yaml:"audit"`
	Connections []SavedConnection `yaml:"connections"`
}

// AuditConfig controls the JSONL query audit log.
type AuditConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path,omitempty"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// SavedConnection holds parameters for a saved database connection.
type SavedConnection struct {
	Name     string            `yaml:"name"`
	Backend  string            `yaml:"backend"`
	DSN      string            `yaml:"dsn,omitempty"`
	Host     string            `yaml:"host,omitempty"`
	Port     int               `yaml:"port,omitempty"`
	User     string            `yaml:"user,omitempty"`
	Password string            `yaml:"password,omitempty"`
	Database string            `yaml:"database,omitempty"`
	File     string            `yaml:"file,omitempty"`
	SSLMode  string            `yaml:"sslmode,omitempty"`
	Options  map[string]string `yaml:"options,omitempty"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Theme: "default",
		Audit: AuditConfig{
			MaxSizeMB: 10,
		},
	}
}

// ConfigDir returns the dbschema configuration directory, typically
// ~/.config/dbschema/.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config dir: %w", err)
	}
	return filepath.Join(base, "dbschema"), nil
}

// DefaultPath returns ConfigDir()/config.yaml.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads a Config from the YAML file at path. If the file does not exist,
// it returns DefaultConfig without error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration from DefaultPath.
func LoadDefault() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Save writes the Config to the YAML file at path, creating any necessary
// parent directories.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SaveDefault writes the Config to DefaultPath.
func (c *Config) SaveDefault() error {
	path, err := DefaultPath()
	if err != nil {
		return err
	}
	return c.Save(path)
}

// Validate checks saved connections for unknown backends and duplicate
// names.
func (c *Config) Validate() error {
	known := adapter.Default.Names()
	seen := make(map[string]bool, len(c.Connections))
	var errs []error
	for i, sc := range c.Connections {
		if sc.Name == "" {
			errs = append(errs, fmt.Errorf("connection #%d: missing name", i+1))
			continue
		}
		if seen[sc.Name] {
			errs = append(errs, fmt.Errorf("connection %q: duplicate name", sc.Name))
		}
		seen[sc.Name] = true
		if !slices.Contains(known, sc.Backend) {
			errs = append(errs, fmt.Errorf("connection %q: unknown backend %q (known: %s)",
				sc.Name, sc.Backend, strings.Join(known, ", ")))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Find returns the saved connection called name.
func (c *Config) Find(name string) (*SavedConnection, bool) {
	for i := range c.Connections {
		if c.Connections[i].Name == name {
			return &c.Connections[i], true
		}
	}
	return nil, false
}

// Params converts the saved connection into backend connection
// parameters. Empty fields are omitted; Options are copied last and win.
func (sc *SavedConnection) Params() adapter.ConnParams {
	p := adapter.ConnParams{}
	set := func(k, v string) {
		if v != "" {
			p[k] = v
		}
	}
	set("dsn", sc.DSN)
	set("host", sc.Host)
	if sc.Port > 0 {
		p["port"] = strconv.Itoa(sc.Port)
	}
	set("user", sc.User)
	set("password", sc.Password)
	set("database", sc.Database)
	set("file", sc.File)
	set("sslmode", sc.SSLMode)
	for k, v := range sc.Options {
		p[k] = v
	}
	return p
}

func isFileBackend(name string) bool {
	name = strings.ToLower(name)
	return name == adapter.SQLite || name == adapter.DuckDB
}

// DisplayString returns a human-readable representation of the connection,
// formatted as "backend://host:port/database" for network backends or
// "backend://file" for file-based ones. Passwords are never shown.
func (sc *SavedConnection) DisplayString() string {
	if isFileBackend(sc.Backend) {
		file := sc.File
		if file == "" {
			file = sc.DSN
		}
		return fmt.Sprintf("%s://%s", sc.Backend, file)
	}

	host := sc.Host
	if host == "" {
		host = "localhost"
	}

	var location string
	if sc.Port > 0 {
		location = fmt.Sprintf("%s:%d", host, sc.Port)
	} else {
		location = host
	}
	if sc.User != "" {
		location = sc.User + "@" + location
	}

	if sc.Database != "" {
		return fmt.Sprintf("%s://%s/%s", sc.Backend, location, sc.Database)
	}
	return fmt.Sprintf("%s://%s", sc.Backend, location)
}

// LoadEnv loads dotenv files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// FromEnv builds an unnamed connection from DBSCHEMA_BACKEND and
// DBSCHEMA_DSN. ok is false when no DSN is set.
func FromEnv() (sc SavedConnection, ok bool) {
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		return SavedConnection{}, false
	}
	return SavedConnection{Backend: os.Getenv(EnvBackend), DSN: dsn}, true
}
