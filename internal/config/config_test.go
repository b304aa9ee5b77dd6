package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/habeanf/dbschema/internal/adapter"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Theme != "default" {
		t.Errorf("Theme = %q, want %q", cfg.Theme, "default")
	}
	if cfg.LogQueries {
		t.Error("LogQueries = true, want false")
	}
	if cfg.Audit.Enabled {
		t.Error("Audit.Enabled = true, want false")
	}
	if cfg.Audit.MaxSizeMB != 10 {
		t.Errorf("Audit.MaxSizeMB = %d, want %d", cfg.Audit.MaxSizeMB, 10)
	}
	if len(cfg.Connections) != 0 {
		t.Errorf("Connections length = %d, want 0", len(cfg.Connections))
	}
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `theme: monokai
log_queries: true
audit:
  enabled: true
  path: /tmp/audit.jsonl
  max_size_mb: 5
connections:
  - name: mydb
    backend: postgresql
    host: db.example.com
    port: 5432
    user: admin
    password: secret
    database: production
    sslmode: disable
  - name: localfile
    backend: sqlite3
    file: /tmp/test.db
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Theme != "monokai" {
		t.Errorf("Theme = %q, want %q", cfg.Theme, "monokai")
	}
	if !cfg.LogQueries {
		t.Error("LogQueries = false, want true")
	}
	want := AuditConfig{Enabled: true, Path: "/tmp/audit.jsonl", MaxSizeMB: 5}
	if cfg.Audit != want {
		t.Errorf("Audit = %+v, want %+v", cfg.Audit, want)
	}
	if len(cfg.Connections) != 2 {
		t.Fatalf("Connections length = %d, want 2", len(cfg.Connections))
	}

	c := cfg.Connections[0]
	if c.Name != "mydb" || c.Backend != "postgresql" || c.Host != "db.example.com" ||
		c.Port != 5432 || c.User != "admin" || c.Password != "secret" || c.Database != "production" {
		t.Errorf("Connection[0] fields mismatch: %+v", c)
	}

	c2 := cfg.Connections[1]
	if c2.Name != "localfile" || c2.Backend != "sqlite3" || c2.File != "/tmp/test.db" {
		t.Errorf("Connection[1] fields mismatch: %+v", c2)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for missing file", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("theme: [unclosed"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}
}

func TestLoadInvalidConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `connections:
  - name: a
    backend: oracle
  - name: a
    backend: mysql
  - backend: sqlite3
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() error = nil, want validation error")
	}
	for _, want := range []string{`unknown backend "oracle"`, "duplicate name", "missing name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Load() error = %q, want it to mention %q", err, want)
		}
	}
}

func TestLoadPartialYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_queries: true\n"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.LogQueries {
		t.Error("LogQueries = false, want true")
	}
	if cfg.Theme != "default" || cfg.Audit.MaxSizeMB != 10 {
		t.Errorf("defaults not preserved: %+v", cfg)
	}
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Connections = []SavedConnection{{
		Name: "shop", Backend: "mysql", Host: "localhost", Port: 3306, Database: "shop",
		Options: map[string]string{"socket": "/tmp/mysql.sock"},
	}}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Errorf("roundtrip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}

func TestSaveDefaultAndLoadDefault(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpHome, ".config"))

	cfg := &Config{Theme: "solarized", LogQueries: true}
	if err := cfg.SaveDefault(); err != nil {
		t.Fatalf("SaveDefault() error = %v", err)
	}

	loaded, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if loaded.Theme != cfg.Theme || loaded.LogQueries != cfg.LogQueries {
		t.Errorf("LoadDefault() = %+v, want %+v", loaded, cfg)
	}
}

func TestFind(t *testing.T) {
	cfg := &Config{Connections: []SavedConnection{
		{Name: "a", Backend: "sqlite3"},
		{Name: "b", Backend: "mysql"},
	}}

	sc, ok := cfg.Find("b")
	if !ok || sc.Backend != "mysql" {
		t.Errorf("Find(b) = %+v, %v", sc, ok)
	}
	sc.Host = "changed"
	if cfg.Connections[1].Host != "changed" {
		t.Error("Find() should return a pointer into the config")
	}
	if _, ok := cfg.Find("zzz"); ok {
		t.Error("Find(zzz) ok = true, want false")
	}
}

func TestParams(t *testing.T) {
	tests := []struct {
		name string
		conn SavedConnection
		want adapter.ConnParams
	}{
		{
			name: "network fields",
			conn: SavedConnection{
				Backend: "postgresql", User: "admin", Password: "secret",
				Host: "db.example.com", Port: 5432, Database: "mydb", SSLMode: "require",
			},
			want: adapter.ConnParams{
				"user": "admin", "password": "secret", "host": "db.example.com",
				"port": "5432", "database": "mydb", "sslmode": "require",
			},
		},
		{
			name: "file backend",
			conn: SavedConnection{Backend: "sqlite3", File: "/tmp/test.db"},
			want: adapter.ConnParams{"file": "/tmp/test.db"},
		},
		{
			name: "dsn and options",
			conn: SavedConnection{
				Backend: "mysql", DSN: "root@tcp(localhost)/x",
				Options: map[string]string{"host": "override"},
			},
			want: adapter.ConnParams{"dsn": "root@tcp(localhost)/x", "host": "override"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.conn.Params(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Params() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDisplayString(t *testing.T) {
	tests := []struct {
		name string
		conn SavedConnection
		want string
	}{
		{
			name: "postgres full",
			conn: SavedConnection{Backend: "postgresql", User: "admin", Password: "secret", Host: "db", Port: 5432, Database: "mydb"},
			want: "postgresql://admin@db:5432/mydb",
		},
		{
			name: "mysql defaults",
			conn: SavedConnection{Backend: "mysql"},
			want: "mysql://localhost",
		},
		{
			name: "sqlite file",
			conn: SavedConnection{Backend: "sqlite3", File: "/tmp/test.db"},
			want: "sqlite3:///tmp/test.db",
		},
		{
			name: "duckdb dsn fallback",
			conn: SavedConnection{Backend: "duckdb", DSN: "data.duckdb"},
			want: "duckdb://data.duckdb",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.conn.DisplayString()
			if got != tt.want {
				t.Errorf("DisplayString() = %q, want %q", got, tt.want)
			}
			if strings.Contains(got, "secret") {
				t.Errorf("DisplayString() leaks the password: %q", got)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if filepath.Base(dir) != "dbschema" {
		t.Errorf("ConfigDir() base = %q, want %q", filepath.Base(dir), "dbschema")
	}
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := EnvBackend + "=sqlite3\n" + EnvDSN + "=/tmp/env.db\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv(EnvBackend, "")
	t.Setenv(EnvDSN, "")
	os.Unsetenv(EnvBackend)
	os.Unsetenv(EnvDSN)

	if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env"), path); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	sc, ok := FromEnv()
	if !ok {
		t.Fatal("FromEnv() ok = false after loading .env")
	}
	if sc.Backend != "sqlite3" || sc.DSN != "/tmp/env.db" {
		t.Errorf("FromEnv() = %+v", sc)
	}
}

func TestLoadEnv_DoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(EnvDSN+"=from-file\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv(EnvDSN, "from-shell")

	if err := LoadEnv(path); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := os.Getenv(EnvDSN); got != "from-shell" {
		t.Errorf("%s = %q, want %q", EnvDSN, got, "from-shell")
	}
}
