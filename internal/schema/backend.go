package schema

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Backend populates and refreshes a Database from a concrete catalog.
type Backend interface {
	// Structure declares which kinds the backend nests under which.
	Structure() Structure
	// Initialize performs the first bulk load. It marks the kinds it fully
	// populated as clean itself.
	Initialize(ctx context.Context, db *Database) error
	// RefreshKinds fetches the given kinds and merges them into the tree.
	RefreshKinds(ctx context.Context, db *Database, kinds KindSet) error
	// ServerInfo returns a human readable server version.
	ServerInfo(ctx context.Context, db *Database) (string, error)
	// DefaultNamespace returns the current namespace, or nil for engines
	// without namespaces.
	DefaultNamespace(ctx context.Context, db *Database) (*Namespace, error)
}

// Conn runs catalog queries.
type Conn interface {
	Query(ctx context.Context, query string, args ...any) ([]Record, error)
	Close() error
}

// Connector opens a Conn on first use.
type Connector func(ctx context.Context) (Conn, error)

// QueryEvent describes one query issued through Database.RunQuery.
type QueryEvent struct {
	Session  string
	Query    string
	Args     []any
	Duration time.Duration
	Rows     int
	Err      error
}

// QueryHook observes queries issued through Database.RunQuery.
type QueryHook func(QueryEvent)

// Record is one result row keyed by column name.
type Record map[string]any

// IsNull reports whether the column is missing or NULL.
func (r Record) IsNull(key string) bool { return r[key] == nil }

// String returns the column as a string; NULL yields "".
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Int64 returns the column as an integer; NULL and non-numeric values yield 0.
func (r Record) Int64(key string) int64 {
	switch v := r[key].(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string, []byte:
		n, _ := strconv.ParseInt(strings.TrimSpace(r.String(key)), 10, 64)
		return n
	}
	return 0
}

// Bool returns the column as a boolean. Integers are true when non-zero and
// strings when they read "t", "true", "yes", "y" or "1".
func (r Record) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string, []byte:
		switch r.String(key) {
		case "t", "true", "TRUE", "yes", "YES", "y", "Y", "1":
			return true
		}
		return false
	}
	return r.Int64(key) != 0
}

// Strings returns an array column. Comma separated text (as produced by
// GROUP_CONCAT) is split.
func (r Record) Strings(key string) []string {
	switch v := r[key].(type) {
	case nil:
		return nil
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	default:
		s := r.String(key)
		if s == "" {
			return nil
		}
		return strings.Split(s, ",")
	}
}

// OID returns the column as an OID.
func (r Record) OID(key string) OID { return OIDOf(r[key]) }
