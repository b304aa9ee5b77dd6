//go:build !duckdb

package duckdb

import (
	"errors"

	"github.com/habeanf/dbschema/internal/adapter"
)

var errDisabled = errors.New("DuckDB support not compiled in. Rebuild with -tags duckdb")

func init() {
	adapter.Register(adapter.DuckDB, func() (adapter.Backend, error) {
		return nil, errDisabled
	})
}
