package main

import (
	"os"

	// Register database backends
	_ "github.com/habeanf/dbschema/internal/adapter/duckdb"
	_ "github.com/habeanf/dbschema/internal/adapter/mysql"
	_ "github.com/habeanf/dbschema/internal/adapter/postgres"
	_ "github.com/habeanf/dbschema/internal/adapter/sqlite"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
