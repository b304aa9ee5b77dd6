package schema

import (
	"errors"
	"fmt"
)

// ErrDBSchema is the root of the package's error family. Every error
// produced by the catalog core or the adapters matches it with errors.Is.
var ErrDBSchema = errors.New("dbschema")

var (
	ErrDetached           = fmt.Errorf("%w: entity is not attached to a database", ErrDBSchema)
	ErrCycle              = fmt.Errorf("%w: child would create a cycle", ErrDBSchema)
	ErrConnectionConflict = fmt.Errorf("%w: either a connection or connection parameters may be given, not both", ErrDBSchema)
	ErrNoConnection       = fmt.Errorf("%w: no connection configured", ErrDBSchema)
	ErrConnect            = fmt.Errorf("%w: could not connect to database", ErrDBSchema)
)

// OperationError reports a failed catalog operation. Err is the error
// returned by the underlying driver.
type OperationError struct {
	Op    string
	Query string
	Err   error
}

func (e *OperationError) Error() string {
	if e.Query != "" {
		return fmt.Sprintf("dbschema: %s failed: %v [query: %s]", e.Op, e.Err, e.Query)
	}
	return fmt.Sprintf("dbschema: %s failed: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// Is makes every OperationError part of the ErrDBSchema family.
func (e *OperationError) Is(target error) bool { return target == ErrDBSchema }
