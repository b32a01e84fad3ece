// Package datasource describes where load input comes from.
package datasource

import (
	"context"
	"io"
)

// Source opens one input stream.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Job is one file to load into one table.
type Job struct {
	// Group is the subdirectory the file was found in.
	Group string
	// Name is the file name as displayed in logs.
	Name string
	// Table is the target table, possibly schema-qualified ("dbo.Employee").
	Table string
	// Safe permits updating rows whose key already exists.
	Safe   bool
	Source Source
}
