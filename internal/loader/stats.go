package loader

import (
	"fmt"

	"dataloader/internal/loaderr"
)

// Statistics counts the outcome of one file. Total counts every data record
// read, Created and Updated what the database reported, Errored the records
// that failed.
type Statistics struct {
	Total   int64
	Created int64
	Updated int64
	Errored int64
}

func (s Statistics) String() string {
	return fmt.Sprintf("Statistics: %d Inserted, %d Updated, %d Errored, %d Total",
		s.Created, s.Updated, s.Errored, s.Total)
}

// Add returns the sum of s and o.
func (s Statistics) Add(o Statistics) Statistics {
	return Statistics{
		Total:   s.Total + o.Total,
		Created: s.Created + o.Created,
		Updated: s.Updated + o.Updated,
		Errored: s.Errored + o.Errored,
	}
}

// ExitCode is the process status of a run.
type ExitCode int

const (
	ExitSuccess       ExitCode = 0
	ExitConfig        ExitCode = -1
	ExitUnrecognized  ExitCode = -2
	ExitFailure       ExitCode = -3
	ExitTableNotFound ExitCode = -4
)

// Worst returns the more severe of a and b. Codes grow more severe as they
// grow more negative.
func Worst(a, b ExitCode) ExitCode {
	if b < a {
		return b
	}
	return a
}

// CodeFor maps a file-level error to its exit code. A nil error is success.
func CodeFor(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	switch loaderr.KindOf(err) {
	case loaderr.TableNotFound:
		return ExitTableNotFound
	case loaderr.UnrecognizedColumns, loaderr.MissingKeyColumns:
		return ExitUnrecognized
	default:
		return ExitFailure
	}
}
