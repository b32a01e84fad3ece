package loaderr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Messages(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"table not found", New(TableNotFound, "dbo.Ghost", nil), `table "dbo.Ghost" does not exist`},
		{"conversion", &Error{Kind: ValueConversion, Column: "Id", Value: "abc", Type: "INT", Err: cause},
			`cannot convert column "Id" value "abc" to data type INT: boom`},
		{"unrecognized", &Error{Kind: UnrecognizedColumns, Table: "T", Columns: []string{"a", "b"}},
			`file contains columns (a, b) that are not in table "T"`},
		{"missing key", &Error{Kind: MissingKeyColumns, Table: "T", Columns: []string{"Id"}},
			`file is missing primary key columns (Id) of table "T"`},
		{"unknown", New(Unknown, "T", cause), `load table "T": boom`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetail(t *testing.T) {
	t.Parallel()

	e := &Error{Kind: RecordFailure, Table: "T", Command: "INSERT", Params: "Id\t\t'1'\n", Err: errors.New("dup")}
	want := "cannot process load record for table \"T\": dup\nCommand: INSERT\nParameters:\nName\t\tValue\nId\t\t'1'\n\nTableName: T"
	if got := e.Detail(); got != want {
		t.Fatalf("Detail() = %q, want %q", got, want)
	}
	if got := New(Unknown, "T", nil).Detail(); strings.Contains(got, "Command") {
		t.Fatalf("Detail() without command = %q", got)
	}
}

func TestClassification(t *testing.T) {
	t.Parallel()

	conv := &Error{Kind: ValueConversion, Column: "Id"}
	wrapped := fmt.Errorf("record 3: %w", conv)

	if KindOf(wrapped) != ValueConversion || !IsRecordLevel(wrapped) {
		t.Fatalf("wrapped conversion error not classified: %v", wrapped)
	}
	if KindOf(errors.New("plain")) != Unknown || IsRecordLevel(errors.New("plain")) {
		t.Fatalf("plain error misclassified")
	}
	if IsRecordLevel(New(TableNotFound, "T", nil)) {
		t.Fatalf("TableNotFound is not record level")
	}

	WithTable(wrapped, "dbo.Employee")
	if conv.Table != "dbo.Employee" {
		t.Fatalf("WithTable() did not stamp table: %q", conv.Table)
	}
	WithTable(wrapped, "other")
	if conv.Table != "dbo.Employee" {
		t.Fatalf("WithTable() overwrote table: %q", conv.Table)
	}

	cause := errors.New("driver")
	if !errors.Is(New(Unknown, "T", cause), cause) {
		t.Fatalf("Unwrap chain broken")
	}
}
