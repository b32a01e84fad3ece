package schema

import "testing"

func TestColumns_FirstOccurrenceWins(t *testing.T) {
	t.Parallel()

	cs := NewColumns()
	if !cs.Add(Column{Name: "HireDate", MaxLength: 10}) {
		t.Fatalf("Add() first = false, want true")
	}
	if cs.Add(Column{Name: "HIREDATE", MaxLength: 99}) {
		t.Fatalf("Add() folded duplicate = true, want false")
	}
	c, ok := cs.Lookup("hiredate")
	if !ok || c.MaxLength != 10 {
		t.Fatalf("Lookup(hiredate) = %+v, %v; want MaxLength 10", c, ok)
	}
}

func TestColumns_OrdinalsFollowInsertion(t *testing.T) {
	t.Parallel()

	cs := NewColumns()
	for _, n := range []string{"B", "A", "C"} {
		cs.Add(Column{Name: n})
	}
	for i, c := range cs.All() {
		if c.Ordinal != i {
			t.Fatalf("All()[%d].Ordinal = %d", i, c.Ordinal)
		}
	}
	if _, ok := (*Columns)(nil).Lookup("A"); ok {
		t.Fatalf("nil Columns Lookup should miss")
	}
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	if KindTime.String() != "time" || Kind(200).String() != "unknown" {
		t.Fatalf("unexpected kind names")
	}
	if !KindString.Textual() || KindInt32.Textual() {
		t.Fatalf("Textual() mismatch")
	}
}
