package sorting

import (
	"strings"
	"testing"
)

func TestNewField_DefaultsToAsc(t *testing.T) {
	f, err := NewField("title", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Direction() != Asc || f.Descending() {
		t.Errorf("Direction() = %q", f.Direction())
	}
}

func TestNewField_Invalid(t *testing.T) {
	if _, err := NewField("", Asc); err == nil {
		t.Error("expected error for empty property")
	}
	_, err := NewField("title", "sideways")
	if err == nil {
		t.Fatal("expected error for bad direction")
	}
	if !strings.Contains(err.Error(), "direction") {
		t.Errorf("error = %q", err)
	}
}

func TestNew_RejectsDuplicates(t *testing.T) {
	a, _ := NewField("title", Asc)
	b, _ := NewField("title", Desc)
	_, err := New(a, b)
	if err == nil {
		t.Fatal("expected duplicate error")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error = %q", err)
	}
}

func TestNew_KeepsOrder(t *testing.T) {
	a, _ := NewField("type", Asc)
	b, _ := NewField("size", Desc)
	s, err := New(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != 2 || s.IsEmpty() {
		t.Fatalf("Len() = %d", s.Len())
	}
	if s.Fields()[0].Property() != "type" || s.Fields()[1].Property() != "size" {
		t.Errorf("Fields() = %v", s.Fields())
	}
	if !s.Fields()[1].Descending() {
		t.Error("second key should be descending")
	}
}

func TestZeroValueIsEmpty(t *testing.T) {
	var s Sorting
	if !s.IsEmpty() || s.Len() != 0 {
		t.Error("zero Sorting should be empty")
	}
}

func TestMustNew_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustNew(Field{})
}
