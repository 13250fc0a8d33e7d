package compiler

import (
	"errors"
	"testing"
)

func TestStaticRegistryLookup(t *testing.T) {
	reg := NewStaticRegistry([]CompilerTrait{
		{Name: "cc", Language: "c", DisplayName: "Test C", Displayable: true},
		{Name: "cxx", Language: "c++", DisplayName: "Test C++", Displayable: false},
	})

	trait, err := reg.Lookup("cc")
	if err != nil {
		t.Fatalf("Lookup(cc): %v", err)
	}
	if trait.Language != "c" {
		t.Errorf("Language = %q, want c", trait.Language)
	}

	_, err = reg.Lookup("missing")
	var miss *ErrRegistryMiss
	if !errors.As(err, &miss) {
		t.Fatalf("Lookup(missing) err = %v, want *ErrRegistryMiss", err)
	}
}

func TestStaticRegistryDisplayable(t *testing.T) {
	reg := NewStaticRegistry([]CompilerTrait{
		{Name: "cc", Displayable: true},
		{Name: "cxx", Displayable: false},
		{Name: "rustc", Displayable: true},
	})

	got := reg.Displayable()
	if len(got) != 2 {
		t.Fatalf("len(Displayable()) = %d, want 2", len(got))
	}
	names := map[string]bool{}
	for _, tr := range got {
		names[tr.Name] = true
	}
	if !names["cc"] || !names["rustc"] {
		t.Errorf("Displayable() = %+v, missing expected entries", got)
	}
}
