package pokedex

import "testing"

func TestLookup(t *testing.T) {
	t.Parallel()
	tests := []struct {
		number int
		name   string
		ok     bool
	}{
		{1, "Bulbasaur", true},
		{16, "Pidgey", true},
		{151, "Mew", true},
		{0, "#0", false},
		{152, "#152", false},
	}
	for _, tt := range tests {
		e, ok := Lookup(tt.number)
		if ok != tt.ok {
			t.Fatalf("Lookup(%d) ok = %v, want %v", tt.number, ok, tt.ok)
		}
		if ok && e.Number != tt.number {
			t.Fatalf("Lookup(%d).Number = %d", tt.number, e.Number)
		}
		if got := Name(tt.number); got != tt.name {
			t.Fatalf("Name(%d) = %q, want %q", tt.number, got, tt.name)
		}
	}
}

func TestEntriesAreNumberedInOrder(t *testing.T) {
	t.Parallel()
	for i, e := range entries {
		if e.Number != i+1 {
			t.Fatalf("entry %d has number %d", i, e.Number)
		}
		if len(e.Types) == 0 {
			t.Fatalf("entry %d (%s) has no types", e.Number, e.Name)
		}
	}
}

func TestEveryTypeHasAColor(t *testing.T) {
	t.Parallel()
	for _, e := range entries {
		for _, typ := range e.Types {
			if TypeColor(typ) == "" {
				t.Fatalf("%s: type %q has no color", e.Name, typ)
			}
		}
	}
	if TypeColor("shadow") != "" {
		t.Fatal("unknown type should have no color")
	}
}
