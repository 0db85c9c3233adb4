package identity

import (
	"slices"
	"testing"
)

func TestNewDrawsFromEnumerations(t *testing.T) {
	for range 32 {
		id := New()
		if id.ID == "" {
			t.Fatal("empty identity ID")
		}
		if !slices.Contains(displayNames, id.Name) {
			t.Fatalf("name %q not in enumeration", id.Name)
		}
		if !slices.Contains(palette, id.Color) {
			t.Fatalf("color %q not in palette", id.Color)
		}
	}
}

func TestNewGeneratesDistinctIDs(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := New()
		if seen[id.ID] {
			t.Fatalf("duplicate identity ID %q", id.ID)
		}
		seen[id.ID] = true
	}
}

func TestInitiatesToIsAntisymmetric(t *testing.T) {
	// For any pair of distinct identities exactly one side initiates,
	// regardless of which side evaluates the rule first.
	for range 50 {
		a := New()
		b := New()
		if a.ID == b.ID {
			continue
		}
		aInitiates := a.InitiatesTo(b.ID)
		bInitiates := b.InitiatesTo(a.ID)
		if aInitiates == bInitiates {
			t.Fatalf("tie-break not antisymmetric: a=%q b=%q both=%v",
				a.ID, b.ID, aInitiates)
		}
	}
}

func TestInitiatesToSelfIsFalse(t *testing.T) {
	id := New()
	if id.InitiatesTo(id.ID) {
		t.Fatal("identity must not initiate to itself")
	}
}
