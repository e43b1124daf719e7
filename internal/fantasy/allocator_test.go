package fantasy

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateAvoidsExistingNames(t *testing.T) {
	a := NewAllocator(1)

	existing := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		name := a.Allocate(existing)
		_, taken := existing[Normalize(name)]
		require.False(t, taken, "allocated duplicate name %q", name)
		existing[Normalize(name)] = struct{}{}
	}
}

func TestAllocateFallsBackToNumericSuffix(t *testing.T) {
	a := NewAllocator(42)

	// Saturate the whole combinatorial space so every draw collides.
	existing := make(map[string]struct{})
	for _, adj := range adjectives {
		for _, noun := range nouns {
			existing[Normalize(adj+" "+noun)] = struct{}{}
		}
	}

	name := a.Allocate(existing)
	assert.True(t, strings.HasSuffix(name, " 2"), "expected numeric suffix, got %q", name)

	existing[Normalize(name)] = struct{}{}
	next := a.Allocate(existing)
	_, taken := existing[Normalize(next)]
	assert.False(t, taken)
}

func TestAllocateNumericSuffixSkipsTakenNumbers(t *testing.T) {
	a := NewAllocator(7)

	existing := make(map[string]struct{})
	for _, adj := range adjectives {
		for _, noun := range nouns {
			existing[Normalize(adj+" "+noun)] = struct{}{}
			existing[Normalize(fmt.Sprintf("%s %s 2", adj, noun))] = struct{}{}
		}
	}

	name := a.Allocate(existing)
	assert.True(t, strings.HasSuffix(name, " 3"), "expected suffix 3, got %q", name)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "brave wolf", Normalize("  Brave Wolf "))
	assert.Equal(t, Normalize("BRAVE WOLF"), Normalize("brave wolf"))
}
