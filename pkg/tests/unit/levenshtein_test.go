package unit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sukryu/GoKeep/pkg/adapters/lsmtree"
)

// TestLevenshteinDistance checks the DP recurrence against known pairs.
func TestLevenshteinDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"apple", "apply", 1},
		{"aple", "apple", 1},
		{"appel", "apple", 2},
		{"banana", "apple", 5},
		{"a", "b", 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, lsmtree.LevenshteinDistance(c.a, c.b),
			"distance(%q, %q)", c.a, c.b)
		assert.Equal(t, c.want, lsmtree.LevenshteinDistance(c.b, c.a),
			"distance must be symmetric for (%q, %q)", c.a, c.b)
	}
}

// TestLevenshteinZeroIffEqual verifies distance 0 exactly characterizes
// equality.
func TestLevenshteinZeroIffEqual(t *testing.T) {
	words := []string{"", "a", "ab", "ba", "abc", "abd"}
	for _, a := range words {
		for _, b := range words {
			d := lsmtree.LevenshteinDistance(a, b)
			if a == b {
				assert.Zero(t, d)
			} else {
				assert.Positive(t, d)
			}
		}
	}
}
