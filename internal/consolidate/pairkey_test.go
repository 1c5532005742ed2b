package consolidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKey_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"bob", "alice"},
		{"01H0", "01H1"},
		{"z", "a"},
	}
	for _, p := range pairs {
		assert.Equal(t, PairKey(p[0], p[1]), PairKey(p[1], p[0]), "pair %v", p)
	}
}

func TestPairKey_Distinct(t *testing.T) {
	assert.NotEqual(t, PairKey("alice", "bob"), PairKey("alice", "carol"))
	// Concatenation alone would collide here.
	assert.NotEqual(t, PairKey("ab", "c"), PairKey("a", "bc"))
}

func TestPairKey_SelfPair(t *testing.T) {
	k := PairKey("alice", "alice")
	assert.NotEmpty(t, k)
	assert.Equal(t, k, PairKey("alice", "alice"))
	assert.NotEqual(t, k, PairKey("alice", "bob"))
}
