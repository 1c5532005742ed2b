package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParticipants_DedupesPreservingOrder(t *testing.T) {
	p, err := NewParticipants("bob", " alice ", "bob", "carol")
	require.NoError(t, err)
	assert.Equal(t, Participants{"bob", "alice", "carol"}, p)
}

func TestNewParticipants_Rejects(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
	}{
		{"empty", nil},
		{"blank member", []string{"alice", "  "}},
		{"unit separator", []string{"alice", "b\x1fc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParticipants(tt.ids...)
			require.Error(t, err)
			assert.True(t, IsInvalidParticipants(err))
		})
	}
}

func TestParticipants_Pair(t *testing.T) {
	a, b := Participants{"x", "y", "z"}.Pair()
	assert.Equal(t, "x", a)
	assert.Equal(t, "y", b)

	a, b = Participants{"solo"}.Pair()
	assert.Equal(t, "solo", a)
	assert.Equal(t, "solo", b)

	a, b = Participants{}.Pair()
	assert.Empty(t, a)
	assert.Empty(t, b)
}

func TestParticipants_ValueScan(t *testing.T) {
	v, err := Participants{"b", "a"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["b","a"]`, v)

	var p Participants
	require.NoError(t, p.Scan([]byte(`["b","a"]`)))
	assert.Equal(t, Participants{"b", "a"}, p)
	assert.True(t, p.Contains("a"))
	assert.False(t, p.Contains("c"))

	assert.Error(t, p.Scan(42))
	assert.Error(t, p.Scan("not json"))
}

func TestNormalizeTagName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"go", "go"},
		{"  Go  ", "go"},
		{"GOLANG", "golang"},
		{"Straße", "strasse"},
		{"école", "école"},
		{"ÉCOLE", "école"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeTagName(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NormalizeTagName(" \t ")
	assert.ErrorIs(t, err, ErrEmptyTagName)
}

func TestError_HelpersWalkWrappedChains(t *testing.T) {
	probe := NewProbeError("messages columns", errors.New("disk I/O error"))
	abort := NewAbortError("ensure_link_column", fmt.Errorf("ensure_link_column: %w", probe))
	wrapped := fmt.Errorf("migrate up: %w", abort)

	assert.True(t, IsTransactionAbort(wrapped))
	assert.True(t, IsProbeFailure(wrapped))
	assert.False(t, IsCardinalityViolation(wrapped))
	assert.Equal(t, ErrCodeTransactionAborted, CodeOf(wrapped))
	assert.Contains(t, wrapped.Error(), "ensure_link_column")
	assert.Contains(t, wrapped.Error(), "disk I/O error")
}

func TestError_ConstraintViolation(t *testing.T) {
	card := NewCardinalityError("post-1", 3, 3)
	uniq := NewUniquenessError("post-1", "tag-1", nil)

	assert.True(t, IsConstraintViolation(card))
	assert.True(t, IsConstraintViolation(uniq))
	assert.True(t, IsCardinalityViolation(card))
	assert.False(t, IsCardinalityViolation(uniq))
	assert.Equal(t, "CARDINALITY_VIOLATION: tag limit reached for post post-1 (3 >= 3)", card.Error())
	assert.False(t, IsNotFound(nil))
}
