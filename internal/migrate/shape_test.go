package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShape_LinkState(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		want  LinkState
	}{
		{"absent", Shape{}, LinkAbsent},
		{"nullable with unlinked rows", Shape{Link: ColumnInfo{Present: true}, UnlinkedRows: 3}, LinkNullable},
		{"nullable and empty", Shape{Link: ColumnInfo{Present: true}}, LinkBackfilled},
		{"not null", Shape{Link: ColumnInfo{Present: true, NotNull: true}}, LinkNotNull},
		{"constrained", Shape{Link: ColumnInfo{Present: true, NotNull: true, References: "conversations"}}, LinkConstrained},
		{"reference without not null", Shape{Link: ColumnInfo{Present: true, References: "conversations"}}, LinkBackfilled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.shape.LinkState())
		})
	}
}

func TestShape_Legacy(t *testing.T) {
	both := Shape{
		Sender:   ColumnInfo{Present: true, NotNull: true},
		Receiver: ColumnInfo{Present: true, NotNull: true},
	}
	assert.True(t, both.LegacyPresent())
	assert.True(t, both.LegacyNotNull())
	assert.False(t, both.LegacyAbsent())

	half := Shape{Sender: ColumnInfo{Present: true}}
	assert.False(t, half.LegacyPresent())
	assert.False(t, half.LegacyAbsent())

	assert.True(t, Shape{}.LegacyAbsent())
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{
		"up": Forward, "forward": Forward, "down": Backward, "backward": Backward,
	} {
		got, err := ParseDirection(in)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}
