package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMixList_RejectsEmptyAndNegative(t *testing.T) {
	_, err := NewMixList()
	assert.Error(t, err)

	_, err = NewMixList(0, NoHop)
	assert.Error(t, err)
}

func TestMixList_Accessors(t *testing.T) {
	l := MustMixList(4, 2, 7)

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, MixID(4), l.Entry())
	assert.Equal(t, MixID(7), l.Exit())
	assert.Equal(t, MixID(2), l.At(1))
	assert.Equal(t, NoHop, l.At(3), "past the end")
	assert.Equal(t, NoHop, l.At(-1))
	assert.Equal(t, 2, l.IndexOf(7))
	assert.Equal(t, -1, l.IndexOf(9))
	assert.Equal(t, "[4 -> 2 -> 7]", l.String())
}

func TestMixList_IsImmutable(t *testing.T) {
	ids := []MixID{1, 2, 3}
	l := MustMixList(ids...)
	ids[0] = 9
	got := l.IDs()
	got[1] = 9

	assert.Equal(t, []MixID{1, 2, 3}, l.IDs())
}

func TestMixList_ReverseAndLoops(t *testing.T) {
	l := MustMixList(0, 1, 2)
	assert.True(t, l.Reverse().Equal(MustMixList(2, 1, 0)))
	assert.False(t, l.HasLoop())
	assert.True(t, MustMixList(0, 1, 0).HasLoop())
}

func TestParseMixList(t *testing.T) {
	l, err := ParseMixList(" 3, 4 ,5 ")
	require.NoError(t, err)
	assert.True(t, l.Equal(MustMixList(3, 4, 5)))

	_, err = ParseMixList("1,x")
	assert.Error(t, err)

	_, err = ParseMixList("")
	assert.Error(t, err)
}
