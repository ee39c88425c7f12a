package timerange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetNormalize(t *testing.T) {
	s := NewSet(
		MustParse("[10:0_20:0)"),
		MustParse("[0:0_5:0)"),
		MustParse("[5:0_10:0)"),
	)
	// 相邻区间合并，乱序输入排好
	assert.Equal(t, "[0:0_20:0)", s.String())

	s = NewSet(
		MustParse("[0:0_5:0)"),
		MustParse("[15:0_20:0)"),
	)
	assert.Equal(t, "[0:0_5:0),[15:0_20:0)", s.String())
}

func TestSetParseRoundTrip(t *testing.T) {
	for _, str := range []string{
		"",
		"[0:0_5:0)",
		"[0:0_5:0),[15:0_20:0)",
		"_10:0),[20:0_",
	} {
		s, err := ParseSet(str)
		require.NoError(t, err, str)
		assert.Equal(t, str, s.String())
	}

	_, err := ParseSet("[0:0_5:0),bogus")
	assert.Error(t, err)
}

func TestSetAdd(t *testing.T) {
	s, err := ParseSet("[0:0_5:0),[15:0_20:0)")
	require.NoError(t, err)

	// 中间的洞被补上后整体合并
	s = s.Add(MustParse("[5:0_15:0)"))
	assert.Equal(t, "[0:0_20:0)", s.String())

	s = s.Add(MustParse("[30:0_40:0)"))
	assert.Equal(t, "[0:0_20:0),[30:0_40:0)", s.String())
}

func TestSetEqual(t *testing.T) {
	a, _ := ParseSet("[0:0_5:0),[15:0_20:0)")
	b := NewSet(MustParse("[15:0_20:0)"), MustParse("[0:0_5:0)"))
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(a.Add(MustParse("[50:0_60:0)"))))
}
