package timerange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("1609459200:123456789")
	require.NoError(t, err)
	assert.Equal(t, int64(1609459200), ts.Seconds)
	assert.Equal(t, uint32(123456789), ts.Nanoseconds)
	assert.Equal(t, "1609459200:123456789", ts.String())

	for _, bad := range []string{"", "abc", "1609459200", "1:2:3", "5:1000000000", "5:-1", "1.5:0"} {
		_, err := ParseTimestamp(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestTimestampNegative(t *testing.T) {
	ts, err := ParseTimestamp("-0:500000000")
	require.NoError(t, err)
	assert.Equal(t, "-0:500000000", ts.String())

	zero := Timestamp{}
	assert.Equal(t, -1, ts.Compare(zero))
	assert.True(t, ts.Add(Timestamp{Seconds: 0, Nanoseconds: 500000000}).IsZero())
}

func TestTimestampArithmetic(t *testing.T) {
	a := MustParseTimestamp("10:900000000")
	b := MustParseTimestamp("0:200000000")
	assert.Equal(t, "11:100000000", a.Add(b).String())
	assert.Equal(t, "10:700000000", a.Sub(b).String())
	// 借位
	assert.Equal(t, "-10:700000000", b.Sub(a).String())
}

func TestParseFormatRoundTrip(t *testing.T) {
	cases := []string{
		"_",
		"[0:0_10:0)",
		"[0:0_10:0]",
		"(0:0_10:0)",
		"(0:0_10:0]",
		"[5:500000000_",
		"_10:0)",
		"_10:0]",
		"[5:0_5:0]",
	}
	for _, s := range cases {
		r, err := Parse(s)
		require.NoError(t, err, "input %q", s)
		assert.Equal(t, s, r.String(), "round trip %q", s)
	}

	// 非规范输入解析后输出规范形式
	r, err := Parse("0:0_10:0")
	require.NoError(t, err)
	assert.Equal(t, "[0:0_10:0)", r.String())

	p, err := Parse("5:0")
	require.NoError(t, err)
	assert.Equal(t, "[5:0_5:0]", p.String())
}

func TestParseRejects(t *testing.T) {
	for _, bad := range []string{
		"",
		"abc",
		")5:0_5:0(",
		"[10:0_5:0)",  // 起点在终点之后
		"[5:0_5:0)",   // 零宽
		"(5:0_5:0]",   // 零宽
		"(5:0_5:0)",   // 零宽
		"(5:0)",       // 开放端点的单点
		"[x:0_10:0)",
		"[0:0_y:0)",
	} {
		_, err := Parse(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestContains(t *testing.T) {
	r := MustParse("[10:0_20:0)")
	assert.True(t, r.Contains(MustParseTimestamp("10:0")))
	assert.True(t, r.Contains(MustParseTimestamp("15:0")))
	assert.False(t, r.Contains(MustParseTimestamp("20:0")))
	assert.False(t, r.Contains(MustParseTimestamp("9:999999999")))

	open := MustParse("[10:0_")
	assert.True(t, open.Contains(MustParseTimestamp("100000:0")))
	assert.False(t, open.Contains(MustParseTimestamp("9:0")))

	assert.True(t, Eternity().Contains(MustParseTimestamp("0:0")))
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"[0:0_10:0)", "[5:0_15:0)", true},
		{"[0:0_10:0)", "[10:0_20:0)", false}, // 半开衔接不相交
		{"[0:0_10:0]", "[10:0_20:0)", true},  // 含端点则共享单点
		{"[0:0_10:0)", "[20:0_30:0)", false},
		{"[0:0_", "[1000:0_2000:0)", true}, // 开放结尾视为 +∞
		{"_10:0)", "[5:0_", true},
		{"_", "[5:0_6:0)", true},
		{"[5:0_5:0]", "[0:0_10:0)", true},
		{"[5:0_5:0]", "[5:0_5:0]", true},
	}
	for _, c := range cases {
		a, b := MustParse(c.a), MustParse(c.b)
		assert.Equal(t, c.want, a.Overlaps(b), "%s overlaps %s", c.a, c.b)
		assert.Equal(t, c.want, b.Overlaps(a), "对称性 %s %s", c.a, c.b)
	}
}

func TestIntersect(t *testing.T) {
	cases := []struct {
		a, b, want string
		ok         bool
	}{
		{"[0:0_10:0)", "[5:0_15:0)", "[5:0_10:0)", true},
		{"[0:0_10:0)", "[10:0_20:0)", "", false},
		{"[0:0_", "_10:0)", "[0:0_10:0)", true},
		{"_", "[3:0_4:0)", "[3:0_4:0)", true},
		{"[0:0_10:0]", "[10:0_20:0)", "[10:0_10:0]", true},
	}
	for _, c := range cases {
		a, b := MustParse(c.a), MustParse(c.b)
		got, ok := a.Intersect(b)
		assert.Equal(t, c.ok, ok, "%s ∩ %s", c.a, c.b)
		if ok {
			assert.Equal(t, c.want, got.String())
		}
		// Intersect 为 nil 当且仅当不相交
		assert.Equal(t, a.Overlaps(b), ok)
	}
}

func TestUnion(t *testing.T) {
	cases := []struct {
		a, b, want string
		ok         bool
	}{
		{"[0:0_10:0)", "[5:0_15:0)", "[0:0_15:0)", true},
		{"[0:0_10:0)", "[10:0_20:0)", "[0:0_20:0)", true}, // 相邻可合并
		{"[0:0_10:0)", "(10:0_20:0)", "", false},          // 单点空隙
		{"[0:0_10:0]", "(10:0_20:0)", "[0:0_20:0)", true},
		{"[0:0_5:0)", "[6:0_7:0)", "", false},
		{"[0:0_", "_0:0]", "_", true},
	}
	for _, c := range cases {
		a, b := MustParse(c.a), MustParse(c.b)
		got, ok := a.Union(b)
		assert.Equal(t, c.ok, ok, "%s ∪ %s", c.a, c.b)
		if ok {
			assert.Equal(t, c.want, got.String())
		}
	}
}

func TestSubtract(t *testing.T) {
	cases := []struct {
		a, b string
		want []string
	}{
		// 不相交: 原样返回
		{"[0:0_10:0)", "[20:0_30:0)", []string{"[0:0_10:0)"}},
		// 中间挖空: 两段
		{"[0:0_20:0)", "[5:0_15:0)", []string{"[0:0_5:0)", "[15:0_20:0)"}},
		// 左侧截断
		{"[0:0_20:0)", "_10:0)", []string{"[10:0_20:0)"}},
		// 右侧截断
		{"[0:0_20:0)", "[10:0_", []string{"[0:0_10:0)"}},
		// 完全覆盖: 无剩余
		{"[5:0_15:0)", "[0:0_20:0)", nil},
		{"[5:0_15:0)", "_", nil},
		// 挖去单点
		{"[0:0_10:0)", "[5:0_5:0]", []string{"[0:0_5:0)", "(5:0_10:0)"}},
	}
	for _, c := range cases {
		a, b := MustParse(c.a), MustParse(c.b)
		got := a.Subtract(b)
		gotStr := make([]string, 0, len(got))
		for _, g := range got {
			gotStr = append(gotStr, g.String())
		}
		if c.want == nil {
			assert.Empty(t, got, "%s - %s", c.a, c.b)
		} else {
			assert.Equal(t, c.want, gotStr, "%s - %s", c.a, c.b)
		}
	}
}

func TestSubtractReunion(t *testing.T) {
	// 挖去再并回挖去部分与原区间的交集，应恢复原区间
	a := MustParse("[0:0_20:0)")
	b := MustParse("[5:0_15:0)")
	pieces := a.Subtract(b)
	require.Len(t, pieces, 2)

	mid, ok := a.Intersect(b)
	require.True(t, ok)

	merged, ok := pieces[0].Union(mid)
	require.True(t, ok)
	merged, ok = merged.Union(pieces[1])
	require.True(t, ok)
	assert.True(t, merged.Equal(a))
}

func TestCoveredBy(t *testing.T) {
	assert.True(t, MustParse("[5:0_10:0)").CoveredBy(MustParse("[0:0_20:0)")))
	assert.True(t, MustParse("[5:0_10:0)").CoveredBy(MustParse("[5:0_10:0)")))
	assert.False(t, MustParse("[5:0_10:0]").CoveredBy(MustParse("[5:0_10:0)")))
	assert.False(t, MustParse("[0:0_").CoveredBy(MustParse("[0:0_10:0)")))
	assert.True(t, MustParse("[0:0_").CoveredBy(Eternity()))
}

func TestCompareOrdering(t *testing.T) {
	// 无界起点最靠前
	assert.Equal(t, -1, MustParse("_10:0)").Compare(MustParse("[0:0_10:0)")))
	assert.Equal(t, -1, MustParse("[0:0_10:0)").Compare(MustParse("[1:0_2:0)")))
	// 起点相同比终点
	assert.Equal(t, -1, MustParse("[0:0_5:0)").Compare(MustParse("[0:0_10:0)")))
	assert.Equal(t, -1, MustParse("[0:0_5:0)").Compare(MustParse("[0:0_")))
	assert.Equal(t, 0, MustParse("[0:0_5:0)").Compare(MustParse("[0:0_5:0)")))
}

func TestDuration(t *testing.T) {
	d, ok := MustParse("[10:500000000_20:0)").Duration()
	require.True(t, ok)
	assert.Equal(t, "9:500000000", d.String())

	_, ok = MustParse("[10:0_").Duration()
	assert.False(t, ok)
}
