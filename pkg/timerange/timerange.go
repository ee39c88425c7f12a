// Package timerange 实现半开/全开时间区间的解析、比较与集合运算。
// 区间是不可变值类型，所有运算基于 (seconds, nanoseconds) 整数对，
// 不使用浮点，保证反复切分/合并不产生漂移。
package timerange

import (
	"fmt"
	"strings"
)

// TimeRange 时间区间。nil 边界表示无界:
// Start 为 nil 表示无限过去，End 为 nil 表示尚未结束、持续写入。
// 规范字符串形式 "[5:0_10:0)"，方括号含端点，圆括号不含。
type TimeRange struct {
	Start         *Timestamp
	End           *Timestamp
	IncludesStart bool
	IncludesEnd   bool
}

// Eternity 全开区间，覆盖整个时间轴
func Eternity() TimeRange {
	return TimeRange{}
}

// Between 构造默认边界语义的区间 [start_end)
func Between(start, end Timestamp) TimeRange {
	return TimeRange{Start: &start, End: &end, IncludesStart: true}
}

// From 构造开放结尾的区间 [start_
func From(start Timestamp) TimeRange {
	return TimeRange{Start: &start, IncludesStart: true}
}

// Until 构造无限过去开头的区间 _end)
func Until(end Timestamp) TimeRange {
	return TimeRange{End: &end}
}

// AtPoint 构造单点区间 [t_t]
func AtPoint(t Timestamp) TimeRange {
	return TimeRange{Start: &t, End: &t, IncludesStart: true, IncludesEnd: true}
}

// Parse 解析区间字符串。
// 支持的形式:
//
//	"_"            全开区间
//	"[0:0_10:0)"   完整形式，起始标记 [ 或 (，结束标记 ) 或 ]
//	"[0:0_"        开放结尾
//	"_10:0)"       无界开头
//	"5:0"          单点区间，等价于 "[5:0_5:0]"
//
// 省略标记时默认为含起点、不含终点。
// 拒绝: 起点在终点之后、start == end 但任一端开放（零宽区间）。
func Parse(s string) (TimeRange, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return TimeRange{}, fmt.Errorf("empty timerange")
	}
	if raw == "_" {
		return Eternity(), nil
	}

	var r TimeRange
	r.IncludesStart = true
	startMarked, endMarked := false, false

	switch raw[0] {
	case '[':
		raw = raw[1:]
		startMarked = true
	case '(':
		r.IncludesStart = false
		raw = raw[1:]
		startMarked = true
	}
	if n := len(raw); n > 0 {
		switch raw[n-1] {
		case ')':
			raw = raw[:n-1]
			endMarked = true
		case ']':
			r.IncludesEnd = true
			raw = raw[:n-1]
			endMarked = true
		}
	}

	startStr, endStr, found := strings.Cut(raw, "_")
	if !found {
		// 单个时间戳视为单点区间，开放端点的单点没有意义
		if (startMarked && !r.IncludesStart) || (endMarked && !r.IncludesEnd) {
			return TimeRange{}, fmt.Errorf("invalid timerange %q: exclusive point range", s)
		}
		t, err := ParseTimestamp(raw)
		if err != nil {
			return TimeRange{}, fmt.Errorf("invalid timerange %q: %w", s, err)
		}
		return AtPoint(t), nil
	}

	if startStr != "" {
		t, err := ParseTimestamp(startStr)
		if err != nil {
			return TimeRange{}, fmt.Errorf("invalid timerange %q: %w", s, err)
		}
		r.Start = &t
	}
	if endStr != "" {
		t, err := ParseTimestamp(endStr)
		if err != nil {
			return TimeRange{}, fmt.Errorf("invalid timerange %q: %w", s, err)
		}
		r.End = &t
	}
	if err := r.validate(); err != nil {
		return TimeRange{}, fmt.Errorf("invalid timerange %q: %w", s, err)
	}
	return r, nil
}

// MustParse 解析失败时 panic，仅用于测试和常量
func MustParse(s string) TimeRange {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r TimeRange) validate() error {
	if r.Start == nil || r.End == nil {
		return nil
	}
	switch r.Start.Compare(*r.End) {
	case 1:
		return fmt.Errorf("start %s after end %s", r.Start, r.End)
	case 0:
		if !r.IncludesStart || !r.IncludesEnd {
			return fmt.Errorf("zero-width range")
		}
	}
	return nil
}

// String 输出规范形式，Parse 的逆运算。无界的一侧省略标记与时间戳。
func (r TimeRange) String() string {
	if r.Start == nil && r.End == nil {
		return "_"
	}
	var sb strings.Builder
	if r.Start != nil {
		if r.IncludesStart {
			sb.WriteByte('[')
		} else {
			sb.WriteByte('(')
		}
		sb.WriteString(r.Start.String())
	}
	sb.WriteByte('_')
	if r.End != nil {
		sb.WriteString(r.End.String())
		if r.IncludesEnd {
			sb.WriteByte(']')
		} else {
			sb.WriteByte(')')
		}
	}
	return sb.String()
}

// Bounded 两端均有界
func (r TimeRange) Bounded() bool { return r.Start != nil && r.End != nil }

// Duration 有界区间的时长（终点减起点），无界区间返回 false
func (r TimeRange) Duration() (Timestamp, bool) {
	if !r.Bounded() {
		return Timestamp{}, false
	}
	return r.End.Sub(*r.Start), true
}

// Contains 判断时间点是否落在区间内
func (r TimeRange) Contains(t Timestamp) bool {
	if r.Start != nil {
		switch t.Compare(*r.Start) {
		case -1:
			return false
		case 0:
			if !r.IncludesStart {
				return false
			}
		}
	}
	if r.End != nil {
		switch t.Compare(*r.End) {
		case 1:
			return false
		case 0:
			if !r.IncludesEnd {
				return false
			}
		}
	}
	return true
}

// startBeforeEnd 判断 start 边界是否落在 end 边界之前（存在公共点）。
// nil start 视为 -∞，nil end 视为 +∞。
func startBeforeEnd(start *Timestamp, startInc bool, end *Timestamp, endInc bool) bool {
	if start == nil || end == nil {
		return true
	}
	switch start.Compare(*end) {
	case -1:
		return true
	case 0:
		return startInc && endInc
	}
	return false
}

// Overlaps 判断两个区间是否有公共点，满足交换律
func (r TimeRange) Overlaps(o TimeRange) bool {
	return startBeforeEnd(r.Start, r.IncludesStart, o.End, o.IncludesEnd) &&
		startBeforeEnd(o.Start, o.IncludesStart, r.End, r.IncludesEnd)
}

// laterStart 返回两个起始边界中更靠后的一个
func laterStart(a *Timestamp, aInc bool, b *Timestamp, bInc bool) (*Timestamp, bool) {
	if a == nil {
		return b, bInc
	}
	if b == nil {
		return a, aInc
	}
	switch a.Compare(*b) {
	case 1:
		return a, aInc
	case -1:
		return b, bInc
	}
	return a, aInc && bInc
}

// earlierEnd 返回两个结束边界中更靠前的一个
func earlierEnd(a *Timestamp, aInc bool, b *Timestamp, bInc bool) (*Timestamp, bool) {
	if a == nil {
		return b, bInc
	}
	if b == nil {
		return a, aInc
	}
	switch a.Compare(*b) {
	case -1:
		return a, aInc
	case 1:
		return b, bInc
	}
	return a, aInc && bInc
}

// Intersect 求交集，不相交时返回 false
func (r TimeRange) Intersect(o TimeRange) (TimeRange, bool) {
	if !r.Overlaps(o) {
		return TimeRange{}, false
	}
	var out TimeRange
	out.Start, out.IncludesStart = laterStart(r.Start, r.IncludesStart, o.Start, o.IncludesStart)
	out.End, out.IncludesEnd = earlierEnd(r.End, r.IncludesEnd, o.End, o.IncludesEnd)
	return out, true
}

// adjacent 判断 r 的终点与 o 的起点恰好衔接且中间无空隙
func adjacent(end *Timestamp, endInc bool, start *Timestamp, startInc bool) bool {
	if end == nil || start == nil {
		return false
	}
	return end.Equal(*start) && (endInc || startInc)
}

// Union 相交或相邻时合并为单个区间，存在空隙时返回 false
func (r TimeRange) Union(o TimeRange) (TimeRange, bool) {
	if !r.Overlaps(o) &&
		!adjacent(r.End, r.IncludesEnd, o.Start, o.IncludesStart) &&
		!adjacent(o.End, o.IncludesEnd, r.Start, r.IncludesStart) {
		return TimeRange{}, false
	}
	var out TimeRange
	out.Start, out.IncludesStart = earlierStart(r.Start, r.IncludesStart, o.Start, o.IncludesStart)
	out.End, out.IncludesEnd = laterEnd(r.End, r.IncludesEnd, o.End, o.IncludesEnd)
	return out, true
}

func earlierStart(a *Timestamp, aInc bool, b *Timestamp, bInc bool) (*Timestamp, bool) {
	if a == nil || b == nil {
		return nil, false
	}
	switch a.Compare(*b) {
	case -1:
		return a, aInc
	case 1:
		return b, bInc
	}
	return a, aInc || bInc
}

func laterEnd(a *Timestamp, aInc bool, b *Timestamp, bInc bool) (*Timestamp, bool) {
	if a == nil || b == nil {
		return nil, false
	}
	switch a.Compare(*b) {
	case 1:
		return a, aInc
	case -1:
		return b, bInc
	}
	return a, aInc || bInc
}

// Subtract 从 r 中挖去 o，返回 0、1 或 2 个剩余区间。
// o 完全落在 r 内部时产生左右两段。
func (r TimeRange) Subtract(o TimeRange) []TimeRange {
	if !r.Overlaps(o) {
		return []TimeRange{r}
	}

	out := make([]TimeRange, 0, 2)
	// 左侧剩余: [r.start, o.start)
	if o.Start != nil {
		left := TimeRange{
			Start:         r.Start,
			IncludesStart: r.IncludesStart,
			End:           o.Start,
			IncludesEnd:   !o.IncludesStart,
		}
		if left.notEmpty() {
			out = append(out, left)
		}
	}
	// 右侧剩余: (o.end, r.end]
	if o.End != nil {
		right := TimeRange{
			Start:         o.End,
			IncludesStart: !o.IncludesEnd,
			End:           r.End,
			IncludesEnd:   r.IncludesEnd,
		}
		if right.notEmpty() {
			out = append(out, right)
		}
	}
	return out
}

// notEmpty 判断构造出的边界组合是否描述非空区间
func (r TimeRange) notEmpty() bool {
	if r.Start == nil || r.End == nil {
		return true
	}
	switch r.Start.Compare(*r.End) {
	case -1:
		return true
	case 0:
		return r.IncludesStart && r.IncludesEnd
	}
	return false
}

// CoveredBy 判断 r 是否完全包含于 o
func (r TimeRange) CoveredBy(o TimeRange) bool {
	return len(r.Subtract(o)) == 0
}

// Compare 对区间做全序比较: 先比起点（无界起点最靠前，含端点先于不含），
// 再比终点（无界终点最靠后）。
func (r TimeRange) Compare(o TimeRange) int {
	switch {
	case r.Start == nil && o.Start != nil:
		return -1
	case r.Start != nil && o.Start == nil:
		return 1
	case r.Start != nil && o.Start != nil:
		if c := r.Start.Compare(*o.Start); c != 0 {
			return c
		}
		if r.IncludesStart != o.IncludesStart {
			if r.IncludesStart {
				return -1
			}
			return 1
		}
	}
	switch {
	case r.End == nil && o.End != nil:
		return 1
	case r.End != nil && o.End == nil:
		return -1
	case r.End != nil && o.End != nil:
		if c := r.End.Compare(*o.End); c != 0 {
			return c
		}
		if r.IncludesEnd != o.IncludesEnd {
			if r.IncludesEnd {
				return 1
			}
			return -1
		}
	}
	return 0
}

// Equal 值相等
func (r TimeRange) Equal(o TimeRange) bool {
	return r.Compare(o) == 0
}
