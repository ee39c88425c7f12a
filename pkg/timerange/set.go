package timerange

import (
	"fmt"
	"strings"
)

// Set 互不重叠、按起点升序的范围集合，表达不连续区间的并集。
// 规范字符串形式为逗号连接的各范围规范形式，空集合为空串。
type Set []TimeRange

// NewSet 构建规范化集合，输入可以乱序、重叠
func NewSet(ranges ...TimeRange) Set {
	return Set(ranges).Normalize()
}

// ParseSet 解析逗号连接的范围集合，空串为空集合
func ParseSet(s string) (Set, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make(Set, 0, len(parts))
	for _, p := range parts {
		r, err := Parse(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("range set %q: %w", s, err)
		}
		out = append(out, r)
	}
	return out.Normalize(), nil
}

// Normalize 排序并合并相邻或重叠的范围
func (s Set) Normalize() Set {
	if len(s) == 0 {
		return nil
	}
	sorted := make([]TimeRange, len(s))
	copy(sorted, s)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Compare(sorted[j-1]) < 0; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	out := make(Set, 0, len(sorted))
	cur := sorted[0]
	for _, r := range sorted[1:] {
		if u, ok := cur.Union(r); ok {
			cur = u
			continue
		}
		out = append(out, cur)
		cur = r
	}
	return append(out, cur)
}

// Add 并入一个范围，保持规范化
func (s Set) Add(r TimeRange) Set {
	return append(s, r).Normalize()
}

func (s Set) String() string {
	if len(s) == 0 {
		return ""
	}
	parts := make([]string, len(s))
	for i, r := range s {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// Equal 比较两个规范化集合
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if !s[i].Equal(o[i]) {
			return false
		}
	}
	return true
}
