package timerange

import (
	"fmt"
	"strconv"
	"strings"
)

const nanosPerSecond = 1_000_000_000

// Timestamp 以纳秒精度表示时间轴上的一个点，格式 "seconds:nanoseconds"
// 归一化约定: Nanoseconds 始终在 [0, 1e9) 区间，负值通过 Seconds 进位表达，
// 例如 -0.5s 存储为 {Seconds: -1, Nanoseconds: 500000000}
type Timestamp struct {
	Seconds     int64
	Nanoseconds uint32
}

// ParseTimestamp 解析 "seconds:nanoseconds" 格式的时间戳，支持负号前缀
func ParseTimestamp(s string) (Timestamp, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Timestamp{}, fmt.Errorf("empty timestamp")
	}

	neg := false
	if raw[0] == '-' {
		neg = true
		raw = raw[1:]
	}

	secStr, nanoStr, ok := strings.Cut(raw, ":")
	if !ok {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: expected seconds:nanoseconds", s)
	}
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil || strings.HasPrefix(secStr, "-") {
		return Timestamp{}, fmt.Errorf("invalid seconds %q", secStr)
	}
	nano, err := strconv.ParseUint(nanoStr, 10, 32)
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid nanoseconds %q", nanoStr)
	}
	if nano >= nanosPerSecond {
		return Timestamp{}, fmt.Errorf("nanoseconds out of range: %d", nano)
	}

	total := sec*nanosPerSecond + int64(nano)
	if neg {
		total = -total
	}
	return fromNanos(total), nil
}

// MustParseTimestamp 解析失败时 panic，仅用于测试和常量
func MustParseTimestamp(s string) Timestamp {
	t, err := ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return t
}

func fromNanos(n int64) Timestamp {
	sec := n / nanosPerSecond
	nano := n % nanosPerSecond
	if nano < 0 {
		sec--
		nano += nanosPerSecond
	}
	return Timestamp{Seconds: sec, Nanoseconds: uint32(nano)}
}

// Nanos 返回自零点以来的总纳秒数，作为全部比较和运算的基础。
// 使用整数运算避免浮点误差在反复 split/merge 中累积。
func (t Timestamp) Nanos() int64 {
	return t.Seconds*nanosPerSecond + int64(t.Nanoseconds)
}

// String 输出规范形式 "seconds:nanoseconds"，负值输出符号前缀，如 "-0:500000000"
func (t Timestamp) String() string {
	n := t.Nanos()
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	return fmt.Sprintf("%s%d:%d", sign, n/nanosPerSecond, n%nanosPerSecond)
}

// Compare 返回 -1/0/1
func (t Timestamp) Compare(o Timestamp) int {
	a, b := t.Nanos(), o.Nanos()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Before .
func (t Timestamp) Before(o Timestamp) bool { return t.Compare(o) < 0 }

// After .
func (t Timestamp) After(o Timestamp) bool { return t.Compare(o) > 0 }

// Equal .
func (t Timestamp) Equal(o Timestamp) bool { return t.Compare(o) == 0 }

// Add 返回 t + o
func (t Timestamp) Add(o Timestamp) Timestamp {
	return fromNanos(t.Nanos() + o.Nanos())
}

// Sub 返回 t - o，可为负
func (t Timestamp) Sub(o Timestamp) Timestamp {
	return fromNanos(t.Nanos() - o.Nanos())
}

// IsZero .
func (t Timestamp) IsZero() bool { return t.Seconds == 0 && t.Nanoseconds == 0 }
