package util

import (
	"strconv"
	"strings"
)

// NormalizeMonetary renders a Brazilian or period-decimal amount as a
// two-decimal string. It never fails: unparseable input yields "0.00".
func NormalizeMonetary(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	clean := keepLastOnly(keepLastOnly(b.String(), ','), '.')

	if comma := strings.IndexByte(clean, ','); comma >= 0 {
		intPart := strings.ReplaceAll(clean[:comma], ".", "")
		fracPart := strings.ReplaceAll(clean[comma+1:], ".", "")
		clean = intPart + "." + fracPart
	}

	value, err := strconv.ParseFloat(clean, 64)
	if err != nil || value < 0 {
		return "0.00"
	}
	return strconv.FormatFloat(value, 'f', 2, 64)
}

// keepLastOnly removes every occurrence of sep except the last one.
func keepLastOnly(s string, sep byte) string {
	last := strings.LastIndexByte(s, sep)
	if last < 0 {
		return s
	}
	return strings.ReplaceAll(s[:last], string(sep), "") + s[last:]
}

func StripLeadingZeros(raw string) string {
	out := strings.TrimLeft(raw, "0")
	if out == "" {
		return "0"
	}
	return out
}

// DigitsOnly drops every non-digit and truncates to maxLen (maxLen <= 0 means no limit).
func DigitsOnly(raw string, maxLen int) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			if maxLen > 0 && b.Len() >= maxLen {
				break
			}
			b.WriteByte(raw[i])
		}
	}
	return b.String()
}

func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
