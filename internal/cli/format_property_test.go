package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestFormatVolume(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{9999, "9999"},
		{10000, "1.00万"},
		{1234567, "123.46万"},
		{100000000, "1.00亿"},
		{-25000, "-2.50万"},
	}
	for _, tt := range tests {
		if got := FormatVolume(tt.in); got != tt.want {
			t.Errorf("FormatVolume(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
		{50 * time.Hour, "2d 2h"},
		{-42 * time.Second, "-42s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatReasons(t *testing.T) {
	got := FormatReasons(map[string]int{"cooldown": 2, "below_threshold": 5})
	if got != "below_threshold=5 cooldown=2" {
		t.Errorf("FormatReasons = %q", got)
	}
	if FormatReasons(nil) != "-" {
		t.Error("empty reasons should render as -")
	}
}

func TestTruncateStringProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("never longer than the limit", prop.ForAll(
		func(s string, n int) bool {
			return runeLen(TruncateString(s, n)) <= n
		},
		gen.AnyString(),
		gen.IntRange(0, 40),
	))

	properties.Property("short strings are unchanged", prop.ForAll(
		func(s string) bool {
			return TruncateString(s, runeLen(s)) == s
		},
		gen.AnyString(),
	))

	properties.Property("truncated strings keep a prefix", prop.ForAll(
		func(s string, n int) bool {
			out := TruncateString(s, n)
			if out == s {
				return true
			}
			return strings.HasPrefix(s, strings.TrimSuffix(out, "..."))
		},
		gen.AlphaString(),
		gen.IntRange(4, 20),
	))

	properties.TestingRun(t)
}

func TestVisibleWidthIgnoresColor(t *testing.T) {
	if got := visibleWidth("\x1b[32mBUY\x1b[0m"); got != 3 {
		t.Errorf("visibleWidth = %d, want 3", got)
	}
	if got := visibleWidth("贵州茅台"); got != 4 {
		t.Errorf("visibleWidth = %d, want 4", got)
	}
}
