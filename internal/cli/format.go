package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"daily-stock-analysis/internal/signalfilter"
)

var (
	tenThousand    = decimal.NewFromInt(10_000)
	hundredMillion = decimal.NewFromInt(100_000_000)
)

// FormatVolume formats a share count with the 万 and 亿 units used on
// mainland quote screens.
func FormatVolume(volume int64) string {
	d := decimal.NewFromInt(volume)
	abs := d.Abs()
	switch {
	case abs.GreaterThanOrEqual(hundredMillion):
		return d.Div(hundredMillion).StringFixed(2) + "亿"
	case abs.GreaterThanOrEqual(tenThousand):
		return d.Div(tenThousand).StringFixed(2) + "万"
	}
	return d.String()
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "-" + FormatDuration(-d)
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// FormatDateTime formats a time in loc.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("2006-01-02 15:04:05")
}

// FormatReasons renders suppression reason counts as "reason=n", sorted by reason.
func FormatReasons(reasons map[string]int) string {
	if len(reasons) == 0 {
		return "-"
	}
	keys := signalfilter.SortedReasons(reasons)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, reasons[k]))
	}
	return strings.Join(parts, " ")
}

// TruncateString truncates a string to maxLen runes with ellipsis.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if runeLen(s) <= maxLen {
		return s
	}
	r := []rune(s)
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
