package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"daily-stock-analysis/internal/models"
)

// RenderContext carries run-level details that are not part of the signal.
type RenderContext struct {
	Checkpoint string
	Location   *time.Location
}

// Message is a rendered notification.
type Message struct {
	Title     string
	Text      string
	HTML      string
	Signal    models.Signal
	Timestamp time.Time
}

// FormatPrice renders a price with exactly two decimals.
func FormatPrice(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// FormatPercent renders a signed percentage with two decimals.
func FormatPercent(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	if d.IsPositive() {
		return "+" + d.StringFixed(2) + "%"
	}
	return d.StringFixed(2) + "%"
}

// FormatChange renders the change against the previous close.
func FormatChange(q models.Quote) string {
	if q.PrevClose == 0 {
		return "n/a"
	}
	last := decimal.NewFromFloat(q.LastPrice)
	prev := decimal.NewFromFloat(q.PrevClose)
	pct := last.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100))
	return FormatPercent(pct.InexactFloat64())
}

func actionEmoji(a models.Action) string {
	switch a {
	case models.ActionStrongBuy:
		return "🚀"
	case models.ActionBuy:
		return "📈"
	case models.ActionSell:
		return "📉"
	case models.ActionStrongSell:
		return "🔻"
	default:
		return "🔔"
	}
}

func indicatorLine(s models.IndicatorSnapshot) string {
	var parts []string
	add := func(name string, v *float64, format func(float64) string) {
		if v != nil {
			parts = append(parts, name+" "+format(*v))
		}
	}
	add("MA5", s.MA5, FormatPrice)
	add("MA10", s.MA10, FormatPrice)
	add("MA20", s.MA20, FormatPrice)
	add("RSI", s.RSI, func(v float64) string { return decimal.NewFromFloat(v).StringFixed(1) })
	add("Vol", s.VolumeRatio, func(v float64) string { return decimal.NewFromFloat(v).StringFixed(2) + "x" })
	add("Bias", s.BiasMA5, FormatPercent)
	if s.MACD != "" && s.MACD != models.MACDNone {
		parts = append(parts, "MACD "+string(s.MACD))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " | ")
}

// Render builds the notification for a signal.
func Render(sig models.Signal, rc RenderContext) Message {
	ts := sig.ComputedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	if rc.Location != nil {
		ts = ts.In(rc.Location)
	}

	name := sig.Symbol
	if sig.Quote.Name != "" {
		name = fmt.Sprintf("%s %s", sig.Symbol, sig.Quote.Name)
	}
	title := fmt.Sprintf("%s %s %s", actionEmoji(sig.Action), sig.Action, name)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Score: %d\n", sig.Score)
	fmt.Fprintf(&sb, "Price: %s (%s)\n", FormatPrice(sig.Quote.LastPrice), FormatChange(sig.Quote))
	if rc.Checkpoint != "" {
		fmt.Fprintf(&sb, "Checkpoint: %s\n", rc.Checkpoint)
	}
	fmt.Fprintf(&sb, "Time: %s\n", ts.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Indicators: %s\n", indicatorLine(sig.Indicators))
	if len(sig.Reasons) > 0 {
		sb.WriteString("Reasons:\n")
		for _, r := range sig.Reasons {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	}
	text := strings.TrimRight(sb.String(), "\n")

	return Message{
		Title:     title,
		Text:      text,
		HTML:      fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(title), html.EscapeString(text)),
		Signal:    sig,
		Timestamp: ts,
	}
}
