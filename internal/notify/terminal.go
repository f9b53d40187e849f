package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"daily-stock-analysis/internal/models"
)

// LogChannel writes notifications to the structured log.
type LogChannel struct {
	logger zerolog.Logger
}

// NewLogChannel creates a LogChannel.
func NewLogChannel(logger zerolog.Logger) *LogChannel {
	return &LogChannel{logger: logger.With().Str("channel", "log").Logger()}
}

// Name returns the name of the channel.
func (l *LogChannel) Name() string { return "log" }

// IsEnabled always returns true.
func (l *LogChannel) IsEnabled() bool { return true }

// Send logs the signal at info level.
func (l *LogChannel) Send(_ context.Context, m Message) error {
	l.logger.Info().
		Str("symbol", m.Signal.Symbol).
		Str("action", string(m.Signal.Action)).
		Int("score", m.Signal.Score).
		Str("price", FormatPrice(m.Signal.Quote.LastPrice)).
		Strs("reasons", m.Signal.Reasons).
		Msg(m.Title)
	return nil
}

// TerminalChannel prints colored notification blocks, ringing the bell for
// strong actions.
type TerminalChannel struct {
	out  io.Writer
	bell bool
	mu   sync.Mutex
}

// NewTerminalChannel creates a TerminalChannel writing to out, or stdout
// when out is nil.
func NewTerminalChannel(out io.Writer, bell bool) *TerminalChannel {
	if out == nil {
		out = os.Stdout
	}
	return &TerminalChannel{out: out, bell: bell}
}

// Name returns the name of the channel.
func (t *TerminalChannel) Name() string { return "terminal" }

// IsEnabled always returns true.
func (t *TerminalChannel) IsEnabled() bool { return true }

// ActionColor returns the color used for an action.
func ActionColor(a models.Action) *color.Color {
	var c *color.Color
	switch {
	case a.IsBuy():
		c = color.New(color.FgGreen)
	case a.IsSell():
		c = color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
	if a == models.ActionStrongBuy || a == models.ActionStrongSell {
		c.Add(color.Bold)
	}
	return c
}

// Send writes the rendered message.
func (t *TerminalChannel) Send(_ context.Context, m Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	if t.bell && (m.Signal.Action == models.ActionStrongBuy || m.Signal.Action == models.ActionStrongSell) {
		sb.WriteString("\a")
	}
	sb.WriteString(ActionColor(m.Signal.Action).Sprint(m.Title))
	sb.WriteString("\n")
	for _, line := range strings.Split(m.Text, "\n") {
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if _, err := fmt.Fprint(t.out, sb.String()); err != nil {
		return fmt.Errorf("writing terminal notification: %w", err)
	}
	return nil
}
