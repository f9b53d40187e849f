// Package security masks credentials before they reach logs or output.
package security

import (
	"regexp"
	"strings"
)

var (
	// Telegram puts the bot token in the request path, so transport errors
	// carry it verbatim.
	botTokenPattern = regexp.MustCompile(`/bot([0-9]+:[A-Za-z0-9_\-]+)`)

	// key=value pairs in query strings, headers and error text
	keyValuePattern = regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?secret|secret[_-]?key|access[_-]?token|auth[_-]?token|token|password|bearer)([=:\s]+)["']?([^\s"'&]+)["']?`)
)

// MaskCredential keeps the first and last four characters of long values
// and masks the rest.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// Redact masks credentials embedded in s.
func Redact(s string) string {
	s = botTokenPattern.ReplaceAllStringFunc(s, func(m string) string {
		return "/bot" + MaskCredential(strings.TrimPrefix(m, "/bot"))
	})
	return keyValuePattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := keyValuePattern.FindStringSubmatch(m)
		return parts[1] + parts[2] + MaskCredential(parts[3])
	})
}

// RedactError returns err with credentials masked from its message. The
// result still unwraps to err, so errors.Is and errors.As keep working.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	masked := Redact(msg)
	if masked == msg {
		return err
	}
	return &redactedError{msg: masked, err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }
