// Package notify delivers accepted signals to the configured channels.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"daily-stock-analysis/internal/config"
	apperrors "daily-stock-analysis/internal/errors"
	"daily-stock-analysis/internal/models"
	"daily-stock-analysis/internal/security"
)

// Channel defines the interface for a notification channel.
type Channel interface {
	Name() string
	Send(ctx context.Context, m Message) error
	IsEnabled() bool
}

// DeliveryResult is the outcome of one channel delivery.
type DeliveryResult struct {
	Channel string
	Err     error
}

// OK reports whether the delivery succeeded.
func (r DeliveryResult) OK() bool {
	return r.Err == nil
}

// Dispatcher sends a rendered signal to every enabled channel. Failures are
// logged and reported, never retried.
type Dispatcher struct {
	channels []Channel
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// Option configures channels built by NewDispatcher.
type Option func(*options)

type options struct {
	client      *http.Client
	telegramAPI string
}

// WithHTTPClient sets the HTTP client used by the webhook and Telegram channels.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithTelegramAPI overrides the Telegram Bot API base URL.
func WithTelegramAPI(base string) Option {
	return func(o *options) { o.telegramAPI = base }
}

// NewDispatcher creates a Dispatcher with the channels enabled in cfg.
func NewDispatcher(cfg config.NotificationConfig, logger zerolog.Logger, opts ...Option) *Dispatcher {
	o := options{
		client:      &http.Client{Timeout: 10 * time.Second},
		telegramAPI: "https://api.telegram.org",
	}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Dispatcher{logger: logger}
	if !cfg.Enabled {
		return d
	}

	if cfg.Log {
		d.channels = append(d.channels, NewLogChannel(logger))
	}
	if cfg.Webhook.Enabled {
		d.channels = append(d.channels, NewWebhookNotifier(cfg.Webhook, o.client))
	}
	if cfg.Telegram.Enabled {
		d.channels = append(d.channels, NewTelegramNotifier(cfg.Telegram, o.client, o.telegramAPI))
	}
	if cfg.Email.Enabled {
		d.channels = append(d.channels, NewEmailNotifier(cfg.Email))
	}

	return d
}

// AddChannel adds a notification channel.
func (d *Dispatcher) AddChannel(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = append(d.channels, ch)
}

// Channels returns the names of the enabled channels.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		if ch.IsEnabled() {
			names = append(names, ch.Name())
		}
	}
	return names
}

// Dispatch renders sig and sends it to every enabled channel, returning one
// result per channel.
func (d *Dispatcher) Dispatch(ctx context.Context, sig models.Signal, rc RenderContext) []DeliveryResult {
	msg := Render(sig, rc)

	d.mu.RLock()
	channels := d.channels
	d.mu.RUnlock()

	results := make([]DeliveryResult, 0, len(channels))
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		err := ch.Send(ctx, msg)
		if err != nil {
			err = apperrors.NewDispatchError(ch.Name(), sig.Symbol, security.RedactError(err))
			d.logger.Warn().Err(err).Str("channel", ch.Name()).Str("symbol", sig.Symbol).Msg("Notification delivery failed")
		}
		results = append(results, DeliveryResult{Channel: ch.Name(), Err: err})
	}
	return results
}

// WebhookNotifier sends notifications via HTTP webhook.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg config.WebhookConfig, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client:  client,
	}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled returns whether the notifier is enabled.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send posts the signal as JSON.
func (w *WebhookNotifier) Send(ctx context.Context, m Message) error {
	if !w.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"title":     m.Title,
		"message":   m.Text,
		"signal":    m.Signal,
		"timestamp": m.Timestamp.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "daily-stock-analysis/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// TelegramNotifier sends notifications via Telegram bot.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	enabled  bool
	client   *http.Client
}

// NewTelegramNotifier creates a new TelegramNotifier.
func NewTelegramNotifier(cfg config.TelegramConfig, client *http.Client, apiBase string) *TelegramNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		apiBase:  apiBase,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client:   client,
	}
}

// Name returns the name of the notifier.
func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// IsEnabled returns whether the notifier is enabled.
func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

// Send sends the HTML rendering via the Bot API.
func (t *TelegramNotifier) Send(ctx context.Context, m Message) error {
	if !t.enabled {
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       m.HTML,
		"parse_mode": "HTML",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling telegram payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// EmailNotifier sends notifications via email using SMTP.
type EmailNotifier struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	to       string
	enabled  bool

	// send is smtp.SendMail outside tests
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier creates a new EmailNotifier.
func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{
		smtpHost: cfg.SMTPHost,
		smtpPort: cfg.SMTPPort,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		to:       cfg.To,
		enabled:  cfg.Enabled && cfg.SMTPHost != "" && cfg.From != "" && cfg.To != "",
		send:     smtp.SendMail,
	}
}

// Name returns the name of the notifier.
func (e *EmailNotifier) Name() string {
	return "email"
}

// IsEnabled returns whether the notifier is enabled.
func (e *EmailNotifier) IsEnabled() bool {
	return e.enabled
}

// Send sends a notification via email.
func (e *EmailNotifier) Send(ctx context.Context, m Message) error {
	if !e.enabled {
		return nil
	}

	msg := e.buildMessage(m)
	addr := fmt.Sprintf("%s:%d", e.smtpHost, e.smtpPort)

	var auth smtp.Auth
	if e.username != "" && e.password != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.smtpHost)
	}

	// Use TLS for secure connection
	if e.smtpPort == 465 {
		return e.sendWithTLS(addr, auth, msg)
	}

	// Use STARTTLS for port 587 or plain for others
	return e.send(addr, auth, e.from, []string{e.to}, []byte(msg))
}

func (e *EmailNotifier) buildMessage(m Message) string {
	return fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		e.from, e.to, m.Title, m.Text)
}

// sendWithTLS sends email using implicit TLS (port 465).
func (e *EmailNotifier) sendWithTLS(addr string, auth smtp.Auth, msg string) error {
	tlsConfig := &tls.Config{
		ServerName: e.smtpHost,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("TLS dial failed: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.smtpHost)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}

	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("SMTP MAIL command failed: %w", err)
	}

	if err := client.Rcpt(e.to); err != nil {
		return fmt.Errorf("SMTP RCPT command failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA command failed: %w", err)
	}

	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return client.Quit()
}
