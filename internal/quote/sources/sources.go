// Package sources implements the quote sources the fetcher can fall back on.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	apperrors "daily-stock-analysis/internal/errors"
	"daily-stock-analysis/internal/quote"
)

// Source names.
const (
	Tencent = "tencent"
	Sina    = "sina"
	Kite    = "kite"
	Paper   = "paper"
)

// Names lists every source this package can build.
var Names = []string{Tencent, Sina, Kite, Paper}

// IsKnown reports whether name is a buildable source.
func IsKnown(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// Config holds what the sources need to be constructed.
type Config struct {
	HTTPClient      *http.Client
	KiteAPIKey      string
	KiteAccessToken string
	PaperSeed       int64
}

// NewRegistry registers every source that can be built from cfg. The kite
// source is only registered when credentials are present.
func NewRegistry(cfg Config) *quote.Registry {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	r := quote.NewRegistry(
		NewTencentSource(client, ""),
		NewSinaSource(client, ""),
		NewPaperSource(cfg.PaperSeed),
	)
	if cfg.KiteAPIKey != "" && cfg.KiteAccessToken != "" {
		r.Register(NewKiteSource(cfg.KiteAPIKey, cfg.KiteAccessToken, client))
	}
	return r
}

// NormalizeCNSymbol adds the exchange prefix to a bare A-share code:
// 6/9 trade in Shanghai, 0/2/3 in Shenzhen and 4/8 in Beijing.
// Codes that already carry a prefix are lower-cased and returned.
func NormalizeCNSymbol(symbol string) string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if strings.HasPrefix(s, "sh") || strings.HasPrefix(s, "sz") || strings.HasPrefix(s, "bj") {
		return s
	}
	if len(s) != 6 {
		return s
	}
	switch s[0] {
	case '6', '9':
		return "sh" + s
	case '0', '2', '3':
		return "sz" + s
	case '4', '8':
		return "bj" + s
	}
	return s
}

// getGBK performs a GET and decodes the GBK body into UTF-8.
func getGBK(ctx context.Context, client *http.Client, source, url string, header http.Header) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", apperrors.ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: %s returned %s", apperrors.ErrSourceUnavailable, source, resp.Status)
	}

	body, err := io.ReadAll(transform.NewReader(io.LimitReader(resp.Body, 1<<20), simplifiedchinese.GBK.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("%w: reading body: %v", apperrors.ErrSourceUnavailable, err)
	}
	return string(body), nil
}

// quotedPayload extracts the text between the first pair of double quotes of
// a `v_xxx="...";` style response line.
func quotedPayload(body string) (string, bool) {
	start := strings.IndexByte(body, '"')
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(body[start+1:], '"')
	if end < 0 {
		return "", false
	}
	return body[start+1 : start+1+end], true
}
