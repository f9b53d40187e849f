package sources

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "daily-stock-analysis/internal/errors"
	"daily-stock-analysis/internal/models"
)

const (
	sinaBaseURL = "https://hq.sinajs.cn/list="
	sinaReferer = "https://finance.sina.com.cn"
)

// Sina quote fields, "," separated.
const (
	snName      = 0
	snPrevClose = 2
	snPrice     = 3
	snVolume    = 8 // shares
	snTurnover  = 9 // CNY
	snDate      = 30
	snTime      = 31
	snMinFields = 32
)

// SinaSource reads the hq.sinajs.cn real-time quote feed.
type SinaSource struct {
	client  *http.Client
	baseURL string
}

// NewSinaSource creates the source. An empty baseURL uses the public endpoint.
func NewSinaSource(client *http.Client, baseURL string) *SinaSource {
	if baseURL == "" {
		baseURL = sinaBaseURL
	}
	return &SinaSource{client: client, baseURL: baseURL}
}

// Name returns the source name.
func (s *SinaSource) Name() string { return Sina }

// GetQuote fetches the quote of one symbol.
func (s *SinaSource) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	code := NormalizeCNSymbol(symbol)
	// The feed rejects requests without a finance.sina.com.cn referer.
	header := http.Header{"Referer": []string{sinaReferer}}
	body, err := getGBK(ctx, s.client, Sina, s.baseURL+code, header)
	if err != nil {
		return nil, err
	}
	return parseSina(symbol, body)
}

func parseSina(symbol, body string) (*models.Quote, error) {
	payload, ok := quotedPayload(body)
	if !ok || strings.TrimSpace(payload) == "" {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSymbolNotFound, symbol)
	}

	f := strings.Split(payload, ",")
	if len(f) < snMinFields {
		return nil, fmt.Errorf("%w: sina returned %d fields", apperrors.ErrMalformedQuote, len(f))
	}

	price, err := strconv.ParseFloat(f[snPrice], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: price %q", apperrors.ErrMalformedQuote, f[snPrice])
	}
	prevClose, _ := strconv.ParseFloat(f[snPrevClose], 64)
	volume, _ := strconv.ParseFloat(f[snVolume], 64)
	turnover, _ := strconv.ParseFloat(f[snTurnover], 64)

	ts, err := time.ParseInLocation("2006-01-02 15:04:05", f[snDate]+" "+f[snTime], shanghaiTZ)
	if err != nil {
		ts = time.Time{}
	}

	return &models.Quote{
		Symbol:    symbol,
		Name:      f[snName],
		LastPrice: price,
		PrevClose: prevClose,
		Volume:    int64(volume),
		Turnover:  turnover,
		Timestamp: ts,
		Source:    Sina,
	}, nil
}
