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

const tencentBaseURL = "https://qt.gtimg.cn/q="

// Tencent quote fields, "~" separated.
const (
	tcName      = 1
	tcPrice     = 3
	tcPrevClose = 4
	tcVolume    = 6 // lots of 100 shares
	tcTime      = 30
	tcTurnover  = 37 // 10k CNY
	tcMinFields = 38
)

var shanghaiTZ = loadShanghai()

func loadShanghai() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// TencentSource reads the qt.gtimg.cn real-time quote feed.
type TencentSource struct {
	client  *http.Client
	baseURL string
}

// NewTencentSource creates the source. An empty baseURL uses the public endpoint.
func NewTencentSource(client *http.Client, baseURL string) *TencentSource {
	if baseURL == "" {
		baseURL = tencentBaseURL
	}
	return &TencentSource{client: client, baseURL: baseURL}
}

// Name returns the source name.
func (s *TencentSource) Name() string { return Tencent }

// GetQuote fetches the quote of one symbol.
func (s *TencentSource) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	code := NormalizeCNSymbol(symbol)
	body, err := getGBK(ctx, s.client, Tencent, s.baseURL+code, nil)
	if err != nil {
		return nil, err
	}
	return parseTencent(symbol, body)
}

func parseTencent(symbol, body string) (*models.Quote, error) {
	payload, ok := quotedPayload(body)
	if !ok || strings.TrimSpace(payload) == "" {
		// Unknown codes come back as v_pv_none_match="1";
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSymbolNotFound, symbol)
	}

	f := strings.Split(payload, "~")
	if len(f) < tcMinFields {
		return nil, fmt.Errorf("%w: tencent returned %d fields", apperrors.ErrMalformedQuote, len(f))
	}

	price, err := strconv.ParseFloat(f[tcPrice], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: price %q", apperrors.ErrMalformedQuote, f[tcPrice])
	}
	prevClose, _ := strconv.ParseFloat(f[tcPrevClose], 64)
	lots, _ := strconv.ParseFloat(f[tcVolume], 64)
	turnover, _ := strconv.ParseFloat(f[tcTurnover], 64)

	ts, err := time.ParseInLocation("20060102150405", f[tcTime], shanghaiTZ)
	if err != nil {
		ts = time.Time{}
	}

	return &models.Quote{
		Symbol:    symbol,
		Name:      f[tcName],
		LastPrice: price,
		PrevClose: prevClose,
		Volume:    int64(lots * 100),
		Turnover:  turnover * 10000,
		Timestamp: ts,
		Source:    Tencent,
	}, nil
}
