package sources

import (
	"context"
	"fmt"
	"net/http"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "daily-stock-analysis/internal/errors"
	"daily-stock-analysis/internal/models"
)

// kiteQuoter is the part of the Kite Connect client the source uses.
type kiteQuoter interface {
	GetQuote(instruments ...string) (kiteconnect.Quote, error)
}

// KiteSource reads quotes from Zerodha Kite Connect. Symbols use the
// "EXCHANGE:TRADINGSYMBOL" form, e.g. "NSE:INFY".
type KiteSource struct {
	client kiteQuoter
}

// NewKiteSource creates an authenticated Kite source.
func NewKiteSource(apiKey, accessToken string, httpClient *http.Client) *KiteSource {
	client := kiteconnect.New(apiKey)
	client.SetAccessToken(accessToken)
	if httpClient != nil {
		client.SetHTTPClient(httpClient)
	}
	return &KiteSource{client: client}
}

// Name returns the source name.
func (s *KiteSource) Name() string { return Kite }

// GetQuote fetches the quote of one instrument. The Kite client has no
// context support; the fetcher's timeout bounds the call.
func (s *KiteSource) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	quotes, err := s.client.GetQuote(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: kite: %v", apperrors.ErrSourceUnavailable, err)
	}

	q, ok := quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSymbolNotFound, symbol)
	}

	return &models.Quote{
		Symbol:    symbol,
		LastPrice: q.LastPrice,
		PrevClose: q.OHLC.Close,
		Volume:    int64(q.Volume),
		Turnover:  q.AveragePrice * float64(q.Volume),
		Timestamp: q.LastTradeTime.Time,
		Source:    Kite,
	}, nil
}
