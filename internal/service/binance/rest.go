package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"MarketPulse/internal/domain/models"
	xhttp "MarketPulse/pkg/http"
)

// REST wraps the Binance REST endpoints used for seeding and history.
type REST struct {
	baseURL string
	client  *xhttp.Client
}

func NewREST(baseURL string, timeout time.Duration) *REST {
	return &REST{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

type ticker24h struct {
	Symbol        string `json:"symbol"`
	LastPrice     string `json:"lastPrice"`
	PriceChange   string `json:"priceChange"`
	PriceChangePc string `json:"priceChangePercent"`
	HighPrice     string `json:"highPrice"`
	LowPrice      string `json:"lowPrice"`
	Volume        string `json:"volume"`
	CloseTime     int64  `json:"closeTime"`
}

// Snapshot fetches 24h stats for one symbol and normalizes it into a tick.
// Used to seed the cache on connect before the stream delivers live frames.
func (r *REST) Snapshot(ctx context.Context, symbol string) (*models.Tick, error) {
	var tk ticker24h
	err := r.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         r.baseURL + "/api/v3/ticker/24hr",
		QueryParams: map[string][]string{"symbol": {symbol}},
	}, &tk)
	if err != nil {
		return nil, fmt.Errorf("ticker 24hr %s: %w", symbol, err)
	}

	price, err := strconv.ParseFloat(tk.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parse lastPrice: %w", err)
	}
	change, _ := strconv.ParseFloat(tk.PriceChange, 64)
	changePct, _ := strconv.ParseFloat(tk.PriceChangePc, 64)
	high, _ := strconv.ParseFloat(tk.HighPrice, 64)
	low, _ := strconv.ParseFloat(tk.LowPrice, 64)
	vol, _ := strconv.ParseFloat(tk.Volume, 64)

	return &models.Tick{
		Source:        models.SourceCrypto,
		Symbol:        tk.Symbol,
		Price:         price,
		Change:        change,
		ChangePercent: changePct,
		High:          high,
		Low:           low,
		Volume:        vol,
		Timestamp:     time.UnixMilli(tk.CloseTime),
	}, nil
}

// History implements repository.HistoryProvider on top of the daily klines
// endpoint. Klines arrive as positional arrays; index 0 is the open time and
// index 4 the close price.
func (r *REST) History(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, error) {
	if days <= 0 {
		days = 365
	}
	if days > 1000 {
		days = 1000
	}

	var raw []json.RawMessage
	err := r.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    r.baseURL + "/api/v3/klines",
		QueryParams: map[string][]string{
			"symbol":   {symbol},
			"interval": {"1d"},
			"limit":    {strconv.Itoa(days)},
		},
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("klines %s: %w", symbol, err)
	}

	out := make([]models.HistoryPoint, 0, len(raw))
	for _, row := range raw {
		var fields []json.RawMessage
		if err := json.Unmarshal(row, &fields); err != nil || len(fields) < 5 {
			continue
		}
		var openTimeMS int64
		if err := json.Unmarshal(fields[0], &openTimeMS); err != nil {
			continue
		}
		var closeStr string
		if err := json.Unmarshal(fields[4], &closeStr); err != nil {
			continue
		}
		closePrice, err := strconv.ParseFloat(closeStr, 64)
		if err != nil || closePrice <= 0 {
			continue
		}
		var volume float64
		if len(fields) > 5 {
			var volStr string
			if err := json.Unmarshal(fields[5], &volStr); err == nil {
				volume, _ = strconv.ParseFloat(volStr, 64)
			}
		}
		out = append(out, models.HistoryPoint{
			Date:   time.UnixMilli(openTimeMS).UTC().Truncate(24 * time.Hour),
			Value:  closePrice,
			Volume: volume,
		})
	}
	return out, nil
}
