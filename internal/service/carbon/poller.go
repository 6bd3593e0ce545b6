package carbon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	xhttp "MarketPulse/pkg/http"
	"MarketPulse/pkg/util"
)

// Poller implements a carbon-credit MarketStream by polling a registry-style
// price endpoint. Carbon data moves slowly; the poll interval is long and
// entries stay fresh for an hour.
type Poller struct {
	baseURL  string
	interval time.Duration
	client   *xhttp.Client

	mu        sync.Mutex
	connected bool
	symbols   map[string]struct{}
}

func New(baseURL string, interval time.Duration, timeout time.Duration) drepo.MarketStream {
	return &Poller{
		baseURL:  baseURL,
		interval: interval,
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		symbols:  make(map[string]struct{}),
	}
}

type creditQuote struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change    float64 `json:"change"`
	Volume    float64 `json:"volume"`
	UpdatedAt string  `json:"updatedAt"`
}

func (p *Poller) Connect(ctx context.Context) error {
	// probe once so a dead endpoint surfaces as a connection error instead
	// of silently polling into the void
	if _, err := p.fetch(ctx); err != nil {
		return &models.ConnectionError{Source: models.SourceCarbon, Err: err}
	}
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

func (p *Poller) Subscribe(_ context.Context, symbols []string) error {
	p.mu.Lock()
	for _, s := range symbols {
		p.symbols[s] = struct{}{}
	}
	p.mu.Unlock()
	return nil
}

func (p *Poller) Unsubscribe(_ context.Context, symbols []string) error {
	p.mu.Lock()
	for _, s := range symbols {
		delete(p.symbols, s)
	}
	p.mu.Unlock()
	return nil
}

func (p *Poller) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 64)
	errs := make(chan error, 4)

	go func() {
		defer close(ticks)
		defer close(errs)

		// first poll immediately, then on the interval
		p.poll(ctx, ticks, errs)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.poll(ctx, ticks, errs)
			}
		}
	}()

	return ticks, errs
}

func (p *Poller) poll(ctx context.Context, ticks chan<- *models.Tick, errs chan<- error) {
	quotes, err := p.fetch(ctx)
	if err != nil {
		select {
		case errs <- &models.ConnectionError{Source: models.SourceCarbon, Err: err}:
		default:
		}
		return
	}

	p.mu.Lock()
	tracked := make(map[string]struct{}, len(p.symbols))
	for s := range p.symbols {
		tracked[s] = struct{}{}
	}
	p.mu.Unlock()

	for _, q := range quotes {
		if _, ok := tracked[q.Symbol]; !ok {
			continue
		}
		t, merr := normalize(q)
		if merr != nil {
			select {
			case errs <- merr:
			default:
			}
			continue
		}
		select {
		case ticks <- t:
		default:
		}
	}
}

func (p *Poller) fetch(ctx context.Context) ([]creditQuote, error) {
	var quotes []creditQuote
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    p.baseURL + "/v1/credits/prices",
	}, &quotes)
	if err != nil {
		return nil, fmt.Errorf("poll credits: %w", err)
	}
	return quotes, nil
}

func normalize(q creditQuote) (*models.Tick, *models.MalformedMessageError) {
	if q.Symbol == "" || q.Price <= 0 {
		return nil, &models.MalformedMessageError{Source: models.SourceCarbon, Reason: "missing symbol or non-positive price"}
	}
	// registries disagree on timestamp formats; accept RFC3339 or unix seconds
	ts, ok := util.ParseTime(q.UpdatedAt)
	if !ok {
		return nil, &models.MalformedMessageError{Source: models.SourceCarbon, Reason: "bad updatedAt: " + q.UpdatedAt}
	}
	changePct := 0.0
	if prev := q.Price - q.Change; prev != 0 {
		changePct = q.Change / prev * 100
	}
	return &models.Tick{
		Source:        models.SourceCarbon,
		Symbol:        q.Symbol,
		Price:         q.Price,
		Change:        q.Change,
		ChangePercent: changePct,
		Volume:        q.Volume,
		Timestamp:     ts,
	}, nil
}

func (p *Poller) Close() error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

func (p *Poller) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}
