package repository

import (
	"context"

	"MarketPulse/internal/domain/models"
)

// MarketStream is one external source's live or poll-based feed.
// Implementations normalize provider frames into Ticks; the stream manager
// owns reconnection and lifecycle on top of this contract.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Unsubscribe(ctx context.Context, symbols []string) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Close() error
	IsConnected() bool
}

// HistoryProvider fetches a daily historical price series for a symbol,
// covering at least the requested number of days where available.
type HistoryProvider interface {
	History(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, error)
}

// ModelRunner bridges to one forecasting model family. Run is bounded by the
// context deadline; a failed attempt yields an error wrapping
// models.ErrModelUnavailable and the dispatcher falls back to the next model.
type ModelRunner interface {
	Name() models.Model
	Run(ctx context.Context, series []models.HistoryPoint, horizonDays int, params map[string]any) (*models.ForecastResult, error)
}

// TickSink receives every normalized tick off the hot path, e.g. a Kafka
// topic consumed by downstream systems or a ClickHouse tick store.
type TickSink interface {
	Publish(ctx context.Context, t *models.Tick) error
	Close() error
}

type Metrics interface {
	RecordTick(source, symbol string)
	RecordError(kind string)
	RecordLastPrice(source, symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordReconnect(source string)
	RecordModelRun(model, outcome string, seconds float64)
}
