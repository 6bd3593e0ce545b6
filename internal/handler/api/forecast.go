package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"MarketPulse/internal/domain/models"
	icache "MarketPulse/internal/service/cache"
	"MarketPulse/internal/service/metrics"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/internal/usecase"
	pkgcache "MarketPulse/pkg/cache"
	xhttp "MarketPulse/pkg/http"
	xlogger "MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

const sentimentCacheTTL = 60 * time.Second

// ForecastHandler serves forecast and sentiment queries. Forecast requests
// are deduplicated and cached inside the dispatcher; sentiment responses are
// cheap to recompute and get a short byte-level cache here instead.
type ForecastHandler struct {
	logger     *xlogger.Logger
	dispatcher *usecase.ForecastDispatcher
	sentiment  *usecase.SentimentAggregator
	bytesCache icache.BytesCache
	rl         *ratelimit.Limiter
}

func NewForecastHandler(logger *xlogger.Logger, dispatcher *usecase.ForecastDispatcher, sentiment *usecase.SentimentAggregator) *ForecastHandler {
	metrics.Register()
	return &ForecastHandler{
		logger:     logger,
		dispatcher: dispatcher,
		sentiment:  sentiment,
		rl:         ratelimit.New(),
	}
}

// SetBytesCache injects a response cache for sentiment queries.
func (h *ForecastHandler) SetBytesCache(c icache.BytesCache) { h.bytesCache = c }

func (h *ForecastHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/forecast", h.Forecast)
	g.POST("/forecast", h.Forecast)
	g.GET("/sentiment", h.Sentiment)
}

func (h *ForecastHandler) Forecast(c echo.Context) error {
	start := time.Now()
	endpoint := "forecast"
	defer func() { metrics.RequestLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.ForecastHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":forecast", 5, 1) {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many forecast requests", http.StatusTooManyRequests))
	}

	ctx := c.Request().Context()
	if req.DeadlineMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.DeadlineMS)*time.Millisecond)
		defer cancel()
	}

	res, err := h.dispatcher.Request(ctx, models.ForecastRequest{
		Symbol:          req.Symbol,
		AssetClass:      models.AssetClass(req.AssetClass),
		HorizonDays:     req.HorizonDays,
		ModelPreference: models.Model(req.Model),
	})
	if err != nil {
		// a caller-imposed deadline detaches the computation rather than
		// cancelling it; the result lands in the cache for the next poll
		if errors.Is(err, context.DeadlineExceeded) && req.DeadlineMS > 0 {
			return xhttp.DataResponse(c, http.StatusAccepted, map[string]interface{}{
				"status":  "pending",
				"symbol":  req.Symbol,
				"message": "forecast still computing, poll again shortly",
			})
		}
		metrics.RequestErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("forecast request failed",
			xlogger.String("symbol", req.Symbol),
			xlogger.String("model", req.Model),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, forecastAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastHandler) Sentiment(c echo.Context) error {
	start := time.Now()
	endpoint := "sentiment"
	defer func() { metrics.RequestLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.SentimentHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":sentiment", 10, 2) {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many sentiment requests", http.StatusTooManyRequests))
	}

	cacheKey := pkgcache.GenerateKeyWithParams("sentiment", req.Symbol, req.AssetClass)
	if h.bytesCache != nil {
		if b, ok, err := h.bytesCache.GetBytes(cacheKey); err == nil && ok {
			var score models.SentimentScore
			if json.Unmarshal(b, &score) == nil {
				return xhttp.SuccessResponse(c, score)
			}
		}
	}

	score, err := h.sentiment.Score(c.Request().Context(), req.Symbol, models.AssetClass(req.AssetClass), req.WindowDays)
	if err != nil {
		metrics.RequestErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("sentiment request failed",
			xlogger.String("symbol", req.Symbol),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, forecastAppError(err))
	}

	if h.bytesCache != nil {
		if b, err := json.Marshal(score); err == nil {
			if err := h.bytesCache.SetBytes(cacheKey, b, sentimentCacheTTL); err != nil {
				h.logger.Warn("sentiment cache set failed", xlogger.Error(err))
			}
		}
	}
	return xhttp.SuccessResponse(c, score)
}

// forecastAppError maps the domain error taxonomy onto HTTP statuses.
// Structural failures are 4xx: retrying without changing the request cannot
// succeed. Transient ones are 503 and safe to retry.
func forecastAppError(err error) error {
	switch {
	case errors.Is(err, models.ErrInsufficientData):
		return xhttp.NewAppError("ERR_INSUFFICIENT_DATA", "symbol", "not enough historical data to forecast", http.StatusUnprocessableEntity).WithError(err)
	case errors.Is(err, models.ErrAllModelsFailed):
		return xhttp.NewAppError("ERR_ALL_MODELS_FAILED", "", "every forecasting model failed, retry later", http.StatusServiceUnavailable).WithError(err)
	case errors.Is(err, models.ErrModelUnavailable):
		return xhttp.NewAppError("ERR_MODEL_UNAVAILABLE", "model", "forecasting model unavailable", http.StatusServiceUnavailable).WithError(err)
	case errors.Is(err, models.ErrSourceUnknown):
		return xhttp.NotFoundError("unknown market source").WithError(err)
	default:
		return err
	}
}
