package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/subscriptions"
	"MarketPulse/internal/service/tickcache"
	"MarketPulse/internal/usecase"
	xhttp "MarketPulse/pkg/http"
	xlogger "MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// MarketHandler serves the read side of the market cache and the control
// operations of the per-source stream managers.
type MarketHandler struct {
	logger   *xlogger.Logger
	cache    *tickcache.Cache
	registry *subscriptions.Registry
	managers map[models.Source]*usecase.StreamManager

	// baseCtx is the application lifetime context. Control operations start
	// goroutines that must outlive the HTTP request that triggered them.
	baseCtx context.Context
}

func NewMarketHandler(
	logger *xlogger.Logger,
	cache *tickcache.Cache,
	registry *subscriptions.Registry,
	managers map[models.Source]*usecase.StreamManager,
	baseCtx context.Context,
) *MarketHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &MarketHandler{
		logger:   logger,
		cache:    cache,
		registry: registry,
		managers: managers,
		baseCtx:  baseCtx,
	}
}

func (h *MarketHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/market")
	g.GET("", h.Overview)
	g.GET("/:source", h.List)
	g.GET("/:source/status", h.Status)
	g.GET("/:source/:symbol", h.Latest)
	g.POST("/:source/start", h.Start)
	g.POST("/:source/stop", h.Stop)
	g.POST("/:source/restart", h.Restart)
	g.POST("/:source/subscribe", h.Subscribe)
	g.POST("/:source/unsubscribe", h.Unsubscribe)
}

// tickView is a cache entry decorated with staleness for API consumers.
type tickView struct {
	models.Tick
	FetchedAt time.Time `json:"fetchedAt"`
	Stale     bool      `json:"stale"`
}

type sourceStatusView struct {
	Source            models.Source `json:"source"`
	Phase             models.Phase  `json:"phase"`
	ReconnectAttempts int           `json:"reconnectAttempts"`
	StartedAt         time.Time     `json:"startedAt,omitempty"`
	LastError         string        `json:"lastError,omitempty"`
	Symbols           []string      `json:"symbols"`
}

// Overview reports every source's connection state in one call.
func (h *MarketHandler) Overview(c echo.Context) error {
	out := make([]sourceStatusView, 0, len(h.managers))
	for src, m := range h.managers {
		st := m.Status()
		out = append(out, sourceStatusView{
			Source:            src,
			Phase:             st.Phase,
			ReconnectAttempts: st.ReconnectAttempts,
			StartedAt:         st.StartedAt,
			LastError:         st.LastError,
			Symbols:           h.registry.List(src),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return xhttp.SuccessResponse(c, out)
}

// List returns all cached ticks for one source, flagging stale entries
// instead of hiding them.
func (h *MarketHandler) List(c echo.Context) error {
	src, err := h.source(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	entries := h.cache.GetAll(src)
	out := make([]tickView, 0, len(entries))
	for _, e := range entries {
		out = append(out, tickView{Tick: e.Tick, FetchedAt: e.FetchedAt, Stale: h.cache.IsStale(e)})
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *MarketHandler) Latest(c echo.Context) error {
	src, err := h.source(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	symbol := c.Param("symbol")
	e, ok := h.cache.Get(src, symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no data for %s/%s", src, symbol))
	}
	return xhttp.SuccessResponse(c, tickView{Tick: e.Tick, FetchedAt: e.FetchedAt, Stale: h.cache.IsStale(e)})
}

func (h *MarketHandler) Status(c echo.Context) error {
	src, m, err := h.manager(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	st := m.Status()
	return xhttp.SuccessResponse(c, sourceStatusView{
		Source:            src,
		Phase:             st.Phase,
		ReconnectAttempts: st.ReconnectAttempts,
		StartedAt:         st.StartedAt,
		LastError:         st.LastError,
		Symbols:           h.registry.List(src),
	})
}

func (h *MarketHandler) Start(c echo.Context) error {
	src, m, err := h.manager(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	req := &models.ControlHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = h.registry.List(src)
	}
	if err := m.Start(h.baseCtx, symbols); err != nil {
		h.logger.Error("source start failed", xlogger.String("source", string(src)), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.logger.Info("source started", xlogger.String("source", string(src)), xlogger.Strings("symbols", symbols))
	return h.Status(c)
}

func (h *MarketHandler) Stop(c echo.Context) error {
	src, m, err := h.manager(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	if err := m.Stop(); err != nil {
		h.logger.Warn("source stop reported error", xlogger.String("source", string(src)), xlogger.Error(err))
	}
	return h.Status(c)
}

func (h *MarketHandler) Restart(c echo.Context) error {
	src, m, err := h.manager(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	if err := m.Restart(h.baseCtx); err != nil {
		h.logger.Error("source restart failed", xlogger.String("source", string(src)), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.logger.Info("source restarted", xlogger.String("source", string(src)))
	return h.Status(c)
}

// Subscribe registers symbols; a running manager picks them up live through
// the registry watcher, a stopped one keeps them for the next start.
func (h *MarketHandler) Subscribe(c echo.Context) error {
	src, err := h.source(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	req := &models.ControlHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if len(req.Symbols) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("symbols required"))
	}
	added := 0
	for _, s := range req.Symbols {
		if h.registry.Add(src, s) {
			added++
		}
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"added":   added,
		"symbols": h.registry.List(src),
	})
}

func (h *MarketHandler) Unsubscribe(c echo.Context) error {
	src, err := h.source(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	req := &models.ControlHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	removed := 0
	for _, s := range req.Symbols {
		if h.registry.Remove(src, s) {
			removed++
		}
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"removed": removed,
		"symbols": h.registry.List(src),
	})
}

func (h *MarketHandler) source(c echo.Context) (models.Source, error) {
	src := models.Source(c.Param("source"))
	if !models.IsValidSource(src) {
		return "", xhttp.NewAppError("ERR_SOURCE_UNKNOWN", "source", "unknown market source", http.StatusNotFound).
			WithParam("source", string(src)).
			WithError(models.ErrSourceUnknown)
	}
	return src, nil
}

func (h *MarketHandler) manager(c echo.Context) (models.Source, *usecase.StreamManager, error) {
	src, err := h.source(c)
	if err != nil {
		return "", nil, err
	}
	m, ok := h.managers[src]
	if !ok {
		return "", nil, xhttp.NotFoundErrorf("source %s has no stream manager", src)
	}
	return src, m, nil
}
