package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/domain/repository"
	"MarketPulse/internal/handler"
	"MarketPulse/internal/handler/api"
	"MarketPulse/internal/handler/ws"
	"MarketPulse/internal/middleware"
	internalrepo "MarketPulse/internal/repository"
	"MarketPulse/internal/service/binance"
	"MarketPulse/internal/service/broadcast"
	icache "MarketPulse/internal/service/cache"
	"MarketPulse/internal/service/carbon"
	"MarketPulse/internal/service/modelproc"
	"MarketPulse/internal/service/stocksim"
	"MarketPulse/internal/service/subscriptions"
	"MarketPulse/internal/service/tickcache"
	"MarketPulse/internal/usecase"
	pkgcache "MarketPulse/pkg/cache"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	pkgkafka "MarketPulse/pkg/kafka"
	"MarketPulse/pkg/metrics"
	"MarketPulse/pkg/server"

	applogger "MarketPulse/pkg/logger"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level, format := "info", "json"
	if cfg.Environment == "development" || cfg.Environment == "test" {
		level, format = "debug", "console"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: "stdout"})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideTickCache creates the in-memory latest-tick cache with per-source TTLs.
func ProvideTickCache(cfg *config.Config, l *applogger.Logger) *tickcache.Cache {
	return tickcache.New(map[models.Source]time.Duration{
		models.SourceCrypto: cfg.Sources.Crypto.CacheTTL,
		models.SourceEquity: cfg.Sources.Equity.CacheTTL,
		models.SourceCarbon: cfg.Sources.Carbon.CacheTTL,
	}, l)
}

// ProvideRegistry creates the subscription registry shared by all sources.
func ProvideRegistry() *subscriptions.Registry {
	return subscriptions.New()
}

// ProvideBroker creates the tick broadcast broker feeding WebSocket clients.
func ProvideBroker() *broadcast.Broker {
	return broadcast.NewBroker(256)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideTickStore creates the ClickHouse tick store and ensures its schema.
func ProvideTickStore(chClient *pkgch.Client, cfg *config.Config, l *applogger.Logger) (*internalrepo.CHTickStore, error) {
	if chClient == nil {
		return nil, nil
	}
	store := internalrepo.NewCHTickStore(chClient, cfg.ClickHouse.Table)
	store.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := chClient.InitSchema(ctx, store.Schema()); err != nil {
		_ = chClient.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideTickSink fans ticks out to every configured destination, fronted by
// the validating/throttling pipeline. Nil when no destination is configured;
// the stream managers then skip sink publishing.
func ProvideTickSink(producer *pkgkafka.Producer, store *internalrepo.CHTickStore, cfg *config.Config, m repository.Metrics) repository.TickSink {
	sinks := make([]repository.TickSink, 0, 2)
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaTickSink(producer, cfg.Kafka.Topic))
	}
	if store != nil {
		sinks = append(sinks, store)
	}
	if len(sinks) == 0 {
		return nil
	}
	var downstream repository.TickSink
	if len(sinks) == 1 {
		downstream = sinks[0]
	} else {
		downstream = internalrepo.NewMultiSink(sinks...)
	}
	return middleware.NewTickPipeline(downstream, m)
}

// ProvideResultCache creates the forecast result cache: Redis when
// configured, in-process memory otherwise.
func ProvideResultCache(cfg *config.Config) (pkgcache.Service, error) {
	if cfg.Redis.Enabled {
		host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
		if err != nil {
			return nil, fmt.Errorf("redis addr: %w", err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("redis port: %w", err)
		}
		rc, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisHost(host),
			pkgcache.WithRedisPort(port),
			pkgcache.WithRedisPassword(cfg.Redis.Password),
			pkgcache.WithRedisDB(cfg.Redis.DB),
			pkgcache.WithRedisPrefix("marketpulse"),
		)
		if err != nil {
			return nil, err
		}
		// forecast results are read far more often than written; keep a
		// small in-process layer in front of Redis
		return pkgcache.NewLayeredCache(rc), nil
	}
	return pkgcache.NewMemoryCache(), nil
}

// ProvideCryptoREST creates the Binance REST client used for snapshot
// seeding and crypto history.
func ProvideCryptoREST(cfg *config.Config) *binance.REST {
	return binance.NewREST(cfg.Sources.Crypto.RestURL, 10*time.Second)
}

// ProvideHistories maps each asset class to its history source. Equity
// history comes from the ClickHouse tick store when available and falls back
// to the deterministic simulator otherwise.
func ProvideHistories(cfg *config.Config, rest *binance.REST, store *internalrepo.CHTickStore) map[models.AssetClass]repository.HistoryProvider {
	histories := map[models.AssetClass]repository.HistoryProvider{
		models.AssetCrypto: rest,
	}
	if store != nil {
		histories[models.AssetEquity] = store
	} else {
		histories[models.AssetEquity] = stocksim.NewHistory(cfg.Sources.Equity.Seed)
	}
	return histories
}

// ProvideModelRunners builds the model chain: the two subprocess models plus
// the in-process trend model that is always available.
func ProvideModelRunners(cfg *config.Config, l *applogger.Logger) []repository.ModelRunner {
	prophetCmd := cfg.Forecast.Models.ProphetCommand
	if len(prophetCmd) == 0 {
		prophetCmd = []string{"python3", "models/prophet_runner.py"}
	}
	arimaCmd := cfg.Forecast.Models.ArimaCommand
	if len(arimaCmd) == 0 {
		arimaCmd = []string{"python3", "models/arima_runner.py"}
	}
	return []repository.ModelRunner{
		modelproc.NewAdapter(models.ModelPrimary, prophetCmd[0], prophetCmd[1:], cfg.Forecast.ModelTimeout, l),
		modelproc.NewAdapter(models.ModelSecondary, arimaCmd[0], arimaCmd[1:], cfg.Forecast.ModelTimeout, l),
		modelproc.NewTrendModel(),
	}
}

// ProvideForecastDispatcher creates the forecast dispatcher.
func ProvideForecastDispatcher(
	histories map[models.AssetClass]repository.HistoryProvider,
	runners []repository.ModelRunner,
	resultCache pkgcache.Service,
	cfg *config.Config,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ForecastDispatcher {
	return usecase.NewForecastDispatcher(histories, runners, resultCache, cfg.Forecast.ResultCacheTTL, cfg.Forecast.MinHistoryDays, m, l)
}

// ProvideSentimentAggregator creates the sentiment aggregator.
func ProvideSentimentAggregator(
	histories map[models.AssetClass]repository.HistoryProvider,
	m repository.Metrics,
) *usecase.SentimentAggregator {
	return usecase.NewSentimentAggregator(histories, m)
}

// ProvideManagers creates one stream manager per enabled source.
func ProvideManagers(
	cfg *config.Config,
	cache *tickcache.Cache,
	registry *subscriptions.Registry,
	broker *broadcast.Broker,
	m repository.Metrics,
	l *applogger.Logger,
	sink repository.TickSink,
	rest *binance.REST,
) map[models.Source]*usecase.StreamManager {
	shared := []usecase.StreamManagerOption{
		usecase.WithReconnect(cfg.Sources.Reconnect.Delay, cfg.Sources.Reconnect.MaxAttempts),
		usecase.WithMaxRuntime(cfg.Sources.MaxRuntime),
	}
	if sink != nil {
		shared = append(shared, usecase.WithSink(sink))
	}

	managers := make(map[models.Source]*usecase.StreamManager, 3)
	if cfg.Sources.Crypto.Enabled {
		stream := binance.New(cfg.Sources.Crypto.WebSocketURL, cfg.Sources.Crypto.PingInterval)
		opts := append([]usecase.StreamManagerOption{}, shared...)
		opts = append(opts, usecase.WithSeed(rest.Snapshot))
		managers[models.SourceCrypto] = usecase.NewStreamManager(
			models.SourceCrypto, stream, cache, registry, broker, m, l, opts...)
	}
	if cfg.Sources.Equity.Enabled {
		stream := stocksim.New(cfg.Sources.Equity.Interval, cfg.Sources.Equity.Seed)
		managers[models.SourceEquity] = usecase.NewStreamManager(
			models.SourceEquity, stream, cache, registry, broker, m, l, shared...)
	}
	if cfg.Sources.Carbon.Enabled {
		stream := carbon.New(cfg.Sources.Carbon.BaseURL, cfg.Sources.Carbon.PollInterval, 15*time.Second)
		managers[models.SourceCarbon] = usecase.NewStreamManager(
			models.SourceCarbon, stream, cache, registry, broker, m, l, shared...)
	}
	return managers
}

// ProvideHub creates the WebSocket hub.
func ProvideHub(l *applogger.Logger, broker *broadcast.Broker, cache *tickcache.Cache) *ws.Hub {
	return ws.NewHub(l, broker, cache)
}

// ProvideRouter assembles all HTTP route registrars.
func ProvideRouter(
	cfg *config.Config,
	l *applogger.Logger,
	cache *tickcache.Cache,
	registry *subscriptions.Registry,
	managers map[models.Source]*usecase.StreamManager,
	dispatcher *usecase.ForecastDispatcher,
	sentiment *usecase.SentimentAggregator,
	hub *ws.Hub,
) *handler.Router {
	market := api.NewMarketHandler(l, cache, registry, managers, nil)
	forecast := api.NewForecastHandler(l, dispatcher, sentiment)
	if cfg.Redis.Enabled {
		forecast.SetBytesCache(icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	} else {
		forecast.SetBytesCache(icache.NewTTLCache())
	}
	return handler.NewRouter(market, forecast, hub)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	managers map[models.Source]*usecase.StreamManager,
	hub *ws.Hub,
	router *handler.Router,
	sink repository.TickSink,
	chClient *pkgch.Client,
	resultCache pkgcache.Service,
) *server.App {
	return server.New(cfg, l, managers, hub, router, sink, chClient, resultCache)
}
