package di

import (
	"context"
	"fmt"
	"time"

	"StockIt/internal/domain/repository"
	dsvc "StockIt/internal/domain/service"
	"StockIt/internal/handler/api"
	mid "StockIt/internal/middleware"
	internalrepo "StockIt/internal/repository"
	"StockIt/internal/scheduler"
	icache "StockIt/internal/service/cache"
	"StockIt/internal/service/finnhub"
	"StockIt/internal/service/polygon"
	"StockIt/internal/service/ratelimit"
	"StockIt/internal/services/analytics"
	"StockIt/internal/usecase"
	pkgcache "StockIt/pkg/cache"
	pkgch "StockIt/pkg/clickhouse"
	"StockIt/pkg/config"
	xhttp "StockIt/pkg/http"
	pkgkafka "StockIt/pkg/kafka"
	applogger "StockIt/pkg/logger"
	"StockIt/pkg/metrics"
	"StockIt/pkg/queue"
	"StockIt/pkg/server"
)

func noop() {}

func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		CollectWarn: cfg.Logging.CollectWarn,
	})
}

func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if cfg.Metrics.Disabled {
		return metrics.Nop{}
	}
	return metrics.New()
}

// ProvideRedisCache connects to Redis when the cache or the job queue needs it.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, func(), error) {
	if cfg.Cache.Type == "memory" && cfg.Schedule.Queue != "redis" {
		return nil, noop, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Cache.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Cache.Redis.Password),
		pkgcache.WithRedisDB(cfg.Cache.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

func ProvideCache(cfg *config.Config, rc *pkgcache.RedisCache) (pkgcache.Service, func()) {
	switch cfg.Cache.Type {
	case "redis":
		return rc, noop
	case "layered":
		lc := pkgcache.NewLayeredCache(rc,
			pkgcache.WithLayeredMemorySize(cfg.Cache.MaxEntries),
			pkgcache.WithLayeredMemoryTTL(time.Minute),
		)
		return lc, func() { _ = lc.Close() }
	default:
		mc := pkgcache.NewMemoryCache(
			pkgcache.WithMemoryMaxSize(cfg.Cache.MaxEntries),
			pkgcache.WithMemoryCleanup(cfg.Cache.CleanupInterval),
		)
		return mc, func() { _ = mc.Close() }
	}
}

func ProvidePolygonClient(cfg *config.Config, l *applogger.Logger, m repository.Metrics) *polygon.Client {
	return polygon.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey,
		polygon.WithHTTPClient(xhttp.NewClient(xhttp.WithTimeout(cfg.Provider.Timeout), xhttp.WithUserAgent("stockit/1.0"))),
		polygon.WithRetry(cfg.Provider.MaxAttempts, cfg.Provider.BaseDelay, cfg.Provider.MaxDelay),
		polygon.WithMaxJitter(cfg.Provider.MaxJitter),
		polygon.WithLogger(l),
		polygon.WithMetrics(m),
	)
}

func ProvideBarSource(store pkgcache.Service, client *polygon.Client, cfg *config.Config, l *applogger.Logger, m repository.Metrics) repository.BarSource {
	return icache.NewHistoricalDataCache(store, client,
		icache.WithTTL(cfg.Cache.HistoricalTTL),
		icache.WithLogger(l),
		icache.WithMetrics(m),
	)
}

func ProvideBlueChipService(client *polygon.Client, store pkgcache.Service, cfg *config.Config, l *applogger.Logger, m repository.Metrics) *usecase.BlueChipService {
	return usecase.NewBlueChipService(client, store,
		usecase.WithBlueChipTTL(cfg.Cache.BlueChipTTL),
		usecase.WithTickerLimit(cfg.Provider.TickerLimit),
		usecase.WithBreaker(cfg.Provider.BreakerTrips, cfg.Provider.BreakerOpen),
		usecase.WithBlueChipLogger(l),
		usecase.WithBlueChipMetrics(m),
	)
}

func ProvideScanner(l *applogger.Logger, m repository.Metrics) *usecase.OpportunityScanner {
	return usecase.NewOpportunityScanner(l, m)
}

func ProvideBulkScanner(src repository.BarSource, scanner *usecase.OpportunityScanner, cfg *config.Config, l *applogger.Logger) *usecase.BulkScanner {
	return usecase.NewBulkScanner(src, scanner,
		usecase.WithChunking(cfg.Scanner.ChunkSize, cfg.Scanner.ChunkDelay),
		usecase.WithMarketSymbol(cfg.Scanner.MarketSymbol),
		usecase.WithTimeframe(repository.NormalizeRange(cfg.Scanner.Range), repository.NormalizeInterval(cfg.Scanner.Interval)),
		usecase.WithBulkLogger(l),
	)
}

func ProvideStreamDialer(cfg *config.Config, l *applogger.Logger) repository.StreamDialer {
	return finnhub.NewDialer(cfg.Stream.URLTemplate, cfg.Stream.APIKey,
		finnhub.WithSubscribeMessage(!cfg.Stream.SkipSubscribe),
		finnhub.WithHandshakeTimeout(cfg.Stream.HandshakeTimeout),
		finnhub.WithPingInterval(cfg.Stream.PingInterval),
		finnhub.WithDialerLogger(l),
	)
}

func ProvideSubscriptionManager(d repository.StreamDialer, cfg *config.Config, l *applogger.Logger, m repository.Metrics) *usecase.SubscriptionManager {
	return usecase.NewSubscriptionManager(d,
		usecase.WithBatching(cfg.Stream.BatchSize, cfg.Stream.BatchDelay),
		usecase.WithReconnect(cfg.Stream.MaxReconnectAttempts, cfg.Stream.ReconnectDelay),
		usecase.WithManagerLogger(l),
		usecase.WithManagerMetrics(m),
	)
}

// needsClickHouse reports whether scans are archived by this process, either
// directly or through the scans topic consumer.
func needsClickHouse(cfg *config.Config) bool {
	return cfg.Backend.Type == usecase.BackendClickHouse || cfg.Kafka.Consumer.Enabled
}

func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !needsClickHouse(cfg) {
		return nil, noop, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideScanArchive creates the snapshot table and returns the archive, or
// nil when ClickHouse is not in use.
func ProvideScanArchive(client *pkgch.Client, cfg *config.Config) (repository.ScanArchive, error) {
	if client == nil {
		return nil, nil
	}
	archive := internalrepo.NewClickHouseScanArchive(client.DB(), "", cfg.Backend.BatchSize)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, archive.Schema()); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return archive, nil
}

func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if cfg.Backend.Type != usecase.BackendKafka && !cfg.Logging.Collector.Enabled {
		return nil, noop, nil
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil, fmt.Errorf("kafka producer: no brokers configured")
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, noop, nil
}

// ProvideKafkaPublisher also attaches the log collector when it is enabled.
// The publisher owns the producer and is closed by the update processor.
func ProvideKafkaPublisher(producer *pkgkafka.Producer, cfg *config.Config, l *applogger.Logger) *internalrepo.KafkaPublisher {
	if producer == nil {
		return nil
	}
	pub := internalrepo.NewKafkaPublisher(producer, cfg.Kafka.UpdatesTopic, cfg.Kafka.ScansTopic)
	if !cfg.Logging.Collector.Enabled {
		return pub
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   cfg.Logging.Collector.Interval,
		CountThreshold: cfg.Logging.Collector.CountThreshold,
		Topic:          cfg.Logging.Collector.Topic,
		Publisher:      pub,
		PublishTimeout: 5 * time.Second,
	})
	return pub
}

// ProvideUpdateProcessor detaches the log collector before the producer is
// closed so its final batch still goes out.
func ProvideUpdateProcessor(pub *internalrepo.KafkaPublisher, archive repository.ScanArchive, m repository.Metrics, cfg *config.Config, l *applogger.Logger) (*usecase.UpdateProcessor, func()) {
	var p repository.Publisher
	if pub != nil {
		p = pub
	}
	proc := usecase.NewUpdateProcessor(p, archive, m, cfg.Backend.Type)
	return proc, func() {
		l.RemoveCollector()
		proc.Close()
	}
}

func ProvidePipeline(proc *usecase.UpdateProcessor, m repository.Metrics, cfg *config.Config) *mid.RealtimePipeline {
	return mid.NewRealtimePipeline(proc, m,
		mid.WithMaxRPS(cfg.Reconciler.MaxPublishRPS),
		mid.WithBufferSize(2000),
	)
}

func ProvideOpportunityFeed(manager *usecase.SubscriptionManager, pipe *mid.RealtimePipeline, cfg *config.Config, l *applogger.Logger, m repository.Metrics) *usecase.OpportunityFeed {
	return usecase.NewOpportunityFeed(manager, pipe, usecase.ReconcileMode(cfg.Reconciler.Mode), cfg.Reconciler.FlushInterval,
		usecase.WithFeedLogger(l),
		usecase.WithFeedMetrics(m),
	)
}

func ProvideForecaster(cfg *config.Config, l *applogger.Logger) dsvc.Forecaster {
	return analytics.NewHTTPForecaster(cfg.Forecast.URL, cfg.Forecast.Timeout, l)
}

func ProvideForecastUseCase(src repository.BarSource, f dsvc.Forecaster) *usecase.ForecastUseCase {
	return usecase.NewForecastUseCase(src, f)
}

func ProvideScanJob(bulk *usecase.BulkScanner, chips *usecase.BlueChipService, proc *usecase.UpdateProcessor, feed *usecase.OpportunityFeed, l *applogger.Logger) *usecase.ScanJob {
	return usecase.NewScanJob(bulk, chips, proc, feed, l)
}

// ProvideJobQueue returns the Redis queue when configured, otherwise a
// runner that handles jobs in the caller.
func ProvideJobQueue(cfg *config.Config, rc *pkgcache.RedisCache, job *usecase.ScanJob, l *applogger.Logger) queue.QueueService {
	if cfg.Schedule.Queue != "redis" || rc == nil {
		return queue.NewInline(job)
	}
	q := queue.NewRedisQueue(l, queue.QueueConfig{
		Workers:    cfg.Schedule.Workers,
		RetryLimit: cfg.Schedule.RetryLimit,
		RetryDelay: cfg.Schedule.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Cache.Redis.Prefix+":queue"))
	q.RegisterJob(job)
	return q
}

func ProvideScheduler(cfg *config.Config, q queue.QueueService, l *applogger.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Schedule.Enabled {
		return nil, nil
	}
	s := scheduler.New(l, q, cfg.Schedule.JobTimeout)
	payload := usecase.ScanJobPayload{
		Symbols: cfg.Scanner.Symbols,
		MinGain: cfg.Scanner.MinGain,
		Track:   cfg.Schedule.Track,
	}
	if err := s.Schedule(cfg.Schedule.ScanCron, usecase.ScanJobType, payload); err != nil {
		return nil, err
	}
	return s, nil
}

func ProvideJobs(q queue.QueueService, s *scheduler.Scheduler) *server.Jobs {
	return &server.Jobs{Dispatch: q, Scheduler: s}
}

// ProvideArchiver builds the scans topic consumer when it is enabled.
func ProvideArchiver(cfg *config.Config, archive repository.ScanArchive, m repository.Metrics, l *applogger.Logger) (*server.Archiver, error) {
	if !cfg.Kafka.Consumer.Enabled || archive == nil {
		return &server.Archiver{}, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.HookChain{pkgkafka.JSONHook{}, pkgkafka.LoggingHook{Log: l}})
	return &server.Archiver{
		Consumer: consumer,
		Handler:  usecase.NewKafkaScansHandler(cfg.Kafka.ScansTopic, archive, m),
	}, nil
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if cfg.RateLimit.Capacity <= 0 {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec)
}

func ProvideHTTPHandler(
	l *applogger.Logger,
	src repository.BarSource,
	scanner *usecase.OpportunityScanner,
	bulk *usecase.BulkScanner,
	chips *usecase.BlueChipService,
	feed *usecase.OpportunityFeed,
	forecast *usecase.ForecastUseCase,
	proc *usecase.UpdateProcessor,
	limiter *ratelimit.Limiter,
) *api.OpportunitiesHandler {
	return api.NewOpportunitiesHandler(l, src, scanner, bulk, chips, feed, forecast, proc, limiter)
}

func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.OpportunitiesHandler) *xhttp.Server {
	metricsPath := cfg.Metrics.Path
	if cfg.Metrics.Disabled {
		metricsPath = ""
	}
	return xhttp.NewServer(l, []xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithCORS(true),
	)
}

func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	feed *usecase.OpportunityFeed,
	proc *usecase.UpdateProcessor,
	archiver *server.Archiver,
	jobs *server.Jobs,
) *server.App {
	return server.New(cfg, l, srv, feed, proc, archiver, jobs)
}

// CLI bundles what the one-shot commands need.
type CLI struct {
	Logger    *applogger.Logger
	Bulk      *usecase.BulkScanner
	BlueChips *usecase.BlueChipService
	Processor *usecase.UpdateProcessor
}

func ProvideCLI(l *applogger.Logger, bulk *usecase.BulkScanner, chips *usecase.BlueChipService, proc *usecase.UpdateProcessor) *CLI {
	return &CLI{Logger: l, Bulk: bulk, BlueChips: chips, Processor: proc}
}
