package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"ChainWatch/internal/domain/repository"
	dservice "ChainWatch/internal/domain/service"
	"ChainWatch/internal/handler/api"
	internalrepo "ChainWatch/internal/repository"
	icache "ChainWatch/internal/service/cache"
	"ChainWatch/internal/service/providers"
	"ChainWatch/internal/service/ratelimit"
	"ChainWatch/internal/service/tickers"
	"ChainWatch/internal/services/analytics"
	"ChainWatch/internal/usecase"
	pkgcache "ChainWatch/pkg/cache"
	pkgch "ChainWatch/pkg/clickhouse"
	"ChainWatch/pkg/config"
	xhttp "ChainWatch/pkg/http"
	pkgkafka "ChainWatch/pkg/kafka"
	applogger "ChainWatch/pkg/logger"
	"ChainWatch/pkg/metrics"
	"ChainWatch/pkg/server"
)

const initTimeout = 10 * time.Second

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if lc.Level == "" {
		lc.Level = "info"
	}
	if lc.Format == "" {
		lc.Format = "console"
	}
	if lc.Output == "" {
		lc.Output = "stdout"
	}
	return applogger.New(lc)
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the database exists.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
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

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	db := cfg.ClickHouse.Database
	if db == "" {
		db = "chainwatch"
	}
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideTickerSource creates the symbol universe source.
func ProvideTickerSource(cfg *config.Config) repository.TickerSource {
	if cfg.Tickers.File != "" {
		return tickers.NewFileSource(cfg.Tickers.File)
	}
	return tickers.NewStaticSource(cfg.Tickers.Symbols)
}

// ProvideGateway builds the provider chain in configured priority order.
func ProvideGateway(cfg *config.Config, l *applogger.Logger, m repository.Metrics) (*providers.Gateway, error) {
	provs := make([]providers.Provider, 0, len(cfg.Providers.Order))
	for _, name := range cfg.Providers.Order {
		switch name {
		case "polygon":
			var popts []providers.PolygonOption
			if cfg.Providers.Polygon.BaseURL != "" {
				popts = append(popts, providers.WithPolygonBaseURL(cfg.Providers.Polygon.BaseURL))
			}
			provs = append(provs, providers.NewPolygon(cfg.Providers.Polygon.APIKey, popts...))
		case "yahoo":
			var yopts []providers.YahooOption
			if cfg.Providers.Yahoo.BaseURL != "" {
				yopts = append(yopts, providers.WithYahooBaseURL(cfg.Providers.Yahoo.BaseURL))
			}
			if cfg.Providers.Yahoo.MaxExpirations > 0 {
				yopts = append(yopts, providers.WithYahooMaxExpirations(cfg.Providers.Yahoo.MaxExpirations))
			}
			provs = append(provs, providers.NewYahoo(yopts...))
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}

	opts := []providers.Option{providers.WithMetrics(m)}
	if cfg.Providers.RequestTimeout > 0 {
		opts = append(opts, providers.WithTimeout(cfg.Providers.RequestTimeout))
	}
	if cfg.Providers.MaxLimiterWait > 0 {
		opts = append(opts, providers.WithMaxWait(cfg.Providers.MaxLimiterWait))
	}
	if cfg.Providers.DownAfter > 0 {
		opts = append(opts, providers.WithDownAfter(cfg.Providers.DownAfter))
	}
	if d := cfg.Providers.RateLimitDelay; d > 0 {
		// One token bucket per provider with the configured inter-call delay.
		rate := providers.Rate{Capacity: 1, RefillPerSec: float64(time.Second) / float64(d)}
		for _, name := range cfg.Providers.Order {
			opts = append(opts, providers.WithRate(name, rate))
		}
	}

	return providers.NewGateway(provs, ratelimit.New(), l, opts...), nil
}

// ProvideCollector creates the chain collector use case.
func ProvideCollector(gw *providers.Gateway, l *applogger.Logger, m repository.Metrics, cfg *config.Config) *usecase.ChainCollector {
	var opts []usecase.CollectorOption
	if cfg.Collection.BatchSize > 0 {
		opts = append(opts, usecase.WithBatchSize(cfg.Collection.BatchSize))
	}
	if cfg.Collection.Workers > 0 {
		opts = append(opts, usecase.WithWorkers(cfg.Collection.Workers))
	}
	if cfg.Providers.MaxRetries > 0 {
		opts = append(opts, usecase.WithMaxRetries(cfg.Providers.MaxRetries))
	}
	if cfg.Providers.RetryBackoff > 0 && cfg.Providers.RetryMax > 0 {
		opts = append(opts, usecase.WithRetryBackoff(cfg.Providers.RetryBackoff, cfg.Providers.RetryMax))
	}
	return usecase.NewChainCollector(gw, l, m, opts...)
}

func snapshotsTable(cfg *config.Config) string {
	return qualifiedTable(cfg, cfg.ClickHouse.Tables.Snapshots, "chain_snapshots")
}

func anomaliesTable(cfg *config.Config) string {
	return qualifiedTable(cfg, cfg.ClickHouse.Tables.Anomalies, "anomaly_records")
}

func runsTable(cfg *config.Config) string {
	return qualifiedTable(cfg, cfg.ClickHouse.Tables.Runs, "run_summaries")
}

func qualifiedTable(cfg *config.Config, name, fallback string) string {
	if name == "" {
		name = fallback
	}
	db := cfg.ClickHouse.Database
	if db == "" {
		db = "chainwatch"
	}
	return db + "." + name
}

// ProvideSnapshotStore creates the chain snapshot store and its table.
func ProvideSnapshotStore(chClient *pkgch.Client, cfg *config.Config) (repository.SnapshotStore, error) {
	store := internalrepo.NewChainSnapshotStore(chClient.DB(), snapshotsTable(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("snapshot store init: %w", err)
	}
	return store, nil
}

// ProvideAnomalyStore creates the anomaly record store and its table.
func ProvideAnomalyStore(chClient *pkgch.Client, cfg *config.Config) (repository.AnomalyStore, error) {
	store := internalrepo.NewAnomalyRecordStore(chClient.DB(), anomaliesTable(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("anomaly store init: %w", err)
	}
	return store, nil
}

// ProvideRunStore creates the run summary store and its table.
func ProvideRunStore(chClient *pkgch.Client, cfg *config.Config) (repository.RunStore, error) {
	store := internalrepo.NewRunSummaryStore(chClient.DB(), runsTable(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("run store init: %w", err)
	}
	return store, nil
}

// ProvideBaselines creates the baseline repository, cached through Redis
// when enabled.
func ProvideBaselines(chClient *pkgch.Client, cfg *config.Config) (repository.BaselineRepository, error) {
	var opts []internalrepo.BaselineOption
	if cfg.Detection.BaselineWindowDays > 0 {
		opts = append(opts, internalrepo.WithWindowDays(cfg.Detection.BaselineWindowDays))
	}
	if cfg.Detection.ShortTermDays > 0 {
		opts = append(opts, internalrepo.WithBaselineShortTermDays(cfg.Detection.ShortTermDays))
	}
	if cfg.Detection.OTMPercentage > 0 {
		opts = append(opts, internalrepo.WithBaselineOTMPercentage(cfg.Detection.OTMPercentage))
	}
	inner := internalrepo.NewClickHouseBaselines(chClient.DB(), snapshotsTable(cfg), opts...)

	if !cfg.Redis.Enabled {
		return inner, nil
	}

	host, port, err := splitAddr(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	redisCache, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return internalrepo.NewCachedBaselines(inner, pkgcache.NewLayeredCache(redisCache), cfg.Redis.TTL), nil
}

// ProvidePublisher creates the Kafka publisher, or a noop when Kafka is disabled.
func ProvidePublisher(cfg *config.Config) (repository.Publisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NewNoopPublisher(), nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	anomalyTopic := cfg.Kafka.AnomalyTopic
	if anomalyTopic == "" {
		anomalyTopic = "chainwatch.anomalies"
	}
	runTopic := cfg.Kafka.RunTopic
	if runTopic == "" {
		runTopic = "chainwatch.runs"
	}
	return internalrepo.NewKafkaPublisher(producer, anomalyTopic, runTopic), nil
}

// ProvideDetector creates the baseline-relative rule detector.
func ProvideDetector(cfg *config.Config) dservice.RuleDetector {
	var opts []analytics.DetectorOption
	d := cfg.Detection
	if d.VolumeThreshold > 0 {
		opts = append(opts, analytics.WithVolumeThreshold(d.VolumeThreshold))
	}
	if d.OIThreshold > 0 {
		opts = append(opts, analytics.WithOIThreshold(d.OIThreshold))
	}
	if d.ShortTermDays > 0 {
		opts = append(opts, analytics.WithShortTermDays(d.ShortTermDays))
	}
	if d.OTMPercentage > 0 {
		opts = append(opts, analytics.WithOTMPercentage(d.OTMPercentage))
	}
	if d.ShareFactor > 0 {
		opts = append(opts, analytics.WithShareFactor(d.ShareFactor))
	}
	if d.MinVolume > 0 {
		opts = append(opts, analytics.WithMinVolume(d.MinVolume))
	}
	if d.MinHistory > 0 {
		opts = append(opts, analytics.WithMinHistory(d.MinHistory))
	}
	return analytics.NewDetector(opts...)
}

// ProvideScorer creates the isolation forest composite scorer.
func ProvideScorer(cfg *config.Config) dservice.CompositeScorer {
	var opts []analytics.ForestOption
	f := cfg.Detection.Forest
	if f.Trees > 0 {
		opts = append(opts, analytics.WithTrees(f.Trees))
	}
	if f.SampleSize > 0 {
		opts = append(opts, analytics.WithSampleSize(f.SampleSize))
	}
	if f.Seed != 0 {
		opts = append(opts, analytics.WithSeed(f.Seed))
	}
	return analytics.NewIsolationForest(opts...)
}

// ProvideAssembler creates the record assembler.
func ProvideAssembler(cfg *config.Config) *analytics.Assembler {
	var opts []analytics.AssemblerOption
	if t := cfg.Detection.Tiers; t.High > 0 {
		opts = append(opts, analytics.WithTiers(analytics.TierThresholds{
			High:   t.High,
			Medium: t.Medium,
			Low:    t.Low,
		}))
	}
	if cfg.Detection.Forest.Contamination > 0 {
		opts = append(opts, analytics.WithContamination(cfg.Detection.Forest.Contamination))
	}
	return analytics.NewAssembler(opts...)
}

// ProvidePipeline creates the daily pipeline use case.
func ProvidePipeline(
	tickerSource repository.TickerSource,
	collector *usecase.ChainCollector,
	baselines repository.BaselineRepository,
	detector dservice.RuleDetector,
	scorer dservice.CompositeScorer,
	assembler *analytics.Assembler,
	snapshots repository.SnapshotStore,
	anomalies repository.AnomalyStore,
	runs repository.RunStore,
	publisher repository.Publisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Pipeline {
	return usecase.NewPipeline(tickerSource, collector, baselines, detector, scorer, assembler,
		snapshots, anomalies, runs, publisher, m, l)
}

// ProvideHandler creates the results API handler with response caching.
func ProvideHandler(
	l *applogger.Logger,
	anomalies repository.AnomalyStore,
	runs repository.RunStore,
	snapshots repository.SnapshotStore,
	cfg *config.Config,
) xhttp.Handler {
	h := api.NewAnomaliesHandler(l, anomalies, runs, snapshots)
	if cfg.Redis.Enabled {
		h.SetCache(icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	} else {
		h.SetCache(icache.NewTTLCache())
	}
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	pipeline *usecase.Pipeline,
	chClient *pkgch.Client,
	httpHandler xhttp.Handler,
	publisher repository.Publisher,
	l *applogger.Logger,
) *server.App {
	return server.New(cfg, pipeline, chClient, httpHandler, publisher, l)
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
