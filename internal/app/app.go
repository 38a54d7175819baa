// Package app собирает сервис магазина: хранилище, блокировки, Kafka, outbox-воркер,
// gRPC-сервер и HTTP-эндпоинты метрик и проб.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/shop/internal/health"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	grpcsvc "github.com/vladislavdragonenkov/shop/internal/service/grpc"
	"github.com/vladislavdragonenkov/shop/internal/service/outbox"
	"github.com/vladislavdragonenkov/shop/internal/version"
)

const shutdownTimeout = 5 * time.Second

func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	runtime, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(runtime, logger)

	locks, err := initLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if locks.closeFn != nil {
			_ = locks.closeFn()
		}
	}()

	shopMetrics := metrics.NewShopMetrics()
	deps := NewDependencies(runtime.store, locks.locker, shopMetrics, logger, catalog.WithStockGuard(cfg.StockGuard))

	// Kafka опциональна: без неё outbox публикуется в лог.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	outboxCancel, outboxDone := startOutboxWorker(ctx, cfg, runtime.store.Outbox(), kafkaProducer, shopMetrics, logger)
	defer shutdownOutboxWorker(outboxCancel, outboxDone, logger)

	consumer := startInventoryConsumer(ctx, cfg, deps.Aggregator, kafkaProducer, logger)
	defer stopConsumer(consumer, logger)

	grpcServer, grpcMetrics := newGRPCServer(logger)
	grpcsvc.RegisterOrderServiceServer(grpcServer, grpcsvc.NewOrderService(deps.Orders, deps.Addresses, logger.WithField("layer", "grpc")))
	grpcsvc.RegisterCatalogServiceServer(grpcServer, grpcsvc.NewCatalogService(deps.Catalog, deps.Aggregator, logger.WithField("layer", "grpc")))
	grpcMetrics.InitializeMetrics(grpcServer)

	// reflection для grpcurl
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxChecker(runtime.store.Outbox(), cfg.OutboxStaleAfter))
	if runtime.storageChecker != nil {
		healthHandler.RegisterChecker("storage", runtime.storageChecker)
	}
	if locks.checker != nil {
		healthHandler.RegisterChecker("locks", locks.checker)
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			grpcServer.Stop()
		}
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func newGRPCServer(logger *log.Entry) (*grpc.Server, *promgrpc.ServerMetrics) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	return server, grpcMetrics
}

// startOutboxWorker запускает доставку и очистку outbox. Возвращает cancel и канал,
// который закрывается после остановки обоих воркеров.
func startOutboxWorker(ctx context.Context, cfg Config, repo domain.OutboxRepository, producer *kafka.Producer, m *metrics.ShopMetrics, logger *log.Entry) (context.CancelFunc, <-chan struct{}) {
	workerLogger := logger.WithField("component", "outbox-worker")

	var (
		publisher domain.OutboxPublisher
		dlq       domain.OutboxPublisher
	)
	if producer != nil {
		publisher = kafka.NewOutboxPublisher(producer, "")
		dlq = kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
	} else {
		publisher = outbox.NewLogPublisher(workerLogger)
	}

	worker := outbox.NewWorker(repo, publisher,
		outbox.WithLogger(workerLogger),
		outbox.WithMetrics(m),
		outbox.WithDLQPublisher(dlq),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)

	cleaner := outbox.NewCleaner(repo,
		outbox.WithCleanupLogger(logger.WithField("component", "outbox-cleaner")),
		outbox.WithCleanupMetrics(m),
		outbox.WithRetention(cfg.OutboxRetention),
		outbox.WithCleanupInterval(cfg.OutboxCleanupInterval),
	)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		worker.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		cleaner.Run(workerCtx)
	}()
	go func() {
		wg.Wait()
		close(done)
	}()
	return cancel, done
}

func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel == nil {
		return
	}
	cancel()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("outbox worker did not stop in time")
	}
}

func closeStore(runtime *runtimeDependencies, logger *log.Entry) {
	if runtime == nil || runtime.closeFn == nil {
		return
	}
	if err := runtime.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics и пробы.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
