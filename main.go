package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	appauth "github.com/storefront-go/storefront/internal/application/auth"
	appcatalog "github.com/storefront-go/storefront/internal/application/catalog"
	appcheckout "github.com/storefront-go/storefront/internal/application/checkout"
	"github.com/storefront-go/storefront/internal/application/notification"
	apporder "github.com/storefront-go/storefront/internal/application/order"
	"github.com/storefront-go/storefront/internal/config"
	domcatalog "github.com/storefront-go/storefront/internal/domain/catalog"
	domorder "github.com/storefront-go/storefront/internal/domain/order"
	"github.com/storefront-go/storefront/internal/domain/reconciliation"
	"github.com/storefront-go/storefront/internal/domain/storage"
	"github.com/storefront-go/storefront/internal/infrastructure/gateway"
	"github.com/storefront-go/storefront/internal/infrastructure/gormstore"
	"github.com/storefront-go/storefront/internal/infrastructure/id"
	"github.com/storefront-go/storefront/internal/infrastructure/memory"
	"github.com/storefront-go/storefront/internal/infrastructure/observability/oteltrace"
	"github.com/storefront-go/storefront/internal/infrastructure/observability/prometrics"
	"github.com/storefront-go/storefront/internal/infrastructure/observability/telemetry"
	"github.com/storefront-go/storefront/internal/infrastructure/observability/zaplogger"
	"github.com/storefront-go/storefront/internal/infrastructure/outboxbus"
	"github.com/storefront-go/storefront/internal/infrastructure/redisstore"
	"github.com/storefront-go/storefront/internal/jobs"
	"github.com/storefront-go/storefront/internal/observability"
	httppresentation "github.com/storefront-go/storefront/internal/presentation/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}

	baseLogger := zaplogger.New(
		observability.F("service", cfg.Service.Name),
		observability.F("env", cfg.Service.Env),
	)
	tel, shutdownTracing, err := buildTelemetry(cfg, baseLogger)
	if err != nil {
		return err
	}
	defer shutdownTracing()
	logger := tel.Logger().With(observability.F("component", "main"))

	txm, products, orders, journal, err := buildStore(cfg)
	if err != nil {
		return err
	}

	limiter, listCache, closeRedis, err := buildRedis(cfg, baseLogger)
	if err != nil {
		return err
	}
	defer closeRedis()

	bus := outboxbus.NewBus(baseLogger)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	var closeKafka func()
	if len(cfg.Kafka.Brokers) > 0 {
		topic := cfg.Kafka.Topic
		if topic == "" {
			topic = "storefront.orders"
		}
		mirror := outboxbus.NewKafkaMirror(cfg.Kafka.Brokers, topic, baseLogger)
		mirror.Register(bus, domorder.EventOrderConfirmed, domorder.EventOrderCancelled)
		closeKafka = func() { _ = mirror.Close() }
	} else {
		closeKafka = func() {}
	}
	defer closeKafka()

	notifyWorker := notification.NewWorker(notification.NewLogNotifier(baseLogger), baseLogger)
	notifyWorker.Register(bus)

	ids := id.NewGenerator()
	gateways := gateway.DefaultSelector(cfg.Payment.DeclineRate, cfg.Payment.Latency)

	checkoutSvc := appcheckout.NewService(
		txm, products, orders, gateways, journal, ids, bus,
		appcheckout.Policy{
			Currency:       cfg.Checkout.Currency,
			GatewayTimeout: cfg.Checkout.GatewayTimeout,
			GatewayRetries: cfg.Checkout.GatewayRetries,
			CommitRetries:  cfg.Checkout.CommitRetries,
		},
		tel,
	)
	catalogSvc := appcatalog.NewService(products, ids, listCache, cfg.Cache.ProductListTTL, baseLogger)
	orderSvc := apporder.NewService(txm, orders, products, bus, baseLogger)
	authSvc := appauth.NewService(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	scheduler := jobs.NewScheduler(orderSvc, journal, tel)
	if err := scheduler.Register(jobs.Config{
		AbandonedSweepSchedule: cfg.Jobs.AbandonedSweepSchedule,
		AbandonedMaxAge:        cfg.Jobs.AbandonedMaxAge,
		ReconciliationSchedule: cfg.Jobs.ReconciliationSchedule,
	}); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}
	scheduler.Start()

	handler := httppresentation.NewHandler(
		checkoutSvc, catalogSvc, orderSvc, authSvc, journal,
		limiter, cfg.Auth.AllowSelfIssue, tel,
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http_server_start", observability.F("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		scheduler.Stop(shutdownCtx)
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		logger.Info("http_server_stopped")
		return nil
	})

	return g.Wait()
}

func buildTelemetry(cfg config.Config, baseLogger observability.Logger) (observability.Observability, func(), error) {
	shutdown := func() {}
	if cfg.Tracing.JaegerEndpoint != "" {
		tp, err := oteltrace.InitProvider(cfg.Service.Name, cfg.Tracing.JaegerEndpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("init tracing: %w", err)
		}
		shutdown = func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}
	}

	metrics := prometrics.New(prometheus.DefaultRegisterer, "")
	tel := telemetry.New(oteltrace.New(cfg.Service.Name), baseLogger, metrics)
	return tel, shutdown, nil
}

func buildStore(cfg config.Config) (storage.Manager, domcatalog.Repository, domorder.Repository, reconciliation.Journal, error) {
	switch cfg.Store.Driver {
	case "mysql":
		store, err := gormstore.Open(cfg.Store.DSN)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return store,
			gormstore.NewProductRepository(store),
			gormstore.NewOrderRepository(store),
			gormstore.NewReconciliationJournal(store),
			nil
	default:
		store := memory.NewStore()
		return store,
			memory.NewProductRepository(store),
			memory.NewOrderRepository(store),
			memory.NewReconciliationJournal(),
			nil
	}
}

func buildRedis(cfg config.Config, baseLogger observability.Logger) (httppresentation.RateLimiter, appcatalog.ListCache, func(), error) {
	if cfg.Redis.Addr == "" {
		return memory.NewRateLimiter(cfg.Limits.Window, cfg.Limits.MaxRequests),
			memory.NewListCache(),
			func() {},
			nil
	}

	client, err := redisstore.NewClient(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, nil, err
	}
	return redisstore.NewRateLimiter(client, cfg.Limits.Window, cfg.Limits.MaxRequests, baseLogger),
		redisstore.NewListCache(client, baseLogger),
		func() { _ = client.Close() },
		nil
}
