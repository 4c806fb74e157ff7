package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"shiporch/internal/booking"
	"shiporch/internal/carrier"
	"shiporch/internal/carrier/dummy"
	"shiporch/internal/carrier/parcelhub"
	"shiporch/internal/carrier/swift"
	"shiporch/internal/config"
	"shiporch/internal/db"
	"shiporch/internal/estimate"
	"shiporch/internal/events"
	"shiporch/internal/logger"
	"shiporch/internal/order"
	"shiporch/internal/orderlock"
	"shiporch/internal/pricing"
	"shiporch/internal/rate"
	"shiporch/internal/repo"
	"shiporch/internal/server"
	"shiporch/internal/settlement"
	"shiporch/internal/shipment"
	"shiporch/internal/tracking"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger level is not known yet
		logger.New("info").Fatal("load config", zap.Error(err))
	}
	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.NewPool(startCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect db", zap.Error(err))
	}
	defer pool.Close()
	if err := db.Ping(startCtx, pool); err != nil {
		log.Fatal("database ping failed", zap.Error(err))
	}
	if cfg.Migrate {
		if err := repo.Migrate(startCtx, pool); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
	}

	opts, err := pricing.LoadOptions(cfg.PricingConfig)
	if err != nil {
		log.Fatal("load pricing options", zap.String("path", cfg.PricingConfig), zap.Error(err))
	}

	registry, err := carrier.NewRegistry(adapters(cfg, log)...)
	if err != nil {
		log.Fatal("carrier registry", zap.Error(err))
	}

	publisher, err := newPublisher(cfg)
	if err != nil {
		log.Fatal("events publisher", zap.String("backend", cfg.EventsBackend), zap.Error(err))
	}
	defer func() { _ = publisher.Close() }()

	var (
		orders     = repo.NewOrders(pool)
		wallets    = repo.NewWallets(pool)
		locks      = orderlock.New()
		aggregator = rate.NewAggregator(log.Named("rate"))
	)

	pipeline := booking.NewPipeline(booking.Deps{
		Registry:   registry,
		Enabled:    cfg.Carriers,
		Aggregator: aggregator,
		Selector:   booking.NewSelector(log.Named("selector")),
		Records:    repo.NewBookingRecords(pool),
		Orders:     orders,
		Wallet:     wallets,
		Pricing:    pricing.Static(opts),
		Publisher:  publisher,
		Locks:      locks,
		Log:        log.Named("booking"),
	})
	cache := estimate.NewCache(repo.NewEstimates(pool), nil)
	estimates := &estimate.Service{
		Cache:      cache,
		Registry:   registry,
		Enabled:    cfg.Carriers,
		Aggregator: aggregator,
		Pricing:    pricing.Static(opts),
		Log:        log.Named("estimate"),
	}
	settler := settlement.New(orders, wallets, locks, log.Named("settlement"))
	syncer := tracking.NewSynchronizer(tracking.Deps{
		Orders:   orders,
		Registry: registry,
		Locks:    locks,
		OnRTO:    settler.Hook,
		Log:      log.Named("tracking"),
		Spacing:  tracking.DefaultSpacing,
	})

	go syncer.Start(ctx, cfg.SyncInterval)

	if cfg.EventsBackend == config.BackendKafka && cfg.OrderEventsTopic != "" {
		obs := events.NewOrderObserver(cfg.KafkaBrokers, cfg.OrderEventsTopic, cfg.OrderEventsGroup,
			order.StateReadyToShip, bookFunc(pipeline, log), log.Named("observer"))
		defer func() { _ = obs.Close() }()
		go obs.Start(ctx)
	}

	h := server.New(server.Deps{
		Registry:  registry,
		Booker:    pipeline,
		Quoter:    &rate.Lister{Registry: registry, Enabled: cfg.Carriers, Aggregator: aggregator},
		Estimator: estimates,
		Estimates: cache,
		Tracker:   syncer,
		Settler:   settler,
		Log:       log.Named("http"),
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}()

	log.Info("api listening",
		zap.String("port", cfg.Port),
		zap.Strings("carriers", cfg.Carriers),
		zap.String("events", cfg.EventsBackend))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

// adapters builds every carrier the process knows about; CARRIERS then
// picks which ones are enabled and in what order.
func adapters(cfg config.Config, log *zap.Logger) []carrier.Adapter {
	out := []carrier.Adapter{dummy.New(cfg.DummyBalance)}
	if cfg.SwiftBaseURL != "" {
		out = append(out, swift.New(swift.Config{BaseURL: cfg.SwiftBaseURL, Token: cfg.SwiftToken, Timeout: cfg.CarrierTimeout}))
	} else {
		log.Info("swift not configured")
	}
	if cfg.ParcelhubURL != "" {
		out = append(out, parcelhub.New(parcelhub.Config{BaseURL: cfg.ParcelhubURL, APIKey: cfg.ParcelhubKey, Timeout: cfg.CarrierTimeout}))
	} else {
		log.Info("parcelhub not configured")
	}
	return out
}

func newPublisher(cfg config.Config) (events.Publisher, error) {
	switch cfg.EventsBackend {
	case config.BackendKafka:
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.BookingEventsTopic), nil
	case config.BackendRabbitMQ:
		p, err := events.DialRabbit(cfg.RabbitURL, cfg.BookingEventsQueue)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return events.Nop{}, nil
	}
}

// bookFunc adapts the pipeline for the order observer. Errors that a retry
// cannot fix are logged and swallowed so the event is committed without
// retries.
func bookFunc(p *booking.Pipeline, log *zap.Logger) events.BookFunc {
	return func(ctx context.Context, s shipment.Shipment) error {
		_, err := p.Book(ctx, s)
		if errors.Is(err, shipment.ErrInvalid) || errors.Is(err, booking.ErrNoViableCarrier) || errors.Is(err, order.ErrNotFound) {
			log.Warn("order event not bookable", zap.String("order_id", s.OrderID), zap.Error(err))
			return nil
		}
		return err
	}
}
