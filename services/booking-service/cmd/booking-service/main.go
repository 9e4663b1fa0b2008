package main

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	libconfig "github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/grpcx"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/config"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/directory"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/scheduler"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := libconfig.LoadDotEnv(); err != nil {
		slog.Error("load .env failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("booking-service stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := runtime.ShutdownContext(5 * time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	cal, err := calendar.New(calendar.Options{
		Location: cfg.Business.Timezone,
		Hours: calendar.Hours{
			StartHour:    cfg.Business.DayStartHour,
			EndHour:      cfg.Business.DayEndHour,
			SlotDuration: cfg.Business.SlotDuration,
		},
		CancellationLeadTime: cfg.Business.CancellationLeadTime,
	})
	if err != nil {
		return err
	}
	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	dir := directory.New(st.users, cfg.DirectoryCacheSize, cfg.DirectoryCacheTTL)
	dispatcher := notify.NewDispatcher(st.notifications, logger)
	sched := scheduler.New(cal, st.appointments, dir, dispatcher, logger)
	calc := availability.NewCalculator(cal, st.appointments)

	readyChecks := []runtime.ReadyCheck{{Name: "store", Check: st.ready}}

	if st.pool != nil && cfg.KafkaBrokers != "" {
		publisher := outbox.NewPublisher(st.pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
			Brokers: cfg.KafkaBrokers,
		})
		go publisher.Run(ctx)

		notifications := consumer.New(logger, consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topics:  []string{outbox.TopicAppointmentBooked, outbox.TopicAppointmentCancelled},
		}, consumer.NotificationHandler(dir, dispatcher, cal.Location(), logger))
		go notifications.Run(ctx)

		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	trusted, err := httpx.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	clientKey := httpx.TrustedProxyKey(trusted)
	limit := httpx.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow).WithKeyFunc(clientKey).Middleware()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		limit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimit, cfg.RateLimitWindow, "slotbook:rl").WithKeyFunc(clientKey).Middleware(logger, true)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.New(handlers.Deps{
		Scheduler:  sched,
		Calculator: calc,
		Dispatcher: dispatcher,
		Users:      st.users,
		Directory:  dir,
		Issuer:     issuer,
		Calendar:   cal,
		PageSize:   cfg.PageSize,
		Logger:     logger,
	}).Register(mux)

	middleware := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(cfg.CORSAllowedOrigins)),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(15 * time.Second),
	}
	if cfg.RateLimit > 0 {
		middleware = append(middleware, limit)
	}
	httpHandler := otelhttp.NewHandler(httpx.Chain(mux, middleware...), "booking")

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpcx.NewHealthServer(logger)
	grpcSrv.SetServing(cfg.ServiceName, true)
	go func() {
		if err := grpcSrv.ServeUntil(ctx, net.JoinHostPort("", cfg.GRPCPort)); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	grpcSrv.SetServing(cfg.ServiceName, false)
	shutdownCtx, cancel := runtime.ShutdownContext(cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
	return nil
}
