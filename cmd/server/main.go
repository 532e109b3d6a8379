package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"wasender/internal/awsutil"
	"wasender/internal/channel"
	"wasender/internal/channel/wagate"
	"wasender/internal/config"
	"wasender/internal/dispatcher"
	"wasender/internal/events"
	"wasender/internal/events/sqsfwd"
	"wasender/internal/httpserver"
	"wasender/internal/logging"
	"wasender/internal/observability"
	"wasender/internal/scheduler"
	"wasender/internal/service"
	"wasender/internal/store/pg"
	"wasender/internal/util"
)

func main() {
	cfg := config.LoadServer()
	logging.Init("server", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:          cfg.DBPoolMaxConns,
		MinConns:          cfg.DBPoolMinConns,
		MaxConnLifetime:   cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPoolMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPoolHealthCheckPeriod,
	})
	if err != nil {
		slog.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	if err := db.Ping(startupCtx); err != nil {
		startupCancel()
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}
	startupCancel()

	observability.Register(prometheus.DefaultRegisterer)

	dbStore := pg.New(db)
	bus := events.NewBus()

	// Channel: gateway client plus the process-wide ready flag.
	state := &channel.State{}
	gateway := &wagate.Client{
		BaseURL:   cfg.GatewayBaseURL,
		APIKey:    cfg.GatewayAPIKey,
		SessionID: cfg.GatewaySessionID,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
		State:     state,
	}
	go gateway.Watch(ctx, mustDuration(cfg.GatewayPollInterval, "WAGATE_POLL_INTERVAL"), bus)

	// Dispatcher with pacing, provider-wide rate cap and breaker.
	disp := &dispatcher.Dispatcher{
		Store:       dbStore,
		Channel:     gateway,
		Bus:         bus,
		Limiter:     rate.NewLimiter(rate.Limit(cfg.GatewayRPS), cfg.GatewayBurst),
		Breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "wagate",
			MaxRequests: 3,
			Timeout:     20 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
		}),
		DelayMin:    mustDuration(cfg.DispatchDelayMin, "DISPATCH_DELAY_MIN"),
		DelayMax:    mustDuration(cfg.DispatchDelayMax, "DISPATCH_DELAY_MAX"),
		SendTimeout: mustDuration(cfg.DispatchSendTimeout, "DISPATCH_SEND_TIMEOUT"),
	}
	manager := dispatcher.NewManager(ctx, dbStore, disp, bus)

	sched := &scheduler.Scheduler{
		Store:    dbStore,
		Starter:  manager,
		Interval: mustDuration(cfg.SchedulerInterval, "SCHEDULER_INTERVAL"),
	}
	go sched.Run(ctx)

	// Optional SQS event relay for external consumers.
	if cfg.EventsQueueURL != "" {
		sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
		if err != nil {
			slog.Error("sqs client init failed", "err", err)
			os.Exit(1)
		}
		fwd := &sqsfwd.Forwarder{SQS: sqsClient, QueueURL: cfg.EventsQueueURL}
		go fwd.Run(ctx, bus)
	}

	svc := &service.CampaignService{
		Store:     dbStore,
		Lifecycle: manager,
		IDGen:     util.NewCampaignID,
	}

	s := httpserver.New()
	api := &httpserver.API{Svc: svc, Directory: dbStore}
	api.Register(s.Mux)
	stream := &httpserver.EventStream{Bus: bus}
	stream.Register(s.Mux)
	hook := &httpserver.Webhook{Store: dbStore, Bus: bus, State: state}
	hook.Register(s.Mux)

	s.Mux.Handle("/metrics", promhttp.Handler())
	s.Mux.HandleFunc("/healthz", httpserver.Healthz())
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, func(c context.Context) error {
		return db.Ping(c)
	}))

	handler := httpserver.Logging(httpserver.Metrics(observability.APIRequests)(s.Mux))
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("server shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}

	// Let in-flight dispatch passes park their campaigns before the pool closes.
	manager.Close()
}

func mustDuration(raw, name string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Error("invalid duration", "env", name, "value", raw)
		os.Exit(1)
	}
	return d
}
