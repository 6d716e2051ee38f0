package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	pkgdb "github.com/Skotchmaster/marketplace/pkg/db"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	"github.com/Skotchmaster/marketplace/pkg/metrics"
	loggingmw "github.com/Skotchmaster/marketplace/pkg/middleware/logging"

	ordercfg "github.com/Skotchmaster/marketplace/services/order/internal/config"
	"github.com/Skotchmaster/marketplace/services/order/internal/eligibility"
	"github.com/Skotchmaster/marketplace/services/order/internal/httpserver"
	"github.com/Skotchmaster/marketplace/services/order/internal/idempotency"
	"github.com/Skotchmaster/marketplace/services/order/internal/notify"
	"github.com/Skotchmaster/marketplace/services/order/internal/repo"
	"github.com/Skotchmaster/marketplace/services/order/internal/service"
)

func main() {
	cfg := ordercfg.Load()

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	rules, err := cfg.Policy()
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := pkgdb.Open(ctx, cfg.DatabaseURL)
	if err == nil {
		err = repo.AutoMigrate(ctx, db)
	}
	cancel()
	if err != nil {
		log.Fatalf("db init: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCheckoutMetrics(reg, cfg.ServiceName)

	var notifier notify.Notifier = notify.LogNotifier{}
	var kafkaNotifier *notify.KafkaNotifier
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier = notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.MerchantTopic)
		notifier = kafkaNotifier
	} else {
		logger.Warn("kafka_disabled", "reason", "KAFKA_BROKERS not set, merchant notifications are only logged")
	}
	dispatcher := notify.NewDispatcher(notifier, 5*time.Second, m)

	rp := &repo.GormRepo{DB: db}
	handler := &httpserver.OrderHTTP{
		Checkout: &service.CheckoutService{
			Repo:     rp,
			Engine:   eligibility.NewEngine(rules),
			Notifier: dispatcher,
			Metrics:  m,
		},
		Orders: &service.OrderService{Repo: rp},
	}

	var idem *idempotency.RedisStore
	if cfg.RedisAddr != "" {
		rdb := idempotency.NewRedisClient(cfg.RedisAddr)
		defer rdb.Close()
		idem = idempotency.NewRedisStore(rdb, idempotency.DefaultTTL)
		handler.Idempotency = idem
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(echomw.CORS())

	httpserver.Register(e, &httpserver.Deps{
		OrderHandler: handler,
		JWTSecret:    cfg.JWTAccessSecret,
		Metrics:      metrics.Handler(reg),
		Ready: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				return err
			}
			if idem != nil {
				return idem.Ping(ctx)
			}
			return nil
		},
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		log.Printf("order listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	dispatcher.Wait()

	if kafkaNotifier != nil {
		if err := kafkaNotifier.Close(); err != nil {
			logger.Warn("kafka_close_error", "error", err)
		}
	}
	if err := pkgdb.Close(db); err != nil {
		logger.Warn("db_close_error", "error", err)
	}

	log.Println("order stopped")
}
