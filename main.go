package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"marketpay/config"
	"marketpay/controllers/admin"
	"marketpay/controllers/order"
	"marketpay/controllers/payment"
	"marketpay/controllers/wallet"
	"marketpay/database"
	"marketpay/jobs"
	"marketpay/providers"
	"marketpay/providers/carriers"
	"marketpay/routes"
	"marketpay/services/commission"
	"marketpay/services/ledger"
	"marketpay/services/notify"
	"marketpay/services/refmatch"
	"marketpay/services/settlement"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()
	if envErr != nil {
		log.Warn("no .env file loaded, using process environment", zap.Error(envErr))
	}

	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	notifier, closeNotifier := newNotifier(cfg, log)
	defer closeNotifier()

	if cfg.CarrierName != "" && cfg.CarrierAPIURL != "" {
		providers.RegisterCarrier(cfg.CarrierName, carriers.NewHTTPCarrier(cfg.CarrierName, cfg.CarrierAPIURL, cfg.CarrierAPIKey, log))
	}

	led := ledger.New(db, log, cfg.LedgerMaxRetries)
	svc := settlement.New(settlement.Deps{
		DB:       db,
		Ledger:   led,
		Rates:    commission.NewResolver(db, cfg.DefaultCommissionRate),
		Matcher:  refmatch.NewMatcher(nil),
		Renderer: providers.URLRenderer{BaseURL: cfg.QRImageBaseURL},
		Notifier: notifier,
		Logger:   log,
	}, settlement.Settings{
		PlatformUserID:      cfg.PlatformUserID,
		PromptPayPhone:      cfg.PromptPayPhone,
		PromptPayNationalID: cfg.PromptPayNationalID,
		PaymentTTL:          cfg.PaymentTTL,
		DefaultCarrier:      cfg.CarrierName,
	})

	v := validator.New()
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())
	routes.Setup(app, routes.Handlers{
		Wallet:        &wallet.Controller{Svc: svc, Ledger: led, V: v, Log: log},
		Order:         &order.Controller{Svc: svc, V: v, Log: log},
		Payment:       &payment.Controller{Svc: svc, V: v, Log: log},
		Admin:         &admin.Controller{Svc: svc, Ledger: led, V: v, Log: log},
		WebhookSecret: cfg.WebhookSecret,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	jobs.StartExpiryScheduler(ctx, svc, cfg.ExpireSweepInterval, log)

	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	log.Info("server running", zap.String("addr", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			log.Panic("failed to start server", zap.Error(err))
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Info("gracefully shutting down")
	stop()
	if err := app.Shutdown(); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exited cleanly")
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newNotifier(cfg config.Config, log *zap.Logger) (notify.Notifier, func()) {
	switch cfg.NotifyDriver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
		log.Info("publishing notifications to redis", zap.String("addr", cfg.RedisAddr))
		return notify.NewRedisNotifier(rdb, "", log), func() { _ = rdb.Close() }
	case "kafka":
		n := notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), log)
		log.Info("publishing notifications to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		return n, func() { _ = n.Close() }
	default:
		return notify.NewLogNotifier(log), func() {}
	}
}
