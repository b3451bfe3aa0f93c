package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/danielvega-dev/shoplane-backend/internal/coupons"
	"github.com/danielvega-dev/shoplane-backend/internal/cron"
	"github.com/danielvega-dev/shoplane-backend/internal/inventory"
	"github.com/danielvega-dev/shoplane-backend/internal/ledger"
	"github.com/danielvega-dev/shoplane-backend/internal/notifications"
	"github.com/danielvega-dev/shoplane-backend/internal/orders"
	"github.com/danielvega-dev/shoplane-backend/internal/payments"
	"github.com/danielvega-dev/shoplane-backend/internal/payouts"
	"github.com/danielvega-dev/shoplane-backend/pkg/config"
	"github.com/danielvega-dev/shoplane-backend/pkg/db"
	"github.com/danielvega-dev/shoplane-backend/pkg/logger"
	"github.com/danielvega-dev/shoplane-backend/pkg/metrics"
	"github.com/danielvega-dev/shoplane-backend/pkg/migrate"
	"github.com/danielvega-dev/shoplane-backend/pkg/outbox"
	"github.com/danielvega-dev/shoplane-backend/pkg/redis"
	pkgstripe "github.com/danielvega-dev/shoplane-backend/pkg/stripe"
)

const lockKeyFormat = "sl:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)
	outboxSvc := outbox.NewService(outboxRepo, logg)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}
	couponSvc, err := coupons.NewService(coupons.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create coupon service", err)
		os.Exit(1)
	}
	notificationSvc, err := notifications.NewService(notifications.NewRepository(gormDB), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}
	orderSvc, err := orders.NewService(
		orders.NewRepository(gormDB),
		dbClient,
		outboxSvc,
		couponSvc,
		inventory.NewRepository(gormDB),
		ledgerSvc,
		notificationSvc,
		orders.Pricing{
			TaxRateBps:        cfg.Checkout.TaxRateBps,
			ShippingFlatCents: cfg.Checkout.ShippingFlatCents,
		},
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}
	payoutSvc, err := payouts.NewService(
		payouts.NewRepository(gormDB),
		dbClient,
		ledgerSvc,
		outboxSvc,
		notificationSvc,
		logg,
		cfg.Payouts.MinSweepCents,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payout service", err)
		os.Exit(1)
	}
	paymentSvc, err := buildPaymentService(cfg, logg, gormDB, dbClient, redisClient, orderSvc, ledgerSvc, outboxSvc, notificationSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewPayoutSweepJob(cron.PayoutSweepJobParams{
		Logger:  logg,
		Sweeper: payoutSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payout sweep job", err)
		os.Exit(1)
	}
	expiryJob, err := cron.NewPaymentExpiryJob(cron.PaymentExpiryJobParams{
		Logger:   logg,
		Payments: paymentSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment expiry job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(sweepJob, expiryJob, retentionJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildPaymentService(
	cfg *config.Config,
	logg *logger.Logger,
	gormDB *gorm.DB,
	dbClient *db.Client,
	redisClient *redis.Client,
	orderSvc orders.Service,
	ledgerSvc ledger.Service,
	outboxSvc *outbox.Service,
	notificationSvc notifications.Service,
) (payments.Service, error) {
	var card payments.Gateway
	if cfg.Stripe.APIKey != "" {
		stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
		if err != nil {
			return nil, err
		}
		card, err = payments.NewCardGateway(payments.NewStripeIntentClient(stripeClient))
		if err != nil {
			return nil, err
		}
	}
	return payments.NewService(
		payments.NewRepository(gormDB),
		dbClient,
		redisClient,
		orderSvc,
		ledgerSvc,
		outboxSvc,
		notificationSvc,
		metrics.NewPaymentMetrics(prometheus.DefaultRegisterer),
		logg,
		card,
		payments.NewWalletGateway(cfg.Wallet),
		payments.NewManualGateway(),
	)
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
