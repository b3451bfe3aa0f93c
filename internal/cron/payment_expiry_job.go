package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/danielvega-dev/shoplane-backend/pkg/logger"
)

// PaymentExpiryJobParams configure the payment attempt expiry job.
type PaymentExpiryJobParams struct {
	Logger   *logger.Logger
	Payments paymentExpirer
}

type paymentExpirer interface {
	ExpirePending(ctx context.Context, before time.Time) (int64, error)
}

// NewPaymentExpiryJob builds the job that marks stale pending payment
// attempts as expired so their orders can be retried.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment service required")
	}
	return &paymentExpiryJob{
		logg:     params.Logger,
		payments: params.Payments,
		now:      time.Now,
	}, nil
}

type paymentExpiryJob struct {
	logg     *logger.Logger
	payments paymentExpirer
	now      func() time.Time
}

func (j *paymentExpiryJob) Name() string { return "payment-expiry" }

func (j *paymentExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC()
	expired, err := j.payments.ExpirePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("payment expiry: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_expired": expired,
	})
	j.logg.Info(logCtx, "payment attempt expiry complete")
	return nil
}
