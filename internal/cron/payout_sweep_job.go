package cron

import (
	"context"
	"fmt"

	"github.com/danielvega-dev/shoplane-backend/internal/payouts"
	"github.com/danielvega-dev/shoplane-backend/pkg/logger"
)

// PayoutSweepJobParams configure the payout sweep job.
type PayoutSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper payoutSweeper
}

type payoutSweeper interface {
	Sweep(ctx context.Context) (*payouts.SweepResult, error)
}

// NewPayoutSweepJob builds the job that drains vendor balances into
// automatic payouts.
func NewPayoutSweepJob(params PayoutSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("payout service required")
	}
	return &payoutSweepJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
	}, nil
}

type payoutSweepJob struct {
	logg    *logger.Logger
	sweeper payoutSweeper
}

func (j *payoutSweepJob) Name() string { return "payout-sweep" }

func (j *payoutSweepJob) Run(ctx context.Context) error {
	result, err := j.sweeper.Sweep(ctx)
	if result != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"vendors_examined": result.VendorsExamined,
			"payouts_created":  result.PayoutsCreated,
			"total_cents":      result.TotalCents,
		})
		j.logg.Info(logCtx, "payout sweep finished")
	}
	if err != nil {
		return fmt.Errorf("payout sweep: %w", err)
	}
	return nil
}
