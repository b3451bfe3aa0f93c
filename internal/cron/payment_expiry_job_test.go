package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danielvega-dev/shoplane-backend/pkg/logger"
)

type fakeExpirer struct {
	lastCutoff time.Time
	expired    int64
	err        error
	called     int
}

func (f *fakeExpirer) ExpirePending(_ context.Context, before time.Time) (int64, error) {
	f.called++
	f.lastCutoff = before
	return f.expired, f.err
}

func TestPaymentExpiryJobUsesCurrentTimeAsCutoff(t *testing.T) {
	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)
	expirer := &fakeExpirer{expired: 7}
	job := newPaymentExpiryJob(t, expirer)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !expirer.lastCutoff.Equal(now) {
		t.Fatalf("expected cutoff %s, got %s", now, expirer.lastCutoff)
	}
	if expirer.called != 1 {
		t.Fatalf("expected expirer called once, got %d", expirer.called)
	}
}

func TestPaymentExpiryJobPropagatesErrors(t *testing.T) {
	expirer := &fakeExpirer{err: errors.New("boom")}
	job := newPaymentExpiryJob(t, expirer)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newPaymentExpiryJob(t *testing.T, expirer *fakeExpirer) *paymentExpiryJob {
	t.Helper()
	jobIface, err := NewPaymentExpiryJob(PaymentExpiryJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Payments: expirer,
	})
	if err != nil {
		t.Fatalf("NewPaymentExpiryJob: %v", err)
	}
	job, ok := jobIface.(*paymentExpiryJob)
	if !ok {
		t.Fatalf("expected paymentExpiryJob, got %T", jobIface)
	}
	return job
}
