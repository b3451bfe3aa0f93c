package payouts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/danielvega-dev/shoplane-backend/internal/ledger"
	"github.com/danielvega-dev/shoplane-backend/internal/orders"
	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
	"github.com/danielvega-dev/shoplane-backend/pkg/logger"
	"github.com/danielvega-dev/shoplane-backend/pkg/outbox"
	"github.com/danielvega-dev/shoplane-backend/pkg/pagination"
)

// allowedTransitions is the payout lifecycle. Compensating credits are
// issued when a payout leaves the money-in-flight states without
// completing.
var allowedTransitions = map[enums.PayoutStatus][]enums.PayoutStatus{
	enums.PayoutStatusPending:    {enums.PayoutStatusProcessing, enums.PayoutStatusCancelled},
	enums.PayoutStatusProcessing: {enums.PayoutStatusCompleted, enums.PayoutStatusFailed, enums.PayoutStatusCancelled},
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ledgerMover interface {
	Debit(ctx context.Context, tx *gorm.DB, input ledger.DebitInput) (*models.LedgerEntry, error)
	Credit(ctx context.Context, tx *gorm.DB, input ledger.CreditInput) (*models.LedgerEntry, error)
	GetBalance(ctx context.Context, vendorID uuid.UUID) (*ledger.BalanceSummary, error)
}

// payoutNotifier receives fire-and-forget notifications. Implementations
// must never fail the triggering operation.
type payoutNotifier interface {
	PayoutStatusChanged(ctx context.Context, userID uuid.UUID, payout *models.Payout)
}

// Service manages vendor withdrawals against the ledger.
type Service interface {
	Request(ctx context.Context, input RequestInput) (*models.Payout, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Payout, error)
	List(ctx context.Context, actor orders.Actor, params pagination.Params, filters ListFilters) (*PayoutList, error)
	ListForVendor(ctx context.Context, actor orders.Actor, params pagination.Params) (*PayoutList, error)
	Balance(ctx context.Context, actor orders.Actor) (*VendorBalance, error)
	Sweep(ctx context.Context) (*SweepResult, error)
}

type service struct {
	repo          Repository
	tx            txRunner
	ledger        ledgerMover
	outbox        outboxPublisher
	notifier      payoutNotifier
	logg          *logger.Logger
	minSweepCents int
	now           func() time.Time
}

// NewService wires the payout service. The notifier and logger may be nil.
func NewService(repo Repository, tx txRunner, ledgerSvc ledgerMover, outboxSvc outboxPublisher, notifier payoutNotifier, logg *logger.Logger, minSweepCents int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payouts: repository is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("payouts: transaction runner is required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("payouts: ledger service is required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("payouts: outbox service is required")
	}
	if minSweepCents <= 0 {
		return nil, fmt.Errorf("payouts: minimum sweep amount must be positive")
	}
	return &service{
		repo:          repo,
		tx:            tx,
		ledger:        ledgerSvc,
		outbox:        outboxSvc,
		notifier:      notifier,
		logg:          logg,
		minSweepCents: minSweepCents,
		now:           time.Now,
	}, nil
}

// Request creates a payout for the acting vendor. The ledger debit and the
// payout row are one transaction: a balance that cannot cover the amount
// rolls the whole request back.
func (s *service) Request(ctx context.Context, input RequestInput) (*models.Payout, error) {
	if input.Actor.Role != enums.ActorRoleVendor || input.Actor.VendorID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors can request payouts")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	}

	vendor, err := s.repo.FindVendor(ctx, *input.Actor.VendorID)
	if err != nil {
		return nil, err
	}
	return s.createPayout(ctx, vendor, input.AmountCents, &input.Actor.UserID, false)
}

func (s *service) createPayout(ctx context.Context, vendor *models.Vendor, amountCents int, requestedBy *uuid.UUID, auto bool) (*models.Payout, error) {
	if !vendor.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "vendor account is not active")
	}
	if vendor.PayoutDetails == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor has no payout details on file")
	}

	details := *vendor.PayoutDetails
	payout := &models.Payout{
		ID:            uuid.New(),
		VendorID:      vendor.ID,
		AmountCents:   amountCents,
		Currency:      enums.CurrencyUSD,
		Status:        enums.PayoutStatusPending,
		PayoutDetails: &details,
		RequestedBy:   requestedBy,
		AutoRequested: auto,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, payout); err != nil {
			return err
		}
		meta, _ := json.Marshal(map[string]any{"auto_requested": auto})
		_, err := s.ledger.Debit(ctx, tx, ledger.DebitInput{
			VendorID:    vendor.ID,
			Type:        enums.LedgerEntryTypePayoutDebit,
			AmountCents: amountCents,
			PayoutID:    &payout.ID,
			Description: fmt.Sprintf("payout request %s", payout.ID),
			Metadata:    meta,
		})
		if err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutRequested,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Version:       1,
			Data: PayoutRequestedEvent{
				PayoutID:      payout.ID,
				VendorID:      vendor.ID,
				AmountCents:   amountCents,
				AutoRequested: auto,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// UpdateStatus moves a payout along its lifecycle. Leaving for failed or
// cancelled re-credits the vendor in the same transaction.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Payout, error) {
	if input.Actor.Role != enums.ActorRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can update payout status")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout status")
	}
	if input.Target == enums.PayoutStatusFailed && (input.FailureReason == nil || *input.FailureReason == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a failure reason is required")
	}

	payout, err := s.repo.Find(ctx, input.PayoutID)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(payout.Status, input.Target) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot move payout from %s to %s", payout.Status, input.Target))
	}

	from := payout.Status
	now := s.now().UTC()
	updates := map[string]any{}
	switch input.Target {
	case enums.PayoutStatusProcessing:
		updates["processed_at"] = now
	case enums.PayoutStatusCompleted:
		updates["completed_at"] = now
	case enums.PayoutStatusFailed:
		updates["failure_reason"] = *input.FailureReason
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateStatusGuarded(ctx, payout.ID, from, input.Target, updates); err != nil {
			return err
		}

		if input.Target == enums.PayoutStatusFailed || input.Target == enums.PayoutStatusCancelled {
			_, err := s.ledger.Credit(ctx, tx, ledger.CreditInput{
				VendorID:    payout.VendorID,
				Type:        enums.LedgerEntryTypePayoutReversal,
				AmountCents: payout.AmountCents,
				PayoutID:    &payout.ID,
				Description: fmt.Sprintf("payout %s %s", payout.ID, input.Target),
			})
			if err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutStatusChanged,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: input.Actor.Role.String()},
			Data: PayoutStatusChangedEvent{
				PayoutID:      payout.ID,
				VendorID:      payout.VendorID,
				From:          from,
				To:            input.Target,
				AmountCents:   payout.AmountCents,
				FailureReason: input.FailureReason,
				ChangedAt:     now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.Find(ctx, payout.ID)
	if err != nil {
		return nil, err
	}
	s.notifyStatusChange(ctx, updated)
	return updated, nil
}

func (s *service) notifyStatusChange(ctx context.Context, payout *models.Payout) {
	if s.notifier == nil {
		return
	}
	vendor, err := s.repo.FindVendor(ctx, payout.VendorID)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "payout notification skipped: "+err.Error())
		}
		return
	}
	s.notifier.PayoutStatusChanged(ctx, vendor.OwnerUserID, payout)
}

func (s *service) List(ctx context.Context, actor orders.Actor, params pagination.Params, filters ListFilters) (*PayoutList, error) {
	if actor.Role != enums.ActorRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can list all payouts")
	}
	return s.repo.List(ctx, params, filters)
}

func (s *service) ListForVendor(ctx context.Context, actor orders.Actor, params pagination.Params) (*PayoutList, error) {
	if actor.Role != enums.ActorRoleVendor || actor.VendorID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors can list their payouts")
	}
	return s.repo.ListByVendor(ctx, *actor.VendorID, params)
}

// Balance reports the vendor's current position plus open payout count.
func (s *service) Balance(ctx context.Context, actor orders.Actor) (*VendorBalance, error) {
	if actor.Role != enums.ActorRoleVendor || actor.VendorID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors can view payout balance")
	}

	summary, err := s.ledger.GetBalance(ctx, *actor.VendorID)
	if err != nil {
		return nil, err
	}
	open, err := s.repo.CountOpenByVendor(ctx, *actor.VendorID)
	if err != nil {
		return nil, err
	}
	return &VendorBalance{
		VendorID:        summary.VendorID,
		BalanceCents:    summary.BalanceCents,
		TotalSalesCents: summary.TotalSalesCents,
		TotalOrders:     summary.TotalOrders,
		PendingPayouts:  open,
	}, nil
}

// Sweep creates full-balance payouts for active vendors at or above the
// minimum threshold. Vendors with an open payout are skipped. One vendor
// failing does not stop the sweep; failures are aggregated.
func (s *service) Sweep(ctx context.Context) (*SweepResult, error) {
	vendors, err := s.repo.ListSweepableVendors(ctx, s.minSweepCents)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{VendorsExamined: len(vendors)}
	var sweepErr error
	for i := range vendors {
		vendor := vendors[i]
		open, err := s.repo.CountOpenByVendor(ctx, vendor.ID)
		if err != nil {
			sweepErr = multierr.Append(sweepErr, fmt.Errorf("vendor %s: %w", vendor.ID, err))
			continue
		}
		if open > 0 {
			continue
		}

		payout, err := s.createPayout(ctx, &vendor, vendor.BalanceCents, nil, true)
		if err != nil {
			sweepErr = multierr.Append(sweepErr, fmt.Errorf("vendor %s: %w", vendor.ID, err))
			continue
		}
		result.PayoutsCreated++
		result.TotalCents += payout.AmountCents
		if s.logg != nil {
			s.logg.Info(ctx, fmt.Sprintf("sweep created payout %s for vendor %s", payout.ID, vendor.ID))
		}
	}
	return result, sweepErr
}

func transitionAllowed(from, to enums.PayoutStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
