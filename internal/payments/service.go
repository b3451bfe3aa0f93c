package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danielvega-dev/shoplane-backend/internal/ledger"
	"github.com/danielvega-dev/shoplane-backend/internal/orders"
	"github.com/danielvega-dev/shoplane-backend/pkg/db"
	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
	"github.com/danielvega-dev/shoplane-backend/pkg/logger"
	"github.com/danielvega-dev/shoplane-backend/pkg/metrics"
	"github.com/danielvega-dev/shoplane-backend/pkg/outbox"
)

const (
	attemptUniqueConstraint = "idx_payment_attempts_order_provider_tx"
	settlementGuardTTL      = 48 * time.Hour
)

// errAlreadySettled signals a replayed settlement inside the transaction.
// Callers swallow it: a replay is a success from the provider's view.
var errAlreadySettled = pkgerrors.New(pkgerrors.CodeConflict, "settlement already applied")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type settlementGuard interface {
	SettlementGuardKey(orderID, providerTxID string) string
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

type orderSettler interface {
	MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, paidAt time.Time) error
}

type vendorCrediting interface {
	CreditSale(ctx context.Context, tx *gorm.DB, input ledger.CreditSaleInput) (*models.LedgerEntry, error)
}

// settledNotifier receives a fire-and-forget notification after a
// settlement commits. Implementations must never fail the settlement.
type settledNotifier interface {
	PaymentSettled(ctx context.Context, userID uuid.UUID, order *models.Order)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// InitiateInput starts a payment for an order the actor may pay for.
type InitiateInput struct {
	OrderID      uuid.UUID
	Actor        orders.Actor
	PaymentToken string
}

// WalletConfirmInput carries the wallet provider callback.
type WalletConfirmInput struct {
	OrderID     uuid.UUID
	PaymentID   string
	Signature   string
	AmountCents int
}

// ManualSettleInput records an admin confirming an offline payment.
type ManualSettleInput struct {
	OrderID uuid.UUID
	Actor   orders.Actor
}

// PaymentSettledEvent is the outbox payload emitted when an order settles.
type PaymentSettledEvent struct {
	OrderID      uuid.UUID      `json:"orderId"`
	OrderNumber  string         `json:"orderNumber"`
	Provider     string         `json:"provider"`
	ProviderTxID string         `json:"providerTxId"`
	AmountCents  int            `json:"amountCents"`
	Currency     enums.Currency `json:"currency"`
	SettledAt    time.Time      `json:"settledAt"`
}

// Service coordinates the provider adapters with the settlement applier.
// Adapters produce SettlementEvents; only ApplySettlement moves money.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*models.PaymentAttempt, error)
	ConfirmWallet(ctx context.Context, input WalletConfirmInput) error
	SettleManual(ctx context.Context, input ManualSettleInput) error
	ApplySettlement(ctx context.Context, ev SettlementEvent) error
	ExpirePending(ctx context.Context, before time.Time) (int64, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	guard    settlementGuard
	orders   orderSettler
	ledger   vendorCrediting
	outbox   outboxPublisher
	notifier settledNotifier
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger

	card   Gateway
	wallet Gateway
	manual Gateway

	now func() time.Time
}

// NewService wires the payment service with its adapters and collaborators.
// The notifier, metrics collector and card gateway may be nil.
func NewService(
	repo Repository,
	tx txRunner,
	guard settlementGuard,
	orderSvc orderSettler,
	ledgerSvc vendorCrediting,
	outboxSvc outboxPublisher,
	notifier settledNotifier,
	paymentMetrics *metrics.PaymentMetrics,
	logg *logger.Logger,
	card, wallet, manual Gateway,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments: repository is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("payments: transaction runner is required")
	}
	if guard == nil {
		return nil, fmt.Errorf("payments: settlement guard is required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("payments: order service is required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("payments: ledger service is required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("payments: outbox service is required")
	}
	if wallet == nil {
		return nil, fmt.Errorf("payments: wallet gateway is required")
	}
	if manual == nil {
		return nil, fmt.Errorf("payments: manual gateway is required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		guard:    guard,
		orders:   orderSvc,
		ledger:   ledgerSvc,
		outbox:   outboxSvc,
		notifier: notifier,
		metrics:  paymentMetrics,
		logg:     logg,
		card:     card,
		wallet:   wallet,
		manual:   manual,
		now:      time.Now,
	}, nil
}

func (s *service) gatewayFor(method enums.PaymentMethod) (Gateway, error) {
	switch {
	case method == enums.PaymentMethodCard:
		if s.card == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "card payments are not configured")
		}
		return s.card, nil
	case method == enums.PaymentMethodWallet:
		return s.wallet, nil
	case method.IsDeferred():
		return s.manual, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
}

// Initiate starts payment for a placed order. Wallet and manual methods
// are idempotent here: re-initiating returns the live pending attempt
// instead of minting a second one.
func (s *service) Initiate(ctx context.Context, input InitiateInput) (*models.PaymentAttempt, error) {
	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if input.Actor.Role != enums.ActorRoleAdmin && order.CustomerID != input.Actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "you cannot pay for this order")
	}
	if order.Status != enums.OrderStatusPlaced {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment")
	}

	gw, err := s.gatewayFor(order.PaymentMethod)
	if err != nil {
		return nil, err
	}

	if order.PaymentMethod != enums.PaymentMethodCard {
		provider := ProviderManual
		if order.PaymentMethod == enums.PaymentMethodWallet {
			provider = ProviderWallet
		}
		if existing, err := s.repo.FindPendingAttempt(ctx, order.ID, provider); err == nil {
			if existing.ExpiresAt == nil || existing.ExpiresAt.After(s.now()) {
				return existing, nil
			}
		} else if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
	}

	result, err := gw.Initiate(ctx, InitiateRequest{Order: order, PaymentToken: input.PaymentToken})
	if err != nil {
		return nil, err
	}

	if result.Settlement != nil {
		if err := s.ApplySettlement(ctx, *result.Settlement); err != nil {
			return nil, err
		}
		return s.repo.FindAttempt(ctx, order.ID, result.ProviderTxID)
	}

	attempt := &models.PaymentAttempt{
		ID:           uuid.New(),
		OrderID:      order.ID,
		Method:       order.PaymentMethod,
		Status:       result.Status,
		AmountCents:  order.TotalCents,
		Currency:     order.Currency,
		Provider:     result.Provider,
		ProviderTxID: result.ProviderTxID,
		RedirectURL:  result.RedirectURL,
		ExpiresAt:    result.ExpiresAt,
	}
	if err := s.repo.CreateAttempt(ctx, attempt); err != nil {
		if db.IsUniqueViolation(err, attemptUniqueConstraint) || db.IsUniqueViolation(err, "") {
			return s.repo.FindAttempt(ctx, order.ID, result.ProviderTxID)
		}
		return nil, err
	}
	return attempt, nil
}

// ConfirmWallet handles the provider callback for redirect payments. The
// expiry window is re-checked here: the cron job and this path can both
// flip a stale attempt, whichever runs first.
func (s *service) ConfirmWallet(ctx context.Context, input WalletConfirmInput) error {
	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		return err
	}
	attempt, err := s.repo.FindAttempt(ctx, input.OrderID, input.PaymentID)
	if err != nil {
		return err
	}

	switch attempt.Status {
	case enums.PaymentAttemptStatusSucceeded:
		if s.metrics != nil {
			s.metrics.IncDuplicate(ProviderWallet)
		}
		return nil
	case enums.PaymentAttemptStatusExpired, enums.PaymentAttemptStatusFailed:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment attempt is no longer confirmable")
	}
	if attempt.ExpiresAt != nil && attempt.ExpiresAt.Before(s.now()) {
		if err := s.repo.UpdateAttemptStatus(ctx, attempt.ID, enums.PaymentAttemptStatusPending, enums.PaymentAttemptStatusExpired, nil); err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			return err
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment attempt has expired")
	}

	ev, err := s.wallet.Confirm(ctx, ConfirmRequest{
		Order:        order,
		ProviderTxID: input.PaymentID,
		Signature:    input.Signature,
		AmountCents:  input.AmountCents,
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodePaymentVerification) {
			s.failAttempt(ctx, attempt.ID, "signature verification failed")
		}
		return err
	}

	return s.ApplySettlement(ctx, *ev)
}

// SettleManual records an admin confirming an offline payment arrived.
func (s *service) SettleManual(ctx context.Context, input ManualSettleInput) error {
	if input.Actor.Role != enums.ActorRoleAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only admins can settle manual payments")
	}
	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		return err
	}
	if !order.PaymentMethod.IsDeferred() {
		return pkgerrors.New(pkgerrors.CodeValidation, "order is not payable by manual settlement")
	}

	ev, err := s.manual.Confirm(ctx, ConfirmRequest{Order: order})
	if err != nil {
		return err
	}
	return s.ApplySettlement(ctx, *ev)
}

// ApplySettlement marks the order paid and credits every vendor's ledger in
// one transaction. It is applied exactly once per (order, provider tx):
// the Redis SetNX guard short-circuits fast replays and the unique index
// on payment attempts is the durable source of truth.
func (s *service) ApplySettlement(ctx context.Context, ev SettlementEvent) error {
	key := s.guard.SettlementGuardKey(ev.OrderID.String(), ev.ProviderTxID)
	acquired, guardErr := s.guard.SetNX(ctx, key, "1", settlementGuardTTL)
	if guardErr != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "settlement guard unavailable, relying on unique index: "+guardErr.Error())
		}
	} else if !acquired {
		if s.metrics != nil {
			s.metrics.IncDuplicate(ev.Provider)
		}
		return nil
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.applyInTx(ctx, tx, ev)
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
			if s.metrics != nil {
				s.metrics.IncDuplicate(ev.Provider)
			}
			return nil
		}
		if guardErr == nil {
			if delErr := s.guard.Del(ctx, key); delErr != nil && s.logg != nil {
				s.logg.Warn(ctx, "failed to release settlement guard: "+delErr.Error())
			}
		}
		if s.metrics != nil {
			s.metrics.IncSettlement(ev.Provider, "failed")
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.IncSettlement(ev.Provider, "applied")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, ev.OrderID.String()), "settlement applied by "+ev.Provider)
	}
	s.notifySettled(ctx, ev.OrderID)
	return nil
}

func (s *service) notifySettled(ctx context.Context, orderID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "payment notification skipped: "+err.Error())
		}
		return
	}
	s.notifier.PaymentSettled(ctx, order.CustomerID, order)
}

func (s *service) applyInTx(ctx context.Context, tx *gorm.DB, ev SettlementEvent) error {
	repo := s.repo.WithTx(tx)

	order, err := repo.FindOrder(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	if ev.AmountCents != order.TotalCents {
		return pkgerrors.New(pkgerrors.CodePaymentVerification, "settled amount does not match order total").
			WithDetails(map[string]int{"expected": order.TotalCents, "received": ev.AmountCents})
	}

	settledAt := ev.SettledAt.UTC()
	attempt, err := repo.FindAttempt(ctx, ev.OrderID, ev.ProviderTxID)
	switch {
	case err == nil:
		if attempt.Status == enums.PaymentAttemptStatusSucceeded {
			return errAlreadySettled
		}
		if attempt.Status != enums.PaymentAttemptStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment attempt is no longer settleable")
		}
		err = repo.UpdateAttemptStatus(ctx, attempt.ID, enums.PaymentAttemptStatusPending, enums.PaymentAttemptStatusSucceeded, map[string]any{
			"settled_at":   settledAt,
			"amount_cents": ev.AmountCents,
		})
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
				return errAlreadySettled
			}
			return err
		}
	case pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		created := &models.PaymentAttempt{
			ID:           uuid.New(),
			OrderID:      order.ID,
			Method:       order.PaymentMethod,
			Status:       enums.PaymentAttemptStatusSucceeded,
			AmountCents:  ev.AmountCents,
			Currency:     ev.Currency,
			Provider:     ev.Provider,
			ProviderTxID: ev.ProviderTxID,
			SettledAt:    &settledAt,
		}
		if createErr := repo.CreateAttempt(ctx, created); createErr != nil {
			if db.IsUniqueViolation(createErr, attemptUniqueConstraint) || db.IsUniqueViolation(createErr, "") {
				return errAlreadySettled
			}
			return createErr
		}
	default:
		return err
	}

	if err := s.orders.MarkPaid(ctx, tx, order.ID, settledAt); err != nil {
		return err
	}

	if err := s.creditVendors(ctx, tx, order, ev); err != nil {
		return err
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentSettled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Data: PaymentSettledEvent{
			OrderID:      order.ID,
			OrderNumber:  order.OrderNumber,
			Provider:     ev.Provider,
			ProviderTxID: ev.ProviderTxID,
			AmountCents:  ev.AmountCents,
			Currency:     ev.Currency,
			SettledAt:    settledAt,
		},
	})
}

// creditVendors converts the order's line items into per-vendor sale
// credits. Each vendor's gross is its line totals minus a proportional
// slice of the order discount; tax and shipping stay with the platform.
func (s *service) creditVendors(ctx context.Context, tx *gorm.DB, order *models.Order, ev SettlementEvent) error {
	shares := vendorGrossShares(order)
	if len(shares) == 0 {
		return pkgerrors.New(pkgerrors.CodeInternal, "order has no vendor line items to credit")
	}

	vendorIDs := make([]uuid.UUID, 0, len(shares))
	for vendorID := range shares {
		vendorIDs = append(vendorIDs, vendorID)
	}
	sort.Slice(vendorIDs, func(i, j int) bool {
		return vendorIDs[i].String() < vendorIDs[j].String()
	})

	vendors, err := s.repo.WithTx(tx).FindVendors(ctx, vendorIDs)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]models.Vendor, len(vendors))
	for _, vendor := range vendors {
		byID[vendor.ID] = vendor
	}

	meta, _ := json.Marshal(map[string]string{
		"provider":       ev.Provider,
		"provider_tx_id": ev.ProviderTxID,
	})

	for _, vendorID := range vendorIDs {
		gross := shares[vendorID]
		if gross <= 0 {
			continue
		}
		vendor, ok := byID[vendorID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInternal, "vendor missing for sale credit")
		}
		_, err := s.ledger.CreditSale(ctx, tx, ledger.CreditSaleInput{
			VendorID:       vendorID,
			OrderID:        order.ID,
			GrossCents:     gross,
			CommissionRate: vendor.CommissionRate,
			Description:    fmt.Sprintf("sale credit for order %s", order.OrderNumber),
			Metadata:       meta,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ExpirePending flips pending attempts past their window to expired.
// Nothing is released: a payment attempt holds no stock.
func (s *service) ExpirePending(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.ExpirePendingBefore(ctx, before)
}

func (s *service) failAttempt(ctx context.Context, attemptID uuid.UUID, reason string) {
	err := s.repo.UpdateAttemptStatus(ctx, attemptID, enums.PaymentAttemptStatusPending, enums.PaymentAttemptStatusFailed, map[string]any{
		"failure_reason": reason,
	})
	if err != nil && s.logg != nil && !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		s.logg.Warn(ctx, "failed to mark payment attempt failed: "+err.Error())
	}
}

// vendorGrossShares splits the order subtotal and discount across vendors.
// Discount slices use floor division; the remainder lands on the last
// vendor in id order so the slices always sum to the order discount.
func vendorGrossShares(order *models.Order) map[uuid.UUID]int {
	gross := make(map[uuid.UUID]int)
	for _, item := range order.Items {
		gross[item.VendorID] += item.TotalCents
	}
	if order.DiscountCents <= 0 || order.SubtotalCents <= 0 || len(gross) == 0 {
		return gross
	}

	vendorIDs := make([]uuid.UUID, 0, len(gross))
	for vendorID := range gross {
		vendorIDs = append(vendorIDs, vendorID)
	}
	sort.Slice(vendorIDs, func(i, j int) bool {
		return vendorIDs[i].String() < vendorIDs[j].String()
	})

	allocated := 0
	for i, vendorID := range vendorIDs {
		share := order.DiscountCents * gross[vendorID] / order.SubtotalCents
		if i == len(vendorIDs)-1 {
			share = order.DiscountCents - allocated
		}
		gross[vendorID] -= share
		allocated += share
	}
	return gross
}
