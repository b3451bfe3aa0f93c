package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
	"github.com/danielvega-dev/shoplane-backend/pkg/logger"
	"github.com/danielvega-dev/shoplane-backend/pkg/pagination"
)

// Service defines notification list/read operations plus the fire-and-forget
// emitters other services call. Emitters never return an error: a failed
// delivery is logged and must not fail the operation that triggered it.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)

	OrderStatusChanged(ctx context.Context, userID uuid.UUID, order *models.Order, to enums.OrderStatus)
	PayoutStatusChanged(ctx context.Context, userID uuid.UUID, payout *models.Payout)
	PaymentSettled(ctx context.Context, userID uuid.UUID, order *models.Order)
}

type service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items       []models.Notification `json:"items"`
	UnreadCount int64                 `json:"unread_count"`
	Cursor      string                `json:"cursor"`
}

// NewService wires notifications dependencies. The logger may be nil.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo, logg: logg, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listNotificationsParams{
		UserID:     params.UserID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	unread, err := s.repo.CountUnread(ctx, params.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{
		Items:       rows,
		UnreadCount: unread,
		Cursor:      cursor,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, userID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func (s *service) OrderStatusChanged(ctx context.Context, userID uuid.UUID, order *models.Order, to enums.OrderStatus) {
	if order == nil {
		return
	}
	link := "/orders/" + order.ID.String()
	s.deliver(ctx, &models.Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Type:    enums.NotificationTypeOrderStatus,
		Title:   fmt.Sprintf("Order %s is %s", order.OrderNumber, to),
		Message: fmt.Sprintf("Your order %s moved to %s.", order.OrderNumber, to),
		Link:    &link,
	})
}

func (s *service) PayoutStatusChanged(ctx context.Context, userID uuid.UUID, payout *models.Payout) {
	if payout == nil {
		return
	}
	link := "/payouts/" + payout.ID.String()
	message := fmt.Sprintf("Your payout of %d cents is %s.", payout.AmountCents, payout.Status)
	if payout.FailureReason != nil {
		message = fmt.Sprintf("Your payout of %d cents is %s: %s", payout.AmountCents, payout.Status, *payout.FailureReason)
	}
	s.deliver(ctx, &models.Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Type:    enums.NotificationTypePayoutStatus,
		Title:   fmt.Sprintf("Payout %s", payout.Status),
		Message: message,
		Link:    &link,
	})
}

func (s *service) PaymentSettled(ctx context.Context, userID uuid.UUID, order *models.Order) {
	if order == nil {
		return
	}
	link := "/orders/" + order.ID.String()
	s.deliver(ctx, &models.Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Type:    enums.NotificationTypePayment,
		Title:   fmt.Sprintf("Payment received for order %s", order.OrderNumber),
		Message: fmt.Sprintf("We received %d cents for order %s.", order.TotalCents, order.OrderNumber),
		Link:    &link,
	})
}

func (s *service) deliver(ctx context.Context, notification *models.Notification) {
	if notification.UserID == uuid.Nil {
		return
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "notification delivery failed: "+err.Error())
		}
	}
}
