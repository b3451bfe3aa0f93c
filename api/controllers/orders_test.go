package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danielvega-dev/shoplane-backend/api/middleware"
	internalorders "github.com/danielvega-dev/shoplane-backend/internal/orders"
	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
	"github.com/danielvega-dev/shoplane-backend/pkg/pagination"
	"github.com/danielvega-dev/shoplane-backend/pkg/types"
)

type fakeOrdersService struct {
	placeFn  func(ctx context.Context, input internalorders.PlaceOrderInput) (*models.Order, error)
	getFn    func(ctx context.Context, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error)
	cancelFn func(ctx context.Context, input internalorders.CancelInput) error
}

func (f *fakeOrdersService) Place(ctx context.Context, input internalorders.PlaceOrderInput) (*models.Order, error) {
	if f.placeFn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unexpected Place call")
	}
	return f.placeFn(ctx, input)
}

func (f *fakeOrdersService) Get(ctx context.Context, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
	if f.getFn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unexpected Get call")
	}
	return f.getFn(ctx, orderID, actor)
}

func (f *fakeOrdersService) ListForCustomer(context.Context, uuid.UUID, pagination.Params, internalorders.CustomerOrderFilters) (*internalorders.OrderList, error) {
	return &internalorders.OrderList{}, nil
}

func (f *fakeOrdersService) ListForVendor(context.Context, uuid.UUID, pagination.Params) (*internalorders.OrderList, error) {
	return &internalorders.OrderList{}, nil
}

func (f *fakeOrdersService) MarkPaid(context.Context, *gorm.DB, uuid.UUID, time.Time) error {
	return nil
}

func (f *fakeOrdersService) MarkDelivered(context.Context, uuid.UUID, internalorders.Actor) error {
	return nil
}

func (f *fakeOrdersService) UpdateStatus(context.Context, internalorders.UpdateStatusInput) error {
	return nil
}

func (f *fakeOrdersService) Cancel(ctx context.Context, input internalorders.CancelInput) error {
	if f.cancelFn == nil {
		return nil
	}
	return f.cancelFn(ctx, input)
}

func authedRequest(method, target, body string, role enums.ActorRole) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req = req.WithContext(middleware.WithIdentity(req.Context(), uuid.NewString(), string(role), ""))
	return req
}

func TestPlaceOrderCreatesAndReturns201(t *testing.T) {
	var captured internalorders.PlaceOrderInput
	svc := &fakeOrdersService{
		placeFn: func(_ context.Context, input internalorders.PlaceOrderInput) (*models.Order, error) {
			captured = input
			return &models.Order{ID: uuid.New(), OrderNumber: "ORD-1", Status: enums.OrderStatusPlaced}, nil
		},
	}

	productID := uuid.NewString()
	body := `{"items":[{"product_id":"` + productID + `","qty":2}],"payment_method":"card"}`
	req := authedRequest(http.MethodPost, "/api/v1/orders", body, enums.ActorRoleCustomer)
	rec := httptest.NewRecorder()
	PlaceOrder(svc, nil)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(captured.Items) != 1 || captured.Items[0].Qty != 2 {
		t.Fatalf("unexpected items %+v", captured.Items)
	}
	if captured.PaymentMethod != enums.PaymentMethodCard {
		t.Fatalf("unexpected payment method %q", captured.PaymentMethod)
	}
}

func TestPlaceOrderRejectsUnknownPaymentMethod(t *testing.T) {
	svc := &fakeOrdersService{}
	body := `{"items":[{"product_id":"` + uuid.NewString() + `","qty":1}],"payment_method":"barter"}`
	req := authedRequest(http.MethodPost, "/api/v1/orders", body, enums.ActorRoleCustomer)
	rec := httptest.NewRecorder()
	PlaceOrder(svc, nil)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPlaceOrderRejectsUnknownBodyFields(t *testing.T) {
	svc := &fakeOrdersService{}
	body := `{"items":[{"product_id":"` + uuid.NewString() + `","qty":1}],"payment_method":"card","total_cents":1}`
	req := authedRequest(http.MethodPost, "/api/v1/orders", body, enums.ActorRoleCustomer)
	rec := httptest.NewRecorder()
	PlaceOrder(svc, nil)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("client-set totals must be rejected, got %d", rec.Code)
	}
}

func TestGetOrderMapsServiceErrors(t *testing.T) {
	svc := &fakeOrdersService{
		getFn: func(context.Context, uuid.UUID, internalorders.Actor) (*models.Order, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		},
	}

	router := chi.NewRouter()
	router.Get("/orders/{orderId}", GetOrder(svc, nil))

	req := authedRequest(http.MethodGet, "/orders/"+uuid.NewString(), "", enums.ActorRoleCustomer)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var envelope types.ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeNotFound) {
		t.Fatalf("unexpected code %s", envelope.Error.Code)
	}
}

func TestCancelOrderPassesReason(t *testing.T) {
	var captured internalorders.CancelInput
	svc := &fakeOrdersService{
		cancelFn: func(_ context.Context, input internalorders.CancelInput) error {
			captured = input
			return nil
		},
	}

	router := chi.NewRouter()
	router.Post("/orders/{orderId}/cancel", CancelOrder(svc, nil))

	orderID := uuid.New()
	req := authedRequest(http.MethodPost, "/orders/"+orderID.String()+"/cancel", `{"reason":"changed my mind"}`, enums.ActorRoleCustomer)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.OrderID != orderID {
		t.Fatalf("unexpected order id %s", captured.OrderID)
	}
	if captured.Reason == nil || *captured.Reason != "changed my mind" {
		t.Fatalf("reason not propagated: %+v", captured.Reason)
	}
}
