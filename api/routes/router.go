package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/danielvega-dev/shoplane-backend/api/controllers"
	"github.com/danielvega-dev/shoplane-backend/api/middleware"
	"github.com/danielvega-dev/shoplane-backend/internal/coupons"
	"github.com/danielvega-dev/shoplane-backend/internal/notifications"
	"github.com/danielvega-dev/shoplane-backend/internal/orders"
	"github.com/danielvega-dev/shoplane-backend/internal/payments"
	"github.com/danielvega-dev/shoplane-backend/internal/payouts"
	"github.com/danielvega-dev/shoplane-backend/pkg/config"
	"github.com/danielvega-dev/shoplane-backend/pkg/db"
	"github.com/danielvega-dev/shoplane-backend/pkg/logger"
	"github.com/danielvega-dev/shoplane-backend/pkg/redis"
)

// Deps carries everything the router mounts.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            *db.Client
	Redis         *redis.Client
	Orders        orders.Service
	Payments      payments.Service
	Payouts       payouts.Service
	Coupons       coupons.Service
	Notifications notifications.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	if !cfg.App.IsProd() {
		r.Post("/api/v1/auth/token", controllers.MintToken(cfg, logg))
	}

	// Provider callbacks authenticate with their own signatures.
	r.Post("/api/v1/payments/wallet/confirm", controllers.ConfirmWalletPayment(deps.Payments, logg))

	// Public coupon quote.
	r.Post("/api/v1/coupons/validate", controllers.ValidateCoupon(deps.Coupons, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(cfg.RateLimit, deps.Redis, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Post("/", controllers.PlaceOrder(deps.Orders, logg))
			r.Get("/{orderId}", controllers.GetOrder(deps.Orders, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(deps.Orders, logg))
			r.Patch("/{orderId}/status", controllers.UpdateOrderStatus(deps.Orders, logg))
			r.With(middleware.RequireRole("admin", logg)).
				Post("/{orderId}/deliver", controllers.DeliverOrder(deps.Orders, logg))
		})

		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.RequireRole("vendor", logg))
			r.Get("/orders", controllers.ListVendorOrders(deps.Orders, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/{orderId}/initiate", controllers.InitiatePayment(deps.Payments, logg))
			r.With(middleware.RequireRole("admin", logg)).
				Post("/{orderId}/settle", controllers.SettleManualPayment(deps.Payments, logg))
		})

		r.Route("/payouts", func(r chi.Router) {
			r.With(middleware.RequireRole("admin", logg)).
				Get("/", controllers.ListPayouts(deps.Payouts, logg))
			r.With(middleware.RequireRole("vendor", logg)).
				Post("/", controllers.RequestPayout(deps.Payouts, logg))
			r.With(middleware.RequireRole("vendor", logg)).
				Get("/vendor", controllers.ListVendorPayouts(deps.Payouts, logg))
			r.With(middleware.RequireRole("vendor", logg)).
				Get("/balance", controllers.VendorBalance(deps.Payouts, logg))
			r.With(middleware.RequireRole("admin", logg)).
				Patch("/{payoutId}/status", controllers.UpdatePayoutStatus(deps.Payouts, logg))
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Post("/apply", controllers.ApplyCoupon(deps.Coupons, deps.DB, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole("admin", logg))
				r.Get("/", controllers.ListCoupons(deps.Coupons, logg))
				r.Post("/", controllers.CreateCoupon(deps.Coupons, logg))
				r.Get("/{couponId}", controllers.GetCoupon(deps.Coupons, logg))
				r.Put("/{couponId}", controllers.UpdateCoupon(deps.Coupons, logg))
				r.Delete("/{couponId}", controllers.DeactivateCoupon(deps.Coupons, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})
	})

	return r
}
