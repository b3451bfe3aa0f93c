package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgauth "github.com/danielvega-dev/shoplane-backend/pkg/auth"
	"github.com/danielvega-dev/shoplane-backend/pkg/config"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	"github.com/danielvega-dev/shoplane-backend/pkg/logger"
)

func routerTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "development", Port: "8080"},
		JWT: config.JWTConfig{
			Secret:            "router-test-secret",
			Issuer:            "shoplane-test",
			ExpirationMinutes: 15,
		},
	}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return NewRouter(Deps{
		Config: routerTestConfig(),
		Logger: logger.New(logger.Options{ServiceName: "router-test"}),
	})
}

func mintTestToken(t *testing.T, cfg *config.Config, role enums.ActorRole, vendorID *uuid.UUID) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID:   uuid.New(),
		Role:     role,
		VendorID: vendorID,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLiveIsPublic(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Shoplane-Env"); got != "development" {
		t.Fatalf("unexpected env header %q", got)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{
		"/api/v1/orders",
		"/api/v1/payouts/balance",
		"/api/v1/notifications",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestAdminRoutesRejectOtherRoles(t *testing.T) {
	cfg := routerTestConfig()
	router := NewRouter(Deps{
		Config: cfg,
		Logger: logger.New(logger.Options{ServiceName: "router-test"}),
	})
	token := mintTestToken(t, cfg, enums.ActorRoleCustomer, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payouts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestTokenMintAvailableOutsideProd(t *testing.T) {
	router := newTestRouter(t)

	body := strings.NewReader(`{"user_id":"` + uuid.NewString() + `","role":"customer"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTokenMintHiddenInProd(t *testing.T) {
	cfg := routerTestConfig()
	cfg.App.Env = "production"
	router := NewRouter(Deps{
		Config: cfg,
		Logger: logger.New(logger.Options{ServiceName: "router-test"}),
	})

	body := strings.NewReader(`{"user_id":"` + uuid.NewString() + `","role":"customer"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatal("token mint should not be mounted in prod")
	}
}
