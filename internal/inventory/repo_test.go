package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
)

func newTestRepo(t *testing.T) (Repository, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.InventoryItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRepository(conn), conn
}

func seedItem(t *testing.T, conn *gorm.DB, available, reserved int) uuid.UUID {
	t.Helper()
	productID := uuid.New()
	item := models.InventoryItem{ProductID: productID, AvailableQty: available, ReservedQty: reserved}
	if err := conn.Create(&item).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	return productID
}

func TestReserveMovesStock(t *testing.T) {
	repo, conn := newTestRepo(t)
	productID := seedItem(t, conn, 10, 0)
	ctx := context.Background()

	if err := repo.Reserve(ctx, productID, 4); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	item, err := repo.Find(ctx, productID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if item.AvailableQty != 6 || item.ReservedQty != 4 {
		t.Fatalf("unexpected counts available=%d reserved=%d", item.AvailableQty, item.ReservedQty)
	}
}

func TestReserveRejectsInsufficientStock(t *testing.T) {
	repo, conn := newTestRepo(t)
	productID := seedItem(t, conn, 2, 0)
	ctx := context.Background()

	err := repo.Reserve(ctx, productID, 3)
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected INSUFFICIENT_STOCK, got %v", err)
	}

	item, err := repo.Find(ctx, productID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if item.AvailableQty != 2 || item.ReservedQty != 0 {
		t.Fatalf("failed reserve must not change counters: %+v", item)
	}
}

func TestReserveNeverOversells(t *testing.T) {
	repo, conn := newTestRepo(t)
	productID := seedItem(t, conn, 5, 0)
	ctx := context.Background()

	succeeded := 0
	for i := 0; i < 10; i++ {
		if err := repo.Reserve(ctx, productID, 1); err == nil {
			succeeded++
		} else if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	if succeeded != 5 {
		t.Fatalf("expected exactly 5 reservations to win, got %d", succeeded)
	}

	item, err := repo.Find(ctx, productID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if item.AvailableQty != 0 || item.ReservedQty != 5 {
		t.Fatalf("unexpected counts after race: %+v", item)
	}
}

func TestConcurrentReservesForLastUnitAllowOneWinner(t *testing.T) {
	repo, conn := newTestRepo(t)
	// sqlite shared-cache writes cannot interleave, so serialize at the
	// pool and race at the callers.
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	productID := seedItem(t, conn, 1, 0)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.Reserve(ctx, productID, 1)
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 concurrent reserve to win, got %d", wins)
	}

	item, err := repo.Find(ctx, productID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if item.AvailableQty != 0 || item.ReservedQty != 1 {
		t.Fatalf("unexpected counts after race: %+v", item)
	}
}

func TestCommitAndReleaseReservation(t *testing.T) {
	repo, conn := newTestRepo(t)
	productID := seedItem(t, conn, 10, 0)
	ctx := context.Background()

	if err := repo.Reserve(ctx, productID, 6); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := repo.CommitReservation(ctx, productID, 4); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := repo.Release(ctx, productID, 2); err != nil {
		t.Fatalf("release: %v", err)
	}

	item, err := repo.Find(ctx, productID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if item.AvailableQty != 6 || item.ReservedQty != 0 {
		t.Fatalf("unexpected counts available=%d reserved=%d", item.AvailableQty, item.ReservedQty)
	}

	if err := repo.Release(ctx, productID, 1); err == nil {
		t.Fatal("expected underflow error when releasing with no reservation")
	}
}
