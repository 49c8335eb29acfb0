package application

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bookstore/inventory-service-go/internal/domain"
	"github.com/bookstore/inventory-service-go/internal/infrastructure/memory"
)

func newTestLedger(t *testing.T, bookID uuid.UUID, onHand int) *memory.StockLedger {
	t.Helper()
	ledger := memory.NewStockLedger()
	if err := ledger.Seed(context.Background(), bookID, onHand); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return ledger
}

func TestReserveStockService_Reserve(t *testing.T) {
	ctx := context.Background()
	bookID := uuid.New()

	t.Run("reserves and reports remaining availability", func(t *testing.T) {
		ledger := newTestLedger(t, bookID, 50)
		svc := NewReserveStockService(ledger, zerolog.Nop())

		result, err := svc.Reserve(ctx, bookID, 20)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.QuantityReserved != 20 {
			t.Fatalf("expected quantityReserved 20, got %d", result.QuantityReserved)
		}
		if result.RemainingAvailable != 30 {
			t.Fatalf("expected remainingAvailable 30, got %d", result.RemainingAvailable)
		}
	})

	t.Run("allows reserving the full on-hand quantity", func(t *testing.T) {
		ledger := newTestLedger(t, bookID, 10)
		svc := NewReserveStockService(ledger, zerolog.Nop())

		result, err := svc.Reserve(ctx, bookID, 10)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.RemainingAvailable != 0 {
			t.Fatalf("expected remainingAvailable 0, got %d", result.RemainingAvailable)
		}
	})

	t.Run("rejects one unit beyond on-hand", func(t *testing.T) {
		ledger := newTestLedger(t, bookID, 10)
		svc := NewReserveStockService(ledger, zerolog.Nop())

		_, err := svc.Reserve(ctx, bookID, 11)
		var insErr *domain.InsufficientStockError
		if !errors.As(err, &insErr) {
			t.Fatalf("expected InsufficientStockError, got %v", err)
		}
		if insErr.Available != 10 || insErr.Requested != 11 {
			t.Fatalf("unexpected figures: %+v", insErr)
		}

		rec, _ := ledger.Get(ctx, bookID)
		if rec.Reserved != 0 {
			t.Fatalf("rejected reserve must not change state, reserved=%d", rec.Reserved)
		}
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		ledger := newTestLedger(t, bookID, 10)
		svc := NewReserveStockService(ledger, zerolog.Nop())

		for _, qty := range []int{0, -3} {
			if _, err := svc.Reserve(ctx, bookID, qty); !errors.Is(err, domain.ErrInvalidQuantity) {
				t.Fatalf("expected ErrInvalidQuantity for %d, got %v", qty, err)
			}
		}
	})

	t.Run("unknown book", func(t *testing.T) {
		svc := NewReserveStockService(memory.NewStockLedger(), zerolog.Nop())
		if _, err := svc.Reserve(ctx, uuid.New(), 1); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestReserveStockService_Release(t *testing.T) {
	ctx := context.Background()
	bookID := uuid.New()

	t.Run("releases a prior hold", func(t *testing.T) {
		ledger := newTestLedger(t, bookID, 50)
		svc := NewReserveStockService(ledger, zerolog.Nop())

		if _, err := svc.Reserve(ctx, bookID, 20); err != nil {
			t.Fatalf("reserve: %v", err)
		}
		result, err := svc.Release(ctx, bookID, 5)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.QuantityReleased != 5 {
			t.Fatalf("expected quantityReleased 5, got %d", result.QuantityReleased)
		}
		if result.RemainingAvailable != 35 {
			t.Fatalf("expected remainingAvailable 35, got %d", result.RemainingAvailable)
		}
	})

	t.Run("over-release clamps at the current hold", func(t *testing.T) {
		ledger := newTestLedger(t, bookID, 50)
		svc := NewReserveStockService(ledger, zerolog.Nop())

		if _, err := svc.Reserve(ctx, bookID, 3); err != nil {
			t.Fatalf("reserve: %v", err)
		}
		result, err := svc.Release(ctx, bookID, 10)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.QuantityReleased != 3 {
			t.Fatalf("expected quantityReleased 3, got %d", result.QuantityReleased)
		}

		rec, _ := ledger.Get(ctx, bookID)
		if rec.Reserved != 0 {
			t.Fatalf("expected reserved 0, got %d", rec.Reserved)
		}
	})
}
