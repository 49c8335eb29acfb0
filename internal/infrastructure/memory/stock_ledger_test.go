package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/bookstore/inventory-service-go/internal/domain"
)

func TestStockLedger_GetAndMutate(t *testing.T) {
	ctx := context.Background()
	bookID := uuid.New()

	t.Run("get missing book", func(t *testing.T) {
		ledger := NewStockLedger()
		if _, err := ledger.Get(ctx, bookID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("mutate missing book", func(t *testing.T) {
		ledger := NewStockLedger()
		_, err := ledger.Mutate(ctx, bookID, func(r *domain.StockRecord) error { return nil })
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("mutate commits transformation", func(t *testing.T) {
		ledger := NewStockLedger()
		ledger.Seed(ctx, bookID, 10)

		rec, err := ledger.Mutate(ctx, bookID, func(r *domain.StockRecord) error {
			r.Reserve(4)
			return nil
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if rec.Reserved != 4 || rec.OnHand != 10 {
			t.Fatalf("unexpected record after mutate: %+v", rec)
		}
	})

	t.Run("mutate rejects invariant violation without commit", func(t *testing.T) {
		ledger := NewStockLedger()
		ledger.Seed(ctx, bookID, 10)

		_, err := ledger.Mutate(ctx, bookID, func(r *domain.StockRecord) error {
			r.Reserved = 11
			return nil
		})
		if !errors.Is(err, domain.ErrInvariantViolation) {
			t.Fatalf("expected ErrInvariantViolation, got %v", err)
		}

		rec, err := ledger.Get(ctx, bookID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if rec.Reserved != 0 {
			t.Fatalf("rejected mutation must not commit, reserved=%d", rec.Reserved)
		}
	})

	t.Run("mutate propagates fn error without commit", func(t *testing.T) {
		ledger := NewStockLedger()
		ledger.Seed(ctx, bookID, 10)

		boom := errors.New("boom")
		_, err := ledger.Mutate(ctx, bookID, func(r *domain.StockRecord) error {
			r.OnHand = 99
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected fn error, got %v", err)
		}

		rec, _ := ledger.Get(ctx, bookID)
		if rec.OnHand != 10 {
			t.Fatalf("failed mutation must not commit, onHand=%d", rec.OnHand)
		}
	})
}

// Concurrent reservations against one book must serialize: the sum of
// successful reservations equals the final reserved value and never exceeds
// on-hand stock.
func TestStockLedger_ConcurrentReservations(t *testing.T) {
	ctx := context.Background()
	bookID := uuid.New()
	ledger := NewStockLedger()
	ledger.Seed(ctx, bookID, 10)

	const attempts = 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Mutate(ctx, bookID, func(r *domain.StockRecord) error {
				if !r.CanReserve(1) {
					return &domain.InsufficientStockError{
						BookID: bookID.String(), Available: r.Available(), Requested: 1,
					}
				}
				r.Reserve(1)
				return nil
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	rec, err := ledger.Get(ctx, bookID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if succeeded != 10 {
		t.Fatalf("expected exactly 10 successful reservations, got %d", succeeded)
	}
	if rec.Reserved != succeeded {
		t.Fatalf("final reserved %d does not match successes %d", rec.Reserved, succeeded)
	}
	if rec.Reserved > rec.OnHand {
		t.Fatalf("invariant broken: reserved=%d on_hand=%d", rec.Reserved, rec.OnHand)
	}
}

func TestStockLedger_ApplyDeduction(t *testing.T) {
	ctx := context.Background()

	t.Run("deducts once and records the pair", func(t *testing.T) {
		ledger := NewStockLedger()
		bookID, orderID := uuid.New(), uuid.New()
		ledger.Seed(ctx, bookID, 50)

		d, applied, err := ledger.ApplyDeduction(ctx, orderID, bookID, 0, 5)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !applied {
			t.Fatalf("expected first application to apply")
		}
		if d.PreviousOnHand != 50 || d.NewOnHand != 45 {
			t.Fatalf("unexpected deduction: %+v", d)
		}

		rec, _ := ledger.Get(ctx, bookID)
		if rec.OnHand != 45 {
			t.Fatalf("expected on hand 45, got %d", rec.OnHand)
		}
	})

	t.Run("replayed pair is a no-op returning the original deduction", func(t *testing.T) {
		ledger := NewStockLedger()
		bookID, orderID := uuid.New(), uuid.New()
		ledger.Seed(ctx, bookID, 50)

		first, _, err := ledger.ApplyDeduction(ctx, orderID, bookID, 0, 5)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		replay, applied, err := ledger.ApplyDeduction(ctx, orderID, bookID, 0, 5)
		if err != nil {
			t.Fatalf("expected no error on replay, got %v", err)
		}
		if applied {
			t.Fatalf("replay must not apply again")
		}
		if replay != first {
			t.Fatalf("replay must return the recorded deduction: %+v vs %+v", replay, first)
		}

		rec, _ := ledger.Get(ctx, bookID)
		if rec.OnHand != 45 {
			t.Fatalf("replay double-deducted: on hand %d", rec.OnHand)
		}
	})

	t.Run("same book on two lines of one order deducts per line", func(t *testing.T) {
		ledger := NewStockLedger()
		bookID, orderID := uuid.New(), uuid.New()
		ledger.Seed(ctx, bookID, 10)

		first, applied, err := ledger.ApplyDeduction(ctx, orderID, bookID, 0, 4)
		if err != nil || !applied {
			t.Fatalf("first line: applied=%v err=%v", applied, err)
		}
		second, applied, err := ledger.ApplyDeduction(ctx, orderID, bookID, 1, 4)
		if err != nil {
			t.Fatalf("second line: %v", err)
		}
		if !applied {
			t.Fatalf("second line for the same book must deduct, not replay")
		}
		if first.NewOnHand != 6 || second.PreviousOnHand != 6 || second.NewOnHand != 2 {
			t.Fatalf("lines must sum: first=%+v second=%+v", first, second)
		}

		rec, _ := ledger.Get(ctx, bookID)
		if rec.OnHand != 2 {
			t.Fatalf("expected on hand 2, got %d", rec.OnHand)
		}
	})

	t.Run("insufficient stock leaves state untouched", func(t *testing.T) {
		ledger := NewStockLedger()
		bookID := uuid.New()
		ledger.Seed(ctx, bookID, 3)

		_, _, err := ledger.ApplyDeduction(ctx, uuid.New(), bookID, 0, 4)
		if !errors.Is(err, domain.ErrInsufficientStock) {
			t.Fatalf("expected ErrInsufficientStock, got %v", err)
		}

		rec, _ := ledger.Get(ctx, bookID)
		if rec.OnHand != 3 {
			t.Fatalf("expected on hand unchanged, got %d", rec.OnHand)
		}
	})

	t.Run("reserved stock is not offerable to orders", func(t *testing.T) {
		ledger := NewStockLedger()
		bookID := uuid.New()
		ledger.Seed(ctx, bookID, 10)
		ledger.Mutate(ctx, bookID, func(r *domain.StockRecord) error {
			r.Reserve(8)
			return nil
		})

		_, _, err := ledger.ApplyDeduction(ctx, uuid.New(), bookID, 0, 3)
		var insErr *domain.InsufficientStockError
		if !errors.As(err, &insErr) {
			t.Fatalf("expected insufficient stock, got %v", err)
		}
		if insErr.Available != 2 {
			t.Fatalf("expected available 2 reported, got %d", insErr.Available)
		}
	})

	t.Run("unknown book", func(t *testing.T) {
		ledger := NewStockLedger()
		_, _, err := ledger.ApplyDeduction(ctx, uuid.New(), uuid.New(), 0, 1)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
