package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bookstore/inventory-service-go/internal/domain"
)

// ReservationResult is returned to the caller so it can show remaining stock
// without a second read.
type ReservationResult struct {
	BookID             uuid.UUID
	QuantityReserved   int
	RemainingAvailable int
}

// ReserveStockService holds and releases stock against future orders. It does
// not deduplicate requests; callers issuing retries must send distinct intents.
type ReserveStockService struct {
	ledger domain.StockLedger
	logger zerolog.Logger
}

func NewReserveStockService(ledger domain.StockLedger, logger zerolog.Logger) *ReserveStockService {
	return &ReserveStockService{
		ledger: ledger,
		logger: logger.With().Str("component", "reserve-service").Logger(),
	}
}

// Reserve increments the hold on a book if enough stock is available. Two
// concurrent calls against the same book are serialized by the ledger's
// per-book lock, so successful reservations can never exceed on-hand.
func (s *ReserveStockService) Reserve(ctx context.Context, bookID uuid.UUID, qty int) (ReservationResult, error) {
	if qty <= 0 {
		return ReservationResult{}, domain.ErrInvalidQuantity
	}

	rec, err := s.ledger.Mutate(ctx, bookID, func(r *domain.StockRecord) error {
		if !r.CanReserve(qty) {
			return &domain.InsufficientStockError{
				BookID:    bookID.String(),
				Available: r.Available(),
				Requested: qty,
			}
		}
		r.Reserve(qty)
		return nil
	})
	if err != nil {
		return ReservationResult{}, err
	}

	s.logger.Info().
		Str("bookId", bookID.String()).
		Int("quantity", qty).
		Int("remainingAvailable", rec.Available()).
		Msg("stock reserved")

	return ReservationResult{
		BookID:             bookID,
		QuantityReserved:   qty,
		RemainingAvailable: rec.Available(),
	}, nil
}

// ReleaseResult reports how much of a hold actually came back; a release
// larger than the current hold clamps at zero.
type ReleaseResult struct {
	BookID             uuid.UUID
	QuantityReleased   int
	RemainingAvailable int
}

// Release gives back part of a hold, e.g. when an order is cancelled before
// fulfillment.
func (s *ReserveStockService) Release(ctx context.Context, bookID uuid.UUID, qty int) (ReleaseResult, error) {
	if qty <= 0 {
		return ReleaseResult{}, domain.ErrInvalidQuantity
	}

	released := 0
	rec, err := s.ledger.Mutate(ctx, bookID, func(r *domain.StockRecord) error {
		released = qty
		if r.Reserved < qty {
			released = r.Reserved
		}
		r.Release(qty)
		return nil
	})
	if err != nil {
		return ReleaseResult{}, err
	}

	s.logger.Info().
		Str("bookId", bookID.String()).
		Int("quantity", released).
		Int("remainingAvailable", rec.Available()).
		Msg("reservation released")

	return ReleaseResult{
		BookID:             bookID,
		QuantityReleased:   released,
		RemainingAvailable: rec.Available(),
	}, nil
}
