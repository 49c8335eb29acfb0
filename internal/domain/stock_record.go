package domain

import (
	"time"

	"github.com/google/uuid"
)

// StockRecord is the ledger entry for a single book. It is the only shared
// mutable state in the service; every mutation goes through StockLedger.
type StockRecord struct {
	BookID    uuid.UUID
	OnHand    int
	Reserved  int
	UpdatedAt time.Time
}

func NewStockRecord(bookID uuid.UUID, onHand int) *StockRecord {
	return &StockRecord{
		BookID:    bookID,
		OnHand:    onHand,
		Reserved:  0,
		UpdatedAt: time.Now().UTC(),
	}
}

// Available is derived, never stored, so it cannot drift from its parts.
func (s *StockRecord) Available() int {
	return s.OnHand - s.Reserved
}

// Validate checks the ledger invariant 0 <= reserved <= on_hand.
func (s *StockRecord) Validate() error {
	if s.OnHand < 0 || s.Reserved < 0 || s.Reserved > s.OnHand {
		return ErrInvariantViolation
	}
	return nil
}

func (s *StockRecord) CanReserve(qty int) bool {
	return qty > 0 && s.Available() >= qty
}

func (s *StockRecord) Reserve(qty int) {
	s.Reserved += qty
	s.UpdatedAt = time.Now().UTC()
}

// Release gives back a prior hold. Releasing more than is held clamps at zero.
func (s *StockRecord) Release(qty int) {
	if s.Reserved >= qty {
		s.Reserved -= qty
	} else {
		s.Reserved = 0
	}
	s.UpdatedAt = time.Now().UTC()
}
