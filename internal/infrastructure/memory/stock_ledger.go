package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bookstore/inventory-service-go/internal/domain"
)

type entry struct {
	mu     sync.Mutex
	record domain.StockRecord
}

type deductionKey struct {
	orderID uuid.UUID
	bookID  uuid.UUID
	line    int
}

// StockLedger keeps stock in process memory with one mutex per book. Used by
// tests and local runs; the production store is db.PgStockLedger.
type StockLedger struct {
	mu      sync.Mutex // guards the books map, never held during a mutation
	books   map[uuid.UUID]*entry
	dedupMu sync.Mutex
	applied map[deductionKey]domain.Deduction
}

func NewStockLedger() *StockLedger {
	return &StockLedger{
		books:   make(map[uuid.UUID]*entry),
		applied: make(map[deductionKey]domain.Deduction),
	}
}

func (l *StockLedger) lookup(bookID uuid.UUID) (*entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.books[bookID]
	return e, ok
}

func (l *StockLedger) Get(ctx context.Context, bookID uuid.UUID) (domain.StockRecord, error) {
	_ = ctx
	e, ok := l.lookup(bookID)
	if !ok {
		return domain.StockRecord{}, domain.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record, nil
}

func (l *StockLedger) Mutate(ctx context.Context, bookID uuid.UUID, fn domain.MutateFunc) (domain.StockRecord, error) {
	_ = ctx
	e, ok := l.lookup(bookID)
	if !ok {
		return domain.StockRecord{}, domain.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.record
	if err := fn(&next); err != nil {
		return domain.StockRecord{}, err
	}
	if err := next.Validate(); err != nil {
		return domain.StockRecord{}, err
	}
	e.record = next
	return next, nil
}

func (l *StockLedger) ApplyDeduction(ctx context.Context, orderID, bookID uuid.UUID, line, qty int) (domain.Deduction, bool, error) {
	_ = ctx
	e, ok := l.lookup(bookID)
	if !ok {
		return domain.Deduction{}, false, domain.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := deductionKey{orderID: orderID, bookID: bookID, line: line}
	l.dedupMu.Lock()
	prior, seen := l.applied[key]
	l.dedupMu.Unlock()
	if seen {
		return prior, false, nil
	}

	rec := e.record
	if rec.Available() < qty {
		return domain.Deduction{}, false, &domain.InsufficientStockError{
			BookID:    bookID.String(),
			Available: rec.Available(),
			Requested: qty,
		}
	}

	d := domain.Deduction{
		OrderID:        orderID,
		BookID:         bookID,
		Line:           line,
		Quantity:       qty,
		PreviousOnHand: rec.OnHand,
		NewOnHand:      rec.OnHand - qty,
		AppliedAt:      time.Now().UTC(),
	}
	rec.OnHand = d.NewOnHand
	rec.UpdatedAt = d.AppliedAt
	if err := rec.Validate(); err != nil {
		return domain.Deduction{}, false, err
	}

	e.record = rec
	l.dedupMu.Lock()
	l.applied[key] = d
	l.dedupMu.Unlock()
	return d, true, nil
}

func (l *StockLedger) Seed(ctx context.Context, bookID uuid.UUID, onHand int) error {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	l.books[bookID] = &entry{record: *domain.NewStockRecord(bookID, onHand)}
	return nil
}
