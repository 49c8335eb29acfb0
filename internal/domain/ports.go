package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MutateFunc transforms a record in place under the per-book lock. Returning
// an error aborts the mutation; nothing is committed.
type MutateFunc func(*StockRecord) error

// Deduction is one committed line-item stock decrease. The ledger keeps it so
// a replayed order event can republish the identical StockChangedEvent instead
// of deducting twice. Line is the item's position within its order: the same
// book may appear on several lines of one order, and each line deducts on its
// own.
type Deduction struct {
	OrderID        uuid.UUID
	BookID         uuid.UUID
	Line           int
	Quantity       int
	PreviousOnHand int
	NewOnHand      int
	AppliedAt      time.Time
}

// StockLedger is the single choke point for stock state. Implementations
// serialize access per book (row lock or keyed mutex) and enforce
// 0 <= reserved <= on_hand on every commit.
type StockLedger interface {
	Get(ctx context.Context, bookID uuid.UUID) (StockRecord, error)

	// Mutate applies fn to the current record under the per-book lock and
	// commits the result. ErrNotFound if the book is absent,
	// ErrInvariantViolation if fn left the record inconsistent.
	Mutate(ctx context.Context, bookID uuid.UUID, fn MutateFunc) (StockRecord, error)

	// ApplyDeduction decreases on_hand by qty exactly once per
	// (orderID, bookID, line) tuple. The line index distinguishes a
	// redelivered event from the same book repeated on another line of one
	// order. The dedup mark commits atomically with the mutation. A replayed
	// tuple returns the originally recorded deduction with applied=false and
	// changes nothing. Fails with ErrNotFound or *InsufficientStockError
	// without committing.
	ApplyDeduction(ctx context.Context, orderID, bookID uuid.UUID, line, qty int) (d Deduction, applied bool, err error)

	// Seed creates or resets a record. Bootstrap and tests only.
	Seed(ctx context.Context, bookID uuid.UUID, onHand int) error
}

// InboundMessage is one raw event as delivered by the transport. Handle is
// whatever the gateway needs to acknowledge it later.
type InboundMessage struct {
	Payload []byte
	Handle  any
}

// EventGateway is the minimal consumer/producer contract the deduction
// processor needs. Ack must not be called until every effect of the message is
// durable; Publish either succeeds durably or returns an error.
type EventGateway interface {
	Receive(ctx context.Context) (InboundMessage, error)
	Ack(ctx context.Context, msg InboundMessage) error
	Publish(ctx context.Context, topic string, payload []byte) error
}
