package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =========== Inbound events (order.created) ===========

type OrderLine struct {
	BookID   uuid.UUID `json:"bookId"`
	Quantity int       `json:"quantity"`
}

// OrderPlacedEvent is produced by the order service. Delivery is at-least-once,
// so processing must tolerate replays (see StockLedger.ApplyDeduction).
type OrderPlacedEvent struct {
	OrderID uuid.UUID   `json:"orderId"`
	Items   []OrderLine `json:"items"`
}

// ParseOrderPlaced decodes an order.created payload. Any failure here is
// terminal: the event is reported as ErrParse and never redelivered.
func ParseOrderPlaced(payload []byte) (OrderPlacedEvent, error) {
	var ev OrderPlacedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return OrderPlacedEvent{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if ev.OrderID == uuid.Nil {
		return OrderPlacedEvent{}, fmt.Errorf("%w: missing orderId", ErrParse)
	}
	if len(ev.Items) == 0 {
		return OrderPlacedEvent{}, fmt.Errorf("%w: order %s has no items", ErrParse, ev.OrderID)
	}
	for _, item := range ev.Items {
		if item.BookID == uuid.Nil {
			return OrderPlacedEvent{}, fmt.Errorf("%w: order %s has an item without bookId", ErrParse, ev.OrderID)
		}
		if item.Quantity <= 0 {
			return OrderPlacedEvent{}, fmt.Errorf("%w: order %s has an item with quantity %d",
				ErrParse, ev.OrderID, item.Quantity)
		}
	}
	return ev, nil
}

// =========== Outbound events (inventory.updated) ===========

// StockChangedEvent announces one committed deduction. It is the only artifact
// downstream systems may rely on for stock history.
type StockChangedEvent struct {
	BookID         uuid.UUID `json:"bookId"`
	PreviousOnHand int       `json:"previousQuantity"`
	NewOnHand      int       `json:"newQuantity"`
	OrderID        uuid.UUID `json:"orderId"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewStockChangedEvent(d Deduction) StockChangedEvent {
	return StockChangedEvent{
		BookID:         d.BookID,
		PreviousOnHand: d.PreviousOnHand,
		NewOnHand:      d.NewOnHand,
		OrderID:        d.OrderID,
		Timestamp:      d.AppliedAt,
	}
}
