package application

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/bookstore/inventory-service-go/internal/domain"
)

// OrderOutcome summarizes processing of one order event.
type OrderOutcome struct {
	Committed int
	Skipped   int
	Replayed  int
}

// DeductionProcessor drains order.created events and converts line items into
// permanent stock decreases, announcing each one on the stock topic.
//
// Correctness ordering per event: ledger commit (with dedup mark) -> durable
// publish -> acknowledge. A transient failure anywhere aborts without ack, and
// the dedup mark makes the redelivery a republish instead of a double deduct.
type DeductionProcessor struct {
	ledger     domain.StockLedger
	gateway    domain.EventGateway
	stockTopic string
	logger     zerolog.Logger
}

func NewDeductionProcessor(
	ledger domain.StockLedger,
	gateway domain.EventGateway,
	stockTopic string,
	logger zerolog.Logger,
) *DeductionProcessor {
	return &DeductionProcessor{
		ledger:     ledger,
		gateway:    gateway,
		stockTopic: stockTopic,
		logger:     logger.With().Str("component", "deduction-processor").Logger(),
	}
}

// Run consumes events sequentially until ctx is cancelled. Shutdown is honored
// only between events; an event in flight runs to completion or explicit skip
// so it is never left half-acknowledged.
func (p *DeductionProcessor) Run(ctx context.Context) error {
	p.logger.Info().Msg("deduction processor started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("deduction processor stopped")
			return nil
		default:
		}

		msg, err := p.gateway.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info().Msg("deduction processor stopped")
				return nil
			}
			p.logger.Error().Err(err).Msg("receive failed, retrying")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		p.handleMessage(context.WithoutCancel(ctx), msg)
	}
}

func (p *DeductionProcessor) handleMessage(ctx context.Context, msg domain.InboundMessage) {
	ev, err := domain.ParseOrderPlaced(msg.Payload)
	if err != nil {
		// Retrying a malformed event can never succeed: ack and discard.
		p.logger.Error().Err(err).Msg("discarding malformed order event")
		if ackErr := p.gateway.Ack(ctx, msg); ackErr != nil {
			p.logger.Error().Err(ackErr).Msg("failed to ack malformed event")
		}
		return
	}

	p.logger.Info().
		Str("orderId", ev.OrderID.String()).
		Int("items", len(ev.Items)).
		Msg("processing order event")

	outcome, err := p.ProcessOrder(ctx, ev)
	if err != nil {
		// Transient: abstain from acking, the transport will redeliver.
		p.logger.Error().Err(err).
			Str("orderId", ev.OrderID.String()).
			Msg("order processing aborted, awaiting redelivery")
		return
	}

	if err := p.gateway.Ack(ctx, msg); err != nil {
		// Effects are durable; redelivery is safe because every pair is in
		// the dedup log.
		p.logger.Error().Err(err).
			Str("orderId", ev.OrderID.String()).
			Msg("failed to ack processed event")
		return
	}

	evt := p.logger.Info().
		Str("orderId", ev.OrderID.String()).
		Int("committed", outcome.Committed).
		Int("skipped", outcome.Skipped)
	if outcome.Replayed > 0 {
		evt = evt.Int("replayed", outcome.Replayed)
	}
	if outcome.Skipped > 0 {
		evt.Msg("order event partially skipped")
	} else {
		evt.Msg("order event committed")
	}
}

// ProcessOrder attempts every line item in order. Unresolvable items (unknown
// book, not enough stock) are skipped so the rest of the order still applies;
// only infrastructure failures abort and surface an error.
func (p *DeductionProcessor) ProcessOrder(ctx context.Context, ev domain.OrderPlacedEvent) (OrderOutcome, error) {
	var outcome OrderOutcome
	for line, item := range ev.Items {
		d, applied, err := p.ledger.ApplyDeduction(ctx, ev.OrderID, item.BookID, line, item.Quantity)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			p.logger.Warn().
				Str("orderId", ev.OrderID.String()).
				Str("bookId", item.BookID.String()).
				Msg("book not in ledger, skipping line item")
			outcome.Skipped++
			continue
		case errors.Is(err, domain.ErrInsufficientStock):
			var insErr *domain.InsufficientStockError
			errors.As(err, &insErr)
			p.logger.Warn().
				Str("orderId", ev.OrderID.String()).
				Str("bookId", item.BookID.String()).
				Int("available", insErr.Available).
				Int("requested", insErr.Requested).
				Msg("insufficient stock, skipping line item")
			outcome.Skipped++
			continue
		case errors.Is(err, domain.ErrInvariantViolation):
			// A tripped invariant means a bug or a bypassed mutation path.
			// Nothing was committed for this item.
			p.logger.Error().
				Str("orderId", ev.OrderID.String()).
				Str("bookId", item.BookID.String()).
				Msg("ledger invariant violation, skipping line item")
			outcome.Skipped++
			continue
		case err != nil:
			return outcome, err
		}

		if !applied {
			p.logger.Info().
				Str("orderId", ev.OrderID.String()).
				Str("bookId", item.BookID.String()).
				Msg("deduction already applied, republishing")
			outcome.Replayed++
		} else {
			outcome.Committed++
		}

		if err := p.publish(ctx, domain.NewStockChangedEvent(d)); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

func (p *DeductionProcessor) publish(ctx context.Context, ev domain.StockChangedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.gateway.Publish(ctx, p.stockTopic, payload); err != nil {
		return err
	}
	p.logger.Info().
		Str("bookId", ev.BookID.String()).
		Int("previousQuantity", ev.PreviousOnHand).
		Int("newQuantity", ev.NewOnHand).
		Msg("published stock change")
	return nil
}
