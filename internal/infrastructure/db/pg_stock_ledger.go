package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bookstore/inventory-service-go/internal/domain"
)

// PgStockLedger is the durable ledger. Per-book serialization comes from
// `select ... for update` row locks; the deduction dedup mark commits in the
// same transaction as the stock update, so a replay can never half-apply.
type PgStockLedger struct {
	db *sql.DB
}

func NewPgStockLedger(db *sql.DB) *PgStockLedger {
	return &PgStockLedger{db: db}
}

// Migrate creates the ledger tables if they are missing.
func (l *PgStockLedger) Migrate(ctx context.Context) error {
	schema := `
        create table if not exists inventory_stock (
            book_id     uuid primary key,
            on_hand     integer not null default 0,
            reserved    integer not null default 0,
            updated_at  timestamptz not null default now(),
            constraint stock_non_negative check (on_hand >= 0 and reserved >= 0 and reserved <= on_hand)
        );
        create table if not exists stock_deductions (
            order_id         uuid not null,
            book_id          uuid not null,
            item_index       integer not null,
            quantity         integer not null,
            previous_on_hand integer not null,
            new_on_hand      integer not null,
            applied_at       timestamptz not null default now(),
            primary key (order_id, book_id, item_index)
        );
    `
	_, err := l.db.ExecContext(ctx, schema)
	return err
}

func (l *PgStockLedger) Get(ctx context.Context, bookID uuid.UUID) (domain.StockRecord, error) {
	query := `
        select book_id, on_hand, reserved, updated_at
        from inventory_stock
        where book_id = $1
    `
	var rec domain.StockRecord
	err := l.db.QueryRowContext(ctx, query, bookID).Scan(
		&rec.BookID,
		&rec.OnHand,
		&rec.Reserved,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.StockRecord{}, &domain.TransientError{Op: "ledger get", Err: err}
	}
	return rec, nil
}

func (l *PgStockLedger) Mutate(ctx context.Context, bookID uuid.UUID, fn domain.MutateFunc) (domain.StockRecord, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StockRecord{}, &domain.TransientError{Op: "ledger mutate begin", Err: err}
	}
	defer tx.Rollback()

	rec, err := lockRecord(ctx, tx, bookID)
	if err != nil {
		return domain.StockRecord{}, err
	}

	if err := fn(&rec); err != nil {
		return domain.StockRecord{}, err
	}
	if err := rec.Validate(); err != nil {
		return domain.StockRecord{}, err
	}

	if err := saveRecord(ctx, tx, rec); err != nil {
		return domain.StockRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StockRecord{}, &domain.TransientError{Op: "ledger mutate commit", Err: err}
	}
	return rec, nil
}

func (l *PgStockLedger) ApplyDeduction(ctx context.Context, orderID, bookID uuid.UUID, line, qty int) (domain.Deduction, bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Deduction{}, false, &domain.TransientError{Op: "deduction begin", Err: err}
	}
	defer tx.Rollback()

	rec, err := lockRecord(ctx, tx, bookID)
	if err != nil {
		return domain.Deduction{}, false, err
	}

	// Replay check first: a line committed on an earlier delivery wins even if
	// stock has since dropped below the requested quantity.
	prior, seen, err := findDeduction(ctx, tx, orderID, bookID, line)
	if err != nil {
		return domain.Deduction{}, false, err
	}
	if seen {
		return prior, false, nil
	}

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

	if err := saveRecord(ctx, tx, rec); err != nil {
		return domain.Deduction{}, false, err
	}

	insert := `
        insert into stock_deductions
        (order_id, book_id, item_index, quantity, previous_on_hand, new_on_hand, applied_at)
        values ($1,$2,$3,$4,$5,$6,$7)
    `
	if _, err := tx.ExecContext(
		ctx, insert,
		d.OrderID, d.BookID, d.Line, d.Quantity, d.PreviousOnHand, d.NewOnHand, d.AppliedAt,
	); err != nil {
		return domain.Deduction{}, false, &domain.TransientError{Op: "deduction insert", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return domain.Deduction{}, false, &domain.TransientError{Op: "deduction commit", Err: err}
	}
	return d, true, nil
}

func (l *PgStockLedger) Seed(ctx context.Context, bookID uuid.UUID, onHand int) error {
	query := `
        insert into inventory_stock (book_id, on_hand, reserved, updated_at)
        values ($1,$2,0,$3)
        on conflict (book_id) do nothing
    `
	_, err := l.db.ExecContext(ctx, query, bookID, onHand, time.Now().UTC())
	return err
}

func lockRecord(ctx context.Context, tx *sql.Tx, bookID uuid.UUID) (domain.StockRecord, error) {
	query := `
        select book_id, on_hand, reserved, updated_at
        from inventory_stock
        where book_id = $1
        for update
    `
	var rec domain.StockRecord
	err := tx.QueryRowContext(ctx, query, bookID).Scan(
		&rec.BookID,
		&rec.OnHand,
		&rec.Reserved,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.StockRecord{}, &domain.TransientError{Op: "ledger lock", Err: err}
	}
	return rec, nil
}

func saveRecord(ctx context.Context, tx *sql.Tx, rec domain.StockRecord) error {
	query := `
        update inventory_stock
        set on_hand = $2,
            reserved = $3,
            updated_at = $4
        where book_id = $1
    `
	if _, err := tx.ExecContext(ctx, query, rec.BookID, rec.OnHand, rec.Reserved, rec.UpdatedAt); err != nil {
		return &domain.TransientError{Op: "ledger save", Err: err}
	}
	return nil
}

func findDeduction(ctx context.Context, tx *sql.Tx, orderID, bookID uuid.UUID, line int) (domain.Deduction, bool, error) {
	query := `
        select order_id, book_id, item_index, quantity, previous_on_hand, new_on_hand, applied_at
        from stock_deductions
        where order_id = $1 and book_id = $2 and item_index = $3
    `
	var d domain.Deduction
	err := tx.QueryRowContext(ctx, query, orderID, bookID, line).Scan(
		&d.OrderID,
		&d.BookID,
		&d.Line,
		&d.Quantity,
		&d.PreviousOnHand,
		&d.NewOnHand,
		&d.AppliedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Deduction{}, false, nil
	}
	if err != nil {
		return domain.Deduction{}, false, &domain.TransientError{Op: "deduction lookup", Err: err}
	}
	return d, true, nil
}
