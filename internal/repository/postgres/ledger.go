// Package postgres implements the service-layer repository contracts
// against PostgreSQL using database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
	"github.com/ignite/loyalty-core/internal/service/ledger"
	"github.com/lib/pq"
)

// LedgerRepo implements ledger.Repository. Same-pair mutations serialize on
// a row lock taken for the duration of the read-modify-write; the balance
// row and its justifying transaction row commit as one unit.
type LedgerRepo struct{ db *sql.DB }

// NewLedgerRepo creates a Postgres-backed ledger repository.
func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{db: db} }

// retryable maps lock/serialization failures onto the service's retry
// sentinel. 40001 = serialization_failure, 40P01 = deadlock_detected.
func retryable(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "40001" || pqErr.Code == "40P01" {
			return fmt.Errorf("%w: %v", ledger.ErrRetryable, err)
		}
	}
	return err
}

type balanceTx struct {
	tx        *sql.Tx
	bal       *domain.Balance
	clientID  uuid.UUID
	programID uuid.UUID
}

func (b *balanceTx) Balance() *domain.Balance { return b.bal }

func (b *balanceTx) ActiveLots(ctx context.Context) ([]domain.LedgerTransaction, error) {
	rows, err := b.tx.QueryContext(ctx, `
		SELECT id, client_id, program_id, sale_id, type, status, amount, remaining,
		       balance_before, balance_after, expires_at, created_at
		FROM loyalty_ledger_transactions
		WHERE client_id = $1 AND program_id = $2
		  AND type = 'ACCUMULATE' AND status = 'ACTIVE' AND remaining > 0
		ORDER BY created_at ASC
		FOR UPDATE
	`, b.clientID, b.programID)
	if err != nil {
		return nil, fmt.Errorf("query active lots: %w", err)
	}
	defer rows.Close()

	var lots []domain.LedgerTransaction
	for rows.Next() {
		var t domain.LedgerTransaction
		if err := rows.Scan(&t.ID, &t.ClientID, &t.ProgramID, &t.SaleID, &t.Type, &t.Status,
			&t.Amount, &t.Remaining, &t.BalanceBefore, &t.BalanceAfter, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lots = append(lots, t)
	}
	return lots, rows.Err()
}

func (b *balanceTx) UpdateLot(ctx context.Context, id uuid.UUID, remaining int64, status domain.TransactionStatus) error {
	_, err := b.tx.ExecContext(ctx,
		`UPDATE loyalty_ledger_transactions SET remaining = $1, status = $2 WHERE id = $3`,
		remaining, status, id)
	return err
}

// Apply locks the balance row, runs the mutation, and commits the new
// balance together with the appended transaction.
func (r *LedgerRepo) Apply(ctx context.Context, clientID, programID uuid.UUID, fn ledger.ApplyFunc) (*domain.LedgerTransaction, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// Make sure the row exists so FOR UPDATE has something to lock.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO loyalty_balances (client_id, program_id)
		VALUES ($1, $2) ON CONFLICT (client_id, program_id) DO NOTHING
	`, clientID, programID); err != nil {
		return nil, retryable(fmt.Errorf("ensure balance row: %w", err))
	}

	bal := &domain.Balance{ClientID: clientID, ProgramID: programID}
	err = tx.QueryRowContext(ctx, `
		SELECT available, accumulated, redeemed, expired, updated_at
		FROM loyalty_balances
		WHERE client_id = $1 AND program_id = $2
		FOR UPDATE
	`, clientID, programID).Scan(&bal.Available, &bal.Accumulated, &bal.Redeemed, &bal.Expired, &bal.UpdatedAt)
	if err != nil {
		return nil, retryable(fmt.Errorf("lock balance: %w", err))
	}

	t, err := fn(&balanceTx{tx: tx, bal: bal, clientID: clientID, programID: programID})
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE loyalty_balances
		SET available = $1, accumulated = $2, redeemed = $3, expired = $4, updated_at = NOW()
		WHERE client_id = $5 AND program_id = $6
	`, bal.Available, bal.Accumulated, bal.Redeemed, bal.Expired, clientID, programID); err != nil {
		return nil, retryable(fmt.Errorf("update balance: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO loyalty_ledger_transactions
			(id, client_id, program_id, sale_id, type, status, amount, remaining,
			 balance_before, balance_after, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, t.ID, t.ClientID, t.ProgramID, t.SaleID, t.Type, t.Status, t.Amount, t.Remaining,
		t.BalanceBefore, t.BalanceAfter, t.ExpiresAt, t.CreatedAt); err != nil {
		return nil, retryable(fmt.Errorf("insert transaction: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, retryable(fmt.Errorf("commit: %w", err))
	}
	return t, nil
}

func (r *LedgerRepo) GetBalance(ctx context.Context, clientID, programID uuid.UUID) (*domain.Balance, error) {
	bal := &domain.Balance{ClientID: clientID, ProgramID: programID}
	err := r.db.QueryRowContext(ctx, `
		SELECT available, accumulated, redeemed, expired, updated_at
		FROM loyalty_balances
		WHERE client_id = $1 AND program_id = $2
	`, clientID, programID).Scan(&bal.Available, &bal.Accumulated, &bal.Redeemed, &bal.Expired, &bal.UpdatedAt)
	if err == sql.ErrNoRows {
		return bal, nil // no history yet, zero balance
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return bal, nil
}

func (r *LedgerRepo) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.LedgerTransaction, error) {
	var t domain.LedgerTransaction
	err := r.db.QueryRowContext(ctx, `
		SELECT id, client_id, program_id, sale_id, type, status, amount, remaining,
		       balance_before, balance_after, expires_at, created_at
		FROM loyalty_ledger_transactions
		WHERE id = $1
	`, id).Scan(&t.ID, &t.ClientID, &t.ProgramID, &t.SaleID, &t.Type, &t.Status,
		&t.Amount, &t.Remaining, &t.BalanceBefore, &t.BalanceAfter, &t.ExpiresAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &t, nil
}

func (r *LedgerRepo) ListTransactions(ctx context.Context, clientID, programID uuid.UUID, limit int) ([]domain.LedgerTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, client_id, program_id, sale_id, type, status, amount, remaining,
		       balance_before, balance_after, expires_at, created_at
		FROM loyalty_ledger_transactions
		WHERE client_id = $1 AND program_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, clientID, programID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerTransaction
	for rows.Next() {
		var t domain.LedgerTransaction
		if err := rows.Scan(&t.ID, &t.ClientID, &t.ProgramID, &t.SaleID, &t.Type, &t.Status,
			&t.Amount, &t.Remaining, &t.BalanceBefore, &t.BalanceAfter, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListExpirable feeds the expiration sweep; backed by the partial index on
// (status, expires_at).
func (r *LedgerRepo) ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.LedgerTransaction, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, client_id, program_id, sale_id, type, status, amount, remaining,
		       balance_before, balance_after, expires_at, created_at
		FROM loyalty_ledger_transactions
		WHERE type = 'ACCUMULATE' AND status = 'ACTIVE' AND remaining > 0
		  AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expirable: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerTransaction
	for rows.Next() {
		var t domain.LedgerTransaction
		if err := rows.Scan(&t.ID, &t.ClientID, &t.ProgramID, &t.SaleID, &t.Type, &t.Status,
			&t.Amount, &t.Remaining, &t.BalanceBefore, &t.BalanceAfter, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expirable: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
