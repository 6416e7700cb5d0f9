package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
)

// ErrRetryable is returned by repository implementations when a mutation
// lost a serialization race and may be retried. The service translates an
// exhausted retry loop into ErrConcurrentConflict.
var ErrRetryable = errors.New("retryable balance conflict")

// BalanceTx is the mutation scope handed to Apply callbacks. It exposes the
// locked balance row and the client's open ACCUMULATE lots so the callback
// can do FIFO remaining bookkeeping inside the same transaction.
type BalanceTx interface {
	// Balance returns the current balance row for the pair being mutated.
	// A pair with no prior history yields a zero-valued row.
	Balance() *domain.Balance

	// ActiveLots returns the pair's ACTIVE ACCUMULATE transactions with
	// value remaining, oldest first.
	ActiveLots(ctx context.Context) ([]domain.LedgerTransaction, error)

	// UpdateLot rewrites a lot's remaining value and status.
	UpdateLot(ctx context.Context, id uuid.UUID, remaining int64, status domain.TransactionStatus) error
}

// ApplyFunc mutates the balance inside the transaction scope and returns
// the justifying ledger transaction to append. Returning an error rolls
// everything back; no partial application is observable.
type ApplyFunc func(tx BalanceTx) (*domain.LedgerTransaction, error)

// Repository is the data access contract for the ledger.
// Implementations must serialize concurrent Apply calls on the same
// (client, program) pair (row lock or equivalent) and must write the
// balance row and the transaction row atomically.
type Repository interface {
	// Apply runs fn against the locked balance and commits the mutated
	// balance together with the returned transaction.
	Apply(ctx context.Context, clientID, programID uuid.UUID, fn ApplyFunc) (*domain.LedgerTransaction, error)

	// GetBalance returns the balance row, or a zero-valued row when the
	// pair has no history.
	GetBalance(ctx context.Context, clientID, programID uuid.UUID) (*domain.Balance, error)

	// GetTransaction returns a single transaction. Returns ErrNotFound if
	// it doesn't exist.
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.LedgerTransaction, error)

	// ListTransactions returns the pair's transactions, newest first.
	ListTransactions(ctx context.Context, clientID, programID uuid.UUID, limit int) ([]domain.LedgerTransaction, error)

	// ListExpirable returns ACTIVE ACCUMULATE lots whose expiry has passed,
	// oldest expiry first.
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.LedgerTransaction, error)
}
