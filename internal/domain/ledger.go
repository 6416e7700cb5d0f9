package domain

import (
	"time"

	"github.com/google/uuid"
)

// Balance is the per-(client, program) cashback balance. It is mutated
// exclusively by the ledger service; every write is justified by a
// LedgerTransaction row committed in the same database transaction.
//
// Invariant: Available = Accumulated - Redeemed - Expired, and Available >= 0.
type Balance struct {
	ClientID    uuid.UUID `json:"client_id" db:"client_id"`
	ProgramID   uuid.UUID `json:"program_id" db:"program_id"`
	Available   int64     `json:"available" db:"available"`
	Accumulated int64     `json:"accumulated" db:"accumulated"`
	Redeemed    int64     `json:"redeemed" db:"redeemed"`
	Expired     int64     `json:"expired" db:"expired"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Consistent reports whether the running totals agree with each other.
func (b *Balance) Consistent() bool {
	return b.Available == b.Accumulated-b.Redeemed-b.Expired && b.Available >= 0
}

// TransactionType enumerates the kinds of ledger movement.
type TransactionType string

const (
	TxAccumulate TransactionType = "ACCUMULATE"
	TxRedeem     TransactionType = "REDEEM"
	TxExpire     TransactionType = "EXPIRE"
)

// TransactionStatus enumerates the lifecycle of an ACCUMULATE lot.
// REDEEM and EXPIRE transactions are always ACTIVE (they never hold value).
type TransactionStatus string

const (
	TxActive   TransactionStatus = "ACTIVE"
	TxConsumed TransactionStatus = "CONSUMED"
	TxExpired  TransactionStatus = "EXPIRED"
)

// LedgerTransaction is an immutable, append-only record of one balance
// movement. Amount, Type and the before/after snapshots are never mutated
// after insert; only Status and Remaining change as an ACCUMULATE lot is
// consumed FIFO or expires.
type LedgerTransaction struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	ClientID      uuid.UUID         `json:"client_id" db:"client_id"`
	ProgramID     uuid.UUID         `json:"program_id" db:"program_id"`
	SaleID        *uuid.UUID        `json:"sale_id" db:"sale_id"`
	Type          TransactionType   `json:"type" db:"type"`
	Status        TransactionStatus `json:"status" db:"status"`
	Amount        int64             `json:"amount" db:"amount"`
	Remaining     int64             `json:"remaining" db:"remaining"`
	BalanceBefore int64             `json:"balance_before" db:"balance_before"`
	BalanceAfter  int64             `json:"balance_after" db:"balance_after"`
	ExpiresAt     *time.Time        `json:"expires_at" db:"expires_at"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
}

// Expirable reports whether this transaction is an ACCUMULATE lot that
// still holds value and can be expired by the sweep.
func (t *LedgerTransaction) Expirable(now time.Time) bool {
	return t.Type == TxAccumulate &&
		t.Status == TxActive &&
		t.Remaining > 0 &&
		t.ExpiresAt != nil &&
		t.ExpiresAt.Before(now)
}
