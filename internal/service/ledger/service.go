package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
)

const (
	// maxRetries bounds the optimistic retry loop on serialization races.
	maxRetries = 3
	retryDelay = 25 * time.Millisecond
)

// Service implements ledger business logic. All public methods are safe for
// concurrent use; the repository serializes same-pair mutations.
type Service struct {
	repo Repository
}

// NewService creates a ledger service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Balance returns the current balance for a (client, program) pair.
func (s *Service) Balance(ctx context.Context, clientID, programID uuid.UUID) (*domain.Balance, error) {
	return s.repo.GetBalance(ctx, clientID, programID)
}

// Transactions returns the pair's ledger history, newest first.
func (s *Service) Transactions(ctx context.Context, clientID, programID uuid.UUID, limit int) ([]domain.LedgerTransaction, error) {
	return s.repo.ListTransactions(ctx, clientID, programID, limit)
}

// Accumulate credits cashback to the pair's available balance and opens an
// ACTIVE lot expiring after expiryDays. expiryDays <= 0 means no expiry.
func (s *Service) Accumulate(ctx context.Context, clientID, programID uuid.UUID, saleID *uuid.UUID, amount int64, expiryDays int) (*domain.LedgerTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	return s.apply(ctx, clientID, programID, func(tx BalanceTx) (*domain.LedgerTransaction, error) {
		bal := tx.Balance()
		before := bal.Available
		bal.Available += amount
		bal.Accumulated += amount

		t := &domain.LedgerTransaction{
			ID:            uuid.New(),
			ClientID:      clientID,
			ProgramID:     programID,
			SaleID:        saleID,
			Type:          domain.TxAccumulate,
			Status:        domain.TxActive,
			Amount:        amount,
			Remaining:     amount,
			BalanceBefore: before,
			BalanceAfter:  bal.Available,
			CreatedAt:     time.Now(),
		}
		if expiryDays > 0 {
			exp := t.CreatedAt.AddDate(0, 0, expiryDays)
			t.ExpiresAt = &exp
		}
		return t, nil
	})
}

// Redeem debits the pair's available balance. Fails with
// ErrInsufficientBalance when amount exceeds what is available; the check
// happens under the same lock as the write, so two concurrent redemptions
// can never both succeed past the available total.
func (s *Service) Redeem(ctx context.Context, clientID, programID uuid.UUID, saleID *uuid.UUID, amount int64) (*domain.LedgerTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	return s.apply(ctx, clientID, programID, func(tx BalanceTx) (*domain.LedgerTransaction, error) {
		bal := tx.Balance()
		if amount > bal.Available {
			return nil, ErrInsufficientBalance
		}

		before := bal.Available
		bal.Available -= amount
		bal.Redeemed += amount

		// FIFO lot consumption. Balance correctness does not depend on it
		// (the balance is a running total), but expiration reporting does.
		if err := s.consumeLots(ctx, tx, amount); err != nil {
			return nil, err
		}

		return &domain.LedgerTransaction{
			ID:            uuid.New(),
			ClientID:      clientID,
			ProgramID:     programID,
			SaleID:        saleID,
			Type:          domain.TxRedeem,
			Status:        domain.TxActive,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  bal.Available,
			CreatedAt:     time.Now(),
		}, nil
	})
}

// consumeLots walks ACTIVE ACCUMULATE lots oldest-first, decrementing
// remaining until the redeemed amount is covered. A lot drained to zero is
// marked CONSUMED.
func (s *Service) consumeLots(ctx context.Context, tx BalanceTx, amount int64) error {
	lots, err := tx.ActiveLots(ctx)
	if err != nil {
		return fmt.Errorf("list active lots: %w", err)
	}
	left := amount
	for _, lot := range lots {
		if left <= 0 {
			break
		}
		take := lot.Remaining
		if take > left {
			take = left
		}
		remaining := lot.Remaining - take
		status := domain.TxActive
		if remaining == 0 {
			status = domain.TxConsumed
		}
		if err := tx.UpdateLot(ctx, lot.ID, remaining, status); err != nil {
			return fmt.Errorf("consume lot %s: %w", lot.ID, err)
		}
		left -= take
	}
	// left > 0 can happen when old lots already expired; the running total
	// is authoritative, so this is not an error.
	return nil
}

// Expire retires a single due ACCUMULATE lot: debits available by the lot's
// remaining value, marks the lot EXPIRED, and appends an EXPIRE transaction
// referencing the amount removed. Calling it on an already-expired or
// not-yet-due lot returns ErrNotExpirable without writing anything.
func (s *Service) Expire(ctx context.Context, txID uuid.UUID) error {
	lot, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}

	_, err = s.apply(ctx, lot.ClientID, lot.ProgramID, func(tx BalanceTx) (*domain.LedgerTransaction, error) {
		// Re-read under the lock; a concurrent sweep may have got here first.
		lots, err := tx.ActiveLots(ctx)
		if err != nil {
			return nil, err
		}
		var current *domain.LedgerTransaction
		for i := range lots {
			if lots[i].ID == txID {
				current = &lots[i]
				break
			}
		}
		if current == nil || !current.Expirable(time.Now()) {
			return nil, ErrNotExpirable
		}

		expired := current.Remaining
		if err := tx.UpdateLot(ctx, current.ID, 0, domain.TxExpired); err != nil {
			return nil, err
		}

		bal := tx.Balance()
		before := bal.Available
		bal.Available -= expired
		bal.Expired += expired

		return &domain.LedgerTransaction{
			ID:            uuid.New(),
			ClientID:      lot.ClientID,
			ProgramID:     lot.ProgramID,
			SaleID:        current.SaleID,
			Type:          domain.TxExpire,
			Status:        domain.TxActive,
			Amount:        expired,
			BalanceBefore: before,
			BalanceAfter:  bal.Available,
			CreatedAt:     time.Now(),
		}, nil
	})
	return err
}

// ExpireDue expires every due lot up to limit, isolating per-lot failures.
// Running it twice over the same data is a no-op the second time: expired
// lots no longer qualify.
func (s *Service) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := s.repo.ListExpirable(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list expirable: %w", err)
	}

	expired := 0
	for _, lot := range due {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		if err := s.Expire(ctx, lot.ID); err != nil {
			if errors.Is(err, ErrNotExpirable) {
				continue // lost the race to a concurrent sweep
			}
			log.Printf("[ledger.Service] expire lot %s: %v", lot.ID, err)
			continue
		}
		expired++
	}
	return expired, nil
}

// apply runs the mutation with a bounded retry on serialization races.
func (s *Service) apply(ctx context.Context, clientID, programID uuid.UUID, fn ApplyFunc) (*domain.LedgerTransaction, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		t, err := s.repo.Apply(ctx, clientID, programID, fn)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrRetryable) {
			return nil, err
		}
		lastErr = err
	}
	log.Printf("[ledger.Service] retries exhausted for client=%s program=%s: %v", clientID, programID, lastErr)
	return nil, ErrConcurrentConflict
}
