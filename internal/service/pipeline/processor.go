// Package pipeline orchestrates the event flow: ledger accrual, trigger
// evaluation, frequency guarding, interaction scheduling and attribution.
//
// Events for the same client are processed in arrival order (a per-client
// lock serializes them); events for different clients run fully in
// parallel. Trigger and scheduling failures are best-effort side effects:
// they are logged and skipped per campaign and never fail the event.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
	"github.com/ignite/loyalty-core/internal/service/attribution"
	"github.com/ignite/loyalty-core/internal/service/frequency"
	"github.com/ignite/loyalty-core/internal/service/scheduler"
	"github.com/ignite/loyalty-core/internal/service/trigger"
)

// Ledger is the slice of the ledger service the pipeline drives.
type Ledger interface {
	Accumulate(ctx context.Context, clientID, programID uuid.UUID, saleID *uuid.UUID, amount int64, expiryDays int) (*domain.LedgerTransaction, error)
}

// Attributor records sale attribution.
type Attributor interface {
	Attribute(ctx context.Context, sale attribution.SaleEvent) ([]domain.CampaignConversion, error)
}

// ProgramSource resolves an organization's active cashback program.
type ProgramSource interface {
	// GetActive returns the organization's active program, or nil when
	// none exists (a no-op outcome).
	GetActive(ctx context.Context, orgID uuid.UUID) (*domain.Program, error)
}

// Processor runs the full event flow.
type Processor struct {
	evaluator *trigger.Evaluator
	guard     *frequency.Guard
	scheduler *scheduler.Scheduler
	ledger    Ledger
	attrib    Attributor
	programs  ProgramSource
	profiles  trigger.ProfileSource

	mu    sync.Mutex
	locks map[uuid.UUID]*clientLock
}

type clientLock struct {
	sync.Mutex
	refs int
}

// NewProcessor wires the pipeline. Any of ledger, attrib or programs may
// be nil when the deployment doesn't use that stage.
func NewProcessor(ev *trigger.Evaluator, g *frequency.Guard, s *scheduler.Scheduler, l Ledger, a Attributor, programs ProgramSource, profiles trigger.ProfileSource) *Processor {
	return &Processor{
		evaluator: ev,
		guard:     g,
		scheduler: s,
		ledger:    l,
		attrib:    a,
		programs:  programs,
		profiles:  profiles,
		locks:     make(map[uuid.UUID]*clientLock),
	}
}

// Process handles one business event end to end. Only ledger failures are
// returned to the caller; everything downstream of the ledger is
// best-effort.
func (p *Processor) Process(ctx context.Context, ev domain.Event) error {
	if ev.ClientID != uuid.Nil {
		unlock := p.lockClient(ev.ClientID)
		defer unlock()
	}

	// Sale accrual happens first so the balance the triggers see is the
	// balance after this sale's cashback.
	if ev.Type == domain.EventSaleCompleted && p.ledger != nil && p.programs != nil {
		if err := p.accrue(ctx, &ev); err != nil {
			return err
		}
	}

	matches, err := p.evaluator.Evaluate(ctx, ev)
	if err != nil {
		log.Printf("[pipeline.Processor] evaluate %s: %v", ev.Type, err)
	}
	for _, m := range matches {
		p.schedule(ctx, m)
	}

	if ev.Type == domain.EventSaleCompleted && p.attrib != nil {
		p.attribute(ctx, ev)
	}
	return nil
}

// accrue applies the organization's cashback program to the sale, then
// folds the accrual into the event so downstream cashback triggers fire
// off the same request.
func (p *Processor) accrue(ctx context.Context, ev *domain.Event) error {
	prog, err := p.programs.GetActive(ctx, ev.OrganizationID)
	if err != nil {
		return fmt.Errorf("resolve program: %w", err)
	}
	if prog == nil {
		return nil // no active program, nothing to accrue
	}
	amount := prog.AccrualFor(ev.Amount)
	if amount <= 0 {
		return nil
	}

	tx, err := p.ledger.Accumulate(ctx, ev.ClientID, prog.ID, ev.SaleID, amount, prog.ExpiryDays)
	if err != nil {
		// Ledger errors abort the event; the sale boundary decides how to
		// recover.
		return fmt.Errorf("accrue cashback: %w", err)
	}

	accrual := domain.Event{
		Type:           domain.EventCashbackAccumulated,
		ClientID:       ev.ClientID,
		OrganizationID: ev.OrganizationID,
		SaleID:         ev.SaleID,
		Amount:         amount,
		NewAvailable:   tx.BalanceAfter,
		Now:            ev.Now,
	}
	matches, err := p.evaluator.Evaluate(ctx, accrual)
	if err != nil {
		log.Printf("[pipeline.Processor] evaluate accrual: %v", err)
	}
	for _, m := range matches {
		p.schedule(ctx, m)
	}
	return nil
}

// schedule runs one match through the guard and the scheduler. Failures
// are per-campaign: logged, skipped, never propagated.
func (p *Processor) schedule(ctx context.Context, m trigger.Match) {
	d, err := p.guard.Allow(ctx, m.ClientID, m.Campaign, time.Now())
	if err != nil {
		log.Printf("[pipeline.Processor] guard client=%s campaign=%s: %v", m.ClientID, m.Campaign.ID, err)
		return
	}
	if !d.Allowed {
		log.Printf("[pipeline.Processor] frequency capped client=%s campaign=%s: %s", m.ClientID, m.Campaign.ID, d.Reason)
		return
	}
	if _, _, err := p.scheduler.Schedule(ctx, m.ClientID, m.Campaign, scheduler.Metadata{TriggerAmount: m.Amount}); err != nil {
		log.Printf("[pipeline.Processor] schedule client=%s campaign=%s: %v", m.ClientID, m.Campaign.ID, err)
	}
}

func (p *Processor) attribute(ctx context.Context, ev domain.Event) {
	if ev.SaleID == nil {
		return
	}
	sale := attribution.SaleEvent{
		SaleID:         *ev.SaleID,
		ClientID:       ev.ClientID,
		OrganizationID: ev.OrganizationID,
		At:             ev.At(),
		Revenue:        ev.Amount,
		PurchaseCount:  ev.PurchaseCount,
	}
	if p.profiles != nil {
		if prof, err := p.profiles.Get(ctx, ev.ClientID); err == nil && prof != nil {
			sale.PrevPurchaseAt = prof.LastPurchaseAt
			sale.AvgGapDays = prof.AvgPurchaseGapDays
		}
	}
	if _, err := p.attrib.Attribute(ctx, sale); err != nil {
		log.Printf("[pipeline.Processor] attribute sale=%s: %v", ev.SaleID, err)
	}
}

// lockClient serializes same-client event processing. The returned func
// releases the lock and drops the entry once no goroutine needs it.
func (p *Processor) lockClient(clientID uuid.UUID) func() {
	p.mu.Lock()
	l, ok := p.locks[clientID]
	if !ok {
		l = &clientLock{}
		p.locks[clientID] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, clientID)
		}
		p.mu.Unlock()
	}
}
