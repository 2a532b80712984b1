// Package ledger owns the per-identity budget records and wires the pure
// engine in internal/core to its collaborators: a durable store and an event
// sink. Operations against the same identity are serialized; different
// identities proceed independently.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
)

// GeneralCategory is the category label carried by general-pool spend events.
const GeneralCategory = "General"

// Transaction is the immutable record emitted for every successful spend.
type Transaction struct {
	ID          uuid.UUID `json:"id"`
	Identity    string    `json:"identity"`
	Category    string    `json:"category"`
	SubDivision string    `json:"sub_division,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Timestamp   time.Time `json:"timestamp"`
}

// Store is the durable persistence collaborator. Once a Commit or Save call
// returns, the state must survive a restart.
type Store interface {
	// LoadBudget returns the persisted budget for the identity, or
	// found=false when none exists.
	LoadBudget(ctx context.Context, identity string) (snap core.BudgetSnapshot, found bool, err error)

	// SaveBudget persists the full budget state.
	SaveBudget(ctx context.Context, identity string, snap core.BudgetSnapshot) error

	// CommitSpend persists the post-spend budget state together with the
	// transaction record, atomically.
	CommitSpend(ctx context.Context, identity string, snap core.BudgetSnapshot, tx Transaction) error
}

// Publisher delivers transaction events to the external event sink. A nil
// Publisher disables event emission.
type Publisher interface {
	PublishTransaction(ctx context.Context, tx Transaction) error
}

// Service is the budget ledger. It keeps the authoritative budget state in
// memory, loads identities lazily from the store, and writes every committed
// mutation through before returning.
type Service struct {
	store  Store
	pub    Publisher
	logger *applog.Logger
	now    func() time.Time
	policy core.Policy

	mu      sync.Mutex
	entries map[string]*entry
}

// entry serializes all operations against one identity.
type entry struct {
	mu     sync.Mutex
	loaded bool
	budget *core.UserBudget
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock. The clock is read once per operation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPolicy sets the engine policy flags.
func WithPolicy(p core.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithPublisher sets the transaction event sink.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// New creates a ledger service backed by the given store.
func New(store Store, logger *applog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = applog.New(applog.Config{Component: applog.ComponentLedger})
	}
	return s
}

func (s *Service) entryFor(identity string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[identity]
	if !ok {
		e = &entry{}
		s.entries[identity] = e
	}
	return e
}

// load populates the entry from the store on first access. Caller holds the
// entry lock.
func (s *Service) load(ctx context.Context, identity string, e *entry) error {
	if e.loaded {
		return nil
	}
	snap, found, err := s.store.LoadBudget(ctx, identity)
	if err != nil {
		return fmt.Errorf("load budget: %w", err)
	}
	if found {
		e.budget = core.FromSnapshot(snap)
	}
	e.loaded = true
	return nil
}

// InitializeBudget creates the identity's budget from a declared income.
// Re-initializing an existing budget resets it entirely under the legacy
// policy, or fails with ErrBudgetExists under Policy.RejectReinitialize.
func (s *Service) InitializeBudget(ctx context.Context, identity string, income int64) (core.Summary, error) {
	now := s.now()

	e := s.entryFor(identity)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.load(ctx, identity, e); err != nil {
		return core.Summary{}, err
	}
	if e.budget != nil && s.policy.RejectReinitialize {
		return core.Summary{}, core.ErrBudgetExists
	}

	b, err := core.NewUserBudget(income, now)
	if err != nil {
		return core.Summary{}, err
	}

	if err := s.store.SaveBudget(ctx, identity, b.Snapshot()); err != nil {
		return core.Summary{}, fmt.Errorf("save budget: %w", err)
	}
	e.budget = b

	s.logger.InfoContext(ctx, "budget initialized",
		"identity", identity,
		"income_cents", income,
		"daily_limit_cents", b.DailyLimit)
	return b.Summary(), nil
}

// AddSubDivision creates a named bucket inside one of the fixed categories.
func (s *Service) AddSubDivision(ctx context.Context, identity, category, name string, amount int64) (core.SubDivision, error) {
	e := s.entryFor(identity)
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := s.budget(ctx, identity, e)
	if err != nil {
		return core.SubDivision{}, err
	}

	prior := b.Snapshot()
	sd, err := b.AddSubDivision(category, name, amount, s.policy)
	if err != nil {
		return core.SubDivision{}, err
	}

	if err := s.store.SaveBudget(ctx, identity, b.Snapshot()); err != nil {
		e.budget = core.FromSnapshot(prior)
		return core.SubDivision{}, fmt.Errorf("save budget: %w", err)
	}

	s.logger.InfoContext(ctx, "sub-division added",
		"identity", identity,
		"category", category,
		"name", name,
		"allocation_cents", amount,
		"percent_of_category", sd.PercentOfCategory)
	return *sd, nil
}

// SpendFromSubDivision records a withdrawal against a sub-division.
func (s *Service) SpendFromSubDivision(ctx context.Context, identity, category, name string, amount int64) (Transaction, error) {
	return s.spend(ctx, identity, category, name, amount, func(b *core.UserBudget, now time.Time) error {
		return b.SpendFromSubDivision(category, name, amount, now)
	})
}

// SpendFromCategory records a withdrawal directly against a category.
func (s *Service) SpendFromCategory(ctx context.Context, identity, category string, amount int64) (Transaction, error) {
	return s.spend(ctx, identity, category, "", amount, func(b *core.UserBudget, now time.Time) error {
		return b.SpendFromCategory(category, amount, now)
	})
}

// SpendFromGeneral records an undifferentiated withdrawal apportioned across
// the categories by allocation weight.
func (s *Service) SpendFromGeneral(ctx context.Context, identity string, amount int64) (Transaction, error) {
	return s.spend(ctx, identity, GeneralCategory, "", amount, func(b *core.UserBudget, now time.Time) error {
		_, err := b.SpendFromGeneral(amount, now, s.policy)
		return err
	})
}

// spend runs the shared spend flow: apply the engine mutation, commit the
// new state together with the transaction record, then emit the event. A
// store failure rolls the in-memory state back so nothing half-applied is
// ever visible.
func (s *Service) spend(ctx context.Context, identity, category, subDivision string, amount int64, apply func(*core.UserBudget, time.Time) error) (Transaction, error) {
	now := s.now()

	e := s.entryFor(identity)
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := s.budget(ctx, identity, e)
	if err != nil {
		return Transaction{}, err
	}

	prior := b.Snapshot()
	if err := apply(b, now); err != nil {
		return Transaction{}, err
	}

	tx := Transaction{
		ID:          uuid.New(),
		Identity:    identity,
		Category:    category,
		SubDivision: subDivision,
		AmountCents: amount,
		Timestamp:   now,
	}

	if err := s.store.CommitSpend(ctx, identity, b.Snapshot(), tx); err != nil {
		e.budget = core.FromSnapshot(prior)
		return Transaction{}, fmt.Errorf("commit spend: %w", err)
	}

	s.publish(ctx, tx)

	s.logger.InfoContext(ctx, "spend recorded",
		"identity", identity,
		"category", category,
		"sub_division", subDivision,
		"amount_cents", amount,
		"transaction_id", tx.ID)
	return tx, nil
}

// ToggleStrictMode flips daily-limit enforcement. Unconditional setter.
func (s *Service) ToggleStrictMode(ctx context.Context, identity string, enabled bool) error {
	e := s.entryFor(identity)
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := s.budget(ctx, identity, e)
	if err != nil {
		return err
	}

	prior := b.StrictMode
	b.SetStrictMode(enabled)
	if err := s.store.SaveBudget(ctx, identity, b.Snapshot()); err != nil {
		b.SetStrictMode(prior)
		return fmt.Errorf("save budget: %w", err)
	}

	s.logger.InfoContext(ctx, "strict mode toggled", "identity", identity, "enabled", enabled)
	return nil
}

// BudgetSummary returns the immutable allocation snapshot.
func (s *Service) BudgetSummary(ctx context.Context, identity string) (core.Summary, error) {
	e := s.entryFor(identity)
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := s.budget(ctx, identity, e)
	if err != nil {
		return core.Summary{}, err
	}
	return b.Summary(), nil
}

// SubDivisions lists a category's sub-divisions in insertion order.
func (s *Service) SubDivisions(ctx context.Context, identity, category string) ([]core.SubDivision, error) {
	e := s.entryFor(identity)
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := s.budget(ctx, identity, e)
	if err != nil {
		return nil, err
	}
	cat, ok := b.Category(category)
	if !ok {
		return nil, core.ErrInvalidCategory
	}
	return cat.SubDivisions(), nil
}

// budget returns the loaded budget or ErrBudgetNotFound. Caller holds the
// entry lock.
func (s *Service) budget(ctx context.Context, identity string, e *entry) (*core.UserBudget, error) {
	if err := s.load(ctx, identity, e); err != nil {
		return nil, err
	}
	if e.budget == nil {
		return nil, core.ErrBudgetNotFound
	}
	return e.budget, nil
}

// publish emits the event after the state is committed. Emission failures
// are logged and swallowed: the store's transaction log stays authoritative.
func (s *Service) publish(ctx context.Context, tx Transaction) {
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishTransaction(ctx, tx); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish transaction event",
			"error", err,
			"transaction_id", tx.ID,
			"identity", tx.Identity)
	}
}
