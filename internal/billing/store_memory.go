package billing

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPlans mirrors the plans seeded by the initial migration.
func DefaultPlans() []Plan {
	return []Plan{
		{ID: "plan_free", Name: "Free", Slug: "free", AnalysesPerMonth: 5, PriceCents: 0, Currency: "USD"},
		{ID: "plan_pro", Name: "Pro", Slug: "pro", AnalysesPerMonth: 50, PriceCents: 4900, Currency: "USD"},
		{ID: "plan_team", Name: "Team", Slug: "team", AnalysesPerMonth: 200, PriceCents: 14900, Currency: "USD"},
	}
}

// MemoryStore keeps accounts in memory and is safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	plans    map[string]Plan
	accounts map[string]Account
}

// NewMemoryStore constructs a MemoryStore seeded with plans.
func NewMemoryStore(plans ...Plan) *MemoryStore {
	if len(plans) == 0 {
		plans = DefaultPlans()
	}
	s := &MemoryStore{
		plans:    make(map[string]Plan, len(plans)),
		accounts: make(map[string]Account),
	}
	for _, p := range plans {
		s.plans[p.Slug] = p
	}
	return s
}

// Put stores an account as-is. Used by dev seeding and tests.
func (s *MemoryStore) Put(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.OwnerID] = a
}

func (s *MemoryStore) Get(ctx context.Context, ownerID string, now time.Time) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[ownerID]
	if !ok {
		return Account{}, ErrNoActiveLedger
	}
	if rollCycle(&a, now) {
		s.accounts[ownerID] = a
	}
	return a, nil
}

func (s *MemoryStore) EnsureAccount(ctx context.Context, ownerID, accountType, planSlug string, now time.Time) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[ownerID]; ok {
		return a, nil
	}
	plan, ok := s.plans[planSlug]
	if !ok {
		return Account{}, ErrPlanNotFound
	}
	a := Account{
		ID:                 uuid.NewString(),
		OwnerID:            ownerID,
		Type:               normalizeAccountType(accountType),
		Plan:               plan,
		CycleStart:         now,
		CycleEnd:           now.Add(DefaultCycle),
		IsActive:           true,
		SubscriptionStatus: SubscriptionActive,
	}
	s.accounts[ownerID] = a
	return a, nil
}

func (s *MemoryStore) ReserveOne(ctx context.Context, _ *sql.Tx, ownerID string, now time.Time) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[ownerID]
	if !ok {
		return Account{}, ErrNoActiveLedger
	}
	if err := reserve(&a, now); err != nil {
		return Account{}, err
	}
	s.accounts[ownerID] = a
	return a, nil
}

func (s *MemoryStore) Reset(ctx context.Context, ownerID string, now time.Time) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[ownerID]
	if !ok {
		return Account{}, ErrNoActiveLedger
	}
	rollCycle(&a, now)
	a.UsedThisCycle = 0
	s.accounts[ownerID] = a
	return a, nil
}

var _ Store = (*MemoryStore)(nil)
