package billing

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// Service exposes the quota ledger to the rest of the application.
type Service struct {
	Store       Store
	DefaultPlan string
	Now         func() time.Time
}

// NewService constructs a Service over store.
func NewService(store Store, defaultPlan string) *Service {
	if strings.TrimSpace(defaultPlan) == "" {
		defaultPlan = "free"
	}
	return &Service{Store: store, DefaultPlan: defaultPlan}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// EnsureAccount creates the owner's ledger on the default plan if absent.
func (s *Service) EnsureAccount(ctx context.Context, ownerID, accountType string) (Account, error) {
	return s.Store.EnsureAccount(ctx, ownerID, accountType, s.DefaultPlan, s.now())
}

// Usage returns the owner's current-cycle snapshot, resetting an expired cycle.
func (s *Service) Usage(ctx context.Context, ownerID string) (Usage, error) {
	a, err := s.Store.Get(ctx, ownerID, s.now())
	if err != nil {
		return Usage{}, err
	}
	return a.Snapshot(), nil
}

// ReserveOne consumes one analysis allowance, inside tx when provided.
func (s *Service) ReserveOne(ctx context.Context, tx *sql.Tx, ownerID string) (Account, error) {
	return s.Store.ReserveOne(ctx, tx, ownerID, s.now())
}

// Reset zeroes the counter of the current cycle.
func (s *Service) Reset(ctx context.Context, ownerID string) (Usage, error) {
	a, err := s.Store.Reset(ctx, ownerID, s.now())
	if err != nil {
		return Usage{}, err
	}
	return a.Snapshot(), nil
}
