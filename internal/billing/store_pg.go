package billing

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	selectAccountForUpdate = `
SELECT b.id, b.owner_id, b.account_type, b.cycle_start, b.cycle_end, b.used_this_cycle, b.extra_credits,
       b.is_active, b.subscription_status,
       p.id, p.name, p.slug, p.analyses_per_month, p.price_cents, p.currency
FROM billing_accounts b
JOIN plans p ON p.id = b.plan_id
WHERE b.owner_id = $1
FOR UPDATE OF b`

	updateAccountUsage = `
UPDATE billing_accounts
SET used_this_cycle = $1, cycle_start = $2, cycle_end = $3, updated_at = $4
WHERE id = $5`

	insertAccountForPlan = `
INSERT INTO billing_accounts (id, owner_id, account_type, plan_id, cycle_start, cycle_end, used_this_cycle, extra_credits, is_active, subscription_status)
SELECT $1, $2, $3, p.id, $4, $5, 0, 0, TRUE, 'active'
FROM plans p
WHERE p.slug = $6 AND p.is_active
ON CONFLICT (owner_id) DO NOTHING`
)

// PGStore implements Store using Postgres row locks.
type PGStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed billing store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) Get(ctx context.Context, ownerID string, now time.Time) (Account, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	a, err := lockAccount(ctx, tx, ownerID)
	if err != nil {
		return Account{}, err
	}
	if rollCycle(&a, now) {
		if err = saveUsage(ctx, tx, a, now); err != nil {
			return Account{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return Account{}, err
	}
	return a, nil
}

func (s *PGStore) EnsureAccount(ctx context.Context, ownerID, accountType, planSlug string, now time.Time) (Account, error) {
	res, err := s.DB.ExecContext(ctx, insertAccountForPlan,
		uuid.NewString(),
		ownerID,
		normalizeAccountType(accountType),
		now,
		now.Add(DefaultCycle),
		planSlug,
	)
	if err != nil {
		return Account{}, err
	}
	a, err := s.Get(ctx, ownerID, now)
	if errors.Is(err, ErrNoActiveLedger) {
		if rows, _ := res.RowsAffected(); rows == 0 {
			return Account{}, ErrPlanNotFound
		}
	}
	return a, err
}

// ReserveOne locks the owner's ledger row and consumes one unit. With a nil tx
// it runs in its own transaction.
func (s *PGStore) ReserveOne(ctx context.Context, tx *sql.Tx, ownerID string, now time.Time) (Account, error) {
	if tx == nil {
		return s.reserveInOwnTx(ctx, ownerID, now)
	}
	a, err := lockAccount(ctx, tx, ownerID)
	if err != nil {
		return Account{}, err
	}
	if err := reserve(&a, now); err != nil {
		return Account{}, err
	}
	if err := saveUsage(ctx, tx, a, now); err != nil {
		return Account{}, err
	}
	return a, nil
}

func (s *PGStore) reserveInOwnTx(ctx context.Context, ownerID string, now time.Time) (Account, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	a, err := s.ReserveOne(ctx, tx, ownerID, now)
	if err != nil {
		return Account{}, err
	}
	if err = tx.Commit(); err != nil {
		return Account{}, err
	}
	return a, nil
}

func (s *PGStore) Reset(ctx context.Context, ownerID string, now time.Time) (Account, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	a, err := lockAccount(ctx, tx, ownerID)
	if err != nil {
		return Account{}, err
	}
	rollCycle(&a, now)
	a.UsedThisCycle = 0
	if err = saveUsage(ctx, tx, a, now); err != nil {
		return Account{}, err
	}
	if err = tx.Commit(); err != nil {
		return Account{}, err
	}
	return a, nil
}

func lockAccount(ctx context.Context, tx *sql.Tx, ownerID string) (Account, error) {
	var a Account
	err := tx.QueryRowContext(ctx, selectAccountForUpdate, ownerID).Scan(
		&a.ID,
		&a.OwnerID,
		&a.Type,
		&a.CycleStart,
		&a.CycleEnd,
		&a.UsedThisCycle,
		&a.ExtraCredits,
		&a.IsActive,
		&a.SubscriptionStatus,
		&a.Plan.ID,
		&a.Plan.Name,
		&a.Plan.Slug,
		&a.Plan.AnalysesPerMonth,
		&a.Plan.PriceCents,
		&a.Plan.Currency,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNoActiveLedger
		}
		return Account{}, err
	}
	return a, nil
}

func saveUsage(ctx context.Context, tx *sql.Tx, a Account, now time.Time) error {
	_, err := tx.ExecContext(ctx, updateAccountUsage, a.UsedThisCycle, a.CycleStart, a.CycleEnd, now, a.ID)
	return err
}

var _ Store = (*PGStore)(nil)
