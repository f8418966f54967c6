package billing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/sync/errgroup"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func seededAccount(limit, extra, used int) Account {
	return Account{
		ID:                 "acct-1",
		OwnerID:            "owner-1",
		Type:               AccountIndividual,
		Plan:               Plan{ID: "plan_x", Name: "X", Slug: "x", AnalysesPerMonth: limit, Currency: "USD"},
		CycleStart:         testNow.Add(-10 * 24 * time.Hour),
		CycleEnd:           testNow.Add(20 * 24 * time.Hour),
		UsedThisCycle:      used,
		ExtraCredits:       extra,
		IsActive:           true,
		SubscriptionStatus: SubscriptionActive,
	}
}

func TestMemoryReserveRejectsWhenLimitReached(t *testing.T) {
	store := NewMemoryStore()
	store.Put(seededAccount(5, 0, 5))

	_, err := store.ReserveOne(context.Background(), nil, "owner-1", testNow)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	a, err := store.Get(context.Background(), "owner-1", testNow)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.UsedThisCycle != 5 {
		t.Fatalf("counter must remain 5, got %d", a.UsedThisCycle)
	}
}

func TestMemoryReserveUsesExtraCredits(t *testing.T) {
	store := NewMemoryStore()
	store.Put(seededAccount(5, 1, 5))

	a, err := store.ReserveOne(context.Background(), nil, "owner-1", testNow)
	if err != nil {
		t.Fatalf("ReserveOne: %v", err)
	}
	if a.UsedThisCycle != 6 {
		t.Fatalf("expected 6 used, got %d", a.UsedThisCycle)
	}
	if _, err := store.ReserveOne(context.Background(), nil, "owner-1", testNow); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded after credits spent, got %v", err)
	}
}

func TestMemoryReserveConcurrentNeverExceedsAllowance(t *testing.T) {
	store := NewMemoryStore()
	store.Put(seededAccount(5, 2, 0))

	var ok atomic.Int32
	var g errgroup.Group
	for i := 0; i < 40; i++ {
		g.Go(func() error {
			_, err := store.ReserveOne(context.Background(), nil, "owner-1", testNow)
			switch {
			case err == nil:
				ok.Add(1)
				return nil
			case errors.Is(err, ErrQuotaExceeded):
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.Load() != 7 {
		t.Fatalf("expected exactly 7 reservations, got %d", ok.Load())
	}
	a, _ := store.Get(context.Background(), "owner-1", testNow)
	if a.UsedThisCycle != 7 {
		t.Fatalf("expected used=7, got %d", a.UsedThisCycle)
	}
}

func TestMemoryReserveErrors(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.ReserveOne(context.Background(), nil, "missing", testNow); !errors.Is(err, ErrNoActiveLedger) {
		t.Fatalf("expected ErrNoActiveLedger, got %v", err)
	}

	inactive := seededAccount(5, 0, 0)
	inactive.SubscriptionStatus = SubscriptionPastDue
	store.Put(inactive)
	if _, err := store.ReserveOne(context.Background(), nil, "owner-1", testNow); !errors.Is(err, ErrSubscriptionInactive) {
		t.Fatalf("expected ErrSubscriptionInactive, got %v", err)
	}

	disabled := seededAccount(5, 0, 0)
	disabled.IsActive = false
	store.Put(disabled)
	if _, err := store.ReserveOne(context.Background(), nil, "owner-1", testNow); !errors.Is(err, ErrNoActiveLedger) {
		t.Fatalf("expected ErrNoActiveLedger for inactive row, got %v", err)
	}
}

func TestRollCycleShiftsByWholePeriods(t *testing.T) {
	a := seededAccount(5, 0, 5)
	a.CycleStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.CycleEnd = a.CycleStart.Add(DefaultCycle)
	now := a.CycleEnd.Add(45 * 24 * time.Hour)

	if !rollCycle(&a, now) {
		t.Fatalf("expected reset")
	}
	if a.UsedThisCycle != 0 {
		t.Fatalf("counter not reset: %d", a.UsedThisCycle)
	}
	if now.After(a.CycleEnd) || now.Before(a.CycleStart) {
		t.Fatalf("now %s outside window %s..%s", now, a.CycleStart, a.CycleEnd)
	}
	if a.CycleEnd.Sub(a.CycleStart) != DefaultCycle {
		t.Fatalf("window length changed: %s", a.CycleEnd.Sub(a.CycleStart))
	}
	if rollCycle(&a, now) {
		t.Fatalf("second roll inside window must be a no-op")
	}
}

func TestMemoryReserveResetsExpiredCycleFirst(t *testing.T) {
	store := NewMemoryStore()
	expired := seededAccount(5, 0, 5)
	expired.CycleStart = testNow.Add(-40 * 24 * time.Hour)
	expired.CycleEnd = testNow.Add(-10 * 24 * time.Hour)
	store.Put(expired)

	a, err := store.ReserveOne(context.Background(), nil, "owner-1", testNow)
	if err != nil {
		t.Fatalf("ReserveOne after expiry: %v", err)
	}
	if a.UsedThisCycle != 1 {
		t.Fatalf("expected used=1 after reset, got %d", a.UsedThisCycle)
	}
}

func TestEnsureAccountIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	first, err := store.EnsureAccount(context.Background(), "owner-9", "organization", "free", testNow)
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	second, err := store.EnsureAccount(context.Background(), "owner-9", "individual", "pro", testNow)
	if err != nil {
		t.Fatalf("EnsureAccount again: %v", err)
	}
	if first.ID != second.ID || second.Plan.Slug != "free" || second.Type != AccountOrganization {
		t.Fatalf("expected existing account back, got %+v", second)
	}
	if first.CycleEnd.Sub(first.CycleStart) != DefaultCycle {
		t.Fatalf("unexpected window length")
	}
	if _, err := store.EnsureAccount(context.Background(), "owner-10", "", "gold", testNow); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}

var accountColumns = []string{
	"id", "owner_id", "account_type", "cycle_start", "cycle_end", "used_this_cycle", "extra_credits",
	"is_active", "subscription_status",
	"id", "name", "slug", "analyses_per_month", "price_cents", "currency",
}

func accountRow(a Account) *sqlmock.Rows {
	return sqlmock.NewRows(accountColumns).AddRow(
		a.ID, a.OwnerID, a.Type, a.CycleStart, a.CycleEnd, a.UsedThisCycle, a.ExtraCredits,
		a.IsActive, a.SubscriptionStatus,
		a.Plan.ID, a.Plan.Name, a.Plan.Slug, a.Plan.AnalysesPerMonth, a.Plan.PriceCents, a.Plan.Currency,
	)
}

func TestPGReserveExceededDoesNotUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectQuery("FROM billing_accounts b").
		WithArgs("owner-1").
		WillReturnRows(accountRow(seededAccount(5, 0, 5)))
	mock.ExpectRollback()

	store := NewPGStore(db)
	if _, err := store.ReserveOne(context.Background(), nil, "owner-1", testNow); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGReserveInsideCallerTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	acct := seededAccount(5, 0, 2)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM billing_accounts b").
		WithArgs("owner-1").
		WillReturnRows(accountRow(acct))
	mock.ExpectExec("UPDATE billing_accounts").
		WithArgs(3, acct.CycleStart, acct.CycleEnd, testNow, "acct-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	store := NewPGStore(db)
	a, err := store.ReserveOne(context.Background(), tx, "owner-1", testNow)
	if err != nil {
		t.Fatalf("ReserveOne: %v", err)
	}
	if a.UsedThisCycle != 3 {
		t.Fatalf("expected used=3, got %d", a.UsedThisCycle)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGReserveMissingLedger(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectQuery("FROM billing_accounts b").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(accountColumns))
	mock.ExpectRollback()

	store := NewPGStore(db)
	if _, err := store.ReserveOne(context.Background(), nil, "ghost", testNow); !errors.Is(err, ErrNoActiveLedger) {
		t.Fatalf("expected ErrNoActiveLedger, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
