package billing

import (
	"context"
	"database/sql"
	"time"
)

// Store persists billing accounts keyed by owner.
//
// ReserveOne runs inside tx when it is non-nil so the caller can commit the
// consumption together with the row it pays for. Memory stores ignore tx.
type Store interface {
	Get(ctx context.Context, ownerID string, now time.Time) (Account, error)
	EnsureAccount(ctx context.Context, ownerID, accountType, planSlug string, now time.Time) (Account, error)
	ReserveOne(ctx context.Context, tx *sql.Tx, ownerID string, now time.Time) (Account, error)
	Reset(ctx context.Context, ownerID string, now time.Time) (Account, error)
}
