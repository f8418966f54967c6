package billing

import "errors"

var (
	ErrNoActiveLedger       = errors.New("no active billing account")
	ErrSubscriptionInactive = errors.New("subscription inactive")
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrPlanNotFound         = errors.New("plan not found")
)
