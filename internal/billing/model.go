package billing

import "time"

const (
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
	SubscriptionPastDue  = "past_due"

	AccountIndividual   = "individual"
	AccountOrganization = "organization"

	// DefaultCycle is the billing window length for new accounts.
	DefaultCycle = 30 * 24 * time.Hour
)

// Plan is a purchasable allowance of analyses per billing cycle.
type Plan struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Slug             string `json:"slug"`
	AnalysesPerMonth int    `json:"analysesPerMonth"`
	PriceCents       int    `json:"priceCents"`
	Currency         string `json:"currency"`
}

// Account is the quota ledger row of one owner.
type Account struct {
	ID                 string
	OwnerID            string
	Type               string
	Plan               Plan
	CycleStart         time.Time
	CycleEnd           time.Time
	UsedThisCycle      int
	ExtraCredits       int
	IsActive           bool
	SubscriptionStatus string
}

// Allowed is the number of analyses still available in the current cycle.
func (a Account) Allowed() int {
	return a.Plan.AnalysesPerMonth + a.ExtraCredits - a.UsedThisCycle
}

// Usage is the caller-facing snapshot of an account.
type Usage struct {
	Plan               string    `json:"plan"`
	PlanSlug           string    `json:"planSlug"`
	Limit              int       `json:"limit"`
	ExtraCredits       int       `json:"extraCredits"`
	Used               int       `json:"used"`
	Remaining          int       `json:"remaining"`
	CycleStart         time.Time `json:"cycleStart"`
	CycleEnd           time.Time `json:"cycleEnd"`
	SubscriptionStatus string    `json:"subscriptionStatus"`
}

// Snapshot converts the account into a Usage view.
func (a Account) Snapshot() Usage {
	remaining := a.Allowed()
	if remaining < 0 {
		remaining = 0
	}
	return Usage{
		Plan:               a.Plan.Name,
		PlanSlug:           a.Plan.Slug,
		Limit:              a.Plan.AnalysesPerMonth,
		ExtraCredits:       a.ExtraCredits,
		Used:               a.UsedThisCycle,
		Remaining:          remaining,
		CycleStart:         a.CycleStart,
		CycleEnd:           a.CycleEnd,
		SubscriptionStatus: a.SubscriptionStatus,
	}
}

// rollCycle resets the counter and advances the window by whole cycle lengths
// once now is past cycle_end. It reports whether a reset happened.
func rollCycle(a *Account, now time.Time) bool {
	if !now.After(a.CycleEnd) {
		return false
	}
	length := a.CycleEnd.Sub(a.CycleStart)
	if length <= 0 {
		length = DefaultCycle
	}
	periods := now.Sub(a.CycleEnd)/length + 1
	shift := time.Duration(periods) * length
	a.CycleStart = a.CycleStart.Add(shift)
	a.CycleEnd = a.CycleEnd.Add(shift)
	a.UsedThisCycle = 0
	return true
}

// reserve applies one reservation to a locked account.
func reserve(a *Account, now time.Time) error {
	if !a.IsActive {
		return ErrNoActiveLedger
	}
	if a.SubscriptionStatus != SubscriptionActive {
		return ErrSubscriptionInactive
	}
	rollCycle(a, now)
	if a.Allowed() <= 0 {
		return ErrQuotaExceeded
	}
	a.UsedThisCycle++
	return nil
}

func normalizeAccountType(raw string) string {
	if raw == AccountOrganization {
		return AccountOrganization
	}
	return AccountIndividual
}
