package testcases

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SyncPlan is the declarative diff between stored and submitted steps.
type SyncPlan struct {
	Updates []Step
	Inserts []Step
	Deletes []string
	// Result is the live step list after applying the plan, ordered.
	Result []Step
}

// PlanSync computes how to make the steps of testCaseID equal incoming.
//
// existing holds every stored step of the test case, tombstoned ones
// included. An incoming id that is not among them fails the whole plan with
// ErrForeignStepReference. An incoming step without id that matches a live
// step unclaimed by id (same order, action, expected result and type) reuses
// it, so submitting the same list twice inserts nothing the second time.
// Live steps left unclaimed are tombstoned.
func PlanSync(testCaseID string, existing []Step, incoming []StepInput, now time.Time, newID func() string) (SyncPlan, error) {
	byID := make(map[string]Step, len(existing))
	for _, s := range existing {
		byID[s.ID] = s
	}

	claimed := make(map[string]bool, len(incoming))
	for _, in := range incoming {
		if in.ID == "" {
			continue
		}
		if _, ok := byID[in.ID]; !ok {
			return SyncPlan{}, fmt.Errorf("%w: %s", ErrForeignStepReference, in.ID)
		}
		if claimed[in.ID] {
			return SyncPlan{}, &ValidationError{Fields: map[string]string{"steps": "duplicate step id " + in.ID}}
		}
		claimed[in.ID] = true
	}

	var plan SyncPlan
	trailing := 0
	for _, in := range incoming {
		if in.Order > trailing {
			trailing = in.Order
		}
	}

	for _, in := range incoming {
		in = normalizeInput(in)
		if in.Order <= 0 {
			trailing++
			in.Order = trailing
		}

		if in.ID != "" {
			cur := byID[in.ID]
			next := cur
			next.Order, next.Action, next.ExpectedResult, next.StepType = in.Order, in.Action, in.ExpectedResult, in.StepType
			next.DeletedAt = nil
			if next != cur || cur.DeletedAt != nil {
				next.UpdatedAt = now
				plan.Updates = append(plan.Updates, next)
			}
			plan.Result = append(plan.Result, next)
			continue
		}

		if match, ok := findEquivalent(existing, claimed, in); ok {
			claimed[match.ID] = true
			plan.Result = append(plan.Result, match)
			continue
		}

		step := Step{
			ID:             newID(),
			TestCaseID:     testCaseID,
			Order:          in.Order,
			Action:         in.Action,
			ExpectedResult: in.ExpectedResult,
			StepType:       in.StepType,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		plan.Inserts = append(plan.Inserts, step)
		plan.Result = append(plan.Result, step)
	}

	for _, s := range existing {
		if s.DeletedAt == nil && !claimed[s.ID] {
			plan.Deletes = append(plan.Deletes, s.ID)
		}
	}
	sortSteps(plan.Result)
	return plan, nil
}

func findEquivalent(existing []Step, claimed map[string]bool, in StepInput) (Step, bool) {
	for _, s := range existing {
		if s.DeletedAt != nil || claimed[s.ID] {
			continue
		}
		if s.Order == in.Order && s.Action == in.Action && s.ExpectedResult == in.ExpectedResult && s.StepType == in.StepType {
			return s, true
		}
	}
	return Step{}, false
}

func normalizeInput(in StepInput) StepInput {
	in.Action = strings.TrimSpace(in.Action)
	in.ExpectedResult = strings.TrimSpace(in.ExpectedResult)
	in.StepType = stepTypes.Normalize(in.StepType)
	return in
}

func sortSteps(steps []Step) {
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
}
