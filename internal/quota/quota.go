// Package quota gates clip generation on the monthly per-plan clip limit.
package quota

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/types"
)

// Unlimited marks a plan without a monthly cap.
const Unlimited = -1

// Limits maps a plan to the number of clip generations allowed per period.
type Limits map[types.Plan]int

// DefaultLimits mirrors the published plans.
func DefaultLimits() Limits {
	return Limits{
		types.PlanFree: 3,
		types.PlanPro:  Unlimited,
	}
}

// Limit returns the cap for a plan. Unknown plans get the free cap.
func (l Limits) Limit(p types.Plan) int {
	if n, ok := l[p]; ok {
		return n
	}
	if n, ok := l[types.PlanFree]; ok {
		return n
	}
	return DefaultLimits()[types.PlanFree]
}

type plansFile struct {
	Plans map[string]int `yaml:"plans"`
}

// LoadLimits reads plan limits from a YAML file of the form
//
//	plans:
//	  free: 3
//	  pro: -1
//
// Plans missing from the file keep their default.
func LoadLimits(path string) (Limits, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quota plans: %w", err)
	}
	var f plansFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse quota plans: %w", err)
	}
	l := DefaultLimits()
	for name, n := range f.Plans {
		if n < Unlimited {
			return nil, fmt.Errorf("plan %q: limit %d must be >= -1", name, n)
		}
		l[types.Plan(name)] = n
	}
	return l, nil
}

// Period is the usage bucket for t: the UTC calendar month.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Store is what the checker reads.
type Store interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (types.Profile, error)
	Usage(ctx context.Context, userID uuid.UUID, period string) (int, error)
}

// Checker rejects a request when the user already used the plan's limit
// for the current period. The check is not a reservation: two concurrent
// requests can both pass it.
type Checker struct {
	store  Store
	limits Limits
	now    func() time.Time
}

func NewChecker(store Store, limits Limits, now func() time.Time) *Checker {
	if limits == nil {
		limits = DefaultLimits()
	}
	if now == nil {
		now = time.Now
	}
	return &Checker{store: store, limits: limits, now: now}
}

func (c *Checker) Check(ctx context.Context, userID uuid.UUID) error {
	plan := types.PlanFree
	p, err := c.store.GetProfile(ctx, userID)
	switch {
	case err == nil:
		plan = p.Plan
	case apperr.IsCode(err, apperr.CodeNotFound):
	default:
		return apperr.Ensure(err, apperr.CodePersistence, "load profile")
	}

	limit := c.limits.Limit(plan)
	if limit == Unlimited {
		return nil
	}
	used, err := c.store.Usage(ctx, userID, Period(c.now()))
	if err != nil {
		return apperr.Ensure(err, apperr.CodePersistence, "load usage")
	}
	if used >= limit {
		return apperr.WithOp(apperr.ErrQuotaExceeded, "quota.Check")
	}
	return nil
}
