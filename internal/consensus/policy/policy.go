// Package policy holds the tally strategies a consensus query can resolve
// under. Both are kept side by side; neither is a special case of the other.
package policy

import (
	"context"
	"sync"
	"time"

	"veritas/internal/consensus/models"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/platform/tx"
)

// Panel is the active oracle set at the instant a vote is evaluated.
type Panel struct {
	ActiveCount int
	TotalWeight uint64
}

// ConsensusPolicy decides when a query resolves and which way.
type ConsensusPolicy interface {
	Kind() models.PolicyKind
	// Evaluate inspects the current tallies. It never mutates q.
	Evaluate(q *models.Query, panel Panel) (resolved, result bool)
	Threshold() int
	// SetThreshold validates value against panel and installs it. Inside a
	// transaction the previous value is restored on rollback.
	SetThreshold(ctx context.Context, value int, panel Panel) error
	RequiresSignature() bool
	// Expiry is the query lifetime; zero means queries never expire.
	Expiry() time.Duration
}

// Count resolves as soon as either side collects Threshold unit votes.
type Count struct {
	mu        sync.RWMutex
	threshold int
}

func NewCount(threshold int) *Count {
	return &Count{threshold: threshold}
}

func (p *Count) Kind() models.PolicyKind { return models.PolicyCount }

func (p *Count) RequiresSignature() bool { return false }

func (p *Count) Expiry() time.Duration { return 0 }

func (p *Count) Threshold() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.threshold
}

func (p *Count) Evaluate(q *models.Query, _ Panel) (bool, bool) {
	threshold := uint64(max(p.Threshold(), 1))
	switch {
	case q.YesWeight >= threshold:
		return true, true
	case q.NoWeight >= threshold:
		return true, false
	default:
		return false, false
	}
}

func (p *Count) SetThreshold(ctx context.Context, value int, panel Panel) error {
	if value < 1 {
		return dErrors.New(dErrors.CodeValidation, "count threshold must be at least 1")
	}
	if value > panel.ActiveCount {
		return dErrors.Newf(dErrors.CodeValidation,
			"count threshold %d exceeds the %d active oracles", value, panel.ActiveCount)
	}
	p.mu.Lock()
	prev := p.threshold
	p.threshold = value
	p.mu.Unlock()

	tx.OnRollback(ctx, func(context.Context) {
		p.mu.Lock()
		p.threshold = prev
		p.mu.Unlock()
	})
	return nil
}

// Weighted resolves on percent of the weight cast so far, once enough of
// the panel's weight has participated. The percentage is measured against
// votes received, not against the full panel, so a small but sufficient
// turnout can settle a query early.
type Weighted struct {
	mu         sync.RWMutex
	percent    int
	minOracles int
	expiry     time.Duration
}

func NewWeighted(percent, minOracles int, expiry time.Duration) *Weighted {
	return &Weighted{percent: percent, minOracles: minOracles, expiry: expiry}
}

func (p *Weighted) Kind() models.PolicyKind { return models.PolicyWeighted }

func (p *Weighted) RequiresSignature() bool { return true }

func (p *Weighted) Expiry() time.Duration { return p.expiry }

func (p *Weighted) Threshold() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.percent
}

func (p *Weighted) MinOracles() int {
	return p.minOracles
}

// RequiredParticipation is the weight that must be cast before either side
// can win: the average active weight times the minimum oracle count.
func (p *Weighted) RequiredParticipation(panel Panel) uint64 {
	if panel.ActiveCount <= 0 {
		return 0
	}
	return panel.TotalWeight * uint64(max(p.minOracles, 0)) / uint64(panel.ActiveCount)
}

// RequiredWeight is ceil(total * percent / 100).
func RequiredWeight(total uint64, percent int) uint64 {
	return (total*uint64(percent) + 99) / 100
}

func (p *Weighted) Evaluate(q *models.Query, panel Panel) (bool, bool) {
	if panel.ActiveCount <= 0 {
		return false, false
	}
	total := q.TotalVotes()
	if total == 0 || total < p.RequiredParticipation(panel) {
		return false, false
	}
	required := RequiredWeight(total, p.Threshold())
	switch {
	case q.YesWeight >= required:
		return true, true
	case q.NoWeight >= required:
		return true, false
	default:
		return false, false
	}
}

func (p *Weighted) SetThreshold(ctx context.Context, value int, _ Panel) error {
	if value <= 50 || value > 100 {
		return dErrors.New(dErrors.CodeValidation, "weighted threshold must be above 50 and at most 100 percent")
	}
	p.mu.Lock()
	prev := p.percent
	p.percent = value
	p.mu.Unlock()

	tx.OnRollback(ctx, func(context.Context) {
		p.mu.Lock()
		p.percent = prev
		p.mu.Unlock()
	})
	return nil
}

// ForcedResult is the outcome of an expired query: strict relative
// majority of the weight received, no participation floor.
func ForcedResult(q *models.Query) bool {
	return q.YesWeight > q.NoWeight
}
