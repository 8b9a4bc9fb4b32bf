// Package admission decides whether a destination may be reached.
package admission

import (
	"context"

	"github.com/haukened/phishguard/internal/proxy/common/clock"
	"github.com/haukened/phishguard/internal/proxy/common/log"
	"github.com/haukened/phishguard/internal/proxy/domain"
	"github.com/haukened/phishguard/internal/proxy/metrics"
)

// Engine runs the admission pipeline: blacklist, then decision cache, then
// the ordered heuristics. It is safe for concurrent use when its
// dependencies are.
type Engine struct {
	blacklist  Blacklist
	cache      DecisionCache
	heuristics []Heuristic
	clock      clock.Clock
	logger     log.Logger
}

type Options struct {
	Blacklist  Blacklist
	Cache      DecisionCache
	Heuristics []Heuristic
	Clock      clock.Clock
	Logger     log.Logger
}

// New builds an Engine. Blacklist and Cache are optional.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = &clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Engine{
		blacklist:  opts.Blacklist,
		cache:      opts.Cache,
		heuristics: opts.Heuristics,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
}

// Check scores t and returns the decision. It never fails: check errors
// count as zero.
func (e *Engine) Check(ctx context.Context, t domain.Target) domain.AdmissionDecision {
	start := e.clock.Now()
	d := e.check(ctx, t)
	metrics.RecordDecision(d.Verdict.String(), d.Source.String(), e.clock.Now().Sub(start).Seconds())
	return d
}

func (e *Engine) check(ctx context.Context, t domain.Target) domain.AdmissionDecision {
	if e.blacklist != nil {
		if hit, reason := e.blacklist.IsBlacklisted(ctx, t.Host, t.IP); hit {
			return domain.NewAdmissionDecision(domain.MaxScore, []string{reason}, domain.SourceBlacklist)
		}
	}

	if e.cache != nil {
		if score, reasons, ok := e.cache.Get(t.Host); ok {
			e.logger.Debug(map[string]any{"host": t.Host, "score": score, "reasons": reasons}, "decision cache hit")
			return domain.NewAdmissionDecision(score, reasons, domain.SourceCache)
		}
	}

	score, reasons := e.score(ctx, t)
	if e.cache != nil {
		e.cache.Put(t.Host, score, reasons)
	}
	return domain.NewAdmissionDecision(score, reasons, domain.SourceHeuristics)
}

// score accumulates heuristic contributions in order, stopping as soon as
// the total reaches the maximum.
func (e *Engine) score(ctx context.Context, t domain.Target) (float64, []string) {
	var score float64
	reasons := []string{}
	for _, h := range e.heuristics {
		sig := h.Evaluate(ctx, t)
		metrics.RecordHeuristic(h.Name(), sig.Fired(), sig.Err != nil)
		if sig.Err != nil {
			e.logger.Debug(map[string]any{"check": h.Name(), "host": t.Host, "error": sig.Err}, "check inconclusive")
		}
		score += sig.Score
		if sig.Reason != "" {
			reasons = append(reasons, sig.Reason)
		}
		if score >= domain.MaxScore {
			score = domain.MaxScore
			break
		}
	}
	return score, reasons
}
