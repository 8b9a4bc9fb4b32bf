package domain

import "fmt"

// DenyThreshold is the score above which a destination is denied.
const DenyThreshold = 0.5

// MaxScore is the ceiling of the admission score.
const MaxScore = 1.0

// Verdict is the allow/deny outcome of an admission check.
type Verdict uint8

const (
	VerdictAllow Verdict = iota
	VerdictDeny
)

// String returns the lower-case verdict name, as stored in the logs table.
func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictDeny:
		return "deny"
	default:
		return fmt.Sprintf("Verdict(%d)", v)
	}
}

// DecisionSource records which stage of the admission pipeline produced a decision.
type DecisionSource uint8

const (
	SourceHeuristics DecisionSource = iota
	SourceBlacklist
	SourceCache
)

func (s DecisionSource) String() string {
	switch s {
	case SourceHeuristics:
		return "heuristics"
	case SourceBlacklist:
		return "blacklist"
	case SourceCache:
		return "cache"
	default:
		return fmt.Sprintf("DecisionSource(%d)", s)
	}
}

// AdmissionDecision is the result of checking one destination.
// Pure value type; Reasons is ordered by the check that produced each entry.
type AdmissionDecision struct {
	Score   float64
	Verdict Verdict
	Reasons []string
	Source  DecisionSource
}

// NewAdmissionDecision clamps score to [0, 1] and derives the verdict from it.
func NewAdmissionDecision(score float64, reasons []string, source DecisionSource) AdmissionDecision {
	score = ClampScore(score)
	v := VerdictAllow
	if score > DenyThreshold {
		v = VerdictDeny
	}
	return AdmissionDecision{Score: score, Verdict: v, Reasons: reasons, Source: source}
}

// IsDenied is a convenience accessor.
func (d AdmissionDecision) IsDenied() bool { return d.Verdict == VerdictDeny }

// ClampScore pins s into [0, MaxScore].
func ClampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > MaxScore {
		return MaxScore
	}
	return s
}
