package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAdmissionDecision_Threshold(t *testing.T) {
	tests := []struct {
		name    string
		score   float64
		verdict Verdict
		want    float64
	}{
		{"zero allows", 0, VerdictAllow, 0},
		{"at threshold allows", 0.5, VerdictAllow, 0.5},
		{"above threshold denies", 0.6, VerdictDeny, 0.6},
		{"clamped above one", 1.7, VerdictDeny, 1.0},
		{"clamped below zero", -0.2, VerdictAllow, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewAdmissionDecision(tt.score, nil, SourceHeuristics)
			assert.Equal(t, tt.verdict, d.Verdict)
			assert.Equal(t, tt.want, d.Score)
			assert.Equal(t, tt.verdict == VerdictDeny, d.IsDenied())
		})
	}
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "allow", VerdictAllow.String())
	assert.Equal(t, "deny", VerdictDeny.String())
	assert.Equal(t, "Verdict(7)", Verdict(7).String())

	assert.Equal(t, "heuristics", SourceHeuristics.String())
	assert.Equal(t, "blacklist", SourceBlacklist.String())
	assert.Equal(t, "cache", SourceCache.String())
	assert.Equal(t, "DecisionSource(9)", DecisionSource(9).String())

	assert.Equal(t, "allow", OutcomeAllow.String())
	assert.Equal(t, "deny", OutcomeDeny.String())
	assert.Equal(t, "error", OutcomeError.String())
	assert.Equal(t, "Outcome(5)", Outcome(5).String())
}

func TestSignal(t *testing.T) {
	assert.False(t, NoSignal().Fired())
	assert.False(t, Inconclusive(assert.AnError).Fired())
	assert.True(t, Signal{Score: 0.3, Reason: "suspicious TLD: xyz"}.Fired())
}
