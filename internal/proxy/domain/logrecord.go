package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Outcome is the terminal state of a connection as persisted.
type Outcome uint8

const (
	OutcomeAllow Outcome = iota
	OutcomeDeny
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllow:
		return "allow"
	case OutcomeDeny:
		return "deny"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("Outcome(%d)", o)
	}
}

// LogRecord is the immutable record of one connection, created once after a
// decision is reached and handed to the persistence and alert sinks.
type LogRecord struct {
	ConnID     string
	ClientAddr string
	Host       string
	IP         string // empty when resolution failed
	Port       int
	Method     string
	Outcome    Outcome
	Score      float64
	Reasons    []string
	Detail     string // failure description for OutcomeError
	Time       time.Time
}

// NewLogRecord builds a record from a connection and its admission decision.
func NewLogRecord(cc *ConnectionContext, d AdmissionDecision, outcome Outcome, at time.Time) LogRecord {
	reasons := make([]string, len(d.Reasons))
	copy(reasons, d.Reasons)
	return LogRecord{
		ConnID:     cc.ID.String(),
		ClientAddr: cc.ClientAddr,
		Host:       cc.Target.Host,
		IP:         cc.Target.IPString(),
		Port:       cc.Target.Port,
		Method:     cc.Target.Method,
		Outcome:    outcome,
		Score:      d.Score,
		Reasons:    reasons,
		Time:       at,
	}
}

// ReasonsJSON serializes the reasons list. ok is false when there are no
// reasons, in which case the stored column is NULL.
func (r LogRecord) ReasonsJSON() (string, bool) {
	if len(r.Reasons) == 0 {
		return "", false
	}
	b, err := json.Marshal(r.Reasons)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// FirstReason returns the leading reason, or the detail for failed connections.
func (r LogRecord) FirstReason() string {
	if len(r.Reasons) > 0 {
		return r.Reasons[0]
	}
	return r.Detail
}
