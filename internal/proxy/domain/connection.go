package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionContext holds per-connection state from accept to close.
type ConnectionContext struct {
	ID         uuid.UUID
	ClientAddr string
	Target     Target
	AcceptedAt time.Time
}

// NewConnectionContext stamps a fresh connection id.
func NewConnectionContext(clientAddr string, acceptedAt time.Time) *ConnectionContext {
	return &ConnectionContext{ID: uuid.New(), ClientAddr: clientAddr, AcceptedAt: acceptedAt}
}
