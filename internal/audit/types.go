// Package audit relays per-operation audit records to the shared platform
// logging service without ever blocking or failing the operation that
// produced them.
package audit

import (
	"context"
	"time"
)

// Status values for audit records.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)

// Record is one audit event in the platform-wide schema: who did what,
// through which service, with what outcome.
type Record struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"user_id"`
	Service   string    `json:"service"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Submitter delivers a record to the shared logging service.
type Submitter interface {
	SubmitAuditRecord(ctx context.Context, rec Record) error
}

// Spill persists records whose delivery retries were exhausted, so they
// survive a restart instead of vanishing.
type Spill interface {
	Save(ctx context.Context, rec Record) error
}
