// Package sheets defines the outbound port for audit export.
package sheets

import (
	"context"
	"time"
)

// AuditEntry is one exported audit row.
type AuditEntry struct {
	TransactionID string
	Identity      string
	Category      string
	SubDivision   string
	AmountCents   int64
	OccurredAt    time.Time
}

// AuditWriter appends audit rows to an external sink.
type AuditWriter interface {
	Append(ctx context.Context, e AuditEntry) (rowRef string, err error)
}
