// Package worker turns consumed transaction events into durable audit rows
// and, when configured, exports them to an external sheet.
package worker

import (
	"context"
	"fmt"
	"time"

	"bilancio/internal/amqp"
	applog "bilancio/internal/log"
	"bilancio/internal/sheets"
	"bilancio/internal/storage"
)

type AuditWorker struct {
	storage   *storage.SQLiteRepository
	exporter  sheets.AuditWriter
	batchSize int
	logger    *applog.Logger
}

// NewAuditWorker wires the worker. A nil exporter disables the export sweep;
// audit rows still accumulate in SQLite.
func NewAuditWorker(repo *storage.SQLiteRepository, exporter sheets.AuditWriter, batchSize int, logger *applog.Logger) *AuditWorker {
	if logger == nil {
		logger = applog.New(applog.Config{Component: applog.ComponentWorker})
	}
	return &AuditWorker{
		storage:   repo,
		exporter:  exporter,
		batchSize: batchSize,
		logger:    logger,
	}
}

// HandleTransactionMessage records one consumed event in the audit log.
// Returning an error requeues the event.
func (w *AuditWorker) HandleTransactionMessage(ctx context.Context, msg amqp.TransactionMessage) error {
	rec := storage.AuditRecord{
		TransactionID: msg.ID,
		Identity:      msg.Identity,
		Category:      msg.Category,
		SubDivision:   msg.SubDivision,
		AmountCents:   msg.AmountCents,
		OccurredAt:    msg.Timestamp,
	}

	if err := w.storage.AppendAudit(ctx, rec); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}

	return nil
}

// ProcessPendingExports pushes unexported audit rows to the exporter. Rows
// that fail are flagged and retried on the next sweep.
func (w *AuditWorker) ProcessPendingExports(ctx context.Context) error {
	if w.exporter == nil {
		return nil
	}

	pending, err := w.storage.PendingExportAudit(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending audit records: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	w.logger.InfoContext(ctx, "exporting audit records", "count", len(pending))

	for _, rec := range pending {
		ref, err := w.exporter.Append(ctx, sheets.AuditEntry{
			TransactionID: rec.TransactionID,
			Identity:      rec.Identity,
			Category:      rec.Category,
			SubDivision:   rec.SubDivision,
			AmountCents:   rec.AmountCents,
			OccurredAt:    rec.OccurredAt,
		})
		if err != nil {
			w.logger.ErrorContext(ctx, "failed to export audit record",
				applog.FieldError, err,
				applog.FieldTransactionID, rec.TransactionID)
			if markErr := w.storage.MarkAuditExportError(ctx, rec.ID); markErr != nil {
				w.logger.ErrorContext(ctx, "failed to mark export error",
					applog.FieldError, markErr, "id", rec.ID)
			}
			continue
		}

		if err := w.storage.MarkAuditExported(ctx, rec.ID); err != nil {
			w.logger.ErrorContext(ctx, "failed to mark record exported",
				applog.FieldError, err, "id", rec.ID)
			continue
		}

		w.logger.InfoContext(ctx, "audit record exported",
			applog.FieldTransactionID, rec.TransactionID,
			"sheets_ref", ref)
	}

	return nil
}

// RunExportLoop sweeps pending exports until the context ends.
func (w *AuditWorker) RunExportLoop(ctx context.Context, interval time.Duration) error {
	if w.exporter == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessPendingExports(ctx); err != nil {
				w.logger.ErrorContext(ctx, "export sweep failed", applog.FieldError, err)
			}
		}
	}
}
