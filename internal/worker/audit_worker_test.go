package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/amqp"
	"bilancio/internal/sheets/memory"
	"bilancio/internal/storage"
)

func newTestWorker(t *testing.T) (*AuditWorker, *storage.SQLiteRepository, *memory.Writer) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "worker.db"), nil)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	writer := memory.NewWriter()
	return NewAuditWorker(repo, writer, 10, nil), repo, writer
}

func testMessage() amqp.TransactionMessage {
	return amqp.TransactionMessage{
		ID:          uuid.NewString(),
		Identity:    "alice",
		Category:    "Needs",
		SubDivision: "Groceries",
		AmountCents: 500,
		Timestamp:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestHandleTransactionMessage(t *testing.T) {
	ctx := context.Background()
	w, repo, _ := newTestWorker(t)

	msg := testMessage()
	if err := w.HandleTransactionMessage(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	pending, err := repo.PendingExportAudit(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	rec := pending[0]
	if rec.TransactionID != msg.ID || rec.Identity != "alice" || rec.AmountCents != 500 {
		t.Fatalf("record = %+v", rec)
	}

	// Redelivered events do not duplicate the audit row.
	if err := w.HandleTransactionMessage(ctx, msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	pending, err = repo.PendingExportAudit(ctx, 10)
	if err != nil {
		t.Fatalf("pending after redelivery: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d after redelivery, want 1", len(pending))
	}
}

func TestProcessPendingExports(t *testing.T) {
	ctx := context.Background()
	w, repo, writer := newTestWorker(t)

	first := testMessage()
	second := testMessage()
	second.SubDivision = ""
	second.Category = "General"
	second.AmountCents = 900

	for _, msg := range []amqp.TransactionMessage{first, second} {
		if err := w.HandleTransactionMessage(ctx, msg); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}

	if err := w.ProcessPendingExports(ctx); err != nil {
		t.Fatalf("export: %v", err)
	}

	entries := writer.Entries()
	if len(entries) != 2 {
		t.Fatalf("exported %d entries, want 2", len(entries))
	}
	if entries[0].TransactionID != first.ID || entries[1].TransactionID != second.ID {
		t.Fatalf("export order = %+v", entries)
	}

	pending, err := repo.PendingExportAudit(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending = %d after export, want 0", len(pending))
	}
}

func TestProcessPendingExportsRetriesFailures(t *testing.T) {
	ctx := context.Background()
	w, repo, writer := newTestWorker(t)

	if err := w.HandleTransactionMessage(ctx, testMessage()); err != nil {
		t.Fatalf("handle: %v", err)
	}

	writer.FailWith(errors.New("sheets unavailable"))
	if err := w.ProcessPendingExports(ctx); err != nil {
		t.Fatalf("export with failing writer: %v", err)
	}

	pending, err := repo.PendingExportAudit(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("failed row left pending set: %d", len(pending))
	}

	// The sink recovers; the next sweep drains the row.
	writer.FailWith(nil)
	if err := w.ProcessPendingExports(ctx); err != nil {
		t.Fatalf("export after recovery: %v", err)
	}
	if len(writer.Entries()) != 1 {
		t.Fatalf("exported %d entries, want 1", len(writer.Entries()))
	}
}

func TestProcessPendingExportsWithoutExporter(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "worker.db"), nil)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	w := NewAuditWorker(repo, nil, 10, nil)
	if err := w.HandleTransactionMessage(ctx, testMessage()); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := w.ProcessPendingExports(ctx); err != nil {
		t.Fatalf("export without exporter: %v", err)
	}
}
