// Package memory is an in-memory AuditWriter for tests and local runs
// without Google credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	ports "bilancio/internal/sheets"
)

type Writer struct {
	mu      sync.Mutex
	entries []ports.AuditEntry
	fail    error
}

var _ ports.AuditWriter = (*Writer)(nil)

func NewWriter() *Writer {
	return &Writer{}
}

// FailWith makes every subsequent Append return err. Pass nil to recover.
func (w *Writer) FailWith(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fail = err
}

func (w *Writer) Append(_ context.Context, e ports.AuditEntry) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fail != nil {
		return "", w.fail
	}
	w.entries = append(w.entries, e)
	return fmt.Sprintf("row-%d", len(w.entries)), nil
}

// Entries returns a copy of everything appended so far.
func (w *Writer) Entries() []ports.AuditEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]ports.AuditEntry(nil), w.entries...)
}
