// Package storage persists budgets, transactions and the audit log in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
)

// timeLayout is the canonical text encoding for timestamps. SQLite stores
// them as TEXT, so the layout must sort chronologically.
const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db     *sql.DB
	logger *applog.Logger
}

func NewSQLiteRepository(dbPath string, logger *applog.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if logger == nil {
		logger = applog.New(applog.Config{Component: applog.ComponentStorage})
	}

	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// LoadBudget implements ledger.Store.
func (r *SQLiteRepository) LoadBudget(ctx context.Context, identity string) (core.BudgetSnapshot, bool, error) {
	var (
		snap      core.BudgetSnapshot
		lastReset string
		strict    int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT total_income, daily_limit, daily_spent, last_reset, strict_mode
		 FROM budgets WHERE identity = ?`, identity).
		Scan(&snap.TotalIncome, &snap.DailyLimit, &snap.DailySpent, &lastReset, &strict)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetSnapshot{}, false, nil
	}
	if err != nil {
		return core.BudgetSnapshot{}, false, fmt.Errorf("select budget: %w", err)
	}

	snap.StrictMode = strict != 0
	snap.LastReset, err = time.Parse(timeLayout, lastReset)
	if err != nil {
		return core.BudgetSnapshot{}, false, fmt.Errorf("parse last_reset: %w", err)
	}

	snap.Categories, err = r.loadCategories(ctx, identity)
	if err != nil {
		return core.BudgetSnapshot{}, false, err
	}

	return snap, true, nil
}

func (r *SQLiteRepository) loadCategories(ctx context.Context, identity string) ([]core.CategorySnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, allocation, spent FROM budget_categories
		 WHERE identity = ? ORDER BY position`, identity)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var cats []core.CategorySnapshot
	for rows.Next() {
		var cs core.CategorySnapshot
		if err := rows.Scan(&cs.Name, &cs.Allocation, &cs.Spent); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}

	for i := range cats {
		cats[i].SubDivisions, err = r.loadSubDivisions(ctx, identity, cats[i].Name)
		if err != nil {
			return nil, err
		}
	}

	return cats, nil
}

func (r *SQLiteRepository) loadSubDivisions(ctx context.Context, identity, category string) ([]core.SubDivisionSnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, allocation, spent, percent_of_category FROM budget_sub_divisions
		 WHERE identity = ? AND category = ? ORDER BY position`, identity, category)
	if err != nil {
		return nil, fmt.Errorf("select sub-divisions: %w", err)
	}
	defer rows.Close()

	var subs []core.SubDivisionSnapshot
	for rows.Next() {
		var sd core.SubDivisionSnapshot
		if err := rows.Scan(&sd.Name, &sd.Allocation, &sd.Spent, &sd.PercentOfCategory); err != nil {
			return nil, fmt.Errorf("scan sub-division: %w", err)
		}
		subs = append(subs, sd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sub-divisions: %w", err)
	}

	return subs, nil
}

// SaveBudget implements ledger.Store.
func (r *SQLiteRepository) SaveBudget(ctx context.Context, identity string, snap core.BudgetSnapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := saveBudgetTx(ctx, tx, identity, snap); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CommitSpend implements ledger.Store. The budget state and the transaction
// record land in the same SQLite transaction.
func (r *SQLiteRepository) CommitSpend(ctx context.Context, identity string, snap core.BudgetSnapshot, trn ledger.Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := saveBudgetTx(ctx, tx, identity, snap); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, identity, category, sub_division, amount_cents, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		trn.ID.String(), trn.Identity, trn.Category, trn.SubDivision, trn.AmountCents,
		trn.Timestamp.UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	r.logger.DebugContext(ctx, "spend committed",
		applog.FieldIdentity, identity,
		applog.FieldTransactionID, trn.ID.String(),
		applog.FieldAmountCents, trn.AmountCents)
	return nil
}

// saveBudgetTx rewrites the identity's rows from the snapshot. A full rewrite
// keeps the persisted order lists exact, duplicate entries included.
func saveBudgetTx(ctx context.Context, tx *sql.Tx, identity string, snap core.BudgetSnapshot) error {
	now := time.Now().UTC().Format(timeLayout)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO budgets (identity, total_income, daily_limit, daily_spent, last_reset, strict_mode, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(identity) DO UPDATE SET
		   total_income = excluded.total_income,
		   daily_limit  = excluded.daily_limit,
		   daily_spent  = excluded.daily_spent,
		   last_reset   = excluded.last_reset,
		   strict_mode  = excluded.strict_mode,
		   updated_at   = excluded.updated_at`,
		identity, snap.TotalIncome, snap.DailyLimit, snap.DailySpent,
		snap.LastReset.UTC().Format(timeLayout), boolToInt(snap.StrictMode), now); err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM budget_sub_divisions WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("clear sub-divisions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM budget_categories WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}

	for pos, cs := range snap.Categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO budget_categories (identity, position, name, allocation, spent)
			 VALUES (?, ?, ?, ?, ?)`,
			identity, pos, cs.Name, cs.Allocation, cs.Spent); err != nil {
			return fmt.Errorf("insert category %s: %w", cs.Name, err)
		}
		for sdPos, sd := range cs.SubDivisions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO budget_sub_divisions (identity, category, position, name, allocation, spent, percent_of_category)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				identity, cs.Name, sdPos, sd.Name, sd.Allocation, sd.Spent, sd.PercentOfCategory); err != nil {
				return fmt.Errorf("insert sub-division %s/%s: %w", cs.Name, sd.Name, err)
			}
		}
	}

	return nil
}

// AuditRecord is one row of the append-only audit log the worker maintains
// from consumed transaction events.
type AuditRecord struct {
	ID            int64
	TransactionID string
	Identity      string
	Category      string
	SubDivision   string
	AmountCents   int64
	OccurredAt    time.Time
}

// AppendAudit records a consumed transaction event. Redelivered events are
// absorbed by the unique transaction_id constraint.
func (r *SQLiteRepository) AppendAudit(ctx context.Context, rec AuditRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (transaction_id, identity, category, sub_division, amount_cents, occurred_at, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(transaction_id) DO NOTHING`,
		rec.TransactionID, rec.Identity, rec.Category, rec.SubDivision, rec.AmountCents,
		rec.OccurredAt.UTC().Format(timeLayout), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}

	r.logger.InfoContext(ctx, "audit record appended",
		applog.FieldTransactionID, rec.TransactionID,
		applog.FieldIdentity, rec.Identity,
		applog.FieldAmountCents, rec.AmountCents)
	return nil
}

// PendingExportAudit returns audit rows not yet exported, oldest first.
func (r *SQLiteRepository) PendingExportAudit(ctx context.Context, limit int) ([]AuditRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, transaction_id, identity, category, sub_division, amount_cents, occurred_at
		 FROM audit_log WHERE exported = 0 ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending audit records: %w", err)
	}
	defer rows.Close()

	var recs []AuditRecord
	for rows.Next() {
		var (
			rec        AuditRecord
			occurredAt string
		)
		if err := rows.Scan(&rec.ID, &rec.TransactionID, &rec.Identity, &rec.Category,
			&rec.SubDivision, &rec.AmountCents, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.OccurredAt, err = time.Parse(timeLayout, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parse occurred_at: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}

	return recs, nil
}

// MarkAuditExported marks an audit row as delivered to the export sink.
func (r *SQLiteRepository) MarkAuditExported(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE audit_log SET exported = 1, export_error = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark audit exported: %w", err)
	}
	return nil
}

// MarkAuditExportError flags a row whose export attempt failed so the next
// sweep retries it.
func (r *SQLiteRepository) MarkAuditExportError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE audit_log SET export_error = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark audit export error: %w", err)
	}
	r.logger.WarnContext(ctx, "audit record flagged with export error", "id", id)
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
