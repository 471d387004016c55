package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/domain/ledger"
)

// SQLiteSnapshotRepository implements SnapshotRepository for SQLite.
type SQLiteSnapshotRepository struct {
	db *sql.DB
}

func NewSQLiteSnapshotRepository(db *sql.DB) *SQLiteSnapshotRepository {
	return &SQLiteSnapshotRepository{db: db}
}

var snapshotTables = []string{"relations", "households", "banks", "sim_state"}

func (r *SQLiteSnapshotRepository) Reset(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	if err := clearTables(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func clearTables(ctx context.Context, tx *sql.Tx) error {
	for _, table := range snapshotTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func (r *SQLiteSnapshotRepository) Save(ctx context.Context, snap Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin export: %w", err)
	}
	defer tx.Rollback()

	if err := clearTables(ctx, tx); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sim_state (id, tick, fed_pool, discount_rate, reserve_ratio, bank_count, taken_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)`,
		snap.Tick, snap.Fed.Pool, snap.Fed.DiscountRate, snap.Fed.ReserveRatio, len(snap.Banks), snap.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write sim state: %w", err)
	}

	bankStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO banks (registered_id, id, name, status, reserve, loans, deposit, equity, total, loan_rate, deposit_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare bank insert: %w", err)
	}
	defer bankStmt.Close()

	relStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relations (holder_id, counterparty_id, payable, receivable)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare relation insert: %w", err)
	}
	defer relStmt.Close()

	insertRelations := func(holder ident.ID, records []ledger.Relation) error {
		for _, rel := range records {
			if _, err := relStmt.ExecContext(ctx, holder, rel.Counterparty, rel.Payable, rel.Receivable); err != nil {
				return fmt.Errorf("failed to write relation %d->%d: %w", holder, rel.Counterparty, err)
			}
		}
		return nil
	}

	if err := insertRelations(snap.Fed.ID, snap.Fed.Relations); err != nil {
		return err
	}

	for _, b := range snap.Banks {
		_, err := bankStmt.ExecContext(ctx,
			b.RegisteredID, b.ID, b.Name, string(b.Status), b.Reserve, b.Loans, b.Deposit,
			b.Equity, b.Total, b.LoanRate, b.DepositRate,
		)
		if err != nil {
			return fmt.Errorf("failed to write bank %d: %w", b.RegisteredID, err)
		}
		// A failed bank has an empty ledger; its id is the sentinel.
		if err := insertRelations(b.ID, b.Relations); err != nil {
			return err
		}
	}

	for _, h := range snap.Households {
		if _, err := tx.ExecContext(ctx, `INSERT INTO households (id, name, cash) VALUES (?, ?, ?)`, h.ID, h.Name, h.Cash); err != nil {
			return fmt.Errorf("failed to write household %d: %w", h.ID, err)
		}
		if err := insertRelations(h.ID, h.Relations); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetSimState returns nil when nothing has been exported yet.
func (r *SQLiteSnapshotRepository) GetSimState(ctx context.Context) (*SimState, error) {
	query := `SELECT tick, fed_pool, discount_rate, reserve_ratio, bank_count, taken_at FROM sim_state WHERE id = 1`
	var s SimState
	err := r.db.QueryRowContext(ctx, query).Scan(
		&s.Tick, &s.FedPool, &s.DiscountRate, &s.ReserveRatio, &s.BankCount, &s.TakenAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteSnapshotRepository) GetBanks(ctx context.Context) ([]BankRow, error) {
	query := `SELECT registered_id, id, name, status, reserve, loans, deposit, equity, total, loan_rate, deposit_rate
		FROM banks ORDER BY registered_id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var banks []BankRow
	for rows.Next() {
		var b BankRow
		if err := rows.Scan(
			&b.RegisteredID, &b.ID, &b.Name, &b.Status, &b.Reserve, &b.Loans, &b.Deposit,
			&b.Equity, &b.Total, &b.LoanRate, &b.DepositRate,
		); err != nil {
			return nil, err
		}
		banks = append(banks, b)
	}
	return banks, rows.Err()
}

func (r *SQLiteSnapshotRepository) GetRelations(ctx context.Context, holderID ident.ID) ([]RelationRow, error) {
	query := `SELECT holder_id, counterparty_id, payable, receivable FROM relations
		WHERE holder_id = ? ORDER BY counterparty_id ASC`
	rows, err := r.db.QueryContext(ctx, query, holderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []RelationRow
	for rows.Next() {
		var rel RelationRow
		if err := rows.Scan(&rel.HolderID, &rel.CounterpartyID, &rel.Payable, &rel.Receivable); err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}
