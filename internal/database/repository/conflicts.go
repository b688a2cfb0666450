package repository

import (
	"context"
	"database/sql"
)

// ConflictRepo handles pending conflict groups.
type ConflictRepo struct {
	db *sql.DB
}

func NewConflictRepo(db *sql.DB) *ConflictRepo { return &ConflictRepo{db: db} }

// PendingGroups lists all unresolved conflict groups, newest first.
func (r *ConflictRepo) PendingGroups(ctx context.Context) ([]ConflictGroupSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT pc.conflict_group_id, pc.folio_id, f.folio_number, f.scheme_name,
	       pc.tx_date, COUNT(*)
	FROM pending_conflicts pc
	JOIN folios f ON f.id = pc.folio_id
	GROUP BY pc.conflict_group_id
	ORDER BY MAX(pc.created_at) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ConflictGroupSummary
	for rows.Next() {
		var g ConflictGroupSummary
		if err := rows.Scan(&g.GroupID, &g.FolioID, &g.FolioNumber, &g.SchemeName, &g.Date, &g.TxCount); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GroupTransactions returns the candidate members of one conflict group.
func (r *ConflictRepo) GroupTransactions(ctx context.Context, groupID string) ([]PendingConflict, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, conflict_group_id, folio_id, tx_date, tx_type, description,
	       amount, units, nav, balance_units, tx_hash, created_at
	FROM pending_conflicts WHERE conflict_group_id = ?
	ORDER BY amount DESC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PendingConflict
	for rows.Next() {
		var p PendingConflict
		if err := rows.Scan(&p.ID, &p.ConflictGroupID, &p.FolioID, &p.Date, &p.Type,
			&p.Description, &p.Amount, &p.Units, &p.NAV, &p.BalanceUnits, &p.Hash, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Resolution summarizes one resolved conflict group. Reactivated counts
// the activated members that already had a parked transaction row, as
// opposed to candidates living only in the conflict group.
type Resolution struct {
	GroupID     string
	Activated   int
	Reactivated int
	Discarded   int
}

// Resolve activates exactly the selected hashes, discards the rest, and
// deletes the group. The whole resolution is one sqlite transaction.
func (r *ConflictRepo) Resolve(ctx context.Context, groupID string, selectedHashes []string) (Resolution, error) {
	res := Resolution{GroupID: groupID}
	selected := make(map[string]bool, len(selectedHashes))
	for _, h := range selectedHashes {
		selected[h] = true
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback() }()

	members, err := groupMembersInTx(ctx, tx, groupID)
	if err != nil {
		return res, err
	}

	for _, m := range members {
		var existingID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM transactions WHERE tx_hash = ?`, m.Hash).Scan(&existingID)
		if err != nil && err != sql.ErrNoRows {
			return res, err
		}
		exists := err == nil

		if selected[m.Hash] {
			if exists {
				res.Reactivated++
				_, err = tx.ExecContext(ctx, `
				UPDATE transactions SET status = 'active', conflict_group_id = NULL
				WHERE tx_hash = ?`, m.Hash)
			} else {
				_, err = tx.ExecContext(ctx, `
				INSERT INTO transactions(folio_id, tx_date, tx_type, description, amount, units, nav, balance_units, tx_hash, status)
				VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, 'active')`,
					m.FolioID, m.Date, string(m.Type), m.Description, m.Amount, m.Units, m.NAV, m.BalanceUnits, m.Hash)
			}
			if err != nil {
				return res, err
			}
			res.Activated++
		} else {
			if exists {
				_, err = tx.ExecContext(ctx, `
				UPDATE transactions SET status = 'discarded', conflict_group_id = ?
				WHERE tx_hash = ?`, groupID, m.Hash)
			} else {
				_, err = tx.ExecContext(ctx, `
				INSERT INTO transactions(folio_id, tx_date, tx_type, description, amount, units, nav, balance_units, tx_hash, status, conflict_group_id)
				VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, 'discarded', ?)`,
					m.FolioID, m.Date, string(m.Type), m.Description, m.Amount, m.Units, m.NAV, m.BalanceUnits, m.Hash, groupID)
			}
			if err != nil {
				return res, err
			}
			res.Discarded++
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pending_conflicts WHERE conflict_group_id = ?`, groupID); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

// SumPendingUnits returns the pending conflict unit sum and member count
// for a folio, used by the unit-consistency validator.
func (r *ConflictRepo) SumPendingUnits(ctx context.Context, folioID int64) (units float64, count int, err error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT COALESCE(SUM(units), 0), COUNT(*) FROM pending_conflicts
	WHERE folio_id = ?`, folioID)
	err = row.Scan(&units, &count)
	return
}

func groupMembersInTx(ctx context.Context, tx *sql.Tx, groupID string) ([]PendingConflict, error) {
	rows, err := tx.QueryContext(ctx, `
	SELECT id, conflict_group_id, folio_id, tx_date, tx_type, description,
	       amount, units, nav, balance_units, tx_hash, created_at
	FROM pending_conflicts WHERE conflict_group_id = ?`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PendingConflict
	for rows.Next() {
		var p PendingConflict
		if err := rows.Scan(&p.ID, &p.ConflictGroupID, &p.FolioID, &p.Date, &p.Type,
			&p.Description, &p.Amount, &p.Units, &p.NAV, &p.BalanceUnits, &p.Hash, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
