package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/arghaM/famfolioz/internal/statement"
)

// InsertStatus is the outcome of one transaction insert.
type InsertStatus string

const (
	StatusInserted  InsertStatus = "inserted"
	StatusDuplicate InsertStatus = "duplicate"
	StatusDiscarded InsertStatus = "discarded"
	StatusPending   InsertStatus = "pending"
	StatusConflict  InsertStatus = "conflict"
	StatusReversed  InsertStatus = "reversed"
)

// InsertParams carries one candidate transaction into the gateway. Hash and
// Status are decided by the caller; the repo decides dedup and conflicts.
type InsertParams struct {
	FolioID      int64
	Date         string // YYYY-MM-DD
	Type         statement.TxType
	Description  string
	Amount       float64
	Units        float64
	NAV          float64
	BalanceUnits float64
	Hash         string
	// Status is the lifecycle state to persist when no conflict intervenes.
	Status statement.TxStatus
	// DetectConflicts enables same-day purchase conflict grouping. Callers
	// turn it off for balance-validated folio groups.
	DetectConflicts bool
}

// TransactionRepo handles the transaction ledger and its conflict groups.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

// Insert persists one candidate transaction atomically.
//
// Returned status:
//   - inserted:  new row persisted as active
//   - duplicate: identical hash already persisted (non-discarded), skipped
//   - discarded: identical hash was previously discarded by resolution, skipped
//   - pending:   identical hash already waiting in a conflict group
//   - conflict:  same-day active purchase collision, moved to a conflict group
//   - reversed:  persisted with reversed status (audit trail only)
func (r *TransactionRepo) Insert(ctx context.Context, p InsertParams) (int64, InsertStatus, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = tx.Rollback() }()

	id, status, err := insertInTx(ctx, tx, p)
	if err != nil {
		return 0, "", err
	}
	if err := tx.Commit(); err != nil {
		return 0, "", err
	}
	return id, status, nil
}

func insertInTx(ctx context.Context, tx *sql.Tx, p InsertParams) (int64, InsertStatus, error) {
	// Exact transaction already persisted?
	var existingID int64
	var existingStatus string
	err := tx.QueryRowContext(ctx,
		`SELECT id, status FROM transactions WHERE tx_hash = ?`, p.Hash).
		Scan(&existingID, &existingStatus)
	if err != nil && err != sql.ErrNoRows {
		return 0, "", err
	}
	if err == nil {
		if statement.TxStatus(existingStatus) == statement.StatusDiscarded {
			return existingID, StatusDiscarded, nil
		}
		return existingID, StatusDuplicate, nil
	}

	// Already waiting in a conflict group?
	var pendingID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM pending_conflicts WHERE tx_hash = ?`, p.Hash).Scan(&pendingID)
	if err != nil && err != sql.ErrNoRows {
		return 0, "", err
	}
	if err == nil {
		return 0, StatusPending, nil
	}

	// Conflict detection applies only to active purchases.
	if p.DetectConflicts && p.Type == statement.TypePurchase && p.Status == statement.StatusActive {
		conflicted, err := detectPurchaseConflict(ctx, tx, p)
		if err != nil {
			return 0, "", err
		}
		if conflicted {
			return 0, StatusConflict, nil
		}
	}

	res, err := tx.ExecContext(ctx, `
	INSERT INTO transactions(folio_id, tx_date, tx_type, description, amount, units, nav, balance_units, tx_hash, status)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.FolioID, p.Date, string(p.Type), p.Description, p.Amount, p.Units, p.NAV, p.BalanceUnits, p.Hash, string(p.Status))
	if err != nil {
		return 0, "", err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, "", err
	}
	if p.Status == statement.StatusActive {
		return id, StatusInserted, nil
	}
	return id, InsertStatus(p.Status), nil
}

// detectPurchaseConflict moves colliding same-day purchases into a conflict
// group. Returns true when the candidate was parked instead of inserted.
func detectPurchaseConflict(ctx context.Context, tx *sql.Tx, p InsertParams) (bool, error) {
	var activeCount int
	err := tx.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM transactions
	WHERE folio_id = ? AND tx_date = ? AND tx_type = ? AND status = 'active'`,
		p.FolioID, p.Date, string(statement.TypePurchase)).Scan(&activeCount)
	if err != nil {
		return false, err
	}

	var groupID string
	err = tx.QueryRowContext(ctx, `
	SELECT conflict_group_id FROM pending_conflicts
	WHERE folio_id = ? AND tx_date = ? AND tx_type = ? LIMIT 1`,
		p.FolioID, p.Date, string(statement.TypePurchase)).Scan(&groupID)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	hasGroup := err == nil

	if activeCount == 0 && !hasGroup {
		return false, nil
	}

	if !hasGroup {
		groupID = uuid.NewString()

		// Park the existing active purchases alongside the newcomer.
		rows, err := tx.QueryContext(ctx, `
		SELECT id, folio_id, tx_date, tx_type, description, amount, units, nav, balance_units, tx_hash
		FROM transactions
		WHERE folio_id = ? AND tx_date = ? AND tx_type = ? AND status = 'active'`,
			p.FolioID, p.Date, string(statement.TypePurchase))
		if err != nil {
			return false, err
		}
		type parked struct {
			id  int64
			row PendingConflict
		}
		var existing []parked
		for rows.Next() {
			var pk parked
			if err := rows.Scan(&pk.id, &pk.row.FolioID, &pk.row.Date, &pk.row.Type,
				&pk.row.Description, &pk.row.Amount, &pk.row.Units, &pk.row.NAV,
				&pk.row.BalanceUnits, &pk.row.Hash); err != nil {
				rows.Close()
				return false, err
			}
			existing = append(existing, pk)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return false, err
		}

		for _, pk := range existing {
			if _, err := tx.ExecContext(ctx, `
			INSERT INTO pending_conflicts(conflict_group_id, folio_id, tx_date, tx_type, description, amount, units, nav, balance_units, tx_hash)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				groupID, pk.row.FolioID, pk.row.Date, string(pk.row.Type), pk.row.Description,
				pk.row.Amount, pk.row.Units, pk.row.NAV, pk.row.BalanceUnits, pk.row.Hash); err != nil {
				return false, err
			}
			if _, err := tx.ExecContext(ctx, `
			UPDATE transactions SET status = 'pending', conflict_group_id = ? WHERE id = ?`,
				groupID, pk.id); err != nil {
				return false, err
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO pending_conflicts(conflict_group_id, folio_id, tx_date, tx_type, description, amount, units, nav, balance_units, tx_hash)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		groupID, p.FolioID, p.Date, string(p.Type), p.Description,
		p.Amount, p.Units, p.NAV, p.BalanceUnits, p.Hash)
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByHash looks up a transaction by its identity hash.
func (r *TransactionRepo) GetByHash(ctx context.Context, hash string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, selectTx+` WHERE tx_hash = ?`, hash)
	t, err := scanTx(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListByFolio returns transactions for a folio, oldest first, optionally
// filtered to the given statuses.
func (r *TransactionRepo) ListByFolio(ctx context.Context, folioID int64, statuses ...statement.TxStatus) ([]Transaction, error) {
	query := selectTx + ` WHERE folio_id = ?`
	args := []interface{}{folioID}
	if len(statuses) > 0 {
		ph := make([]string, len(statuses))
		for i, s := range statuses {
			ph[i] = "?"
			args = append(args, string(s))
		}
		query += ` AND status IN (` + strings.Join(ph, ",") + `)`
	}
	query += ` ORDER BY tx_date ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SumActiveUnits returns the unit sum of the active ledger for a folio.
func (r *TransactionRepo) SumActiveUnits(ctx context.Context, folioID int64) (units float64, count int, err error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT COALESCE(SUM(units), 0), COUNT(*) FROM transactions
	WHERE folio_id = ? AND status = 'active'`, folioID)
	err = row.Scan(&units, &count)
	return
}

// LatestActiveBalance returns the balance_units of the newest active
// buy/sell transaction with a positive balance, or ok=false when none
// exists. Ordered by tx_date, not id: statements can be imported out of
// order, giving older transactions higher ids.
func (r *TransactionRepo) LatestActiveBalance(ctx context.Context, folioID int64) (balance float64, ok bool, err error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT balance_units FROM transactions
	WHERE folio_id = ? AND status = 'active' AND balance_units > 0
	  AND tx_type IN ('purchase', 'sip', 'switch_in', 'stp_in', 'transfer_in',
	                  'bonus', 'dividend_reinvestment',
	                  'redemption', 'switch_out', 'stp_out', 'transfer_out')
	ORDER BY tx_date DESC, id DESC LIMIT 1`, folioID)
	err = row.Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return balance, true, nil
}

const selectTx = `
	SELECT id, folio_id, tx_date, tx_type, description, amount, units, nav,
	       balance_units, tx_hash, status, conflict_group_id, created_at
	FROM transactions`

// scanner handles both Row and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTx(row scanner) (Transaction, error) {
	var t Transaction
	var group sql.NullString
	if err := row.Scan(&t.ID, &t.FolioID, &t.Date, &t.Type, &t.Description,
		&t.Amount, &t.Units, &t.NAV, &t.BalanceUnits, &t.Hash, &t.Status,
		&group, &t.CreatedAt); err != nil {
		return Transaction{}, err
	}
	if group.Valid {
		t.ConflictGroupID = &group.String
	}
	return t, nil
}
