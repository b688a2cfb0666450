package repository

import (
	"context"
	"database/sql"
)

// HoldingRepo handles holding snapshots.
type HoldingRepo struct {
	db *sql.DB
}

func NewHoldingRepo(db *sql.DB) *HoldingRepo { return &HoldingRepo{db: db} }

// Upsert replaces the holding snapshot for a folio.
func (r *HoldingRepo) Upsert(ctx context.Context, h Holding) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO holdings(folio_id, units, nav, nav_date, current_value, updated_at)
	VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(folio_id) DO UPDATE SET
	 units = excluded.units, nav = excluded.nav, nav_date = excluded.nav_date,
	 current_value = excluded.current_value, updated_at = CURRENT_TIMESTAMP`,
		h.FolioID, h.Units, h.NAV, h.NAVDate, h.CurrentValue)
	return err
}

func (r *HoldingRepo) Get(ctx context.Context, folioID int64) (*Holding, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT folio_id, units, nav, nav_date, current_value, updated_at
	FROM holdings WHERE folio_id = ?`, folioID)
	var h Holding
	if err := row.Scan(&h.FolioID, &h.Units, &h.NAV, &h.NAVDate, &h.CurrentValue, &h.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}

// SetUnits overwrites the snapshot units and value, used when the ledger's
// final balance is trusted over the statement's holdings section.
func (r *HoldingRepo) SetUnits(ctx context.Context, folioID int64, units, currentValue float64) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE holdings SET units = ?, current_value = ?, updated_at = CURRENT_TIMESTAMP
	WHERE folio_id = ?`, units, currentValue, folioID)
	return err
}
