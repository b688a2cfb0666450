package repository

import (
	"context"
	"database/sql"
)

// FundRepo handles the fund_master table.
type FundRepo struct {
	db *sql.DB
}

func NewFundRepo(db *sql.DB) *FundRepo { return &FundRepo{db: db} }

// Upsert records scheme metadata seen on import. Names and AMC are refreshed;
// classification fields set elsewhere are preserved.
func (r *FundRepo) Upsert(ctx context.Context, isin, schemeName, amc string) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO fund_master(isin, scheme_name, amc)
	VALUES(?, ?, ?)
	ON CONFLICT(isin) DO UPDATE SET
	 scheme_name = CASE WHEN excluded.scheme_name != '' THEN excluded.scheme_name ELSE fund_master.scheme_name END,
	 amc = CASE WHEN excluded.amc != '' THEN excluded.amc ELSE fund_master.amc END,
	 updated_at = CURRENT_TIMESTAMP`,
		isin, schemeName, amc)
	return err
}

func (r *FundRepo) Get(ctx context.Context, isin string) (*Fund, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT isin, scheme_name, amc, fund_category, equity_pct, exit_load_pct, current_nav, updated_at
	FROM fund_master WHERE isin = ?`, isin)
	var f Fund
	if err := row.Scan(&f.ISIN, &f.SchemeName, &f.AMC, &f.Category, &f.EquityPct,
		&f.ExitLoadPct, &f.CurrentNAV, &f.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

func (r *FundRepo) List(ctx context.Context) ([]Fund, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT isin, scheme_name, amc, fund_category, equity_pct, exit_load_pct, current_nav, updated_at
	FROM fund_master ORDER BY scheme_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Fund
	for rows.Next() {
		var f Fund
		if err := rows.Scan(&f.ISIN, &f.SchemeName, &f.AMC, &f.Category, &f.EquityPct,
			&f.ExitLoadPct, &f.CurrentNAV, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SetClassification updates category and equity split for a fund.
func (r *FundRepo) SetClassification(ctx context.Context, isin, category string, equityPct float64) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE fund_master SET fund_category = ?, equity_pct = ?, updated_at = CURRENT_TIMESTAMP
	WHERE isin = ?`, category, equityPct, isin)
	return err
}

// SetExitLoad updates the exit load percentage for a fund.
func (r *FundRepo) SetExitLoad(ctx context.Context, isin string, exitLoadPct float64) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE fund_master SET exit_load_pct = ?, updated_at = CURRENT_TIMESTAMP
	WHERE isin = ?`, exitLoadPct, isin)
	return err
}

// SetCurrentNAV updates the latest known NAV for a fund.
func (r *FundRepo) SetCurrentNAV(ctx context.Context, isin string, nav float64) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE fund_master SET current_nav = ?, updated_at = CURRENT_TIMESTAMP
	WHERE isin = ?`, nav, isin)
	return err
}
