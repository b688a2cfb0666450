package repository

import (
	"context"
	"database/sql"
)

// FolioRepo handles folios.
type FolioRepo struct {
	db *sql.DB
}

func NewFolioRepo(db *sql.DB) *FolioRepo { return &FolioRepo{db: db} }

func (r *FolioRepo) GetByNumberAndISIN(ctx context.Context, folioNumber, isin string) (*Folio, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, folio_number, isin, scheme_name, amc, investor_id, created_at
	FROM folios WHERE folio_number = ? AND isin = ?`, folioNumber, isin)
	return scanFolio(row)
}

func (r *FolioRepo) Get(ctx context.Context, id int64) (*Folio, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, folio_number, isin, scheme_name, amc, investor_id, created_at
	FROM folios WHERE id = ?`, id)
	return scanFolio(row)
}

// Create inserts a folio and returns its id.
func (r *FolioRepo) Create(ctx context.Context, f Folio) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO folios(folio_number, isin, scheme_name, amc, investor_id)
	VALUES(?, ?, ?, ?, ?)`,
		f.FolioNumber, f.ISIN, f.SchemeName, f.AMC, f.InvestorID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *FolioRepo) List(ctx context.Context) ([]Folio, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, folio_number, isin, scheme_name, amc, investor_id, created_at
	FROM folios ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Folio
	for rows.Next() {
		f, err := scanFolio(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func scanFolio(row scanner) (*Folio, error) {
	var f Folio
	var investor sql.NullString
	if err := row.Scan(&f.ID, &f.FolioNumber, &f.ISIN, &f.SchemeName, &f.AMC, &investor, &f.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if investor.Valid {
		f.InvestorID = &investor.String
	}
	return &f, nil
}
