package repository

import (
	"time"

	"github.com/arghaM/famfolioz/internal/statement"
)

// Folio represents a folio row: one (folio_number, isin) account.
type Folio struct {
	ID          int64
	FolioNumber string
	ISIN        string
	SchemeName  string
	AMC         string
	InvestorID  *string
	CreatedAt   time.Time
}

// Holding represents the current holding snapshot for a folio.
type Holding struct {
	FolioID      int64
	Units        float64
	NAV          float64
	NAVDate      string
	CurrentValue float64
	UpdatedAt    time.Time
}

// Transaction represents a persisted ledger row. Rows are never deleted;
// status transitions encode the lifecycle.
type Transaction struct {
	ID              int64
	FolioID         int64
	Date            string // YYYY-MM-DD, sorts lexicographically
	Type            statement.TxType
	Description     string
	Amount          float64
	Units           float64
	NAV             float64
	BalanceUnits    float64
	Hash            string
	Status          statement.TxStatus
	ConflictGroupID *string
	CreatedAt       time.Time
}

// PendingConflict is one candidate transaction held in a conflict group.
type PendingConflict struct {
	ID              int64
	ConflictGroupID string
	FolioID         int64
	Date            string
	Type            statement.TxType
	Description     string
	Amount          float64
	Units           float64
	NAV             float64
	BalanceUnits    float64
	Hash            string
	CreatedAt       time.Time
}

// ConflictGroupSummary describes one pending conflict group.
type ConflictGroupSummary struct {
	GroupID     string
	FolioID     int64
	FolioNumber string
	SchemeName  string
	Date        string
	TxCount     int
}

// Fund represents a fund_master row: scheme metadata used for tax
// classification and similar-fund suggestions.
type Fund struct {
	ISIN        string
	SchemeName  string
	AMC         string
	Category    string // equity, debt, hybrid, gold_commodity or ''
	EquityPct   float64
	ExitLoadPct float64
	CurrentNAV  float64
	UpdatedAt   time.Time
}
