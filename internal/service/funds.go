package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/arghaM/famfolioz/internal/config"
	"github.com/arghaM/famfolioz/internal/database/repository"
)

// TaxType buckets a fund for capital-gains purposes.
type TaxType string

const (
	TaxTypeEquity TaxType = "equity"
	TaxTypeDebt   TaxType = "debt"
)

// FundService answers classification and similarity questions about funds
// and validates folio unit consistency.
type FundService struct {
	cfg      config.Config
	funds    *repository.FundRepo
	txs      *repository.TransactionRepo
	holdings *repository.HoldingRepo
	pending  *repository.ConflictRepo
	log      *slog.Logger
}

func NewFundService(cfg config.Config, funds *repository.FundRepo, txs *repository.TransactionRepo,
	holdings *repository.HoldingRepo, pending *repository.ConflictRepo, log *slog.Logger) *FundService {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &FundService{cfg: cfg, funds: funds, txs: txs, holdings: holdings, pending: pending, log: log}
}

// TaxTypeFor classifies a fund as equity or debt. Equity means the fund is
// categorized as equity, or is a hybrid holding at least the equity
// threshold. Unknown funds default to equity, the conservative assumption
// for Indian capital-gains treatment.
func (s *FundService) TaxTypeFor(ctx context.Context, isin string) TaxType {
	if isin == "" {
		return TaxTypeEquity
	}
	f, err := s.funds.Get(ctx, isin)
	if err != nil || f == nil {
		return TaxTypeEquity
	}
	switch f.Category {
	case "equity":
		return TaxTypeEquity
	case "hybrid":
		if f.EquityPct >= s.cfg.Tax.EquityHybridPct {
			return TaxTypeEquity
		}
		return TaxTypeDebt
	case "debt", "gold_commodity":
		return TaxTypeDebt
	}
	if f.EquityPct >= s.cfg.Tax.EquityHybridPct {
		return TaxTypeEquity
	}
	return TaxTypeDebt
}

// SimilarFund is a replacement candidate for a harvested fund.
type SimilarFund struct {
	ISIN       string
	SchemeName string
	Category   string
	Distance   int
}

// SimilarFunds suggests funds in the same category ranked by scheme-name
// edit distance. Used when reporting harvesting opportunities so the seller
// can redeploy without changing allocation.
func (s *FundService) SimilarFunds(ctx context.Context, isin string, limit int) ([]SimilarFund, error) {
	src, err := s.funds.Get(ctx, isin)
	if err != nil {
		return nil, fmt.Errorf("similar funds for %s: %w", isin, err)
	}
	if src == nil || src.Category == "" {
		return nil, nil
	}
	all, err := s.funds.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("similar funds for %s: %w", isin, err)
	}

	srcName := normalizeSchemeName(src.SchemeName)
	var out []SimilarFund
	for _, f := range all {
		if f.ISIN == isin || f.Category != src.Category {
			continue
		}
		out = append(out, SimilarFund{
			ISIN:       f.ISIN,
			SchemeName: f.SchemeName,
			Category:   f.Category,
			Distance:   levenshtein.ComputeDistance(srcName, normalizeSchemeName(f.SchemeName)),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].SchemeName < out[j].SchemeName
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func normalizeSchemeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// UnitIssue classifies why a folio's ledger disagrees with its holding.
type UnitIssue string

const (
	// IssuePendingConflicts means accepting every pending transaction
	// would close the gap exactly.
	IssuePendingConflicts UnitIssue = "pending_conflicts"
	// IssuePartialConflict means pending transactions explain only part
	// of the gap.
	IssuePartialConflict UnitIssue = "partial_conflict"
	// IssueMissingTransactions means the holding exceeds the ledger.
	IssueMissingTransactions UnitIssue = "missing_transactions"
	// IssueExtraTransactions means the ledger exceeds the holding.
	IssueExtraTransactions UnitIssue = "extra_transactions"
)

// UnitValidation compares a folio's active ledger sum against its holding.
type UnitValidation struct {
	FolioID         int64
	Valid           bool
	ExpectedUnits   float64
	CalculatedUnits float64
	Difference      float64
	PendingUnits    float64
	PendingTxCount  int
	Issue           UnitIssue
}

// ValidateFolioUnits checks whether the active transaction units for a
// folio sum to its holding units within tolerance, and if not, whether the
// pending conflict pool accounts for the gap.
func (s *FundService) ValidateFolioUnits(ctx context.Context, folioID int64) (UnitValidation, error) {
	v := UnitValidation{FolioID: folioID, Valid: true}

	h, err := s.holdings.Get(ctx, folioID)
	if err != nil {
		return v, fmt.Errorf("validate folio %d: %w", folioID, err)
	}
	if h == nil {
		return v, nil
	}
	v.ExpectedUnits = h.Units

	v.CalculatedUnits, _, err = s.txs.SumActiveUnits(ctx, folioID)
	if err != nil {
		return v, fmt.Errorf("validate folio %d: %w", folioID, err)
	}
	v.PendingUnits, v.PendingTxCount, err = s.pending.SumPendingUnits(ctx, folioID)
	if err != nil {
		return v, fmt.Errorf("validate folio %d: %w", folioID, err)
	}

	tolerance := s.cfg.Validation.UnitsTolerance
	v.Difference = v.ExpectedUnits - v.CalculatedUnits
	withPending := v.ExpectedUnits - (v.CalculatedUnits + v.PendingUnits)

	if math.Abs(v.Difference) <= tolerance {
		return v, nil
	}
	v.Valid = false
	switch {
	case v.PendingTxCount > 0 && math.Abs(withPending) <= tolerance:
		v.Issue = IssuePendingConflicts
	case v.PendingTxCount > 0:
		v.Issue = IssuePartialConflict
	case v.Difference > 0:
		v.Issue = IssueMissingTransactions
	default:
		v.Issue = IssueExtraTransactions
	}
	return v, nil
}
