package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/arghaM/famfolioz/internal/config"
	"github.com/arghaM/famfolioz/internal/database/repository"
	"github.com/arghaM/famfolioz/internal/statement"
)

// ImportSummary reports what one statement import did.
type ImportSummary struct {
	BatchID                string
	SourceFile             string
	NewFolios              []string
	ExistingFolios         []string
	NewTransactions        int
	DuplicateTransactions  int
	SkippedDiscarded       int
	PendingTransactions    int
	ConflictTransactions   int
	ReversedTransactions   int
	RepairedTransactions   int
	ReversalsDetected      int
	BalanceValidatedFolios int
	AutoResolvedConflicts  int
	HoldingsReconciled     int
	Warnings               []string
}

// Importer drives a statement through repair, staging, persistence, conflict
// auto-resolution and holdings reconciliation.
type Importer struct {
	cfg       config.Config
	folios    *repository.FolioRepo
	holdings  *repository.HoldingRepo
	txs       *repository.TransactionRepo
	funds     *repository.FundRepo
	conflicts *repository.ConflictRepo
	fundSvc   *FundService
	repairer  *Repairer
	stager    *Stager
	log       *slog.Logger
}

func NewImporter(cfg config.Config, folios *repository.FolioRepo, holdings *repository.HoldingRepo,
	txs *repository.TransactionRepo, funds *repository.FundRepo, conflicts *repository.ConflictRepo,
	fundSvc *FundService, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Importer{
		cfg:       cfg,
		folios:    folios,
		holdings:  holdings,
		txs:       txs,
		funds:     funds,
		conflicts: conflicts,
		fundSvc:   fundSvc,
		repairer:  NewRepairer(cfg.Validation, log),
		stager:    NewStager(cfg.Validation, log),
		log:       log,
	}
}

// Import runs one statement through the full pipeline. Importing the same
// statement twice is a no-op: every record lands as a duplicate.
func (im *Importer) Import(ctx context.Context, st statement.Statement) (ImportSummary, error) {
	summary := ImportSummary{
		BatchID:    uuid.NewString()[:8],
		SourceFile: st.SourceFile,
	}

	if err := st.Validate(); err != nil {
		return summary, fmt.Errorf("import: %w", err)
	}

	folioCache := make(map[string]int64)
	if err := im.importHoldings(ctx, st, folioCache, &summary); err != nil {
		return summary, err
	}

	repair := im.repairer.Repair(st.Transactions)
	summary.RepairedTransactions = repair.Repaired
	summary.Warnings = append(summary.Warnings, repair.Warnings...)

	staging := im.stager.Analyze(st.Transactions, st.Holdings)
	summary.ReversalsDetected = staging.ReversalMembers
	summary.BalanceValidatedFolios = staging.ValidatedFolios

	seq := SequenceNumbers(st.Transactions)

	for idx := range st.Transactions {
		rec := &st.Transactions[idx]
		if rec.Folio == "" {
			continue
		}

		folioID, err := im.folioFor(ctx, rec.Folio, rec.ISIN, rec.SchemeName, rec.AMC, folioCache, &summary)
		if err != nil {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("persist record %s/%s: %v", rec.Folio, rec.DateKey(), err))
			im.log.Error("persist record failed",
				"folio", rec.Folio, "date", rec.DateKey(), "error", err)
			continue
		}

		amount, units, nav := im.guardValues(rec.Amount, rec.Units, rec.NAV, rec)

		analysis := staging.Groups[rec.Key()]
		status := statement.StatusActive
		detect := !analysis.BalanceValidated
		if analysis.ReversalIndices[idx] {
			status = statement.StatusReversed
			detect = false
		} else if math.Abs(units) < lotEpsilon && IsReversalDescription(rec.Description) {
			// Zero-unit rejection notice, kept for the audit trail only.
			status = statement.StatusReversed
			detect = false
		}

		hash := TxHash(rec.Folio, rec.DateKey(), rec.Type, units, rec.Balance, seq[idx])
		_, result, err := im.txs.Insert(ctx, repository.InsertParams{
			FolioID:         folioID,
			Date:            rec.DateKey(),
			Type:            rec.Type,
			Description:     rec.Description,
			Amount:          amount,
			Units:           units,
			NAV:             nav,
			BalanceUnits:    rec.Balance,
			Hash:            hash,
			Status:          status,
			DetectConflicts: detect,
		})
		if err != nil {
			// A persistence failure is hard for this record only; the rest
			// of the batch still imports.
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("persist record %s/%s: %v", rec.Folio, rec.DateKey(), err))
			im.log.Error("persist record failed",
				"folio", rec.Folio, "date", rec.DateKey(), "error", err)
			continue
		}

		switch result {
		case repository.StatusInserted:
			summary.NewTransactions++
		case repository.StatusDuplicate:
			summary.DuplicateTransactions++
		case repository.StatusDiscarded:
			summary.SkippedDiscarded++
		case repository.StatusPending:
			summary.PendingTransactions++
		case repository.StatusConflict:
			summary.ConflictTransactions++
		case repository.StatusReversed:
			summary.ReversedTransactions++
		}
	}

	if err := im.autoResolveConflicts(ctx, &summary); err != nil {
		return summary, err
	}
	if err := im.reconcileHoldings(ctx, folioCache, &summary); err != nil {
		return summary, err
	}

	im.log.Info("import complete",
		"batch", summary.BatchID,
		"source", summary.SourceFile,
		"new", summary.NewTransactions,
		"duplicate", summary.DuplicateTransactions,
		"conflict", summary.ConflictTransactions,
		"reversed", summary.ReversedTransactions,
		"repaired", summary.RepairedTransactions,
		"auto_resolved", summary.AutoResolvedConflicts,
		"holdings_reconciled", summary.HoldingsReconciled)

	return summary, nil
}

// importHoldings upserts the statement's holdings section, creating folios
// and fund master rows as needed.
func (im *Importer) importHoldings(ctx context.Context, st statement.Statement, cache map[string]int64, summary *ImportSummary) error {
	for _, h := range st.Holdings {
		if h.Folio == "" {
			continue
		}
		folioID, err := im.folioFor(ctx, h.Folio, h.ISIN, h.SchemeName, h.AMC, cache, summary)
		if err != nil {
			return err
		}
		if h.ISIN != "" {
			if err := im.funds.Upsert(ctx, h.ISIN, h.SchemeName, h.AMC); err != nil {
				return fmt.Errorf("upsert fund %s: %w", h.ISIN, err)
			}
		}
		if err := im.holdings.Upsert(ctx, repository.Holding{
			FolioID:      folioID,
			Units:        h.Units,
			NAV:          h.NAV,
			NAVDate:      h.NAVDate.Format("2006-01-02"),
			CurrentValue: h.CurrentValue,
		}); err != nil {
			return fmt.Errorf("upsert holding for folio %s: %w", h.Folio, err)
		}
	}
	return nil
}

func (im *Importer) folioFor(ctx context.Context, folioNumber, isin, schemeName, amc string, cache map[string]int64, summary *ImportSummary) (int64, error) {
	key := folioNumber + "|" + isin
	if id, ok := cache[key]; ok {
		return id, nil
	}
	existing, err := im.folios.GetByNumberAndISIN(ctx, folioNumber, isin)
	if err != nil {
		return 0, fmt.Errorf("lookup folio %s: %w", folioNumber, err)
	}
	if existing != nil {
		cache[key] = existing.ID
		summary.ExistingFolios = append(summary.ExistingFolios, folioNumber)
		return existing.ID, nil
	}
	id, err := im.folios.Create(ctx, repository.Folio{
		FolioNumber: folioNumber,
		ISIN:        isin,
		SchemeName:  schemeName,
		AMC:         amc,
	})
	if err != nil {
		return 0, fmt.Errorf("create folio %s: %w", folioNumber, err)
	}
	cache[key] = id
	summary.NewFolios = append(summary.NewFolios, folioNumber)
	return id, nil
}

// guardValues is the last line of defense before persistence: recompute an
// out-of-range NAV from amount/units, and fix gross magnitude errors where
// amount and units*nav disagree by orders of magnitude.
func (im *Importer) guardValues(amount, units, nav float64, rec *statement.RawRecord) (float64, float64, float64) {
	vc := im.cfg.Validation
	absUnits := math.Abs(units)
	absAmount := math.Abs(amount)

	if nav <= 0 || nav > vc.NAVMax {
		if absAmount > 0 && absUnits > 0 {
			recomputed := absAmount / absUnits
			if recomputed >= vc.NAVMin && recomputed <= vc.NAVMax {
				im.log.Warn("recomputed out-of-range nav",
					"folio", rec.Folio, "date", rec.DateKey(),
					"nav", fmt.Sprintf("%.4f->%.4f", nav, recomputed))
				nav = recomputed
			}
		}
	}

	if nav > 0 && absUnits > 0 {
		expected := absUnits * nav
		if expected > 0 {
			ratio := absAmount / expected
			if ratio >= 100 {
				corrected := expected
				if amount < 0 {
					corrected = -corrected
				}
				im.log.Warn("corrected implausible amount",
					"folio", rec.Folio, "date", rec.DateKey(),
					"amount", fmt.Sprintf("%.2f->%.2f", amount, corrected), "ratio", ratio)
				amount = corrected
			} else if ratio <= 0.01 {
				corrected := absAmount / nav
				if units < 0 {
					corrected = -corrected
				}
				im.log.Warn("corrected implausible units",
					"folio", rec.Folio, "date", rec.DateKey(),
					"units", fmt.Sprintf("%.4f->%.4f", units, corrected), "ratio", ratio)
				units = corrected
			}
		}
	}
	return amount, units, nav
}

// autoResolveConflicts accepts every pending transaction of a conflict
// group when doing so closes the folio's unit gap exactly.
func (im *Importer) autoResolveConflicts(ctx context.Context, summary *ImportSummary) error {
	groups, err := im.conflicts.PendingGroups(ctx)
	if err != nil {
		return fmt.Errorf("auto-resolve: %w", err)
	}
	for _, group := range groups {
		members, err := im.conflicts.GroupTransactions(ctx, group.GroupID)
		if err != nil {
			return fmt.Errorf("auto-resolve group %s: %w", group.GroupID, err)
		}
		if len(members) == 0 {
			continue
		}

		validation, err := im.fundSvc.ValidateFolioUnits(ctx, members[0].FolioID)
		if err != nil {
			return err
		}
		if validation.Issue != IssuePendingConflicts {
			continue
		}

		hashes := make([]string, len(members))
		for i, m := range members {
			hashes[i] = m.Hash
		}
		res, err := im.conflicts.Resolve(ctx, group.GroupID, hashes)
		if err != nil {
			return fmt.Errorf("auto-resolve group %s: %w", group.GroupID, err)
		}
		summary.AutoResolvedConflicts += res.Activated
		// Members parked on collision were counted as conflicts during
		// insertion; reactivated members were already counted as new.
		newcomers := res.Activated - res.Reactivated
		summary.ConflictTransactions -= newcomers
		summary.NewTransactions += newcomers
		im.log.Info("auto-resolved conflict group",
			"group", group.GroupID, "accepted", res.Activated)
	}
	return nil
}

// reconcileHoldings overwrites stale holding snapshots from the latest
// transaction balance. The holdings section of a statement can lag behind
// the transaction list, which carries the authoritative running balance.
func (im *Importer) reconcileHoldings(ctx context.Context, cache map[string]int64, summary *ImportSummary) error {
	seen := make(map[int64]bool)
	for _, folioID := range cache {
		if seen[folioID] {
			continue
		}
		seen[folioID] = true

		holding, err := im.holdings.Get(ctx, folioID)
		if err != nil {
			return fmt.Errorf("reconcile folio %d: %w", folioID, err)
		}
		if holding == nil {
			continue
		}
		balance, ok, err := im.txs.LatestActiveBalance(ctx, folioID)
		if err != nil {
			return fmt.Errorf("reconcile folio %d: %w", folioID, err)
		}
		if !ok {
			continue
		}

		drift := math.Abs(holding.Units-balance) / math.Max(holding.Units, 0.01)
		if drift <= im.cfg.Validation.HoldingsDrift {
			continue
		}

		if err := im.holdings.SetUnits(ctx, folioID, balance, balance*holding.NAV); err != nil {
			return fmt.Errorf("reconcile folio %d: %w", folioID, err)
		}
		summary.HoldingsReconciled++
		im.log.Info("reconciled holding from ledger balance",
			"folio_id", folioID,
			"units", fmt.Sprintf("%.4f->%.4f", holding.Units, balance))
	}
	return nil
}
