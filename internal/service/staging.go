package service

import (
	"log/slog"
	"math"
	"sort"

	"github.com/arghaM/famfolioz/internal/config"
	"github.com/arghaM/famfolioz/internal/statement"
)

// StagingStrategy names how a (folio, isin) group was reconciled against
// the statement's closing balance before insertion.
type StagingStrategy string

const (
	// StrategyClosingBalanceMatch means the ledger total already matches
	// the closing balance and every record can be trusted.
	StrategyClosingBalanceMatch StagingStrategy = "closing_balance_match"
	// StrategyExcessExcluded means a small subset of records was excluded
	// to make the rest match the closing balance.
	StrategyExcessExcluded StagingStrategy = "excess_excluded"
	// StrategyPatternFallback means no closing balance was available and
	// pattern-based reversal detection was used instead.
	StrategyPatternFallback StagingStrategy = "pattern_fallback"
	// StrategyDisputed means a closing balance exists but no exclusion
	// subset reconciles it; the group needs manual review.
	StrategyDisputed StagingStrategy = "disputed"
)

// GroupAnalysis is the staging verdict for one (folio, isin) group.
type GroupAnalysis struct {
	Strategy         StagingStrategy
	BalanceValidated bool
	ClosingBalance   float64
	HasClosing       bool
	LastTxBalance    float64
	// ReversalIndices are global indices into the statement's transaction
	// slice that must be inserted as reversed.
	ReversalIndices map[int]bool
}

// StagingResult aggregates the per-group analyses.
type StagingResult struct {
	Groups          map[statement.GroupKey]GroupAnalysis
	ReversalMembers int
	ValidatedFolios int
}

// Stager decides, per folio group, whether the statement's records can be
// trusted wholesale, trimmed to match the closing balance, or must go
// through conflict detection. The closing balance is the strongest signal
// in a statement: when the ledger replays to it exactly, per-record
// anomaly heuristics are unnecessary and only produce false positives.
type Stager struct {
	cfg      config.ValidationConfig
	log      *slog.Logger
	detector *ReversalDetector
}

func NewStager(cfg config.ValidationConfig, log *slog.Logger) *Stager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Stager{cfg: cfg, log: log, detector: NewReversalDetector(cfg, log)}
}

// Analyze stages every (folio, isin) group in the statement.
func (s *Stager) Analyze(records []statement.RawRecord, holdings []statement.HoldingRecord) StagingResult {
	closing := make(map[statement.GroupKey]float64)
	for _, h := range holdings {
		closing[statement.GroupKey{Folio: h.Folio, ISIN: h.ISIN}] = h.Units
	}

	type member struct {
		global int
		rec    *statement.RawRecord
	}
	groups := make(map[statement.GroupKey][]member)
	var keys []statement.GroupKey
	for i := range records {
		k := records[i].Key()
		if _, seen := groups[k]; !seen {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], member{global: i, rec: &records[i]})
	}

	res := StagingResult{Groups: make(map[statement.GroupKey]GroupAnalysis, len(keys))}

	for _, key := range keys {
		ms := groups[key]
		sort.SliceStable(ms, func(i, j int) bool {
			return ms[i].rec.DateKey() < ms[j].rec.DateKey()
		})

		// Last non-zero running balance; stamp duty and STT rows carry
		// balance 0 and would break the comparison.
		lastBalance := 0.0
		for i := len(ms) - 1; i >= 0; i-- {
			if b := ms[i].rec.Balance; b > 0 {
				lastBalance = b
				break
			}
		}

		a := GroupAnalysis{
			Strategy:        StrategyPatternFallback,
			LastTxBalance:   lastBalance,
			ReversalIndices: make(map[int]bool),
		}

		if cb, ok := closing[key]; ok {
			a.ClosingBalance = cb
			a.HasClosing = true
			excess := lastBalance - cb

			switch {
			case math.Abs(excess) < s.cfg.UnitsTolerance:
				a.Strategy = StrategyClosingBalanceMatch
				a.BalanceValidated = true
			default:
				units := make([]float64, len(ms))
				for i, m := range ms {
					units[i] = m.rec.Units
				}
				if subset := s.findExcessSubset(units, excess); subset != nil {
					a.Strategy = StrategyExcessExcluded
					a.BalanceValidated = true
					for local := range subset {
						a.ReversalIndices[ms[local].global] = true
					}
					s.log.Info("excluded records to match closing balance",
						"folio", key.Folio, "isin", key.ISIN,
						"excess", excess, "excluded", len(subset))
				} else {
					a.Strategy = StrategyDisputed
					s.log.Warn("closing balance irreconcilable, group disputed",
						"folio", key.Folio, "isin", key.ISIN, "excess", excess)
				}
			}
		} else {
			recs := make([]statement.RawRecord, len(ms))
			for i, m := range ms {
				recs[i] = *m.rec
			}
			local, _ := s.detector.Detect(recs)
			for i := range local {
				a.ReversalIndices[ms[i].global] = true
			}
		}

		res.ReversalMembers += len(a.ReversalIndices)
		if a.BalanceValidated {
			res.ValidatedFolios++
		}
		res.Groups[key] = a
	}

	s.log.Info("staging analysis complete",
		"groups", len(keys),
		"balance_validated", res.ValidatedFolios,
		"reversal_members", res.ReversalMembers)

	return res
}

// findExcessSubset searches for the smallest subset of unit values summing
// to excess within tolerance. Sizes 1 and 2 are always tried; sizes 3 and
// above only when the group is small enough to keep the search bounded.
func (s *Stager) findExcessSubset(units []float64, excess float64) map[int]bool {
	tol := s.cfg.UnitsTolerance

	for i, u := range units {
		if math.Abs(u-excess) < tol {
			return map[int]bool{i: true}
		}
	}
	for i := range units {
		for j := i + 1; j < len(units); j++ {
			if math.Abs(units[i]+units[j]-excess) < tol {
				return map[int]bool{i: true, j: true}
			}
		}
	}

	if len(units) > s.cfg.SubsetPoolCap {
		return nil
	}
	for size := 3; size <= s.cfg.SubsetMaxSize; size++ {
		if found := findCombination(units, size, excess, tol); found != nil {
			return found
		}
	}
	return nil
}

// findCombination walks k-combinations in lexicographic order, mirroring
// the order smaller sizes are tried in, and returns the first that sums to
// target within tol.
func findCombination(units []float64, k int, target, tol float64) map[int]bool {
	n := len(units)
	if k > n {
		return nil
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		sum := 0.0
		for _, i := range idx {
			sum += units[i]
		}
		if math.Abs(sum-target) < tol {
			out := make(map[int]bool, k)
			for _, i := range idx {
				out[i] = true
			}
			return out
		}
		// Advance to the next combination.
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return nil
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
