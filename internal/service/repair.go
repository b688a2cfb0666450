package service

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/arghaM/famfolioz/internal/config"
	"github.com/arghaM/famfolioz/internal/statement"
)

// Repairer runs the two-phase numeric repair over extracted records.
//
// Phase 1 checks each record's |amount| against |units|*nav and, on failure,
// searches for the raw-value assignment that restores the identity: the
// extractor sometimes places a value in the wrong statement column, and
// correcting the assignment is cheaper and more reliable than re-extracting.
//
// Phase 2 checks balance[i] = balance[i-1] + units[i] across each
// (folio, isin) group and repairs isolated suspects from the surrounding
// anchors.
type Repairer struct {
	cfg config.ValidationConfig
	log *slog.Logger
}

func NewRepairer(cfg config.ValidationConfig, log *slog.Logger) *Repairer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Repairer{cfg: cfg, log: log}
}

// RepairResult reports what the repair pass did.
type RepairResult struct {
	Repaired int
	Warnings []string
}

// Repair runs both phases, mutating records in place. Unrepairable records
// are kept unmodified and surfaced as warnings, never dropped.
func (v *Repairer) Repair(records []statement.RawRecord) RepairResult {
	var res RepairResult
	v.repairCrossFields(records, &res)
	v.repairBalanceContinuity(records, &res)
	return res
}

// repairCrossFields is phase 1: per-record amount vs units*nav.
func (v *Repairer) repairCrossFields(records []statement.RawRecord, res *RepairResult) {
	for i := range records {
		r := &records[i]
		if r.Type.IsAdmin() {
			continue
		}
		if r.NAV == 0 || r.Units == 0 {
			continue
		}

		expected := math.Abs(r.Units) * r.NAV
		actual := math.Abs(r.Amount)
		if expected > 0 && actual > 0 {
			ratio := actual / expected
			if ratio >= 1-v.cfg.AmountResidual && ratio <= 1+v.cfg.AmountResidual {
				continue
			}
		}

		fit, residual := v.bestAssignment([4]float64{
			math.Abs(r.Amount), math.Abs(r.Units), r.NAV, r.Balance,
		})
		if fit == nil || residual >= v.cfg.AmountResidual {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"cross-field check failed for %s/%s on %s: amount=%.2f units=%.4f nav=%.4f, no consistent assignment",
				r.Folio, r.ISIN, r.DateKey(), r.Amount, r.Units, r.NAV))
			continue
		}

		amount, units := fit.amount, fit.units
		// Keep the original signs: repair reassigns magnitudes only.
		if r.Amount < 0 || r.Units < 0 {
			amount = -amount
		}
		if r.Units < 0 {
			units = -units
		}

		v.log.Warn("repaired cross-field assignment",
			"folio", r.Folio, "isin", r.ISIN, "date", r.DateKey(),
			"amount", fmt.Sprintf("%.2f->%.2f", r.Amount, amount),
			"units", fmt.Sprintf("%.4f->%.4f", r.Units, units),
			"nav", fmt.Sprintf("%.4f->%.4f", r.NAV, fit.nav),
			"residual", residual)

		r.Amount = amount
		r.Units = units
		r.NAV = fit.nav
		r.Balance = fit.balance
		res.Repaired++
	}
}

type assignment struct {
	amount, units, nav, balance float64
}

// bestAssignment tries every mapping of the four raw magnitudes onto the
// four roles and returns the one minimizing the relative residual of
// amount = units * nav. Assignments with NAV outside the plausible range or
// zero units are excluded.
func (v *Repairer) bestAssignment(raw [4]float64) (*assignment, float64) {
	var best *assignment
	bestErr := math.Inf(1)

	for iAmt := 0; iAmt < 4; iAmt++ {
		for iUnits := 0; iUnits < 4; iUnits++ {
			if iUnits == iAmt {
				continue
			}
			for iNAV := 0; iNAV < 4; iNAV++ {
				if iNAV == iAmt || iNAV == iUnits {
					continue
				}
				nav := raw[iNAV]
				if nav < v.cfg.NAVMin || nav > v.cfg.NAVMax {
					continue
				}
				units := raw[iUnits]
				if units == 0 {
					continue
				}
				expected := units * nav
				if expected == 0 {
					continue
				}
				residual := math.Abs(raw[iAmt]-expected) / expected
				if residual < bestErr {
					bestErr = residual
					iBal := 6 - iAmt - iUnits - iNAV // indices sum to 0+1+2+3
					best = &assignment{
						amount:  raw[iAmt],
						units:   units,
						nav:     nav,
						balance: raw[iBal],
					}
				}
			}
		}
	}
	return best, bestErr
}

// repairBalanceContinuity is phase 2: anchor-based repair of units/balance
// along each (folio, isin) balance track.
func (v *Repairer) repairBalanceContinuity(records []statement.RawRecord, res *RepairResult) {
	groups := make(map[statement.GroupKey][]*statement.RawRecord)
	var keys []statement.GroupKey
	for i := range records {
		r := &records[i]
		if r.Folio == "" || r.ISIN == "" {
			continue
		}
		k := r.Key()
		if _, seen := groups[k]; !seen {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}

	for _, key := range keys {
		v.repairGroup(key, groups[key], res)
	}
}

func (v *Repairer) repairGroup(key statement.GroupKey, group []*statement.RawRecord, res *RepairResult) {
	// Date order, stable: same-day records keep statement order.
	sort.SliceStable(group, func(i, j int) bool {
		return group[i].DateKey() < group[j].DateKey()
	})

	anchor := make([]bool, len(group))

	// Administrative rows carry no unit impact; they are anchors by
	// definition and excluded from the pairwise check.
	var verifiable []int
	for i, r := range group {
		if r.Type.IsAdmin() {
			anchor[i] = true
			continue
		}
		verifiable = append(verifiable, i)
	}

	tol := v.cfg.UnitsTolerance
	var suspects []int
	for vi, gi := range verifiable {
		r := group[gi]

		consistentWithPrev := false
		if vi > 0 {
			prev := group[verifiable[vi-1]]
			consistentWithPrev = math.Abs(prev.Balance+r.Units-r.Balance) < tol
		}
		consistentWithNext := false
		if vi < len(verifiable)-1 {
			next := group[verifiable[vi+1]]
			consistentWithNext = math.Abs(r.Balance+next.Units-next.Balance) < tol
		}

		switch {
		case vi == 0 || vi == len(verifiable)-1:
			anchor[gi] = true
		case consistentWithPrev || consistentWithNext:
			anchor[gi] = true
		default:
			suspects = append(suspects, gi)
			v.log.Info("balance-continuity suspect",
				"folio", key.Folio, "isin", key.ISIN,
				"date", r.DateKey(), "balance", r.Balance, "units", r.Units)
		}
	}

	for _, gi := range suspects {
		r := group[gi]

		prevBalance := 0.0
		for j := gi - 1; j >= 0; j-- {
			if anchor[j] {
				prevBalance = group[j].Balance
				break
			}
		}

		nextAnchor := -1
		for j := gi + 1; j < len(group); j++ {
			if anchor[j] {
				nextAnchor = j
				break
			}
		}
		if nextAnchor == -1 {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"balance suspect without next anchor in %s/%s on %s, left unrepaired",
				key.Folio, key.ISIN, r.DateKey()))
			continue
		}

		adjacentSuspect := false
		for j := gi + 1; j < nextAnchor; j++ {
			if !anchor[j] {
				adjacentSuspect = true
				break
			}
		}
		if adjacentSuspect {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"consecutive balance suspects in %s/%s around %s, left unrepaired",
				key.Folio, key.ISIN, r.DateKey()))
			continue
		}

		intervening := 0.0
		for j := gi + 1; j <= nextAnchor; j++ {
			if group[j].Type.IsAdmin() {
				continue
			}
			intervening += group[j].Units
		}

		correctBalance := group[nextAnchor].Balance - intervening
		correctUnits := correctBalance - prevBalance

		oldUnits, oldBalance := r.Units, r.Balance
		oldAmount, oldNAV := r.Amount, r.NAV
		r.Units = correctUnits
		r.Balance = correctBalance
		v.rederivePriceFields(r, correctUnits, [4]float64{
			math.Abs(oldAmount), math.Abs(oldUnits), oldNAV, oldBalance,
		})

		res.Repaired++
		v.log.Warn("repaired balance continuity",
			"folio", key.Folio, "isin", key.ISIN, "date", r.DateKey(),
			"units", fmt.Sprintf("%.4f->%.4f", oldUnits, correctUnits),
			"balance", fmt.Sprintf("%.4f->%.4f", oldBalance, correctBalance))
	}
}

// rederivePriceFields picks a consistent (nav, amount) pair from the
// original raw values after the units were corrected.
func (v *Repairer) rederivePriceFields(r *statement.RawRecord, correctUnits float64, raw [4]float64) {
	if math.Abs(correctUnits) <= 0.001 {
		return
	}
	for _, nav := range raw {
		if nav < v.cfg.NAVMin || nav > v.cfg.NAVMax {
			continue
		}
		expected := math.Abs(correctUnits) * nav
		if expected <= 0 {
			continue
		}
		for _, amt := range raw {
			if amt == nav {
				continue
			}
			if math.Abs(expected-amt)/expected < v.cfg.AmountResidual {
				r.NAV = nav
				if r.Amount < 0 {
					r.Amount = -amt
				} else {
					r.Amount = amt
				}
				return
			}
		}
	}
}
