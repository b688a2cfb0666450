package service

import (
	"log/slog"
	"math"
	"regexp"

	"github.com/arghaM/famfolioz/internal/config"
	"github.com/arghaM/famfolioz/internal/statement"
)

// reversalDescription matches cancellation language on zero-unit records.
var reversalDescription = regexp.MustCompile(
	`(?i)reversal|reject|payment\s+not\s+received|cancelled|invalid\s+purchase|failed`)

// IsReversalDescription reports whether a record's free-text description
// indicates a rejected or reversed transaction. Only meaningful for records
// carrying zero units.
func IsReversalDescription(desc string) bool {
	return reversalDescription.MatchString(desc)
}

// ReversalPair is a same-day pair of records that cancel each other out and
// should both be kept out of the active ledger.
type ReversalPair struct {
	Original int // index into the records slice
	Reversal int
}

// ReversalDetector finds same-day compensating record pairs within a
// (folio, isin) group. Registrars book a failed purchase as the purchase
// plus an opposite leg on the same date; both legs must be excluded or the
// unit balance drifts.
type ReversalDetector struct {
	cfg config.ValidationConfig
	log *slog.Logger
}

func NewReversalDetector(cfg config.ValidationConfig, log *slog.Logger) *ReversalDetector {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ReversalDetector{cfg: cfg, log: log}
}

// Detect returns the set of record indices that belong to a reversal pair.
// Matching is greedy first-fit in statement order: a cross-type pass pairs
// buys against sells, then a same-type pass pairs records whose units sum
// to zero.
func (d *ReversalDetector) Detect(records []statement.RawRecord) (map[int]bool, []ReversalPair) {
	byDay := make(map[string][]int)
	var days []string
	for i, r := range records {
		if r.Type.IsAdmin() || r.Units == 0 {
			continue
		}
		k := r.Key().Folio + "|" + r.Key().ISIN + "|" + r.DateKey()
		if _, seen := byDay[k]; !seen {
			days = append(days, k)
		}
		byDay[k] = append(byDay[k], i)
	}

	paired := make(map[int]bool)
	var pairs []ReversalPair

	for _, day := range days {
		idx := byDay[day]
		if len(idx) < 2 {
			continue
		}
		d.matchCrossType(records, idx, paired, &pairs)
		d.matchSameType(records, idx, paired, &pairs)
	}
	return paired, pairs
}

// matchCrossType pairs a buy-side record with a sell-side record of the
// same magnitude.
func (d *ReversalDetector) matchCrossType(records []statement.RawRecord, idx []int, paired map[int]bool, pairs *[]ReversalPair) {
	for _, i := range idx {
		if paired[i] || !records[i].Type.IsBuy() {
			continue
		}
		for _, j := range idx {
			if paired[j] || !records[j].Type.IsSell() {
				continue
			}
			if !d.compensatingCross(records[i], records[j]) {
				continue
			}
			d.record(records, i, j, paired, pairs)
			break
		}
	}
}

// matchSameType pairs two records of the same type whose signed units
// cancel, e.g. a purchase booked twice with opposite signs.
func (d *ReversalDetector) matchSameType(records []statement.RawRecord, idx []int, paired map[int]bool, pairs *[]ReversalPair) {
	for a, i := range idx {
		if paired[i] {
			continue
		}
		for _, j := range idx[a+1:] {
			if paired[j] || records[i].Type != records[j].Type {
				continue
			}
			if !d.compensatingSigned(records[i], records[j]) {
				continue
			}
			d.record(records, i, j, paired, pairs)
			break
		}
	}
}

// compensatingCross reports whether a buy and a sell cancel: unit magnitudes
// agree and amounts agree. Registrars differ on whether a redemption carries
// negative units, so the cross-type comparison ignores sign.
func (d *ReversalDetector) compensatingCross(a, b statement.RawRecord) bool {
	if math.Abs(math.Abs(a.Units)-math.Abs(b.Units)) >= d.cfg.UnitsTolerance {
		return false
	}
	return d.amountsAgree(a, b)
}

// compensatingSigned reports whether two same-type records cancel: signed
// units sum to ~zero and amounts agree.
func (d *ReversalDetector) compensatingSigned(a, b statement.RawRecord) bool {
	if math.Abs(a.Units+b.Units) >= d.cfg.UnitsTolerance {
		return false
	}
	return d.amountsAgree(a, b)
}

// amountsAgree allows 1 rupee of absolute slack or 1 percent relative.
func (d *ReversalDetector) amountsAgree(a, b statement.RawRecord) bool {
	amtA, amtB := math.Abs(a.Amount), math.Abs(b.Amount)
	if math.Abs(amtA-amtB) < 1 {
		return true
	}
	larger := math.Max(amtA, amtB)
	return larger > 0 && math.Abs(amtA-amtB)/larger < 0.01
}

func (d *ReversalDetector) record(records []statement.RawRecord, i, j int, paired map[int]bool, pairs *[]ReversalPair) {
	paired[i] = true
	paired[j] = true
	orig, rev := i, j
	if records[j].Units > records[i].Units {
		orig, rev = j, i
	}
	*pairs = append(*pairs, ReversalPair{Original: orig, Reversal: rev})
	d.log.Info("detected reversal pair",
		"folio", records[i].Folio, "isin", records[i].ISIN,
		"date", records[i].DateKey(),
		"units", records[orig].Units, "type", records[orig].Type)
}
