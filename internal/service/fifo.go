package service

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/arghaM/famfolioz/internal/config"
	"github.com/arghaM/famfolioz/internal/database/repository"
)

// lotEpsilon is the unit threshold below which a lot is considered empty.
const lotEpsilon = 0.0001

// Lot is an open purchase lot remaining after FIFO replay.
type Lot struct {
	TxID          int64
	Date          string
	Units         float64
	NAV           float64
	Cost          float64
	OriginalUnits float64
}

// CostPerUnit returns the lot's average cost basis per unit.
func (l Lot) CostPerUnit() float64 {
	if l.Units <= 0 {
		return 0
	}
	return l.Cost / l.Units
}

// GainRecord is one realized-gain slice: a sale consuming part or all of a
// single lot.
type GainRecord struct {
	TxID        int64
	FolioID     int64
	SellDate    string
	Description string
	UnitsSold   float64
	BuyDate     string
	BuyNAV      float64 // lot cost per unit at consumption time
	SellNAV     float64
	Realized    float64
	HoldingDays int
}

// LongTerm reports whether the consumed lot was held a year or longer at
// the time of sale.
func (g GainRecord) LongTerm(longTermDays int) bool {
	return g.HoldingDays >= longTermDays
}

// LotEngine replays a folio's active ledger into FIFO purchase lots.
//
// Buy-type records with positive units open lots at cost units*nav. Buy-type
// records with negative units are purchase reversals: they undo lots at
// original cost and never produce realized gains. Sell-type records consume
// from the oldest lot first, each consumption yielding a GainRecord.
type LotEngine struct {
	cfg config.ValidationConfig
	log *slog.Logger
}

func NewLotEngine(cfg config.ValidationConfig, log *slog.Logger) *LotEngine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &LotEngine{cfg: cfg, log: log}
}

// Replay runs the ledger through the engine. Transactions must be in
// tx_date ASC, id ASC order. Returns the surviving lots, the realized gain
// slices from every sale, and human-readable warnings.
func (e *LotEngine) Replay(txs []repository.Transaction) ([]Lot, []GainRecord, []string) {
	var lots []Lot
	var gains []GainRecord
	var warnings []string

	for _, tx := range txs {
		switch {
		case tx.Type.IsAdmin():
			continue

		case tx.Type.IsBuy() && tx.Units > 0:
			lots = append(lots, Lot{
				TxID:          tx.ID,
				Date:          tx.Date,
				Units:         tx.Units,
				NAV:           tx.NAV,
				Cost:          tx.Units * tx.NAV, // bonus units have nav 0, cost 0
				OriginalUnits: tx.Units,
			})

		case tx.Type.IsBuy() && tx.Units < 0:
			if tx.NAV < 0 || tx.NAV > e.cfg.NAVMax {
				e.log.Warn("skipping garbled purchase reversal",
					"folio_id", tx.FolioID, "tx_id", tx.ID,
					"units", tx.Units, "nav", tx.NAV)
				continue
			}
			if rem := e.reverseFromLots(&lots, -tx.Units, tx.NAV); rem > 0.01 {
				warnings = append(warnings, fmt.Sprintf(
					"purchase reversal tx %d: %.4f units could not be matched to a lot",
					tx.ID, rem))
			}

		case tx.Type.IsSell():
			sold, w := e.consume(&lots, tx)
			gains = append(gains, sold...)
			warnings = append(warnings, w...)
		}
	}
	return lots, gains, warnings
}

// reverseFromLots removes units for a purchase reversal. It prefers the
// newest lot whose NAV matches the reversal NAV within 1 percent, then
// falls back to newest-first consumption. Returns unmatched units.
func (e *LotEngine) reverseFromLots(lots *[]Lot, target, reversalNAV float64) float64 {
	ls := *lots
	for i := len(ls) - 1; i >= 0; i-- {
		lot := &ls[i]
		if lot.NAV <= 0 || reversalNAV <= 0 {
			continue
		}
		if math.Abs(lot.NAV-reversalNAV)/lot.NAV >= 0.01 {
			continue
		}
		consumed := math.Min(lot.Units, target)
		shrinkLot(lot, consumed)
		target -= consumed
		if lot.Units < lotEpsilon {
			ls = append(ls[:i], ls[i+1:]...)
		}
		if target < lotEpsilon {
			*lots = ls
			return 0
		}
	}

	for i := len(ls) - 1; i >= 0 && target >= lotEpsilon; i-- {
		lot := &ls[i]
		consumed := math.Min(lot.Units, target)
		shrinkLot(lot, consumed)
		target -= consumed
		if lot.Units < lotEpsilon {
			ls = append(ls[:i], ls[i+1:]...)
		}
	}
	*lots = ls
	return target
}

// consume applies a sale against the oldest lots, emitting one GainRecord
// per lot slice consumed.
func (e *LotEngine) consume(lots *[]Lot, tx repository.Transaction) ([]GainRecord, []string) {
	var gains []GainRecord
	var warnings []string

	toSell := math.Abs(tx.Units)
	ls := *lots
	for toSell > lotEpsilon && len(ls) > 0 {
		lot := &ls[0]
		consumed := math.Min(lot.Units, toSell)
		costPerUnit := lot.CostPerUnit()

		gains = append(gains, GainRecord{
			TxID:        tx.ID,
			FolioID:     tx.FolioID,
			SellDate:    tx.Date,
			Description: tx.Description,
			UnitsSold:   consumed,
			BuyDate:     lot.Date,
			BuyNAV:      costPerUnit,
			SellNAV:     tx.NAV,
			Realized:    consumed * (tx.NAV - costPerUnit),
			HoldingDays: daysBetween(lot.Date, tx.Date),
		})

		shrinkLot(lot, consumed)
		toSell -= consumed
		if lot.Units < lotEpsilon {
			ls = ls[1:]
		}
	}
	*lots = ls

	if toSell > 0.01 {
		e.log.Warn("sale over-consumption",
			"folio_id", tx.FolioID, "tx_id", tx.ID, "unmatched_units", toSell)
		warnings = append(warnings, fmt.Sprintf(
			"sale tx %d: %.4f units could not be matched to open lots", tx.ID, toSell))
	}
	return gains, warnings
}

// shrinkLot removes consumed units keeping the per-unit cost constant.
func shrinkLot(lot *Lot, consumed float64) {
	if lot.Units > 0 {
		lot.Cost = lot.Cost * (lot.Units - consumed) / lot.Units
	} else {
		lot.Cost = 0
	}
	lot.Units -= consumed
}

// daysBetween returns whole days between two YYYY-MM-DD dates. Unparseable
// dates yield 0.
func daysBetween(from, to string) int {
	a, errA := time.Parse(time.DateOnly, from)
	b, errB := time.Parse(time.DateOnly, to)
	if errA != nil || errB != nil {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}
