package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arghaM/famfolioz/internal/config"
	"github.com/arghaM/famfolioz/internal/database/repository"
	"github.com/arghaM/famfolioz/internal/statement"
)

// FYDates returns the Indian financial year window (April 1 to March 31)
// containing the given date, as YYYY-MM-DD strings.
func FYDates(today time.Time) (string, string) {
	y := today.Year()
	if today.Month() >= time.April {
		return fmt.Sprintf("%d-04-01", y), fmt.Sprintf("%d-03-31", y+1)
	}
	return fmt.Sprintf("%d-04-01", y-1), fmt.Sprintf("%d-03-31", y)
}

// GainDetail is one realized-gain slice attributed to a financial year.
type GainDetail struct {
	TxID        int64
	FolioID     int64
	FolioNumber string
	SchemeName  string
	SellDate    string
	Description string
	UnitsSold   float64
	BuyDate     string
	BuyNAV      float64
	SellNAV     float64
	Realized    float64
	HoldingDays int
}

// RealizedGains summarizes a financial year's realized capital gains.
type RealizedGains struct {
	FYStart                string
	FYEnd                  string
	EquitySTCG             float64
	EquityLTCG             float64
	DebtGains              float64
	TotalRealized          float64
	LTCGExemptionUsed      float64
	LTCGExemptionRemaining float64
	EquitySTCGDetails      []GainDetail
	EquityLTCGDetails      []GainDetail
	DebtGainsDetails       []GainDetail
}

// UnrealizedLot is an open lot enriched with mark-to-market figures.
type UnrealizedLot struct {
	Lot
	CurrentValue   float64
	UnrealizedGain float64
	HoldingDays    int
	LongTerm       bool
	GainType       string // LTCL or STCL
}

// HarvestOpportunity is one loss lot whose sale produces a positive net
// tax benefit.
type HarvestOpportunity struct {
	FolioID        int64
	FolioNumber    string
	ISIN           string
	SchemeName     string
	AMC            string
	LotDate        string
	LotUnits       float64
	LotCost        float64
	CurrentNAV     float64
	CurrentValue   float64
	UnrealizedLoss float64
	HoldingDays    int
	LongTerm       bool
	GainType       string
	TaxType        TaxType
	TaxRatePct     float64
	TaxSavings     float64
	ExitLoad       float64
	ExitLoadPct    float64
	STT            float64
	StampDuty      float64
	TotalCosts     float64
	NetBenefit     float64
	Urgent         bool
	UrgencyDays    int // days left before the lot turns long-term
	SimilarFunds   []SimilarFund
}

// HarvestReport is the full tax-loss harvesting view.
type HarvestReport struct {
	TotalUnrealizedLoss float64
	TotalTaxSavings     float64
	TotalNetBenefit     float64
	OpportunityCount    int
	UrgentCount         int
	TaxSlabPct          float64
	Opportunities       []HarvestOpportunity
	RealizedGains       RealizedGains
	Warnings            []string
}

// TaxService computes realized and unrealized capital gains and tax-loss
// harvesting opportunities over the persisted ledger.
type TaxService struct {
	cfg      config.TaxConfig
	folios   *repository.FolioRepo
	holdings *repository.HoldingRepo
	txs      *repository.TransactionRepo
	funds    *repository.FundRepo
	fundSvc  *FundService
	engine   *LotEngine
	log      *slog.Logger
}

func NewTaxService(cfg config.Config, folios *repository.FolioRepo, holdings *repository.HoldingRepo,
	txs *repository.TransactionRepo, funds *repository.FundRepo, fundSvc *FundService, log *slog.Logger) *TaxService {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &TaxService{
		cfg:      cfg.Tax,
		folios:   folios,
		holdings: holdings,
		txs:      txs,
		funds:    funds,
		fundSvc:  fundSvc,
		engine:   NewLotEngine(cfg.Validation, log),
		log:      log,
	}
}

// OpenLots replays a folio's active ledger into its surviving FIFO lots.
func (s *TaxService) OpenLots(ctx context.Context, folioID int64) ([]Lot, error) {
	txs, err := s.txs.ListByFolio(ctx, folioID, statement.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("open lots for folio %d: %w", folioID, err)
	}
	lots, _, _ := s.engine.Replay(txs)
	return lots, nil
}

// UnrealizedLots marks a folio's open lots to market at the given NAV.
func (s *TaxService) UnrealizedLots(ctx context.Context, folioID int64, currentNAV float64, asOf time.Time) ([]UnrealizedLot, error) {
	lots, err := s.OpenLots(ctx, folioID)
	if err != nil {
		return nil, err
	}
	today := asOf.Format(time.DateOnly)
	out := make([]UnrealizedLot, 0, len(lots))
	for _, lot := range lots {
		days := daysBetween(lot.Date, today)
		lt := days >= s.cfg.LongTermDays
		cv := lot.Units * currentNAV
		gainType := "STCL"
		if lt {
			gainType = "LTCL"
		}
		out = append(out, UnrealizedLot{
			Lot:            lot,
			CurrentValue:   round2(cv),
			UnrealizedGain: round2(cv - lot.Cost),
			HoldingDays:    days,
			LongTerm:       lt,
			GainType:       gainType,
		})
	}
	return out, nil
}

// RealizedGainsFY replays every folio and buckets realized gains falling in
// the financial year containing asOf.
func (s *TaxService) RealizedGainsFY(ctx context.Context, asOf time.Time) (RealizedGains, error) {
	fyStart, fyEnd := FYDates(asOf)
	rg := RealizedGains{FYStart: fyStart, FYEnd: fyEnd}

	folios, err := s.folios.List(ctx)
	if err != nil {
		return rg, fmt.Errorf("realized gains: %w", err)
	}

	// Aggregate in decimals: the per-slice gains are float products and
	// summing hundreds of them in binary floats shifts paise.
	stcg := decimal.Zero
	ltcg := decimal.Zero
	debt := decimal.Zero

	for _, folio := range folios {
		taxType := s.fundSvc.TaxTypeFor(ctx, folio.ISIN)

		txs, err := s.txs.ListByFolio(ctx, folio.ID, statement.StatusActive)
		if err != nil {
			return rg, fmt.Errorf("realized gains for folio %d: %w", folio.ID, err)
		}
		_, gains, _ := s.engine.Replay(txs)

		for _, g := range gains {
			if g.SellDate < fyStart || g.SellDate > fyEnd {
				continue
			}
			d := GainDetail{
				TxID:        g.TxID,
				FolioID:     folio.ID,
				FolioNumber: folio.FolioNumber,
				SchemeName:  folio.SchemeName,
				SellDate:    g.SellDate,
				Description: g.Description,
				UnitsSold:   round4(g.UnitsSold),
				BuyDate:     g.BuyDate,
				BuyNAV:      round4(g.BuyNAV),
				SellNAV:     round4(g.SellNAV),
				Realized:    round2(g.Realized),
				HoldingDays: g.HoldingDays,
			}
			realized := decimal.NewFromFloat(g.Realized)
			switch {
			case taxType == TaxTypeEquity && g.LongTerm(s.cfg.LongTermDays):
				ltcg = ltcg.Add(realized)
				rg.EquityLTCGDetails = append(rg.EquityLTCGDetails, d)
			case taxType == TaxTypeEquity:
				stcg = stcg.Add(realized)
				rg.EquitySTCGDetails = append(rg.EquitySTCGDetails, d)
			default:
				debt = debt.Add(realized)
				rg.DebtGainsDetails = append(rg.DebtGainsDetails, d)
			}
		}
	}

	exemption := decimal.NewFromFloat(s.cfg.LTCGExemption)
	used := decimal.Max(ltcg, decimal.Zero)
	if used.GreaterThan(exemption) {
		used = exemption
	}

	rg.EquitySTCG = round2dec(stcg)
	rg.EquityLTCG = round2dec(ltcg)
	rg.DebtGains = round2dec(debt)
	rg.TotalRealized = round2dec(stcg.Add(ltcg).Add(debt))
	rg.LTCGExemptionUsed = round2dec(used)
	rg.LTCGExemptionRemaining = round2dec(exemption.Sub(used))
	return rg, nil
}

// Harvest builds the tax-loss harvesting report. slabPct is the investor's
// marginal income-tax slab used for debt losses; zero means the default.
func (s *TaxService) Harvest(ctx context.Context, asOf time.Time, slabPct float64) (HarvestReport, error) {
	if slabPct <= 0 {
		slabPct = s.cfg.DefaultSlabPct
	}
	report := HarvestReport{TaxSlabPct: slabPct}

	folios, err := s.folios.List(ctx)
	if err != nil {
		return report, fmt.Errorf("harvest: %w", err)
	}

	totalLoss := decimal.Zero
	totalSavings := decimal.Zero
	totalBenefit := decimal.Zero

	for _, folio := range folios {
		holding, err := s.holdings.Get(ctx, folio.ID)
		if err != nil {
			return report, fmt.Errorf("harvest folio %d: %w", folio.ID, err)
		}
		if holding == nil {
			continue
		}

		currentNAV := holding.NAV
		exitLoadPct := s.cfg.DefaultExitLoadPct
		if f, err := s.funds.Get(ctx, folio.ISIN); err == nil && f != nil {
			if f.CurrentNAV > 0 {
				currentNAV = f.CurrentNAV
			}
			exitLoadPct = f.ExitLoadPct
		}
		if currentNAV <= 0 {
			continue
		}

		taxType := s.fundSvc.TaxTypeFor(ctx, folio.ISIN)
		lots, err := s.UnrealizedLots(ctx, folio.ID, currentNAV, asOf)
		if err != nil {
			return report, err
		}

		// Lot drift beyond 1% means the ledger and the holding disagree;
		// the opportunity figures below would be suspect.
		lotSum := 0.0
		for _, l := range lots {
			lotSum += l.Units
		}
		if holding.Units > 0 && math.Abs(lotSum-holding.Units)/holding.Units > 0.01 {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"%s: open lots (%.4f units) diverge from holding (%.4f units) by %.1f%%",
				folio.SchemeName, lotSum, holding.Units,
				math.Abs(lotSum-holding.Units)/holding.Units*100))
		}

		for _, lot := range lots {
			if lot.UnrealizedGain >= -0.01 {
				continue
			}
			loss := -lot.UnrealizedGain

			taxRate := slabPct / 100
			if taxType == TaxTypeEquity {
				taxRate = s.cfg.EquitySTCGRate
				if lot.LongTerm {
					taxRate = s.cfg.EquityLTCGRate
				}
			}
			taxSavings := loss * taxRate

			cv := lot.CurrentValue
			exitLoad := 0.0
			if lot.HoldingDays < s.cfg.LongTermDays {
				exitLoad = cv * exitLoadPct / 100
			}
			stt := 0.0
			if taxType == TaxTypeEquity {
				stt = cv * s.cfg.STTRate
			}
			stampDuty := cv * s.cfg.StampDutyRate
			totalCosts := exitLoad + stt + stampDuty

			netBenefit := taxSavings - totalCosts
			if netBenefit <= 0 {
				continue
			}

			urgent := false
			urgencyDays := 0
			if taxType == TaxTypeEquity && !lot.LongTerm && lot.HoldingDays >= s.cfg.UrgencyWindowDays {
				urgent = true
				urgencyDays = s.cfg.LongTermDays - lot.HoldingDays
			}

			similar, err := s.fundSvc.SimilarFunds(ctx, folio.ISIN, 5)
			if err != nil {
				return report, err
			}

			report.Opportunities = append(report.Opportunities, HarvestOpportunity{
				FolioID:        folio.ID,
				FolioNumber:    folio.FolioNumber,
				ISIN:           folio.ISIN,
				SchemeName:     folio.SchemeName,
				AMC:            folio.AMC,
				LotDate:        lot.Date,
				LotUnits:       round4(lot.Units),
				LotCost:        round2(lot.Cost),
				CurrentNAV:     currentNAV,
				CurrentValue:   cv,
				UnrealizedLoss: round2(loss),
				HoldingDays:    lot.HoldingDays,
				LongTerm:       lot.LongTerm,
				GainType:       lot.GainType,
				TaxType:        taxType,
				TaxRatePct:     round2(taxRate * 100),
				TaxSavings:     round2(taxSavings),
				ExitLoad:       round2(exitLoad),
				ExitLoadPct:    exitLoadPct,
				STT:            round2(stt),
				StampDuty:      round2(stampDuty),
				TotalCosts:     round2(totalCosts),
				NetBenefit:     round2(netBenefit),
				Urgent:         urgent,
				UrgencyDays:    urgencyDays,
				SimilarFunds:   similar,
			})

			totalLoss = totalLoss.Add(decimal.NewFromFloat(loss))
			totalSavings = totalSavings.Add(decimal.NewFromFloat(taxSavings))
			totalBenefit = totalBenefit.Add(decimal.NewFromFloat(netBenefit))
		}
	}

	// Urgent lots first, then largest net benefit.
	sort.SliceStable(report.Opportunities, func(i, j int) bool {
		a, b := report.Opportunities[i], report.Opportunities[j]
		if a.Urgent != b.Urgent {
			return a.Urgent
		}
		return a.NetBenefit > b.NetBenefit
	})

	report.TotalUnrealizedLoss = round2dec(totalLoss)
	report.TotalTaxSavings = round2dec(totalSavings)
	report.TotalNetBenefit = round2dec(totalBenefit)
	report.OpportunityCount = len(report.Opportunities)
	for _, o := range report.Opportunities {
		if o.Urgent {
			report.UrgentCount++
		}
	}

	report.RealizedGains, err = s.RealizedGainsFY(ctx, asOf)
	if err != nil {
		return report, err
	}
	return report, nil
}

func round2(x float64) float64 {
	return round2dec(decimal.NewFromFloat(x))
}

func round2dec(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func round4(x float64) float64 {
	f, _ := decimal.NewFromFloat(x).Round(4).Float64()
	return f
}
