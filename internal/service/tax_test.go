package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arghaM/famfolioz/internal/config"
	"github.com/arghaM/famfolioz/internal/statement"
)

func (f *fixture) taxService() *TaxService {
	return NewTaxService(config.Default(), f.folios, f.holdings, f.txs, f.funds, f.fundService(), nil)
}

func TestFYDates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		date  string
		start string
		end   string
	}{
		{"2024-04-01", "2024-04-01", "2025-03-31"},
		{"2024-03-31", "2023-04-01", "2024-03-31"},
		{"2026-08-30", "2026-04-01", "2027-03-31"},
		{"2025-01-15", "2024-04-01", "2025-03-31"},
	}
	for _, tc := range cases {
		day, err := time.Parse(time.DateOnly, tc.date)
		require.NoError(t, err)
		start, end := FYDates(day)
		require.Equal(t, tc.start, start, tc.date)
		require.Equal(t, tc.end, end, tc.date)
	}
}

func TestRealizedGainsFY(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := testCtx(t)

	f.addFund(t, ctx, "INF100A01AA1", "HDFC Top 100 Fund", "equity", 98)
	f.addFund(t, ctx, "INF300C01CD4", "Axis Liquid Fund", "debt", 0)

	equity := f.addFolio(t, ctx, "201/1", "INF100A01AA1", "HDFC Top 100 Fund")
	f.addTx(t, ctx, equity, "201/1", "2022-05-01", statement.TypePurchase, 1000, 10, 1000, false)
	f.addTx(t, ctx, equity, "201/1", "2024-01-10", statement.TypePurchase, 500, 20, 1500, false)
	f.addTx(t, ctx, equity, "201/1", "2024-06-10", statement.TypeRedemption, -1200, 30, 300, false)

	debt := f.addFolio(t, ctx, "201/2", "INF300C01CD4", "Axis Liquid Fund")
	f.addTx(t, ctx, debt, "201/2", "2022-01-01", statement.TypePurchase, 50, 100, 50, false)
	f.addTx(t, ctx, debt, "201/2", "2023-06-01", statement.TypeRedemption, -50, 120, 0, false)
	f.addTx(t, ctx, debt, "201/2", "2023-01-01", statement.TypePurchase, 100, 100, 150, false)
	f.addTx(t, ctx, debt, "201/2", "2024-06-01", statement.TypeRedemption, -100, 110, 0, false)

	asOf, _ := time.Parse(time.DateOnly, "2024-07-01")
	rg, err := f.taxService().RealizedGainsFY(ctx, asOf)
	require.NoError(t, err)

	require.Equal(t, "2024-04-01", rg.FYStart)
	require.Equal(t, "2025-03-31", rg.FYEnd)

	// The sale consumes the 2022 lot fully (long-term, 1000 * 20) and 200
	// units of the 2024 lot (short-term, 200 * 10).
	require.InDelta(t, 20000, rg.EquityLTCG, 0.01)
	require.InDelta(t, 2000, rg.EquitySTCG, 0.01)
	require.Len(t, rg.EquityLTCGDetails, 1)
	require.Len(t, rg.EquitySTCGDetails, 1)
	require.Equal(t, "201/1", rg.EquityLTCGDetails[0].FolioNumber)
	require.Equal(t, "2022-05-01", rg.EquityLTCGDetails[0].BuyDate)

	// Only the debt sale inside the financial year counts.
	require.InDelta(t, 1000, rg.DebtGains, 0.01)
	require.Len(t, rg.DebtGainsDetails, 1)
	require.Equal(t, "2024-06-01", rg.DebtGainsDetails[0].SellDate)

	require.InDelta(t, 23000, rg.TotalRealized, 0.01)
	require.InDelta(t, 20000, rg.LTCGExemptionUsed, 0.01)
	require.InDelta(t, 105000, rg.LTCGExemptionRemaining, 0.01)
}

func TestUnrealizedLots(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := testCtx(t)

	folioID := f.addFolio(t, ctx, "202/1", "INF100A01AA1", "HDFC Top 100 Fund")
	f.addTx(t, ctx, folioID, "202/1", "2023-01-01", statement.TypePurchase, 100, 12, 100, false)
	f.addTx(t, ctx, folioID, "202/1", "2024-05-01", statement.TypePurchase, 50, 11, 150, false)

	asOf, _ := time.Parse(time.DateOnly, "2024-06-30")
	lots, err := f.taxService().UnrealizedLots(ctx, folioID, 10, asOf)
	require.NoError(t, err)
	require.Len(t, lots, 2)

	require.Equal(t, 546, lots[0].HoldingDays)
	require.True(t, lots[0].LongTerm)
	require.Equal(t, "LTCL", lots[0].GainType)
	require.InDelta(t, 1000, lots[0].CurrentValue, 0.01)
	require.InDelta(t, -200, lots[0].UnrealizedGain, 0.01)

	require.Equal(t, 60, lots[1].HoldingDays)
	require.False(t, lots[1].LongTerm)
	require.Equal(t, "STCL", lots[1].GainType)
	require.InDelta(t, -50, lots[1].UnrealizedGain, 0.01)
}

func TestHarvest(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := testCtx(t)

	f.addFund(t, ctx, "INF100A01AA1", "HDFC Top 100 Fund", "equity", 98)
	require.NoError(t, f.funds.SetExitLoad(ctx, "INF100A01AA1", 1.0))
	f.addFund(t, ctx, "INF100A01AB2", "HDFC Top 200 Fund", "equity", 97)

	// A short-term loss lot deep in the urgency window.
	loser := f.addFolio(t, ctx, "203/1", "INF100A01AA1", "HDFC Top 100 Fund")
	f.addHolding(t, ctx, loser, 100, 15)
	f.addTx(t, ctx, loser, "203/1", "2023-08-20", statement.TypePurchase, 100, 20, 100, false)

	// A profitable folio contributes no opportunity.
	winner := f.addFolio(t, ctx, "203/2", "INF100A01AB2", "HDFC Top 200 Fund")
	f.addHolding(t, ctx, winner, 100, 15)
	f.addTx(t, ctx, winner, "203/2", "2023-08-20", statement.TypePurchase, 100, 10, 100, false)

	asOf, _ := time.Parse(time.DateOnly, "2024-06-30")
	report, err := f.taxService().Harvest(ctx, asOf, 0)
	require.NoError(t, err)

	require.Equal(t, 30.0, report.TaxSlabPct) // default slab
	require.Equal(t, 1, report.OpportunityCount)
	require.Equal(t, 1, report.UrgentCount)
	require.Empty(t, report.Warnings)

	op := report.Opportunities[0]
	require.Equal(t, "203/1", op.FolioNumber)
	require.Equal(t, TaxTypeEquity, op.TaxType)
	require.Equal(t, "STCL", op.GainType)
	require.InDelta(t, 500, op.UnrealizedLoss, 0.01) // 2000 cost vs 1500 value
	require.InDelta(t, 20, op.TaxRatePct, 0.001)     // short-term equity
	require.InDelta(t, 100, op.TaxSavings, 0.01)     // 500 * 0.20
	require.InDelta(t, 15, op.ExitLoad, 0.01)        // 1% of 1500, inside exit-load window
	require.InDelta(t, 1.5, op.STT, 0.01)            // 0.1% of 1500
	require.InDelta(t, 0.08, op.StampDuty, 0.005)    // 0.005% of 1500
	require.InDelta(t, 16.58, op.TotalCosts, 0.02)
	require.InDelta(t, 83.43, op.NetBenefit, 0.02)

	require.Equal(t, 315, op.HoldingDays)
	require.True(t, op.Urgent)
	require.Equal(t, 50, op.UrgencyDays)

	require.Len(t, op.SimilarFunds, 1)
	require.Equal(t, "INF100A01AB2", op.SimilarFunds[0].ISIN)

	require.Equal(t, "2024-04-01", report.RealizedGains.FYStart)
	require.InDelta(t, 500, report.TotalUnrealizedLoss, 0.01)
	require.InDelta(t, 100, report.TotalTaxSavings, 0.01)
	require.InDelta(t, report.TotalNetBenefit, op.NetBenefit, 0.02)
}
