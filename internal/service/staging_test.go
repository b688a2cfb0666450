package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arghaM/famfolioz/internal/config"
	"github.com/arghaM/famfolioz/internal/statement"
)

func testHolding(units float64) statement.HoldingRecord {
	return statement.HoldingRecord{
		Folio: "123/45", ISIN: "INF109K01VQ1", SchemeName: "Index Fund",
		Units: units, NAV: 95.2,
	}
}

func groupKey() statement.GroupKey {
	return statement.GroupKey{Folio: "123/45", ISIN: "INF109K01VQ1"}
}

func TestStagingClosingBalanceMatch(t *testing.T) {
	t.Parallel()

	records := []statement.RawRecord{
		testRecord(1, statement.TypePurchase, 10000, 100, 100, 100),
		testRecord(10, statement.TypePurchase, 5000, 50, 100, 150),
	}

	res := NewStager(config.Default().Validation, nil).Analyze(records, []statement.HoldingRecord{testHolding(150)})
	a := res.Groups[groupKey()]
	require.Equal(t, StrategyClosingBalanceMatch, a.Strategy)
	require.True(t, a.BalanceValidated)
	require.Empty(t, a.ReversalIndices)
	require.Equal(t, 1, res.ValidatedFolios)
}

func TestStagingExcessExcludedSingle(t *testing.T) {
	t.Parallel()

	// Ledger replays to 250 but the statement closes at 150: a 100-unit
	// purchase must be excluded.
	records := []statement.RawRecord{
		testRecord(1, statement.TypePurchase, 10000, 100, 100, 100),
		testRecord(5, statement.TypePurchase, 10000, 100, 100, 200),
		testRecord(10, statement.TypePurchase, 5000, 50, 100, 250),
	}

	res := NewStager(config.Default().Validation, nil).Analyze(records, []statement.HoldingRecord{testHolding(150)})
	a := res.Groups[groupKey()]
	require.Equal(t, StrategyExcessExcluded, a.Strategy)
	require.True(t, a.BalanceValidated)
	require.Len(t, a.ReversalIndices, 1)
	require.Equal(t, 1, res.ReversalMembers)
}

func TestStagingExcessExcludedPair(t *testing.T) {
	t.Parallel()

	// Excess 70 is only explained by two records together (40 + 30).
	records := []statement.RawRecord{
		testRecord(1, statement.TypePurchase, 10000, 100, 100, 100),
		testRecord(3, statement.TypePurchase, 4000, 40, 100, 140),
		testRecord(5, statement.TypePurchase, 3000, 30, 100, 170),
		testRecord(10, statement.TypePurchase, 5000, 50, 100, 220),
	}

	res := NewStager(config.Default().Validation, nil).Analyze(records, []statement.HoldingRecord{testHolding(150)})
	a := res.Groups[groupKey()]
	require.Equal(t, StrategyExcessExcluded, a.Strategy)
	require.True(t, a.ReversalIndices[1])
	require.True(t, a.ReversalIndices[2])
	require.Len(t, a.ReversalIndices, 2)
}

func TestStagingDisputedWhenNoSubsetFits(t *testing.T) {
	t.Parallel()

	records := []statement.RawRecord{
		testRecord(1, statement.TypePurchase, 10000, 100, 100, 100),
		testRecord(10, statement.TypePurchase, 5000, 50, 100, 150),
	}

	// Closing balance 120: no subset of {100, 50} sums to the excess 30.
	res := NewStager(config.Default().Validation, nil).Analyze(records, []statement.HoldingRecord{testHolding(120)})
	a := res.Groups[groupKey()]
	require.Equal(t, StrategyDisputed, a.Strategy)
	require.False(t, a.BalanceValidated)
	require.Empty(t, a.ReversalIndices)
	require.Zero(t, res.ValidatedFolios)
}

func TestStagingPatternFallbackWithoutClosingBalance(t *testing.T) {
	t.Parallel()

	records := []statement.RawRecord{
		testRecord(5, statement.TypePurchase, 5000, 52.5, 95.23, 150.5),
		testRecord(5, statement.TypeRedemption, -5000, -52.5, 95.23, 98.0),
	}

	res := NewStager(config.Default().Validation, nil).Analyze(records, nil)
	a := res.Groups[groupKey()]
	require.Equal(t, StrategyPatternFallback, a.Strategy)
	require.False(t, a.BalanceValidated)
	require.Len(t, a.ReversalIndices, 2)
}

func TestStagingIgnoresZeroBalanceAdminRows(t *testing.T) {
	t.Parallel()

	// Trailing stamp duty rows carry balance 0 and must not be taken as
	// the last running balance.
	records := []statement.RawRecord{
		testRecord(1, statement.TypePurchase, 10000, 100, 100, 100),
		testRecord(10, statement.TypePurchase, 5000, 50, 100, 150),
		testRecord(10, statement.TypeStampDuty, 0.75, 0, 0, 0),
	}

	res := NewStager(config.Default().Validation, nil).Analyze(records, []statement.HoldingRecord{testHolding(150)})
	a := res.Groups[groupKey()]
	require.Equal(t, StrategyClosingBalanceMatch, a.Strategy)
	require.InDelta(t, 150, a.LastTxBalance, 0.001)
}

func TestFindCombination(t *testing.T) {
	t.Parallel()

	units := []float64{10, 20, 30, 40, 50}
	got := findCombination(units, 3, 90, 0.01)
	require.NotNil(t, got)
	sum := 0.0
	for i := range got {
		sum += units[i]
	}
	require.InDelta(t, 90, sum, 0.01)

	require.Nil(t, findCombination(units, 3, 888, 0.01))
	require.Nil(t, findCombination(units, 6, 90, 0.01))
}
