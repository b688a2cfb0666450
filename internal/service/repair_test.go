package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arghaM/famfolioz/internal/config"
	"github.com/arghaM/famfolioz/internal/statement"
)

func testRecord(day int, txType statement.TxType, amount, units, nav, balance float64) statement.RawRecord {
	return statement.RawRecord{
		Folio: "123/45", ISIN: "INF109K01VQ1",
		Date: statement.NewDate(2024, time.January, day),
		Type: txType, Amount: amount, Units: units, NAV: nav, Balance: balance,
	}
}

func TestRepairLeavesConsistentRecordsAlone(t *testing.T) {
	t.Parallel()

	records := []statement.RawRecord{
		testRecord(15, statement.TypePurchase, 5000, 52.5, 95.23, 52.5),
	}
	before := records[0]

	res := NewRepairer(config.Default().Validation, nil).Repair(records)
	require.Zero(t, res.Repaired)
	require.Empty(t, res.Warnings)
	require.Equal(t, before, records[0])
}

func TestRepairSwappedAmountAndUnits(t *testing.T) {
	t.Parallel()

	// Extraction put the amount in the units column and vice versa.
	records := []statement.RawRecord{
		testRecord(15, statement.TypePurchase, 52.5, 5000, 95.23, 150.5),
	}

	res := NewRepairer(config.Default().Validation, nil).Repair(records)
	require.Equal(t, 1, res.Repaired)
	require.InDelta(t, 5000, records[0].Amount, 0.001)
	require.InDelta(t, 52.5, records[0].Units, 0.001)
	require.InDelta(t, 95.23, records[0].NAV, 0.001)
}

func TestRepairPreservesSigns(t *testing.T) {
	t.Parallel()

	// Redemption with negative units and swapped magnitudes.
	records := []statement.RawRecord{
		testRecord(20, statement.TypeRedemption, -52.5, -5000, 95.23, 98.0),
	}

	res := NewRepairer(config.Default().Validation, nil).Repair(records)
	require.Equal(t, 1, res.Repaired)
	require.Less(t, records[0].Amount, 0.0)
	require.Less(t, records[0].Units, 0.0)
	require.InDelta(t, -5000, records[0].Amount, 0.001)
	require.InDelta(t, -52.5, records[0].Units, 0.001)
}

func TestRepairUnfixableRecordWarnsAndKeeps(t *testing.T) {
	t.Parallel()

	// No assignment of these four values satisfies amount = units * nav.
	before := testRecord(15, statement.TypePurchase, 7777, 3, 50, 9)
	records := []statement.RawRecord{before}

	res := NewRepairer(config.Default().Validation, nil).Repair(records)
	require.Zero(t, res.Repaired)
	require.NotEmpty(t, res.Warnings)
	require.Equal(t, before, records[0])
}

func TestRepairSkipsAdminRecords(t *testing.T) {
	t.Parallel()

	before := testRecord(15, statement.TypeStampDuty, 0.5, 0, 0, 0)
	records := []statement.RawRecord{before}

	res := NewRepairer(config.Default().Validation, nil).Repair(records)
	require.Zero(t, res.Repaired)
	require.Equal(t, before, records[0])
}

func TestRepairBalanceContinuityIsolatedSuspect(t *testing.T) {
	t.Parallel()

	records := []statement.RawRecord{
		testRecord(1, statement.TypePurchase, 10000, 100, 100, 100),
		testRecord(10, statement.TypePurchase, 5000, 50, 100, 9999), // garbled balance
		testRecord(20, statement.TypePurchase, 2500, 25, 100, 175),
	}

	res := NewRepairer(config.Default().Validation, nil).Repair(records)
	require.Equal(t, 1, res.Repaired)
	require.InDelta(t, 150, records[1].Balance, 0.001)
	require.InDelta(t, 50, records[1].Units, 0.001)
	// Neighbours untouched.
	require.InDelta(t, 100, records[0].Balance, 0.001)
	require.InDelta(t, 175, records[2].Balance, 0.001)
}

func TestRepairBalanceContinuityDerivesUnitsFromAnchors(t *testing.T) {
	t.Parallel()

	// Both units and balance are wrong on the middle record; the anchors
	// pin the corrected values.
	records := []statement.RawRecord{
		testRecord(1, statement.TypePurchase, 10000, 100, 100, 100),
		testRecord(10, statement.TypePurchase, 5000, 7777, 100, 8888),
		testRecord(20, statement.TypePurchase, 2500, 25, 100, 175),
	}

	res := NewRepairer(config.Default().Validation, nil).Repair(records)
	require.GreaterOrEqual(t, res.Repaired, 1)
	require.InDelta(t, 150, records[1].Balance, 0.001)
	require.InDelta(t, 50, records[1].Units, 0.001)
	// NAV and amount re-derived from the surviving raw values.
	require.InDelta(t, 100, records[1].NAV, 0.001)
	require.InDelta(t, 5000, records[1].Amount, 0.001)
}

func TestRepairConsecutiveSuspectsLeftAlone(t *testing.T) {
	t.Parallel()

	records := []statement.RawRecord{
		testRecord(1, statement.TypePurchase, 10000, 100, 100, 100),
		testRecord(5, statement.TypePurchase, 5000, 50, 100, 7000),
		testRecord(10, statement.TypePurchase, 5000, 50, 100, 8000),
		testRecord(20, statement.TypePurchase, 2500, 25, 100, 225),
	}

	res := NewRepairer(config.Default().Validation, nil).Repair(records)
	// The first suspect has another suspect before its next anchor and is
	// left alone with a warning.
	require.InDelta(t, 7000, records[1].Balance, 0.001)
	require.NotEmpty(t, res.Warnings)
}

func TestRepairAdminRecordsExcludedFromContinuity(t *testing.T) {
	t.Parallel()

	// A stamp duty row with balance 0 between purchases must not flag its
	// neighbours as suspects.
	records := []statement.RawRecord{
		testRecord(1, statement.TypePurchase, 10000, 100, 100, 100),
		testRecord(1, statement.TypeStampDuty, 0.5, 0, 0, 0),
		testRecord(10, statement.TypePurchase, 5000, 50, 100, 150),
	}

	res := NewRepairer(config.Default().Validation, nil).Repair(records)
	require.Zero(t, res.Repaired)
	require.InDelta(t, 100, records[0].Balance, 0.001)
	require.InDelta(t, 150, records[2].Balance, 0.001)
}
