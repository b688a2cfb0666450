package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arghaM/famfolioz/internal/config"
	"github.com/arghaM/famfolioz/internal/database/repository"
	"github.com/arghaM/famfolioz/internal/statement"
)

func ledgerTx(id int64, date string, txType statement.TxType, units, nav float64) repository.Transaction {
	return repository.Transaction{
		ID: id, FolioID: 1, Date: date, Type: txType,
		Units: units, NAV: nav, Amount: units * nav,
		Status: statement.StatusActive,
	}
}

func TestReplayOldestFirstConsumption(t *testing.T) {
	t.Parallel()

	txs := []repository.Transaction{
		ledgerTx(1, "2023-01-10", statement.TypePurchase, 100, 10),
		ledgerTx(2, "2023-06-10", statement.TypePurchase, 100, 12),
		ledgerTx(3, "2024-02-10", statement.TypeRedemption, -150, 15),
	}

	lots, gains, warnings := NewLotEngine(config.Default().Validation, nil).Replay(txs)
	require.Empty(t, warnings)

	// 100 units from the first lot, 50 from the second.
	require.Len(t, gains, 2)
	require.InDelta(t, 100, gains[0].UnitsSold, 0.0001)
	require.InDelta(t, 500, gains[0].Realized, 0.001) // 100 * (15 - 10)
	require.Equal(t, "2023-01-10", gains[0].BuyDate)
	require.InDelta(t, 50, gains[1].UnitsSold, 0.0001)
	require.InDelta(t, 150, gains[1].Realized, 0.001) // 50 * (15 - 12)
	require.Equal(t, "2023-06-10", gains[1].BuyDate)

	// 50 units remain from the second lot at cost 50 * 12.
	require.Len(t, lots, 1)
	require.InDelta(t, 50, lots[0].Units, 0.0001)
	require.InDelta(t, 600, lots[0].Cost, 0.001)
	require.InDelta(t, 12, lots[0].CostPerUnit(), 0.001)
}

func TestReplayUnitConservation(t *testing.T) {
	t.Parallel()

	txs := []repository.Transaction{
		ledgerTx(1, "2023-01-10", statement.TypePurchase, 80, 20),
		ledgerTx(2, "2023-02-10", statement.TypeSIP, 40, 22),
		ledgerTx(3, "2023-03-10", statement.TypeSwitchIn, 30, 21),
		ledgerTx(4, "2023-06-10", statement.TypeRedemption, -65, 25),
	}

	lots, gains, warnings := NewLotEngine(config.Default().Validation, nil).Replay(txs)
	require.Empty(t, warnings)

	remaining := 0.0
	for _, l := range lots {
		remaining += l.Units
	}
	sold := 0.0
	for _, g := range gains {
		sold += g.UnitsSold
	}
	require.InDelta(t, 150, remaining+sold, 0.0001)
	require.InDelta(t, 65, sold, 0.0001)
}

func TestReplayHoldingDaysClassification(t *testing.T) {
	t.Parallel()

	txs := []repository.Transaction{
		ledgerTx(1, "2023-01-10", statement.TypePurchase, 100, 10),
		ledgerTx(2, "2024-02-10", statement.TypeRedemption, -100, 15),
	}

	_, gains, _ := NewLotEngine(config.Default().Validation, nil).Replay(txs)
	require.Len(t, gains, 1)
	require.Equal(t, 396, gains[0].HoldingDays)
	require.True(t, gains[0].LongTerm(365))
	require.False(t, gains[0].LongTerm(400))
}

func TestReplayPurchaseReversalMatchesNAV(t *testing.T) {
	t.Parallel()

	// The reversal NAV matches the middle lot, so that lot absorbs it even
	// though a newer lot exists.
	txs := []repository.Transaction{
		ledgerTx(1, "2023-01-10", statement.TypePurchase, 100, 10),
		ledgerTx(2, "2023-02-10", statement.TypePurchase, 50, 20),
		ledgerTx(3, "2023-03-10", statement.TypePurchase, 60, 30),
		ledgerTx(4, "2023-03-15", statement.TypePurchase, -50, 20),
	}

	lots, gains, warnings := NewLotEngine(config.Default().Validation, nil).Replay(txs)
	require.Empty(t, warnings)
	require.Empty(t, gains) // reversals never realize gains
	require.Len(t, lots, 2)
	require.InDelta(t, 100, lots[0].Units, 0.0001)
	require.InDelta(t, 60, lots[1].Units, 0.0001)
}

func TestReplayPurchaseReversalFallsBackToNewest(t *testing.T) {
	t.Parallel()

	txs := []repository.Transaction{
		ledgerTx(1, "2023-01-10", statement.TypePurchase, 100, 10),
		ledgerTx(2, "2023-02-10", statement.TypePurchase, 50, 20),
		ledgerTx(3, "2023-03-15", statement.TypePurchase, -30, 99), // no NAV match
	}

	lots, _, warnings := NewLotEngine(config.Default().Validation, nil).Replay(txs)
	require.Empty(t, warnings)
	require.Len(t, lots, 2)
	require.InDelta(t, 100, lots[0].Units, 0.0001)
	require.InDelta(t, 20, lots[1].Units, 0.0001)
	// Cost shrinks proportionally.
	require.InDelta(t, 400, lots[1].Cost, 0.001)
}

func TestReplaySkipsGarbledReversal(t *testing.T) {
	t.Parallel()

	txs := []repository.Transaction{
		ledgerTx(1, "2023-01-10", statement.TypePurchase, 100, 10),
		ledgerTx(2, "2023-03-15", statement.TypePurchase, -30, 2500000), // garbled NAV
	}

	lots, _, _ := NewLotEngine(config.Default().Validation, nil).Replay(txs)
	require.Len(t, lots, 1)
	require.InDelta(t, 100, lots[0].Units, 0.0001)
}

func TestReplayOverConsumptionWarns(t *testing.T) {
	t.Parallel()

	txs := []repository.Transaction{
		ledgerTx(1, "2023-01-10", statement.TypePurchase, 100, 10),
		ledgerTx(2, "2023-06-10", statement.TypeRedemption, -150, 15),
	}

	lots, gains, warnings := NewLotEngine(config.Default().Validation, nil).Replay(txs)
	require.Empty(t, lots)
	require.Len(t, gains, 1)
	require.InDelta(t, 100, gains[0].UnitsSold, 0.0001)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "could not be matched")
}

func TestReplaySkipsAdminAndBonusCost(t *testing.T) {
	t.Parallel()

	txs := []repository.Transaction{
		ledgerTx(1, "2023-01-10", statement.TypePurchase, 100, 10),
		ledgerTx(2, "2023-01-10", statement.TypeStampDuty, 0, 0),
		ledgerTx(3, "2023-02-10", statement.TypeBonus, 10, 0), // bonus units carry zero cost
	}

	lots, gains, warnings := NewLotEngine(config.Default().Validation, nil).Replay(txs)
	require.Empty(t, gains)
	require.Empty(t, warnings)
	require.Len(t, lots, 2)
	require.InDelta(t, 0, lots[1].Cost, 0.0001)
	require.InDelta(t, 10, lots[1].Units, 0.0001)
}
