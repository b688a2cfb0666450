package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arghaM/famfolioz/internal/statement"
)

func TestTxHashStable(t *testing.T) {
	t.Parallel()

	h1 := TxHash("123/45", "2024-01-15", statement.TypePurchase, 52.5, 150.5, 0)
	h2 := TxHash("123/45", "2024-01-15", statement.TypePurchase, 52.5, 150.5, 0)
	require.Equal(t, h1, h2)
	require.Len(t, h1, 32)

	// Any identity field change produces a different hash.
	require.NotEqual(t, h1, TxHash("123/46", "2024-01-15", statement.TypePurchase, 52.5, 150.5, 0))
	require.NotEqual(t, h1, TxHash("123/45", "2024-01-16", statement.TypePurchase, 52.5, 150.5, 0))
	require.NotEqual(t, h1, TxHash("123/45", "2024-01-15", statement.TypeSIP, 52.5, 150.5, 0))
	require.NotEqual(t, h1, TxHash("123/45", "2024-01-15", statement.TypePurchase, 52.6, 150.5, 0))
	require.NotEqual(t, h1, TxHash("123/45", "2024-01-15", statement.TypePurchase, 52.5, 150.6, 0))
}

func TestTxHashSequenceSuffix(t *testing.T) {
	t.Parallel()

	base := TxHash("123/45", "2024-01-15", statement.TypeSIP, 10, 100, 0)
	seq1 := TxHash("123/45", "2024-01-15", statement.TypeSIP, 10, 100, 1)
	seq2 := TxHash("123/45", "2024-01-15", statement.TypeSIP, 10, 100, 2)
	require.NotEqual(t, base, seq1)
	require.NotEqual(t, seq1, seq2)
}

func TestSequenceNumbers(t *testing.T) {
	t.Parallel()

	mk := func(units, balance float64) statement.RawRecord {
		return statement.RawRecord{
			Folio: "123/45", ISIN: "INF109K01VQ1",
			Date: statement.NewDate(2024, time.January, 15),
			Type: statement.TypeSIP, Units: units, Balance: balance,
		}
	}

	// Two identical SIPs on the same day plus one distinct record.
	records := []statement.RawRecord{mk(10, 100), mk(10, 100), mk(20, 120)}
	seq := SequenceNumbers(records)

	require.Equal(t, 0, seq[0])
	require.Equal(t, 1, seq[1])
	require.Equal(t, 0, seq[2])

	// The ordinals feed into distinct hashes for otherwise identical rows.
	h0 := TxHash(records[0].Folio, records[0].DateKey(), records[0].Type, records[0].Units, records[0].Balance, seq[0])
	h1 := TxHash(records[1].Folio, records[1].DateKey(), records[1].Type, records[1].Units, records[1].Balance, seq[1])
	require.NotEqual(t, h0, h1)
}

func TestSequenceNumbersStableAcrossImports(t *testing.T) {
	t.Parallel()

	mk := func() statement.RawRecord {
		return statement.RawRecord{
			Folio: "9/1", Date: statement.NewDate(2024, time.June, 3),
			Type: statement.TypePurchase, Units: 5, Balance: 50,
		}
	}
	first := SequenceNumbers([]statement.RawRecord{mk(), mk(), mk()})
	second := SequenceNumbers([]statement.RawRecord{mk(), mk(), mk()})
	require.Equal(t, first, second)
}
