package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFundUpsertAndSetters(t *testing.T) {
	t.Parallel()
	db := openRepoDB(t)
	ctx := repoCtx(t)
	funds := NewFundRepo(db)

	const isin = "INF109K01VQ1"
	require.NoError(t, funds.Upsert(ctx, isin, "Test Flexi Cap Fund", "Test AMC"))

	require.NoError(t, funds.SetClassification(ctx, isin, "equity", 97.5))
	require.NoError(t, funds.SetExitLoad(ctx, isin, 0.5))
	require.NoError(t, funds.SetCurrentNAV(ctx, isin, 12.3456))

	f, err := funds.Get(ctx, isin)
	require.NoError(t, err)
	require.NotNil(t, f)
	require.Equal(t, "equity", f.Category)
	require.InDelta(t, 97.5, f.EquityPct, 0.001)
	require.InDelta(t, 0.5, f.ExitLoadPct, 0.001)
	require.InDelta(t, 12.3456, f.CurrentNAV, 0.0001)

	// Re-upserting with a blank name keeps the classification and metadata.
	require.NoError(t, funds.Upsert(ctx, isin, "", ""))
	f, err = funds.Get(ctx, isin)
	require.NoError(t, err)
	require.Equal(t, "Test Flexi Cap Fund", f.SchemeName)
	require.Equal(t, "equity", f.Category)

	missing, err := funds.Get(ctx, "INF999X99XX9")
	require.NoError(t, err)
	require.Nil(t, missing)
}
