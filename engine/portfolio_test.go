package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/paperhands/cryptosim/account"
	"github.com/paperhands/cryptosim/types"
)

func newTestAccount(cash int64) *account.Account {
	return account.NewAccount("trader@example.com", decimal.NewFromInt(cash))
}

func testAsset(id string, price float64) types.Asset {
	return types.Asset{ID: id, Symbol: id[:3], Name: id, CurrentPrice: decimal.NewFromFloat(price)}
}

func mustOpen(t *testing.T, acct *account.Account, asset types.Asset, ord types.Order) *types.Position {
	t.Helper()
	pos, err := Open(acct, asset, ord)
	require.NoError(t, err)
	return pos
}

func TestOpenLongDebitsNotional(t *testing.T) {
	acct := newTestAccount(10000)
	btc := testAsset("bitcoin", 100)

	pos := mustOpen(t, acct, btc, types.Order{
		AssetID: "bitcoin", Amount: decimal.NewFromInt(10), Leverage: 1, Direction: types.Long,
	})

	require.True(t, acct.Cash.Equal(decimal.NewFromInt(9000)), "cash = %s", acct.Cash)
	require.True(t, pos.Amount.Equal(decimal.NewFromInt(10)))
	require.True(t, pos.AvgEntryPrice.Equal(decimal.NewFromInt(100)))
	require.Equal(t, types.Long, pos.Direction)
}

func TestMarkToMarketAfterPriceRise(t *testing.T) {
	acct := newTestAccount(10000)
	mustOpen(t, acct, testAsset("bitcoin", 100), types.Order{
		AssetID: "bitcoin", Amount: decimal.NewFromInt(10), Leverage: 1, Direction: types.Long,
	})

	// 9000 cash + 1000 principal + 50×10×1 profit = 10500
	total := MarkToMarket(acct, []types.Asset{testAsset("bitcoin", 150)})
	require.True(t, total.Equal(decimal.NewFromInt(10500)), "total = %s", total)
}

func TestFullCloseRealizesProfitAndRemovesPosition(t *testing.T) {
	acct := newTestAccount(10000)
	mustOpen(t, acct, testAsset("bitcoin", 100), types.Order{
		AssetID: "bitcoin", Amount: decimal.NewFromInt(10), Leverage: 1, Direction: types.Long,
	})

	pnl, err := Close(acct, testAsset("bitcoin", 150), decimal.NewFromInt(10))
	require.NoError(t, err)
	require.True(t, pnl.Equal(decimal.NewFromInt(500)))
	require.True(t, acct.Cash.Equal(decimal.NewFromInt(10500)), "cash = %s", acct.Cash)
	require.Nil(t, acct.Position("bitcoin"), "position must be removed at exactly zero")
}

func TestShortWithLeverage(t *testing.T) {
	acct := newTestAccount(10000)
	mustOpen(t, acct, testAsset("ethereum", 100), types.Order{
		AssetID: "ethereum", Amount: decimal.NewFromInt(2), Leverage: 5, Direction: types.Short,
	})
	require.True(t, acct.Cash.Equal(decimal.NewFromInt(9800)))

	// Price falls to 80: profit = (100-80)×2×5 = 200, credit = 200 principal + 200.
	pnl, err := Close(acct, testAsset("ethereum", 80), decimal.NewFromInt(2))
	require.NoError(t, err)
	require.True(t, pnl.Equal(decimal.NewFromInt(200)))
	require.True(t, acct.Cash.Equal(decimal.NewFromInt(10200)), "cash = %s", acct.Cash)
}

func TestShortLosesWhenPriceRises(t *testing.T) {
	acct := newTestAccount(10000)
	mustOpen(t, acct, testAsset("ethereum", 100), types.Order{
		AssetID: "ethereum", Amount: decimal.NewFromInt(2), Leverage: 5, Direction: types.Short,
	})

	pnl, err := Close(acct, testAsset("ethereum", 110), decimal.NewFromInt(2))
	require.NoError(t, err)
	require.True(t, pnl.Equal(decimal.NewFromInt(-100)))
	require.True(t, acct.Cash.Equal(decimal.NewFromInt(9900)))
}

func TestWeightedAverageIsOrderIndependent(t *testing.T) {
	a := newTestAccount(100000)
	mustOpen(t, a, testAsset("bitcoin", 100), types.Order{AssetID: "bitcoin", Amount: decimal.NewFromInt(10), Leverage: 1, Direction: types.Long})
	mustOpen(t, a, testAsset("bitcoin", 200), types.Order{AssetID: "bitcoin", Amount: decimal.NewFromInt(20), Leverage: 1, Direction: types.Long})

	b := newTestAccount(100000)
	mustOpen(t, b, testAsset("bitcoin", 200), types.Order{AssetID: "bitcoin", Amount: decimal.NewFromInt(20), Leverage: 1, Direction: types.Long})
	mustOpen(t, b, testAsset("bitcoin", 100), types.Order{AssetID: "bitcoin", Amount: decimal.NewFromInt(10), Leverage: 1, Direction: types.Long})

	avgA := a.Position("bitcoin").AvgEntryPrice
	avgB := b.Position("bitcoin").AvgEntryPrice
	require.True(t, avgA.Equal(avgB), "avg %s vs %s", avgA, avgB)

	// Notional-weighted mean: (10×100 + 20×200) / 30.
	want := decimal.NewFromInt(5000).Div(decimal.NewFromInt(30))
	require.True(t, avgA.Equal(want))
}

func TestPartialCloseKeepsAveragePrice(t *testing.T) {
	acct := newTestAccount(10000)
	mustOpen(t, acct, testAsset("bitcoin", 100), types.Order{
		AssetID: "bitcoin", Amount: decimal.NewFromInt(10), Leverage: 2, Direction: types.Long,
	})

	_, err := Close(acct, testAsset("bitcoin", 130), decimal.NewFromInt(4))
	require.NoError(t, err)

	pos := acct.Position("bitcoin")
	require.NotNil(t, pos)
	require.True(t, pos.Amount.Equal(decimal.NewFromInt(6)))
	require.True(t, pos.AvgEntryPrice.Equal(decimal.NewFromInt(100)), "partial close must not move the average")
	require.Equal(t, 2, pos.Leverage)
}

func TestCloseAtMarkingPriceConservesValue(t *testing.T) {
	acct := newTestAccount(10000)
	mustOpen(t, acct, testAsset("bitcoin", 100), types.Order{
		AssetID: "bitcoin", Amount: decimal.NewFromInt(10), Leverage: 3, Direction: types.Long,
	})
	snap := []types.Asset{testAsset("bitcoin", 137.5)}

	before := MarkToMarket(acct, snap)
	_, err := Close(acct, snap[0], decimal.NewFromInt(10))
	require.NoError(t, err)
	after := MarkToMarket(acct, snap)

	require.True(t, before.Equal(after), "closing at the marking price must not create or destroy value: %s vs %s", before, after)
}

func TestPartialCloseAtMarkingPriceConservesValue(t *testing.T) {
	acct := newTestAccount(10000)
	mustOpen(t, acct, testAsset("ethereum", 50), types.Order{
		AssetID: "ethereum", Amount: decimal.NewFromInt(40), Leverage: 7, Direction: types.Short,
	})
	snap := []types.Asset{testAsset("ethereum", 42)}

	before := MarkToMarket(acct, snap)
	_, err := Close(acct, snap[0], decimal.NewFromInt(15))
	require.NoError(t, err)
	after := MarkToMarket(acct, snap)

	require.True(t, before.Equal(after), "%s vs %s", before, after)
}

func TestOpenInsufficientFunds(t *testing.T) {
	acct := newTestAccount(500)
	_, err := Open(acct, testAsset("bitcoin", 100), types.Order{
		AssetID: "bitcoin", Amount: decimal.NewFromInt(10), Leverage: 1, Direction: types.Long,
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.True(t, acct.Cash.Equal(decimal.NewFromInt(500)), "failed open must not touch cash")
	require.Nil(t, acct.Position("bitcoin"))
}

func TestOpenRejectsNonPositiveAmount(t *testing.T) {
	acct := newTestAccount(10000)
	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-3)} {
		_, err := Open(acct, testAsset("bitcoin", 100), types.Order{
			AssetID: "bitcoin", Amount: amount, Leverage: 1, Direction: types.Long,
		})
		require.ErrorIs(t, err, ErrInvalidAmount)
	}
}

func TestOpenRejectsZeroPrice(t *testing.T) {
	acct := newTestAccount(10000)
	_, err := Open(acct, testAsset("brokencoin", 0), types.Order{
		AssetID: "brokencoin", Amount: decimal.NewFromInt(1), Leverage: 1, Direction: types.Long,
	})
	require.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestLeverageClamped(t *testing.T) {
	acct := newTestAccount(100000)
	pos := mustOpen(t, acct, testAsset("bitcoin", 10), types.Order{
		AssetID: "bitcoin", Amount: decimal.NewFromInt(1), Leverage: 0, Direction: types.Long,
	})
	require.Equal(t, 1, pos.Leverage)

	pos = mustOpen(t, acct, testAsset("ethereum", 10), types.Order{
		AssetID: "ethereum", Amount: decimal.NewFromInt(1), Leverage: 500, Direction: types.Long,
	})
	require.Equal(t, 100, pos.Leverage)
}

func TestReentryOverwritesParameters(t *testing.T) {
	acct := newTestAccount(100000)
	mustOpen(t, acct, testAsset("bitcoin", 100), types.Order{
		AssetID: "bitcoin", Amount: decimal.NewFromInt(5), Leverage: 2, Direction: types.Long,
		TakeProfit: decimal.NewFromInt(150),
	})

	pos := mustOpen(t, acct, testAsset("bitcoin", 200), types.Order{
		AssetID: "bitcoin", Amount: decimal.NewFromInt(5), Leverage: 10, Direction: types.Short,
		StopLoss: decimal.NewFromInt(250),
	})

	// The new order's parameters replace the old ones wholesale.
	require.Equal(t, 10, pos.Leverage)
	require.Equal(t, types.Short, pos.Direction)
	require.True(t, pos.TakeProfit.IsZero())
	require.True(t, pos.StopLoss.Equal(decimal.NewFromInt(250)))
	require.True(t, pos.Amount.Equal(decimal.NewFromInt(10)))
	require.True(t, pos.AvgEntryPrice.Equal(decimal.NewFromInt(150)))
}

func TestCloseMoreThanHeldFailsUnchanged(t *testing.T) {
	acct := newTestAccount(10000)
	mustOpen(t, acct, testAsset("bitcoin", 100), types.Order{
		AssetID: "bitcoin", Amount: decimal.NewFromInt(10), Leverage: 1, Direction: types.Long,
	})
	cashBefore := acct.Cash

	_, err := Close(acct, testAsset("bitcoin", 150), decimal.NewFromInt(11))
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.True(t, acct.Cash.Equal(cashBefore))
	require.True(t, acct.Position("bitcoin").Amount.Equal(decimal.NewFromInt(10)))
}

func TestCloseWithoutPosition(t *testing.T) {
	acct := newTestAccount(10000)
	_, err := Close(acct, testAsset("bitcoin", 100), decimal.NewFromInt(1))
	require.ErrorIs(t, err, ErrNoPosition)
}

func TestFractionalAmountsLeaveNoDust(t *testing.T) {
	acct := newTestAccount(10000)
	btc := testAsset("bitcoin", 100)
	mustOpen(t, acct, btc, types.Order{AssetID: "bitcoin", Amount: decimal.NewFromFloat(0.1), Leverage: 1, Direction: types.Long})
	mustOpen(t, acct, btc, types.Order{AssetID: "bitcoin", Amount: decimal.NewFromFloat(0.2), Leverage: 1, Direction: types.Long})

	// 0.1 + 0.2 closes exactly as 0.3 in decimal arithmetic.
	_, err := Close(acct, btc, decimal.NewFromFloat(0.3))
	require.NoError(t, err)
	require.Nil(t, acct.Position("bitcoin"))
}

func TestMarkToMarketSkipsDelistedAssets(t *testing.T) {
	acct := newTestAccount(10000)
	mustOpen(t, acct, testAsset("bitcoin", 100), types.Order{
		AssetID: "bitcoin", Amount: decimal.NewFromInt(10), Leverage: 1, Direction: types.Long,
	})

	// Snapshot no longer carries bitcoin: the position contributes zero
	// but stays open.
	total := MarkToMarket(acct, []types.Asset{testAsset("ethereum", 500)})
	require.True(t, total.Equal(decimal.NewFromInt(9000)), "total = %s", total)
	require.NotNil(t, acct.Position("bitcoin"))
}

func TestLedgerPrimitives(t *testing.T) {
	acct := newTestAccount(100)
	l := NewLedger(acct)

	require.ErrorIs(t, l.Debit(decimal.NewFromInt(101)), ErrInsufficientFunds)
	require.True(t, l.Balance().Equal(decimal.NewFromInt(100)))

	require.ErrorIs(t, l.Debit(decimal.Zero), ErrInvalidAmount)

	require.NoError(t, l.Debit(decimal.NewFromInt(40)))
	require.True(t, l.Balance().Equal(decimal.NewFromInt(60)))

	// A leveraged loss can credit a negative net amount.
	l.Credit(decimal.NewFromInt(-10))
	require.True(t, l.Balance().Equal(decimal.NewFromInt(50)))
}
