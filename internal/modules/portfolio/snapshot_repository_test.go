package portfolio

import (
	"context"
	"testing"

	"github.com/aristath/custodian/internal/domain"
	testhelpers "github.com/aristath/custodian/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSnapshotRepo(t *testing.T) *SnapshotRepository {
	t.Helper()
	db, cleanup := testhelpers.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)
	return NewSnapshotRepository(db.Conn(), zerolog.Nop())
}

func snapshotAt(client, date, total string) *domain.PortfolioSnapshot {
	return &domain.PortfolioSnapshot{
		ClientCode:   client,
		SnapshotDate: day(date),
		Metrics: domain.PortfolioMetrics{
			TotalValue:          dec(total),
			RealGainLossPercent: 1.5,
		},
		Positions: []domain.SnapshotPosition{
			{
				Bank:        domain.BankJPM,
				AccountCode: client + "-JPM",
				Identifier:  "US0378331005",
				Name:        "Apple Inc",
				AssetType:   domain.AssetEquity,
				Quantity:    dec("10"),
				MarketValue: dec(total),
				CostBasis:   domain.DecimalPtr(dec("100")),
			},
		},
	}
}

func TestSnapshotRepository_SaveAndGet(t *testing.T) {
	repo := newSnapshotRepo(t)
	ctx := context.Background()

	snap := snapshotAt("HZ", "2025-06-30", "1500.25")
	require.NoError(t, repo.Save(ctx, snap))
	assert.NotZero(t, snap.ID)

	got, err := repo.Get(ctx, "HZ", day("2025-06-30"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap.ID, got.ID)
	assert.True(t, dec("1500.25").Equal(got.Metrics.TotalValue))
	assert.Equal(t, 1.5, got.Metrics.RealGainLossPercent)
	require.Len(t, got.Positions, 1)
	assert.Equal(t, domain.BankJPM, got.Positions[0].Bank)
	assert.Equal(t, domain.AssetEquity, got.Positions[0].AssetType)
	require.NotNil(t, got.Positions[0].CostBasis)
	assert.True(t, dec("100").Equal(*got.Positions[0].CostBasis))

	missing, err := repo.Get(ctx, "LP", day("2025-06-30"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSnapshotRepository_SaveReplacesSameDate(t *testing.T) {
	repo := newSnapshotRepo(t)
	ctx := context.Background()

	first := snapshotAt("HZ", "2025-06-30", "1000")
	require.NoError(t, repo.Save(ctx, first))

	again := snapshotAt("HZ", "2025-06-30", "2000")
	again.Positions = append(again.Positions, domain.SnapshotPosition{
		Bank:        domain.BankMS,
		AccountCode: "HZ-MS",
		Name:        "USD Cash",
		AssetType:   domain.AssetCash,
		Quantity:    dec("5"),
		MarketValue: dec("5"),
	})
	require.NoError(t, repo.Save(ctx, again))
	assert.Equal(t, first.ID, again.ID)

	got, err := repo.Get(ctx, "HZ", day("2025-06-30"))
	require.NoError(t, err)
	assert.True(t, dec("2000").Equal(got.Metrics.TotalValue))
	require.Len(t, got.Positions, 2)
	assert.Nil(t, got.Positions[1].CostBasis)

	snaps, err := repo.ListForDate(ctx, day("2025-06-30"))
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestSnapshotRepository_PreviousAndFirst(t *testing.T) {
	repo := newSnapshotRepo(t)
	ctx := context.Background()

	for _, d := range []string{"2025-04-30", "2025-05-31", "2025-06-30"} {
		require.NoError(t, repo.Save(ctx, snapshotAt("HZ", d, "100")))
	}

	prev, err := repo.Previous(ctx, "HZ", day("2025-06-30"))
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, day("2025-05-31"), prev.SnapshotDate)

	first, err := repo.First(ctx, "HZ", day("2025-06-30"))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, day("2025-04-30"), first.SnapshotDate)

	none, err := repo.Previous(ctx, "HZ", day("2025-04-30"))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSnapshotRepository_ClientsAndHistory(t *testing.T) {
	repo := newSnapshotRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, snapshotAt("HZ", "2025-05-31", "100")))
	require.NoError(t, repo.Save(ctx, snapshotAt("LP", "2025-05-31", "200")))
	require.NoError(t, repo.Save(ctx, snapshotAt("HZ", "2025-06-30", "150")))
	require.NoError(t, repo.Save(ctx, snapshotAt("ZZ", "2025-07-31", "50")))

	clients, err := repo.ClientsUpTo(ctx, day("2025-06-30"))
	require.NoError(t, err)
	assert.Equal(t, []string{"HZ", "LP"}, clients)

	onDate, err := repo.ListForDate(ctx, day("2025-06-30"))
	require.NoError(t, err)
	require.Len(t, onDate, 1)
	assert.Equal(t, "HZ", onDate[0].ClientCode)
	assert.Empty(t, onDate[0].Positions)

	history, err := repo.History(ctx, "HZ")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, day("2025-05-31"), history[0].SnapshotDate)
	assert.True(t, dec("150").Equal(history[1].TotalValue))

	empty, err := repo.History(ctx, "NOBODY")
	require.NoError(t, err)
	assert.Empty(t, empty)

	dates, err := repo.Dates(ctx)
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, day("2025-07-31"), dates[0])
}
