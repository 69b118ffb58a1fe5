package cash_flows

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/custodian/internal/domain"
	testhelpers "github.com/aristath/custodian/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func tx(client string, day string, typ domain.TransactionType, amount int64) domain.StandardizedTransaction {
	return domain.StandardizedTransaction{
		Bank:        domain.BankJPM,
		ClientCode:  client,
		AccountCode: "MAIN",
		Date:        date(day),
		Type:        typ,
		NativeType:  string(typ),
		TotalAmount: decimal.NewFromInt(amount),
	}
}

func newRepo(t *testing.T) *TransactionRepository {
	db, cleanup := testhelpers.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)
	return NewTransactionRepository(db.Conn(), zerolog.Nop())
}

func TestReplaceForDate_InsertsAndIgnoresOverlap(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	first := []domain.StandardizedTransaction{
		tx("HZ", "2025-05-10", domain.TxDeposit, 30000),
		tx("HZ", "2025-05-12", domain.TxBuy, -10000),
	}
	n, err := repo.ReplaceForDate(ctx, date("2025-05-31"), first)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// The next statement repeats the May deposit
	second := []domain.StandardizedTransaction{
		tx("HZ", "2025-05-10", domain.TxDeposit, 30000),
		tx("HZ", "2025-06-03", domain.TxWithdrawal, -5000),
	}
	n, err = repo.ReplaceForDate(ctx, date("2025-06-30"), second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := repo.ListByClient(ctx, "HZ", date("2025-01-01"), date("2025-12-31"))
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReplaceForDate_RerunReplaces(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	day := date("2025-05-31")

	_, err := repo.ReplaceForDate(ctx, day, []domain.StandardizedTransaction{
		tx("HZ", "2025-05-10", domain.TxDeposit, 30000),
		tx("HZ", "2025-05-11", domain.TxFee, -25),
	})
	require.NoError(t, err)

	_, err = repo.ReplaceForDate(ctx, day, []domain.StandardizedTransaction{
		tx("HZ", "2025-05-10", domain.TxDeposit, 30000),
	})
	require.NoError(t, err)

	count, err := repo.CountForDate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestExternalFlows(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	qty := decimal.NewFromInt(10)
	buy := tx("HZ", "2025-05-12", domain.TxBuy, -10000)
	buy.Quantity = &qty
	buy.Identifier = "037833100"

	_, err := repo.ReplaceForDate(ctx, date("2025-05-31"), []domain.StandardizedTransaction{
		tx("HZ", "2025-05-01", domain.TxDeposit, 1000), // on the start date, excluded
		tx("HZ", "2025-05-10", domain.TxDeposit, 30000),
		buy,
		tx("HZ", "2025-05-20", domain.TxIncome, 150),
		tx("HZ", "2025-05-31", domain.TxWithdrawal, -5000), // on the end date, included
		tx("AU", "2025-05-15", domain.TxDeposit, 99999),
	})
	require.NoError(t, err)

	flows, err := repo.ExternalFlows(ctx, "HZ", date("2025-05-01"), date("2025-05-31"))
	require.NoError(t, err)
	require.Len(t, flows, 2)

	assert.Equal(t, domain.TxDeposit, flows[0].Type)
	assert.True(t, flows[0].TotalAmount.Equal(decimal.NewFromInt(30000)))
	assert.Equal(t, date("2025-05-10"), flows[0].Date)
	assert.Equal(t, domain.TxWithdrawal, flows[1].Type)
	assert.True(t, flows[1].TotalAmount.Equal(decimal.NewFromInt(-5000)))

	all, err := repo.ListByClient(ctx, "HZ", date("2025-05-01"), date("2025-05-31"))
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.NotNil(t, all[1].Quantity)
	assert.True(t, all[1].Quantity.Equal(qty))
	assert.Nil(t, all[1].Price)
	assert.Equal(t, "037833100", all[1].Identifier)
}

func TestExternalFlows_UndatedScopedBySourceDate(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	undated := tx("HZ", "2025-06-03", domain.TxDeposit, 500000)
	undated.Date = time.Time{}
	_, err := repo.ReplaceForDate(ctx, date("2025-06-30"), []domain.StandardizedTransaction{
		undated,
		tx("HZ", "2025-06-10", domain.TxWithdrawal, -5000),
	})
	require.NoError(t, err)

	flows, err := repo.ExternalFlows(ctx, "HZ", date("2025-05-31"), date("2025-06-30"))
	require.NoError(t, err)
	require.Len(t, flows, 2)
	assert.True(t, flows[0].Date.IsZero(), "undated flows sort first")
	assert.True(t, decimal.NewFromInt(500000).Equal(flows[0].TotalAmount))
	assert.Equal(t, date("2025-06-10"), flows[1].Date)

	// A later period does not see the June statement's undated row
	flows, err = repo.ExternalFlows(ctx, "HZ", date("2025-06-30"), date("2025-07-31"))
	require.NoError(t, err)
	assert.Empty(t, flows)
}
