package portfolio

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/events"
	"github.com/aristath/custodian/internal/modules/cash_flows"
	"github.com/aristath/custodian/internal/modules/standardized"
	testhelpers "github.com/aristath/custodian/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	service      *Service
	snapshots    *SnapshotRepository
	transactions *cash_flows.TransactionRepository
	paths        standardized.Paths
	events       *events.Manager
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db, cleanup := testhelpers.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	root := t.TempDir()
	paths := standardized.Paths{
		InputRoot:  filepath.Join(root, "input"),
		OutputRoot: filepath.Join(root, "output"),
	}
	snapshots := NewSnapshotRepository(db.Conn(), log)
	transactions := cash_flows.NewTransactionRepository(db.Conn(), log)
	em := events.NewManager(log)
	return &serviceFixture{
		service:      NewService(snapshots, transactions, paths, em, log),
		snapshots:    snapshots,
		transactions: transactions,
		paths:        paths,
		events:       em,
	}
}

func cash(client, amount string) domain.StandardizedSecurity {
	return domain.StandardizedSecurity{
		Bank:        domain.BankJPM,
		ClientCode:  client,
		AccountCode: client + "-JPM",
		Name:        "USD Cash",
		Quantity:    dec(amount),
		Price:       dec("1"),
		MarketValue: dec(amount),
		AssetType:   domain.AssetCash,
		Currency:    "USD",
	}
}

func deposit(client, date, amount string) domain.StandardizedTransaction {
	return domain.StandardizedTransaction{
		Bank:        domain.BankJPM,
		ClientCode:  client,
		AccountCode: client + "-JPM",
		Date:        day(date),
		Type:        domain.TxDeposit,
		NativeType:  "ACH Deposit",
		TotalAmount: dec(amount),
	}
}

func TestService_Calculate_FirstThenSecond(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	ch, unsubscribe := f.events.Subscribe(4, events.SnapshotCalculated)
	defer unsubscribe()

	calc, err := f.service.Calculate(ctx, "HZ", day("2025-06-01"), []domain.StandardizedSecurity{cash("HZ", "1000000")})
	require.NoError(t, err)
	require.Error(t, calc.Warning)
	assert.Equal(t, "MissingPriorSnapshotWarning", domain.ErrorKind(calc.Warning))
	assert.Equal(t, 0.0, calc.Snapshot.Metrics.RealGainLossPercent)

	ev := <-ch
	data, ok := ev.Data.(*events.SnapshotCalculatedData)
	require.True(t, ok)
	assert.Equal(t, "HZ", data.ClientCode)
	assert.NotEmpty(t, data.Warning)

	_, err = f.transactions.ReplaceForDate(ctx, day("2025-07-01"), []domain.StandardizedTransaction{
		deposit("HZ", "2025-06-16", "30000"),
	})
	require.NoError(t, err)

	calc, err = f.service.Calculate(ctx, "HZ", day("2025-07-01"), []domain.StandardizedSecurity{cash("HZ", "1050000")})
	require.NoError(t, err)
	assert.NoError(t, calc.Warning)

	m := calc.Snapshot.Metrics
	assert.True(t, dec("20000").Equal(m.RealGainLossDollar), "period gain %s", m.RealGainLossDollar)
	assert.InDelta(t, 1.9704, m.RealGainLossPercent, 0.01)
	assert.True(t, dec("30000").Equal(m.NetExternalFlow))
	assert.Equal(t, m.RealGainLossPercent, m.InceptionGainLossPercent)

	stored, err := f.service.Snapshot(ctx, "HZ", day("2025-07-01"))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, dec("1050000").Equal(stored.Metrics.TotalValue))

	history, err := f.service.History(ctx, "HZ")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestService_Calculate_InceptionSpansAllSnapshots(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Calculate(ctx, "HZ", day("2025-05-01"), []domain.StandardizedSecurity{cash("HZ", "1000")})
	require.NoError(t, err)
	_, err = f.service.Calculate(ctx, "HZ", day("2025-06-01"), []domain.StandardizedSecurity{cash("HZ", "1100")})
	require.NoError(t, err)
	calc, err := f.service.Calculate(ctx, "HZ", day("2025-07-01"), []domain.StandardizedSecurity{cash("HZ", "1210")})
	require.NoError(t, err)

	m := calc.Snapshot.Metrics
	assert.InDelta(t, 10.0, m.RealGainLossPercent, 1e-9)
	assert.InDelta(t, 21.0, m.InceptionGainLossPercent, 1e-9)
	assert.True(t, dec("210").Equal(m.InceptionGainLossDollar))
}

func TestService_CalculateDate(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	date := day("2025-07-24")

	require.NoError(t, standardized.WriteSecurities(f.paths.SecuritiesFile(date), []domain.StandardizedSecurity{
		cash("LP", "500"),
		cash("HZ", "1000"),
		cash("HZ", "250"),
	}))
	require.NoError(t, standardized.WriteTransactions(f.paths.TransactionsFile(date), []domain.StandardizedTransaction{
		deposit("HZ", "2025-07-20", "100"),
	}))

	result, err := f.service.CalculateDate(ctx, date)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TransactionsImported)
	assert.Equal(t, []string{"HZ", "LP"}, result.Succeeded())
	assert.Empty(t, result.Failed())
	assert.Equal(t, "1250.00", result.Clients[0].TotalValue)
	assert.NotEmpty(t, result.Clients[0].Warning)

	snaps, err := f.snapshots.ListForDate(ctx, date)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestService_CalculateDate_UnknownClient(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	date := day("2025-07-24")

	require.NoError(t, standardized.WriteSecurities(f.paths.SecuritiesFile(date), []domain.StandardizedSecurity{cash("HZ", "10")}))
	require.NoError(t, standardized.WriteTransactions(f.paths.TransactionsFile(date), nil))

	result, err := f.service.CalculateDate(ctx, date, "HZ", "XX")
	require.NoError(t, err)
	assert.Equal(t, []string{"HZ"}, result.Succeeded())
	assert.Equal(t, []string{"XX"}, result.Failed())
}

func TestService_CalculateDate_NoOutput(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.CalculateDate(context.Background(), day("2025-07-24"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no standardized output")
}

func TestService_CalculateDate_MultiBankClients(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	date := testhelpers.FixtureDate

	require.NoError(t, standardized.WriteSecurities(f.paths.SecuritiesFile(date), testhelpers.NewSecurityFixtures()))
	require.NoError(t, standardized.WriteTransactions(f.paths.TransactionsFile(date), testhelpers.NewTransactionFixtures()))

	result, err := f.service.CalculateDate(ctx, date)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TransactionsImported)
	assert.Equal(t, []string{"HZ", "LP"}, result.Succeeded())
	assert.Equal(t, "34900.00", result.Clients[0].TotalValue)
	assert.Equal(t, "6500.00", result.Clients[1].TotalValue)
}

func TestService_CalculateDate_UndatedDepositFailsClient(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Calculate(ctx, "HZ", day("2025-06-30"), []domain.StandardizedSecurity{cash("HZ", "1000000")})
	require.NoError(t, err)
	_, err = f.service.Calculate(ctx, "LP", day("2025-06-30"), []domain.StandardizedSecurity{cash("LP", "1000")})
	require.NoError(t, err)

	date := day("2025-07-31")
	undated := deposit("HZ", "2025-07-15", "500000")
	undated.Date = time.Time{}
	require.NoError(t, standardized.WriteSecurities(f.paths.SecuritiesFile(date), []domain.StandardizedSecurity{
		cash("HZ", "1500000"),
		cash("LP", "1000"),
	}))
	require.NoError(t, standardized.WriteTransactions(f.paths.TransactionsFile(date), []domain.StandardizedTransaction{undated}))

	result, err := f.service.CalculateDate(ctx, date)
	require.NoError(t, err)

	assert.Equal(t, []string{"LP"}, result.Succeeded())
	assert.Equal(t, []string{"HZ"}, result.Failed())
	assert.Equal(t, "InvalidFlowDataError", result.Clients[0].ErrorKind)

	stored, err := f.service.Snapshot(ctx, "HZ", date)
	require.NoError(t, err)
	assert.Nil(t, stored, "no snapshot is written for a client with an undated flow")
}
