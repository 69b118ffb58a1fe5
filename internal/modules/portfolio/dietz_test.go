package portfolio

import (
	"errors"
	"testing"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestModifiedDietz_MidpointDeposit(t *testing.T) {
	// 30 day period, deposit at day 15
	result, err := ModifiedDietz("HZ", dec("1000000"), dec("1050000"), day("2025-06-01"), day("2025-07-01"), []Flow{
		{Date: day("2025-06-16"), Amount: dec("30000")},
	})
	require.NoError(t, err)

	assert.True(t, dec("20000").Equal(result.GainLoss), "gain %s", result.GainLoss)
	assert.True(t, dec("30000").Equal(result.NetFlow))
	assert.True(t, dec("15000").Equal(result.WeightedFlow), "weighted %s", result.WeightedFlow)
	assert.InDelta(t, 1.9704, result.Percent, 0.01)
}

func TestModifiedDietz_ZeroDenominator(t *testing.T) {
	result, err := ModifiedDietz("HZ", decimal.Zero, dec("500"), day("2025-06-01"), day("2025-07-01"), nil)
	require.NoError(t, err)
	assert.True(t, dec("500").Equal(result.GainLoss))
	assert.Equal(t, 0.0, result.Percent)
}

func TestModifiedDietz_FlowOnLastDayHasNoWeight(t *testing.T) {
	result, err := ModifiedDietz("HZ", dec("1000"), dec("1600"), day("2025-06-01"), day("2025-07-01"), []Flow{
		{Date: day("2025-07-01"), Amount: dec("500")},
	})
	require.NoError(t, err)
	assert.True(t, result.WeightedFlow.IsZero())
	assert.True(t, dec("100").Equal(result.GainLoss))
	assert.InDelta(t, 10.0, result.Percent, 1e-9)
}

func TestModifiedDietz_Withdrawal(t *testing.T) {
	// a withdrawal one day in weighs 9/10
	result, err := ModifiedDietz("HZ", dec("1000"), dec("550"), day("2025-06-01"), day("2025-06-11"), []Flow{
		{Date: day("2025-06-02"), Amount: dec("-500")},
	})
	require.NoError(t, err)
	assert.True(t, dec("50").Equal(result.GainLoss))
	assert.True(t, dec("-450").Equal(result.WeightedFlow))
	assert.InDelta(t, 50.0/550.0*100, result.Percent, 1e-9)
}

func TestModifiedDietz_InvalidFlows(t *testing.T) {
	tests := []struct {
		name  string
		flows []Flow
		start time.Time
		stop  time.Time
	}{
		{"undated flow", []Flow{{Amount: dec("10")}}, day("2025-06-01"), day("2025-07-01")},
		{"flow before period", []Flow{{Date: day("2025-05-01"), Amount: dec("10")}}, day("2025-06-01"), day("2025-07-01")},
		{"flow on start day", []Flow{{Date: day("2025-06-01"), Amount: dec("10")}}, day("2025-06-01"), day("2025-07-01")},
		{"flow after period", []Flow{{Date: day("2025-07-02"), Amount: dec("10")}}, day("2025-06-01"), day("2025-07-01")},
		{"reversed period", nil, day("2025-07-01"), day("2025-06-01")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ModifiedDietz("HZ", dec("100"), dec("100"), tt.start, tt.stop, tt.flows)
			var flowErr *domain.InvalidFlowDataError
			require.True(t, errors.As(err, &flowErr), "got %v", err)
			assert.Equal(t, "HZ", flowErr.Client)
		})
	}
}

func TestFlowsFrom(t *testing.T) {
	flows := FlowsFrom([]domain.StandardizedTransaction{
		{Type: domain.TxDeposit, Date: day("2025-06-02"), TotalAmount: dec("100")},
		{Type: domain.TxBuy, Date: day("2025-06-03"), TotalAmount: dec("-50")},
		{Type: domain.TxOther, Date: day("2025-06-04"), TotalAmount: dec("7")},
		{Type: domain.TxWithdrawal, Date: day("2025-06-05"), TotalAmount: dec("-20")},
	})
	require.Len(t, flows, 2)
	assert.True(t, dec("-20").Equal(flows[1].Amount))
}
