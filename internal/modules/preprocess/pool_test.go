package preprocess

import (
	"context"
	"sync"
	"testing"

	"github.com/aristath/custodian/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestNewWorkerPool(t *testing.T) {
	tests := []struct {
		name            string
		numWorkers      int
		expectedWorkers int
	}{
		{"positive workers", 3, 3},
		{"zero workers defaults to 4", 0, 4},
		{"negative workers defaults to 4", -2, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.numWorkers)
			assert.Equal(t, tt.expectedWorkers, pool.numWorkers)
		})
	}
}

func TestWorkerPool_Run(t *testing.T) {
	pool := NewWorkerPool(2)
	input := []domain.BankCode{domain.BankJPM, domain.BankCS, domain.BankHSBC, domain.BankIDB}

	var mu sync.Mutex
	seen := make(map[domain.BankCode]int)
	var calls []int

	results := pool.Run(context.Background(), input, func(_ context.Context, bank domain.BankCode) *BankResult {
		mu.Lock()
		seen[bank]++
		mu.Unlock()
		status := BankSucceeded
		if bank == domain.BankCS {
			status = BankFailed
		}
		return &BankResult{Bank: bank, Status: status}
	}, func(current, total int, _ string) {
		assert.Equal(t, 4, total)
		calls = append(calls, current)
	})

	assert.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, input[i], r.Bank, "results keep input order")
		assert.Equal(t, 1, seen[r.Bank])
	}
	assert.Equal(t, BankFailed, results[1].Status)
	assert.Equal(t, []int{1, 2, 3, 4}, calls)
}

func TestWorkerPool_RunEmpty(t *testing.T) {
	results := NewWorkerPool(2).Run(context.Background(), nil, nil, nil)
	assert.Empty(t, results)
}
