package preprocess

import (
	"context"
	"sync"

	"github.com/aristath/custodian/internal/domain"
)

// ProgressFunc receives (completed, total, message) after every finished bank.
type ProgressFunc func(current, total int, message string)

// WorkerPool runs bank sub-pipelines in parallel.
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a pool; non-positive sizes default to 4 workers.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &WorkerPool{numWorkers: numWorkers}
}

type bankJob struct {
	index int
	bank  domain.BankCode
}

type bankDone struct {
	index  int
	result *BankResult
}

// Run calls fn once per bank and returns the results in input order. It
// returns only after every bank reached a terminal state.
func (wp *WorkerPool) Run(ctx context.Context, banks []domain.BankCode, fn func(context.Context, domain.BankCode) *BankResult, progress ProgressFunc) []*BankResult {
	if len(banks) == 0 {
		return []*BankResult{}
	}

	jobs := make(chan bankJob, len(banks))
	done := make(chan bankDone, len(banks))

	workers := wp.numWorkers
	if len(banks) < workers {
		workers = len(banks)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				done <- bankDone{index: job.index, result: fn(ctx, job.bank)}
			}
		}()
	}

	for i, bank := range banks {
		jobs <- bankJob{index: i, bank: bank}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(done)
	}()

	results := make([]*BankResult, len(banks))
	completed := 0
	for d := range done {
		results[d.index] = d.result
		completed++
		if progress != nil {
			progress(completed, len(banks), string(d.result.Bank)+" "+string(d.result.Status))
		}
	}
	return results
}
