package preprocess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/events"
	"github.com/aristath/custodian/internal/modules/banks"
	"github.com/aristath/custodian/internal/modules/detection"
	"github.com/aristath/custodian/internal/modules/mapping"
	"github.com/aristath/custodian/internal/modules/standardized"
	"github.com/aristath/custodian/internal/modules/transform"
	"github.com/aristath/custodian/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config locates the pipeline's files.
type Config struct {
	Paths        standardized.Paths
	MappingsFile string // empty runs without account mappings
	Workers      int
}

// Options control one Process call.
type Options struct {
	Force    bool // rebuild output that already exists
	Progress ProgressFunc
}

// Preprocessor is the per-date orchestrator.
type Preprocessor struct {
	cfg      Config
	registry *banks.Registry
	detector *detection.Detector
	runs     *RunRepository
	events   *events.Manager
	pool     *WorkerPool
	locks    *utils.KeyedMutex
	log      zerolog.Logger

	mu     sync.RWMutex
	states map[string]State
}

// NewPreprocessor creates the orchestrator. events may be nil.
func NewPreprocessor(
	cfg Config,
	registry *banks.Registry,
	detector *detection.Detector,
	runs *RunRepository,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Preprocessor {
	return &Preprocessor{
		cfg:      cfg,
		registry: registry,
		detector: detector,
		runs:     runs,
		events:   eventManager,
		pool:     NewWorkerPool(cfg.Workers),
		locks:    utils.NewKeyedMutex(),
		log:      log.With().Str("service", "preprocess").Logger(),
		states:   make(map[string]State),
	}
}

// Paths returns the directory layout the preprocessor writes to.
func (p *Preprocessor) Paths() standardized.Paths {
	return p.cfg.Paths
}

// State returns the in-flight state of date, StateIdle when no run is active.
func (p *Preprocessor) State(date time.Time) State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.states[dateKey(date)]; ok {
		return s
	}
	return StateIdle
}

// LastResult returns the stored result of date, or nil when it never ran.
func (p *Preprocessor) LastResult(ctx context.Context, date time.Time) (*BatchResult, error) {
	return p.runs.Get(ctx, domain.TruncateDay(date))
}

// Runs returns the most recent stored results, newest date first.
func (p *Preprocessor) Runs(ctx context.Context, limit int) ([]*BatchResult, error) {
	return p.runs.List(ctx, limit)
}

// Process runs every bank present in date's input directory and merges the
// successful banks into the date's standardized files. Bank failures are
// reported in the result and never abort siblings. When the output already
// exists and opts.Force is false, nothing is written and the stored result is
// returned with Skipped set. The returned error is non-nil only for storage
// failures and cancellation.
func (p *Preprocessor) Process(ctx context.Context, date time.Time, opts Options) (*BatchResult, error) {
	date = domain.TruncateDay(date)
	key := dateKey(date)

	unlock := p.locks.Lock(key)
	defer unlock()

	if !opts.Force && p.cfg.Paths.HasOutput(date) {
		return p.existing(ctx, date)
	}

	result := &BatchResult{
		ID:        uuid.NewString(),
		Date:      date,
		State:     StateIdle,
		StartedAt: time.Now(),
	}
	timer := utils.NewTimer("preprocess "+key, p.log)
	defer func() {
		timer.StopWith(map[string]interface{}{
			"banks": len(result.Banks),
			"state": string(result.State),
		})
		p.clearState(key)
	}()

	p.transition(result, StateDetecting)
	scan, err := p.detect(date, result)
	if err != nil {
		return p.finish(ctx, result, err)
	}

	mappings, err := p.loadMappings()
	if err != nil {
		return p.finish(ctx, result, err)
	}

	bankCodes := scan.Banks()
	if len(bankCodes) == 0 {
		return p.finish(ctx, result, fmt.Errorf("no bank files detected for %s", key))
	}
	byBank := scan.ByBank()

	p.transition(result, StateProcessing)
	result.Banks = p.pool.Run(ctx, bankCodes, func(ctx context.Context, bank domain.BankCode) *BankResult {
		return p.runBank(ctx, date, bank, byBank[bank], mappings)
	}, opts.Progress)

	if err := ctx.Err(); err != nil {
		return p.finish(ctx, result, err)
	}
	if len(result.Succeeded()) == 0 {
		return p.finish(ctx, result, fmt.Errorf("all %d banks failed", len(result.Banks)))
	}

	if err := p.merge(date, result); err != nil {
		return p.finish(ctx, result, err)
	}
	p.transition(result, StateMerged)

	return p.finish(ctx, result, nil)
}

// existing builds the no-op result of a date whose output is present.
func (p *Preprocessor) existing(ctx context.Context, date time.Time) (*BatchResult, error) {
	stored, err := p.runs.Get(ctx, date)
	if err != nil {
		p.log.Warn().Err(err).Msg("Failed to read stored batch result")
	}

	result := stored
	if result == nil {
		now := time.Now()
		result = &BatchResult{
			ID:               uuid.NewString(),
			Date:             date,
			State:            StateComplete,
			SecuritiesFile:   p.cfg.Paths.SecuritiesFile(date),
			TransactionsFile: p.cfg.Paths.TransactionsFile(date),
			StartedAt:        now,
			FinishedAt:       now,
		}
	}
	result.Skipped = true

	p.log.Info().Str("date", dateKey(date)).Msg("Standardized output exists, skipping")
	p.events.EmitTyped(events.BatchCompleted, "preprocess", result.event())
	return result, nil
}

// detect scans the input directory and quarantines what it cannot classify.
func (p *Preprocessor) detect(date time.Time, result *BatchResult) (detection.ScanResult, error) {
	dir, err := p.cfg.Paths.InputDirFor(date)
	if err != nil {
		return detection.ScanResult{}, err
	}
	scan, err := p.detector.Scan(dir)
	if err != nil {
		return detection.ScanResult{}, err
	}

	quarantine := p.cfg.Paths.StageDir(date, standardized.DirQuarantine)
	for _, rej := range scan.Rejected {
		result.Quarantined = append(result.Quarantined, Quarantined{
			File:   filepath.Base(rej.Path),
			Reason: rej.Reason(),
		})
		if err := copyFile(rej.Path, filepath.Join(quarantine, filepath.Base(rej.Path))); err != nil {
			p.log.Warn().Err(err).Str("file", rej.Path).Msg("Failed to quarantine file")
			continue
		}
		p.log.Warn().Str("file", filepath.Base(rej.Path)).Str("reason", rej.Reason()).Msg("File quarantined")
	}
	return scan, nil
}

func (p *Preprocessor) loadMappings() (*mapping.Table, error) {
	if p.cfg.MappingsFile == "" {
		p.log.Warn().Msg("No mappings file configured, accounts stay unmapped")
		return mapping.NewTable(nil), nil
	}
	return mapping.Load(p.cfg.MappingsFile, p.log)
}

// runBank runs one bank's stages. It never panics and always returns a
// terminal result.
func (p *Preprocessor) runBank(ctx context.Context, date time.Time, bank domain.BankCode, files []domain.RawBankFile, mappings *mapping.Table) (res *BankResult) {
	start := time.Now()
	log := p.log.With().Str("bank", bank.String()).Logger()

	res = &BankResult{Bank: bank, Status: BankFailed}
	for _, f := range files {
		res.Files = append(res.Files, f.Name)
	}

	stage := ""
	fail := func(err error) *BankResult {
		res.Status = BankFailed
		res.Stage = stage
		res.ErrorKind = domain.ErrorKind(err)
		res.Error = err.Error()
		log.Error().Err(err).Str("stage", stage).Str("kind", res.ErrorKind).Msg("Bank pipeline failed")
		return res
	}
	defer func() {
		if r := recover(); r != nil {
			fail(fmt.Errorf("panic: %v", r))
		}
		res.Duration = time.Since(start)
	}()

	adapters, err := p.registry.Adapters(bank, mappings)
	if err != nil {
		return fail(err)
	}

	if adapters.Enricher != nil {
		stage = banks.StageEnrich
		enriched, report, err := adapters.Enricher.Enrich(ctx, files, p.cfg.Paths.BankStageDir(date, standardized.DirEnriched, bank))
		if err != nil {
			return fail(err)
		}
		res.Enrichment = report
		if report.Unmatched > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%d of %d rows had no unit cost match", report.Unmatched, report.Rows))
		}
		files = enriched
	}

	input := transform.Input{Date: date}
	if adapters.Combiner != nil {
		stage = banks.StageCombine
		combined, err := adapters.Combiner.Combine(ctx, files, date, p.cfg.Paths.BankStageDir(date, standardized.DirCombined, bank))
		if err != nil {
			return fail(err)
		}
		res.Combination = combined
		for _, acct := range combined.Skipped {
			res.Warnings = append(res.Warnings, "missing account file: "+acct)
		}
		input.Securities = []string{combined.Securities}
		input.Transactions = []string{combined.Transactions}
	} else {
		for _, f := range files {
			switch f.Kind {
			case domain.KindSecurities:
				input.Securities = append(input.Securities, f.Path)
			case domain.KindTransactions:
				input.Transactions = append(input.Transactions, f.Path)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	stage = banks.StageTransform
	out, err := adapters.Transformer.Transform(ctx, input)
	if err != nil {
		return fail(err)
	}

	res.Transform = &out.Report
	if out.Report.LookupDegraded != nil {
		res.Warnings = append(res.Warnings, out.Report.LookupDegraded.Error())
	}
	if out.Report.Unmapped > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d rows skipped for unmapped accounts", out.Report.Unmapped))
	}
	if out.Report.Undated > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d transactions without a date, %d of them external flows kept undated",
			out.Report.Undated, out.Report.UndatedFlows))
	}

	stage = ""
	res.output = out
	res.Status = BankSucceeded
	res.SecurityRows = len(out.Securities)
	res.TransactionRows = len(out.Transactions)

	log.Info().
		Int("securities", res.SecurityRows).
		Int("transactions", res.TransactionRows).
		Int("warnings", len(res.Warnings)).
		Msg("Bank pipeline complete")
	return res
}

// merge concatenates the successful banks, in bank order, into the date's
// standardized files.
func (p *Preprocessor) merge(date time.Time, result *BatchResult) error {
	var securities []domain.StandardizedSecurity
	var transactions []domain.StandardizedTransaction
	for _, b := range result.Banks {
		if b.output == nil {
			continue
		}
		securities = append(securities, b.output.Securities...)
		transactions = append(transactions, b.output.Transactions...)
	}

	if err := p.cfg.Paths.WriteOutput(date, securities, transactions); err != nil {
		return &domain.StorageError{Op: "write standardized output", Err: err}
	}

	result.SecuritiesFile = p.cfg.Paths.SecuritiesFile(date)
	result.TransactionsFile = p.cfg.Paths.TransactionsFile(date)
	result.SecurityRows = len(securities)
	result.TransactionRows = len(transactions)
	return nil
}

// finish records the terminal state, persists the result and emits the
// batch event. cause is nil on success.
func (p *Preprocessor) finish(ctx context.Context, result *BatchResult, cause error) (*BatchResult, error) {
	result.FinishedAt = time.Now()
	if cause != nil {
		result.Error = cause.Error()
		p.transition(result, StateFailed)
	} else {
		p.transition(result, StateComplete)
	}

	event := p.log.Info()
	if cause != nil {
		event = p.log.Error().Err(cause)
	}
	event.
		Str("batch", result.ID).
		Str("date", dateKey(result.Date)).
		Int("succeeded", len(result.Succeeded())).
		Int("failed", len(result.Failed())).
		Int("quarantined", len(result.Quarantined)).
		Int("securities", result.SecurityRows).
		Int("transactions", result.TransactionRows).
		Msg("Preprocess batch finished")

	if err := p.runs.Save(context.WithoutCancel(ctx), result); err != nil {
		return result, err
	}
	p.events.EmitTyped(events.BatchCompleted, "preprocess", result.event())

	if cause != nil && (domain.IsFatal(cause) || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded)) {
		return result, cause
	}
	return result, nil
}

func (p *Preprocessor) transition(result *BatchResult, state State) {
	result.State = state
	p.mu.Lock()
	p.states[dateKey(result.Date)] = state
	p.mu.Unlock()
	p.log.Debug().Str("date", dateKey(result.Date)).Str("state", string(state)).Msg("Batch state changed")
}

func (p *Preprocessor) clearState(key string) {
	p.mu.Lock()
	delete(p.states, key)
	p.mu.Unlock()
}

func dateKey(date time.Time) string {
	return date.Format(domain.DateLayout)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
