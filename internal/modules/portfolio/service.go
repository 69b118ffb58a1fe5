package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/events"
	"github.com/aristath/custodian/internal/modules/cash_flows"
	"github.com/aristath/custodian/internal/modules/standardized"
	"github.com/aristath/custodian/internal/utils"
	"github.com/rs/zerolog"
)

// ClientStatus is the outcome of one client's calculation.
type ClientStatus string

const (
	ClientSucceeded ClientStatus = "succeeded"
	ClientFailed    ClientStatus = "failed"
)

// ClientResult reports one client of a date run.
type ClientResult struct {
	ClientCode string       `json:"client_code"`
	Status     ClientStatus `json:"status"`
	TotalValue string       `json:"total_value,omitempty"`
	Warning    string       `json:"warning,omitempty"`
	ErrorKind  string       `json:"error_kind,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// DateResult is the structured outcome of calculating every client of a date.
type DateResult struct {
	Date                 time.Time       `json:"date"`
	Clients              []*ClientResult `json:"clients"`
	TransactionsImported int             `json:"transactions_imported"`
}

// Succeeded lists the clients whose snapshot was written.
func (r *DateResult) Succeeded() []string {
	var out []string
	for _, c := range r.Clients {
		if c.Status == ClientSucceeded {
			out = append(out, c.ClientCode)
		}
	}
	return out
}

// Failed lists the clients whose snapshot was not written.
func (r *DateResult) Failed() []string {
	var out []string
	for _, c := range r.Clients {
		if c.Status == ClientFailed {
			out = append(out, c.ClientCode)
		}
	}
	return out
}

// Service calculates and stores client snapshots. At most one calculation
// runs per (client, date).
type Service struct {
	snapshots    *SnapshotRepository
	transactions *cash_flows.TransactionRepository
	paths        standardized.Paths
	events       *events.Manager
	locks        *utils.KeyedMutex
	log          zerolog.Logger
}

// NewService creates the portfolio calculation service. events may be nil.
func NewService(
	snapshots *SnapshotRepository,
	transactions *cash_flows.TransactionRepository,
	paths standardized.Paths,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Service {
	return &Service{
		snapshots:    snapshots,
		transactions: transactions,
		paths:        paths,
		events:       eventManager,
		locks:        utils.NewKeyedMutex(),
		log:          log.With().Str("service", "portfolio").Logger(),
	}
}

// Calculation is a stored snapshot and the non-fatal warning raised while
// computing it, if any.
type Calculation struct {
	Snapshot *domain.PortfolioSnapshot
	Warning  error
}

// Calculate computes and stores client's snapshot at date from its holdings.
// Flows come from the stored transactions. A missing prior snapshot is
// reported as the calculation's warning; the snapshot is still written.
// InvalidFlowDataError leaves any earlier snapshot of the date untouched.
func (s *Service) Calculate(ctx context.Context, client string, date time.Time, securities []domain.StandardizedSecurity) (*Calculation, error) {
	date = domain.TruncateDay(date)
	unlock := s.locks.Lock(client + "|" + date.Format(domain.DateLayout))
	defer unlock()

	log := s.log.With().Str("client", client).Str("date", date.Format(domain.DateLayout)).Logger()

	previous, err := s.snapshots.Previous(ctx, client, date)
	if err != nil {
		return nil, &domain.StorageError{Op: "load previous snapshot", Err: err}
	}
	first, err := s.snapshots.First(ctx, client, date)
	if err != nil {
		return nil, &domain.StorageError{Op: "load first snapshot", Err: err}
	}

	in := Input{
		ClientCode: client,
		Date:       date,
		Securities: securities,
		Previous:   previous,
		First:      first,
	}

	var warning error
	if previous == nil {
		warning = &domain.MissingPriorSnapshotWarning{Client: client, Date: date}
		log.Warn().Err(warning).Msg("First snapshot, this-period return is zero")
	} else {
		periodFlows, err := s.transactions.ExternalFlows(ctx, client, previous.SnapshotDate, date)
		if err != nil {
			return nil, err
		}
		inceptionFlows, err := s.transactions.ExternalFlows(ctx, client, first.SnapshotDate, date)
		if err != nil {
			return nil, err
		}
		in.PeriodFlows = FlowsFrom(periodFlows)
		in.InceptionFlows = FlowsFrom(inceptionFlows)
	}

	metrics, err := Calculate(in)
	if err != nil {
		log.Error().Err(err).Msg("Calculation failed, snapshot not written")
		return nil, err
	}

	snap := &domain.PortfolioSnapshot{
		ClientCode:   client,
		SnapshotDate: date,
		Metrics:      *metrics,
		Positions:    Positions(securities),
	}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		return nil, err
	}

	log.Info().
		Str("total_value", metrics.TotalValue.StringFixed(2)).
		Float64("period_return", metrics.RealGainLossPercent).
		Float64("inception_return", metrics.InceptionGainLossPercent).
		Int("positions", metrics.PositionCount).
		Msg("Snapshot calculated")

	data := &events.SnapshotCalculatedData{
		ClientCode: client,
		Date:       date.Format(domain.DateLayout),
		TotalValue: metrics.TotalValue.StringFixed(2),
	}
	if warning != nil {
		data.Warning = warning.Error()
	}
	s.events.EmitTyped(events.SnapshotCalculated, "portfolio", data)

	return &Calculation{Snapshot: snap, Warning: warning}, nil
}

// CalculateDate reads date's standardized files, imports its transactions
// and calculates every client present (or only the given clients). A
// client's failure is reported and never stops the others; storage failures
// abort the run.
func (s *Service) CalculateDate(ctx context.Context, date time.Time, clients ...string) (*DateResult, error) {
	date = domain.TruncateDay(date)
	if !s.paths.HasOutput(date) {
		return nil, fmt.Errorf("no standardized output for %s", date.Format(domain.DateLayout))
	}

	securities, err := standardized.ReadSecurities(s.paths.SecuritiesFile(date))
	if err != nil {
		return nil, fmt.Errorf("failed to read standardized securities: %w", err)
	}
	transactions, err := standardized.ReadTransactions(s.paths.TransactionsFile(date))
	if err != nil {
		return nil, fmt.Errorf("failed to read standardized transactions: %w", err)
	}

	result := &DateResult{Date: date}
	result.TransactionsImported, err = s.transactions.ReplaceForDate(ctx, date, transactions)
	if err != nil {
		return nil, err
	}

	byClient := make(map[string][]domain.StandardizedSecurity)
	for _, sec := range securities {
		byClient[sec.ClientCode] = append(byClient[sec.ClientCode], sec)
	}

	wanted := clients
	if len(wanted) == 0 {
		for c := range byClient {
			wanted = append(wanted, c)
		}
	}
	sort.Strings(wanted)

	for _, client := range wanted {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		cr := &ClientResult{ClientCode: client, Status: ClientFailed}
		result.Clients = append(result.Clients, cr)

		holdings, ok := byClient[client]
		if !ok {
			cr.ErrorKind = "error"
			cr.Error = fmt.Sprintf("no holdings for %s on %s", client, date.Format(domain.DateLayout))
			continue
		}

		calc, err := s.Calculate(ctx, client, date, holdings)
		if err != nil {
			if domain.IsFatal(err) {
				return result, err
			}
			cr.ErrorKind = domain.ErrorKind(err)
			cr.Error = err.Error()
			continue
		}
		cr.Status = ClientSucceeded
		cr.TotalValue = calc.Snapshot.Metrics.TotalValue.StringFixed(2)
		if calc.Warning != nil {
			cr.Warning = calc.Warning.Error()
		}
	}

	s.log.Info().
		Str("date", date.Format(domain.DateLayout)).
		Int("succeeded", len(result.Succeeded())).
		Int("failed", len(result.Failed())).
		Int("transactions", result.TransactionsImported).
		Msg("Calculated snapshots for date")

	return result, nil
}

// Snapshot returns client's stored snapshot at date, or nil.
func (s *Service) Snapshot(ctx context.Context, client string, date time.Time) (*domain.PortfolioSnapshot, error) {
	return s.snapshots.Get(ctx, client, date)
}

// History returns client's dated values, oldest first.
func (s *Service) History(ctx context.Context, client string) ([]domain.HistoryPoint, error) {
	return s.snapshots.History(ctx, client)
}
