// Package enrichment joins a bank's securities statements with its unit-cost
// reference files to fill in cost basis before combination and transformation.
package enrichment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/tabular"
	"github.com/rs/zerolog"
)

// Default unmatched-row ratios. Above Warn a warning is logged; above Fail
// the bank's pipeline fails.
const (
	DefaultWarnThreshold = 0.10
	DefaultFailThreshold = 0.50
)

// Field copies one reference column into the securities table.
type Field struct {
	Source  string // column in the unit-cost file
	Target  string // column written into the securities file
	PerUnit bool   // multiply the reference value by the row quantity
}

// Fallback fills Target from another securities column when a row has no match.
type Fallback struct {
	Target string
	From   string
}

// Config describes how one bank's files are joined.
type Config struct {
	Bank           domain.BankCode
	SecuritiesKey  []string // join column candidates in the securities file
	ReferenceKey   []string // join column candidates in the unit-cost file
	AccountColumn  []string // also join on account when both files carry it
	QuantityColumn []string
	Fields         []Field
	Fallback       *Fallback
	NumberFormat   tabular.NumberFormat
	HeaderRow      int // header row of both raw files
}

// Thresholds bounds the tolerated share of unmatched rows.
type Thresholds struct {
	Warn float64
	Fail float64
}

// Report summarises one enrichment run.
type Report struct {
	Scopes         int     `json:"scopes"`
	Rows           int     `json:"rows"`
	Matched        int     `json:"matched"`
	Unmatched      int     `json:"unmatched"`
	FallbackFilled int     `json:"fallback_filled"`
	UnmatchedRatio float64 `json:"unmatched_ratio"`
}

// Enricher joins securities with unit-cost files for one bank.
type Enricher struct {
	cfg        Config
	thresholds Thresholds
	log        zerolog.Logger
}

// NewEnricher creates an enricher for cfg.Bank.
func NewEnricher(cfg Config, thresholds Thresholds, log zerolog.Logger) *Enricher {
	if thresholds.Fail <= 0 {
		thresholds.Fail = DefaultFailThreshold
	}
	if thresholds.Warn <= 0 {
		thresholds.Warn = DefaultWarnThreshold
	}
	return &Enricher{
		cfg:        cfg,
		thresholds: thresholds,
		log:        log.With().Str("component", "enricher").Str("bank", string(cfg.Bank)).Logger(),
	}
}

// Bank returns the bank this enricher serves.
func (e *Enricher) Bank() domain.BankCode {
	return e.cfg.Bank
}

// scope groups files of one client account, or of the whole bank for bank-level files.
type scope struct {
	client  string
	account string
}

func (s scope) String() string {
	if s.client == "" && s.account == "" {
		return "bank-level"
	}
	return s.client + "/" + s.account
}

// Enrich writes an enriched copy of every securities file into outDir and
// returns the file set for the next stage: enriched securities files plus the
// untouched transactions files. Unit-cost files are consumed. Inputs are never
// modified.
func (e *Enricher) Enrich(ctx context.Context, files []domain.RawBankFile, outDir string) ([]domain.RawBankFile, *Report, error) {
	securities := make(map[scope]domain.RawBankFile)
	unitcosts := make(map[scope]domain.RawBankFile)
	var passthrough []domain.RawBankFile

	for _, f := range files {
		if f.Bank != e.cfg.Bank {
			continue
		}
		sc := scope{client: f.Client, account: f.Account}
		switch f.Kind {
		case domain.KindSecurities:
			if prev, dup := securities[sc]; dup {
				return nil, nil, &domain.EnrichmentError{
					Bank: e.cfg.Bank,
					File: f.Name,
					Err:  fmt.Errorf("duplicate securities file for %s (also %s)", sc, prev.Name),
				}
			}
			securities[sc] = f
		case domain.KindUnitCost:
			unitcosts[sc] = f
		default:
			passthrough = append(passthrough, f)
		}
	}

	if len(securities) == 0 {
		return nil, nil, &domain.EnrichmentError{Bank: e.cfg.Bank, Err: fmt.Errorf("no securities files")}
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create enriched directory: %w", err)
	}

	scopes := make([]scope, 0, len(securities))
	for sc := range securities {
		scopes = append(scopes, sc)
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].String() < scopes[j].String() })

	report := &Report{}
	out := make([]domain.RawBankFile, 0, len(securities)+len(passthrough))

	for _, sc := range scopes {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		secFile := securities[sc]
		refFile, ok := unitcosts[sc]
		if !ok {
			// Bank-level unit-cost files serve every account
			refFile, ok = unitcosts[scope{}]
		}
		if !ok {
			return nil, nil, &domain.EnrichmentError{
				Bank: e.cfg.Bank,
				File: secFile.Name,
				Err:  fmt.Errorf("missing unit cost file for %s", sc),
			}
		}

		enriched, err := e.enrichFile(secFile, refFile, outDir, report)
		if err != nil {
			return nil, nil, err
		}
		report.Scopes++
		out = append(out, enriched)
	}

	if report.Rows > 0 {
		report.UnmatchedRatio = float64(report.Unmatched) / float64(report.Rows)
	}

	event := e.log.Info()
	if report.UnmatchedRatio > e.thresholds.Warn {
		event = e.log.Warn()
	}
	event.
		Int("scopes", report.Scopes).
		Int("rows", report.Rows).
		Int("unmatched", report.Unmatched).
		Int("fallback_filled", report.FallbackFilled).
		Float64("unmatched_ratio", report.UnmatchedRatio).
		Msg("Enrichment finished")

	if report.UnmatchedRatio > e.thresholds.Fail {
		return nil, report, &domain.EnrichmentError{
			Bank:           e.cfg.Bank,
			UnmatchedRatio: report.UnmatchedRatio,
			Err:            fmt.Errorf("unmatched ratio above %.2f", e.thresholds.Fail),
		}
	}

	return append(out, passthrough...), report, nil
}

// enrichFile joins one securities file with its reference file and writes the result.
func (e *Enricher) enrichFile(secFile, refFile domain.RawBankFile, outDir string, report *Report) (domain.RawBankFile, error) {
	opts := tabular.ReadOptions{HeaderRow: e.cfg.HeaderRow}

	sec, err := tabular.ReadFile(secFile.Path, opts)
	if err != nil {
		return domain.RawBankFile{}, &domain.EnrichmentError{Bank: e.cfg.Bank, File: secFile.Name, Err: err}
	}
	ref, err := tabular.ReadFile(refFile.Path, opts)
	if err != nil {
		return domain.RawBankFile{}, &domain.EnrichmentError{Bank: e.cfg.Bank, File: refFile.Name, Err: err}
	}

	secKey, ok := sec.FindColumn(e.cfg.SecuritiesKey...)
	if !ok {
		return domain.RawBankFile{}, &domain.EnrichmentError{
			Bank: e.cfg.Bank,
			File: secFile.Name,
			Err:  fmt.Errorf("join column not found (tried %s)", strings.Join(e.cfg.SecuritiesKey, ", ")),
		}
	}
	refKey, ok := ref.FindColumn(e.cfg.ReferenceKey...)
	if !ok {
		return domain.RawBankFile{}, &domain.EnrichmentError{
			Bank: e.cfg.Bank,
			File: refFile.Name,
			Err:  fmt.Errorf("join column not found (tried %s)", strings.Join(e.cfg.ReferenceKey, ", ")),
		}
	}
	for _, f := range e.cfg.Fields {
		if !ref.Has(f.Source) {
			return domain.RawBankFile{}, &domain.EnrichmentError{
				Bank: e.cfg.Bank,
				File: refFile.Name,
				Err:  fmt.Errorf("reference column %q not found", f.Source),
			}
		}
	}
	qtyCol, hasQty := sec.FindColumn(e.cfg.QuantityColumn...)

	secAcct, hasSecAcct := sec.FindColumn(e.cfg.AccountColumn...)
	refAcct, hasRefAcct := ref.FindColumn(e.cfg.AccountColumn...)
	byAccount := hasSecAcct && hasRefAcct

	lookup := make(map[string][]string, ref.Len())
	for _, row := range ref.Rows {
		k := normalizeKey(ref.Get(row, refKey))
		if k == "" {
			continue
		}
		if byAccount {
			k = normalizeKey(ref.Get(row, refAcct)) + "|" + k
		}
		lookup[k] = row
	}

	out := sec.Clone()
	for _, f := range e.cfg.Fields {
		out.EnsureColumn(f.Target)
	}

	for i, row := range out.Rows {
		k := normalizeKey(out.Get(row, secKey))
		if k == "" {
			// Cash lines and subtotals carry no identifier
			continue
		}
		if byAccount {
			k = normalizeKey(out.Get(row, secAcct)) + "|" + k
		}
		report.Rows++

		refRow, matched := lookup[k]
		if !matched {
			report.Unmatched++
			if fb := e.cfg.Fallback; fb != nil {
				if v := out.Get(row, fb.From); v != "" {
					out.Set(i, fb.Target, v)
					report.FallbackFilled++
				}
			}
			continue
		}
		report.Matched++

		for _, f := range e.cfg.Fields {
			v := ref.Get(refRow, f.Source)
			if v == "" {
				continue
			}
			if f.PerUnit {
				if !hasQty {
					continue
				}
				unit, ok := tabular.ParseDecimalFormat(v, e.cfg.NumberFormat)
				if !ok {
					continue
				}
				qty, ok := tabular.ParseDecimalFormat(out.Get(out.Rows[i], qtyCol), e.cfg.NumberFormat)
				if !ok {
					continue
				}
				v = unit.Mul(qty.Abs()).Round(2).StringFixed(2)
			}
			out.Set(i, f.Target, v)
		}
	}

	dest := filepath.Join(outDir, secFile.Name)
	if err := tabular.WriteFile(dest, tabular.Sheet{Name: "Securities", Table: out}); err != nil {
		return domain.RawBankFile{}, fmt.Errorf("failed to write enriched file: %w", err)
	}

	e.log.Debug().
		Str("file", secFile.Name).
		Str("reference", refFile.Name).
		Int("rows", out.Len()).
		Msg("Enriched securities file")

	enriched := secFile
	enriched.Path = dest
	return enriched, nil
}

func normalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
