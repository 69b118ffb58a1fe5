package transform

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/modules/cash_flows"
	"github.com/aristath/custodian/internal/modules/combination"
	"github.com/aristath/custodian/internal/modules/mapping"
	"github.com/aristath/custodian/internal/tabular"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BaseCurrency is the currency all converted amounts are expressed in.
const BaseCurrency = "USD"

// Input names the bank files of one date to transform.
type Input struct {
	Date         time.Time
	Securities   []string
	Transactions []string
}

// Report counts what the transform kept, skipped and corrected.
type Report struct {
	SecurityRows     int                    `json:"security_rows"`
	TransactionRows  int                    `json:"transaction_rows"`
	Unmapped         int                    `json:"unmapped"`
	UnmappedAccounts []string               `json:"unmapped_accounts,omitempty"`
	Undated          int                    `json:"undated"`
	UndatedFlows     int                    `json:"undated_flows"`
	SignCorrected    int                    `json:"sign_corrected"`
	Converted        int                    `json:"converted"`
	LookupDegraded   *domain.LookupDegraded `json:"-"`
}

// Output is the standardized rows of one bank for one date.
type Output struct {
	Bank         domain.BankCode
	Securities   []domain.StandardizedSecurity
	Transactions []domain.StandardizedTransaction
	Report       Report
}

// Transformer applies one bank's Layout.
type Transformer struct {
	layout   Layout
	mappings *mapping.Table
	lookup   AssetLookup
	rates    RateProvider
	log      zerolog.Logger
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithLookup sets the identifier lookup used by layouts with UseLookup.
func WithLookup(l AssetLookup) Option {
	return func(t *Transformer) {
		t.lookup = l
	}
}

// WithRates sets the conversion context used by layouts with ConvertCurrency.
func WithRates(r RateProvider) Option {
	return func(t *Transformer) {
		t.rates = r
	}
}

// NewTransformer creates a transformer for layout.Bank.
func NewTransformer(layout Layout, mappings *mapping.Table, log zerolog.Logger, opts ...Option) *Transformer {
	if mappings == nil {
		mappings = mapping.NewTable(nil)
	}
	t := &Transformer{
		layout:   layout,
		mappings: mappings,
		log:      log.With().Str("component", "transformer").Str("bank", string(layout.Bank)).Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Bank returns the bank this transformer serves.
func (t *Transformer) Bank() domain.BankCode {
	return t.layout.Bank
}

// Transform maps every input file onto the standardized schema. Missing
// columns fail the bank with TransformMappingError. A failing identifier
// lookup does not: affected rows get AssetOther and the report carries the
// LookupDegraded warning.
func (t *Transformer) Transform(ctx context.Context, in Input) (*Output, error) {
	out := &Output{Bank: t.layout.Bank}
	unmapped := make(map[string]bool)
	conv := &converter{
		enabled:  t.layout.ConvertCurrency,
		fallback: t.layout.Currency,
		rates:    t.rates,
		date:     in.Date,
		cache:    make(map[string]decimal.Decimal),
	}

	var pending []pendingClass
	for _, path := range in.Securities {
		rows, err := t.securities(ctx, path, conv, unmapped, &out.Report)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out.Securities = append(out.Securities, r.security)
			if r.needsClass {
				pending = append(pending, pendingClass{index: len(out.Securities) - 1, fallback: r.fallback})
			}
		}
	}
	if err := t.classifyPending(ctx, out, pending); err != nil {
		return nil, err
	}

	for _, path := range in.Transactions {
		txs, err := t.transactions(ctx, path, conv, unmapped, &out.Report)
		if err != nil {
			return nil, err
		}
		out.Transactions = append(out.Transactions, txs...)
	}

	out.Report.SecurityRows = len(out.Securities)
	out.Report.TransactionRows = len(out.Transactions)
	out.Report.Converted = conv.converted
	for acct := range unmapped {
		out.Report.UnmappedAccounts = append(out.Report.UnmappedAccounts, acct)
	}
	sort.Strings(out.Report.UnmappedAccounts)

	event := t.log.Info()
	if out.Report.Unmapped > 0 || out.Report.Undated > 0 || out.Report.LookupDegraded != nil {
		event = t.log.Warn()
	}
	event.
		Int("securities", out.Report.SecurityRows).
		Int("transactions", out.Report.TransactionRows).
		Int("unmapped", out.Report.Unmapped).
		Int("undated", out.Report.Undated).
		Int("undated_flows", out.Report.UndatedFlows).
		Int("sign_corrected", out.Report.SignCorrected).
		Msg("Transformed bank files")

	return out, nil
}

type securityRow struct {
	security   domain.StandardizedSecurity
	needsClass bool
	fallback   domain.AssetType
}

type pendingClass struct {
	index    int
	fallback domain.AssetType
}

// readSheets returns the tables of a file and, for multi-sheet layouts, each sheet's name.
func readSheets(path string, layout SheetLayout) ([]*tabular.Table, []string, error) {
	if layout.AllSheets {
		tables, names, err := tabular.ReadSheets(path)
		if err != nil {
			return nil, nil, err
		}
		out := make([]*tabular.Table, 0, len(names))
		for _, n := range names {
			out = append(out, tables[n])
		}
		return out, names, nil
	}
	tbl, err := tabular.ReadFile(path, tabular.ReadOptions{Sheet: layout.Sheet, HeaderRow: layout.HeaderRow})
	if err != nil {
		return nil, nil, err
	}
	return []*tabular.Table{tbl}, []string{""}, nil
}

func (t *Transformer) securities(ctx context.Context, path string, conv *converter, unmapped map[string]bool, report *Report) ([]securityRow, error) {
	sl := t.layout.Securities
	name := filepath.Base(path)

	tables, sheets, err := readSheets(path, sl)
	if err != nil {
		return nil, &domain.TransformMappingError{Bank: t.layout.Bank, File: name, Err: err}
	}

	var out []securityRow
	for i, tbl := range tables {
		if tbl.Len() == 0 && sl.AllSheets {
			continue
		}
		if missing := sl.missing(tbl); len(missing) > 0 {
			return nil, &domain.TransformMappingError{Bank: t.layout.Bank, File: name, MissingColumns: missing}
		}

		for _, row := range tbl.Rows {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s, ok := t.securityFromRow(sl, tbl, row)
			if !ok {
				continue
			}

			client, account, resolved := t.resolveScope(sl, tbl, row)
			if !resolved {
				report.Unmapped++
				if acct := sl.value(tbl, row, FieldAccount); acct != "" {
					unmapped[acct] = true
				}
				continue
			}
			s.ClientCode = client
			s.AccountCode = account

			if err := conv.security(ctx, &s); err != nil {
				return nil, fmt.Errorf("failed to convert %s: %w", name, err)
			}
			if s.AlignSign() {
				report.SignCorrected++
			}

			r := securityRow{security: s}
			nativeClass := sl.value(tbl, row, FieldAssetClass)
			subClass := sl.value(tbl, row, FieldSubClass)
			if at, ok := t.layout.nativeClass(nativeClass, subClass, sheets[i]); ok {
				r.security.AssetType = at
			} else {
				r.fallback = classifyByRules(s.Name, s.Ticker, s.MaturityDate, s.CouponRate)
				r.security.AssetType = r.fallback
				r.needsClass = t.layout.UseLookup && s.Identifier != ""
			}
			out = append(out, r)
		}
	}
	return out, nil
}

// securityFromRow parses one row. Rows without a name or identifier and
// rows without any amount (section headers, totals) are skipped.
func (t *Transformer) securityFromRow(sl SheetLayout, tbl *tabular.Table, row []string) (domain.StandardizedSecurity, bool) {
	nf := t.layout.NumberFormat
	s := domain.StandardizedSecurity{
		Bank:       t.layout.Bank,
		Identifier: strings.ToUpper(sl.value(tbl, row, FieldIdentifier)),
		Ticker:     sl.value(tbl, row, FieldTicker),
		Name:       sl.value(tbl, row, FieldName),
		Currency:   strings.ToUpper(sl.value(tbl, row, FieldCurrency)),
	}
	if s.Name == "" && s.Identifier == "" && s.Ticker == "" {
		return s, false
	}
	if s.Identifier == "" && strings.HasPrefix(strings.ToLower(s.Name), "total") {
		return s, false
	}

	mv, hasMV := tabular.ParseDecimalFormat(sl.value(tbl, row, FieldMarketValue), nf)
	qty, hasQty := tabular.ParseDecimalFormat(sl.value(tbl, row, FieldQuantity), nf)
	if !hasMV && !hasQty {
		return s, false
	}
	s.MarketValue = mv
	s.Quantity = qty
	s.Price = tabular.DecimalOrZero(sl.value(tbl, row, FieldPrice), nf)

	if s.Currency == "" {
		s.Currency = t.layout.Currency
	}
	if s.Currency == "" {
		s.Currency = BaseCurrency
	}

	if v, ok := tabular.ParseDecimalFormat(sl.value(tbl, row, FieldCostBasis), nf); ok {
		s.CostBasis = domain.DecimalPtr(v)
	}
	if v, ok := tabular.ParseDecimalFormat(sl.value(tbl, row, FieldCoupon), nf); ok && !v.IsZero() {
		s.CouponRate = domain.DecimalPtr(v)
	}
	if v, ok := tabular.ParseDecimalFormat(sl.value(tbl, row, FieldIncome), nf); ok {
		s.EstimatedAnnualIncome = domain.DecimalPtr(v)
	}
	if d, ok := tabular.ParseDate(sl.value(tbl, row, FieldMaturity), t.layout.DateLayouts...); ok {
		s.MaturityDate = &d
	}
	return s, true
}

// resolveScope returns the client account of a row: the scope columns a
// combiner wrote, or the account mapping of the row's account number.
func (t *Transformer) resolveScope(sl SheetLayout, tbl *tabular.Table, row []string) (string, string, bool) {
	if client := tbl.Get(row, combination.ColumnClient); client != "" {
		return client, tbl.Get(row, combination.ColumnAccount), true
	}
	number := sl.value(tbl, row, FieldAccount)
	if number == "" {
		return "", "", false
	}
	m, ok := t.mappings.Resolve(t.layout.Bank, number)
	if !ok {
		return "", "", false
	}
	return m.ClientCode, m.InternalAccountCode, true
}

// classifyPending resolves rows without a native class through the lookup
// service. Unknown identifiers keep their rule-based type; when the service
// fails, unresolved rows degrade to AssetOther.
func (t *Transformer) classifyPending(ctx context.Context, out *Output, pending []pendingClass) error {
	if len(pending) == 0 {
		return nil
	}
	if t.lookup == nil {
		t.log.Warn().Int("rows", len(pending)).Msg("No identifier lookup configured, using keyword rules")
		return nil
	}

	seen := make(map[string]bool)
	var ids []string
	for _, p := range pending {
		id := out.Securities[p.index].Identifier
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	types, err := t.lookup.AssetTypes(ctx, ids)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	var degraded []string
	for _, p := range pending {
		s := &out.Securities[p.index]
		if at, ok := types[s.Identifier]; ok && at != domain.AssetOther {
			s.AssetType = at
			continue
		}
		if err != nil {
			if _, ok := types[s.Identifier]; !ok {
				s.AssetType = domain.AssetOther
				degraded = append(degraded, s.Identifier)
				continue
			}
		}
		s.AssetType = p.fallback
	}

	if len(degraded) > 0 {
		out.Report.LookupDegraded = &domain.LookupDegraded{Identifiers: degraded, Err: err}
		t.log.Warn().Err(err).Int("identifiers", len(degraded)).Msg("Identifier lookup degraded, asset type set to other")
	}
	return nil
}

func (t *Transformer) transactions(ctx context.Context, path string, conv *converter, unmapped map[string]bool, report *Report) ([]domain.StandardizedTransaction, error) {
	tl := t.layout.Transactions
	name := filepath.Base(path)

	tables, _, err := readSheets(path, tl)
	if err != nil {
		return nil, &domain.TransformMappingError{Bank: t.layout.Bank, File: name, Err: err}
	}

	nf := t.layout.NumberFormat
	var out []domain.StandardizedTransaction
	for _, tbl := range tables {
		// Accounts without activity deliver header-only or empty tables
		if tbl.Len() == 0 {
			continue
		}
		if missing := tl.missing(tbl); len(missing) > 0 {
			return nil, &domain.TransformMappingError{Bank: t.layout.Bank, File: name, MissingColumns: missing}
		}

		for _, row := range tbl.Rows {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			date, dated := tabular.ParseDate(tl.value(tbl, row, FieldDate), t.layout.DateLayouts...)

			client, account, resolved := t.resolveScope(tl, tbl, row)
			if !resolved {
				report.Unmapped++
				if acct := tl.value(tbl, row, FieldAccount); acct != "" {
					unmapped[acct] = true
				}
				continue
			}

			amount, hasAmount := tabular.ParseDecimalFormat(tl.value(tbl, row, FieldAmount), nf)
			if !hasAmount {
				credit := tabular.DecimalOrZero(tl.value(tbl, row, FieldCredit), nf)
				debit := tabular.DecimalOrZero(tl.value(tbl, row, FieldDebit), nf)
				amount = credit.Abs().Sub(debit.Abs())
			}

			native := cash_flows.ExtractNativeType(t.layout.Bank, tl.value(tbl, row, FieldType))
			txType := cash_flows.Classify(t.layout.Bank, native, amount)

			// Undated deposits and withdrawals are kept with a zero date so the
			// return calculation rejects them instead of booking them as gain.
			if !dated {
				report.Undated++
				if !txType.IsExternalFlow() {
					t.log.Debug().Str("file", name).Str("date", tl.value(tbl, row, FieldDate)).Msg("Skipping transaction without a date")
					continue
				}
				report.UndatedFlows++
				t.log.Warn().Str("file", name).Str("client", client).Str("type", string(txType)).Msg("External flow without a date")
			}

			tx := domain.StandardizedTransaction{
				Bank:        t.layout.Bank,
				ClientCode:  client,
				AccountCode: account,
				Identifier:  strings.ToUpper(tl.value(tbl, row, FieldIdentifier)),
				Ticker:      tl.value(tbl, row, FieldTicker),
				Date:        date,
				Type:        txType,
				NativeType:  native,
				TotalAmount: cash_flows.NormalizeAmount(txType, amount),
			}
			if v, ok := tabular.ParseDecimalFormat(tl.value(tbl, row, FieldQuantity), nf); ok {
				tx.Quantity = domain.DecimalPtr(v)
			}
			if v, ok := tabular.ParseDecimalFormat(tl.value(tbl, row, FieldPrice), nf); ok {
				tx.Price = domain.DecimalPtr(v)
			}

			currency := strings.ToUpper(tl.value(tbl, row, FieldCurrency))
			if err := conv.transaction(ctx, currency, &tx); err != nil {
				return nil, fmt.Errorf("failed to convert %s: %w", name, err)
			}
			out = append(out, tx)
		}
	}
	return out, nil
}
