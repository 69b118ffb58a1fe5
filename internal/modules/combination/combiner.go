// Package combination merges a bank's per-account statement files into one
// securities file and one transactions file for the date.
package combination

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/tabular"
	"github.com/rs/zerolog"
)

// Scope columns prepended to every combined file.
const (
	ColumnBank    = "Bank Code"
	ColumnClient  = "Client Code"
	ColumnAccount = "Account Code"
)

// headerProbeRows bounds the header search in statements with a title block.
const headerProbeRows = 15

// Config describes how one bank's files are combined.
type Config struct {
	Bank                  domain.BankCode
	IdentifierColumns     []string // dedup key candidates, first non-empty wins per row
	SecuritiesHeaderRow   int
	TransactionsHeaderRow int
	SecuritiesHeaderProbe []string // when set, the header row is searched for
}

// Options control completeness checking.
type Options struct {
	Strict   bool                    // missing accounts fail the bank instead of being skipped
	Expected []domain.AccountMapping // accounts each client is expected to deliver
}

// Overwrite records a holding replaced by a later file (last write wins).
type Overwrite struct {
	Key      string `json:"key"`
	File     string `json:"file"`
	Previous string `json:"previous"`
}

// Result describes the combined output of one bank.
type Result struct {
	Bank                  domain.BankCode `json:"bank"`
	Securities            string          `json:"securities"`
	Transactions          string          `json:"transactions"`
	Accounts              []string        `json:"accounts"`
	Skipped               []string        `json:"skipped,omitempty"`
	Overwritten           []Overwrite     `json:"overwritten,omitempty"`
	SecurityRows          int             `json:"security_rows"`
	TransactionRows       int             `json:"transaction_rows"`
	DuplicateTransactions int             `json:"duplicate_transactions"`
}

// Combiner merges per-account files of one bank.
type Combiner struct {
	cfg  Config
	opts Options
	log  zerolog.Logger
}

// NewCombiner creates a combiner for cfg.Bank.
func NewCombiner(cfg Config, opts Options, log zerolog.Logger) *Combiner {
	return &Combiner{
		cfg:  cfg,
		opts: opts,
		log:  log.With().Str("component", "combiner").Str("bank", string(cfg.Bank)).Logger(),
	}
}

// Bank returns the bank this combiner serves.
func (c *Combiner) Bank() domain.BankCode {
	return c.cfg.Bank
}

// SecuritiesFileName is the combined securities file name for a date.
func SecuritiesFileName(bank domain.BankCode, date time.Time) string {
	return fmt.Sprintf("%s_securities_%s.xlsx", bank, date.Format(domain.FileDateLayout))
}

// TransactionsFileName is the combined transactions file name for a date.
func TransactionsFileName(bank domain.BankCode, date time.Time) string {
	return fmt.Sprintf("%s_transactions_%s.xlsx", bank, date.Format(domain.FileDateLayout))
}

// Combine merges files into outDir. Files are applied in ascending
// modification time (ties by name); when two files carry the same
// (client, account, identifier) holding, the later file's row replaces the
// earlier one and the replacement is reported. Transactions are concatenated
// with exact duplicates dropped.
func (c *Combiner) Combine(ctx context.Context, files []domain.RawBankFile, date time.Time, outDir string) (*Result, error) {
	var securities, transactions []domain.RawBankFile
	for _, f := range files {
		if f.Bank != c.cfg.Bank {
			continue
		}
		switch f.Kind {
		case domain.KindSecurities:
			securities = append(securities, f)
		case domain.KindTransactions:
			transactions = append(transactions, f)
		}
	}
	if len(securities) == 0 {
		return nil, &domain.CombinationError{Bank: c.cfg.Bank, Err: fmt.Errorf("no securities files")}
	}

	skipped := c.missingAccounts(securities, transactions)
	if len(skipped) > 0 {
		if c.opts.Strict {
			return nil, &domain.CombinationError{Bank: c.cfg.Bank, MissingAccounts: skipped}
		}
		c.log.Warn().Strs("missing", skipped).Msg("Combining with incomplete accounts")
	}

	sortFiles(securities)
	sortFiles(transactions)

	result := &Result{
		Bank:    c.cfg.Bank,
		Skipped: skipped,
	}

	secTable, err := c.combineSecurities(ctx, securities, result)
	if err != nil {
		return nil, err
	}
	txTable, err := c.combineTransactions(ctx, transactions, result)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create combined directory: %w", err)
	}
	result.Securities = filepath.Join(outDir, SecuritiesFileName(c.cfg.Bank, date))
	if err := tabular.WriteFile(result.Securities, tabular.Sheet{Name: "Securities", Table: secTable}); err != nil {
		return nil, &domain.CombinationError{Bank: c.cfg.Bank, Err: err}
	}
	result.Transactions = filepath.Join(outDir, TransactionsFileName(c.cfg.Bank, date))
	if err := tabular.WriteFile(result.Transactions, tabular.Sheet{Name: "Transactions", Table: txTable}); err != nil {
		return nil, &domain.CombinationError{Bank: c.cfg.Bank, Err: err}
	}

	result.Accounts = accountsOf(securities)
	result.SecurityRows = secTable.Len()
	result.TransactionRows = txTable.Len()

	c.log.Info().
		Int("accounts", len(result.Accounts)).
		Int("securities", result.SecurityRows).
		Int("transactions", result.TransactionRows).
		Int("overwritten", len(result.Overwritten)).
		Int("duplicate_transactions", result.DuplicateTransactions).
		Msg("Combined bank files")

	return result, nil
}

// missingAccounts lists the account files a complete delivery would include:
// a transactions file for every securities file, and every expected account
// of a client that delivered at least one file.
func (c *Combiner) missingAccounts(securities, transactions []domain.RawBankFile) []string {
	hasSec := make(map[string]bool)
	hasTx := make(map[string]bool)
	clients := make(map[string]bool)
	for _, f := range securities {
		if f.IsPerAccount() {
			hasSec[f.Client+"/"+f.Account] = true
			clients[f.Client] = true
		}
	}
	for _, f := range transactions {
		if f.IsPerAccount() {
			hasTx[f.Client+"/"+f.Account] = true
			clients[f.Client] = true
		}
	}

	missing := make(map[string]bool)
	for k := range hasSec {
		if !hasTx[k] {
			missing[k+" (transactions)"] = true
		}
	}
	for k := range hasTx {
		if !hasSec[k] {
			missing[k+" (securities)"] = true
		}
	}
	for _, m := range c.opts.Expected {
		if m.Bank != c.cfg.Bank || !clients[m.ClientCode] || m.InternalAccountCode == "" {
			continue
		}
		k := m.ClientCode + "/" + m.InternalAccountCode
		if !hasSec[k] && !hasTx[k] {
			missing[k] = true
		}
	}

	out := make([]string, 0, len(missing))
	for k := range missing {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *Combiner) combineSecurities(ctx context.Context, files []domain.RawBankFile, result *Result) (*tabular.Table, error) {
	tables := make([]*tabular.Table, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		headerRow := c.cfg.SecuritiesHeaderRow
		if len(c.cfg.SecuritiesHeaderProbe) > 0 {
			row, ok, err := tabular.FindHeaderRow(f.Path, c.cfg.SecuritiesHeaderProbe, headerProbeRows)
			if err != nil {
				return nil, &domain.CombinationError{Bank: c.cfg.Bank, Err: err}
			}
			if ok {
				headerRow = row
			}
		}
		t, err := tabular.ReadFile(f.Path, tabular.ReadOptions{HeaderRow: headerRow})
		if err != nil {
			return nil, &domain.CombinationError{Bank: c.cfg.Bank, Err: err}
		}
		tables = append(tables, t)
	}

	out := tabular.New(unionHeaders(tables)...)
	position := make(map[string]int)
	source := make(map[string]string)

	for i, t := range tables {
		f := files[i]
		for _, row := range t.Rows {
			values := rowValues(t, row, f)
			id := c.identifier(t, row)
			if id == "" {
				out.AppendMap(values)
				continue
			}

			key := f.Client + "|" + f.Account + "|" + id
			if at, seen := position[key]; seen {
				replaceRow(out, at, values)
				result.Overwritten = append(result.Overwritten, Overwrite{Key: key, File: f.Name, Previous: source[key]})
				c.log.Warn().
					Str("key", key).
					Str("file", f.Name).
					Str("previous", source[key]).
					Msg("Holding replaced by later file")
				source[key] = f.Name
				continue
			}
			out.AppendMap(values)
			position[key] = out.Len() - 1
			source[key] = f.Name
		}
	}
	return out, nil
}

func (c *Combiner) combineTransactions(ctx context.Context, files []domain.RawBankFile, result *Result) (*tabular.Table, error) {
	tables := make([]*tabular.Table, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := tabular.ReadFile(f.Path, tabular.ReadOptions{HeaderRow: c.cfg.TransactionsHeaderRow})
		if err != nil {
			return nil, &domain.CombinationError{Bank: c.cfg.Bank, Err: err}
		}
		tables = append(tables, t)
	}

	out := tabular.New(unionHeaders(tables)...)
	seen := make(map[string]bool)
	for i, t := range tables {
		for _, row := range t.Rows {
			out.AppendMap(rowValues(t, row, files[i]))
			fingerprint := strings.Join(out.Rows[out.Len()-1], "\x1f")
			if seen[fingerprint] {
				out.Rows = out.Rows[:out.Len()-1]
				result.DuplicateTransactions++
				continue
			}
			seen[fingerprint] = true
		}
	}
	return out, nil
}

// identifier returns the first non-empty identifier candidate of row.
func (c *Combiner) identifier(t *tabular.Table, row []string) string {
	for _, col := range c.cfg.IdentifierColumns {
		if v := t.Get(row, col); v != "" {
			return strings.ToUpper(v)
		}
	}
	return ""
}

// unionHeaders returns the scope columns followed by every header in first-seen order.
func unionHeaders(tables []*tabular.Table) []string {
	headers := []string{ColumnBank, ColumnClient, ColumnAccount}
	seen := map[string]bool{
		strings.ToLower(ColumnBank):    true,
		strings.ToLower(ColumnClient):  true,
		strings.ToLower(ColumnAccount): true,
	}
	for _, t := range tables {
		for _, h := range t.Headers {
			key := strings.ToLower(strings.TrimSpace(h))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			headers = append(headers, h)
		}
	}
	return headers
}

func rowValues(t *tabular.Table, row []string, f domain.RawBankFile) map[string]string {
	values := make(map[string]string, len(t.Headers)+3)
	for i, h := range t.Headers {
		if i < len(row) && h != "" {
			values[h] = row[i]
		}
	}
	values[ColumnBank] = string(f.Bank)
	values[ColumnClient] = f.Client
	values[ColumnAccount] = f.Account
	return values
}

func replaceRow(t *tabular.Table, at int, values map[string]string) {
	for i := range t.Rows[at] {
		t.Rows[at][i] = ""
	}
	for name, v := range values {
		if i := t.ColumnIndex(name); i >= 0 {
			t.Rows[at][i] = v
		}
	}
}

func sortFiles(files []domain.RawBankFile) {
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ModTime.Before(files[j].ModTime)
		}
		return files[i].Name < files[j].Name
	})
}

func accountsOf(files []domain.RawBankFile) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range files {
		if !f.IsPerAccount() {
			continue
		}
		k := f.Client + "/" + f.Account
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
