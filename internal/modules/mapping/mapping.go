// Package mapping loads the externally maintained account to client mapping table.
package mapping

import (
	"fmt"
	"strings"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/tabular"
	"github.com/rs/zerolog"
)

// Column headers of every bank sheet in the mappings workbook.
const (
	ColumnAccountNumber = "account number"
	ColumnClient        = "client"
	ColumnAccount       = "account"
	ColumnAccountName   = "account name"
)

// Table resolves bank account numbers to internal client accounts.
// It is read-only after loading and safe for concurrent use.
type Table struct {
	byNumber map[domain.BankCode]map[string]domain.AccountMapping
	clients  map[string]bool
}

// NewTable builds a table from explicit mappings.
func NewTable(mappings []domain.AccountMapping) *Table {
	t := &Table{
		byNumber: make(map[domain.BankCode]map[string]domain.AccountMapping),
		clients:  make(map[string]bool),
	}
	for _, m := range mappings {
		t.add(m)
	}
	return t
}

func (t *Table) add(m domain.AccountMapping) {
	if t.byNumber[m.Bank] == nil {
		t.byNumber[m.Bank] = make(map[string]domain.AccountMapping)
	}
	t.byNumber[m.Bank][NormalizeAccountNumber(m.ExternalAccountNumber)] = m
	t.clients[m.ClientCode] = true
}

// Load reads the mappings workbook. Each sheet is named after a bank code;
// sheets that do not name a supported bank are skipped.
func Load(path string, log zerolog.Logger) (*Table, error) {
	log = log.With().Str("component", "account_mapping").Logger()

	sheets, order, err := tabular.ReadSheets(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mappings: %w", err)
	}

	t := NewTable(nil)
	for _, name := range order {
		bank, err := domain.ParseBankCode(name)
		if err != nil {
			log.Debug().Str("sheet", name).Msg("Skipping mapping sheet for unsupported bank")
			continue
		}

		sheet := sheets[name]
		if missing := sheet.Missing(ColumnAccountNumber, ColumnClient, ColumnAccount); len(missing) > 0 {
			return nil, fmt.Errorf("mapping sheet %s is missing columns: %s", name, strings.Join(missing, ", "))
		}

		count := 0
		for _, row := range sheet.Rows {
			number := sheet.Get(row, ColumnAccountNumber)
			client := sheet.Get(row, ColumnClient)
			if number == "" || client == "" {
				continue
			}
			t.add(domain.AccountMapping{
				Bank:                  bank,
				ExternalAccountNumber: number,
				ClientCode:            client,
				InternalAccountCode:   sheet.Get(row, ColumnAccount),
				AccountName:           sheet.Get(row, ColumnAccountName),
			})
			count++
		}
		log.Debug().Str("bank", bank.String()).Int("accounts", count).Msg("Loaded account mappings")
	}

	return t, nil
}

// NormalizeAccountNumber strips formatting so numbers compare across files.
// Spreadsheet cells sometimes turn account numbers into floats ("1234.0").
func NormalizeAccountNumber(n string) string {
	n = strings.ToUpper(strings.TrimSpace(n))
	n = strings.TrimSuffix(n, ".0")
	n = strings.NewReplacer("-", "", " ", "").Replace(n)
	return n
}

// Resolve returns the mapping for a bank account number.
func (t *Table) Resolve(bank domain.BankCode, accountNumber string) (domain.AccountMapping, bool) {
	byNumber, ok := t.byNumber[bank]
	if !ok {
		return domain.AccountMapping{}, false
	}
	m, ok := byNumber[NormalizeAccountNumber(accountNumber)]
	return m, ok
}

// Accounts returns every mapping registered for a bank.
func (t *Table) Accounts(bank domain.BankCode) []domain.AccountMapping {
	out := make([]domain.AccountMapping, 0, len(t.byNumber[bank]))
	for _, m := range t.byNumber[bank] {
		out = append(out, m)
	}
	return out
}

// HasClient reports whether any bank maps an account to the client.
func (t *Table) HasClient(client string) bool {
	return t.clients[client]
}

// Clients returns every client code present in the table.
func (t *Table) Clients() []string {
	out := make([]string, 0, len(t.clients))
	for c := range t.clients {
		out = append(out, c)
	}
	return out
}
