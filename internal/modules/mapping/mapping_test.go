package mapping

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/tabular"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMappings(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Mappings.xlsx")

	jpm := tabular.New("account number", "client", "account", "account name")
	jpm.Append([]string{"123-456", "JAV", "JAV-1", "Javier Main"})
	jpm.Append([]string{"789", "LP", "LP-1", ""})
	jpm.Append([]string{"", "orphan", "", ""})

	ms := tabular.New("Account Number", "Client", "Account")
	ms.Append([]string{"5551.0", "JAV", "JAV-MS"})

	notes := tabular.New("whatever")
	notes.Append([]string{"ignored"})

	require.NoError(t, tabular.WriteFile(path,
		tabular.Sheet{Name: "JPM", Table: jpm},
		tabular.Sheet{Name: "MS", Table: ms},
		tabular.Sheet{Name: "Notes", Table: notes},
	))
	return path
}

func TestLoad(t *testing.T) {
	table, err := Load(writeMappings(t), zerolog.Nop())
	require.NoError(t, err)

	m, ok := table.Resolve(domain.BankJPM, "123456")
	require.True(t, ok)
	assert.Equal(t, "JAV", m.ClientCode)
	assert.Equal(t, "JAV-1", m.InternalAccountCode)
	assert.Equal(t, "Javier Main", m.AccountName)

	m, ok = table.Resolve(domain.BankMS, "5551")
	require.True(t, ok)
	assert.Equal(t, "JAV-MS", m.InternalAccountCode)

	_, ok = table.Resolve(domain.BankMS, "123456")
	assert.False(t, ok, "mappings are scoped per bank")

	_, ok = table.Resolve(domain.BankHSBC, "1")
	assert.False(t, ok)

	clients := table.Clients()
	sort.Strings(clients)
	assert.Equal(t, []string{"JAV", "LP"}, clients)
	assert.True(t, table.HasClient("LP"))
	assert.Len(t, table.Accounts(domain.BankJPM), 2)
}

func TestLoad_MissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Mappings.xlsx")
	bad := tabular.New("account number", "client")
	bad.Append([]string{"1", "X"})
	require.NoError(t, tabular.WriteFile(path, tabular.Sheet{Name: "CS", Table: bad}))

	_, err := Load(path, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account")
}

func TestNormalizeAccountNumber(t *testing.T) {
	assert.Equal(t, "123456", NormalizeAccountNumber(" 123-456 "))
	assert.Equal(t, "5551", NormalizeAccountNumber("5551.0"))
	assert.Equal(t, "AB12", NormalizeAccountNumber("ab 12"))
}
