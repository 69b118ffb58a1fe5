// Package clientdata keeps the reference data the ingestion pipeline resolves
// against outside services: OpenFIGI answers for CUSIP and ISIN lookups, and
// the daily CLP, UF and EUR indicators used to convert balances to USD.
//
// Answers are stored as JSON with an expiry. An expired answer stays readable
// so a statement run can still resolve securities and rates while a service
// is down; the daily cleanup job is what finally removes it.
package clientdata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Table is one reference-data table in client_data.db.
type Table string

const (
	// SecurityLookups holds OpenFIGI mapping results keyed by CUSIP or ISIN.
	SecurityLookups Table = "openfigi"
	// FXRates holds indicator values keyed by "<indicator>:<YYYY-MM-DD>".
	FXRates Table = "exchangerate"
)

// Tables lists every reference-data table, in purge order.
var Tables = []Table{SecurityLookups, FXRates}

// keyColumns maps each known table to its primary key column. A table missing
// here is rejected before its name reaches any SQL text.
var keyColumns = map[Table]string{
	SecurityLookups: "identifier",
	FXRates:         "pair",
}

// Label is the name used for a table in logs.
func (t Table) Label() string {
	switch t {
	case SecurityLookups:
		return "security_lookups"
	case FXRates:
		return "fx_rates"
	default:
		return string(t)
	}
}

func (t Table) keyColumn() (string, error) {
	col, ok := keyColumns[t]
	if !ok {
		return "", fmt.Errorf("invalid table name: %s", string(t))
	}
	return col, nil
}

// Entry is a cached answer and the time it stops being fresh.
type Entry struct {
	Data      json.RawMessage
	ExpiresAt time.Time
}

// FreshAt reports whether the entry may be used without asking the service again.
func (e Entry) FreshAt(now time.Time) bool {
	return e.ExpiresAt.After(now)
}

// Repository reads and writes the reference-data cache.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a reference-data cache over the client_data database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Put stores value under key until now + ttl, replacing any earlier answer.
func (r *Repository) Put(ctx context.Context, table Table, key string, value interface{}, ttl time.Duration) error {
	col, err := table.keyColumn()
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s entry %s: %w", table.Label(), key, err)
	}

	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s, data, expires_at) VALUES (?, ?, ?)", table, col)
	if _, err := r.db.ExecContext(ctx, query, key, string(data), r.now().Add(ttl).Unix()); err != nil {
		return fmt.Errorf("failed to store %s entry %s: %w", table.Label(), key, err)
	}
	return nil
}

// Lookup returns the cached answer for key whether or not it has expired.
// The bool is false when nothing was ever cached for key.
func (r *Repository) Lookup(ctx context.Context, table Table, key string) (Entry, bool, error) {
	col, err := table.keyColumn()
	if err != nil {
		return Entry{}, false, err
	}

	var (
		data      string
		expiresAt int64
	)
	query := fmt.Sprintf("SELECT data, expires_at FROM %s WHERE %s = ?", table, col)
	err = r.db.QueryRowContext(ctx, query, key).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to read %s entry %s: %w", table.Label(), key, err)
	}

	return Entry{Data: json.RawMessage(data), ExpiresAt: time.Unix(expiresAt, 0)}, true, nil
}

// Fresh returns the cached answer only while it has not expired.
func (r *Repository) Fresh(ctx context.Context, table Table, key string) (json.RawMessage, bool, error) {
	entry, ok, err := r.Lookup(ctx, table, key)
	if err != nil || !ok || !entry.FreshAt(r.now()) {
		return nil, false, err
	}
	return entry.Data, true, nil
}

// Evict removes the answer for key. A missing key is not an error.
func (r *Repository) Evict(ctx context.Context, table Table, key string) error {
	col, err := table.keyColumn()
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, col)
	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to evict %s entry %s: %w", table.Label(), key, err)
	}
	return nil
}

// PurgeExpired deletes the expired answers in table and returns how many went.
func (r *Repository) PurgeExpired(ctx context.Context, table Table) (int64, error) {
	if _, err := table.keyColumn(); err != nil {
		return 0, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", table)
	result, err := r.db.ExecContext(ctx, query, r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired %s: %w", table.Label(), err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged %s: %w", table.Label(), err)
	}
	return deleted, nil
}

// PurgeAllExpired purges every table. On error the counts for the tables
// already purged are still returned.
func (r *Repository) PurgeAllExpired(ctx context.Context) (map[Table]int64, error) {
	counts := make(map[Table]int64, len(Tables))
	for _, table := range Tables {
		deleted, err := r.PurgeExpired(ctx, table)
		if err != nil {
			return counts, err
		}
		counts[table] = deleted
	}
	return counts, nil
}
