package cash_flows

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/custodian/internal/database"
	"github.com/aristath/custodian/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransactionRepository persists standardized transactions in portfolio.db.
// Statements for consecutive dates overlap, so rows are keyed on their
// natural identity and re-imports of the same event are ignored.
type TransactionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository.
func NewTransactionRepository(db *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  db,
		log: log.With().Str("repo", "transactions").Logger(),
	}
}

// ReplaceForDate replaces the transactions imported from the statements of
// sourceDate. Events already imported from another statement date are kept
// once. Returns the number of rows inserted.
func (r *TransactionRepository) ReplaceForDate(ctx context.Context, sourceDate time.Time, txs []domain.StandardizedTransaction) (int, error) {
	source := domain.TruncateDay(sourceDate).Unix()
	inserted := 0

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM transactions WHERE source_date = ?", source); err != nil {
			return fmt.Errorf("failed to clear transactions for %s: %w", sourceDate.Format(domain.DateLayout), err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO transactions (
				bank, client_code, account_code, identifier, ticker, date, type,
				native_type, quantity, price, total_amount, source_date
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, t := range txs {
			res, err := stmt.ExecContext(ctx,
				string(t.Bank),
				t.ClientCode,
				t.AccountCode,
				t.Identifier,
				t.Ticker,
				nullableDate(t.Date),
				string(t.Type),
				t.NativeType,
				nullableDecimal(t.Quantity),
				nullableDecimal(t.Price),
				t.TotalAmount.String(),
				source,
			)
			if err != nil {
				return fmt.Errorf("failed to insert transaction: %w", err)
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, &domain.StorageError{Op: "replace transactions", Err: err}
	}

	r.log.Debug().
		Str("source_date", sourceDate.Format(domain.DateLayout)).
		Int("received", len(txs)).
		Int("inserted", inserted).
		Msg("Imported transactions")

	return inserted, nil
}

// ExternalFlows returns the client's deposits and withdrawals dated in (start, end],
// ordered by date. Undated flows imported from statements in (start, end] are
// included with a zero Date and sort first.
func (r *TransactionRepository) ExternalFlows(ctx context.Context, client string, start, end time.Time) ([]domain.StandardizedTransaction, error) {
	query := `
		SELECT bank, client_code, account_code, identifier, ticker, date, type,
		       native_type, quantity, price, total_amount
		FROM transactions
		WHERE client_code = ? AND type IN (?, ?)
		  AND ((date > ? AND date <= ?) OR (date IS NULL AND source_date > ? AND source_date <= ?))
		ORDER BY date ASC, id ASC
	`
	from, to := domain.TruncateDay(start).Unix(), domain.TruncateDay(end).Unix()
	return r.query(ctx, query,
		client,
		string(domain.TxDeposit),
		string(domain.TxWithdrawal),
		from, to,
		from, to,
	)
}

// ListByClient returns all of the client's transactions dated in (start, end].
func (r *TransactionRepository) ListByClient(ctx context.Context, client string, start, end time.Time) ([]domain.StandardizedTransaction, error) {
	query := `
		SELECT bank, client_code, account_code, identifier, ticker, date, type,
		       native_type, quantity, price, total_amount
		FROM transactions
		WHERE client_code = ? AND date > ? AND date <= ?
		ORDER BY date ASC, id ASC
	`
	return r.query(ctx, query, client, domain.TruncateDay(start).Unix(), domain.TruncateDay(end).Unix())
}

// CountForDate returns how many rows were imported from sourceDate's statements.
func (r *TransactionRepository) CountForDate(ctx context.Context, sourceDate time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE source_date = ?",
		domain.TruncateDay(sourceDate).Unix(),
	).Scan(&count)
	if err != nil {
		return 0, &domain.StorageError{Op: "count transactions", Err: err}
	}
	return count, nil
}

func (r *TransactionRepository) query(ctx context.Context, query string, args ...interface{}) ([]domain.StandardizedTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.StorageError{Op: "query transactions", Err: err}
	}
	defer rows.Close()

	var out []domain.StandardizedTransaction
	for rows.Next() {
		var (
			t               domain.StandardizedTransaction
			bank, txType    string
			date            sql.NullInt64
			quantity, price sql.NullString
			totalAmount     string
		)
		if err := rows.Scan(&bank, &t.ClientCode, &t.AccountCode, &t.Identifier, &t.Ticker,
			&date, &txType, &t.NativeType, &quantity, &price, &totalAmount); err != nil {
			return nil, &domain.StorageError{Op: "scan transaction", Err: err}
		}

		t.Bank = domain.BankCode(bank)
		t.Type = domain.ParseTransactionType(txType)
		if date.Valid {
			t.Date = time.Unix(date.Int64, 0).UTC()
		}
		t.Quantity = parseNullableDecimal(quantity)
		t.Price = parseNullableDecimal(price)
		t.TotalAmount, err = decimal.NewFromString(totalAmount)
		if err != nil {
			return nil, &domain.StorageError{Op: "parse transaction amount", Err: err}
		}
		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "iterate transactions", Err: err}
	}
	return out, nil
}

func nullableDate(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return domain.TruncateDay(t).Unix()
}

func nullableDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullableDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil
	}
	return &d
}
