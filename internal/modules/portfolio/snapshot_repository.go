package portfolio

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/custodian/internal/database"
	"github.com/aristath/custodian/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SnapshotRepository persists client snapshots and their positions in
// portfolio.db. A snapshot and its positions are written in one transaction.
type SnapshotRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

// Save inserts or replaces the snapshot of (ClientCode, SnapshotDate)
// together with its positions, and sets snap.ID.
func (r *SnapshotRepository) Save(ctx context.Context, snap *domain.PortfolioSnapshot) error {
	metrics, err := json.Marshal(snap.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	date := domain.TruncateDay(snap.SnapshotDate).Unix()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}

	err = database.WithTransaction(r.db, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM portfolio_snapshots WHERE client_code = ? AND snapshot_date = ?",
			snap.ClientCode, date,
		).Scan(&id)

		switch {
		case err == sql.ErrNoRows:
			res, err := tx.ExecContext(ctx, `
				INSERT INTO portfolio_snapshots (client_code, snapshot_date, total_value, metrics_json, created_at)
				VALUES (?, ?, ?, ?, ?)
			`, snap.ClientCode, date, snap.Metrics.TotalValue.String(), string(metrics), snap.CreatedAt.Unix())
			if err != nil {
				return fmt.Errorf("failed to insert snapshot: %w", err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("failed to read snapshot id: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up snapshot: %w", err)
		default:
			if _, err := tx.ExecContext(ctx, `
				UPDATE portfolio_snapshots SET total_value = ?, metrics_json = ?, created_at = ? WHERE id = ?
			`, snap.Metrics.TotalValue.String(), string(metrics), snap.CreatedAt.Unix(), id); err != nil {
				return fmt.Errorf("failed to update snapshot: %w", err)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM snapshot_positions WHERE snapshot_id = ?", id); err != nil {
				return fmt.Errorf("failed to clear positions: %w", err)
			}
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO snapshot_positions (
				snapshot_id, bank, account_code, identifier, name, asset_type,
				quantity, market_value, cost_basis
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare position insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range snap.Positions {
			var cost interface{}
			if p.CostBasis != nil {
				cost = p.CostBasis.String()
			}
			if _, err := stmt.ExecContext(ctx,
				id,
				string(p.Bank),
				p.AccountCode,
				p.Identifier,
				p.Name,
				string(p.AssetType),
				p.Quantity.String(),
				p.MarketValue.String(),
				cost,
			); err != nil {
				return fmt.Errorf("failed to insert position: %w", err)
			}
		}

		snap.ID = id
		return nil
	})
	if err != nil {
		return &domain.StorageError{Op: "save snapshot", Err: err}
	}

	r.log.Debug().
		Str("client", snap.ClientCode).
		Str("date", snap.SnapshotDate.Format(domain.DateLayout)).
		Int("positions", len(snap.Positions)).
		Msg("Saved snapshot")
	return nil
}

const snapshotColumns = "id, client_code, snapshot_date, metrics_json, created_at"

// Get returns the snapshot of client at date with its positions, or nil.
func (r *SnapshotRepository) Get(ctx context.Context, client string, date time.Time) (*domain.PortfolioSnapshot, error) {
	return r.one(ctx, "SELECT "+snapshotColumns+`
		FROM portfolio_snapshots WHERE client_code = ? AND snapshot_date = ?`,
		client, domain.TruncateDay(date).Unix())
}

// Previous returns the latest snapshot of client strictly before date, or nil.
func (r *SnapshotRepository) Previous(ctx context.Context, client string, date time.Time) (*domain.PortfolioSnapshot, error) {
	return r.one(ctx, "SELECT "+snapshotColumns+`
		FROM portfolio_snapshots WHERE client_code = ? AND snapshot_date < ?
		ORDER BY snapshot_date DESC LIMIT 1`,
		client, domain.TruncateDay(date).Unix())
}

// First returns the earliest snapshot of client strictly before date, or nil.
func (r *SnapshotRepository) First(ctx context.Context, client string, before time.Time) (*domain.PortfolioSnapshot, error) {
	return r.one(ctx, "SELECT "+snapshotColumns+`
		FROM portfolio_snapshots WHERE client_code = ? AND snapshot_date < ?
		ORDER BY snapshot_date ASC LIMIT 1`,
		client, domain.TruncateDay(before).Unix())
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// ListForDate returns every client's snapshot at date, without positions,
// ordered by client code.
func (r *SnapshotRepository) ListForDate(ctx context.Context, date time.Time) ([]*domain.PortfolioSnapshot, error) {
	return listForDate(ctx, r.db, date)
}

// ListForDateTx is ListForDate read inside tx.
func (r *SnapshotRepository) ListForDateTx(ctx context.Context, tx *sql.Tx, date time.Time) ([]*domain.PortfolioSnapshot, error) {
	return listForDate(ctx, tx, date)
}

// ClientsUpTo returns every client with a snapshot on or before date.
func (r *SnapshotRepository) ClientsUpTo(ctx context.Context, date time.Time) ([]string, error) {
	return clientsUpTo(ctx, r.db, date)
}

// ClientsUpToTx is ClientsUpTo read inside tx.
func (r *SnapshotRepository) ClientsUpToTx(ctx context.Context, tx *sql.Tx, date time.Time) ([]string, error) {
	return clientsUpTo(ctx, tx, date)
}

func listForDate(ctx context.Context, q queryer, date time.Time) ([]*domain.PortfolioSnapshot, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+snapshotColumns+`
		FROM portfolio_snapshots WHERE snapshot_date = ? ORDER BY client_code`,
		domain.TruncateDay(date).Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []*domain.PortfolioSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func clientsUpTo(ctx context.Context, q queryer, date time.Time) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT client_code FROM portfolio_snapshots
		WHERE snapshot_date <= ? ORDER BY client_code
	`, domain.TruncateDay(date).Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// History returns client's dated values and returns, oldest first.
func (r *SnapshotRepository) History(ctx context.Context, client string) ([]domain.HistoryPoint, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+snapshotColumns+`
		FROM portfolio_snapshots WHERE client_code = ? ORDER BY snapshot_date ASC`, client)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	points := []domain.HistoryPoint{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, domain.HistoryPoint{
			SnapshotDate:             snap.SnapshotDate,
			TotalValue:               snap.Metrics.TotalValue,
			RealGainLossPercent:      snap.Metrics.RealGainLossPercent,
			InceptionGainLossPercent: snap.Metrics.InceptionGainLossPercent,
		})
	}
	return points, rows.Err()
}

// Dates returns the distinct snapshot dates, newest first.
func (r *SnapshotRepository) Dates(ctx context.Context) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT snapshot_date FROM portfolio_snapshots ORDER BY snapshot_date DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot dates: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var unix int64
		if err := rows.Scan(&unix); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot date: %w", err)
		}
		out = append(out, time.Unix(unix, 0).UTC())
	}
	return out, rows.Err()
}

func (r *SnapshotRepository) one(ctx context.Context, query string, args ...interface{}) (*domain.PortfolioSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	var snap *domain.PortfolioSnapshot
	if rows.Next() {
		snap, err = scanSnapshot(rows)
	}
	closeErr := rows.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", closeErr)
	}
	if snap == nil {
		return nil, nil
	}

	snap.Positions, err = r.positions(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *SnapshotRepository) positions(ctx context.Context, snapshotID int64) ([]domain.SnapshotPosition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT bank, account_code, identifier, name, asset_type, quantity, market_value, cost_basis
		FROM snapshot_positions WHERE snapshot_id = ? ORDER BY rowid
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var out []domain.SnapshotPosition
	for rows.Next() {
		var (
			p               domain.SnapshotPosition
			bank, assetType string
			quantity, mv    string
			cost            sql.NullString
		)
		if err := rows.Scan(&bank, &p.AccountCode, &p.Identifier, &p.Name, &assetType, &quantity, &mv, &cost); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		p.Bank = domain.BankCode(bank)
		p.AssetType = domain.ParseAssetType(assetType)
		p.Quantity, _ = decimal.NewFromString(quantity)
		p.MarketValue, _ = decimal.NewFromString(mv)
		if cost.Valid {
			if d, err := decimal.NewFromString(cost.String); err == nil {
				p.CostBasis = &d
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanSnapshot(rows *sql.Rows) (*domain.PortfolioSnapshot, error) {
	var (
		snap          domain.PortfolioSnapshot
		date, created int64
		metrics       string
	)
	if err := rows.Scan(&snap.ID, &snap.ClientCode, &date, &metrics, &created); err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &snap.Metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics of %s: %w", snap.ClientCode, err)
	}
	snap.SnapshotDate = time.Unix(date, 0).UTC()
	snap.CreatedAt = time.Unix(created, 0).UTC()
	return &snap, nil
}
