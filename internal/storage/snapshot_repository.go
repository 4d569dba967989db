package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/delta-monitor/internal/types"
)

// ErrSnapshotNotFound is returned when no snapshot exists for an address.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotRecord is the headline row of a persisted snapshot, used for
// history listings without deserializing full payloads.
type SnapshotRecord struct {
	ID           uuid.UUID `json:"id"`
	EVMAddress   string    `json:"evmAddress"`
	CoreAddress  string    `json:"coreAddress"`
	TotalUSD     float64   `json:"totalUsd"`
	NetDeltaHYPE float64   `json:"netDeltaHype"`
	Degraded     bool      `json:"degraded"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SnapshotRepository persists portfolio snapshots. The full snapshot is
// stored as a JSONB payload next to a few queryable headline columns.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a snapshot repository.
func NewSnapshotRepository(db *PostgresDB) *SnapshotRepository {
	return &SnapshotRepository{pool: db.Pool()}
}

// Save persists one snapshot and returns its id.
func (r *SnapshotRepository) Save(ctx context.Context, snapshot *types.PortfolioSnapshot) (uuid.UUID, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	id := uuid.New()
	query := `
		INSERT INTO portfolio_snapshots (
			id, evm_address, core_address, total_usd, net_delta_hype, degraded, payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		id,
		strings.ToLower(snapshot.EVMAddress),
		strings.ToLower(snapshot.CoreAddress),
		snapshot.TotalUSD,
		snapshot.NetDeltaHYPE,
		snapshot.Degraded(),
		payload,
		snapshot.Timestamp,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return id, nil
}

// Latest returns the most recent snapshot stored for the address.
func (r *SnapshotRepository) Latest(ctx context.Context, evmAddress string) (*types.PortfolioSnapshot, error) {
	query := `
		SELECT payload
		FROM portfolio_snapshots
		WHERE evm_address = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var payload []byte
	err := r.pool.QueryRow(ctx, query, strings.ToLower(evmAddress)).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	var snapshot types.PortfolioSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot payload: %w", err)
	}
	return &snapshot, nil
}

// History lists the address's stored snapshots, newest first.
func (r *SnapshotRepository) History(ctx context.Context, evmAddress string, limit int) ([]SnapshotRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT id, evm_address, core_address, total_usd, net_delta_hype, degraded, created_at
		FROM portfolio_snapshots
		WHERE evm_address = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, strings.ToLower(evmAddress), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history: %w", err)
	}
	defer rows.Close()

	var records []SnapshotRecord
	for rows.Next() {
		var rec SnapshotRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.EVMAddress,
			&rec.CoreAddress,
			&rec.TotalUSD,
			&rec.NetDeltaHYPE,
			&rec.Degraded,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshot records: %w", err)
	}

	return records, nil
}

// Prune deletes snapshots older than the retention window, returning how
// many rows were removed.
func (r *SnapshotRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM portfolio_snapshots WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
