package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

// SnapshotRepository stores attendance snapshots. It implements attendance.Archive.
type SnapshotRepository struct {
	pool *Pool
}

// NewSnapshotRepository creates a new PostgreSQL snapshot repository
func NewSnapshotRepository(pool *Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// Archive inserts snap under a new id.
func (r *SnapshotRepository) Archive(ctx context.Context, reason string, snap attendance.Snapshot) (*attendance.ArchivedSnapshot, error) {
	date, err := time.Parse(constants.SnapshotDateLayout, snap.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot date %q: %w", snap.Date, err)
	}
	if snap.Present == nil {
		snap.Present = []attendance.Entry{}
	}
	present, err := json.Marshal(snap.Present)
	if err != nil {
		return nil, fmt.Errorf("marshal present list: %w", err)
	}

	archived := &attendance.ArchivedSnapshot{
		ID:       uuid.NewString(),
		Reason:   reason,
		Snapshot: snap,
	}

	query := `
		INSERT INTO attendance_snapshots (id, reason, snapshot_date, snapshot_time, present, present_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING archived_at
	`
	err = r.pool.QueryRow(ctx, query,
		archived.ID, reason, date, snap.Time, string(present), len(snap.Present),
	).Scan(&archived.ArchivedAt)
	if err != nil {
		return nil, fmt.Errorf("archive snapshot: %w", err)
	}
	return archived, nil
}

// History returns up to limit snapshots, newest first.
func (r *SnapshotRepository) History(ctx context.Context, limit int) ([]attendance.ArchivedSnapshot, error) {
	if limit <= 0 {
		limit = constants.DefaultHistoryLimit
	}

	query := `
		SELECT id, reason, snapshot_date, to_char(snapshot_time, 'HH24:MI:SS'), present, archived_at
		FROM attendance_snapshots
		ORDER BY archived_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var result []attendance.ArchivedSnapshot
	for rows.Next() {
		var (
			s       attendance.ArchivedSnapshot
			date    time.Time
			present []byte
		)
		if err := rows.Scan(&s.ID, &s.Reason, &date, &s.Snapshot.Time, &present, &s.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		s.Snapshot.Date = date.Format(constants.SnapshotDateLayout)
		if err := json.Unmarshal(present, &s.Snapshot.Present); err != nil {
			return nil, fmt.Errorf("decode present list of %s: %w", s.ID, err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return result, nil
}

// Count returns the number of archived snapshots.
func (r *SnapshotRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM attendance_snapshots").Scan(&count); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return count, nil
}

var _ attendance.Archive = (*SnapshotRepository)(nil)
