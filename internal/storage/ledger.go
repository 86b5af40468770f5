package storage

import (
	"context"
	"fmt"
	"time"

	"taskpilot/internal/reminder"
)

type fireRow struct {
	Key     string `db:"key"`
	FiredAt int64  `db:"fired_at"`
	Until   int64  `db:"until"`
}

// PutFire records a reminder occurrence.
func (s *Store) PutFire(ctx context.Context, f reminder.Fire) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger (key, fired_at, until) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET fired_at = excluded.fired_at, until = excluded.until`,
		f.Key, f.FiredAt.Unix(), f.Until.Unix())
	if err != nil {
		return fmt.Errorf("saving fire %s: %w", f.Key, err)
	}
	return nil
}

// LoadFires returns occurrences still unexpired at now.
func (s *Store) LoadFires(ctx context.Context, now time.Time) ([]reminder.Fire, error) {
	var rows []fireRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT key, fired_at, until FROM ledger WHERE until > ?", now.Unix()); err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}
	out := make([]reminder.Fire, 0, len(rows))
	for _, r := range rows {
		out = append(out, reminder.Fire{Key: r.Key, FiredAt: fromUnix(r.FiredAt), Until: fromUnix(r.Until)})
	}
	return out, nil
}

// PruneFires deletes expired occurrences.
func (s *Store) PruneFires(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM ledger WHERE until <= ?", now.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning ledger: %w", err)
	}
	return res.RowsAffected()
}
