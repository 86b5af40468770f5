package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskpilot/internal/model"
)

type ownerRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	CreatedAt int64  `db:"created_at"`
}

func (r ownerRow) model() model.Owner {
	return model.Owner{ID: r.ID, Name: r.Name, CreatedAt: fromUnix(r.CreatedAt)}
}

// CreateOwner adds an owner with a fresh id.
func (s *Store) CreateOwner(ctx context.Context, name string) (model.Owner, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Owner{}, errors.New("owner name is required")
	}
	o := model.Owner{ID: uuid.New().String(), Name: name, CreatedAt: time.Now().Truncate(time.Second)}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO owners (id, name, created_at) VALUES (?, ?, ?)",
		o.ID, o.Name, o.CreatedAt.Unix())
	if err != nil {
		return model.Owner{}, fmt.Errorf("creating owner: %w", err)
	}
	return o, nil
}

// GetOwner returns ErrNotFound for unknown ids.
func (s *Store) GetOwner(ctx context.Context, id string) (model.Owner, error) {
	var r ownerRow
	err := s.db.GetContext(ctx, &r, "SELECT id, name, created_at FROM owners WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Owner{}, fmt.Errorf("owner %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Owner{}, fmt.Errorf("getting owner %s: %w", id, err)
	}
	return r.model(), nil
}

// Owners lists every owner, oldest first.
func (s *Store) Owners(ctx context.Context) ([]model.Owner, error) {
	var rows []ownerRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT id, name, created_at FROM owners ORDER BY created_at, id"); err != nil {
		return nil, fmt.Errorf("listing owners: %w", err)
	}
	out := make([]model.Owner, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// ListOwners returns owner ids for the reminder scheduler.
func (s *Store) ListOwners(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, "SELECT id FROM owners ORDER BY created_at, id"); err != nil {
		return nil, fmt.Errorf("listing owner ids: %w", err)
	}
	return ids, nil
}
