package pg

import (
	"context"
	"time"

	"tuna.org/internal/auth"
	"tuna.org/internal/catalog"
)

var _ catalog.Store = (*Store)(nil)

func (s *Store) CreateGenre(ctx context.Context, id, name string) (catalog.Genre, error) {
	var created time.Time
	err := s.db.QueryRowContext(ctx, `
		insert into genres (id, name)
		values ($1, $2)
		returning created_at
	`, id, name).Scan(&created)
	if isUniqueViolation(err) {
		return catalog.Genre{}, auth.ErrConflict
	}
	if err != nil {
		return catalog.Genre{}, err
	}
	return catalog.Genre{ID: id, Name: name, CreatedAt: created}, nil
}

func (s *Store) ListGenres(ctx context.Context, name string, limit int) ([]catalog.Genre, error) {
	query := `select id, name, created_at from genres`
	var args []any
	if name != "" {
		query += ` where name like $1 order by name limit $2`
		args = append(args, "%"+name+"%", limit)
	} else {
		query += ` order by name limit $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var genres []catalog.Genre
	for rows.Next() {
		var g catalog.Genre
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

func (s *Store) DeleteGenre(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from genres where id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
