// Package catalog holds the music-catalog resources served behind the
// permission gate. Only genres live here for now; the remaining catalog
// entities follow the same pattern.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tuna.org/internal/auth"
)

// Genre is a catalog genre.
type Genre struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Store describes genre persistence.
type Store interface {
	CreateGenre(ctx context.Context, id, name string) (Genre, error)
	ListGenres(ctx context.Context, name string, limit int) ([]Genre, error)
	DeleteGenre(ctx context.Context, id string) error
}

// Service gates catalog operations on the acting principal's permissions.
// Catalog checks are direct: the required set is a route-defined constant,
// never computed from the payload.
type Service struct {
	store Store
	newID func() string
}

// NewService constructs a Service.
func NewService(store Store, newID func() string) (*Service, error) {
	if store == nil {
		return nil, errors.New("catalog store is required")
	}
	if newID == nil {
		return nil, errors.New("catalog id source is required")
	}
	return &Service{store: store, newID: newID}, nil
}

// CreateGenre adds a genre; requires GenreWrite.
func (s *Service) CreateGenre(ctx context.Context, actor auth.User, name string) (Genre, error) {
	if !auth.May(actor.Permissions, auth.NewSet(auth.PermGenreWrite)) {
		return Genre{}, auth.ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Genre{}, fmt.Errorf("%w: genre name is required", auth.ErrInvalidInput)
	}
	return s.store.CreateGenre(ctx, s.newID(), name)
}

// ListGenres returns genres matching the optional name substring; requires
// GenreRead.
func (s *Service) ListGenres(ctx context.Context, actor auth.User, name string, limit int) ([]Genre, error) {
	if !auth.May(actor.Permissions, auth.NewSet(auth.PermGenreRead)) {
		return nil, auth.ErrForbidden
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListGenres(ctx, strings.TrimSpace(name), limit)
}

// DeleteGenre removes a genre; requires GenreDelete. Deleting an absent
// genre is ErrNotFound.
func (s *Service) DeleteGenre(ctx context.Context, actor auth.User, id string) error {
	if !auth.May(actor.Permissions, auth.NewSet(auth.PermGenreDelete)) {
		return auth.ErrForbidden
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: genre id is required", auth.ErrInvalidInput)
	}
	return s.store.DeleteGenre(ctx, id)
}
