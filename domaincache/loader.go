package domaincache

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
	"go.uber.org/zap"
)

// Loader reads an entity from the primary store.
type Loader[E any] func(ctx context.Context, id string) (E, error)

// ByIDSource is the read side of a go-repository-bun repository.
type ByIDSource[E any] interface {
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (E, error)
}

// RepositoryLoader adapts repo to a Loader. criteria are applied to every load.
func RepositoryLoader[E any](repo ByIDSource[E], criteria ...repository.SelectCriteria) Loader[E] {
	return func(ctx context.Context, id string) (E, error) {
		return repo.GetByID(ctx, id, criteria...)
	}
}

// Writer is the write side of a go-repository-bun repository.
type Writer[E any] interface {
	Update(ctx context.Context, record E, criteria ...repository.UpdateCriteria) (E, error)
	Delete(ctx context.Context, record E) error
}

// Invalidator drops cache entries derived from record.
type Invalidator[E any] func(ctx context.Context, record E) error

// InvalidatingWriter runs invalidators after a write to the primary store
// has succeeded. A failed write invalidates nothing.
type InvalidatingWriter[E any] struct {
	base         Writer[E]
	invalidators []Invalidator[E]
	logger       *zap.Logger
}

// NewInvalidatingWriter wraps base.
func NewInvalidatingWriter[E any](base Writer[E], logger *zap.Logger, invalidators ...Invalidator[E]) *InvalidatingWriter[E] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvalidatingWriter[E]{base: base, invalidators: invalidators, logger: logger}
}

// Update updates a record and invalidates the entries derived from the result.
func (w *InvalidatingWriter[E]) Update(ctx context.Context, record E, criteria ...repository.UpdateCriteria) (E, error) {
	result, err := w.base.Update(ctx, record, criteria...)
	if err == nil {
		w.invalidate(ctx, "update", result)
	}
	return result, err
}

// Delete deletes a record and invalidates the entries derived from it.
func (w *InvalidatingWriter[E]) Delete(ctx context.Context, record E) error {
	err := w.base.Delete(ctx, record)
	if err == nil {
		w.invalidate(ctx, "delete", record)
	}
	return err
}

// invalidate never fails the write: entries that could not be dropped
// expire with their ttl.
func (w *InvalidatingWriter[E]) invalidate(ctx context.Context, op string, record E) {
	for _, invalidator := range w.invalidators {
		if err := invalidator(ctx, record); err != nil {
			w.logger.Error("cache invalidation failed after write",
				zap.String("op", op),
				zap.Error(err),
			)
		}
	}
}
