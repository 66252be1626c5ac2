// Package store is a small relational primary store for the LMS entities
// the caches project. It backs the examples and the integration tests.
package store

import (
	"context"
	"database/sql"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Store wraps a bun database.
type Store struct {
	db *bun.DB
}

// Open connects to the sqlite database at dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to open database")
	}
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to reach database")
	}
	return &Store{db: bun.NewDB(sqldb, sqlitedialect.New())}, nil
}

// OpenMemory opens a private in-memory database with the schema created.
func OpenMemory(ctx context.Context) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	s, err := Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	// one connection keeps the in-memory database alive and serialises writers
	s.db.SetMaxOpenConns(1)

	if err := s.CreateSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the bun handle.
func (s *Store) DB() *bun.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// CreateSchema creates every table that does not exist yet.
func (s *Store) CreateSchema(ctx context.Context) error {
	for _, model := range allModels() {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create schema").
				WithMetadata(map[string]any{"model": fmt.Sprintf("%T", model)})
		}
	}
	return nil
}

// Insert inserts records in order. Ids and timestamps are filled in.
func (s *Store) Insert(ctx context.Context, records ...any) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, record := range records {
			if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "insert failed").
					WithMetadata(map[string]any{"model": fmt.Sprintf("%T", record)})
			}
		}
		return nil
	})
}

func notFound(kind, id string, err error) error {
	if goerrors.Is(err, sql.ErrNoRows) {
		return goerrors.New(kind+" not found", goerrors.CategoryNotFound).
			WithTextCode("NOT_FOUND").
			WithMetadata(map[string]any{"id": id})
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, kind+" lookup failed").
		WithMetadata(map[string]any{"id": id})
}
