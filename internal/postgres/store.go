// Package postgres implements every store interface on a pgx connection pool.
package postgres

import (
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/letsquiz/internal/attempt"
	"github.com/victornm/letsquiz/internal/bank"
	"github.com/victornm/letsquiz/internal/errors"
	"github.com/victornm/letsquiz/internal/score"
	"github.com/victornm/letsquiz/internal/session"
)

const codeUniqueViolation = "23505"

//go:embed schema.sql
var schema string

var (
	_ bank.Store    = (*Store)(nil)
	_ attempt.Store = (*Store)(nil)
	_ score.Store   = (*Store)(nil)
	_ session.Store = (*Store)(nil)
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Migrate creates the tables that do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	slog.InfoContext(ctx, "postgres: schema applied")
	return nil
}

// inTx runs fn in a transaction, committing when fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

func notFound(err error, format string, args ...any) error {
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.New(errors.CodeNotFound, errors.WithMessagef(format, args...), errors.WithCause(err))
	}
	return err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
