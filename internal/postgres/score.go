package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/victornm/letsquiz/internal/domain"
)

// RecomputeTotalScore sums the user's marks and stores the result in one transaction.
// The upsert locks the profile row until commit, so concurrent recomputes of one user
// run one after the other and the later one sums every attempt graded before it.
func (s *Store) RecomputeTotalScore(ctx context.Context, username string) (decimal.Decimal, error) {
	const (
		lock = `
INSERT INTO quiz_profiles (username) VALUES ($1)
ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username;`

		update = `
UPDATE quiz_profiles
SET total_score = (SELECT COALESCE(SUM(marks_obtained), 0) FROM attempted_questions WHERE username = $1)
WHERE username = $1
RETURNING total_score;`
	)

	var total decimal.Decimal
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lock, username); err != nil {
			return fmt.Errorf("lock profile: %w", err)
		}

		if err := tx.QueryRow(ctx, update, username).Scan(&total); err != nil {
			return fmt.Errorf("update total score: %w", err)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	return total, nil
}

func (s *Store) TotalScore(ctx context.Context, username string) (decimal.Decimal, error) {
	const stmt = `SELECT total_score FROM quiz_profiles WHERE username = $1;`

	var total decimal.Decimal
	err := s.db.QueryRow(ctx, stmt, username).Scan(&total)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *Store) SumMarksFor(ctx context.Context, username string, questionIDs []int64) (decimal.Decimal, error) {
	const stmt = `
SELECT COALESCE(SUM(marks_obtained), 0)
FROM attempted_questions
WHERE username = $1 AND question_id = ANY($2);`

	var total decimal.Decimal
	if err := s.db.QueryRow(ctx, stmt, username, questionIDs).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// ListProfiles orders by total score descending, then by username. A limit of 0 or
// less returns every profile.
func (s *Store) ListProfiles(ctx context.Context, limit int) ([]domain.QuizProfile, error) {
	const stmt = `
SELECT username, total_score, create_time
FROM quiz_profiles
ORDER BY total_score DESC, username
LIMIT $1;`

	var l *int
	if limit > 0 {
		l = &limit
	}

	rows, err := s.db.Query(ctx, stmt, l)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	return pgx.CollectRows(rows, pgx.RowToStructByPos[domain.QuizProfile])
}
