package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/letsquiz/internal/domain"
	"github.com/victornm/letsquiz/internal/errors"
)

const attemptColumns = `a.attempt_id, a.username, a.question_id, a.text_answer, a.is_correct,
	a.marks_obtained, a.graded, a.create_time, a.grade_time,
	ARRAY(SELECT c.choice_id FROM attempted_question_choices c WHERE c.attempt_id = a.attempt_id ORDER BY c.choice_id)`

func scanAttempt(r pgx.CollectableRow) (domain.AttemptedQuestion, error) {
	var (
		a         domain.AttemptedQuestion
		gradeTime *time.Time
	)
	err := r.Scan(&a.AttemptID, &a.Username, &a.QuestionID, &a.TextAnswer, &a.IsCorrect,
		&a.MarksObtained, &a.Graded, &a.CreateTime, &gradeTime, &a.SelectedChoiceIDs)
	a.GradeTime = fromNullTime(gradeTime)
	return a, err
}

func (s *Store) GetOrCreateProfile(ctx context.Context, username string) (*domain.QuizProfile, error) {
	const stmt = `
INSERT INTO quiz_profiles (username) VALUES ($1)
ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
RETURNING username, total_score, create_time;`

	var p domain.QuizProfile
	if err := s.db.QueryRow(ctx, stmt, username).Scan(&p.Username, &p.TotalScore, &p.CreateTime); err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return &p, nil
}

func (s *Store) InsertAttempt(ctx context.Context, username string, questionID int64, now time.Time) (*domain.AttemptedQuestion, error) {
	const stmt = `
INSERT INTO attempted_questions (username, question_id, create_time)
VALUES ($1, $2, $3)
ON CONFLICT (username, question_id) DO NOTHING;`

	if _, err := s.db.Exec(ctx, stmt, username, questionID, now); err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}

	return s.GetAttempt(ctx, username, questionID)
}

func (s *Store) GetAttempt(ctx context.Context, username string, questionID int64) (*domain.AttemptedQuestion, error) {
	const stmt = `SELECT ` + attemptColumns + `
FROM attempted_questions a
WHERE a.username = $1 AND a.question_id = $2;`

	rows, err := s.db.Query(ctx, stmt, username, questionID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	a, err := pgx.CollectExactlyOneRow(rows, scanAttempt)
	if err != nil {
		return nil, notFound(err, "attempt not found: username=%s, question=%d", username, questionID)
	}
	return &a, nil
}

func (s *Store) GradeAttempt(ctx context.Context, a *domain.AttemptedQuestion) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		const (
			gradeStmt = `
UPDATE attempted_questions
SET text_answer = $3, is_correct = $4, marks_obtained = $5, graded = TRUE, grade_time = $6
WHERE username = $1 AND question_id = $2 AND graded = FALSE
RETURNING attempt_id;`

			delChoicesStmt = `DELETE FROM attempted_question_choices WHERE attempt_id = $1;`

			insChoicesStmt = `
INSERT INTO attempted_question_choices (attempt_id, choice_id)
SELECT $1, unnest($2::BIGINT[]);`

			existsStmt = `SELECT EXISTS (SELECT 1 FROM attempted_questions WHERE username = $1 AND question_id = $2);`
		)

		err := tx.QueryRow(ctx, gradeStmt, a.Username, a.QuestionID,
			a.TextAnswer, a.IsCorrect, a.MarksObtained, nullTime(a.GradeTime)).Scan(&a.AttemptID)
		if stderrors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, existsStmt, a.Username, a.QuestionID).Scan(&exists); err != nil {
				return fmt.Errorf("check attempt: %w", err)
			}
			if !exists {
				return errors.NotFound("attempt not found: username=%s, question=%d", a.Username, a.QuestionID)
			}
			return errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("attempt is already graded: username=%s, question=%d", a.Username, a.QuestionID))
		}
		if err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}

		if _, err := tx.Exec(ctx, delChoicesStmt, a.AttemptID); err != nil {
			return fmt.Errorf("delete selected choices: %w", err)
		}

		if len(a.SelectedChoiceIDs) > 0 {
			if _, err := tx.Exec(ctx, insChoicesStmt, a.AttemptID, a.SelectedChoiceIDs); err != nil {
				return fmt.Errorf("insert selected choices: %w", err)
			}
		}

		return nil
	})
}

func (s *Store) ListAttempts(ctx context.Context, username string, questionIDs []int64) ([]domain.AttemptedQuestion, error) {
	if len(questionIDs) == 0 {
		return nil, nil
	}

	const stmt = `SELECT ` + attemptColumns + `
FROM attempted_questions a
WHERE a.username = $1 AND a.question_id = ANY($2);`

	rows, err := s.db.Query(ctx, stmt, username, questionIDs)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	return pgx.CollectRows(rows, scanAttempt)
}

func (s *Store) DeleteAttempts(ctx context.Context, username string, questionIDs []int64) (int64, error) {
	if len(questionIDs) == 0 {
		return 0, nil
	}

	const stmt = `DELETE FROM attempted_questions WHERE username = $1 AND question_id = ANY($2);`

	tag, err := s.db.Exec(ctx, stmt, username, questionIDs)
	if err != nil {
		return 0, fmt.Errorf("delete attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}
