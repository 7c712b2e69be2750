package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/letsquiz/internal/domain"
	"github.com/victornm/letsquiz/internal/errors"
)

const quizColumns = `quiz_id, title, description, created_by, time_limit_seconds,
	immediate_feedback, allow_multiple_attempts, allowed_users, allowed_groups`

func scanQuiz(r pgx.CollectableRow) (domain.Quiz, error) {
	var q domain.Quiz
	err := r.Scan(&q.QuizID, &q.Title, &q.Description, &q.CreatedBy, &q.TimeLimitSeconds,
		&q.ImmediateFeedback, &q.AllowMultipleAttempts, &q.AllowedUsers, &q.AllowedGroups)
	return q, err
}

func (s *Store) GetQuiz(ctx context.Context, quizID int64) (*domain.Quiz, error) {
	const stmt = `SELECT ` + quizColumns + ` FROM quizzes WHERE quiz_id = $1;`

	rows, err := s.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	q, err := pgx.CollectExactlyOneRow(rows, scanQuiz)
	if err != nil {
		return nil, notFound(err, "quiz not found: %d", quizID)
	}
	return &q, nil
}

func (s *Store) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	const stmt = `SELECT ` + quizColumns + ` FROM quizzes ORDER BY quiz_id;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	return pgx.CollectRows(rows, scanQuiz)
}

func (s *Store) InsertQuiz(ctx context.Context, q *domain.Quiz) error {
	const stmt = `
INSERT INTO quizzes (title, description, created_by, time_limit_seconds,
	immediate_feedback, allow_multiple_attempts, allowed_users, allowed_groups)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING quiz_id;`

	users, groups := q.AllowedUsers, q.AllowedGroups
	if users == nil {
		users = []string{}
	}
	if groups == nil {
		groups = []string{}
	}

	return s.db.QueryRow(ctx, stmt, q.Title, q.Description, q.CreatedBy, q.TimeLimitSeconds,
		q.ImmediateFeedback, q.AllowMultipleAttempts, users, groups).Scan(&q.QuizID)
}

func (s *Store) GetQuestion(ctx context.Context, questionID int64) (*domain.Question, error) {
	const stmt = `
SELECT question_id, text, maximum_marks, mode, correct_answer, published
FROM questions WHERE question_id = $1;`

	var q domain.Question
	err := s.db.QueryRow(ctx, stmt, questionID).
		Scan(&q.QuestionID, &q.Text, &q.MaximumMarks, &q.Mode, &q.CorrectAnswer, &q.Published)
	if err != nil {
		return nil, notFound(err, "question not found: %d", questionID)
	}

	qs := []*domain.Question{&q}
	if err := s.loadChoices(ctx, qs); err != nil {
		return nil, err
	}
	if err := s.loadMatchingPairs(ctx, qs); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *Store) ListQuizQuestions(ctx context.Context, quizID int64) ([]domain.QuizQuestion, error) {
	const stmt = `
SELECT qq.quiz_id, qq.question_order,
	q.question_id, q.text, q.maximum_marks, q.mode, q.correct_answer, q.published
FROM quiz_questions qq
JOIN questions q ON q.question_id = qq.question_id
WHERE qq.quiz_id = $1
ORDER BY qq.question_order;`

	rows, err := s.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, fmt.Errorf("list quiz questions: %w", err)
	}

	qqs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.QuizQuestion, error) {
		var qq domain.QuizQuestion
		q := &qq.Question
		err := r.Scan(&qq.QuizID, &qq.Order,
			&q.QuestionID, &q.Text, &q.MaximumMarks, &q.Mode, &q.CorrectAnswer, &q.Published)
		return qq, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect quiz questions: %w", err)
	}

	qs := make([]*domain.Question, 0, len(qqs))
	for i := range qqs {
		qs = append(qs, &qqs[i].Question)
	}
	if err := s.loadChoices(ctx, qs); err != nil {
		return nil, err
	}
	if err := s.loadMatchingPairs(ctx, qs); err != nil {
		return nil, err
	}

	return qqs, nil
}

func (s *Store) loadChoices(ctx context.Context, qs []*domain.Question) error {
	if len(qs) == 0 {
		return nil
	}

	const stmt = `
SELECT choice_id, question_id, text, is_correct
FROM choices WHERE question_id = ANY($1)
ORDER BY choice_id;`

	byID := indexQuestions(qs)
	rows, err := s.db.Query(ctx, stmt, keys(byID))
	if err != nil {
		return fmt.Errorf("list choices: %w", err)
	}

	cs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.Choice])
	if err != nil {
		return fmt.Errorf("collect choices: %w", err)
	}

	for _, c := range cs {
		q := byID[c.QuestionID]
		q.Choices = append(q.Choices, c)
	}
	return nil
}

func (s *Store) loadMatchingPairs(ctx context.Context, qs []*domain.Question) error {
	if len(qs) == 0 {
		return nil
	}

	const stmt = `
SELECT pair_id, question_id, left_text, right_text
FROM matching_pairs WHERE question_id = ANY($1)
ORDER BY pair_id;`

	byID := indexQuestions(qs)
	rows, err := s.db.Query(ctx, stmt, keys(byID))
	if err != nil {
		return fmt.Errorf("list matching pairs: %w", err)
	}

	ps, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.MatchingPair])
	if err != nil {
		return fmt.Errorf("collect matching pairs: %w", err)
	}

	for _, p := range ps {
		q := byID[p.QuestionID]
		q.MatchingPairs = append(q.MatchingPairs, p)
	}
	return nil
}

// InsertQuestion locks the quiz row so concurrent inserts into the same quiz get
// consecutive orders.
func (s *Store) InsertQuestion(ctx context.Context, quizID int64, q *domain.Question) (int, error) {
	var order int

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		const (
			lockQuizStmt = `SELECT quiz_id FROM quizzes WHERE quiz_id = $1 FOR UPDATE;`

			insQuestionStmt = `
INSERT INTO questions (text, maximum_marks, mode, correct_answer, published)
VALUES ($1, $2, $3, $4, $5)
RETURNING question_id;`

			insChoiceStmt = `INSERT INTO choices (question_id, text, is_correct) VALUES ($1, $2, $3) RETURNING choice_id;`
			insPairStmt   = `INSERT INTO matching_pairs (question_id, left_text, right_text) VALUES ($1, $2, $3) RETURNING pair_id;`

			insQuizQuestionStmt = `
INSERT INTO quiz_questions (quiz_id, question_id, question_order)
SELECT $1, $2, COALESCE(MAX(question_order), 0) + 1 FROM quiz_questions WHERE quiz_id = $1
RETURNING question_order;`
		)

		var id int64
		if err := tx.QueryRow(ctx, lockQuizStmt, quizID).Scan(&id); err != nil {
			return notFound(err, "quiz not found: %d", quizID)
		}

		if err := tx.QueryRow(ctx, insQuestionStmt, q.Text, q.MaximumMarks, q.Mode, q.CorrectAnswer, q.Published).
			Scan(&q.QuestionID); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}

		for i := range q.Choices {
			c := &q.Choices[i]
			c.QuestionID = q.QuestionID
			if err := tx.QueryRow(ctx, insChoiceStmt, c.QuestionID, c.Text, c.IsCorrect).Scan(&c.ChoiceID); err != nil {
				return fmt.Errorf("insert choice: %w", err)
			}
		}

		for i := range q.MatchingPairs {
			p := &q.MatchingPairs[i]
			p.QuestionID = q.QuestionID
			if err := tx.QueryRow(ctx, insPairStmt, p.QuestionID, p.Left, p.Right).Scan(&p.PairID); err != nil {
				return fmt.Errorf("insert matching pair: %w", err)
			}
		}

		err := tx.QueryRow(ctx, insQuizQuestionStmt, quizID, q.QuestionID).Scan(&order)
		if isUniqueViolation(err) {
			return errors.New(errors.CodeAlreadyExists, errors.WithCause(err))
		}
		if err != nil {
			return fmt.Errorf("insert quiz question: %w", err)
		}

		return nil
	})

	return order, err
}

func indexQuestions(qs []*domain.Question) map[int64]*domain.Question {
	m := make(map[int64]*domain.Question, len(qs))
	for _, q := range qs {
		m[q.QuestionID] = q
	}
	return m
}

func keys[V any](m map[int64]V) []int64 {
	ks := make([]int64, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	return ks
}
