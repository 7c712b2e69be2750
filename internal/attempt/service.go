package attempt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/victornm/letsquiz/internal/domain"
	"github.com/victornm/letsquiz/internal/errors"
	"github.com/victornm/letsquiz/internal/grading"
)

// Store is the persistence the attempt tracker needs.
type Store interface {
	// GetOrCreateProfile returns the user's profile, creating an empty one on first use.
	GetOrCreateProfile(ctx context.Context, username string) (*domain.QuizProfile, error)
	// InsertAttempt creates an ungraded attempt. If the user already has an attempt for
	// the question, that attempt is returned unchanged.
	InsertAttempt(ctx context.Context, username string, questionID int64, now time.Time) (*domain.AttemptedQuestion, error)
	GetAttempt(ctx context.Context, username string, questionID int64) (*domain.AttemptedQuestion, error)
	// GradeAttempt writes the graded fields and the selected choices of a pending attempt
	// in one unit. It fails with CodeAlreadyExists when the attempt is already graded.
	GradeAttempt(ctx context.Context, a *domain.AttemptedQuestion) error
	ListAttempts(ctx context.Context, username string, questionIDs []int64) ([]domain.AttemptedQuestion, error)
	DeleteAttempts(ctx context.Context, username string, questionIDs []int64) (int64, error)
}

type Config struct {
	Store Store
	Now   func() time.Time
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store: c.Store,
		now:   c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

func (s *Service) Profile(ctx context.Context, username string) (*domain.QuizProfile, error) {
	p, err := s.store.GetOrCreateProfile(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// Begin records that the user has reached a question. Calling it again for the same
// question returns the existing attempt.
func (s *Service) Begin(ctx context.Context, username string, questionID int64) (*domain.AttemptedQuestion, error) {
	a, err := s.store.InsertAttempt(ctx, username, questionID, s.now())
	if err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}
	return a, nil
}

// Pending returns the user's ungraded attempt for a question.
func (s *Service) Pending(ctx context.Context, username string, questionID int64) (*domain.AttemptedQuestion, error) {
	a, err := s.store.GetAttempt(ctx, username, questionID)
	if err != nil {
		return nil, err
	}

	if a.Graded {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("answer is already submitted: username=%s, question=%d", username, questionID))
	}

	return a, nil
}

// Record stores the grading result on a pending attempt.
func (s *Service) Record(ctx context.Context, a *domain.AttemptedQuestion, r grading.Result) error {
	graded := *a
	graded.SelectedChoiceIDs = r.SelectedChoiceIDs
	graded.TextAnswer = r.TextAnswer
	graded.IsCorrect = r.IsCorrect
	graded.MarksObtained = r.MarksObtained
	graded.Graded = true
	graded.GradeTime = s.now()

	if err := s.store.GradeAttempt(ctx, &graded); err != nil {
		if errors.HasCode(err, errors.CodeAlreadyExists) {
			return err
		}
		return fmt.Errorf("grade attempt: %w", err)
	}

	*a = graded

	slog.InfoContext(ctx, "attempt: graded",
		"username", a.Username,
		"question_id", a.QuestionID,
		"is_correct", a.IsCorrect,
		"marks", a.MarksObtained.String(),
	)

	return nil
}

// Attempts returns the user's attempts for the given questions, keyed by question ID.
func (s *Service) Attempts(ctx context.Context, username string, questionIDs []int64) (map[int64]domain.AttemptedQuestion, error) {
	as, err := s.store.ListAttempts(ctx, username, questionIDs)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	m := make(map[int64]domain.AttemptedQuestion, len(as))
	for _, a := range as {
		m[a.QuestionID] = a
	}
	return m, nil
}

// Attempted returns the IDs of the given questions the user has an attempt for. Served
// questions count whether or not they were graded.
func (s *Service) Attempted(ctx context.Context, username string, questionIDs []int64) (map[int64]bool, error) {
	as, err := s.Attempts(ctx, username, questionIDs)
	if err != nil {
		return nil, err
	}

	attempted := make(map[int64]bool, len(as))
	for id := range as {
		attempted[id] = true
	}
	return attempted, nil
}

// Clear deletes the user's attempts for the given questions.
func (s *Service) Clear(ctx context.Context, username string, questionIDs []int64) error {
	n, err := s.store.DeleteAttempts(ctx, username, questionIDs)
	if err != nil {
		return fmt.Errorf("delete attempts: %w", err)
	}

	slog.InfoContext(ctx, "attempt: cleared", "username", username, "deleted", n)
	return nil
}
