package bank

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/victornm/letsquiz/internal/domain"
	"github.com/victornm/letsquiz/internal/errors"
)

// maxMarks is the largest value a NUMERIC(6,2) column holds.
var maxMarks = decimal.RequireFromString("9999.99")

// Store is the persistence the question bank needs.
type Store interface {
	GetQuestion(ctx context.Context, questionID int64) (*domain.Question, error)
	GetQuiz(ctx context.Context, quizID int64) (*domain.Quiz, error)
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
	ListQuizQuestions(ctx context.Context, quizID int64) ([]domain.QuizQuestion, error)
	InsertQuiz(ctx context.Context, q *domain.Quiz) error
	// InsertQuestion stores q and appends it to the quiz after its current last question.
	InsertQuestion(ctx context.Context, quizID int64, q *domain.Question) (order int, err error)
}

type Config struct {
	Store Store
}

type Service struct {
	store    Store
	validate *validator.Validate
}

func NewService(c Config) *Service {
	return &Service{
		store:    c.Store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Service) GetQuestion(ctx context.Context, questionID int64) (*domain.Question, error) {
	return s.store.GetQuestion(ctx, questionID)
}

func (s *Service) GetQuiz(ctx context.Context, quizID int64) (*domain.Quiz, error) {
	return s.store.GetQuiz(ctx, quizID)
}

func (s *Service) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return s.store.ListQuizzes(ctx)
}

// QuizQuestions returns the quiz's questions sorted by their order.
func (s *Service) QuizQuestions(ctx context.Context, quizID int64) ([]domain.QuizQuestion, error) {
	if _, err := s.store.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}

	return s.store.ListQuizQuestions(ctx, quizID)
}

// QuizQuestionIDs returns the IDs of the quiz's questions in order.
func (s *Service) QuizQuestionIDs(ctx context.Context, quizID int64) ([]int64, error) {
	qs, err := s.QuizQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(qs))
	for _, q := range qs {
		ids = append(ids, q.Question.QuestionID)
	}
	return ids, nil
}

// CreateQuizRequest represents a request to create a new quiz.
type CreateQuizRequest struct {
	Title                 string `validate:"required,max=200"`
	Description           string `validate:"max=2000"`
	CreatedBy             string `validate:"required"`
	TimeLimitSeconds      int32  `validate:"gte=0"`
	ImmediateFeedback     bool
	AllowMultipleAttempts bool
	AllowedUsers          []string `validate:"dive,required"`
	AllowedGroups         []string `validate:"dive,required"`
}

func (s *Service) CreateQuiz(ctx context.Context, req CreateQuizRequest) (*domain.Quiz, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	q := &domain.Quiz{
		Title:                 strings.TrimSpace(req.Title),
		Description:           req.Description,
		CreatedBy:             req.CreatedBy,
		TimeLimitSeconds:      req.TimeLimitSeconds,
		ImmediateFeedback:     req.ImmediateFeedback,
		AllowMultipleAttempts: req.AllowMultipleAttempts,
		AllowedUsers:          req.AllowedUsers,
		AllowedGroups:         req.AllowedGroups,
	}

	if err := s.store.InsertQuiz(ctx, q); err != nil {
		return nil, fmt.Errorf("insert quiz: %w", err)
	}

	slog.InfoContext(ctx, "bank: quiz created", "quiz_id", q.QuizID, "created_by", q.CreatedBy)
	return q, nil
}

// AddQuestionRequest represents a request to append a question to a quiz.
// A nil MaximumMarks falls back to domain.DefaultMaximumMarks.
type AddQuestionRequest struct {
	QuizID        int64  `validate:"required"`
	Text          string `validate:"required,max=5000"`
	MaximumMarks  *decimal.Decimal
	Mode          domain.Mode           `validate:"required,oneof=single multiple text matching"`
	CorrectAnswer string                `validate:"max=500"`
	Choices       []ChoiceRequest       `validate:"max=10,dive"`
	MatchingPairs []MatchingPairRequest `validate:"max=10,dive"`
	Published     bool
}

type ChoiceRequest struct {
	Text      string `validate:"required,max=1000"`
	IsCorrect bool
}

type MatchingPairRequest struct {
	Left  string `validate:"required,max=500"`
	Right string `validate:"required,max=500"`
}

// AddQuestion validates the question against its mode's invariants and appends it to the quiz.
func (s *Service) AddQuestion(ctx context.Context, req AddQuestionRequest) (*domain.QuizQuestion, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	q := domain.Question{
		Text:          strings.TrimSpace(req.Text),
		MaximumMarks:  domain.DefaultMaximumMarks,
		Mode:          req.Mode,
		CorrectAnswer: strings.TrimSpace(req.CorrectAnswer),
		Published:     req.Published,
	}
	if req.MaximumMarks != nil {
		q.MaximumMarks = *req.MaximumMarks
	}
	for _, c := range req.Choices {
		q.Choices = append(q.Choices, domain.Choice{Text: c.Text, IsCorrect: c.IsCorrect})
	}
	for _, p := range req.MatchingPairs {
		q.MatchingPairs = append(q.MatchingPairs, domain.MatchingPair{Left: p.Left, Right: p.Right})
	}

	if err := ValidateQuestion(q); err != nil {
		return nil, err
	}

	if _, err := s.store.GetQuiz(ctx, req.QuizID); err != nil {
		return nil, err
	}

	order, err := s.store.InsertQuestion(ctx, req.QuizID, &q)
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}

	slog.InfoContext(ctx, "bank: question added",
		"quiz_id", req.QuizID,
		"question_id", q.QuestionID,
		"mode", q.Mode,
		"order", order,
	)

	return &domain.QuizQuestion{QuizID: req.QuizID, Order: order, Question: q}, nil
}

// ValidateQuestion checks the invariants the grader relies on. A question failing
// them must never reach the grader.
func ValidateQuestion(q domain.Question) error {
	if q.MaximumMarks.IsNegative() || q.MaximumMarks.GreaterThan(maxMarks) {
		return errors.InvalidArgument("maximum marks must be between 0 and %s", maxMarks)
	}
	if !q.MaximumMarks.Equal(q.MaximumMarks.Round(2)) {
		return errors.InvalidArgument("maximum marks must have at most 2 decimal places")
	}

	correct := len(q.CorrectChoiceIDs())

	switch q.Mode {
	case domain.ModeSingleChoice:
		if len(q.Choices) < 2 {
			return errors.InvalidArgument("single choice question needs at least 2 choices")
		}
		if correct != 1 {
			return errors.InvalidArgument("single choice question needs exactly 1 correct choice, got %d", correct)
		}
	case domain.ModeMultipleChoice:
		if len(q.Choices) < 2 {
			return errors.InvalidArgument("multiple choice question needs at least 2 choices")
		}
		if correct < 1 {
			return errors.InvalidArgument("multiple choice question needs at least 1 correct choice")
		}
	case domain.ModeText:
		if q.CorrectAnswer == "" {
			return errors.InvalidArgument("text question needs a correct answer")
		}
		if len(q.Choices) > 0 {
			return errors.InvalidArgument("text question cannot have choices")
		}
	case domain.ModeMatching:
		if len(q.MatchingPairs) == 0 {
			return errors.InvalidArgument("matching question needs at least 1 pair")
		}
		if len(q.Choices) > 0 {
			return errors.InvalidArgument("matching question cannot have choices")
		}
	default:
		return errors.InvalidArgument("unknown question mode: %q", q.Mode)
	}

	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.New(errors.CodeInvalidArgument, errors.WithCause(err))
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed on %s", fe.Namespace(), fe.Tag()))
	}

	return errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("invalid request: %s", strings.Join(msgs, "; ")),
		errors.WithCause(err),
	)
}
