package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/victornm/letsquiz/internal/attempt"
	"github.com/victornm/letsquiz/internal/bank"
	"github.com/victornm/letsquiz/internal/domain"
	"github.com/victornm/letsquiz/internal/errors"
	"github.com/victornm/letsquiz/internal/event"
	"github.com/victornm/letsquiz/internal/grading"
	"github.com/victornm/letsquiz/internal/score"
	"github.com/victornm/letsquiz/internal/telemetry"
)

// Store persists the session-level quiz attempt records.
type Store interface {
	// InsertQuizAttempt fails with CodeAlreadyExists when the user already has an
	// unfinished attempt on the quiz.
	InsertQuizAttempt(ctx context.Context, a *domain.QuizAttempt) error
	UpdateQuizAttempt(ctx context.Context, a *domain.QuizAttempt) error
	GetQuizAttempt(ctx context.Context, attemptID string) (*domain.QuizAttempt, error)
	// ListQuizAttempts returns the user's attempts on a quiz, most recent first.
	ListQuizAttempts(ctx context.Context, username string, quizID int64) ([]domain.QuizAttempt, error)
}

type Config struct {
	EventBus *event.Bus
	Bank     *bank.Service
	Attempts *attempt.Service
	Score    *score.Service
	Store    Store
	States   StateStore
	Now      func() time.Time
}

// Service is the progression controller: it decides which question a user sees next,
// grades submissions and keeps the time budget of a play session.
type Service struct {
	eb       *event.Bus
	bank     *bank.Service
	attempts *attempt.Service
	score    *score.Service
	store    Store
	states   StateStore
	now      func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:       c.EventBus,
		bank:     c.Bank,
		attempts: c.Attempts,
		score:    c.Score,
		store:    c.Store,
		states:   c.States,
		now:      c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// View is what the presentation layer renders after every transition.
type View struct {
	Status   Status
	Quiz     domain.Quiz
	Question *domain.QuizQuestion
	// Position is the one-based position of Question within the quiz.
	Position int
	Total    int
	// Remaining is nil for quizzes without a time limit.
	Remaining *time.Duration
	// Result is set right after a submission.
	Result  *grading.Result
	Attempt *domain.QuizAttempt
	// Score is the quiz-scoped score, set once the quiz is finished.
	Score decimal.Decimal
}

type NextRequest struct {
	Identity domain.Identity
	QuizID   int64
}

// Next serves the next question the user has not reached yet, starting the quiz on first use and
// resuming the time budget after feedback.
func (s *Service) Next(ctx context.Context, req NextRequest) (*View, error) {
	quiz, err := s.authorize(ctx, req.Identity, req.QuizID)
	if err != nil {
		return nil, err
	}

	st, err := s.start(ctx, req.Identity.Username, quiz)
	if err != nil {
		return nil, err
	}

	return s.advance(ctx, quiz, st, nil)
}

type SubmitRequest struct {
	Identity   domain.Identity
	QuizID     int64
	QuestionID int64
	ChoiceIDs  []int64
	Text       string
}

// Submit grades the answer to the user's pending question, then either pauses for
// feedback or moves on to the next question.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*View, error) {
	quiz, err := s.authorize(ctx, req.Identity, req.QuizID)
	if err != nil {
		return nil, err
	}
	username := req.Identity.Username

	st, err := s.start(ctx, username, quiz)
	if err != nil {
		return nil, err
	}
	if st.Finished {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("quiz is already finished: quiz=%d", quiz.QuizID))
	}

	questions, err := s.bank.QuizQuestions(ctx, quiz.QuizID)
	if err != nil {
		return nil, fmt.Errorf("list quiz questions: %w", err)
	}

	i := slices.IndexFunc(questions, func(q domain.QuizQuestion) bool { return q.Question.QuestionID == req.QuestionID })
	if i < 0 {
		return nil, errors.NotFound("question not found: quiz=%d, question=%d", quiz.QuizID, req.QuestionID)
	}
	q := questions[i].Question

	pending, err := s.attempts.Pending(ctx, username, q.QuestionID)
	if err != nil {
		return nil, err
	}

	r, err := grading.Grade(q, grading.Answer{ChoiceIDs: req.ChoiceIDs, Text: req.Text})
	if err != nil {
		return nil, err
	}

	if err := s.attempts.Record(ctx, pending, r); err != nil {
		return nil, err
	}
	telemetry.AttemptsGraded.WithLabelValues(string(q.Mode), strconv.FormatBool(r.IsCorrect)).Inc()

	if _, err := s.score.RecomputeTotal(ctx, username); err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventAttemptGraded{
		QuizID:  quiz.QuizID,
		Attempt: *pending,
	})

	if !quiz.ImmediateFeedback {
		return s.advance(ctx, quiz, st, &r)
	}

	limit, timed := quiz.TimeLimit()
	st.Pause(s.now(), limit)
	if err := s.states.Save(ctx, st); err != nil {
		return nil, err
	}

	v := &View{
		Status:   StatusPausedForFeedback,
		Quiz:     *quiz,
		Position: i + 1,
		Total:    len(questions),
		Result:   &r,
	}
	if timed {
		rem := st.PausedRemaining
		v.Remaining = &rem
	}

	return v, nil
}

type EndRequest struct {
	Identity domain.Identity
	QuizID   int64
}

// End finishes a started quiz before all questions are answered.
func (s *Service) End(ctx context.Context, req EndRequest) (*View, error) {
	quiz, err := s.authorize(ctx, req.Identity, req.QuizID)
	if err != nil {
		return nil, err
	}

	st, err := s.states.Get(ctx, req.Identity.Username, quiz.QuizID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("quiz is not started: quiz=%d", quiz.QuizID))
	}

	return s.finish(ctx, quiz, st, domain.FinishReasonEnded, nil)
}

type RestartRequest struct {
	Identity domain.Identity
	QuizID   int64
}

// Restart deletes the user's attempts on the quiz's questions and recomputes the
// profile's total over everything that remains.
func (s *Service) Restart(ctx context.Context, req RestartRequest) (*View, error) {
	quiz, err := s.authorize(ctx, req.Identity, req.QuizID)
	if err != nil {
		return nil, err
	}
	username := req.Identity.Username

	past, err := s.store.ListQuizAttempts(ctx, username, quiz.QuizID)
	if err != nil {
		return nil, fmt.Errorf("list quiz attempts: %w", err)
	}

	if !quiz.AllowMultipleAttempts && slices.ContainsFunc(past, completed) {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("quiz does not allow multiple attempts: quiz=%d", quiz.QuizID))
	}

	for _, qa := range past {
		if qa.Finished {
			continue
		}
		qa.Finished = true
		qa.FinishTime = s.now()
		qa.FinishReason = domain.FinishReasonRestarted
		if err := s.store.UpdateQuizAttempt(ctx, &qa); err != nil {
			return nil, fmt.Errorf("close quiz attempt: %w", err)
		}
	}

	ids, err := s.bank.QuizQuestionIDs(ctx, quiz.QuizID)
	if err != nil {
		return nil, err
	}

	if err := s.attempts.Clear(ctx, username, ids); err != nil {
		return nil, err
	}

	// The delete above is quiz scoped, the recompute is profile wide.
	if _, err := s.score.RecomputeTotal(ctx, username); err != nil {
		return nil, err
	}

	if err := s.states.Delete(ctx, username, quiz.QuizID); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "session: quiz restarted", "username", username, "quiz_id", quiz.QuizID)

	return &View{
		Status: StatusNotStarted,
		Quiz:   *quiz,
		Total:  len(ids),
		Score:  decimal.Zero,
	}, nil
}

type ResultsRequest struct {
	Identity domain.Identity
	QuizID   int64
}

// Results reports the user's attempts on every question of the quiz.
func (s *Service) Results(ctx context.Context, req ResultsRequest) (*domain.QuizResult, error) {
	quiz, err := s.authorize(ctx, req.Identity, req.QuizID)
	if err != nil {
		return nil, err
	}
	username := req.Identity.Username

	questions, err := s.bank.QuizQuestions(ctx, quiz.QuizID)
	if err != nil {
		return nil, err
	}
	ids := questionIDs(questions)

	attempts, err := s.attempts.Attempts(ctx, username, ids)
	if err != nil {
		return nil, err
	}

	total, err := s.score.QuizTotal(ctx, username, ids)
	if err != nil {
		return nil, err
	}

	res := &domain.QuizResult{
		Quiz:     *quiz,
		Username: username,
		Score:    total,
		MaxScore: decimal.Zero,
	}

	for _, q := range questions {
		e := domain.QuizResultEntry{Order: q.Order, Question: q.Question}
		if a, ok := attempts[q.Question.QuestionID]; ok {
			e.Attempt = &a
		}
		res.Entries = append(res.Entries, e)
		res.MaxScore = res.MaxScore.Add(q.Question.MaximumMarks)
	}

	past, err := s.store.ListQuizAttempts(ctx, username, quiz.QuizID)
	if err != nil {
		return nil, fmt.Errorf("list quiz attempts: %w", err)
	}
	if len(past) > 0 {
		res.Attempt = &past[0]
	}

	return res, nil
}

func (s *Service) authorize(ctx context.Context, id domain.Identity, quizID int64) (*domain.Quiz, error) {
	if id.Username == "" {
		return nil, errors.New(errors.CodeUnauthenticated)
	}

	quiz, err := s.bank.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	if !quiz.CanAccess(id) {
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("quiz is not open to user: quiz=%d, username=%s", quizID, id.Username))
	}

	return quiz, nil
}

// start returns the user's state for the quiz. Without one, it rebuilds the state from
// the latest quiz attempt, or begins a new attempt when there is none to rebuild from.
func (s *Service) start(ctx context.Context, username string, quiz *domain.Quiz) (*State, error) {
	st, err := s.states.Get(ctx, username, quiz.QuizID)
	if err != nil {
		return nil, err
	}
	if st != nil {
		return st, nil
	}

	if _, err := s.attempts.Profile(ctx, username); err != nil {
		return nil, err
	}

	st, err = s.restore(ctx, username, quiz)
	if err != nil {
		return nil, err
	}

	if st == nil {
		st, err = s.begin(ctx, username, quiz)
		if err != nil {
			return nil, err
		}
	}

	if err := s.states.Save(ctx, st); err != nil {
		return nil, err
	}

	return st, nil
}

// restore rebuilds a lost state from the latest quiz attempt. An unfinished attempt is
// resumed. A finished one stays finished unless a restart has cleared its answers since.
func (s *Service) restore(ctx context.Context, username string, quiz *domain.Quiz) (*State, error) {
	past, err := s.store.ListQuizAttempts(ctx, username, quiz.QuizID)
	if err != nil {
		return nil, fmt.Errorf("list quiz attempts: %w", err)
	}
	if len(past) == 0 {
		return nil, nil
	}

	latest := past[0]
	st := NewState(username, quiz.QuizID, latest.AttemptID, latest.StartTime)
	if !latest.Finished {
		return st, nil
	}
	if latest.FinishReason == domain.FinishReasonRestarted {
		return nil, nil
	}

	ids, err := s.bank.QuizQuestionIDs(ctx, quiz.QuizID)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		attempted, err := s.attempts.Attempted(ctx, username, ids)
		if err != nil {
			return nil, err
		}
		if len(attempted) == 0 {
			return nil, nil
		}
	}

	st.Finished = true
	return st, nil
}

// begin inserts a new quiz attempt. When a concurrent call has inserted one first,
// that attempt is used instead.
func (s *Service) begin(ctx context.Context, username string, quiz *domain.Quiz) (*State, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate attempt ID: %w", err)
	}

	qa := &domain.QuizAttempt{
		AttemptID:  id.String(),
		QuizID:     quiz.QuizID,
		Username:   username,
		StartTime:  s.now(),
		TotalScore: decimal.Zero,
	}

	err = s.store.InsertQuizAttempt(ctx, qa)
	if errors.HasCode(err, errors.CodeAlreadyExists) {
		st, rerr := s.restore(ctx, username, quiz)
		if rerr != nil {
			return nil, rerr
		}
		if st != nil && !st.Finished {
			return st, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("insert quiz attempt: %w", err)
	}

	slog.InfoContext(ctx, "session: quiz started",
		"username", username,
		"quiz_id", quiz.QuizID,
		"attempt_id", qa.AttemptID,
	)

	return NewState(username, quiz.QuizID, qa.AttemptID, qa.StartTime), nil
}

// advance moves an unfinished state forward: it finishes the quiz when the budget is
// spent or no question is left, and serves the next question otherwise.
func (s *Service) advance(ctx context.Context, quiz *domain.Quiz, st *State, r *grading.Result) (*View, error) {
	if st.Finished {
		return s.finish(ctx, quiz, st, domain.FinishReasonCompleted, r)
	}

	now := s.now()
	limit, timed := quiz.TimeLimit()
	st.Resume(now, limit)

	var remaining *time.Duration
	if timed {
		rem := st.Remaining(now, limit)
		if rem <= 0 {
			return s.finish(ctx, quiz, st, domain.FinishReasonTimeout, r)
		}
		remaining = &rem
	}

	questions, err := s.bank.QuizQuestions(ctx, quiz.QuizID)
	if err != nil {
		return nil, fmt.Errorf("list quiz questions: %w", err)
	}

	attempted, err := s.attempts.Attempted(ctx, st.Username, questionIDs(questions))
	if err != nil {
		return nil, err
	}

	next, pos, ok := SelectNext(questions, attempted)
	if !ok {
		return s.finish(ctx, quiz, st, domain.FinishReasonCompleted, r)
	}

	if _, err := s.attempts.Begin(ctx, st.Username, next.Question.QuestionID); err != nil {
		return nil, err
	}

	qa, err := s.store.GetQuizAttempt(ctx, st.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("get quiz attempt: %w", err)
	}
	if qa.CurrentIndex != pos {
		qa.CurrentIndex = pos
		if err := s.store.UpdateQuizAttempt(ctx, qa); err != nil {
			return nil, fmt.Errorf("update quiz attempt: %w", err)
		}
	}

	if err := s.states.Save(ctx, st); err != nil {
		return nil, err
	}

	return &View{
		Status:    StatusInProgress,
		Quiz:      *quiz,
		Question:  &next,
		Position:  pos + 1,
		Total:     len(questions),
		Remaining: remaining,
		Result:    r,
		Attempt:   qa,
	}, nil
}

// finish stamps the quiz attempt with its finish time and quiz-scoped score. Finishing
// an already finished attempt only reports it again.
func (s *Service) finish(ctx context.Context, quiz *domain.Quiz, st *State, reason domain.FinishReason, r *grading.Result) (*View, error) {
	ids, err := s.bank.QuizQuestionIDs(ctx, quiz.QuizID)
	if err != nil {
		return nil, err
	}

	qa, err := s.store.GetQuizAttempt(ctx, st.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("get quiz attempt: %w", err)
	}

	if !qa.Finished {
		total, err := s.score.QuizTotal(ctx, st.Username, ids)
		if err != nil {
			return nil, err
		}

		qa.Finished = true
		qa.FinishTime = s.now()
		qa.FinishReason = reason
		qa.TotalScore = total
		if err := s.store.UpdateQuizAttempt(ctx, qa); err != nil {
			return nil, fmt.Errorf("finish quiz attempt: %w", err)
		}

		telemetry.QuizzesFinished.WithLabelValues(string(reason)).Inc()
		s.eb.Publish(ctx, domain.EventQuizFinished{Attempt: *qa})

		slog.InfoContext(ctx, "session: quiz finished",
			"username", st.Username,
			"quiz_id", quiz.QuizID,
			"attempt_id", qa.AttemptID,
			"reason", reason,
			"score", qa.TotalScore.String(),
		)
	}

	if !st.Finished || st.Paused {
		st.Finished = true
		st.Paused = false
		if err := s.states.Save(ctx, st); err != nil {
			return nil, err
		}
	}

	return &View{
		Status:  StatusFinished,
		Quiz:    *quiz,
		Total:   len(ids),
		Result:  r,
		Attempt: qa,
		Score:   qa.TotalScore,
	}, nil
}

// completed reports whether a quiz attempt was played to an end rather than restarted.
func completed(qa domain.QuizAttempt) bool {
	return qa.Finished && qa.FinishReason != domain.FinishReasonRestarted
}

func questionIDs(qs []domain.QuizQuestion) []int64 {
	ids := make([]int64, 0, len(qs))
	for _, q := range qs {
		ids = append(ids, q.Question.QuestionID)
	}
	return ids
}
