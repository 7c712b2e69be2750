// Package memory is a Store kept in process memory. It backs the memory driver and
// the service tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/letsquiz/internal/attempt"
	"github.com/victornm/letsquiz/internal/bank"
	"github.com/victornm/letsquiz/internal/domain"
	"github.com/victornm/letsquiz/internal/errors"
	"github.com/victornm/letsquiz/internal/score"
	"github.com/victornm/letsquiz/internal/session"
)

var (
	_ bank.Store    = (*Store)(nil)
	_ attempt.Store = (*Store)(nil)
	_ score.Store   = (*Store)(nil)
	_ session.Store = (*Store)(nil)
)

type attemptKey struct {
	username   string
	questionID int64
}

type Store struct {
	mu sync.RWMutex

	seq struct {
		quiz, question, choice, pair, attempt int64
	}

	quizzes      map[int64]domain.Quiz
	questions    map[int64]domain.Question
	quizQuestion map[int64][]domain.QuizQuestion
	profiles     map[string]domain.QuizProfile
	attempts     map[attemptKey]domain.AttemptedQuestion
	quizAttempts []domain.QuizAttempt

	now func() time.Time
}

func New() *Store {
	return &Store{
		quizzes:      make(map[int64]domain.Quiz),
		questions:    make(map[int64]domain.Question),
		quizQuestion: make(map[int64][]domain.QuizQuestion),
		profiles:     make(map[string]domain.QuizProfile),
		attempts:     make(map[attemptKey]domain.AttemptedQuestion),
		now:          time.Now,
	}
}

func (s *Store) GetQuestion(_ context.Context, questionID int64) (*domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.questions[questionID]
	if !ok {
		return nil, errors.NotFound("question not found: %d", questionID)
	}
	q = cloneQuestion(q)
	return &q, nil
}

func (s *Store) GetQuiz(_ context.Context, quizID int64) (*domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quizzes[quizID]
	if !ok {
		return nil, errors.NotFound("quiz not found: %d", quizID)
	}
	q = cloneQuiz(q)
	return &q, nil
}

func (s *Store) ListQuizzes(_ context.Context) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qs := make([]domain.Quiz, 0, len(s.quizzes))
	for _, q := range s.quizzes {
		qs = append(qs, cloneQuiz(q))
	}
	slices.SortFunc(qs, func(a, b domain.Quiz) int { return cmp.Compare(a.QuizID, b.QuizID) })
	return qs, nil
}

func (s *Store) ListQuizQuestions(_ context.Context, quizID int64) ([]domain.QuizQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qqs := make([]domain.QuizQuestion, 0, len(s.quizQuestion[quizID]))
	for _, qq := range s.quizQuestion[quizID] {
		qq.Question = cloneQuestion(s.questions[qq.Question.QuestionID])
		qqs = append(qqs, qq)
	}
	slices.SortStableFunc(qqs, func(a, b domain.QuizQuestion) int { return cmp.Compare(a.Order, b.Order) })
	return qqs, nil
}

func (s *Store) InsertQuiz(_ context.Context, q *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq.quiz++
	q.QuizID = s.seq.quiz
	s.quizzes[q.QuizID] = cloneQuiz(*q)
	return nil
}

func (s *Store) InsertQuestion(_ context.Context, quizID int64, q *domain.Question) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[quizID]; !ok {
		return 0, errors.NotFound("quiz not found: %d", quizID)
	}

	s.seq.question++
	q.QuestionID = s.seq.question
	for i := range q.Choices {
		s.seq.choice++
		q.Choices[i].ChoiceID = s.seq.choice
		q.Choices[i].QuestionID = q.QuestionID
	}
	for i := range q.MatchingPairs {
		s.seq.pair++
		q.MatchingPairs[i].PairID = s.seq.pair
		q.MatchingPairs[i].QuestionID = q.QuestionID
	}
	s.questions[q.QuestionID] = cloneQuestion(*q)

	order := 1
	for _, qq := range s.quizQuestion[quizID] {
		order = max(order, qq.Order+1)
	}
	s.quizQuestion[quizID] = append(s.quizQuestion[quizID], domain.QuizQuestion{
		QuizID:   quizID,
		Order:    order,
		Question: domain.Question{QuestionID: q.QuestionID},
	})

	return order, nil
}

func (s *Store) GetOrCreateProfile(_ context.Context, username string) (*domain.QuizProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[username]
	if !ok {
		p = domain.QuizProfile{Username: username, TotalScore: decimal.Zero, CreateTime: s.now()}
		s.profiles[username] = p
	}
	return &p, nil
}

func (s *Store) InsertAttempt(_ context.Context, username string, questionID int64, now time.Time) (*domain.AttemptedQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := attemptKey{username, questionID}
	if a, ok := s.attempts[k]; ok {
		a = cloneAttempt(a)
		return &a, nil
	}

	s.seq.attempt++
	a := domain.AttemptedQuestion{
		AttemptID:     s.seq.attempt,
		Username:      username,
		QuestionID:    questionID,
		MarksObtained: decimal.Zero,
		CreateTime:    now,
	}
	s.attempts[k] = a
	return &a, nil
}

func (s *Store) GetAttempt(_ context.Context, username string, questionID int64) (*domain.AttemptedQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[attemptKey{username, questionID}]
	if !ok {
		return nil, errors.NotFound("attempt not found: username=%s, question=%d", username, questionID)
	}
	a = cloneAttempt(a)
	return &a, nil
}

func (s *Store) GradeAttempt(_ context.Context, a *domain.AttemptedQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := attemptKey{a.Username, a.QuestionID}
	cur, ok := s.attempts[k]
	if !ok {
		return errors.NotFound("attempt not found: username=%s, question=%d", a.Username, a.QuestionID)
	}
	if cur.Graded {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("attempt is already graded: username=%s, question=%d", a.Username, a.QuestionID))
	}

	s.attempts[k] = cloneAttempt(*a)
	return nil
}

func (s *Store) ListAttempts(_ context.Context, username string, questionIDs []int64) ([]domain.AttemptedQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var as []domain.AttemptedQuestion
	for _, id := range questionIDs {
		if a, ok := s.attempts[attemptKey{username, id}]; ok {
			as = append(as, cloneAttempt(a))
		}
	}
	return as, nil
}

func (s *Store) DeleteAttempts(_ context.Context, username string, questionIDs []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range questionIDs {
		k := attemptKey{username, id}
		if _, ok := s.attempts[k]; ok {
			delete(s.attempts, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) RecomputeTotalScore(_ context.Context, username string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for k, a := range s.attempts {
		if k.username == username {
			total = total.Add(a.MarksObtained)
		}
	}

	s.setTotalScore(username, total)
	return total, nil
}

func (s *Store) TotalScore(_ context.Context, username string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[username]
	if !ok {
		return decimal.Zero, nil
	}
	return p.TotalScore, nil
}

func (s *Store) SumMarksFor(_ context.Context, username string, questionIDs []int64) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, id := range questionIDs {
		if a, ok := s.attempts[attemptKey{username, id}]; ok {
			total = total.Add(a.MarksObtained)
		}
	}
	return total, nil
}

// UpdateTotalScore stores total as the user's total score without looking at the marks.
func (s *Store) UpdateTotalScore(_ context.Context, username string, total decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setTotalScore(username, total)
	return nil
}

func (s *Store) setTotalScore(username string, total decimal.Decimal) {
	p, ok := s.profiles[username]
	if !ok {
		p = domain.QuizProfile{Username: username, CreateTime: s.now()}
	}
	p.TotalScore = total
	s.profiles[username] = p
}

// ListProfiles orders by total score descending, then by username. A limit of 0 or
// less returns every profile.
func (s *Store) ListProfiles(_ context.Context, limit int) ([]domain.QuizProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ps := make([]domain.QuizProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		ps = append(ps, p)
	}
	slices.SortFunc(ps, func(a, b domain.QuizProfile) int {
		if c := b.TotalScore.Cmp(a.TotalScore); c != 0 {
			return c
		}
		return cmp.Compare(a.Username, b.Username)
	})

	if limit > 0 && len(ps) > limit {
		ps = ps[:limit]
	}
	return ps, nil
}

func (s *Store) InsertQuizAttempt(_ context.Context, a *domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.ContainsFunc(s.quizAttempts, func(qa domain.QuizAttempt) bool { return qa.AttemptID == a.AttemptID }) {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("quiz attempt already exists: %s", a.AttemptID))
	}
	if !a.Finished && slices.ContainsFunc(s.quizAttempts, func(qa domain.QuizAttempt) bool {
		return qa.Username == a.Username && qa.QuizID == a.QuizID && !qa.Finished
	}) {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("unfinished quiz attempt already exists: username=%s, quiz=%d", a.Username, a.QuizID))
	}
	s.quizAttempts = append(s.quizAttempts, *a)
	return nil
}

func (s *Store) UpdateQuizAttempt(_ context.Context, a *domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.quizAttempts, func(qa domain.QuizAttempt) bool { return qa.AttemptID == a.AttemptID })
	if i < 0 {
		return errors.NotFound("quiz attempt not found: %s", a.AttemptID)
	}
	s.quizAttempts[i] = *a
	return nil
}

func (s *Store) GetQuizAttempt(_ context.Context, attemptID string) (*domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := slices.IndexFunc(s.quizAttempts, func(qa domain.QuizAttempt) bool { return qa.AttemptID == attemptID })
	if i < 0 {
		return nil, errors.NotFound("quiz attempt not found: %s", attemptID)
	}
	a := s.quizAttempts[i]
	return &a, nil
}

func (s *Store) ListQuizAttempts(_ context.Context, username string, quizID int64) ([]domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var as []domain.QuizAttempt
	for i := len(s.quizAttempts) - 1; i >= 0; i-- {
		a := s.quizAttempts[i]
		if a.Username == username && a.QuizID == quizID {
			as = append(as, a)
		}
	}
	slices.SortStableFunc(as, func(a, b domain.QuizAttempt) int { return b.StartTime.Compare(a.StartTime) })
	return as, nil
}

func cloneQuiz(q domain.Quiz) domain.Quiz {
	q.AllowedUsers = slices.Clone(q.AllowedUsers)
	q.AllowedGroups = slices.Clone(q.AllowedGroups)
	return q
}

func cloneQuestion(q domain.Question) domain.Question {
	q.Choices = slices.Clone(q.Choices)
	q.MatchingPairs = slices.Clone(q.MatchingPairs)
	return q
}

func cloneAttempt(a domain.AttemptedQuestion) domain.AttemptedQuestion {
	a.SelectedChoiceIDs = slices.Clone(a.SelectedChoiceIDs)
	return a
}
