package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/victornm/letsquiz/internal/attempt"
	"github.com/victornm/letsquiz/internal/bank"
	"github.com/victornm/letsquiz/internal/domain"
	"github.com/victornm/letsquiz/internal/errors"
	"github.com/victornm/letsquiz/internal/event"
	"github.com/victornm/letsquiz/internal/memory"
	"github.com/victornm/letsquiz/internal/score"
	"github.com/victornm/letsquiz/internal/session"
)

var (
	alice = domain.Identity{Username: "alice"}
	bob   = domain.Identity{Username: "bob"}
)

func TestService_PlayThrough(t *testing.T) {
	h := newHarness(t)
	quiz, qs := h.quiz(t, bank.CreateQuizRequest{})

	v := h.next(t, alice, quiz)
	require.Equal(t, session.StatusInProgress, v.Status)
	require.Equal(t, qs[0].Question.QuestionID, v.Question.Question.QuestionID)
	require.Equal(t, 1, v.Position)
	require.Equal(t, 3, v.Total)
	require.Nil(t, v.Remaining, "untimed quiz should have no remaining time")

	v = h.submit(t, alice, quiz, qs[0], correctChoices(qs[0])...)
	require.True(t, v.Result.IsCorrect)
	require.Equal(t, "4", v.Result.MarksObtained.String())
	require.Equal(t, qs[1].Question.QuestionID, v.Question.Question.QuestionID)
	require.Equal(t, 2, v.Position)

	// One of the two correct choices.
	v = h.submit(t, alice, quiz, qs[1], correctChoices(qs[1])[0])
	require.False(t, v.Result.IsCorrect)
	require.Equal(t, "2", v.Result.MarksObtained.String())
	require.Equal(t, qs[2].Question.QuestionID, v.Question.Question.QuestionID)

	v, err := h.session.Submit(h.ctx, session.SubmitRequest{
		Identity:   alice,
		QuizID:     quiz.QuizID,
		QuestionID: qs[2].Question.QuestionID,
		Text:       "  pARIS ",
	})
	require.NoError(t, err)
	require.Equal(t, session.StatusFinished, v.Status)
	require.True(t, v.Result.IsCorrect)
	require.Equal(t, "10", v.Score.String())
	require.Equal(t, domain.FinishReasonCompleted, v.Attempt.FinishReason)
	require.True(t, v.Attempt.Finished)

	require.Equal(t, "10", h.total(t, "alice"))

	v = h.next(t, alice, quiz)
	require.Equal(t, session.StatusFinished, v.Status, "a finished quiz should stay finished")
}

func TestService_Next_SkipsServedQuestions(t *testing.T) {
	h := newHarness(t)
	quiz, qs := h.quiz(t, bank.CreateQuizRequest{})

	first := h.next(t, alice, quiz)
	require.Equal(t, qs[0].Question.QuestionID, first.Question.Question.QuestionID)

	second := h.next(t, alice, quiz)
	require.Equal(t, qs[1].Question.QuestionID, second.Question.Question.QuestionID, "a served question should not be served again")
	require.Equal(t, 2, second.Position)
	require.Equal(t, first.Attempt.AttemptID, second.Attempt.AttemptID)

	// The skipped question stays pending and can still be answered.
	v := h.submit(t, alice, quiz, qs[0], correctChoices(qs[0])...)
	require.True(t, v.Result.IsCorrect)
	require.Equal(t, qs[2].Question.QuestionID, v.Question.Question.QuestionID)

	v = h.submit(t, alice, quiz, qs[1], correctChoices(qs[1])...)
	require.Equal(t, session.StatusFinished, v.Status, "every question has been served")
	require.Equal(t, "8", v.Score.String())

	r, err := h.session.Results(h.ctx, session.ResultsRequest{Identity: alice, QuizID: quiz.QuizID})
	require.NoError(t, err)
	require.False(t, r.Entries[2].Attempt.Graded, "an abandoned question should stay ungraded")
}

func TestService_Submit(t *testing.T) {
	type outputs struct {
		view *session.View
		err  error
	}

	tests := map[string]struct {
		act    func(t *testing.T, h *harness, quiz *domain.Quiz, qs []domain.QuizQuestion) outputs
		assert func(t *testing.T, h *harness, out outputs)
	}{
		"submitting twice should be rejected and not counted twice": {
			act: func(t *testing.T, h *harness, quiz *domain.Quiz, qs []domain.QuizQuestion) outputs {
				h.next(t, alice, quiz)
				h.submit(t, alice, quiz, qs[0], correctChoices(qs[0])...)
				v, err := h.session.Submit(h.ctx, session.SubmitRequest{
					Identity:   alice,
					QuizID:     quiz.QuizID,
					QuestionID: qs[0].Question.QuestionID,
					ChoiceIDs:  correctChoices(qs[0]),
				})
				return outputs{view: v, err: err}
			},
			assert: func(t *testing.T, h *harness, out outputs) {
				require.True(t, errors.HasCode(out.err, errors.CodeAlreadyExists), "got %v", out.err)
				require.Equal(t, "4", h.total(t, "alice"))
			},
		},

		"a question outside the quiz should not be found": {
			act: func(t *testing.T, h *harness, quiz *domain.Quiz, qs []domain.QuizQuestion) outputs {
				h.next(t, alice, quiz)
				v, err := h.session.Submit(h.ctx, session.SubmitRequest{Identity: alice, QuizID: quiz.QuizID, QuestionID: 999})
				return outputs{view: v, err: err}
			},
			assert: func(t *testing.T, h *harness, out outputs) {
				require.True(t, errors.HasCode(out.err, errors.CodeNotFound), "got %v", out.err)
			},
		},

		"a question that was never served should not be found": {
			act: func(t *testing.T, h *harness, quiz *domain.Quiz, qs []domain.QuizQuestion) outputs {
				h.next(t, alice, quiz)
				v, err := h.session.Submit(h.ctx, session.SubmitRequest{
					Identity:   alice,
					QuizID:     quiz.QuizID,
					QuestionID: qs[1].Question.QuestionID,
					ChoiceIDs:  correctChoices(qs[1]),
				})
				return outputs{view: v, err: err}
			},
			assert: func(t *testing.T, h *harness, out outputs) {
				require.True(t, errors.HasCode(out.err, errors.CodeNotFound), "got %v", out.err)
				require.Equal(t, "0", h.total(t, "alice"))
			},
		},

		"choices of another question should score nothing": {
			act: func(t *testing.T, h *harness, quiz *domain.Quiz, qs []domain.QuizQuestion) outputs {
				h.next(t, alice, quiz)
				v, err := h.session.Submit(h.ctx, session.SubmitRequest{
					Identity:   alice,
					QuizID:     quiz.QuizID,
					QuestionID: qs[0].Question.QuestionID,
					ChoiceIDs:  correctChoices(qs[1]),
				})
				return outputs{view: v, err: err}
			},
			assert: func(t *testing.T, h *harness, out outputs) {
				require.NoError(t, out.err)
				require.False(t, out.view.Result.IsCorrect)
				require.Empty(t, out.view.Result.SelectedChoiceIDs)
				require.Equal(t, "0", h.total(t, "alice"))
			},
		},

		"a user without identity should be rejected": {
			act: func(t *testing.T, h *harness, quiz *domain.Quiz, qs []domain.QuizQuestion) outputs {
				v, err := h.session.Submit(h.ctx, session.SubmitRequest{QuizID: quiz.QuizID, QuestionID: qs[0].Question.QuestionID})
				return outputs{view: v, err: err}
			},
			assert: func(t *testing.T, h *harness, out outputs) {
				require.True(t, errors.HasCode(out.err, errors.CodeUnauthenticated), "got %v", out.err)
			},
		},

		"an unknown quiz should not be found": {
			act: func(t *testing.T, h *harness, quiz *domain.Quiz, qs []domain.QuizQuestion) outputs {
				v, err := h.session.Submit(h.ctx, session.SubmitRequest{Identity: alice, QuizID: 999, QuestionID: 1})
				return outputs{view: v, err: err}
			},
			assert: func(t *testing.T, h *harness, out outputs) {
				require.True(t, errors.HasCode(out.err, errors.CodeNotFound), "got %v", out.err)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			quiz, qs := h.quiz(t, bank.CreateQuizRequest{})
			out := tt.act(t, h, quiz, qs)
			tt.assert(t, h, out)
		})
	}
}

func TestService_TimeLimit(t *testing.T) {
	t.Run("next after the budget is spent should finish by timeout", func(t *testing.T) {
		h := newHarness(t)
		quiz, _ := h.quiz(t, bank.CreateQuizRequest{TimeLimitSeconds: 60})

		v := h.next(t, alice, quiz)
		require.Equal(t, 60*time.Second, *v.Remaining)

		h.clock.Advance(61 * time.Second)

		v = h.next(t, alice, quiz)
		require.Equal(t, session.StatusFinished, v.Status)
		require.Equal(t, domain.FinishReasonTimeout, v.Attempt.FinishReason)
		require.Nil(t, v.Question)
	})

	t.Run("a late submission should be graded and then finish by timeout", func(t *testing.T) {
		h := newHarness(t)
		quiz, qs := h.quiz(t, bank.CreateQuizRequest{TimeLimitSeconds: 60})

		h.next(t, alice, quiz)
		h.clock.Advance(61 * time.Second)

		v := h.submit(t, alice, quiz, qs[0], correctChoices(qs[0])...)
		require.Equal(t, session.StatusFinished, v.Status)
		require.Equal(t, domain.FinishReasonTimeout, v.Attempt.FinishReason)
		require.True(t, v.Result.IsCorrect)
		require.Equal(t, "4", v.Score.String())
	})

	t.Run("time spent on feedback should not consume the budget", func(t *testing.T) {
		h := newHarness(t)
		quiz, qs := h.quiz(t, bank.CreateQuizRequest{TimeLimitSeconds: 60, ImmediateFeedback: true})

		h.next(t, alice, quiz)
		h.clock.Advance(10 * time.Second)

		v := h.submit(t, alice, quiz, qs[0], correctChoices(qs[0])...)
		require.Equal(t, session.StatusPausedForFeedback, v.Status)
		require.Equal(t, 50*time.Second, *v.Remaining)
		require.True(t, v.Result.IsCorrect)
		require.Nil(t, v.Question)

		h.clock.Advance(100 * time.Second)

		v = h.next(t, alice, quiz)
		require.Equal(t, session.StatusInProgress, v.Status)
		require.Equal(t, 50*time.Second, *v.Remaining)
		require.Equal(t, qs[1].Question.QuestionID, v.Question.Question.QuestionID)

		h.clock.Advance(51 * time.Second)

		v = h.next(t, alice, quiz)
		require.Equal(t, session.StatusFinished, v.Status)
		require.Equal(t, domain.FinishReasonTimeout, v.Attempt.FinishReason)
	})
}

func TestService_End(t *testing.T) {
	h := newHarness(t)
	quiz, qs := h.quiz(t, bank.CreateQuizRequest{})

	_, err := h.session.End(h.ctx, session.EndRequest{Identity: alice, QuizID: quiz.QuizID})
	require.True(t, errors.HasCode(err, errors.CodeFailedPrecondition), "ending an unstarted quiz should fail")

	h.next(t, alice, quiz)
	h.submit(t, alice, quiz, qs[0], correctChoices(qs[0])...)

	v, err := h.session.End(h.ctx, session.EndRequest{Identity: alice, QuizID: quiz.QuizID})
	require.NoError(t, err)
	require.Equal(t, session.StatusFinished, v.Status)
	require.Equal(t, domain.FinishReasonEnded, v.Attempt.FinishReason)
	require.Equal(t, "4", v.Score.String())

	_, err = h.session.Submit(h.ctx, session.SubmitRequest{
		Identity:   alice,
		QuizID:     quiz.QuizID,
		QuestionID: qs[1].Question.QuestionID,
		ChoiceIDs:  correctChoices(qs[1]),
	})
	require.True(t, errors.HasCode(err, errors.CodeFailedPrecondition), "got %v", err)

	v, err = h.session.End(h.ctx, session.EndRequest{Identity: alice, QuizID: quiz.QuizID})
	require.NoError(t, err)
	require.Equal(t, domain.FinishReasonEnded, v.Attempt.FinishReason, "ending twice should keep the first reason")
}

func TestService_Restart(t *testing.T) {
	t.Run("restart should clear the quiz and keep the marks of other quizzes", func(t *testing.T) {
		h := newHarness(t)
		quiz, qs := h.quiz(t, bank.CreateQuizRequest{AllowMultipleAttempts: true})
		other, oqs := h.quiz(t, bank.CreateQuizRequest{})

		h.next(t, alice, other)
		h.submit(t, alice, other, oqs[0], correctChoices(oqs[0])...)

		h.next(t, alice, quiz)
		h.submit(t, alice, quiz, qs[0], correctChoices(qs[0])...)
		require.Equal(t, "8", h.total(t, "alice"))

		v, err := h.session.Restart(h.ctx, session.RestartRequest{Identity: alice, QuizID: quiz.QuizID})
		require.NoError(t, err)
		require.Equal(t, session.StatusNotStarted, v.Status)
		require.Equal(t, "4", h.total(t, "alice"), "total should be recomputed over the remaining attempts")

		first, err := h.store.ListQuizAttempts(h.ctx, "alice", quiz.QuizID)
		require.NoError(t, err)
		require.Len(t, first, 1)
		require.Equal(t, domain.FinishReasonRestarted, first[0].FinishReason)

		v = h.next(t, alice, quiz)
		require.Equal(t, qs[0].Question.QuestionID, v.Question.Question.QuestionID, "restart should serve the first question again")
		require.NotEqual(t, first[0].AttemptID, v.Attempt.AttemptID, "restart should begin a new quiz attempt")
	})

	t.Run("restart of a completed quiz should be refused without multiple attempts", func(t *testing.T) {
		h := newHarness(t)
		quiz, qs := h.quiz(t, bank.CreateQuizRequest{})

		h.next(t, alice, quiz)
		_, err := h.session.Restart(h.ctx, session.RestartRequest{Identity: alice, QuizID: quiz.QuizID})
		require.NoError(t, err, "an unfinished quiz can always be restarted")

		h.next(t, alice, quiz)
		for _, q := range qs {
			h.submit(t, alice, quiz, q, correctChoices(q)...)
		}

		_, err = h.session.Restart(h.ctx, session.RestartRequest{Identity: alice, QuizID: quiz.QuizID})
		require.True(t, errors.HasCode(err, errors.CodeFailedPrecondition), "got %v", err)
		require.Equal(t, "12", h.total(t, "alice"), "refused restart should keep the marks")
	})
}

func TestService_LostState(t *testing.T) {
	t.Run("a finished quiz should stay finished after its state is lost", func(t *testing.T) {
		h := newHarness(t)
		quiz, qs := h.quiz(t, bank.CreateQuizRequest{})

		h.next(t, alice, quiz)
		for _, q := range qs {
			h.submit(t, alice, quiz, q, correctChoices(q)...)
		}
		require.NoError(t, h.states.Delete(h.ctx, "alice", quiz.QuizID))

		for range 2 {
			v := h.next(t, alice, quiz)
			require.Equal(t, session.StatusFinished, v.Status)
			require.Equal(t, domain.FinishReasonCompleted, v.Attempt.FinishReason)
		}

		past, err := h.store.ListQuizAttempts(h.ctx, "alice", quiz.QuizID)
		require.NoError(t, err)
		require.Len(t, past, 1, "no new quiz attempt should be started")
	})

	t.Run("an unfinished quiz should resume after its state is lost", func(t *testing.T) {
		h := newHarness(t)
		quiz, qs := h.quiz(t, bank.CreateQuizRequest{})

		v := h.next(t, alice, quiz)
		require.NoError(t, h.states.Delete(h.ctx, "alice", quiz.QuizID))

		again := h.submit(t, alice, quiz, qs[0], correctChoices(qs[0])...)
		require.Equal(t, v.Attempt.AttemptID, again.Attempt.AttemptID)
		require.Equal(t, qs[1].Question.QuestionID, again.Question.Question.QuestionID)
	})

	t.Run("a restarted quiz should begin a new attempt", func(t *testing.T) {
		h := newHarness(t)
		quiz, qs := h.quiz(t, bank.CreateQuizRequest{AllowMultipleAttempts: true})

		v := h.next(t, alice, quiz)
		for _, q := range qs {
			h.submit(t, alice, quiz, q, correctChoices(q)...)
		}

		_, err := h.session.Restart(h.ctx, session.RestartRequest{Identity: alice, QuizID: quiz.QuizID})
		require.NoError(t, err)

		again := h.next(t, alice, quiz)
		require.Equal(t, session.StatusInProgress, again.Status)
		require.NotEqual(t, v.Attempt.AttemptID, again.Attempt.AttemptID)
		require.Equal(t, qs[0].Question.QuestionID, again.Question.Question.QuestionID)
	})
}

func TestService_Access(t *testing.T) {
	tests := map[string]struct {
		identity domain.Identity
		wantErr  errors.Code
	}{
		"an allowed user should play": {
			identity: domain.Identity{Username: "alice"},
		},
		"a member of an allowed group should play": {
			identity: domain.Identity{Username: "carol", Groups: []string{"other", "class-a"}},
		},
		"a superuser should play": {
			identity: domain.Identity{Username: "root", Superuser: true},
		},
		"anyone else should be denied": {
			identity: domain.Identity{Username: "bob", Groups: []string{"class-b"}},
			wantErr:  errors.CodePermissionDenied,
		},
		"an anonymous user should be unauthenticated": {
			identity: domain.Identity{},
			wantErr:  errors.CodeUnauthenticated,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			quiz, _ := h.quiz(t, bank.CreateQuizRequest{
				AllowedUsers:  []string{"alice"},
				AllowedGroups: []string{"class-a"},
			})

			_, err := h.session.Next(h.ctx, session.NextRequest{Identity: tt.identity, QuizID: quiz.QuizID})
			if tt.wantErr != 0 {
				require.True(t, errors.HasCode(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestService_Results(t *testing.T) {
	h := newHarness(t)
	quiz, qs := h.quiz(t, bank.CreateQuizRequest{})

	h.next(t, alice, quiz)
	h.submit(t, alice, quiz, qs[0], correctChoices(qs[0])...)

	r, err := h.session.Results(h.ctx, session.ResultsRequest{Identity: alice, QuizID: quiz.QuizID})
	require.NoError(t, err)
	require.Equal(t, "alice", r.Username)
	require.Len(t, r.Entries, 3)
	require.True(t, r.Entries[0].Attempt.Graded)
	require.False(t, r.Entries[1].Attempt.Graded, "the served question should be pending")
	require.Nil(t, r.Entries[2].Attempt)
	require.Equal(t, "4", r.Score.String())
	require.Equal(t, "12", r.MaxScore.String())
	require.False(t, r.Attempt.Finished)

	r, err = h.session.Results(h.ctx, session.ResultsRequest{Identity: bob, QuizID: quiz.QuizID})
	require.NoError(t, err)
	require.True(t, r.Score.IsZero())
	require.Nil(t, r.Attempt)
}

func TestService_EdgeQuizzes(t *testing.T) {
	t.Run("a quiz without questions should finish right away", func(t *testing.T) {
		h := newHarness(t)
		quiz, err := h.bank.CreateQuiz(h.ctx, bank.CreateQuizRequest{Title: "empty", CreatedBy: "teacher"})
		require.NoError(t, err)

		v := h.next(t, alice, quiz)
		require.Equal(t, session.StatusFinished, v.Status)
		require.Equal(t, domain.FinishReasonCompleted, v.Attempt.FinishReason)
		require.True(t, v.Score.IsZero())
	})

	t.Run("a matching question cannot be graded", func(t *testing.T) {
		h := newHarness(t)
		quiz, err := h.bank.CreateQuiz(h.ctx, bank.CreateQuizRequest{Title: "matching", CreatedBy: "teacher"})
		require.NoError(t, err)
		qq, err := h.bank.AddQuestion(h.ctx, bank.AddQuestionRequest{
			QuizID:        quiz.QuizID,
			Text:          "match",
			Mode:          domain.ModeMatching,
			MatchingPairs: []bank.MatchingPairRequest{{Left: "a", Right: "1"}},
		})
		require.NoError(t, err)

		h.next(t, alice, quiz)
		_, err = h.session.Submit(h.ctx, session.SubmitRequest{Identity: alice, QuizID: quiz.QuizID, QuestionID: qq.Question.QuestionID})
		require.True(t, errors.HasCode(err, errors.CodeUnimplemented), "got %v", err)
	})
}

func TestService_ConcurrentNext(t *testing.T) {
	h := newHarness(t)
	quiz, err := h.bank.CreateQuiz(h.ctx, bank.CreateQuizRequest{Title: "long", CreatedBy: "teacher"})
	require.NoError(t, err)

	// More questions than players, so the quiz cannot finish while they race.
	for i := range 12 {
		_, err := h.bank.AddQuestion(h.ctx, bank.AddQuestionRequest{
			QuizID:        quiz.QuizID,
			Text:          fmt.Sprintf("question %d", i+1),
			Mode:          domain.ModeText,
			CorrectAnswer: "yes",
		})
		require.NoError(t, err)
	}
	qs, err := h.bank.QuizQuestions(h.ctx, quiz.QuizID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.session.Next(h.ctx, session.NextRequest{Identity: alice, QuizID: quiz.QuizID})
		}()
	}
	wg.Wait()

	past, err := h.store.ListQuizAttempts(h.ctx, "alice", quiz.QuizID)
	require.NoError(t, err)
	require.Len(t, past, 1, "concurrent first plays should share one quiz attempt")

	as, err := h.store.ListAttempts(h.ctx, "alice", questionIDs(qs))
	require.NoError(t, err)
	require.NotEmpty(t, as)
	require.LessOrEqual(t, len(as), len(qs), "a question should have at most one attempt")
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	ctx     context.Context
	clock   *clock
	store   *memory.Store
	states  session.StateStore
	bank    *bank.Service
	session *session.Service
}

func newHarness(t *testing.T) *harness {
	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{rs.Addr()}})

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	c := &clock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	st := memory.New()
	bs := bank.NewService(bank.Config{Store: st})
	states := session.NewRedisStateStore(rc, "test", 0)

	return &harness{
		ctx:    context.Background(),
		clock:  c,
		store:  st,
		states: states,
		bank:   bs,
		session: session.NewService(session.Config{
			EventBus: eb,
			Bank:     bs,
			Attempts: attempt.NewService(attempt.Config{Store: st, Now: c.Now}),
			Score:    score.NewService(score.Config{EventBus: eb, Store: st, Now: c.Now}),
			Store:    st,
			States:   states,
			Now:      c.Now,
		}),
	}
}

// quiz creates a quiz worth 12 marks: a single choice, a multiple choice with two
// correct choices and a text question answered by "Paris".
func (h *harness) quiz(t *testing.T, req bank.CreateQuizRequest) (*domain.Quiz, []domain.QuizQuestion) {
	t.Helper()

	req.Title = "geography"
	req.CreatedBy = "teacher"
	quiz, err := h.bank.CreateQuiz(h.ctx, req)
	require.NoError(t, err)

	textMarks := decimal.NewFromInt(4)
	for _, q := range []bank.AddQuestionRequest{
		{
			Text: "Largest ocean?",
			Mode: domain.ModeSingleChoice,
			Choices: []bank.ChoiceRequest{
				{Text: "Pacific", IsCorrect: true},
				{Text: "Atlantic"},
			},
		},
		{
			Text: "Countries in Europe?",
			Mode: domain.ModeMultipleChoice,
			Choices: []bank.ChoiceRequest{
				{Text: "France", IsCorrect: true},
				{Text: "Peru"},
				{Text: "Spain", IsCorrect: true},
			},
		},
		{
			Text:          "Capital of France?",
			Mode:          domain.ModeText,
			CorrectAnswer: "Paris",
			MaximumMarks:  &textMarks,
		},
	} {
		q.QuizID = quiz.QuizID
		_, err := h.bank.AddQuestion(h.ctx, q)
		require.NoError(t, err)
	}

	qs, err := h.bank.QuizQuestions(h.ctx, quiz.QuizID)
	require.NoError(t, err)
	return quiz, qs
}

func (h *harness) next(t *testing.T, id domain.Identity, quiz *domain.Quiz) *session.View {
	t.Helper()
	v, err := h.session.Next(h.ctx, session.NextRequest{Identity: id, QuizID: quiz.QuizID})
	require.NoError(t, err)
	return v
}

func (h *harness) submit(t *testing.T, id domain.Identity, quiz *domain.Quiz, q domain.QuizQuestion, choiceIDs ...int64) *session.View {
	t.Helper()

	req := session.SubmitRequest{
		Identity:   id,
		QuizID:     quiz.QuizID,
		QuestionID: q.Question.QuestionID,
		ChoiceIDs:  choiceIDs,
	}
	if q.Question.Mode == domain.ModeText {
		req.Text = q.Question.CorrectAnswer
	}

	v, err := h.session.Submit(h.ctx, req)
	require.NoError(t, err)
	return v
}

func (h *harness) total(t *testing.T, username string) string {
	t.Helper()
	p, err := h.store.GetOrCreateProfile(h.ctx, username)
	require.NoError(t, err)
	return p.TotalScore.String()
}

func questionIDs(qs []domain.QuizQuestion) []int64 {
	ids := make([]int64, 0, len(qs))
	for _, q := range qs {
		ids = append(ids, q.Question.QuestionID)
	}
	return ids
}

func correctChoices(q domain.QuizQuestion) []int64 {
	return q.Question.CorrectChoiceIDs()
}
