package bank_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/victornm/letsquiz/internal/bank"
	"github.com/victornm/letsquiz/internal/domain"
	"github.com/victornm/letsquiz/internal/errors"
	"github.com/victornm/letsquiz/internal/memory"
)

func TestService_CreateQuiz(t *testing.T) {
	tests := map[string]struct {
		req    bank.CreateQuizRequest
		assert func(t *testing.T, q *domain.Quiz, err error)
	}{
		"a valid quiz should be created": {
			req: bank.CreateQuizRequest{
				Title:            "  Go basics ",
				CreatedBy:        "teacher",
				TimeLimitSeconds: 60,
				AllowedGroups:    []string{"class-a"},
			},
			assert: func(t *testing.T, q *domain.Quiz, err error) {
				require.NoError(t, err)
				require.NotZero(t, q.QuizID)
				require.Equal(t, "Go basics", q.Title)
				require.True(t, q.Restricted())
			},
		},

		"a quiz without title should be rejected": {
			req: bank.CreateQuizRequest{CreatedBy: "teacher"},
			assert: func(t *testing.T, q *domain.Quiz, err error) {
				require.True(t, errors.HasCode(err, errors.CodeInvalidArgument), "got %v", err)
			},
		},

		"a negative time limit should be rejected": {
			req: bank.CreateQuizRequest{Title: "t", CreatedBy: "teacher", TimeLimitSeconds: -1},
			assert: func(t *testing.T, q *domain.Quiz, err error) {
				require.True(t, errors.HasCode(err, errors.CodeInvalidArgument), "got %v", err)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := bank.NewService(bank.Config{Store: memory.New()})
			q, err := s.CreateQuiz(context.Background(), tt.req)
			tt.assert(t, q, err)
		})
	}
}

func TestService_AddQuestion(t *testing.T) {
	choices := func(correct ...bool) []bank.ChoiceRequest {
		var cs []bank.ChoiceRequest
		for i, c := range correct {
			cs = append(cs, bank.ChoiceRequest{Text: string(rune('a' + i)), IsCorrect: c})
		}
		return cs
	}

	tests := map[string]struct {
		req     bank.AddQuestionRequest
		wantErr errors.Code
	}{
		"single choice with exactly one correct choice": {
			req: bank.AddQuestionRequest{Text: "q", Mode: domain.ModeSingleChoice, Choices: choices(true, false)},
		},
		"single choice with two correct choices": {
			req:     bank.AddQuestionRequest{Text: "q", Mode: domain.ModeSingleChoice, Choices: choices(true, true)},
			wantErr: errors.CodeInvalidArgument,
		},
		"single choice with no correct choice": {
			req:     bank.AddQuestionRequest{Text: "q", Mode: domain.ModeSingleChoice, Choices: choices(false, false)},
			wantErr: errors.CodeInvalidArgument,
		},
		"multiple choice with two correct choices": {
			req: bank.AddQuestionRequest{Text: "q", Mode: domain.ModeMultipleChoice, Choices: choices(true, true, false)},
		},
		"multiple choice with a single choice": {
			req:     bank.AddQuestionRequest{Text: "q", Mode: domain.ModeMultipleChoice, Choices: choices(true)},
			wantErr: errors.CodeInvalidArgument,
		},
		"text with a correct answer": {
			req: bank.AddQuestionRequest{Text: "q", Mode: domain.ModeText, CorrectAnswer: "Paris"},
		},
		"text without a correct answer": {
			req:     bank.AddQuestionRequest{Text: "q", Mode: domain.ModeText},
			wantErr: errors.CodeInvalidArgument,
		},
		"matching with pairs": {
			req: bank.AddQuestionRequest{
				Text:          "q",
				Mode:          domain.ModeMatching,
				MatchingPairs: []bank.MatchingPairRequest{{Left: "a", Right: "b"}},
			},
		},
		"unknown mode": {
			req:     bank.AddQuestionRequest{Text: "q", Mode: "essay"},
			wantErr: errors.CodeInvalidArgument,
		},
		"marks with more than 2 decimal places": {
			req: bank.AddQuestionRequest{
				Text:          "q",
				Mode:          domain.ModeText,
				CorrectAnswer: "a",
				MaximumMarks:  marks("1.005"),
			},
			wantErr: errors.CodeInvalidArgument,
		},
		"negative marks": {
			req: bank.AddQuestionRequest{
				Text:          "q",
				Mode:          domain.ModeText,
				CorrectAnswer: "a",
				MaximumMarks:  marks("-1"),
			},
			wantErr: errors.CodeInvalidArgument,
		},
		"unknown quiz": {
			req:     bank.AddQuestionRequest{QuizID: 42, Text: "q", Mode: domain.ModeText, CorrectAnswer: "a"},
			wantErr: errors.CodeNotFound,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := bank.NewService(bank.Config{Store: memory.New()})

			quiz, err := s.CreateQuiz(ctx, bank.CreateQuizRequest{Title: "quiz", CreatedBy: "teacher"})
			require.NoError(t, err)

			req := tt.req
			if req.QuizID == 0 {
				req.QuizID = quiz.QuizID
			}

			qq, err := s.AddQuestion(ctx, req)
			if tt.wantErr != 0 {
				require.True(t, errors.HasCode(err, tt.wantErr), "got %v", err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, 1, qq.Order)
			require.NotZero(t, qq.Question.QuestionID)
		})
	}
}

func TestService_AddQuestion_MaximumMarks(t *testing.T) {
	tests := map[string]struct {
		marks *decimal.Decimal
		want  string
	}{
		"omitted marks should default": {marks: nil, want: domain.DefaultMaximumMarks.String()},
		"zero marks should be kept":    {marks: marks("0"), want: "0"},
		"given marks should be kept":   {marks: marks("2.5"), want: "2.5"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := bank.NewService(bank.Config{Store: memory.New()})

			quiz, err := s.CreateQuiz(ctx, bank.CreateQuizRequest{Title: "quiz", CreatedBy: "teacher"})
			require.NoError(t, err)

			qq, err := s.AddQuestion(ctx, bank.AddQuestionRequest{
				QuizID:        quiz.QuizID,
				Text:          "q",
				Mode:          domain.ModeText,
				CorrectAnswer: "a",
				MaximumMarks:  tt.marks,
			})
			require.NoError(t, err)
			require.Equal(t, tt.want, qq.Question.MaximumMarks.String())
		})
	}
}

func TestService_QuizQuestions(t *testing.T) {
	ctx := context.Background()
	s := bank.NewService(bank.Config{Store: memory.New()})

	quiz, err := s.CreateQuiz(ctx, bank.CreateQuizRequest{Title: "quiz", CreatedBy: "teacher"})
	require.NoError(t, err)

	for _, text := range []string{"first", "second", "third"} {
		_, err := s.AddQuestion(ctx, bank.AddQuestionRequest{
			QuizID:        quiz.QuizID,
			Text:          text,
			Mode:          domain.ModeText,
			CorrectAnswer: "x",
		})
		require.NoError(t, err)
	}

	qs, err := s.QuizQuestions(ctx, quiz.QuizID)
	require.NoError(t, err)
	require.Len(t, qs, 3)
	for i, q := range qs {
		require.Equal(t, i+1, q.Order)
		require.True(t, q.Question.MaximumMarks.Equal(domain.DefaultMaximumMarks), "marks should default")
	}
	require.Equal(t, "first", qs[0].Question.Text)
	require.Equal(t, "third", qs[2].Question.Text)

	ids, err := s.QuizQuestionIDs(ctx, quiz.QuizID)
	require.NoError(t, err)
	require.Equal(t, []int64{qs[0].Question.QuestionID, qs[1].Question.QuestionID, qs[2].Question.QuestionID}, ids)

	_, err = s.QuizQuestions(ctx, 999)
	require.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func marks(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
