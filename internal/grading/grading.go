// Package grading compares a submitted answer with a question's correct-answer
// definition. Every function here is pure: nothing is persisted.
package grading

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/victornm/letsquiz/internal/domain"
	"github.com/victornm/letsquiz/internal/errors"
)

const marksPlaces = 2

// Answer is the raw submission for one question.
type Answer struct {
	ChoiceIDs []int64
	Text      string
}

// Result is the outcome of grading one answer.
type Result struct {
	QuestionID    int64
	IsCorrect     bool
	MarksObtained decimal.Decimal
	MaximumMarks  decimal.Decimal
	// SelectedChoiceIDs is the normalized selection: deduplicated, sorted and
	// restricted to the question's own choices.
	SelectedChoiceIDs []int64
	TextAnswer        string
}

// Strategy grades answers for one question mode. The set of strategies is closed.
type Strategy interface {
	grade(q domain.Question, a Answer) Result
}

type (
	singleChoice   struct{}
	multipleChoice struct{}
	text           struct{}
)

// StrategyFor returns the strategy for a question mode.
func StrategyFor(m domain.Mode) (Strategy, error) {
	switch m {
	case domain.ModeSingleChoice:
		return singleChoice{}, nil
	case domain.ModeMultipleChoice:
		return multipleChoice{}, nil
	case domain.ModeText:
		return text{}, nil
	case domain.ModeMatching:
		return nil, errors.New(errors.CodeUnimplemented,
			errors.WithMessagef("matching questions cannot be graded"))
	default:
		return nil, errors.InvalidArgument("unknown question mode: %q", m)
	}
}

// Grade grades a against q. The question is expected to satisfy the authoring invariants.
func Grade(q domain.Question, a Answer) (Result, error) {
	s, err := StrategyFor(q.Mode)
	if err != nil {
		return Result{}, err
	}

	r := s.grade(q, a)
	r.QuestionID = q.QuestionID
	r.MaximumMarks = q.MaximumMarks
	r.MarksObtained = clamp(r.MarksObtained, q.MaximumMarks)
	return r, nil
}

func (singleChoice) grade(q domain.Question, a Answer) Result {
	chosen := selection(q, a.ChoiceIDs)
	r := Result{SelectedChoiceIDs: chosen, MarksObtained: decimal.Zero}

	if len(chosen) == 1 && slices.Contains(q.CorrectChoiceIDs(), chosen[0]) {
		r.IsCorrect = true
		r.MarksObtained = q.MaximumMarks
	}

	return r
}

func (multipleChoice) grade(q domain.Question, a Answer) Result {
	chosen := selection(q, a.ChoiceIDs)
	correct := q.CorrectChoiceIDs()

	var correctSelected, incorrectSelected int64
	for _, id := range chosen {
		if slices.Contains(correct, id) {
			correctSelected++
		} else {
			incorrectSelected++
		}
	}
	totalCorrect := int64(len(correct))

	r := Result{SelectedChoiceIDs: chosen}
	if correctSelected == totalCorrect && incorrectSelected == 0 && totalCorrect > 0 {
		r.IsCorrect = true
		r.MarksObtained = q.MaximumMarks
		return r
	}

	r.MarksObtained = PartialMarks(q.MaximumMarks, correctSelected, totalCorrect)
	return r
}

func (text) grade(q domain.Question, a Answer) Result {
	r := Result{TextAnswer: a.Text, MarksObtained: decimal.Zero}

	want := normalizeText(q.CorrectAnswer)
	if want != "" && normalizeText(a.Text) == want {
		r.IsCorrect = true
		r.MarksObtained = q.MaximumMarks
	}

	return r
}

// PartialMarks returns maximum * correctSelected / totalCorrect rounded half away from zero
// to two places. A zero totalCorrect yields zero.
func PartialMarks(maximum decimal.Decimal, correctSelected, totalCorrect int64) decimal.Decimal {
	if totalCorrect <= 0 || correctSelected <= 0 {
		return decimal.Zero
	}

	return maximum.
		Mul(decimal.NewFromInt(correctSelected)).
		Div(decimal.NewFromInt(totalCorrect)).
		Round(marksPlaces)
}

// selection keeps the submitted IDs that belong to q, once each, in ascending order.
func selection(q domain.Question, ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if slices.Contains(out, id) {
			continue
		}
		if slices.ContainsFunc(q.Choices, func(c domain.Choice) bool { return c.ChoiceID == id }) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func normalizeText(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func clamp(v, maximum decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(maximum) {
		return maximum
	}
	return v
}
