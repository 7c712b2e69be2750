package session

import (
	"cmp"
	"slices"

	"github.com/victornm/letsquiz/internal/domain"
)

// SelectNext returns the first question, by order, that is not in attempted, along
// with its zero-based position. ok is false when every question is attempted.
func SelectNext(questions []domain.QuizQuestion, attempted map[int64]bool) (next domain.QuizQuestion, pos int, ok bool) {
	ordered := slices.Clone(questions)
	slices.SortStableFunc(ordered, func(a, b domain.QuizQuestion) int {
		return cmp.Compare(a.Order, b.Order)
	})

	for i, q := range ordered {
		if !attempted[q.Question.QuestionID] {
			return q, i, true
		}
	}

	return domain.QuizQuestion{}, 0, false
}
