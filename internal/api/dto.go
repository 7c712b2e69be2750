package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/letsquiz/internal/domain"
	"github.com/victornm/letsquiz/internal/grading"
	"github.com/victornm/letsquiz/internal/session"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type (
	Quiz struct {
		QuizID                int64    `json:"quiz_id"`
		Title                 string   `json:"title"`
		Description           string   `json:"description"`
		CreatedBy             string   `json:"created_by"`
		TimeLimitSeconds      int32    `json:"time_limit_seconds"`
		ImmediateFeedback     bool     `json:"immediate_feedback"`
		AllowMultipleAttempts bool     `json:"allow_multiple_attempts"`
		AllowedUsers          []string `json:"allowed_users,omitempty"`
		AllowedGroups         []string `json:"allowed_groups,omitempty"`
	}

	Question struct {
		QuestionID    int64           `json:"question_id"`
		Order         int             `json:"order,omitempty"`
		Text          string          `json:"text"`
		MaximumMarks  decimal.Decimal `json:"maximum_marks"`
		Mode          domain.Mode     `json:"mode"`
		Choices       []Choice        `json:"choices,omitempty"`
		MatchingPairs []MatchingPair  `json:"matching_pairs,omitempty"`
		// CorrectAnswer is only rendered to authors.
		CorrectAnswer string `json:"correct_answer,omitempty"`
	}

	Choice struct {
		ChoiceID int64  `json:"choice_id"`
		Text     string `json:"text"`
		// IsCorrect is only rendered to authors.
		IsCorrect *bool `json:"is_correct,omitempty"`
	}

	MatchingPair struct {
		PairID int64  `json:"pair_id"`
		Left   string `json:"left"`
		Right  string `json:"right"`
	}

	Result struct {
		QuestionID        int64           `json:"question_id"`
		IsCorrect         bool            `json:"is_correct"`
		MarksObtained     decimal.Decimal `json:"marks_obtained"`
		MaximumMarks      decimal.Decimal `json:"maximum_marks"`
		SelectedChoiceIDs []int64         `json:"selected_choice_ids,omitempty"`
		TextAnswer        string          `json:"text_answer,omitempty"`
	}

	QuizAttempt struct {
		AttemptID    string          `json:"attempt_id"`
		StartTime    time.Time       `json:"start_time"`
		FinishTime   *time.Time      `json:"finish_time,omitempty"`
		CurrentIndex int             `json:"current_index"`
		TotalScore   decimal.Decimal `json:"total_score"`
		Finished     bool            `json:"finished"`
		FinishReason string          `json:"finish_reason,omitempty"`
	}

	PlayView struct {
		Status           session.Status `json:"status"`
		QuizID           int64          `json:"quiz_id"`
		Question         *Question      `json:"question,omitempty"`
		Position         int            `json:"position,omitempty"`
		Total            int            `json:"total"`
		RemainingSeconds *float64       `json:"remaining_seconds,omitempty"`
		Result           *Result        `json:"result,omitempty"`
		Attempt          *QuizAttempt   `json:"attempt,omitempty"`
		Score            *string        `json:"score,omitempty"`
	}

	QuizResult struct {
		Quiz     Quiz              `json:"quiz"`
		Username string            `json:"username"`
		Entries  []QuizResultEntry `json:"entries"`
		Score    decimal.Decimal   `json:"score"`
		MaxScore decimal.Decimal   `json:"max_score"`
		Attempt  *QuizAttempt      `json:"attempt,omitempty"`
	}

	QuizResultEntry struct {
		Question Question `json:"question"`
		Answered bool     `json:"answered"`
		Result   *Result  `json:"result,omitempty"`
	}

	Leaderboard struct {
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		Rank     int    `json:"rank"`
		Username string `json:"username"`
		Score    string `json:"score"`
	}
)

type (
	CreateQuizRequest struct {
		Title                 string   `json:"title"`
		Description           string   `json:"description"`
		TimeLimitSeconds      int32    `json:"time_limit_seconds"`
		ImmediateFeedback     bool     `json:"immediate_feedback"`
		AllowMultipleAttempts bool     `json:"allow_multiple_attempts"`
		AllowedUsers          []string `json:"allowed_users"`
		AllowedGroups         []string `json:"allowed_groups"`
	}

	AddQuestionRequest struct {
		Text          string              `json:"text"`
		MaximumMarks  *decimal.Decimal    `json:"maximum_marks"`
		Mode          domain.Mode         `json:"mode"`
		CorrectAnswer string              `json:"correct_answer"`
		Choices       []ChoiceInput       `json:"choices"`
		MatchingPairs []MatchingPairInput `json:"matching_pairs"`
		Published     bool                `json:"published"`
	}

	ChoiceInput struct {
		Text      string `json:"text"`
		IsCorrect bool   `json:"is_correct"`
	}

	MatchingPairInput struct {
		Left  string `json:"left"`
		Right string `json:"right"`
	}

	SubmitAnswerRequest struct {
		QuestionID int64   `json:"question_id"`
		ChoiceIDs  []int64 `json:"choice_ids"`
		Text       string  `json:"text"`
	}
)

func toQuiz(q domain.Quiz) Quiz {
	return Quiz{
		QuizID:                q.QuizID,
		Title:                 q.Title,
		Description:           q.Description,
		CreatedBy:             q.CreatedBy,
		TimeLimitSeconds:      q.TimeLimitSeconds,
		ImmediateFeedback:     q.ImmediateFeedback,
		AllowMultipleAttempts: q.AllowMultipleAttempts,
		AllowedUsers:          q.AllowedUsers,
		AllowedGroups:         q.AllowedGroups,
	}
}

// toQuestion renders q for players, or with its answers for authors.
func toQuestion(order int, q domain.Question, author bool) Question {
	dto := Question{
		QuestionID:   q.QuestionID,
		Order:        order,
		Text:         q.Text,
		MaximumMarks: q.MaximumMarks,
		Mode:         q.Mode,
	}

	for _, c := range q.Choices {
		ch := Choice{ChoiceID: c.ChoiceID, Text: c.Text}
		if author {
			ch.IsCorrect = &c.IsCorrect
		}
		dto.Choices = append(dto.Choices, ch)
	}

	for _, p := range q.MatchingPairs {
		dto.MatchingPairs = append(dto.MatchingPairs, MatchingPair{PairID: p.PairID, Left: p.Left, Right: p.Right})
	}

	if author {
		dto.CorrectAnswer = q.CorrectAnswer
	}

	return dto
}

func toResult(r grading.Result) *Result {
	return &Result{
		QuestionID:        r.QuestionID,
		IsCorrect:         r.IsCorrect,
		MarksObtained:     r.MarksObtained,
		MaximumMarks:      r.MaximumMarks,
		SelectedChoiceIDs: r.SelectedChoiceIDs,
		TextAnswer:        r.TextAnswer,
	}
}

func toAttemptResult(q domain.Question, a domain.AttemptedQuestion) *Result {
	return &Result{
		QuestionID:        a.QuestionID,
		IsCorrect:         a.IsCorrect,
		MarksObtained:     a.MarksObtained,
		MaximumMarks:      q.MaximumMarks,
		SelectedChoiceIDs: a.SelectedChoiceIDs,
		TextAnswer:        a.TextAnswer,
	}
}

func toQuizAttempt(a *domain.QuizAttempt) *QuizAttempt {
	if a == nil {
		return nil
	}

	dto := &QuizAttempt{
		AttemptID:    a.AttemptID,
		StartTime:    a.StartTime,
		CurrentIndex: a.CurrentIndex,
		TotalScore:   a.TotalScore,
		Finished:     a.Finished,
		FinishReason: string(a.FinishReason),
	}
	if !a.FinishTime.IsZero() {
		t := a.FinishTime
		dto.FinishTime = &t
	}
	return dto
}

func toPlayView(v *session.View) PlayView {
	dto := PlayView{
		Status:   v.Status,
		QuizID:   v.Quiz.QuizID,
		Position: v.Position,
		Total:    v.Total,
		Attempt:  toQuizAttempt(v.Attempt),
	}

	if v.Question != nil {
		q := toQuestion(v.Question.Order, v.Question.Question, false)
		dto.Question = &q
	}
	if v.Remaining != nil {
		s := v.Remaining.Seconds()
		dto.RemainingSeconds = &s
	}
	if v.Result != nil {
		dto.Result = toResult(*v.Result)
	}
	if v.Status == session.StatusFinished {
		s := v.Score.StringFixed(2)
		dto.Score = &s
	}

	return dto
}

func toQuizResult(r *domain.QuizResult) QuizResult {
	dto := QuizResult{
		Quiz:     toQuiz(r.Quiz),
		Username: r.Username,
		Entries:  make([]QuizResultEntry, 0, len(r.Entries)),
		Score:    r.Score,
		MaxScore: r.MaxScore,
		Attempt:  toQuizAttempt(r.Attempt),
	}

	for _, e := range r.Entries {
		entry := QuizResultEntry{Question: toQuestion(e.Order, e.Question, false)}
		if e.Attempt != nil && e.Attempt.Graded {
			entry.Answered = true
			entry.Result = toAttemptResult(e.Question, *e.Attempt)
		}
		dto.Entries = append(dto.Entries, entry)
	}

	return dto
}

func toLeaderboard(l *domain.Leaderboard) Leaderboard {
	dto := Leaderboard{Entries: make([]LeaderboardEntry, 0, len(l.Entries))}
	for i, e := range l.Entries {
		dto.Entries = append(dto.Entries, LeaderboardEntry{
			Rank:     i + 1,
			Username: e.Username,
			Score:    formatScore(e.Score),
		})
	}
	return dto
}
