package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Mode is the grading mode of a question. A question has exactly one mode.
type Mode string

const (
	ModeSingleChoice   Mode = "single"
	ModeMultipleChoice Mode = "multiple"
	ModeText           Mode = "text"
	ModeMatching       Mode = "matching"
)

// DefaultMaximumMarks is used when a question is authored without explicit marks.
var DefaultMaximumMarks = decimal.NewFromInt(4)

type Question struct {
	QuestionID    int64
	Text          string
	MaximumMarks  decimal.Decimal
	Mode          Mode
	CorrectAnswer string
	Choices       []Choice
	MatchingPairs []MatchingPair
	Published     bool
}

// CorrectChoiceIDs returns the IDs of all choices flagged as correct.
func (q Question) CorrectChoiceIDs() []int64 {
	var ids []int64
	for _, c := range q.Choices {
		if c.IsCorrect {
			ids = append(ids, c.ChoiceID)
		}
	}
	return ids
}

type Choice struct {
	ChoiceID   int64
	QuestionID int64
	Text       string
	IsCorrect  bool
}

type MatchingPair struct {
	PairID     int64
	QuestionID int64
	Left       string
	Right      string
}

// Quiz is an ordered collection of questions with play settings.
// TimeLimitSeconds of 0 means the quiz is not timed.
type Quiz struct {
	QuizID                int64
	Title                 string
	Description           string
	CreatedBy             string
	TimeLimitSeconds      int32
	ImmediateFeedback     bool
	AllowMultipleAttempts bool
	AllowedUsers          []string
	AllowedGroups         []string
}

// TimeLimit returns the time budget of the quiz and whether the quiz is timed at all.
func (q Quiz) TimeLimit() (time.Duration, bool) {
	if q.TimeLimitSeconds <= 0 {
		return 0, false
	}
	return time.Duration(q.TimeLimitSeconds) * time.Second, true
}

// Restricted reports whether the quiz declares any allowed users or groups.
func (q Quiz) Restricted() bool {
	return len(q.AllowedUsers) > 0 || len(q.AllowedGroups) > 0
}

// CanAccess reports whether id may play the quiz.
func (q Quiz) CanAccess(id Identity) bool {
	if !q.Restricted() || id.Superuser {
		return true
	}

	if slices.Contains(q.AllowedUsers, id.Username) {
		return true
	}

	for _, g := range id.Groups {
		if slices.Contains(q.AllowedGroups, g) {
			return true
		}
	}

	return false
}

// QuizQuestion places a question inside a quiz. Order is unique per quiz.
type QuizQuestion struct {
	QuizID   int64
	Order    int
	Question Question
}

// Identity is the authenticated principal making a request.
type Identity struct {
	Username  string
	Groups    []string
	Superuser bool
}

// QuizProfile is the per-user score record. TotalScore always equals the sum of
// MarksObtained over the user's attempted questions.
type QuizProfile struct {
	Username   string
	TotalScore decimal.Decimal
	CreateTime time.Time
}

// AttemptedQuestion records one user's encounter with one question. It is created
// ungraded when the question is served and graded exactly once.
type AttemptedQuestion struct {
	AttemptID         int64
	Username          string
	QuestionID        int64
	SelectedChoiceIDs []int64
	TextAnswer        string
	IsCorrect         bool
	MarksObtained     decimal.Decimal
	Graded            bool
	CreateTime        time.Time
	GradeTime         time.Time
}

type FinishReason string

const (
	FinishReasonCompleted FinishReason = "completed"
	FinishReasonTimeout   FinishReason = "timeout"
	FinishReasonEnded     FinishReason = "ended"
	FinishReasonRestarted FinishReason = "restarted"
)

// QuizAttempt is the session-level record of one play-through of a quiz.
type QuizAttempt struct {
	AttemptID    string
	QuizID       int64
	Username     string
	StartTime    time.Time
	FinishTime   time.Time
	CurrentIndex int
	TotalScore   decimal.Decimal
	Finished     bool
	FinishReason FinishReason
}

// Score represents a user's running total score.
type Score struct {
	Username   string
	TotalScore decimal.Decimal
	UpdateTime time.Time
}

// Leaderboard represents a list of users and their scores.
// The list is sorted by score in descending order.
type Leaderboard struct {
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	Username string
	Score    float64
}

// QuizResult summarizes a user's attempts on a quiz.
type QuizResult struct {
	Quiz     Quiz
	Username string
	Entries  []QuizResultEntry
	Score    decimal.Decimal
	MaxScore decimal.Decimal
	Attempt  *QuizAttempt
}

type QuizResultEntry struct {
	Order    int
	Question Question
	Attempt  *AttemptedQuestion
}
