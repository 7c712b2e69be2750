package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/victornm/letsquiz/internal/bank"
	"github.com/victornm/letsquiz/internal/domain"
	"github.com/victornm/letsquiz/internal/errors"
	"github.com/victornm/letsquiz/internal/leaderboard"
	"github.com/victornm/letsquiz/internal/report"
	"github.com/victornm/letsquiz/internal/session"
)

const contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ListQuizzes returns the quizzes the caller may play.
func (a *API) ListQuizzes(c *gin.Context) {
	qs, err := a.bs.ListQuizzes(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}

	id := identity(c)
	resp := make([]Quiz, 0, len(qs))
	for _, q := range qs {
		if q.CanAccess(id) {
			resp = append(resp, toQuiz(q))
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) CreateQuiz(c *gin.Context) {
	id, err := author(c)
	if err != nil {
		abort(c, err)
		return
	}

	var req CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid body: %v", err), errors.WithCause(err)))
		return
	}

	q, err := a.bs.CreateQuiz(c.Request.Context(), bank.CreateQuizRequest{
		Title:                 req.Title,
		Description:           req.Description,
		CreatedBy:             id.Username,
		TimeLimitSeconds:      req.TimeLimitSeconds,
		ImmediateFeedback:     req.ImmediateFeedback,
		AllowMultipleAttempts: req.AllowMultipleAttempts,
		AllowedUsers:          req.AllowedUsers,
		AllowedGroups:         req.AllowedGroups,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, toQuiz(*q))
}

func (a *API) AddQuestion(c *gin.Context) {
	if _, err := author(c); err != nil {
		abort(c, err)
		return
	}

	quizID, err := pathID(c, "quiz_id")
	if err != nil {
		abort(c, err)
		return
	}

	var req AddQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid body: %v", err), errors.WithCause(err)))
		return
	}

	r := bank.AddQuestionRequest{
		QuizID:        quizID,
		Text:          req.Text,
		MaximumMarks:  req.MaximumMarks,
		Mode:          req.Mode,
		CorrectAnswer: req.CorrectAnswer,
		Published:     req.Published,
	}
	for _, ch := range req.Choices {
		r.Choices = append(r.Choices, bank.ChoiceRequest{Text: ch.Text, IsCorrect: ch.IsCorrect})
	}
	for _, p := range req.MatchingPairs {
		r.MatchingPairs = append(r.MatchingPairs, bank.MatchingPairRequest{Left: p.Left, Right: p.Right})
	}

	qq, err := a.bs.AddQuestion(c.Request.Context(), r)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, toQuestion(qq.Order, qq.Question, true))
}

// Play serves the caller's next question of the quiz.
func (a *API) Play(c *gin.Context) {
	quizID, err := pathID(c, "quiz_id")
	if err != nil {
		abort(c, err)
		return
	}

	v, err := a.ss.Next(c.Request.Context(), session.NextRequest{
		Identity: identity(c),
		QuizID:   quizID,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toPlayView(v))
}

func (a *API) SubmitAnswer(c *gin.Context) {
	quizID, err := pathID(c, "quiz_id")
	if err != nil {
		abort(c, err)
		return
	}

	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid body: %v", err), errors.WithCause(err)))
		return
	}
	if req.QuestionID <= 0 {
		abort(c, errors.InvalidArgument("question_id is required"))
		return
	}

	v, err := a.ss.Submit(c.Request.Context(), session.SubmitRequest{
		Identity:   identity(c),
		QuizID:     quizID,
		QuestionID: req.QuestionID,
		ChoiceIDs:  req.ChoiceIDs,
		Text:       req.Text,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toPlayView(v))
}

func (a *API) EndQuiz(c *gin.Context) {
	quizID, err := pathID(c, "quiz_id")
	if err != nil {
		abort(c, err)
		return
	}

	v, err := a.ss.End(c.Request.Context(), session.EndRequest{
		Identity: identity(c),
		QuizID:   quizID,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toPlayView(v))
}

func (a *API) RestartQuiz(c *gin.Context) {
	quizID, err := pathID(c, "quiz_id")
	if err != nil {
		abort(c, err)
		return
	}

	v, err := a.ss.Restart(c.Request.Context(), session.RestartRequest{
		Identity: identity(c),
		QuizID:   quizID,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toPlayView(v))
}

func (a *API) GetResults(c *gin.Context) {
	r, err := a.results(c)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuizResult(r))
}

func (a *API) ExportResults(c *gin.Context) {
	r, err := a.results(c)
	if err != nil {
		abort(c, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteResults(&buf, *r); err != nil {
		abort(c, fmt.Errorf("write results: %w", err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="quiz-%d-results.xlsx"`, r.Quiz.QuizID))
	c.Data(http.StatusOK, contentTypeXLSX, buf.Bytes())
}

func (a *API) results(c *gin.Context) (*domain.QuizResult, error) {
	quizID, err := pathID(c, "quiz_id")
	if err != nil {
		return nil, err
	}

	return a.ss.Results(c.Request.Context(), session.ResultsRequest{
		Identity: identity(c),
		QuizID:   quizID,
	})
}

func (a *API) GetLeaderboard(c *gin.Context) {
	var limit int
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			abort(c, errors.InvalidArgument("invalid limit: %q", s))
			return
		}
		limit = n
	}

	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{Limit: limit})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toLeaderboard(l))
}

// author returns the caller's identity if they may author quizzes.
func author(c *gin.Context) (domain.Identity, error) {
	id := identity(c)
	if id.Username == "" {
		return id, errors.New(errors.CodeUnauthenticated)
	}
	if !id.Superuser {
		return id, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("only staff can author quizzes: username=%s", id.Username))
	}
	return id, nil
}
