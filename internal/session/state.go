package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Status string

const (
	StatusNotStarted        Status = "not_started"
	StatusInProgress        Status = "in_progress"
	StatusPausedForFeedback Status = "paused_for_feedback"
	StatusFinished          Status = "finished"
)

// State is the play state of one user on one quiz. It is owned by the Service and
// passed explicitly between requests through a StateStore.
type State struct {
	Username  string    `json:"username"`
	QuizID    int64     `json:"quiz_id"`
	AttemptID string    `json:"attempt_id"`
	StartTime time.Time `json:"start_time"`
	Paused    bool      `json:"paused"`
	// PausedRemaining is the time budget captured when the state was paused.
	PausedRemaining time.Duration `json:"paused_remaining"`
	Finished        bool          `json:"finished"`
}

func NewState(username string, quizID int64, attemptID string, now time.Time) *State {
	return &State{
		Username:  username,
		QuizID:    quizID,
		AttemptID: attemptID,
		StartTime: now,
	}
}

func (s *State) Status() Status {
	switch {
	case s == nil:
		return StatusNotStarted
	case s.Finished:
		return StatusFinished
	case s.Paused:
		return StatusPausedForFeedback
	default:
		return StatusInProgress
	}
}

// Remaining returns how much of limit is left at now, never less than zero.
// While paused it is the budget captured by Pause.
func (s *State) Remaining(now time.Time, limit time.Duration) time.Duration {
	if s.Paused {
		return s.PausedRemaining
	}

	r := limit - now.Sub(s.StartTime)
	if r < 0 {
		return 0
	}
	return r
}

// Pause freezes the time budget so that time spent on feedback is not counted.
func (s *State) Pause(now time.Time, limit time.Duration) {
	if s.Paused {
		return
	}

	s.PausedRemaining = s.Remaining(now, limit)
	s.Paused = true
}

// Resume restores the budget captured by Pause by moving the start time forward.
func (s *State) Resume(now time.Time, limit time.Duration) {
	if !s.Paused {
		return
	}

	s.StartTime = now.Add(s.PausedRemaining - limit)
	s.Paused = false
	s.PausedRemaining = 0
}

// StateStore keeps State between requests.
type StateStore interface {
	// Get returns nil without error when the user has no state for the quiz.
	Get(ctx context.Context, username string, quizID int64) (*State, error)
	Save(ctx context.Context, s *State) error
	Delete(ctx context.Context, username string, quizID int64) error
}

type RedisStateStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStateStore stores states as JSON values that expire ttl after their last save.
// A zero ttl keeps them forever.
func NewRedisStateStore(r redis.UniversalClient, prefix string, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{
		redis:  r,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisStateStore) Get(ctx context.Context, username string, quizID int64) (*State, error) {
	b, err := r.redis.Get(ctx, r.key(username, quizID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}

	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &s, nil
}

func (r *RedisStateStore) Save(ctx context.Context, s *State) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := r.redis.Set(ctx, r.key(s.Username, s.QuizID), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (r *RedisStateStore) Delete(ctx context.Context, username string, quizID int64) error {
	if err := r.redis.Del(ctx, r.key(username, quizID)).Err(); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

func (r *RedisStateStore) key(username string, quizID int64) string {
	return fmt.Sprintf("%s:state:%s:%d", r.prefix, username, quizID)
}
