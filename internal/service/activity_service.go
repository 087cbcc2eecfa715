package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"studyhub/portal/internal/domain"
	"studyhub/portal/internal/repository"
)

// LogActivityInput is one user interaction to append to the activity log.
type LogActivityInput struct {
	UserID   string
	UserName string
	Scope    domain.Scope
	Type     domain.ActivityType
	Result   *domain.QuizResult
}

type ActivityService interface {
	Log(ctx context.Context, in LogActivityInput) (*domain.Activity, error)
	// List returns every record for admins and only the requester's own
	// records otherwise, newest first.
	List(ctx context.Context, requesterID string, isAdmin bool) ([]domain.Activity, error)
	DeleteForScope(ctx context.Context, scope domain.Scope) (int64, error)
}

type activityService struct {
	repo repository.ActivityRepository
	now  func() time.Time
}

func NewActivityService(repo repository.ActivityRepository) ActivityService {
	return &activityService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (s *activityService) Log(ctx context.Context, in LogActivityInput) (*domain.Activity, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return nil, validationf("userId is required")
	}
	if err := in.Scope.Validate(); err != nil {
		return nil, validationf("%v", err)
	}
	if in.Type == "" {
		return nil, validationf("activityType is required")
	}
	if !in.Type.Valid() {
		return nil, validationf("activityType must be %q or %q", domain.ActivityNotesView, domain.ActivityQuizSubmission)
	}
	if err := validateResult(in.Type, in.Result); err != nil {
		return nil, err
	}

	record := &domain.Activity{
		UserID:    in.UserID,
		UserName:  strings.TrimSpace(in.UserName),
		Scope:     in.Scope,
		Type:      in.Type,
		Result:    in.Result,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("append activity: %w", err)
	}
	return record, nil
}

// validateResult enforces that a quiz result is present exactly on submissions.
func validateResult(t domain.ActivityType, r *domain.QuizResult) error {
	if t != domain.ActivityQuizSubmission {
		if r != nil {
			return validationf("quizResult is only allowed on %s records", domain.ActivityQuizSubmission)
		}
		return nil
	}
	if r == nil {
		return validationf("quizResult is required for %s records", domain.ActivityQuizSubmission)
	}
	if r.Score < 0 || r.Total < 0 || r.Score > r.Total {
		return validationf("quizResult score must be between 0 and total")
	}
	if r.Answers == nil {
		r.Answers = map[string]string{}
	}
	return nil
}

func (s *activityService) List(ctx context.Context, requesterID string, isAdmin bool) ([]domain.Activity, error) {
	requesterID = strings.TrimSpace(requesterID)
	if isAdmin {
		return s.repo.List(ctx, "")
	}
	if requesterID == "" {
		return nil, fmt.Errorf("%w: a user id or admin access is required", ErrUnauthorized)
	}
	return s.repo.List(ctx, requesterID)
}

func (s *activityService) DeleteForScope(ctx context.Context, scope domain.Scope) (int64, error) {
	return s.repo.DeleteByScope(ctx, scope)
}
