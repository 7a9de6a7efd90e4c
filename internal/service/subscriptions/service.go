package subscriptions

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/doananhhung/livechat-sub002/internal/model"
	"github.com/doananhhung/livechat-sub002/internal/repository"
	"github.com/doananhhung/livechat-sub002/internal/ssrf"
	"github.com/doananhhung/livechat-sub002/internal/util"
)

const secretBytes = 32

// ValidationError marks a rejection the tenant can act on; the API
// surfaces it synchronously, nothing is persisted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Service is the webhook subscription registry: SSRF-validated create,
// tenant-scoped list/get/delete.
type Service struct {
	repo      repository.SubscriptionsRepository
	validator *ssrf.Validator
}

func New(repo repository.SubscriptionsRepository, validator *ssrf.Validator) *Service {
	return &Service{repo: repo, validator: validator}
}

// Create validates the URL, generates the signing secret and persists
// the subscription. The secret is returned exactly once, on the created
// subscription; it is never regenerated.
func (s *Service) Create(ctx context.Context, projectID, rawURL string, triggers []string, isActive bool) (*model.Subscription, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, &ValidationError{Reason: "url is required"}
	}
	if len(triggers) == 0 {
		return nil, &ValidationError{Reason: "at least one event trigger is required"}
	}
	if err := s.validator.Validate(ctx, rawURL); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	secret, err := util.NewSecret(secretBytes)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	sub := model.Subscription{
		ID:            uuid.New().String(),
		ProjectID:     projectID,
		URL:           rawURL,
		Secret:        secret,
		EventTriggers: model.Triggers(triggers),
		IsActive:      isActive,
	}
	if err := s.repo.Insert(ctx, sub); err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	return &sub, nil
}

func (s *Service) Get(ctx context.Context, id, projectID string) (*model.Subscription, error) {
	return s.repo.Get(ctx, id, projectID)
}

func (s *Service) List(ctx context.Context, projectID string) ([]model.Subscription, error) {
	return s.repo.ListByProject(ctx, projectID)
}

// Delete removes the subscription and, via FK cascade, its delivery
// history. Returns false when the id does not belong to the project.
func (s *Service) Delete(ctx context.Context, id, projectID string) (bool, error) {
	return s.repo.Delete(ctx, id, projectID)
}
