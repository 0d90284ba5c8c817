package services

import (
	"context"

	"korner-support-service/internal/models"
)

type kycSettingsStore interface {
	GetOrCreateSettings(ctx context.Context, userID int64, maxAttempts int) (*models.KYCUserSettings, error)
	IncrementAttempts(ctx context.Context, userID int64, maxAttempts int) (*models.KYCUserSettings, error)
}

// KYCPolicyService owns the attempt counter and the permanent block.
type KYCPolicyService interface {
	GetOrCreateSettings(ctx context.Context, userID int64) (*models.KYCUserSettings, error)
	IncrementAttempts(ctx context.Context, userID int64) (*models.KYCUserSettings, error)
	IsBlocked(ctx context.Context, userID int64) (bool, error)
	MaxAttempts() int
}

type kycPolicyService struct {
	store       kycSettingsStore
	maxAttempts int
}

func NewKYCPolicyService(store kycSettingsStore, maxAttempts int) KYCPolicyService {
	return &kycPolicyService{store: store, maxAttempts: maxAttempts}
}

func (s *kycPolicyService) GetOrCreateSettings(ctx context.Context, userID int64) (*models.KYCUserSettings, error) {
	return s.store.GetOrCreateSettings(ctx, userID, s.maxAttempts)
}

func (s *kycPolicyService) IncrementAttempts(ctx context.Context, userID int64) (*models.KYCUserSettings, error) {
	return s.store.IncrementAttempts(ctx, userID, s.maxAttempts)
}

func (s *kycPolicyService) IsBlocked(ctx context.Context, userID int64) (bool, error) {
	settings, err := s.GetOrCreateSettings(ctx, userID)
	if err != nil {
		return false, err
	}
	return settings.IsBlocked || settings.TotalAttempts >= settings.MaxAttempts, nil
}

func (s *kycPolicyService) MaxAttempts() int {
	return s.maxAttempts
}
