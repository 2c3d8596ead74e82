package service

import (
	"context"

	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/payout"
)

// RequestPayout computes and stores a pending payout for a period.
func (s *Service) RequestPayout(ctx context.Context, req payout.Request) (model.Payout, error) {
	if err := s.ready(); err != nil {
		return model.Payout{}, err
	}
	return s.payouts.Request(ctx, req)
}

// ApprovePayout moves a pending payout to approved.
func (s *Service) ApprovePayout(ctx context.Context, id, approver string) (model.Payout, error) {
	if err := s.ready(); err != nil {
		return model.Payout{}, err
	}
	return s.payouts.Approve(ctx, id, approver)
}

// ProcessPayouts executes every approved payout once.
func (s *Service) ProcessPayouts(ctx context.Context) (payout.BatchResult, error) {
	if err := s.ready(); err != nil {
		return payout.BatchResult{}, err
	}
	return s.payouts.Process(ctx)
}

// GetPayout returns one payout.
func (s *Service) GetPayout(ctx context.Context, id string) (model.Payout, error) {
	if err := s.ready(); err != nil {
		return model.Payout{}, err
	}
	return s.payouts.Get(ctx, id)
}

// ListPayouts returns an operator's payouts, oldest first.
func (s *Service) ListPayouts(ctx context.Context, operatorID string) ([]model.Payout, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.payouts.ListByOperator(ctx, operatorID)
}
