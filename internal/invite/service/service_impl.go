package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/invites/internal/clock"
	"github.com/smallbiznis/invites/internal/invite/code"
	"github.com/smallbiznis/invites/internal/invite/domain"
	"github.com/smallbiznis/invites/internal/observability/logger"
	"github.com/smallbiznis/invites/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Repo    domain.Repository
	Codes   *code.Generator
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	repo    domain.Repository
	codes   *code.Generator
	clock   clock.Clock
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("invite.service"),
		repo:    p.Repo,
		codes:   p.Codes,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest, opts domain.CodeOptions) (*domain.Invite, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	source := metrics.SourceProvided
	var inviteCode string
	if req.Code != nil {
		inviteCode = *req.Code
	} else {
		generated, err := s.codes.Generate(opts)
		if err != nil {
			return nil, err
		}
		inviteCode = generated
		source = metrics.SourceGenerated
	}

	invite := domain.Invite{
		Code:      inviteCode,
		CreatedAt: clock.UnixMilli(s.clock),
	}
	if err := s.repo.Add(ctx, invite); err != nil {
		s.recordConflict(ctx, "create", err)
		return nil, err
	}

	s.metrics.RecordInviteCreated(ctx, source)
	logger.WithContext(ctx, s.log).Debug("invite created",
		zap.String("code", invite.Code),
		zap.String("source", source),
	)
	return &invite, nil
}

func (s *Service) Get(ctx context.Context, inviteCode string) (*domain.Invite, error) {
	if inviteCode == "" {
		return nil, domain.ErrCodeRequired
	}
	invite, err := s.repo.Get(ctx, inviteCode)
	if err != nil {
		return nil, err
	}
	if invite == nil {
		return nil, domain.ErrNotFound
	}
	return invite, nil
}

func (s *Service) Delete(ctx context.Context, inviteCode string) error {
	if inviteCode == "" {
		return domain.ErrCodeRequired
	}
	if err := s.repo.Delete(ctx, inviteCode); err != nil {
		s.recordConflict(ctx, "delete", err)
		return err
	}
	s.metrics.RecordInvitesDeleted(ctx, metrics.ModeSingle)
	return nil
}

func (s *Service) DeleteMany(ctx context.Context, codes []string) error {
	if err := s.repo.DeleteMany(ctx, codes); err != nil {
		s.recordConflict(ctx, "delete_many", err)
		return err
	}
	s.metrics.RecordInvitesDeleted(ctx, metrics.ModeBulk)
	logger.WithContext(ctx, s.log).Info("invites deleted", zap.Int("requested", len(codes)))
	return nil
}

func (s *Service) DeleteAll(ctx context.Context) error {
	if err := s.repo.DeleteAll(ctx); err != nil {
		s.recordConflict(ctx, "delete_all", err)
		return err
	}
	s.metrics.RecordInvitesDeleted(ctx, metrics.ModeAll)
	logger.WithContext(ctx, s.log).Warn("all invites deleted")
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, req)
}

func (s *Service) Reindex(ctx context.Context) (int, error) {
	count, err := s.repo.Reindex(ctx)
	if err != nil {
		logger.WithContext(ctx, s.log).Error("reindex failed",
			zap.Int("processed", count),
			zap.Error(err),
		)
		return count, err
	}
	s.metrics.RecordReindex(ctx, count)
	logger.WithContext(ctx, s.log).Info("invites reindexed", zap.Int("count", count))
	return count, nil
}

func (s *Service) IndexStats(ctx context.Context) (*domain.IndexStats, error) {
	return s.repo.Stats(ctx)
}

func (s *Service) recordConflict(ctx context.Context, operation string, err error) {
	switch {
	case errors.Is(err, domain.ErrCommitFailed),
		errors.Is(err, domain.ErrBulkDeleteFailed),
		errors.Is(err, domain.ErrDeleteAllFailed):
		s.metrics.RecordCommitConflict(ctx, operation)
		logger.WithContext(ctx, s.log).Warn("invite commit rejected", zap.String("operation", operation))
	}
}
