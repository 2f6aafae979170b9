package service

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	"kernelboard/internal/apperr"
	"kernelboard/internal/cache"
	"kernelboard/internal/db/repository"
	"kernelboard/internal/logger"
	"kernelboard/internal/queue"
	"kernelboard/internal/storage"
	"kernelboard/internal/tracer"
	"kernelboard/internal/util"
	"kernelboard/model"
)

// ParseDeadline accepts the two deadline forms, date-with-time first.
func ParseDeadline(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02 15:04", raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.ErrBadDeadline
}

// Store is the slice of the repository the services depend on.
type Store interface {
	CreateLeaderboard(ctx context.Context, lb model.Leaderboard) error
	GetLeaderboard(ctx context.Context, name string) (*model.Leaderboard, error)
	GetLeaderboardTargets(ctx context.Context, name string) ([]model.Target, error)
	ListLeaderboards(ctx context.Context) ([]*model.LeaderboardSummary, error)
	CreateSubmission(ctx context.Context, sub model.Submission) error
	GetSubmissions(ctx context.Context, name string, target model.Target) ([]*model.Submission, error)
	DeleteLeaderboard(ctx context.Context, name string) (int64, error)
}

var _ Store = (*repository.LeaderboardRepository)(nil)

type LeaderboardService struct {
	repo    Store
	cache   cache.Cache
	storage storage.Storage
	queue   queue.Queue
}

func NewLeaderboardService(repo Store, c cache.Cache, s storage.Storage, q queue.Queue) *LeaderboardService {
	return &LeaderboardService{repo: repo, cache: c, storage: s, queue: q}
}

// Create validates and persists a new leaderboard. The reference code must
// decode as UTF-8 and the target set must be non-empty.
func (s *LeaderboardService) Create(ctx context.Context, name, deadline string, referenceCode []byte, targets []model.Target) (*model.Leaderboard, error) {

	ctx, span := tracer.GetTracer().Start(ctx, "Service/CreateLeaderboard")
	defer span.End()

	when, err := ParseDeadline(deadline)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(referenceCode) {
		return nil, apperr.ErrInvalidEncoding
	}
	if len(targets) == 0 {
		return nil, apperr.ErrEmptySelection
	}

	lb := model.Leaderboard{
		Name:          name,
		Deadline:      when,
		ReferenceCode: string(referenceCode),
		Targets:       targets,
	}
	if err := s.repo.CreateLeaderboard(ctx, lb); err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	// archive reference code; the database row is the source of truth, so a
	// storage hiccup does not fail creation
	if err := s.storage.Upload(ctx, util.GetReferencePath(name), referenceCode); err != nil {
		logger.FromContext(ctx).Err(err).Str("leaderboard", name).Msg("failed to archive reference code")
	}

	s.cache.Delete(ctx, util.GetLeaderboardListKey())

	if err := s.queue.PublishEvent(ctx, queue.LeaderboardCreated, []byte(name)); err != nil {
		logger.FromContext(ctx).Err(err).Str("leaderboard", name).Msg("failed to publish creation event")
	}

	return &lb, nil
}

// Get returns the full leaderboard record, cached.
func (s *LeaderboardService) Get(ctx context.Context, name string) (*model.Leaderboard, error) {

	ctx, span := tracer.GetTracer().Start(ctx, "Service/GetLeaderboard")
	defer span.End()

	var cached model.Leaderboard
	if err := s.cache.Get(ctx, util.GetLeaderboardKey(name), &cached); err == nil {
		return &cached, nil
	}

	lb, err := s.repo.GetLeaderboard(ctx, name)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(ctx, util.GetLeaderboardKey(name), *lb, s.cache.GetDefaultTTL()); err != nil {
		logger.FromContext(ctx).Err(err).Msg("failed to cache leaderboard")
	}
	return lb, nil
}

// List returns leaderboard summaries, cached.
func (s *LeaderboardService) List(ctx context.Context) ([]*model.LeaderboardSummary, error) {

	ctx, span := tracer.GetTracer().Start(ctx, "Service/ListLeaderboards")
	defer span.End()

	var cached []*model.LeaderboardSummary
	if err := s.cache.Get(ctx, util.GetLeaderboardListKey(), &cached); err == nil {
		return cached, nil
	}

	out, err := s.repo.ListLeaderboards(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(ctx, util.GetLeaderboardListKey(), out, s.cache.GetDefaultTTL()); err != nil {
		logger.FromContext(ctx).Err(err).Msg("failed to cache leaderboard list")
	}
	return out, nil
}

// ReferenceCode serves the reference kernel from the object archive. The
// database row remains the source of truth, so an archive miss falls back to
// it.
func (s *LeaderboardService) ReferenceCode(ctx context.Context, name string) ([]byte, error) {

	ctx, span := tracer.GetTracer().Start(ctx, "Service/GetReferenceCode")
	defer span.End()

	if data, err := s.storage.Download(ctx, util.GetReferencePath(name)); err == nil {
		return data, nil
	}

	lb, err := s.repo.GetLeaderboard(ctx, name)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}
	return []byte(lb.ReferenceCode), nil
}

// Submissions returns the ranked submissions for one (leaderboard, target).
func (s *LeaderboardService) Submissions(ctx context.Context, name string, target model.Target) ([]*model.Submission, error) {
	if _, err := s.repo.GetLeaderboard(ctx, name); err != nil {
		return nil, err
	}
	return s.repo.GetSubmissions(ctx, name, target)
}

// Delete removes a leaderboard and all its submissions. The caller must
// re-state the exact name; a mismatch cancels without touching the store.
func (s *LeaderboardService) Delete(ctx context.Context, name, confirmation string) (int64, error) {

	ctx, span := tracer.GetTracer().Start(ctx, "Service/DeleteLeaderboard")
	defer span.End()

	if confirmation != name {
		return 0, apperr.ErrDeleteNotConfirmed
	}

	deleted, err := s.repo.DeleteLeaderboard(ctx, name)
	if err != nil {
		util.RecordSpanError(span, err)
		return 0, err
	}

	s.cache.Delete(ctx, util.GetLeaderboardKey(name))
	s.cache.Delete(ctx, util.GetLeaderboardListKey())

	payload, _ := json.Marshal(map[string]any{"name": name, "submissionsDeleted": deleted})
	if err := s.queue.PublishEvent(ctx, queue.LeaderboardDeleted, payload); err != nil {
		logger.FromContext(ctx).Err(err).Str("leaderboard", name).Msg("failed to publish deletion event")
	}

	return deleted, nil
}
