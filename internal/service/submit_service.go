package service

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kernelboard/internal/apperr"
	"kernelboard/internal/cache"
	"kernelboard/internal/gate"
	"kernelboard/internal/logger"
	"kernelboard/internal/queue"
	"kernelboard/internal/runner"
	"kernelboard/internal/score"
	"kernelboard/internal/storage"
	"kernelboard/internal/tracer"
	"kernelboard/internal/util"
	"kernelboard/model"
)

// SubmitService orchestrates one submission: decode check, leaderboard
// lookup, target selection, concurrent fan-out to the runner backends, score
// extraction, and persistence of one submission row per target.
type SubmitService struct {
	repo    Store
	runners *runner.Registry
	gates   *gate.Registry
	cache   cache.Cache
	storage storage.Storage
	queue   queue.Queue
}

func NewSubmitService(repo Store, runners *runner.Registry, gates *gate.Registry, c cache.Cache, s storage.Storage, q queue.Queue) *SubmitService {
	return &SubmitService{
		repo:    repo,
		runners: runners,
		gates:   gates,
		cache:   c,
		storage: s,
		queue:   q,
	}
}

// PendingSubmission is a validated submission waiting on target selection.
// When the request pre-selected targets there is no gate and Await proceeds
// immediately.
type PendingSubmission struct {
	svc     *SubmitService
	req     model.SubmitRequest
	lb      *model.Leaderboard
	session *gate.Session
	targets []model.Target
}

// Begin validates the request and opens the selection gate. Nothing is
// persisted here: an abort at this stage leaves no trace.
func (s *SubmitService) Begin(ctx context.Context, req model.SubmitRequest) (*PendingSubmission, error) {

	ctx, span := tracer.GetTracer().Start(ctx, "Service/BeginSubmission")
	defer span.End()

	if !utf8.Valid(req.Code) {
		return nil, apperr.ErrInvalidEncoding
	}

	lb, err := s.repo.GetLeaderboard(ctx, req.LeaderboardName)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	p := &PendingSubmission{svc: s, req: req, lb: lb}

	if len(req.Targets) > 0 {
		// fixed-choice path: no interactive gate. Repeated targets collapse
		// so one action still yields one row per distinct target.
		valid := mapset.NewSet(lb.Targets...)
		seen := mapset.NewSetWithSize[model.Target](len(req.Targets))
		for _, t := range req.Targets {
			if !valid.Contains(t) {
				return nil, apperr.ErrUnknownTarget
			}
			if seen.Add(t) {
				p.targets = append(p.targets, t)
			}
		}
		return p, nil
	}

	p.session = s.gates.Open(req.UserID, lb.Targets)
	return p, nil
}

// Session returns the open selection session, or nil on the fixed-choice
// path.
func (p *PendingSubmission) Session() *gate.Session {
	return p.session
}

// Await blocks until targets are known, then fans out one run per target.
// All runs launch together; the join waits for every branch, and a branch
// failure is captured in that branch's report instead of cancelling siblings.
// Exactly one submission row is written per selected target.
func (p *PendingSubmission) Await(ctx context.Context) ([]model.TargetReport, error) {

	ctx, span := tracer.GetTracer().Start(ctx, "Service/AwaitSubmission")
	defer span.End()

	targets := p.targets
	if p.session != nil {
		var err error
		targets, err = p.session.Await(ctx)
		p.svc.gates.Close(p.session.ID())
		if err != nil {
			// expired or cancelled gate: abort with no side effects
			util.RecordSpanError(span, err)
			return nil, err
		}
	}
	if len(targets) == 0 {
		return nil, apperr.ErrEmptySelection
	}

	// archive the code blob once per action; persistence does not depend on it
	codeHash := util.HashCode(p.req.Code)
	if err := p.svc.storage.Upload(ctx, util.GetCodePath(codeHash), p.req.Code); err != nil {
		logger.FromContext(ctx).Err(err).Str("code_hash", codeHash).Msg("failed to archive submission code")
	}

	reports := make([]model.TargetReport, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		g.Go(func() error {
			// branch outcome is captured in its report; never an error into
			// the group, so one target cannot short-circuit another
			reports[i] = p.svc.runTarget(gctx, p.req, p.lb, target)
			return nil
		})
	}
	_ = g.Wait()

	return reports, nil
}

// runTarget drives one fan-out branch: run, extract, persist, notify.
func (s *SubmitService) runTarget(ctx context.Context, req model.SubmitRequest, lb *model.Leaderboard, target model.Target) model.TargetReport {

	ctx, span := tracer.GetTracer().Start(ctx, "Service/RunTarget")
	defer span.End()

	log := logger.FromContext(ctx).With().
		Str("leaderboard", lb.Name).
		Str("target", string(target)).
		Logger()

	report := model.TargetReport{Target: target, Score: model.ScoreFailed}

	run, err := s.runners.Get(req.Backend)
	if err != nil {
		util.RecordSpanError(span, err)
		log.Err(err).Msg("no runner for backend")
		report.Err = apperr.UserMessage(err)
		s.persist(ctx, &report, req, lb, target)
		return report
	}

	raw, err := run.Run(ctx, model.RunJob{
		Target:        target,
		Code:          string(req.Code),
		ReferenceCode: lb.ReferenceCode,
		FileName:      req.FileName,
	})
	if err != nil {
		util.RecordSpanError(span, err)
		log.Err(err).Msg("runner execution failed")
		report.Err = apperr.UserMessage(err)
		s.persist(ctx, &report, req, lb, target)
		return report
	}

	value, err := score.Extract(raw)
	if err != nil {
		util.RecordSpanError(span, err)
		log.Err(err).Msg("no score in runner output")
		report.Err = apperr.UserMessage(err)
		s.persist(ctx, &report, req, lb, target)
		return report
	}

	report.Score = value
	s.persist(ctx, &report, req, lb, target)
	return report
}

// persist writes this branch's submission row. Classified store errors are
// surfaced with their specific message; anything else is logged and reported
// generically.
func (s *SubmitService) persist(ctx context.Context, report *model.TargetReport, req model.SubmitRequest, lb *model.Leaderboard, target model.Target) {
	sub := model.Submission{
		ID:              uuid.Must(uuid.NewV7()),
		LeaderboardName: lb.Name,
		UserID:          req.UserID,
		Code:            string(req.Code),
		FileName:        req.FileName,
		Score:           report.Score,
		Target:          target,
		SubmittedAt:     time.Now().UTC(),
	}

	if err := s.repo.CreateSubmission(ctx, sub); err != nil {
		logger.FromContext(ctx).Err(err).
			Str("leaderboard", lb.Name).
			Str("target", string(target)).
			Msg("failed to persist submission")
		report.Err = apperr.UserMessage(err)
		return
	}

	report.SubmissionID = sub.ID

	payload, _ := json.Marshal(map[string]any{
		"submissionId": sub.ID.String(),
		"leaderboard":  lb.Name,
		"target":       string(target),
		"score":        report.Score,
	})
	if err := s.queue.PublishEvent(ctx, queue.SubmissionCreated, payload); err != nil {
		logger.FromContext(ctx).Err(err).Msg("failed to publish submission event")
	}
}

// StoreReports caches the finished reports so a polling transport can fetch
// them by session id.
func (s *SubmitService) StoreReports(ctx context.Context, sessionID uuid.UUID, reports []model.TargetReport) {
	if err := s.cache.Put(ctx, util.GetReportKey(sessionID.String()), reports, s.cache.GetDefaultTTL()); err != nil {
		logger.FromContext(ctx).Err(err).Msg("failed to cache submission reports")
	}
}

// Reports fetches cached reports for a session, if the flow has finished.
func (s *SubmitService) Reports(ctx context.Context, sessionID uuid.UUID) ([]model.TargetReport, bool) {
	var reports []model.TargetReport
	if err := s.cache.Get(ctx, util.GetReportKey(sessionID.String()), &reports); err != nil {
		return nil, false
	}
	return reports, true
}
