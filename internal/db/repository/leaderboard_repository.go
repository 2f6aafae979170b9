package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kernelboard/internal/apperr"
	"kernelboard/internal/db"
	"kernelboard/internal/tracer"
	"kernelboard/internal/util"
	"kernelboard/model"
)

// Postgres error codes translated into the app error taxonomy.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type LeaderboardRepository struct {
	db *db.DB
}

func NewLeaderboardRepository(db *db.DB) *LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperr.ErrDuplicateName
		case pgForeignKeyViolation:
			return apperr.ErrLeaderboardMissing
		}
	}
	return err
}

func (r *LeaderboardRepository) CreateLeaderboard(ctx context.Context, lb model.Leaderboard) error {

	ctx, span := tracer.GetTracer().Start(ctx, "Postgres/CreateLeaderboard")
	defer span.End()

	span.AddEvent("leaderboard.context",
		trace.WithAttributes(attribute.String("leaderboard_name", lb.Name)),
	)

	targets := make([]string, 0, len(lb.Targets))
	for _, t := range lb.Targets {
		targets = append(targets, string(t))
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		util.RecordSpanError(span, err)
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        INSERT INTO leaderboards (name, deadline, reference_code, targets)
        VALUES ($1, $2, $3, $4)`,
		lb.Name, lb.Deadline, lb.ReferenceCode, targets,
	)
	if err != nil {
		err = translatePgError(err)
		util.RecordSpanError(span, err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		util.RecordSpanError(span, err)
		return err
	}

	return nil
}

func (r *LeaderboardRepository) GetLeaderboard(ctx context.Context, name string) (*model.Leaderboard, error) {

	ctx, span := tracer.GetTracer().Start(ctx, "Postgres/GetLeaderboard")
	defer span.End()

	var lb model.Leaderboard
	var targets []string

	row := r.db.Pool.QueryRow(ctx, `
        SELECT name, deadline, reference_code, targets, created_at
        FROM leaderboards
        WHERE name = $1`,
		name,
	)
	err := row.Scan(&lb.Name, &lb.Deadline, &lb.ReferenceCode, &targets, &lb.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	for _, t := range targets {
		lb.Targets = append(lb.Targets, model.Target(t))
	}

	return &lb, nil
}

func (r *LeaderboardRepository) GetLeaderboardTargets(ctx context.Context, name string) ([]model.Target, error) {

	ctx, span := tracer.GetTracer().Start(ctx, "Postgres/GetLeaderboardTargets")
	defer span.End()

	var targets []string
	row := r.db.Pool.QueryRow(ctx, `SELECT targets FROM leaderboards WHERE name = $1`, name)
	err := row.Scan(&targets)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	out := make([]model.Target, 0, len(targets))
	for _, t := range targets {
		out = append(out, model.Target(t))
	}
	return out, nil
}

func (r *LeaderboardRepository) ListLeaderboards(ctx context.Context) ([]*model.LeaderboardSummary, error) {

	ctx, span := tracer.GetTracer().Start(ctx, "Postgres/ListLeaderboards")
	defer span.End()

	rows, err := r.db.Pool.Query(ctx, `
        SELECT name, deadline, targets
        FROM leaderboards
        ORDER BY name`,
	)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}
	defer rows.Close()

	var out []*model.LeaderboardSummary
	for rows.Next() {
		var s model.LeaderboardSummary
		var targets []string
		if err := rows.Scan(&s.Name, &s.Deadline, &targets); err != nil {
			util.RecordSpanError(span, err)
			return nil, err
		}
		for _, t := range targets {
			s.Targets = append(s.Targets, model.Target(t))
		}
		out = append(out, &s)
	}

	if err := rows.Err(); err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	return out, nil
}

func (r *LeaderboardRepository) CreateSubmission(ctx context.Context, sub model.Submission) error {

	ctx, span := tracer.GetTracer().Start(ctx, "Postgres/CreateSubmission")
	defer span.End()

	span.AddEvent("submission.context",
		trace.WithAttributes(
			attribute.String("submission_id", sub.ID.String()),
			attribute.String("target", string(sub.Target)),
		),
	)

	_, err := r.db.Pool.Exec(ctx, `
        INSERT INTO submissions (id, leaderboard_name, user_id, code, file_name, score, target, submitted_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sub.ID, sub.LeaderboardName, sub.UserID, sub.Code, sub.FileName, sub.Score, sub.Target, sub.SubmittedAt,
	)
	if err != nil {
		err = translatePgError(err)
		util.RecordSpanError(span, err)
		return err
	}

	return nil
}

// GetSubmissions returns all submissions for one (leaderboard, target) pair,
// best runtime first. Failed runs carry a negative score sentinel and sort
// after every ranked row; ties break on earliest submission.
func (r *LeaderboardRepository) GetSubmissions(ctx context.Context, name string, target model.Target) ([]*model.Submission, error) {

	ctx, span := tracer.GetTracer().Start(ctx, "Postgres/GetSubmissions")
	defer span.End()

	rows, err := r.db.Pool.Query(ctx, `
        SELECT id, leaderboard_name, user_id, file_name, score, target, submitted_at
        FROM submissions
        WHERE leaderboard_name = $1 AND target = $2
        ORDER BY (score < 0), score ASC, submitted_at ASC`,
		name, target,
	)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}
	defer rows.Close()

	var out []*model.Submission
	for rows.Next() {
		var s model.Submission
		if err := rows.Scan(&s.ID, &s.LeaderboardName, &s.UserID, &s.FileName, &s.Score, &s.Target, &s.SubmittedAt); err != nil {
			util.RecordSpanError(span, err)
			return nil, err
		}
		out = append(out, &s)
	}

	if err := rows.Err(); err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	return out, nil
}

// DeleteLeaderboard removes a leaderboard and its submissions in one
// transaction. A name with no leaderboard is not an error; the returned count
// reports how many submissions went with it.
func (r *LeaderboardRepository) DeleteLeaderboard(ctx context.Context, name string) (int64, error) {

	ctx, span := tracer.GetTracer().Start(ctx, "Postgres/DeleteLeaderboard")
	defer span.End()

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		util.RecordSpanError(span, err)
		return 0, err
	}
	defer tx.Rollback(ctx)

	subs, err := tx.Exec(ctx, `DELETE FROM submissions WHERE leaderboard_name = $1`, name)
	if err != nil {
		util.RecordSpanError(span, err)
		return 0, err
	}

	_, err = tx.Exec(ctx, `DELETE FROM leaderboards WHERE name = $1`, name)
	if err != nil {
		util.RecordSpanError(span, err)
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		util.RecordSpanError(span, err)
		return 0, err
	}

	return subs.RowsAffected(), nil
}
