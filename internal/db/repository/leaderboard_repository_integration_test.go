//go:build integration
// +build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"kernelboard/internal/apperr"
	"kernelboard/internal/db"
	"kernelboard/model"
	tdb "kernelboard/tests/integration_test/infra/db"
)

var (
	container testcontainers.Container
	testDB    *db.DB
	pgPool    *pgxpool.Pool
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, testDB, _ = tdb.SetupContainer(ctx)
	pgPool = testDB.Pool
	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func truncateTables(t *testing.T) {
	t.Helper()
	_, err := pgPool.Exec(context.Background(), `TRUNCATE submissions, leaderboards`)
	require.NoError(t, err)
}

func newLeaderboard(name string, targets ...model.Target) model.Leaderboard {
	return model.Leaderboard{
		Name:          name,
		Deadline:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ReferenceCode: "ref = kernel()",
		Targets:       targets,
	}
}

func newSubmission(lb string, target model.Target, score float64, at time.Time) model.Submission {
	return model.Submission{
		ID:              uuid.Must(uuid.NewV7()),
		LeaderboardName: lb,
		UserID:          "user-1",
		Code:            "def kernel(): pass",
		FileName:        "kernel.py",
		Score:           score,
		Target:          target,
		SubmittedAt:     at,
	}
}

func TestLeaderboardRepository_CreateAndGet(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewLeaderboardRepository(testDB)

	lb := newLeaderboard("matmul", "T4", "A10G")
	require.NoError(t, repo.CreateLeaderboard(ctx, lb))

	got, err := repo.GetLeaderboard(ctx, "matmul")
	require.NoError(t, err)
	require.Equal(t, lb.Name, got.Name)
	require.True(t, lb.Deadline.Equal(got.Deadline))
	require.Equal(t, lb.ReferenceCode, got.ReferenceCode)
	require.ElementsMatch(t, lb.Targets, got.Targets)

	targets, err := repo.GetLeaderboardTargets(ctx, "matmul")
	require.NoError(t, err)
	require.ElementsMatch(t, lb.Targets, targets)
}

func TestLeaderboardRepository_DuplicateName(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewLeaderboardRepository(testDB)

	first := newLeaderboard("conv2d", "T4")
	require.NoError(t, repo.CreateLeaderboard(ctx, first))

	second := newLeaderboard("conv2d", "H100")
	second.ReferenceCode = "other"
	err := repo.CreateLeaderboard(ctx, second)
	require.ErrorIs(t, err, apperr.ErrDuplicateName)

	// first record must remain unmodified
	got, err := repo.GetLeaderboard(ctx, "conv2d")
	require.NoError(t, err)
	require.Equal(t, first.ReferenceCode, got.ReferenceCode)
	require.ElementsMatch(t, first.Targets, got.Targets)
}

func TestLeaderboardRepository_GetMissing(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewLeaderboardRepository(testDB)

	_, err := repo.GetLeaderboard(ctx, "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = repo.GetLeaderboardTargets(ctx, "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLeaderboardRepository_SubmissionForeignKey(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewLeaderboardRepository(testDB)

	sub := newSubmission("ghost", "T4", 1.5, time.Now().UTC())
	err := repo.CreateSubmission(ctx, sub)
	require.ErrorIs(t, err, apperr.ErrLeaderboardMissing)
}

func TestLeaderboardRepository_SubmissionOrdering(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewLeaderboardRepository(testDB)

	require.NoError(t, repo.CreateLeaderboard(ctx, newLeaderboard("softmax", "T4")))

	base := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	slow := newSubmission("softmax", "T4", 9.5, base)
	fast := newSubmission("softmax", "T4", 0.75, base.Add(time.Minute))
	tieA := newSubmission("softmax", "T4", 2.0, base.Add(2*time.Minute))
	tieB := newSubmission("softmax", "T4", 2.0, base.Add(3*time.Minute))
	failed := newSubmission("softmax", "T4", model.ScoreFailed, base)

	for _, s := range []model.Submission{slow, fast, tieB, tieA, failed} {
		require.NoError(t, repo.CreateSubmission(ctx, s))
	}

	got, err := repo.GetSubmissions(ctx, "softmax", "T4")
	require.NoError(t, err)
	require.Len(t, got, 5)

	// best first, tie broken by earliest, failed row last
	require.Equal(t, fast.ID, got[0].ID)
	require.Equal(t, tieA.ID, got[1].ID)
	require.Equal(t, tieB.ID, got[2].ID)
	require.Equal(t, slow.ID, got[3].ID)
	require.Equal(t, failed.ID, got[4].ID)
}

func TestLeaderboardRepository_DeleteCascades(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewLeaderboardRepository(testDB)

	require.NoError(t, repo.CreateLeaderboard(ctx, newLeaderboard("reduce", "T4", "H100")))
	for i := 0; i < 3; i++ {
		sub := newSubmission("reduce", "T4", float64(i)+1, time.Now().UTC())
		require.NoError(t, repo.CreateSubmission(ctx, sub))
	}

	deleted, err := repo.DeleteLeaderboard(ctx, "reduce")
	require.NoError(t, err)
	require.EqualValues(t, 3, deleted)

	subs, err := repo.GetSubmissions(ctx, "reduce", "T4")
	require.NoError(t, err)
	require.Empty(t, subs)

	_, err = repo.GetLeaderboard(ctx, "reduce")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	// absent name is not an error
	deleted, err = repo.DeleteLeaderboard(ctx, "reduce")
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestLeaderboardRepository_List(t *testing.T) {
	truncateTables(t)
	ctx := context.Background()
	repo := NewLeaderboardRepository(testDB)

	require.NoError(t, repo.CreateLeaderboard(ctx, newLeaderboard("b-board", "T4")))
	require.NoError(t, repo.CreateLeaderboard(ctx, newLeaderboard("a-board", "H100")))

	got, err := repo.ListLeaderboards(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a-board", got[0].Name)
	require.Equal(t, "b-board", got[1].Name)
	require.ElementsMatch(t, []model.Target{"H100"}, got[0].Targets)
}
