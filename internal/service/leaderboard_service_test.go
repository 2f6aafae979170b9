package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kernelboard/internal/apperr"
	"kernelboard/model"
)

func TestParseDeadline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    time.Time
		wantErr bool
	}{
		{
			name: "date and time",
			raw:  "2025-06-01 18:30",
			want: time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC),
		},
		{
			name: "date only",
			raw:  "2025-06-01",
			want: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "slashes rejected",
			raw:     "2025/06/01",
			wantErr: true,
		},
		{
			name:    "garbage rejected",
			raw:     "next tuesday",
			wantErr: true,
		},
		{
			name:    "empty rejected",
			raw:     "",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDeadline(tc.raw)
			if tc.wantErr {
				require.ErrorIs(t, err, apperr.ErrBadDeadline)
				return
			}
			require.NoError(t, err)
			require.True(t, tc.want.Equal(got))
		})
	}
}

func newLeaderboardService(store *fakeStore) (*LeaderboardService, *fakeQueue) {
	q := &fakeQueue{}
	return NewLeaderboardService(store, &fakeCache{}, &fakeStorage{}, q), q
}

func TestLeaderboard_Create(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc, q := newLeaderboardService(store)

	lb, err := svc.Create(context.Background(), "matmul", "2025-06-01", []byte("ref"), []model.Target{"A", "B"})
	require.NoError(t, err)
	require.Equal(t, "matmul", lb.Name)

	got, err := store.GetLeaderboard(context.Background(), "matmul")
	require.NoError(t, err)
	require.Equal(t, []model.Target{"A", "B"}, got.Targets)

	q.mu.Lock()
	defer q.mu.Unlock()
	require.Len(t, q.events, 1)
}

func TestLeaderboard_CreateDuplicate(t *testing.T) {
	t.Parallel()

	store := newFakeStore(matmulBoard())
	svc, _ := newLeaderboardService(store)

	_, err := svc.Create(context.Background(), "matmul", "2025-06-01", []byte("ref"), []model.Target{"A"})
	require.ErrorIs(t, err, apperr.ErrDuplicateName)
}

func TestLeaderboard_CreateValidation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc, _ := newLeaderboardService(store)

	_, err := svc.Create(context.Background(), "bad-date", "soon", []byte("ref"), []model.Target{"A"})
	require.ErrorIs(t, err, apperr.ErrBadDeadline)

	_, err = svc.Create(context.Background(), "no-targets", "2025-06-01", []byte("ref"), nil)
	require.ErrorIs(t, err, apperr.ErrEmptySelection)

	_, err = svc.Create(context.Background(), "bad-ref", "2025-06-01", []byte{0xff, 0xfe}, []model.Target{"A"})
	require.ErrorIs(t, err, apperr.ErrInvalidEncoding)

	require.Empty(t, store.leaderboards)
}

func TestLeaderboard_DeleteConfirmation(t *testing.T) {
	t.Parallel()

	store := newFakeStore(matmulBoard())
	svc, _ := newLeaderboardService(store)

	_, err := svc.Delete(context.Background(), "matmul", "matmu")
	require.ErrorIs(t, err, apperr.ErrDeleteNotConfirmed)
	_, err = store.GetLeaderboard(context.Background(), "matmul")
	require.NoError(t, err)

	_, err = svc.Delete(context.Background(), "matmul", "matmul")
	require.NoError(t, err)
	_, err = store.GetLeaderboard(context.Background(), "matmul")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLeaderboard_GetUsesCache(t *testing.T) {
	t.Parallel()

	store := newFakeStore(matmulBoard())
	svc, _ := newLeaderboardService(store)

	first, err := svc.Get(context.Background(), "matmul")
	require.NoError(t, err)

	// drop the row behind the cache; a warm read still answers
	store.mu.Lock()
	delete(store.leaderboards, "matmul")
	store.mu.Unlock()

	second, err := svc.Get(context.Background(), "matmul")
	require.NoError(t, err)
	require.Equal(t, first.Name, second.Name)
}

func TestLeaderboard_ReferenceCode(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	archive := &fakeStorage{}
	svc := NewLeaderboardService(store, &fakeCache{}, archive, &fakeQueue{})

	_, err := svc.Create(context.Background(), "matmul", "2025-06-01", []byte("def ref(): pass"), []model.Target{"A"})
	require.NoError(t, err)

	got, err := svc.ReferenceCode(context.Background(), "matmul")
	require.NoError(t, err)
	require.Equal(t, []byte("def ref(): pass"), got)

	// an archive miss falls back to the database row
	archive.mu.Lock()
	archive.objects = nil
	archive.mu.Unlock()

	got, err = svc.ReferenceCode(context.Background(), "matmul")
	require.NoError(t, err)
	require.Equal(t, []byte("def ref(): pass"), got)

	_, err = svc.ReferenceCode(context.Background(), "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLeaderboard_SubmissionsUnknownBoard(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc, _ := newLeaderboardService(store)

	_, err := svc.Submissions(context.Background(), "nope", "A")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
