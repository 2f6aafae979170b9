package score

import (
	"testing"

	"github.com/stretchr/testify/require"

	"kernelboard/internal/apperr"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    float64
		wantErr bool
	}{
		{
			name: "marker surrounded by log noise",
			raw:  "==> warming up\ncompiling kernel...\nscore: 12.345\nrun complete",
			want: 12.345,
		},
		{
			name: "last marker wins",
			raw:  "score: 3.0\nretrying with larger block size\nscore: 1.5",
			want: 1.5,
		},
		{
			name: "trailing text after payload",
			raw:  "score: 0.125 seconds (best of 10)",
			want: 0.125,
		},
		{
			name: "case insensitive marker",
			raw:  "SCORE: 2.25",
			want: 2.25,
		},
		{
			name: "malformed last marker falls back",
			raw:  "score: 4.5\nscore: n/a",
			want: 4.5,
		},
		{
			name:    "no marker",
			raw:     "everything exploded\nTraceback (most recent call last):",
			wantErr: true,
		},
		{
			name:    "empty output",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "marker with no parseable payload anywhere",
			raw:     "score: pending\nscore:",
			wantErr: true,
		},
		{
			name:    "negative runtime rejected",
			raw:     "score: -3.5",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Extract(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, apperr.ErrScoreNotFound)
				require.Zero(t, got)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
