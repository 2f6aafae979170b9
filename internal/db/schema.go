package db

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS leaderboards (
	name           TEXT PRIMARY KEY,
	deadline       TIMESTAMPTZ NOT NULL,
	reference_code TEXT NOT NULL,
	targets        TEXT[] NOT NULL CHECK (array_length(targets, 1) > 0),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS submissions (
	id               UUID PRIMARY KEY,
	leaderboard_name TEXT NOT NULL REFERENCES leaderboards(name) ON DELETE CASCADE,
	user_id          TEXT NOT NULL,
	code             TEXT NOT NULL,
	file_name        TEXT NOT NULL,
	score            DOUBLE PRECISION NOT NULL,
	target           TEXT NOT NULL,
	submitted_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_ranking
	ON submissions (leaderboard_name, target, score, submitted_at);
`

// EnsureSchema applies the schema idempotently on startup.
func (d *DB) EnsureSchema(ctx context.Context) error {
	_, err := d.Pool.Exec(ctx, schema)
	return err
}
