package model

import (
	"time"

	"github.com/google/uuid"
)

// ScoreFailed marks a submission whose run produced no usable score.
// Ranked queries exclude it; it must never sort among real runtimes.
const ScoreFailed = float64(-1)

// Target is a named execution backend/hardware class a submission can run
// against, e.g. "T4", "A10G", "H100".
type Target string

// BackendKind selects which runner family executes a submission.
type BackendKind string

const (
	BackendCI         BackendKind = "ci"
	BackendServerless BackendKind = "serverless"
	BackendContainer  BackendKind = "container"
)

// Leaderboard is a competition record stored in the database.
type Leaderboard struct {
	Name          string    `db:"name" json:"name"`
	Deadline      time.Time `db:"deadline" json:"deadline"`
	ReferenceCode string    `db:"reference_code" json:"referenceCode,omitempty"`
	Targets       []Target  `db:"targets" json:"targets"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// LeaderboardSummary is the listing projection: no reference code blob.
type LeaderboardSummary struct {
	Name     string    `db:"name" json:"name"`
	Deadline time.Time `db:"deadline" json:"deadline"`
	Targets  []Target  `db:"targets" json:"targets"`
}

// Submission is one run result row. A single user action selecting N targets
// produces N independent Submission rows.
type Submission struct {
	ID              uuid.UUID `db:"id" json:"id"`
	LeaderboardName string    `db:"leaderboard_name" json:"leaderboardName"`
	UserID          string    `db:"user_id" json:"userId"`
	Code            string    `db:"code" json:"-"`
	FileName        string    `db:"file_name" json:"fileName"`
	Score           float64   `db:"score" json:"score"`
	Target          Target    `db:"target" json:"target"`
	SubmittedAt     time.Time `db:"submitted_at" json:"submittedAt"`
}

// SubmitRequest is the incoming submission payload before orchestration.
type SubmitRequest struct {
	LeaderboardName string      `json:"leaderboardName"`
	UserID          string      `json:"userId"`
	FileName        string      `json:"fileName"`
	Code            []byte      `json:"code"`
	Backend         BackendKind `json:"backend"`
	// Targets skips the interactive gate when non-empty (serverless path,
	// CLI non-interactive mode). Must be a subset of the leaderboard's set.
	Targets []Target `json:"targets,omitempty"`
}

// RunJob is what a runner backend receives for one target.
type RunJob struct {
	Target        Target
	Code          string
	ReferenceCode string
	FileName      string
}

// TargetReport is the per-target outcome returned to the user.
type TargetReport struct {
	Target       Target    `json:"target"`
	SubmissionID uuid.UUID `json:"submissionId,omitempty"`
	Score        float64   `json:"score"`
	Err          string    `json:"error,omitempty"`
}

// Ok reports whether this target produced a ranked score.
func (r TargetReport) Ok() bool {
	return r.Err == "" && r.Score != ScoreFailed
}
