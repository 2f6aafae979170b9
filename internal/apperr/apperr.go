package apperr

import "errors"

// Sentinel errors for the submission workflow. Callers classify with
// errors.Is; everything outside this set is treated as internal and must not
// leak into user-facing replies.
var (
	ErrNotFound           = errors.New("leaderboard not found")
	ErrDuplicateName      = errors.New("leaderboard name already exists")
	ErrLeaderboardMissing = errors.New("submission references a missing leaderboard")
	ErrInvalidEncoding    = errors.New("submitted file is not valid utf-8")
	ErrRunnerFailed       = errors.New("runner execution failed")
	ErrScoreNotFound      = errors.New("no score marker found in runner output")
	ErrNotSessionOwner    = errors.New("selection session belongs to another user")
	ErrEmptySelection     = errors.New("selection must contain at least one target")
	ErrUnknownTarget      = errors.New("target is not offered by this leaderboard")
	ErrGateExpired        = errors.New("selection timed out")
	ErrGateResolved       = errors.New("selection already resolved")
	ErrBadDeadline        = errors.New("deadline is not a recognized date format")
	ErrDeleteNotConfirmed = errors.New("deletion confirmation did not match")
)

// UserMessage translates a classified error into the reply shown to the
// submitting user. Unclassified errors get a generic notice; details belong
// in the log, not the reply.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "Leaderboard not found."
	case errors.Is(err, ErrDuplicateName):
		return "A leaderboard with that name already exists."
	case errors.Is(err, ErrLeaderboardMissing):
		return "That leaderboard no longer exists."
	case errors.Is(err, ErrInvalidEncoding):
		return "Could not decode your file. Is it UTF-8?"
	case errors.Is(err, ErrScoreNotFound):
		return "The run finished but no score was found in its output."
	case errors.Is(err, ErrRunnerFailed):
		return "The run failed on the execution backend."
	case errors.Is(err, ErrEmptySelection):
		return "Select at least one target."
	case errors.Is(err, ErrUnknownTarget):
		return "One of the chosen targets is not valid for this leaderboard."
	case errors.Is(err, ErrGateExpired):
		return "Target selection timed out; nothing was submitted."
	case errors.Is(err, ErrNotSessionOwner):
		return "This selection menu is not yours."
	case errors.Is(err, ErrBadDeadline):
		return "Invalid date format. Please use YYYY-MM-DD or YYYY-MM-DD HH:MM"
	case errors.Is(err, ErrDeleteNotConfirmed):
		return "Deletion cancelled: the leaderboard name didn't match."
	default:
		return "An unknown error occurred."
	}
}
