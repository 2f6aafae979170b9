package util

import (
	"crypto/sha256"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func HashCode(code []byte) string {
	sum := sha256.Sum256(code)
	return fmt.Sprintf("%x", sum[:])
}

func GetCodePath(codeHash string) string {
	return fmt.Sprintf("submissions/code/%s", codeHash)
}

func GetReferencePath(leaderboardName string) string {
	return fmt.Sprintf("leaderboards/reference/%s", leaderboardName)
}

func GetLeaderboardKey(name string) string {
	return fmt.Sprintf("leaderboard:%s", name)
}

func GetLeaderboardListKey() string {
	return "leaderboard:all"
}

func GetReportKey(sessionID string) string {
	return fmt.Sprintf("report:%s", sessionID)
}

func RecordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
