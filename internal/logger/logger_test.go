package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFromContextUsesAttachedLogger(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Err(nil).Str("leaderboard", "matmul").Msg("archived")

	if !strings.Contains(buf.String(), "archived") {
		t.Fatalf("expected log output to contain message, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "matmul") {
		t.Fatalf("expected log output to contain field, got %q", buf.String())
	}
}

func TestFromContextFallsBackToPackageLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := Log
	Log = zerolog.New(&buf)
	defer func() { Log = prev }()

	FromContext(context.Background()).Info().Msg("fallback")

	if !strings.Contains(buf.String(), "fallback") {
		t.Fatalf("expected fallback to package logger, got %q", buf.String())
	}
}
