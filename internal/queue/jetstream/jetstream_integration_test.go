//go:build integration
// +build integration

package jetstream

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"kernelboard/internal/component/jetstream"
	"kernelboard/internal/queue"
	tjetstream "kernelboard/tests/integration_test/infra/jetstream"
)

var (
	natsContainer testcontainers.Container
	JETSTREAM_URL string
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		fmt.Println("skipping integration tests")
		os.Exit(0)
	}
	ctx := context.Background()
	natsContainer, JETSTREAM_URL = tjetstream.SetupContainer(ctx)
	code := m.Run()
	_ = natsContainer.Terminate(ctx)
	os.Exit(code)
}

// ------------------------
// Singleton reset helper
// ------------------------
func resetQueueSingleton() {
	jqc = nil
	initError = nil
	once = sync.Once{}
}

// ------------------------
// Environment setup
// ------------------------
func setQueueEnv() {
	os.Setenv("JETSTREAM_URL", JETSTREAM_URL)
	os.Setenv("JETSTREAM_TTL", "2")
	os.Setenv("JETSTREAM_BUCKET_NAME", "TEST_CACHE")
	os.Setenv("JETSTREAM_BUCKET_SIZE", "1048576")
}

func newClient(t *testing.T) *JetStreamQueueClient {
	t.Helper()

	jetstream.ResetJetStreamClient()
	resetQueueSingleton()
	setQueueEnv()

	q, err := NewJetStreamQueueClient()
	require.NoError(t, err)

	client, ok := q.(*JetStreamQueueClient)
	require.True(t, ok)

	return client
}

// ------------------------
// 1. NewJetStreamQueueClient tests
// ------------------------
func TestNewJetStreamQueueClient(t *testing.T) {
	tests := []struct {
		name      string
		unsetEnv  string
		expectErr bool
	}{
		{"unset JETSTREAM_URL fails", "JETSTREAM_URL", true},
		{"create client successfully", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			jetstream.ResetJetStreamClient()
			resetQueueSingleton()
			setQueueEnv()

			if tt.unsetEnv != "" {
				os.Unsetenv(tt.unsetEnv)
			}
			client, err := NewJetStreamQueueClient()
			if tt.expectErr {
				require.Error(t, err)
				require.Nil(t, client)
			} else {
				require.NoError(t, err)
				require.NotNil(t, client)
				jsc, ok := client.(*JetStreamQueueClient)
				require.True(t, ok)
				_, err := jsc.context.StreamInfo("EVENTS")
				require.NoError(t, err)
				_, err = jsc.context.ConsumerInfo("EVENTS", consumerName)
				require.NoError(t, err)
			}
		})
	}
}

// ------------------------
// 2. Publish tests
// ------------------------
func TestJetStreamQueueClient_PublishEvent(t *testing.T) {
	client := newClient(t)

	tests := []struct {
		name    string
		event   queue.QueueEvent
		payload []byte
		wantErr bool
	}{
		{"submission event accepted", queue.SubmissionCreated, []byte(`{"id":"sub-1"}`), false},
		{"leaderboard event accepted", queue.LeaderboardCreated, []byte("matmul"), false},
		{"subject outside the stream fails", queue.QueueEvent("elsewhere.test"), []byte("x"), true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := client.PublishEvent(ctx, tt.event, tt.payload)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// ------------------------
// 3. Subscribe roundtrip
// ------------------------
func TestJetStreamQueueClient_SubscribeEvent(t *testing.T) {
	client := newClient(t)

	received := make(chan []byte, 8)
	err := client.SubscribeEvent(queue.SubmissionCreated, func(payload []byte) error {
		received <- payload
		return nil
	})
	require.NoError(t, err)

	want := []byte(`{"leaderboard":"matmul","target":"A100"}`)
	require.NoError(t, client.PublishEvent(context.Background(), queue.SubmissionCreated, want))

	// the durable consumer may still hold events from earlier tests
	deadline := time.After(10 * time.Second)
	for {
		select {
		case got := <-received:
			if bytes.Equal(got, want) {
				return
			}
		case <-deadline:
			t.Fatal("event was not delivered")
		}
	}
}

// ------------------------
// 4. Shutdown
// ------------------------
func TestJetStreamQueueClient_ShutDown(t *testing.T) {
	client := newClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client.ShutDown(ctx)
}
