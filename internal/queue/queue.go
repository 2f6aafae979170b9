package queue

import "context"

type Queue interface {
	PublishEvent(ctx context.Context, event QueueEvent, payload []byte) error
	SubscribeEvent(event QueueEvent, handler func(payload []byte) error) error
	ShutDown(context.Context)
}

type QueueEvent string

const (
	SubmissionCreated  QueueEvent = "events.submission.created"
	LeaderboardCreated QueueEvent = "events.leaderboard.created"
	LeaderboardDeleted QueueEvent = "events.leaderboard.deleted"
)
