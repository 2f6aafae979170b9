package jetstream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"kernelboard/internal/component/jetstream"
	"kernelboard/internal/logger"
	"kernelboard/internal/queue"
)

const consumerName = "kernelboard"

type JetStreamQueueClient struct {
	connection *nats.Conn
	context    nats.JetStreamContext
}

var (
	jqc       *JetStreamQueueClient
	once      sync.Once
	initError error
)

func NewJetStreamQueueClient() (queue.Queue, error) {
	once.Do(func() {
		nc, err := jetstream.NewJetStreamClient()
		if err != nil {
			initError = err
			return
		}

		js, err := nc.JetStream()
		if err != nil {
			initError = err
			return
		}

		_, err = js.AddStream(&nats.StreamConfig{
			Name:     "EVENTS",
			Subjects: []string{"events.>"},
		})
		if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			initError = err
			return
		}

		_, err = js.AddConsumer("EVENTS", &nats.ConsumerConfig{
			Durable:    consumerName,
			AckPolicy:  nats.AckExplicitPolicy,
			AckWait:    20 * time.Second,
			MaxDeliver: 5,
			BackOff: []time.Duration{
				5 * time.Second,
				15 * time.Second,
				30 * time.Second,
			},
			DeliverPolicy: nats.DeliverNewPolicy,
		})
		if err != nil && !strings.Contains(err.Error(), "consumer name already in use") {
			initError = err
			return
		}

		jqc = &JetStreamQueueClient{
			connection: nc,
			context:    js,
		}
	})
	return jqc, initError
}

func (c *JetStreamQueueClient) PublishEvent(ctx context.Context, event queue.QueueEvent, payload []byte) error {
	_, err := c.context.Publish(string(event), payload, nats.Context(ctx))
	return err
}

func (c *JetStreamQueueClient) SubscribeEvent(event queue.QueueEvent, handler func(payload []byte) error) error {
	sub, err := c.context.PullSubscribe(string(event), consumerName, nats.ManualAck(), nats.AckExplicit())
	if err != nil {
		return err
	}

	go func() {
		for {
			msgs, err := sub.Fetch(1, nats.MaxWait(30*time.Second))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) {
					continue
				}
				time.Sleep(time.Second)
				continue
			}

			for _, msg := range msgs {
				go func(msg *nats.Msg) {
					if err := handler(msg.Data); err != nil {
						logger.Log.Err(err).Str("subject", msg.Subject).Msg("event handler failed")
						msg.Nak()
						return
					}
					msg.Ack()
				}(msg)
			}
		}
	}()
	return nil
}

func (c *JetStreamQueueClient) ShutDown(ctx context.Context) {
	c.connection.Drain() // flush + stop new messages
	c.connection.Close()
}
