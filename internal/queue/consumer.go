package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/attendance/internal/models"
)

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

// errPoison marks a message that can never be processed; it is terminated
// instead of redelivered.
var errPoison = errors.New("undecodable message")

// JSON wraps a typed handler. Payloads that fail to decode are terminated.
func JSON[T any](fn func(ctx context.Context, v T) error) MessageHandler {
	return func(ctx context.Context, msg jetstream.Msg) error {
		var v T
		if err := json.Unmarshal(msg.Data(), &v); err != nil {
			return fmt.Errorf("%w on %s: %v", errPoison, msg.Subject(), err)
		}
		return fn(ctx, v)
	}
}

// dispatch runs handler and settles the message.
func dispatch(ctx context.Context, msg jetstream.Msg, handler MessageHandler) {
	err := handler(ctx, msg)
	switch {
	case err == nil:
		_ = msg.Ack()
	case errors.Is(err, errPoison):
		slog.Error("drop message", "subject", msg.Subject(), "error", err)
		_ = msg.Term()
	default:
		slog.Error("process message error", "subject", msg.Subject(), "error", err)
		_ = msg.Nak()
	}
}

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
	wg sync.WaitGroup
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

type consumeOpts struct {
	stream     string
	subject    string
	name       string
	durable    bool
	ackWait    time.Duration
	deliverNew bool
	workers    int
}

func (c *Consumer) consume(ctx context.Context, o consumeOpts, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, o.stream)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", o.stream, err)
	}

	cfg := jetstream.ConsumerConfig{
		Name:          o.name,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       o.ackWait,
		MaxDeliver:    3,
		FilterSubject: o.subject,
	}
	if o.durable {
		cfg.Durable = o.name
	} else {
		cfg.InactiveThreshold = 5 * time.Minute
	}
	if o.deliverNew {
		cfg.DeliverPolicy = jetstream.DeliverNewPolicy
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", o.name, err)
	}

	workers := max(o.workers, 1)
	msgCh := make(chan jetstream.Msg, workers*2)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(msgCh)
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(workers, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch error", "consumer", o.name, "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for msg := range msgCh {
				dispatch(ctx, msg, handler)
			}
		}()
	}

	slog.Info("consumer started", "consumer", o.name, "subject", o.subject, "workers", workers)
	return nil
}

// ConsumeTrainingJobs hands rebuild requests to a single worker so that a
// burst of enrollments is processed one at a time.
func (c *Consumer) ConsumeTrainingJobs(ctx context.Context, consumerName string, fn func(context.Context, models.TrainingJob) error) error {
	return c.consume(ctx, consumeOpts{
		stream:  TrainingStreamName,
		subject: TrainingSubject,
		name:    consumerName,
		durable: true,
		ackWait: 10 * time.Minute,
		workers: 1,
	}, JSON(fn))
}

// ConsumeModelUpdates delivers every announcement to this instance. name must
// be unique per process.
func (c *Consumer) ConsumeModelUpdates(ctx context.Context, name string, fn func(context.Context, models.ModelUpdated) error) error {
	return c.consume(ctx, consumeOpts{
		stream:     ModelsStreamName,
		subject:    ModelUpdatedSubject,
		name:       name,
		ackWait:    time.Minute,
		deliverNew: true,
	}, JSON(fn))
}

// ConsumeAttendance feeds the websocket hub. name must be unique per process.
func (c *Consumer) ConsumeAttendance(ctx context.Context, name string, fn func(context.Context, models.AttendanceMarked) error) error {
	return c.consume(ctx, consumeOpts{
		stream:     AttendanceStreamName,
		subject:    AttendanceSubject,
		name:       name,
		ackWait:    10 * time.Second,
		deliverNew: true,
	}, JSON(fn))
}

// Close drops the connection and waits for in-flight handlers. Cancel the
// consume context first.
func (c *Consumer) Close() {
	c.nc.Close()
	c.wg.Wait()
}
