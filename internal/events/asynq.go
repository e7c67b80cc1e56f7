package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/constructhq/construct/internal/config"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// taskPrefix namespaces event tasks in Redis so they never collide with
// other task types sharing the same Asynq instance.
const taskPrefix = "event:"

// schedulePrefix namespaces cron-driven tasks the same way.
const schedulePrefix = "schedule:"

// Service is the Redis-backed event bus.
//
// Asynq is a Redis-backed job queue:
//   - Publish enqueues an event task (producer) using asynq.Client.
//   - A server runs workers that deliver those events to subscribers
//     (consumer) using asynq.Server.
type Service struct {
	// Client is used to enqueue event tasks into Redis.
	Client *asynq.Client

	// server runs worker processes that pull tasks from Redis and invoke
	// subscriber functions.
	server *asynq.Server

	// mux routes event topics to subscriber functions.
	mux *asynq.ServeMux

	// scheduler enqueues cron-driven tasks for schedule constructs.
	scheduler *asynq.Scheduler

	logger *zerolog.Logger
}

// Subscriber consumes one delivered event. Returning an error makes Asynq
// mark the delivery failed and schedule a retry.
type Subscriber func(ctx context.Context, e Event) error

// NewService creates an event Service backed by Redis from cfg.
//
// It builds both an asynq.Client (to publish) and an asynq.Server (to
// deliver), with queue weights so "critical" topics get more worker share.
func NewService(logger *zerolog.Logger, cfg *config.Config) *Service {
	redisAddr := cfg.Redis.Address

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr: redisAddr,
	})

	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: redisAddr},
		&asynq.SchedulerOpts{},
	)

	return &Service{
		Client:    client,
		server:    server,
		mux:       asynq.NewServeMux(),
		scheduler: scheduler,
		logger:    logger,
	}
}

// Publish enqueues an event for delivery. Best-effort: the caller is
// expected to log and swallow a returned error, never to fail the request
// that produced the event.
func (s *Service) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling event %q: %w", e.Topic, err)
	}

	task := asynq.NewTask(
		taskPrefix+e.Topic,
		payload,
		asynq.MaxRetry(3),
		asynq.Queue("default"),
		asynq.Timeout(30*time.Second),
	)

	if _, err := s.Client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueueing event %q: %w", e.Topic, err)
	}

	s.logger.Debug().Str("topic", e.Topic).Msg("event published")
	return nil
}

// Subscribe registers a subscriber for a topic. Must be called before
// Start.
func (s *Service) Subscribe(topic string, fn Subscriber) {
	s.mux.HandleFunc(taskPrefix+topic, func(ctx context.Context, t *asynq.Task) error {
		var e Event
		if err := json.Unmarshal(t.Payload(), &e); err != nil {
			return fmt.Errorf("unmarshalling event payload: %w", err)
		}
		if e.Topic == "" {
			e.Topic = strings.TrimPrefix(t.Type(), taskPrefix)
		}
		return fn(ctx, e)
	})
}

// Schedule registers fn to run on the given cron spec. The scheduler
// enqueues a task per tick and the worker pool executes fn, so schedules
// survive slow runs without overlapping worker starvation. Must be called
// before Start.
func (s *Service) Schedule(name, spec string, fn func(ctx context.Context) error) error {
	pattern := schedulePrefix + name

	s.mux.HandleFunc(pattern, func(ctx context.Context, t *asynq.Task) error {
		return fn(ctx)
	})

	task := asynq.NewTask(pattern, nil, asynq.Queue("low"), asynq.MaxRetry(1))
	if _, err := s.scheduler.Register(spec, task); err != nil {
		return fmt.Errorf("registering schedule %q: %w", name, err)
	}

	s.logger.Info().Str("schedule", name).Str("spec", spec).Msg("schedule registered")
	return nil
}

// Start begins delivering events to subscribers in background workers and
// starts the cron scheduler.
func (s *Service) Start() error {
	s.logger.Info().Msg("starting event delivery workers")
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	return s.scheduler.Start()
}

// Stop gracefully stops the workers and closes client resources.
func (s *Service) Stop() {
	s.logger.Info().Msg("stopping event delivery workers")
	s.scheduler.Shutdown()
	s.server.Shutdown()
	s.Client.Close()
}
