package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/accessops/idsync/pkg/observability"
	r "github.com/accessops/idsync/pkg/redis"
	"github.com/accessops/idsync/pkg/tasks"
)

// Service defines the public interface for the worker service
type Service interface {
	Start(ctx context.Context) error
	Stop() error
}

type service struct {
	config     *Config
	log        logrus.FieldLogger
	reconciler *Reconciler
	redisOpt   *redis.Options

	server *asynq.Server
	wg     sync.WaitGroup
}

// NewService creates a new worker service
func NewService(log logrus.FieldLogger, cfg *Config, reconciler *Reconciler, redisOpt *redis.Options) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &service{
		log:        log.WithField("service", "worker"),
		config:     cfg,
		reconciler: reconciler,
		redisOpt:   redisOpt,
	}, nil
}

// Start initializes and starts the worker service
func (s *service) Start(_ context.Context) error {
	s.log.WithField("concurrency", s.config.Concurrency).Info("Starting worker service")

	srv := asynq.NewServer(r.NewAsynqRedisOptions(s.redisOpt), asynq.Config{
		Concurrency: s.config.Concurrency,
		Queues: map[string]int{
			tasks.QueueSync: 10,
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeCardholderUpsert, s.handleUpsert)
	mux.HandleFunc(tasks.TypeCardholderRemove, s.handleRemove)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if runErr := srv.Run(mux); runErr != nil {
			s.log.WithError(runErr).Error("Worker server stopped with error")
		}
	}()

	s.server = srv

	s.log.Info("Worker service started successfully")

	return nil
}

// Stop gracefully shuts down the worker service
func (s *service) Stop() error {
	if s.server != nil {
		s.server.Shutdown()
	}

	s.wg.Wait()

	s.log.Info("Worker service stopped successfully")

	return nil
}

func (s *service) handleUpsert(ctx context.Context, task *asynq.Task) error {
	var payload tasks.CardholderUpsert
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		observability.RecordTask(tasks.TypeCardholderUpsert, "failed")
		// Malformed payloads will never succeed, do not retry.
		return fmt.Errorf("failed to decode upsert payload: %w: %w", asynq.SkipRetry, err)
	}

	log := s.log.WithFields(logrus.Fields{
		"trace_id":  payload.TraceID,
		"id_number": payload.Cardholder.IDNumber,
	})

	if err := s.reconciler.Upsert(ctx, &payload.Cardholder, payload.AccessLevels); err != nil {
		observability.RecordTask(tasks.TypeCardholderUpsert, "failed")
		log.WithError(err).Warn("Cardholder upsert failed")

		return err
	}

	observability.RecordTask(tasks.TypeCardholderUpsert, "success")
	log.Debug("Cardholder upsert complete")

	return nil
}

func (s *service) handleRemove(ctx context.Context, task *asynq.Task) error {
	var payload tasks.CardholderRemove
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		observability.RecordTask(tasks.TypeCardholderRemove, "failed")
		return fmt.Errorf("failed to decode remove payload: %w: %w", asynq.SkipRetry, err)
	}

	log := s.log.WithFields(logrus.Fields{
		"trace_id":  payload.TraceID,
		"id_number": payload.IDNumber,
	})

	if err := s.reconciler.Remove(ctx, payload.IDNumber, payload.EndVisit); err != nil {
		observability.RecordTask(tasks.TypeCardholderRemove, "failed")
		log.WithError(err).Warn("Cardholder removal failed")

		return err
	}

	observability.RecordTask(tasks.TypeCardholderRemove, "success")
	log.Debug("Cardholder removal complete")

	return nil
}

var _ Service = (*service)(nil)
