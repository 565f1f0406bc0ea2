package sync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/accessops/idsync/pkg/diffcache"
	"github.com/accessops/idsync/pkg/observability"
	"github.com/accessops/idsync/pkg/source"
	"github.com/accessops/idsync/pkg/tasks"
)

// Queue enqueues cardholder tasks. *tasks.QueueManager satisfies this.
type Queue interface {
	EnqueueUpsert(payload tasks.CardholderUpsert, opts ...asynq.Option) error
	EnqueueRemove(payload tasks.CardholderRemove, opts ...asynq.Option) error
}

// Leadership gates polling to the elected instance.
type Leadership interface {
	IsLeader() bool
}

// Service is the poll loop that drives the differential cache
type Service interface {
	Start(ctx context.Context) error
	Stop() error
}

type service struct {
	log    logrus.FieldLogger
	cfg    *Config
	cache  *diffcache.Cache
	queue  Queue
	leader Leadership
	mapper *Mapper

	query  string
	params source.Params

	cron       *cron.Cron
	fullResync atomic.Bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewService creates the reconciliation poll service. The query template is
// rendered once up front so template errors surface at startup, not mid-cycle.
func NewService(log logrus.FieldLogger, cfg *Config, cache *diffcache.Cache, queue Queue, leader Leadership) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	query, err := RenderQuery(cfg.Query.SQL, cfg.Query.Vars)
	if err != nil {
		return nil, err
	}

	s := &service{
		log:    log.WithField("service", "sync"),
		cfg:    cfg,
		cache:  cache,
		queue:  queue,
		leader: leader,
		mapper: NewMapper(&cfg.Mapping),
		query:  query,
		params: source.Params(cfg.Query.Params),
		done:   make(chan struct{}),
	}

	if cfg.FullResyncSchedule != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(cfg.FullResyncSchedule, s.requestFullResync); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *service) Start(ctx context.Context) error {
	s.log.WithFields(logrus.Fields{
		"interval":    s.cfg.Interval,
		"full_resync": s.cfg.FullResyncSchedule,
		"cache_path":  s.cache.Path(),
	}).Info("Starting sync service")

	if s.cron != nil {
		s.cron.Start()
	}

	s.wg.Add(1)
	go s.run(ctx)

	return nil
}

func (s *service) Stop() error {
	s.log.Info("Stopping sync service")
	close(s.done)

	if s.cron != nil {
		s.cron.Stop()
	}

	s.wg.Wait()

	s.log.Info("Sync service stopped")

	return nil
}

func (s *service) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.runCycle(ctx)

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *service) requestFullResync() {
	s.fullResync.Store(true)
	s.log.Info("Full resync requested by schedule")
}

func (s *service) runCycle(ctx context.Context) {
	if !s.leader.IsLeader() {
		s.log.Debug("Not leader, skipping poll cycle")
		return
	}

	if s.fullResync.Swap(false) {
		if err := s.cache.Clear(ctx); err != nil {
			s.log.WithError(err).Error("Full resync cache clear failed")
		} else {
			s.log.Info("Cache cleared for full resync, reprocessing entire source")
		}
	}

	start := time.Now()

	result, err := s.cache.ProcessSelect(ctx, s.query, s.params)
	if err != nil {
		status := "cache_error"

		var queryErr *source.QueryError
		if errors.As(err, &queryErr) {
			status = "source_error"
		}

		observability.RecordSyncCycle(status, time.Since(start))
		s.log.WithError(err).Error("Poll cycle failed")

		return
	}

	traceID := uuid.New().String()

	enqueued := s.enqueueAdded(traceID, result.Added)
	removed := s.enqueueRemoved(traceID, result.Removed)

	observability.RecordDelta(len(result.Added), len(result.Removed))
	observability.RecordSyncCycle("success", time.Since(start))

	if stats, err := s.cache.Stats(ctx); err == nil {
		observability.RecordCacheSize(stats.TotalActiveRows, stats.TotalDeletedRows)
	}

	s.log.WithFields(logrus.Fields{
		"trace_id":  traceID,
		"total":     result.TotalNew,
		"added":     len(result.Added),
		"removed":   len(result.Removed),
		"enqueued":  enqueued + removed,
		"cache_hit": result.CacheHit,
		"duration":  time.Since(start),
	}).Info("Poll cycle complete")
}

func (s *service) enqueueAdded(traceID string, added []source.Row) int {
	enqueued := 0

	for _, row := range added {
		ch, err := s.mapper.MapRow(row)
		if err != nil {
			// Unmappable rows are data issues, not sync failures.
			s.log.WithError(err).WithField("trace_id", traceID).Warn("Skipping unmappable source row")
			continue
		}

		payload := tasks.CardholderUpsert{
			TraceID:      traceID,
			Cardholder:   *ch,
			AccessLevels: s.cfg.AccessLevels,
		}

		if err := s.queue.EnqueueUpsert(payload); err != nil {
			if errors.Is(err, asynq.ErrTaskIDConflict) {
				s.log.WithField("id_number", ch.IDNumber).Debug("Upsert already queued")
				continue
			}

			s.log.WithError(err).WithField("id_number", ch.IDNumber).Error("Failed to enqueue upsert")
			continue
		}

		enqueued++
	}

	return enqueued
}

func (s *service) enqueueRemoved(traceID string, removed []source.Row) int {
	enqueued := 0

	for _, row := range removed {
		id, err := s.mapper.IDNumber(row)
		if err != nil {
			s.log.WithError(err).WithField("trace_id", traceID).Warn("Skipping removed row without id number")
			continue
		}

		payload := tasks.CardholderRemove{
			TraceID:  traceID,
			IDNumber: id,
			EndVisit: s.cfg.EndVisitOnRemoval,
		}

		if err := s.queue.EnqueueRemove(payload); err != nil {
			if errors.Is(err, asynq.ErrTaskIDConflict) {
				s.log.WithField("id_number", id).Debug("Removal already queued")
				continue
			}

			s.log.WithError(err).WithField("id_number", id).Error("Failed to enqueue removal")
			continue
		}

		enqueued++
	}

	return enqueued
}

var _ Service = (*service)(nil)
