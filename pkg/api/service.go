package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/accessops/idsync/pkg/diffcache"
	"github.com/accessops/idsync/pkg/source"
)

// QueueStats exposes queue depth for monitoring. *tasks.QueueManager
// satisfies this.
type QueueStats interface {
	GetQueueStats() (*asynq.QueueInfo, error)
}

// Service defines the API service interface
type Service interface {
	Start(ctx context.Context) error
	Stop() error
}

type service struct {
	app    *fiber.App
	server *http.Server
	config *Config
	log    logrus.FieldLogger

	cache *diffcache.Cache
	queue QueueStats

	// The poll query and params identify which cache entry the deleted
	// history endpoint reads.
	query  string
	params source.Params
}

// NewService creates the cache administration API service. queue may be nil
// when the daemon runs without a worker (offline administration).
func NewService(log logrus.FieldLogger, cfg *Config, cache *diffcache.Cache, queue QueueStats, query string, params source.Params) Service {
	return &service{
		config: cfg,
		log:    log.WithField("service", "api"),
		cache:  cache,
		queue:  queue,
		query:  query,
		params: params,
	}
}

// Start initializes and starts the API server
func (s *service) Start(_ context.Context) error {
	if !s.config.Enabled {
		s.log.Info("API service is disabled")
		return nil
	}

	s.app = s.newApp()

	fiberHandler := adaptor.FiberApp(s.app)
	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           fiberHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.WithField("addr", s.config.Addr).Info("Starting API server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Server failed to start")
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server
func (s *service) Stop() error {
	if s.server == nil {
		return nil
	}

	s.log.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

func (s *service) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		AppName:      "idsync API",
	})

	setupMiddleware(app)

	app.Get("/health", func(c fiber.Ctx) error {
		return c.SendString("OK")
	})

	apiV1 := app.Group("/api/v1")
	apiV1.Get("/cache/stats", s.handleStats)
	apiV1.Get("/cache/data", s.handleData)
	apiV1.Get("/cache/deleted", s.handleDeleted)
	apiV1.Post("/cache/cleanup", s.handleCleanup)
	apiV1.Delete("/cache", s.handleClear)
	apiV1.Get("/queue", s.handleQueue)

	return app
}

func (s *service) handleStats(c fiber.Ctx) error {
	stats, err := s.cache.Stats(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(stats)
}

func (s *service) handleData(c fiber.Ctx) error {
	rows, err := s.cache.GetAllData(c.Context(), s.query, s.params)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"count": len(rows),
		"rows":  rows,
	})
}

func (s *service) handleDeleted(c fiber.Ctx) error {
	hours, err := strconv.Atoi(c.Query("hours", "24"))
	if err != nil || hours < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "hours must be a non-negative integer")
	}

	records, err := s.cache.GetDeletedRecords(c.Context(), s.query, s.params, time.Duration(hours)*time.Hour)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	items := make([]fiber.Map, 0, len(records))
	for _, record := range records {
		items = append(items, fiber.Map{
			"row":        record.Row,
			"deleted_at": record.DeletedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(fiber.Map{
		"count":   len(items),
		"hours":   hours,
		"records": items,
	})
}

func (s *service) handleCleanup(c fiber.Ctx) error {
	purged, err := s.cache.CleanupExpired(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{"purged": purged})
}

func (s *service) handleClear(c fiber.Ctx) error {
	if err := s.cache.Clear(c.Context()); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{"cleared": true})
}

func (s *service) handleQueue(c fiber.Ctx) error {
	if s.queue == nil {
		return fiber.NewError(fiber.StatusNotFound, "queue not configured")
	}

	info, err := s.queue.GetQueueStats()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"queue":     info.Queue,
		"size":      info.Size,
		"pending":   info.Pending,
		"active":    info.Active,
		"retry":     info.Retry,
		"archived":  info.Archived,
		"completed": info.Completed,
	})
}

var _ Service = (*service)(nil)
