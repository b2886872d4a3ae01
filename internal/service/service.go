// Package service wires the model client, tool set, and agent into the
// application's single entry point: one patient question in, one answer out.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"carequery/internal/agent"
	"carequery/internal/config"
	"carequery/internal/db"
	"carequery/internal/llm"
	"carequery/internal/metrics"
	"carequery/internal/models"
	"carequery/internal/tools"
)

// User-facing fallback answers. Internal error text never reaches the
// conversational surface; callers log the real error and show one of these.
const (
	FallbackAnswer   = "I couldn't look that up right now."
	FallbackNoQuery  = "I couldn't construct a query for that question."
	FallbackNoAnswer = "I couldn't produce an answer to that question."
)

// ModelFactory builds a model client for one cycle. Credentials are read
// when the factory runs, so key rotation between cycles takes effect
// without a restart.
type ModelFactory func(ctx context.Context) (agent.Model, error)

// Service owns the shared resources cycles draw on: the database tool set,
// the metrics collector, and the model factory.
type Service struct {
	cfg      config.Config
	db       *db.Client
	registry *tools.Registry
	metrics  *metrics.Collector
	factory  ModelFactory
	logger   *slog.Logger
}

// New creates a service over an open database client. A nil factory uses
// the configured provider.
func New(cfg config.Config, dbClient *db.Client, factory ModelFactory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	collector := metrics.NewCollector()

	registry := tools.NewRegistry(&tools.Dependencies{
		DB:      dbClient,
		Logger:  logger,
		Metrics: collector,
	})

	s := &Service{
		cfg:      cfg,
		db:       dbClient,
		registry: registry,
		metrics:  collector,
		factory:  factory,
		logger:   logger,
	}
	if s.factory == nil {
		s.factory = func(ctx context.Context) (agent.Model, error) {
			client, err := llm.NewFromConfig(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			return client.WithRecorder(collector), nil
		}
	}
	return s
}

// Metrics returns the service's collector.
func (s *Service) Metrics() *metrics.Collector {
	return s.metrics
}

// Dialect returns the connected database's SQL dialect.
func (s *Service) Dialect() string {
	return s.db.Dialect()
}

// Registry exposes the tool set for direct inspection surfaces (the tables
// and schema commands).
func (s *Service) Registry() *tools.Registry {
	return s.registry
}

// RunCycle drives one question for one patient to a final answer. Each
// call builds its own conversation and model client; nothing carries over
// between questions.
func (s *Service) RunCycle(ctx context.Context, patientID int, question string) (string, error) {
	return s.RunCycleObserved(ctx, patientID, question, nil)
}

// RunCycleObserved is RunCycle with a transition observer for surfaces
// that stream agent progress.
func (s *Service) RunCycleObserved(ctx context.Context, patientID int, question string, observe func(from, to agent.State)) (string, error) {
	if s.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CycleTimeout)
		defer cancel()
	}

	model, err := s.factory(ctx)
	if err != nil {
		return "", err
	}

	conv := models.NewConversation(models.Context{
		PatientID: patientID,
		Dialect:   s.db.Dialect(),
		RowLimit:  s.cfg.RowLimit,
	})

	a := agent.New(model, s.registry, s.logger, agent.Options{
		MaxRounds:    s.cfg.MaxRounds,
		OnTransition: observe,
	})

	start := time.Now()
	answer, err := a.Run(ctx, conv, question)
	s.metrics.RecordCycle(time.Since(start), err != nil)

	if err != nil {
		s.logger.Error("cycle failed",
			"patient_id", patientID,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err)
		return "", err
	}

	s.logger.Info("cycle completed",
		"patient_id", patientID,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"messages", conv.Len())
	return answer, nil
}

// Friendly maps a cycle error to the single natural-language message shown
// to the user.
func Friendly(err error) string {
	switch {
	case errors.Is(err, llm.ErrMalformedToolCall):
		return FallbackNoQuery
	case errors.Is(err, agent.ErrNoAnswer):
		return FallbackNoAnswer
	default:
		return FallbackAnswer
	}
}
