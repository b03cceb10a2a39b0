// Copyright 2025 gridforge LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package agent runs the dispatcher: a poller that discovers candidate
// transformations and a fixed-size worker pool that drains them through the
// processor, with an in-flight set guaranteeing at most one active pipeline
// per transformation.
package agent

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/gridforge/transformd/pkg/registry"
)

var (
	transformationsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transformd_transformations_processed_total",
		Help: "Transformation processing cycles by result.",
	}, []string{"result"})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transformd_queue_depth",
		Help: "Transformations waiting in the dispatch queue.",
	})
	inFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transformd_in_flight",
		Help: "Transformations currently queued or being processed.",
	})
)

// Processor is the per-transformation pipeline the workers invoke.
type Processor interface {
	Process(ctx context.Context, trans registry.Transformation) error
}

// Options configures an Agent.
type Options struct {
	// Registry is the transformation registry client.
	Registry registry.Client

	// Processor runs one transformation end to end.
	Processor Processor

	// Statuses selects which transformations the poller fetches.
	Statuses []registry.Status

	// Types optionally narrows polling by transformation type; entries are
	// doublestar patterns matched against the type string.
	Types []string

	// Transformation, when set, processes that single named transformation
	// instead of polling all matches.
	Transformation string

	// Workers is the worker pool size.
	Workers int

	// QueueSize bounds the dispatch queue. The poller never blocks: a full
	// queue defers the transformation to the next poll.
	QueueSize int

	// PollInterval is the fixed polling period, independent of worker
	// progress.
	PollInterval time.Duration
}

// Agent owns the poller, the queue, the worker pool and the in-flight set.
type Agent struct {
	registry  registry.Client
	processor Processor
	statuses  []registry.Status
	types     []string
	single    string
	workers   int
	interval  time.Duration

	queue    chan registry.Transformation
	inflight *InFlight
}

// New creates an Agent.
func New(opts Options) (*Agent, error) {
	if opts.Registry == nil {
		return nil, errors.New("registry client is required")
	}
	if opts.Processor == nil {
		return nil, errors.New("processor is required")
	}
	if opts.Workers <= 0 {
		return nil, errors.New("workers must be positive")
	}
	if opts.QueueSize <= 0 {
		return nil, errors.New("queue size must be positive")
	}
	if opts.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	return &Agent{
		registry:  opts.Registry,
		processor: opts.Processor,
		statuses:  opts.Statuses,
		types:     opts.Types,
		single:    opts.Transformation,
		workers:   opts.Workers,
		interval:  opts.PollInterval,
		queue:     make(chan registry.Transformation, opts.QueueSize),
		inflight:  NewInFlight(),
	}, nil
}

// InFlight exposes the in-flight set, for inspection.
func (a *Agent) InFlight() *InFlight {
	return a.inflight
}

// Run polls and processes until ctx is canceled, then stops enqueueing,
// drains the queue and waits for the workers to finish their current
// pipelines. Processing is never interrupted mid-pipeline: workers run on a
// context detached from the shutdown cancellation.
func (a *Agent) Run(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)
	logger.Info().
		Int("workers", a.workers).
		Dur("poll_interval", a.interval).
		Msg("agent starting")

	workCtx := context.WithoutCancel(ctx)

	var workers errgroup.Group
	for i := 0; i < a.workers; i++ {
		id := i
		workers.Go(func() error {
			a.worker(workCtx, id)
			return nil
		})
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Int("in_flight", a.inflight.Len()).Msg("agent draining")
			close(a.queue)
			if err := workers.Wait(); err != nil {
				return errors.Errorf("waiting for workers: %w", err)
			}
			logger.Info().Msg("agent stopped")
			return nil
		case <-ticker.C:
			a.poll(ctx)
		}
	}
}

// poll fetches candidate transformations and enqueues the ones not already
// in flight. Poll failures are logged and retried on the next tick, never
// fatal.
func (a *Agent) poll(ctx context.Context) {
	logger := zerolog.Ctx(ctx)

	candidates, err := a.candidates(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to obtain transformations")
		return
	}

	queued := 0
	for _, trans := range candidates {
		if !a.matchesType(ctx, trans.Type) {
			continue
		}
		if !a.inflight.TryAdd(trans.ID) {
			continue
		}
		select {
		case a.queue <- trans:
			queued++
		default:
			// Never block on processing. The next poll picks it up again.
			a.inflight.Remove(trans.ID)
			logger.Warn().Int64("transformation", trans.ID).Msg("queue full, deferring transformation")
		}
	}

	queueDepth.Set(float64(len(a.queue)))
	inFlightGauge.Set(float64(a.inflight.Len()))
	logger.Info().Int("candidates", len(candidates)).Int("queued", queued).Msg("poll cycle complete")
}

func (a *Agent) candidates(ctx context.Context) ([]registry.Transformation, error) {
	if a.single != "" {
		trans, err := a.registry.Transformation(ctx, a.single)
		if err != nil {
			return nil, errors.Errorf("fetching transformation %s: %w", a.single, err)
		}
		return []registry.Transformation{trans}, nil
	}

	list, err := a.registry.Transformations(ctx, registry.TransformationFilter{Statuses: a.statuses})
	if err != nil {
		return nil, errors.Errorf("listing transformations: %w", err)
	}
	return list, nil
}

// matchesType applies the configured type patterns. No patterns means every
// type is eligible.
func (a *Agent) matchesType(ctx context.Context, transType string) bool {
	if len(a.types) == 0 {
		return true
	}
	for _, pattern := range a.types {
		matched, err := doublestar.Match(pattern, transType)
		if err != nil {
			zerolog.Ctx(ctx).Debug().Str("pattern", pattern).Err(err).Msg("invalid type pattern")
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// worker drains the queue until it is closed. A transformation's failure of
// any kind, panics included, never terminates the worker.
func (a *Agent) worker(ctx context.Context, id int) {
	logger := zerolog.Ctx(ctx).With().Int("worker", id).Logger()
	for trans := range a.queue {
		a.processOne(logger.WithContext(ctx), trans)
	}
	logger.Debug().Msg("worker exiting")
}

func (a *Agent) processOne(ctx context.Context, trans registry.Transformation) {
	logger := zerolog.Ctx(ctx)
	defer func() {
		a.inflight.Remove(trans.ID)
		inFlightGauge.Set(float64(a.inflight.Len()))
		if r := recover(); r != nil {
			transformationsProcessedTotal.WithLabelValues("panic").Inc()
			logger.Error().
				Int64("transformation", trans.ID).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("panic while processing transformation")
		}
	}()

	start := time.Now()
	if err := a.processor.Process(ctx, trans); err != nil {
		transformationsProcessedTotal.WithLabelValues("error").Inc()
		logger.Error().Err(err).
			Int64("transformation", trans.ID).
			Msg("failed to process transformation")
		return
	}
	transformationsProcessedTotal.WithLabelValues("ok").Inc()
	logger.Debug().
		Int64("transformation", trans.ID).
		Dur("elapsed", time.Since(start)).
		Msg("transformation cycle finished")
}
