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

// Package processor runs the per-transformation pipeline: enumerate unused
// files, sample, resolve replicas, generate tasks through the selected
// plugin, submit them and advance the transformation's lifecycle.
package processor

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/gridforge/transformd/pkg/catalog"
	"github.com/gridforge/transformd/pkg/plugin"
	"github.com/gridforge/transformd/pkg/registry"
)

// DefaultPlugin is used when a transformation names no plugin.
const DefaultPlugin = "Standard"

var (
	tasksSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transformd_tasks_submitted_total",
		Help: "Task groups successfully submitted to the registry.",
	})
	filesTaskedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transformd_files_tasked_total",
		Help: "Files bound into successfully submitted tasks.",
	})
)

// ReplicaResolver is the slice of the replica cache the processor needs.
type ReplicaResolver interface {
	Resolve(ctx context.Context, transID int64, fileIDs []string, activeOnly bool) (map[string]catalog.ReplicaSet, error)
}

// Options configures a Processor.
type Options struct {
	// Registry is the transformation registry client.
	Registry registry.Client

	// Replicas resolves file locations, normally the replica cache.
	Replicas ReplicaResolver

	// Plugins resolves named task-generation plugins.
	Plugins *plugin.Resolver

	// MaxFiles bounds the per-cycle file set for replication and removal
	// transformations.
	MaxFiles int
}

// Processor processes one transformation end to end. Safe for concurrent
// use by multiple workers; the only shared state is the per-transformation
// unused-file bookkeeping.
type Processor struct {
	registry registry.Client
	replicas ReplicaResolver
	plugins  *plugin.Resolver
	maxFiles int

	// offset picks the sampling window start, uniform over [0, n).
	// Replaceable in tests.
	offset func(n int) int

	mu     sync.Mutex
	unused map[int64]int
}

// New creates a Processor.
func New(opts Options) (*Processor, error) {
	if opts.Registry == nil {
		return nil, errors.New("registry client is required")
	}
	if opts.Replicas == nil {
		return nil, errors.New("replica resolver is required")
	}
	if opts.Plugins == nil {
		return nil, errors.New("plugin resolver is required")
	}
	if opts.MaxFiles <= 0 {
		return nil, errors.New("max files must be positive")
	}
	return &Processor{
		registry: opts.Registry,
		replicas: opts.Replicas,
		plugins:  opts.Plugins,
		maxFiles: opts.MaxFiles,
		offset:   rand.Intn,
		unused:   map[int64]int{},
	}, nil
}

// Process runs one cycle for the given transformation. Errors abort the
// cycle for this transformation only; the caller logs and retries on the
// next poll.
func (p *Processor) Process(ctx context.Context, trans registry.Transformation) error {
	logger := zerolog.Ctx(ctx).With().
		Int64("transformation", trans.ID).
		Str("cycle", uuid.NewString()).
		Logger()
	ctx = logger.WithContext(ctx)
	start := time.Now()

	files, proceed, err := p.transformationFiles(ctx, trans)
	if err != nil {
		return errors.Errorf("enumerating unused files: %w", err)
	}
	if !proceed {
		return nil
	}

	transType := strings.ToLower(trans.Type)
	replicateOrRemove := transType == "replication" || transType == "removal"

	// Replication and removal tasks are generated per file, so the set is
	// bounded to keep a single cycle tractable.
	sampled := files
	if replicateOrRemove {
		sampled = p.sample(files)
		if len(sampled) < len(files) {
			logger.Info().
				Int("files", len(files)).
				Int("sampled", len(sampled)).
				Msg("sampled unused files")
		}
	}

	fileIDs := make([]string, len(sampled))
	for i, file := range sampled {
		fileIDs[i] = file.ID
	}

	replicas, err := p.replicas.Resolve(ctx, trans.ID, fileIDs, !replicateOrRemove)
	if err != nil {
		return errors.Errorf("resolving replicas: %w", err)
	}

	name := trans.Plugin
	if name == "" {
		name = DefaultPlugin
	}
	logger.Info().Str("plugin", name).Int("files", len(sampled)).Msg("processing transformation")

	pl, err := p.plugins.Resolve(name)
	if err != nil {
		return errors.Errorf("instantiating plugin: %w", err)
	}
	pl.SetParameters(trans.Params)
	pl.SetInputReplicas(replicas)
	pl.SetFiles(files)

	tasks, err := pl.GenerateTasks()
	if err != nil {
		return errors.Errorf("generating tasks with plugin %s: %w", name, err)
	}

	remaining := len(sampled)
	allCreated := true
	created := 0
	for _, group := range tasks {
		if err := p.registry.AddTask(ctx, trans.ID, group.FileIDs, group.Location); err != nil {
			logger.Error().Err(err).
				Str("location", group.Location).
				Int("files", len(group.FileIDs)).
				Msg("failed to submit task")
			allCreated = false
			continue
		}
		created++
		remaining -= len(group.FileIDs)
		tasksSubmittedTotal.Inc()
		filesTaskedTotal.Add(float64(len(group.FileIDs)))
	}
	if created > 0 {
		logger.Info().Int("tasks", created).Msg("submitted tasks")
	}
	p.setUnused(trans.ID, remaining)

	if trans.Status == registry.StatusFlush && allCreated {
		p.setActive(ctx, trans.ID)
	}

	logger.Info().Dur("elapsed", time.Since(start)).Msg("processed transformation")
	return nil
}

// transformationFiles enumerates the unused files and applies the two
// short-circuits: nothing to do, and nothing new since the last cycle.
func (p *Processor) transformationFiles(ctx context.Context, trans registry.Transformation) ([]registry.File, bool, error) {
	logger := zerolog.Ctx(ctx)

	files, err := p.registry.TransformationFiles(ctx, trans.ID, registry.FileStatusUnused)
	if err != nil {
		return nil, false, err
	}

	if len(files) == 0 {
		logger.Info().Msg("no unused files found")
		if trans.Status == registry.StatusFlush {
			p.setActive(ctx, trans.ID)
		}
		return nil, false, nil
	}

	if len(files) == p.lastUnused(trans.ID) && trans.Status != registry.StatusFlush {
		logger.Info().Int("files", len(files)).Msg("no new unused files since last cycle")
		return nil, false, nil
	}

	return files, true, nil
}

// sample keeps a uniformly placed contiguous window when the file set
// exceeds the configured maximum; smaller sets pass through untouched.
func (p *Processor) sample(files []registry.File) []registry.File {
	if len(files) <= p.maxFiles {
		return files
	}
	first := p.offset(len(files) - p.maxFiles + 1)
	return files[first : first+p.maxFiles-1]
}

// setActive requests the Flush -> Active transition, best-effort.
func (p *Processor) setActive(ctx context.Context, transID int64) {
	logger := zerolog.Ctx(ctx)
	if err := p.registry.SetParameter(ctx, transID, "Status", string(registry.StatusActive)); err != nil {
		logger.Error().Err(err).Msg("failed to update transformation status to Active")
		return
	}
	logger.Info().Msg("updated transformation status to Active")
}

func (p *Processor) lastUnused(transID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unused[transID]
}

func (p *Processor) setUnused(transID int64, count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unused[transID] = count
}
