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

// Package replicacache is a time-bounded, disk-persisted replica cache
// layered in front of the catalog service. Lookups scan every snapshot
// stored for a transformation, fetch the remainder from the catalog in one
// batch, and store the fresh batch as a new snapshot.
package replicacache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/gridforge/transformd/pkg/catalog"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transformd_replica_cache_hits_total",
		Help: "Files resolved from a cached snapshot without a catalog call.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transformd_replica_cache_misses_total",
		Help: "Files that had to be resolved through the catalog service.",
	})
)

// Snapshot is the replica map obtained from one catalog batch call, valid at
// the time it was taken. A transformation's cache entry is an ordered
// collection of snapshots, never a consolidated map.
type Snapshot struct {
	Taken    time.Time                     `json:"taken"`
	Replicas map[string]catalog.ReplicaSet `json:"replicas"`
}

// MissingReporter receives the identifiers of files the catalog reports as
// not found, so the registry can mark them for this transformation.
type MissingReporter interface {
	ReportMissing(ctx context.Context, transID int64, fileIDs []string) error
}

// Options configures a Cache.
type Options struct {
	// Path is the cache file on disk. Loaded once at construction,
	// rewritten after every eviction pass.
	Path string

	// Validity is how long a snapshot stays usable. Older snapshots are
	// evicted.
	Validity time.Duration

	// Catalog resolves files the snapshot scan misses. May be nil when
	// CheckCatalog is false.
	Catalog catalog.Client

	// Reporter is told about files missing from the catalog. Optional.
	Reporter MissingReporter

	// CheckCatalog gates remote lookups. When false the cache answers from
	// snapshots alone.
	CheckCatalog bool
}

// Cache is safe for concurrent use. All mutation — scan, compaction,
// insertion, eviction and the persistence write — is serialized behind one
// mutex; the remote catalog call happens outside it.
type Cache struct {
	mu       sync.Mutex
	path     string
	validity time.Duration
	catalog  catalog.Client
	reporter MissingReporter
	check    bool
	entries  map[int64][]Snapshot

	now func() time.Time
}

// New creates a Cache and attempts to load the persisted file at
// opts.Path. Any load failure means starting empty, never an error.
func New(ctx context.Context, opts Options) *Cache {
	c := &Cache{
		path:     opts.Path,
		validity: opts.Validity,
		catalog:  opts.Catalog,
		reporter: opts.Reporter,
		check:    opts.CheckCatalog,
		entries:  map[int64][]Snapshot{},
		now:      time.Now,
	}
	c.load(ctx)
	return c
}

// Resolve returns the replica locations for the requested files of one
// transformation, merging cached snapshots with a fresh catalog batch for
// the files the scan missed.
//
// While scanning, snapshot entries for files absent from the request are
// compacted away: they belong to a previous cycle's interest set and would
// otherwise accumulate without bound.
func (c *Cache) Resolve(ctx context.Context, transID int64, fileIDs []string, activeOnly bool) (map[string]catalog.ReplicaSet, error) {
	logger := zerolog.Ctx(ctx)

	requested := make(map[string]struct{}, len(fileIDs))
	for _, id := range fileIDs {
		requested[id] = struct{}{}
	}

	result := map[string]catalog.ReplicaSet{}

	c.mu.Lock()
	for i, snap := range c.entries[transID] {
		for id, locations := range snap.Replicas {
			if _, ok := requested[id]; !ok {
				delete(c.entries[transID][i].Replicas, id)
				continue
			}
			if _, ok := result[id]; !ok {
				result[id] = locations
			}
		}
	}
	c.mu.Unlock()

	if len(result) > 0 {
		logger.Debug().
			Int64("transformation", transID).
			Int("hits", len(result)).
			Int("requested", len(fileIDs)).
			Msg("replica cache hit")
	}
	cacheHitsTotal.Add(float64(len(result)))

	var unresolved []string
	for _, id := range fileIDs {
		if _, ok := result[id]; !ok {
			unresolved = append(unresolved, id)
		}
	}
	cacheMissesTotal.Add(float64(len(unresolved)))

	if len(unresolved) > 0 && c.check {
		fresh, err := c.lookup(ctx, transID, unresolved, activeOnly)
		switch {
		case err != nil && len(result) == 0:
			return nil, errors.Errorf("resolving %d files through catalog: %w", len(unresolved), err)
		case err != nil:
			logger.Warn().Err(err).
				Int64("transformation", transID).
				Int("files", len(unresolved)).
				Msg("catalog lookup failed, answering from cache alone")
		case len(fresh) == 0:
			// Soft error: nothing usable came back, whatever the scan found
			// still stands.
			logger.Warn().
				Int64("transformation", transID).
				Int("files", len(unresolved)).
				Msg("no replicas obtained from catalog")
		default:
			c.mu.Lock()
			c.entries[transID] = append(c.entries[transID], Snapshot{Taken: c.now(), Replicas: fresh})
			c.mu.Unlock()
			for id, locations := range fresh {
				result[id] = locations
			}
		}
	}

	c.evict(ctx)
	return result, nil
}

// lookup queries the catalog for one batch, filters failover locations when
// activeOnly, and reports not-found files to the registry.
func (c *Cache) lookup(ctx context.Context, transID int64, fileIDs []string, activeOnly bool) (map[string]catalog.ReplicaSet, error) {
	logger := zerolog.Ctx(ctx)

	var res catalog.Result
	var err error
	if activeOnly {
		res, err = c.catalog.ActiveReplicas(ctx, fileIDs)
	} else {
		res, err = c.catalog.AllReplicas(ctx, fileIDs)
	}
	if err != nil {
		return nil, err
	}

	fresh := map[string]catalog.ReplicaSet{}
	for id, locations := range res.Successful {
		for location, name := range locations {
			if activeOnly && catalog.IsFailover(location) {
				logger.Warn().
					Int64("transformation", transID).
					Str("file", id).
					Str("location", location).
					Msg("ignoring failover replica")
				continue
			}
			if fresh[id] == nil {
				fresh[id] = catalog.ReplicaSet{}
			}
			fresh[id][location] = name
		}
	}

	var missing []string
	for id, reason := range res.Failed {
		if catalog.NotFound(reason) {
			logger.Warn().
				Int64("transformation", transID).
				Str("file", id).
				Msg("file not found in catalog")
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 && c.reporter != nil {
		sort.Strings(missing)
		if err := c.reporter.ReportMissing(ctx, transID, missing); err != nil {
			logger.Warn().Err(err).
				Int64("transformation", transID).
				Int("files", len(missing)).
				Msg("failed to report missing files")
		}
	}

	return fresh, nil
}

// Invalidate drops every cached snapshot for a transformation and persists.
func (c *Cache) Invalidate(ctx context.Context, transID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[transID]; !ok {
		return
	}
	delete(c.entries, transID)
	zerolog.Ctx(ctx).Info().Int64("transformation", transID).Msg("invalidated cached replicas")
	c.persist(ctx)
}

// evict removes snapshots past their validity or left empty by compaction,
// drops transformations with no snapshots, and persists the cache.
func (c *Cache) evict(ctx context.Context) {
	logger := zerolog.Ctx(ctx)
	limit := c.now().Add(-c.validity)

	c.mu.Lock()
	defer c.mu.Unlock()

	for transID, snaps := range c.entries {
		kept := snaps[:0]
		for _, snap := range snaps {
			if snap.Taken.Before(limit) || len(snap.Replicas) == 0 {
				logger.Debug().
					Int64("transformation", transID).
					Time("taken", snap.Taken).
					Int("files", len(snap.Replicas)).
					Msg("evicting cached snapshot")
				continue
			}
			kept = append(kept, snap)
		}
		if len(kept) == 0 {
			delete(c.entries, transID)
			continue
		}
		c.entries[transID] = kept
	}

	c.persist(ctx)
}
