package replicacache

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// persistedCache is the on-disk shape of the cache file. The format is an
// implementation detail of this package; nothing else reads it.
type persistedCache struct {
	SavedAt time.Time        `json:"saved_at"`
	Entries []persistedEntry `json:"entries"`
}

type persistedEntry struct {
	TransformationID int64      `json:"transformation_id"`
	Snapshots        []Snapshot `json:"snapshots"`
}

// load reads the cache file once at startup. Every failure mode means
// starting empty.
func (c *Cache) load(ctx context.Context) {
	logger := zerolog.Ctx(ctx)

	data, err := os.ReadFile(c.path)
	if err != nil {
		logger.Debug().Err(err).Str("path", c.path).Msg("no replica cache loaded, starting empty")
		return
	}

	var stored persistedCache
	if err := json.Unmarshal(data, &stored); err != nil {
		logger.Warn().Err(err).Str("path", c.path).Msg("unreadable replica cache file, starting empty")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[int64][]Snapshot{}
	for _, entry := range stored.Entries {
		c.entries[entry.TransformationID] = entry.Snapshots
	}
	logger.Debug().
		Str("path", c.path).
		Int("transformations", len(c.entries)).
		Time("saved_at", stored.SavedAt).
		Msg("loaded replica cache")
}

// persist writes the full cache to disk. Callers must hold c.mu. Failure is
// logged and swallowed: the cache simply is not durably updated this cycle.
func (c *Cache) persist(ctx context.Context) {
	logger := zerolog.Ctx(ctx)

	stored := persistedCache{SavedAt: c.now()}
	for transID, snaps := range c.entries {
		stored.Entries = append(stored.Entries, persistedEntry{
			TransformationID: transID,
			Snapshots:        snaps,
		})
	}
	sort.Slice(stored.Entries, func(i, j int) bool {
		return stored.Entries[i].TransformationID < stored.Entries[j].TransformationID
	})

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		logger.Warn().Err(err).Str("path", c.path).Msg("failed to encode replica cache")
		return
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		logger.Warn().Err(err).Str("path", c.path).Msg("failed to write replica cache")
		return
	}
	logger.Trace().Str("path", c.path).Int("transformations", len(stored.Entries)).Msg("wrote replica cache")
}

// TransformationStats summarizes the cached snapshots of one
// transformation, for the cache inspection command.
type TransformationStats struct {
	TransformationID int64
	Snapshots        int
	Files            int
	Oldest           time.Time
	Newest           time.Time
}

// Stats returns a per-transformation summary of the cache contents, ordered
// by transformation identifier.
func (c *Cache) Stats() []TransformationStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []TransformationStats
	for transID, snaps := range c.entries {
		st := TransformationStats{TransformationID: transID, Snapshots: len(snaps)}
		for _, snap := range snaps {
			st.Files += len(snap.Replicas)
			if st.Oldest.IsZero() || snap.Taken.Before(st.Oldest) {
				st.Oldest = snap.Taken
			}
			if snap.Taken.After(st.Newest) {
				st.Newest = snap.Taken
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TransformationID < out[j].TransformationID
	})
	return out
}
