package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/radutopala/oneassist/internal/embedding"
	"github.com/radutopala/oneassist/internal/tools"
)

const toolIndexName = "tools"

// ToolHit pairs an index hit with its descriptor.
type ToolHit struct {
	Descriptor tools.Descriptor
	Distance   float32
}

// ToolStoreStats summarizes the current tool snapshot.
type ToolStoreStats struct {
	ToolCount int
	Dimension int
	Model     string
}

// ToolStore owns the tool-side search snapshot: descriptors plus a flat
// index over their embedding texts. Rebuilds assemble a fresh snapshot and
// swap it in atomically, so searches in flight keep the snapshot they
// started with.
type ToolStore struct {
	codec  *embedding.Codec
	logger *slog.Logger
	snap   atomic.Pointer[toolSnapshot]
}

type toolSnapshot struct {
	index    *Flat
	byID     map[int64]tools.Descriptor
	checksum string
}

// NewToolStore creates an empty tool store.
func NewToolStore(codec *embedding.Codec, logger *slog.Logger) *ToolStore {
	s := &ToolStore{codec: codec, logger: logger}
	s.snap.Store(&toolSnapshot{
		index: NewFlat(codec.Dimension()),
		byID:  map[int64]tools.Descriptor{},
	})
	return s
}

// Build encodes every descriptor and swaps in a fresh snapshot. Entries
// with an empty name or description, or whose encoding fails, are skipped
// with a warning rather than aborting the build. Build fails only when a
// non-empty catalog produced nothing indexable.
func (s *ToolStore) Build(ctx context.Context, descs []tools.Descriptor) error {
	index := NewFlat(s.codec.Dimension())
	byID := make(map[int64]tools.Descriptor, len(descs))

	for _, d := range descs {
		if d.Name == "" || d.Description == "" {
			s.logger.Warn("Skipping unusable tool entry", "id", d.ID, "name", d.Name)
			continue
		}
		vec, err := s.codec.Encode(ctx, d.EmbeddingText())
		if err != nil {
			s.logger.Warn("Skipping tool that failed to encode", "id", d.ID, "name", d.Name, "error", err)
			continue
		}
		if err := index.Add(d.ID, vec); err != nil {
			return err
		}
		byID[d.ID] = d
	}

	if len(descs) > 0 && index.Len() == 0 {
		return fmt.Errorf("none of %d tools could be indexed", len(descs))
	}

	s.snap.Store(&toolSnapshot{index: index, byID: byID, checksum: ChecksumDescriptors(descs)})
	s.logger.Info("Tool index built", "tools", index.Len(), "dimension", index.Dimension())

	return nil
}

// Search returns the nearest descriptors by ascending squared L2 distance.
func (s *ToolStore) Search(vec []float32, k int) ([]ToolHit, error) {
	snap := s.snap.Load()

	hits, err := snap.index.Search(vec, k)
	if err != nil {
		return nil, err
	}

	out := make([]ToolHit, 0, len(hits))
	for _, h := range hits {
		d, ok := snap.byID[h.ID]
		if !ok {
			continue
		}
		out = append(out, ToolHit{Descriptor: d, Distance: h.Distance})
	}

	return out, nil
}

// Count returns the number of indexed tools.
func (s *ToolStore) Count() int {
	return s.snap.Load().index.Len()
}

// Stats describes the current snapshot.
func (s *ToolStore) Stats() ToolStoreStats {
	snap := s.snap.Load()
	return ToolStoreStats{
		ToolCount: snap.index.Len(),
		Dimension: snap.index.Dimension(),
		Model:     s.codec.ModelName(),
	}
}

// Save persists the current snapshot under dir.
func (s *ToolStore) Save(dir string) error {
	snap := s.snap.Load()
	return saveFlat(dir, toolIndexName, snap.index, s.codec.ModelName(), snap.checksum)
}

// LoadOrBuild restores the persisted tool index when it still matches the
// given catalog, and rebuilds from scratch (then saves) when it is stale.
func (s *ToolStore) LoadOrBuild(ctx context.Context, dir string, descs []tools.Descriptor) error {
	checksum := ChecksumDescriptors(descs)

	f, _, err := loadFlat(dir, toolIndexName, s.codec.ModelName(), s.codec.Dimension(), checksum)
	if err == nil {
		byID := make(map[int64]tools.Descriptor, len(descs))
		for _, d := range descs {
			if d.Name != "" && d.Description != "" {
				byID[d.ID] = d
			}
		}

		complete := true
		for _, id := range f.ids {
			if _, ok := byID[id]; !ok {
				complete = false
				break
			}
		}

		if complete {
			s.snap.Store(&toolSnapshot{index: f, byID: byID, checksum: checksum})
			s.logger.Info("Tool index loaded from disk", "tools", f.Len())
			return nil
		}
		err = fmt.Errorf("%w: indexed tool missing from catalog", ErrIndexStale)
	}

	if !errors.Is(err, ErrIndexStale) {
		return err
	}

	s.logger.Info("Rebuilding tool index", "reason", err)
	if err := s.Build(ctx, descs); err != nil {
		return err
	}
	return s.Save(dir)
}

// Rebuild forces a full rebuild and save, discarding the persisted
// index.
func (s *ToolStore) Rebuild(ctx context.Context, dir string, descs []tools.Descriptor) error {
	if err := s.Build(ctx, descs); err != nil {
		return err
	}
	return s.Save(dir)
}

// ChecksumDescriptors hashes the fields that affect search, so catalog
// changes invalidate a persisted index.
func ChecksumDescriptors(descs []tools.Descriptor) string {
	sorted := make([]tools.Descriptor, len(descs))
	copy(sorted, descs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	parts := make([]string, 0, len(sorted))
	for _, d := range sorted {
		parts = append(parts, fmt.Sprintf("%d|%s|%s|%s",
			d.ID, d.Name, d.Description, strings.Join(d.QueryExamples, ",")))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
