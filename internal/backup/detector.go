package backup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/driveback/driveback/internal/config"
	"github.com/driveback/driveback/internal/utils"
)

const hashCacheSize = 4096

// Detector classifies a remote listing against prior tracker state.
type Detector struct {
	mode config.DetectionMode
	src  Source
	// hashCache memoizes content digests keyed by identity+mtime+size so
	// repeated `both`-mode runs don't re-read unchanged files.
	hashCache *lru.Cache[string, string]
}

func NewDetector(mode config.DetectionMode, src Source) *Detector {
	cache, _ := lru.New[string, string](hashCacheSize)
	return &Detector{
		mode:      mode,
		src:       src,
		hashCache: cache,
	}
}

// Classify tags every listed file as unchanged/modified/new and every
// tracked-but-unlisted identity as deleted. The result is sorted by
// identity so downstream planning is deterministic.
func (d *Detector) Classify(ctx context.Context, scope Scope, listing []RemoteFile, tracker *Tracker) ([]Classification, error) {
	classifications := make([]Classification, 0, len(listing))
	listed := mapset.NewThreadUnsafeSet[string]()

	for _, file := range listing {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		listed.Add(file.Identity)

		prior, err := tracker.Get(scope, file.Identity)
		if err != nil {
			return nil, fmt.Errorf("consult tracker for %s: %w", file.Identity, err)
		}

		c, err := d.classifyOne(ctx, file, prior)
		if err != nil {
			return nil, err
		}
		classifications = append(classifications, c)
	}

	// Anything tracked but absent from the listing was deleted upstream.
	tracked, err := tracker.List(scope)
	if err != nil {
		return nil, fmt.Errorf("list tracker state: %w", err)
	}
	for i := range tracked {
		rec := tracked[i]
		if listed.Contains(rec.Identity) {
			continue
		}
		classifications = append(classifications, Classification{
			File:   RemoteFile{Identity: rec.Identity, Path: rec.Path, Size: rec.Size},
			Change: Deleted,
			Reason: ReasonAbsentFromListing,
			Prior:  &rec,
		})
	}

	sort.Slice(classifications, func(i, j int) bool {
		return classifications[i].File.Identity < classifications[j].File.Identity
	})
	return classifications, nil
}

func (d *Detector) classifyOne(ctx context.Context, file RemoteFile, prior *FileRecord) (Classification, error) {
	if prior == nil {
		return Classification{File: file, Change: New, Reason: ReasonAbsentFromTracker}, nil
	}

	switch d.mode {
	case config.DetectTimestamp:
		return d.classifyTimestamp(file, prior), nil

	case config.DetectHash:
		return d.classifyHash(ctx, file, prior)

	case config.DetectBoth:
		// Timestamp first; hash-verify only files the timestamp check
		// calls unchanged, so clock skew cannot hide a modification.
		c := d.classifyTimestamp(file, prior)
		if c.Change != Unchanged {
			return c, nil
		}
		return d.classifyHash(ctx, file, prior)

	default:
		return Classification{}, fmt.Errorf("unsupported detection mode %q", d.mode)
	}
}

func (d *Detector) classifyTimestamp(file RemoteFile, prior *FileRecord) Classification {
	// Strictly newer counts as modified; an equal timestamp is unchanged.
	if file.ModifiedAt.After(prior.RemoteModifiedAt) {
		return Classification{File: file, Change: Modified, Reason: ReasonTimestampDiff, Prior: prior}
	}
	return Classification{File: file, Change: Unchanged, Reason: ReasonTimestampEqual, Prior: prior}
}

func (d *Detector) classifyHash(ctx context.Context, file RemoteFile, prior *FileRecord) (Classification, error) {
	hash, err := d.contentHash(ctx, file)
	if err != nil {
		return Classification{}, fmt.Errorf("hash %s: %w", file.Identity, err)
	}

	if hash != prior.ContentHash {
		return Classification{File: file, Change: Modified, Reason: ReasonHashDiff, Prior: prior, Hash: hash}, nil
	}
	return Classification{File: file, Change: Unchanged, Reason: ReasonHashEqual, Prior: prior, Hash: hash}, nil
}

func (d *Detector) contentHash(ctx context.Context, file RemoteFile) (string, error) {
	key := fmt.Sprintf("%s|%d|%d", file.Identity, file.ModifiedAt.UnixNano(), file.Size)
	if hash, ok := d.hashCache.Get(key); ok {
		return hash, nil
	}

	r, err := d.src.Open(ctx, file.Locator)
	if err != nil {
		return "", err
	}
	defer r.Close()

	hash, n, err := utils.ContentHash(r)
	if err != nil {
		return "", err
	}
	if n != file.Size {
		slog.Debug("hash size mismatch against listing", "identity", file.Identity, "listed", file.Size, "read", n)
	}

	d.hashCache.Add(key, hash)
	return hash, nil
}
