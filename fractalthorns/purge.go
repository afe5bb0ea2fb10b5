package fractalthorns

import (
	"errors"
	"fmt"
	"time"

	"github.com/mcawesome123/fractalrhomb/cache"
)

// CacheInfo describes the live state of one cache store.
type CacheInfo struct {
	Kind      CacheKind `json:"kind"`
	Entries   int       `json:"entries"`
	TTL       string    `json:"ttl"`
	LastPurge time.Time `json:"last_purge,omitempty"`
}

// PurgeReport summarizes a bulk purge: which kinds were cleared and which
// were rejected by their cooldown, with the time remaining on each.
type PurgeReport struct {
	Applied  []CacheKind
	Rejected map[CacheKind]time.Duration
}

// Purge clears one cache kind. A non-forced purge within the kind's
// cooldown fails with a cache.PurgeCooldownError and leaves the cache
// untouched. Forced purges always clear but never reset the cooldown.
// Purging a listing kind also drops its ordering index so the next listing
// request refetches.
func (c *Client) Purge(kind CacheKind, force bool) error {
	switch kind {
	case KindNews:
		return c.news.Purge(force)
	case KindImages:
		if err := c.images.Purge(force); err != nil {
			return err
		}
		c.imageIndex.Purge(true)
		return nil
	case KindImageContents:
		return c.imageContents.Purge(force)
	case KindImageDescriptions:
		return c.imageDescs.Purge(force)
	case KindSketches:
		if err := c.sketches.Purge(force); err != nil {
			return err
		}
		c.sketchIndex.Purge(true)
		return nil
	case KindSketchContents:
		return c.sketchContents.Purge(force)
	case KindChapters:
		return c.chapters.Purge(force)
	case KindRecords:
		return c.records.Purge(force)
	case KindRecordContents:
		return c.recordTexts.Purge(force)
	case KindSearchResults:
		return c.search.Purge(force)
	case KindCurrentSplash:
		return c.splash.Purge(force)
	case KindSplashPages:
		return c.splashPages.Purge(force)
	case KindFullRecordContents:
		return c.fullTexts.Purge(force)
	case KindFullImageDescriptions:
		return c.fullDescs.Purge(force)
	default:
		return fmt.Errorf("unknown cache kind: %q", kind)
	}
}

// PurgeAll purges the given kinds (all kinds when empty), collecting
// per-kind outcomes instead of stopping at the first cooldown rejection.
func (c *Client) PurgeAll(kinds []CacheKind, force bool) (PurgeReport, error) {
	if len(kinds) == 0 {
		kinds = AllCacheKinds
	}
	report := PurgeReport{Rejected: map[CacheKind]time.Duration{}}
	for _, kind := range kinds {
		err := c.Purge(kind, force)
		if err == nil {
			report.Applied = append(report.Applied, kind)
			continue
		}
		var cooldownErr *cache.PurgeCooldownError
		if errors.As(err, &cooldownErr) {
			report.Rejected[kind] = cooldownErr.Remaining
			continue
		}
		return report, err
	}
	return report, nil
}

// CacheStates reports entry counts and purge timestamps for every store.
func (c *Client) CacheStates() []CacheInfo {
	infos := make([]CacheInfo, 0, len(AllCacheKinds))
	for _, kind := range AllCacheKinds {
		s := c.storeFor(kind)
		infos = append(infos, CacheInfo{
			Kind:      kind,
			Entries:   s.Len(),
			TTL:       s.TTL().String(),
			LastPurge: s.LastPurge(),
		})
	}
	return infos
}

// storeState is the kind-erased view a store exposes for inspection.
type storeState interface {
	Len() int
	TTL() time.Duration
	LastPurge() time.Time
}

func (c *Client) storeFor(kind CacheKind) storeState {
	switch kind {
	case KindNews:
		return c.news
	case KindImages:
		return c.images
	case KindImageContents:
		return c.imageContents
	case KindImageDescriptions:
		return c.imageDescs
	case KindSketches:
		return c.sketches
	case KindSketchContents:
		return c.sketchContents
	case KindChapters:
		return c.chapters
	case KindRecords:
		return c.records
	case KindRecordContents:
		return c.recordTexts
	case KindSearchResults:
		return c.search
	case KindCurrentSplash:
		return c.splash
	case KindSplashPages:
		return c.splashPages
	case KindFullRecordContents:
		return c.fullTexts
	case KindFullImageDescriptions:
		return c.fullDescs
	default:
		return nil
	}
}
