package fractalthorns

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Gather operations fetch an entire corpus (every record's text, every
// image's description) in one sweep so client-side searches can run over
// complete data. They are expensive upstream, so re-gathering is gated by
// the purge cooldown of the gathered kind: a gather whose previous result
// is still cached and within the cooldown is rejected.

// CachedFullRecordTexts returns the gathered record texts, keyed by record
// name, or an ItemsUngatheredError if no gather has completed.
func (c *Client) CachedFullRecordTexts() (map[string]RecordText, error) {
	if texts, ok := c.fullTexts.Get(allKey); ok {
		return texts, nil
	}
	return nil, &ItemsUngatheredError{Kind: string(KindRecordContents)}
}

// GatherFullRecordTexts fetches the text of every solved record. The
// episodic listing, per-record and per-text caches are force-purged first
// so the sweep sees current upstream state.
func (c *Client) GatherFullRecordTexts(ctx context.Context) (map[string]RecordText, error) {
	if err := c.fullTexts.Purge(false); err != nil {
		if _, ok := c.fullTexts.Get(allKey); ok {
			return nil, err
		}
	}
	c.logStale(KindFullRecordContents, "")

	c.chapters.Purge(true)
	c.records.Purge(true)
	c.recordTexts.Purge(true)

	chapters, err := c.GetFullEpisodic(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, ch := range chapters {
		for _, rec := range ch.Records {
			if rec.Solved {
				names = append(names, rec.Name)
			}
		}
	}

	texts := make([]RecordText, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			rt, err := c.GetRecordText(gctx, name)
			if err != nil {
				return err
			}
			texts[i] = rt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	gathered := make(map[string]RecordText, len(names))
	for i, name := range names {
		gathered[name] = texts[i]
	}

	c.fullTexts.Put(allKey, gathered)
	c.logRenewed(KindFullRecordContents, "")
	return gathered, nil
}

// fullRecordTexts returns the gathered record texts, gathering if needed.
func (c *Client) fullRecordTexts(ctx context.Context) (map[string]RecordText, error) {
	if texts, ok := c.fullTexts.Get(allKey); ok {
		return texts, nil
	}
	return c.GatherFullRecordTexts(ctx)
}

// CachedFullImageDescriptions returns the gathered image descriptions,
// keyed by image name, or an ItemsUngatheredError if no gather has
// completed.
func (c *Client) CachedFullImageDescriptions() (map[string]ImageDescription, error) {
	if descs, ok := c.fullDescs.Get(allKey); ok {
		return descs, nil
	}
	return nil, &ItemsUngatheredError{Kind: string(KindImageDescriptions)}
}

// GatherFullImageDescriptions fetches the description of every image. The
// image listing and per-description caches are force-purged first.
func (c *Client) GatherFullImageDescriptions(ctx context.Context) (map[string]ImageDescription, error) {
	if err := c.fullDescs.Purge(false); err != nil {
		if _, ok := c.fullDescs.Get(allKey); ok {
			return nil, err
		}
	}
	c.logStale(KindFullImageDescriptions, "")

	c.images.Purge(true)
	c.imageIndex.Purge(true)
	c.imageDescs.Purge(true)

	images, err := c.GetAllImages(ctx)
	if err != nil {
		return nil, err
	}

	descs := make([]ImageDescription, len(images))
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			desc, err := c.GetImageDescription(gctx, img.Name)
			if err != nil {
				return err
			}
			descs[i] = desc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	gathered := make(map[string]ImageDescription, len(images))
	for i, img := range images {
		gathered[img.Name] = descs[i]
	}

	c.fullDescs.Put(allKey, gathered)
	c.logRenewed(KindFullImageDescriptions, "")
	return gathered, nil
}

func (c *Client) fullImageDescriptions(ctx context.Context) (map[string]ImageDescription, error) {
	if descs, ok := c.fullDescs.Get(allKey); ok {
		return descs, nil
	}
	return c.GatherFullImageDescriptions(ctx)
}
