// Package fractalthorns is a client for the fractalthorns public API with a
// local, file-backed response cache. Successful results are cached per
// entity kind with kind-specific TTLs; repeat requests within the TTL are
// served from the cache without network activity.
package fractalthorns

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mcawesome123/fractalrhomb/cache"
)

// CacheKind identifies one cached entity kind for purge and inspection.
type CacheKind string

const (
	KindNews                  CacheKind = "news"
	KindImages                CacheKind = "images"
	KindImageContents         CacheKind = "image contents"
	KindImageDescriptions     CacheKind = "image descriptions"
	KindSketches              CacheKind = "sketches"
	KindSketchContents        CacheKind = "sketch contents"
	KindChapters              CacheKind = "chapters"
	KindRecords               CacheKind = "records"
	KindRecordContents        CacheKind = "record contents"
	KindSearchResults         CacheKind = "search results"
	KindCurrentSplash         CacheKind = "current splash"
	KindSplashPages           CacheKind = "splash pages"
	KindFullRecordContents    CacheKind = "full record contents"
	KindFullImageDescriptions CacheKind = "full image descriptions"
)

// AllCacheKinds lists every purgeable entity kind.
var AllCacheKinds = []CacheKind{
	KindNews, KindImages, KindImageContents, KindImageDescriptions,
	KindSketches, KindSketchContents,
	KindChapters, KindRecords, KindRecordContents, KindSearchResults,
	KindCurrentSplash, KindSplashPages,
	KindFullRecordContents, KindFullImageDescriptions,
}

// Entry lifetimes reflect the volatility and cost of each query: listings
// and metadata are cheap and change rarely, full texts are expensive,
// splashes rotate quickly.
var cacheTTL = map[CacheKind]time.Duration{
	KindNews:                  4 * time.Hour,
	KindImages:                4 * time.Hour,
	KindImageContents:         24 * time.Hour,
	KindImageDescriptions:     12 * time.Hour,
	KindSketches:              4 * time.Hour,
	KindSketchContents:        24 * time.Hour,
	KindChapters:              4 * time.Hour,
	KindRecords:               4 * time.Hour,
	KindRecordContents:        12 * time.Hour,
	KindSearchResults:         4 * time.Hour,
	KindCurrentSplash:         5 * time.Minute,
	KindSplashPages:           5 * time.Minute,
	KindFullRecordContents:    24 * time.Hour,
	KindFullImageDescriptions: 24 * time.Hour,
}

var purgeCooldown = map[CacheKind]time.Duration{
	KindNews:                  20 * time.Minute,
	KindImages:                20 * time.Minute,
	KindImageContents:         120 * time.Minute,
	KindImageDescriptions:     60 * time.Minute,
	KindSketches:              20 * time.Minute,
	KindSketchContents:        120 * time.Minute,
	KindChapters:              20 * time.Minute,
	KindRecords:               20 * time.Minute,
	KindRecordContents:        60 * time.Minute,
	KindSearchResults:         20 * time.Minute,
	KindCurrentSplash:         5 * time.Minute,
	KindSplashPages:           5 * time.Minute,
	KindFullRecordContents:    120 * time.Minute,
	KindFullImageDescriptions: 120 * time.Minute,
}

// Search types accepted by the upstream domain search.
const (
	SearchTypeImage        = "image"
	SearchTypeEpisodicItem = "episodic-item"
	SearchTypeEpisodicLine = "episodic-line"
)

// LatestChapter is the sentinel chapter label resolving to the most recent
// chapter.
const LatestChapter = "(latest)"

// Cache slot for the "no name given, give me the latest" alias and for
// stores holding a single list value.
const (
	latestKey = "__latest__"
	allKey    = "__all__"
)

// Cache transition messages, logged with the entity kind and key.
const (
	msgStale   = "cache is missing or stale"
	msgRenewed = "renewed cache"
	msgHit     = "already cached"
)

type persister interface {
	Save(dir string) error
	Load(dir string) error
	Kind() string
}

// Client combines the transport with per-kind cache stores. Construct one
// at process start and pass it to command handlers; it is safe for
// concurrent use. Concurrent misses for the same key may both fetch; the
// last write wins, which is acceptable within a TTL window.
type Client struct {
	transport *Transport
	cacheDir  string
	log       zerolog.Logger
	now       func() time.Time

	news           *cache.Store[[]NewsEntry]
	images         *cache.Store[Image]
	imageContents  *cache.Store[ImageContents]
	imageIndex     *cache.Store[[]string]
	imageDescs     *cache.Store[ImageDescription]
	sketches       *cache.Store[Sketch]
	sketchContents *cache.Store[ImageContents]
	sketchIndex    *cache.Store[[]string]
	chapters       *cache.Store[[]Chapter]
	records        *cache.Store[Record]
	recordTexts    *cache.Store[RecordText]
	search         *cache.Store[[]SearchResult]
	splash         *cache.Store[Splash]
	splashPages    *cache.Store[SplashPage]
	fullTexts      *cache.Store[map[string]RecordText]
	fullDescs      *cache.Store[map[string]ImageDescription]

	stores []persister
}

// Option configures a Client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	splashKey  string
	cacheDir   string
	connLimit  int
	log        zerolog.Logger
	now        func() time.Time
}

// WithHTTPClient overrides the HTTP client used for upstream requests.
func WithHTTPClient(h *http.Client) Option {
	return func(o *options) { o.httpClient = h }
}

// WithBaseURL points the client at a different website root.
func WithBaseURL(raw string) Option {
	return func(o *options) { o.baseURL = raw }
}

// WithUserAgent sets the identification header template. {VERSION_FULL},
// {VERSION_LONG} and {VERSION_SHORT} placeholders are substituted.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithSplashKey sets the secret key sent on splash submissions.
func WithSplashKey(key string) Option {
	return func(o *options) { o.splashKey = key }
}

// WithCacheDir sets the directory for the on-disk cache representation.
func WithCacheDir(dir string) Option {
	return func(o *options) { o.cacheDir = dir }
}

// WithConnLimit caps concurrent connections to the remote host.
func WithConnLimit(n int) Option {
	return func(o *options) { o.connLimit = n }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithClock overrides the time source for all cache stores. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	o := options{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		cacheDir:  ".apicache",
		connLimit: DefaultConnLimit,
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	transport, err := NewTransport(o.httpClient, o.baseURL, ExpandUserAgent(o.userAgent), o.splashKey, o.connLimit, o.log)
	if err != nil {
		return nil, err
	}

	c := &Client{
		transport: transport,
		cacheDir:  o.cacheDir,
		log:       o.log,
		now:       o.now,
	}

	c.news = newStore[[]NewsEntry](KindNews, o)
	c.images = newStore[Image](KindImages, o)
	c.imageContents = newStore[ImageContents](KindImageContents, o)
	c.imageIndex = newKindStore[[]string]("image index", cacheTTL[KindImages], purgeCooldown[KindImages], o)
	c.imageDescs = newStore[ImageDescription](KindImageDescriptions, o)
	c.sketches = newStore[Sketch](KindSketches, o)
	c.sketchContents = newStore[ImageContents](KindSketchContents, o)
	c.sketchIndex = newKindStore[[]string]("sketch index", cacheTTL[KindSketches], purgeCooldown[KindSketches], o)
	c.chapters = newStore[[]Chapter](KindChapters, o)
	c.records = newStore[Record](KindRecords, o)
	c.recordTexts = newStore[RecordText](KindRecordContents, o)
	c.search = newStore[[]SearchResult](KindSearchResults, o)
	c.splash = newStore[Splash](KindCurrentSplash, o)
	c.splashPages = newStore[SplashPage](KindSplashPages, o)
	c.fullTexts = newStore[map[string]RecordText](KindFullRecordContents, o)
	c.fullDescs = newStore[map[string]ImageDescription](KindFullImageDescriptions, o)

	c.stores = []persister{
		c.news, c.images, c.imageContents, c.imageIndex, c.imageDescs,
		c.sketches, c.sketchContents, c.sketchIndex, c.chapters, c.records,
		c.recordTexts, c.search, c.splash, c.splashPages,
		c.fullTexts, c.fullDescs,
	}

	return c, nil
}

func newStore[T any](kind CacheKind, o options) *cache.Store[T] {
	return newKindStore[T](string(kind), cacheTTL[kind], purgeCooldown[kind], o)
}

func newKindStore[T any](kind string, ttl, cooldown time.Duration, o options) *cache.Store[T] {
	return cache.NewStore[T](kind, ttl, cooldown,
		cache.WithClock[T](o.now), cache.WithLogger[T](o.log))
}

// BaseURL returns the website root the client is pointed at.
func (c *Client) BaseURL() string { return c.transport.BaseURL() }

// LoadCaches restores every store from the cache directory. Unreadable or
// version-mismatched files degrade to empty stores with a warning; loading
// never fails the caller.
func (c *Client) LoadCaches() {
	for _, s := range c.stores {
		if err := s.Load(c.cacheDir); err != nil {
			var fetchErr *cache.FetchError
			if errors.As(err, &fetchErr) {
				c.log.Warn().Err(err).Str("cache", s.Kind()).Msg("discarding unreadable cache file")
				continue
			}
			c.log.Warn().Err(err).Str("cache", s.Kind()).Msg("cache load failed")
		}
	}
}

// SaveCaches writes every store that changed since its last save. Callers
// trigger this after a logical unit of work rather than per mutation.
func (c *Client) SaveCaches() error {
	var errs []error
	for _, s := range c.stores {
		if err := s.Save(c.cacheDir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) logStale(kind CacheKind, name string) {
	c.log.Info().Str("cache", string(kind)).Str("name", name).Msg(msgStale)
}

func (c *Client) logRenewed(kind CacheKind, name string) {
	c.log.Info().Str("cache", string(kind)).Str("name", name).Msg(msgRenewed)
}

func (c *Client) logHit(kind CacheKind, name string) {
	c.log.Debug().Str("cache", string(kind)).Str("name", name).Msg(msgHit)
}

// GetAllNews returns the news feed, newest first.
func (c *Client) GetAllNews(ctx context.Context) ([]NewsEntry, error) {
	if news, ok := c.news.Get(allKey); ok {
		c.logHit(KindNews, "")
		return news, nil
	}
	c.logStale(KindNews, "")

	payload, err := c.transport.get(ctx, epAllNews, nil)
	if err != nil {
		return nil, err
	}
	news, err := DecodeAllNews(payload)
	if err != nil {
		return nil, err
	}

	c.news.Put(allKey, news)
	c.logRenewed(KindNews, "")
	return news, nil
}

// normalizeLatest maps the "(latest)" and "." aliases onto the empty name,
// which requests the most recent entity upstream.
func normalizeLatest(name string) string {
	if name == "." || strings.EqualFold(name, LatestChapter) {
		return ""
	}
	return name
}

// GetSingleImage returns one image's metadata. An empty name, "(latest)" or
// "." resolves to the latest image.
func (c *Client) GetSingleImage(ctx context.Context, name string) (Image, error) {
	name = normalizeLatest(name)
	key := name
	if name == "" {
		key = latestKey
	}
	if img, ok := c.images.Get(key); ok {
		c.logHit(KindImages, name)
		return img, nil
	}
	c.logStale(KindImages, name)

	params := map[string]string{}
	if name != "" {
		params["name"] = name
	}
	payload, err := c.transport.get(ctx, epSingleImage, params)
	if err != nil {
		return Image{}, notFound(err, "image", name)
	}
	img, err := DecodeImage(payload)
	if err != nil {
		return Image{}, err
	}

	c.images.Put(img.Name, img)
	if name == "" {
		c.images.Put(latestKey, img)
	}
	c.logRenewed(KindImages, img.Name)
	return img, nil
}

// GetImageContents returns the binary data of the named image and its
// thumbnail. An empty name, "(latest)" or "." resolves to the latest image.
func (c *Client) GetImageContents(ctx context.Context, name string) (ImageContents, error) {
	name = normalizeLatest(name)
	key := name
	if name == "" {
		key = latestKey
	}
	if ic, ok := c.imageContents.Get(key); ok {
		c.logHit(KindImageContents, name)
		return ic, nil
	}
	c.logStale(KindImageContents, name)

	img, err := c.GetSingleImage(ctx, name)
	if err != nil {
		return ImageContents{}, err
	}
	ic, err := c.downloadContents(ctx, img.ImageURL, img.ThumbURL)
	if err != nil {
		return ImageContents{}, err
	}

	c.imageContents.Put(img.Name, ic)
	if name == "" {
		c.imageContents.Put(latestKey, ic)
	}
	c.logRenewed(KindImageContents, img.Name)
	return ic, nil
}

// downloadContents fetches an image and its thumbnail concurrently.
func (c *Client) downloadContents(ctx context.Context, imageURL, thumbURL string) (ImageContents, error) {
	var ic ImageContents
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := c.transport.download(gctx, imageURL)
		ic.Image = data
		return err
	})
	g.Go(func() error {
		data, err := c.transport.download(gctx, thumbURL)
		ic.Thumbnail = data
		return err
	})
	if err := g.Wait(); err != nil {
		return ImageContents{}, err
	}
	return ic, nil
}

// GetImageDescription returns the long-form description of the named
// image.
func (c *Client) GetImageDescription(ctx context.Context, name string) (ImageDescription, error) {
	if name == "" {
		return ImageDescription{}, &ParameterError{Endpoint: epImageDescription, Name: "name", Missing: true}
	}
	if desc, ok := c.imageDescs.Get(name); ok {
		c.logHit(KindImageDescriptions, name)
		return desc, nil
	}
	c.logStale(KindImageDescriptions, name)

	img, err := c.GetSingleImage(ctx, name)
	if err != nil {
		return ImageDescription{}, err
	}
	payload, err := c.transport.get(ctx, epImageDescription, map[string]string{"name": name})
	if err != nil {
		return ImageDescription{}, notFound(err, "image", name)
	}
	desc, err := DecodeImageDescription(img.Name, img.Title, payload)
	if err != nil {
		return ImageDescription{}, err
	}

	c.imageDescs.Put(name, desc)
	c.logRenewed(KindImageDescriptions, name)
	return desc, nil
}

// GetAllImages returns every image in upstream order. Refreshing the list
// replaces the per-image cache wholesale, dropping entries for images no
// longer present upstream.
func (c *Client) GetAllImages(ctx context.Context) ([]Image, error) {
	if names, ok := c.imageIndex.Get(allKey); ok {
		images := make([]Image, 0, len(names))
		complete := true
		for _, name := range names {
			img, ok := c.images.Get(name)
			if !ok {
				complete = false
				break
			}
			images = append(images, img)
		}
		if complete {
			c.logHit(KindImages, "")
			return images, nil
		}
	}
	c.logStale(KindImages, "")

	payload, err := c.transport.get(ctx, epAllImages, nil)
	if err != nil {
		return nil, err
	}
	images, err := DecodeAllImages(payload)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]Image, len(images)+1)
	names := make([]string, 0, len(images))
	for _, img := range images {
		byName[img.Name] = img
		names = append(names, img.Name)
	}
	if len(images) > 0 {
		byName[latestKey] = images[0]
	}
	c.images.Replace(byName)
	c.imageIndex.Put(allKey, names)

	c.logRenewed(KindImages, "")
	return images, nil
}

// GetSingleSketch returns one sketch. An empty name, "(latest)" or "."
// resolves to the latest sketch.
func (c *Client) GetSingleSketch(ctx context.Context, name string) (Sketch, error) {
	name = normalizeLatest(name)
	key := name
	if name == "" {
		key = latestKey
	}
	if sk, ok := c.sketches.Get(key); ok {
		c.logHit(KindSketches, name)
		return sk, nil
	}
	c.logStale(KindSketches, name)

	params := map[string]string{}
	if name != "" {
		params["name"] = name
	}
	payload, err := c.transport.get(ctx, epSingleSketch, params)
	if err != nil {
		return Sketch{}, notFound(err, "sketch", name)
	}
	sk, err := DecodeSketch(payload)
	if err != nil {
		return Sketch{}, err
	}

	c.sketches.Put(sk.Name, sk)
	if name == "" {
		c.sketches.Put(latestKey, sk)
	}
	c.logRenewed(KindSketches, sk.Name)
	return sk, nil
}

// GetSketchContents returns the binary data of the named sketch and its
// thumbnail. An empty name, "(latest)" or "." resolves to the latest
// sketch.
func (c *Client) GetSketchContents(ctx context.Context, name string) (ImageContents, error) {
	name = normalizeLatest(name)
	key := name
	if name == "" {
		key = latestKey
	}
	if ic, ok := c.sketchContents.Get(key); ok {
		c.logHit(KindSketchContents, name)
		return ic, nil
	}
	c.logStale(KindSketchContents, name)

	sk, err := c.GetSingleSketch(ctx, name)
	if err != nil {
		return ImageContents{}, err
	}
	ic, err := c.downloadContents(ctx, sk.ImageURL, sk.ThumbURL)
	if err != nil {
		return ImageContents{}, err
	}

	c.sketchContents.Put(sk.Name, ic)
	if name == "" {
		c.sketchContents.Put(latestKey, ic)
	}
	c.logRenewed(KindSketchContents, sk.Name)
	return ic, nil
}

// GetAllSketches returns every sketch in upstream order, replacing the
// per-sketch cache wholesale.
func (c *Client) GetAllSketches(ctx context.Context) ([]Sketch, error) {
	if names, ok := c.sketchIndex.Get(allKey); ok {
		sketches := make([]Sketch, 0, len(names))
		complete := true
		for _, name := range names {
			sk, ok := c.sketches.Get(name)
			if !ok {
				complete = false
				break
			}
			sketches = append(sketches, sk)
		}
		if complete {
			c.logHit(KindSketches, "")
			return sketches, nil
		}
	}
	c.logStale(KindSketches, "")

	payload, err := c.transport.get(ctx, epAllSketches, nil)
	if err != nil {
		return nil, err
	}
	sketches, err := DecodeAllSketches(payload)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]Sketch, len(sketches)+1)
	names := make([]string, 0, len(sketches))
	for _, sk := range sketches {
		byName[sk.Name] = sk
		names = append(names, sk.Name)
	}
	if len(sketches) > 0 {
		byName[latestKey] = sketches[0]
	}
	c.sketches.Replace(byName)
	c.sketchIndex.Put(allKey, names)

	c.logRenewed(KindSketches, "")
	return sketches, nil
}

// GetFullEpisodic returns all chapters in order. Refreshing also replaces
// the per-record cache, dropping stale record-chapter associations.
func (c *Client) GetFullEpisodic(ctx context.Context) ([]Chapter, error) {
	if chs, ok := c.chapters.Get(allKey); ok {
		c.logHit(KindChapters, "")
		return chs, nil
	}
	c.logStale(KindChapters, "")

	payload, err := c.transport.get(ctx, epFullEpisodic, nil)
	if err != nil {
		return nil, err
	}
	chapters, err := DecodeFullEpisodic(payload)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]Record)
	for _, ch := range chapters {
		for _, rec := range ch.Records {
			byName[rec.Name] = rec
		}
	}
	if len(chapters) > 0 && len(chapters[0].Records) > 0 {
		byName[latestKey] = chapters[0].Records[0]
	}
	c.records.Replace(byName)
	c.chapters.Put(allKey, chapters)

	c.logRenewed(KindChapters, "")
	return chapters, nil
}

// GetChapter returns one chapter by label. The "(latest)" and "."
// sentinels (or an empty label) resolve to the most recent chapter.
func (c *Client) GetChapter(ctx context.Context, label string) (Chapter, error) {
	chapters, err := c.GetFullEpisodic(ctx)
	if err != nil {
		return Chapter{}, err
	}
	if len(chapters) == 0 {
		return Chapter{}, &NotFoundError{Kind: "chapter", Name: label}
	}
	if normalizeLatest(label) == "" {
		return chapters[len(chapters)-1], nil
	}
	for _, ch := range chapters {
		if strings.EqualFold(ch.Name, label) {
			return ch, nil
		}
	}
	return Chapter{}, &NotFoundError{Kind: "chapter", Name: label}
}

// GetSingleRecord returns one record's metadata. An empty name resolves to
// the latest record.
func (c *Client) GetSingleRecord(ctx context.Context, name string) (Record, error) {
	key := name
	if name == "" {
		key = latestKey
	}
	if rec, ok := c.records.Get(key); ok {
		c.logHit(KindRecords, name)
		return rec, nil
	}
	c.logStale(KindRecords, name)

	params := map[string]string{}
	if name != "" {
		params["name"] = name
	}
	payload, err := c.transport.get(ctx, epSingleRecord, params)
	if err != nil {
		return Record{}, notFound(err, "record", name)
	}
	rec, err := DecodeRecord(payload)
	if err != nil {
		return Record{}, err
	}

	c.records.Put(rec.Name, rec)
	if name == "" {
		c.records.Put(latestKey, rec)
	}
	c.logRenewed(KindRecords, rec.Name)
	return rec, nil
}

// GetRecordText returns the full text of a record. An empty name resolves
// to the latest record.
func (c *Client) GetRecordText(ctx context.Context, name string) (RecordText, error) {
	key := name
	if name == "" {
		key = latestKey
	}
	if rt, ok := c.recordTexts.Get(key); ok {
		c.logHit(KindRecordContents, name)
		return rt, nil
	}
	c.logStale(KindRecordContents, name)

	rec, err := c.GetSingleRecord(ctx, name)
	if err != nil {
		return RecordText{}, err
	}
	payload, err := c.transport.get(ctx, epRecordText, map[string]string{"name": rec.Name})
	if err != nil {
		return RecordText{}, notFound(err, "record", rec.Name)
	}
	rt, err := DecodeRecordText(rec.Name, rec.Title, payload)
	if err != nil {
		return RecordText{}, err
	}

	c.recordTexts.Put(rec.Name, rt)
	if name == "" {
		c.recordTexts.Put(latestKey, rt)
	}
	c.logRenewed(KindRecordContents, rec.Name)
	return rt, nil
}

// DomainSearch performs an upstream full-text search. searchType must be
// one of SearchTypeImage, SearchTypeEpisodicItem or SearchTypeEpisodicLine.
// Results are cached under a fingerprint normalized for term case and
// parameter order.
func (c *Client) DomainSearch(ctx context.Context, term, searchType string) ([]SearchResult, error) {
	switch searchType {
	case SearchTypeImage, SearchTypeEpisodicItem, SearchTypeEpisodicLine:
	default:
		return nil, &InvalidSearchTypeError{Type: searchType}
	}

	key := cache.Key(epDomainSearch, map[string]string{"term": term, "type": searchType})
	if results, ok := c.search.Get(key); ok {
		c.logHit(KindSearchResults, term)
		return results, nil
	}
	c.logStale(KindSearchResults, term)

	payload, err := c.transport.get(ctx, epDomainSearch, map[string]string{"term": term, "type": searchType})
	if err != nil {
		return nil, err
	}
	results, err := DecodeSearchResults(payload)
	if err != nil {
		return nil, err
	}

	if searchType == SearchTypeEpisodicLine {
		if err := c.resolveLineResults(ctx, results); err != nil {
			return nil, err
		}
	}

	c.search.Put(key, results)
	c.logRenewed(KindSearchResults, term)
	return results, nil
}

// resolveLineResults attaches the referenced record line to episodic-line
// hits, fetching record texts as needed.
func (c *Client) resolveLineResults(ctx context.Context, results []SearchResult) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range results {
		res := &results[i]
		if res.Record == nil || !res.Record.Solved || res.RecordLineIndex == nil || res.RecordLine != nil {
			continue
		}
		g.Go(func() error {
			rt, err := c.GetRecordText(ctx, res.Record.Name)
			if err != nil {
				return err
			}
			if idx := *res.RecordLineIndex; idx >= 0 && idx < len(rt.Lines) {
				line := rt.Lines[idx]
				res.RecordLine = &line
			}
			return nil
		})
	}
	return g.Wait()
}

// GetCurrentSplash returns the current splash, if any.
func (c *Client) GetCurrentSplash(ctx context.Context) (Splash, error) {
	if sp, ok := c.splash.Get(allKey); ok {
		c.logHit(KindCurrentSplash, "")
		return sp, nil
	}
	c.logStale(KindCurrentSplash, "")

	payload, err := c.transport.get(ctx, epCurrentSplash, nil)
	if err != nil {
		return Splash{}, err
	}
	sp, err := DecodeSplash(payload)
	if err != nil {
		return Splash{}, err
	}

	c.splash.Put(allKey, sp)
	c.logRenewed(KindCurrentSplash, "")
	return sp, nil
}

// GetPagedSplashes returns one page of historical splashes.
func (c *Client) GetPagedSplashes(ctx context.Context, page int) (SplashPage, error) {
	key := strconv.Itoa(page)
	if sp, ok := c.splashPages.Get(key); ok {
		c.logHit(KindSplashPages, key)
		return sp, nil
	}
	c.logStale(KindSplashPages, key)

	payload, err := c.transport.get(ctx, epPagedSplashes, map[string]string{"page": key})
	if err != nil {
		return SplashPage{}, err
	}
	sp, err := DecodeSplashPage(payload)
	if err != nil {
		return SplashPage{}, err
	}

	c.splashPages.Put(key, sp)
	c.logRenewed(KindSplashPages, key)
	return sp, nil
}

// SubmitSplash submits a splash suggestion on behalf of a user. A rejected
// submission surfaces as a SubmissionError with the upstream reason
// withheld.
func (c *Client) SubmitSplash(ctx context.Context, text, displayName, userID string) error {
	c.log.Info().Str("user_id", userID).Msg("submitting splash")
	err := c.transport.submit(ctx, map[string]string{
		"text":                   text,
		"submitter_display_name": displayName,
		"submitter_user_id":      userID,
	})
	if err != nil {
		return err
	}
	c.log.Info().Str("user_id", userID).Msg("splash submission accepted")
	return nil
}
