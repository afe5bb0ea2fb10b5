package fractalthorns

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcawesome123/fractalrhomb/cache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeUpstream emulates the website API: fixed fixture data, body-param
// argument decoding, and per-endpoint call counting.
type fakeUpstream struct {
	t      *testing.T
	server *httptest.Server

	mu    sync.Mutex
	calls map[string]int

	// ghost is servable by single_image but absent from all_images,
	// standing in for an image removed upstream.
	serveGhost bool
}

func imageFixture(name, title, canon string, chars ...string) string {
	charJSON, _ := json.Marshal(chars)
	return fmt.Sprintf(`{"name":%q,"title":%q,"date":"2024-01-01","ordinal":1,
		"image_url":"/image/%s","thumb_url":"/thumb/%s","has_description":true,
		"canon":%q,"characters":%s}`, name, title, name, name, canon, charJSON)
}

const episodicFixture = `{"chapters":[
	{"name":"i","records":[
		{"chapter":"i","name":"first","title":"First","solved":true,"iteration":"209151"},
		{"chapter":"i","name":"hidden","title":"???","solved":false}
	]},
	{"name":"ii","records":[
		{"chapter":"ii","name":"second","title":"Second","solved":true,"iteration":"0"}
	]}
]}`

var recordTextFixtures = map[string]string{
	"first": `{"iteration":"209151","header_lines":["requested by someone"],
		"languages":["en"],"characters":["alice"],
		"lines":[
			{"character":"alice","language":"en","text":"hello  there"},
			{"text":"the wind howls"}
		]}`,
	"second": `{"iteration":"0","header_lines":["this record is unrequested"],
		"languages":["en","vemponic"],"characters":["bob"],
		"lines":[{"character":"bob","language":"vemponic","emphasis":"loud","text":"goodbye"}]}`,
}

func (f *fakeUpstream) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeUpstream) handle(w http.ResponseWriter, r *http.Request) {
	// Non-API paths are image and thumbnail assets; the fixtures point
	// their URLs here.
	if !strings.HasPrefix(r.URL.Path, "/api/v1/") {
		f.mu.Lock()
		f.calls[r.URL.Path]++
		f.mu.Unlock()
		_, _ = w.Write([]byte("png:" + r.URL.Path))
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/v1/")
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()

	var args map[string]string
	if body := r.URL.Query().Get("body"); body != "" {
		if err := json.Unmarshal([]byte(body), &args); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
	}

	write := func(payload string) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}

	switch name {
	case "all_news":
		write(`{"items":[{"title":"update","date":"2024-05-01"}]}`)
	case "single_image":
		switch args["name"] {
		case "", "vertigo":
			write(imageFixture("vertigo", "Vertigo", "209151", "alice"))
		case "mandala":
			write(imageFixture("mandala", "Mandala", "265404", "bob"))
		case "ghost":
			if f.serveGhost {
				write(imageFixture("ghost", "Ghost", "", "nobody"))
				return
			}
			http.Error(w, "no such image", http.StatusNotFound)
		default:
			http.Error(w, "no such image", http.StatusNotFound)
		}
	case "image_description":
		switch args["name"] {
		case "vertigo":
			write(`{"description":"a spiral into the deep"}`)
		case "mandala":
			write(`{"description":"concentric rings"}`)
		default:
			http.Error(w, "no such image", http.StatusNotFound)
		}
	case "all_images":
		write(fmt.Sprintf(`{"images":[%s,%s]}`,
			imageFixture("vertigo", "Vertigo", "209151", "alice"),
			imageFixture("mandala", "Mandala", "265404", "bob")))
	case "single_sketch":
		write(`{"name":"doodle","title":"Doodle","image_url":"/sk/doodle","thumb_url":"/skt/doodle"}`)
	case "all_sketches":
		write(`{"sketches":[{"name":"doodle","title":"Doodle","image_url":"/sk/doodle","thumb_url":"/skt/doodle"}]}`)
	case "full_episodic":
		write(episodicFixture)
	case "single_record":
		switch args["name"] {
		case "", "second":
			write(`{"chapter":"ii","name":"second","title":"Second","solved":true,"iteration":"0"}`)
		case "first":
			write(`{"chapter":"i","name":"first","title":"First","solved":true,"iteration":"209151"}`)
		default:
			http.Error(w, "no such record", http.StatusNotFound)
		}
	case "record_text":
		if text, ok := recordTextFixtures[args["name"]]; ok {
			write(text)
			return
		}
		http.Error(w, "no such record", http.StatusNotFound)
	case "domain_search":
		if args["type"] == "episodic-line" {
			write(`{"results":[{"type":"episodic-line",
				"record":{"chapter":"i","name":"first","title":"First","solved":true},
				"record_matched_text":"hello","record_line_index":0}]}`)
			return
		}
		write(fmt.Sprintf(`{"results":[{"type":"image","image":%s}]}`,
			imageFixture("vertigo", "Vertigo", "209151", "alice")))
	case "current_splash":
		write(`{"splash":{"text":"welcome","ordinal":7}}`)
	case "paged_splashes":
		write(fmt.Sprintf(`{"page":%s,"splashes":[{"text":"old","ordinal":1}]}`, args["page"]))
	case "submit_discord_splash":
		if strings.Contains(args["text"], "reject me") {
			http.Error(w, "denied", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	default:
		http.Error(w, "unknown endpoint", http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, extra ...Option) (*Client, *fakeUpstream, *fakeClock) {
	t.Helper()
	up := &fakeUpstream{t: t, calls: map[string]int{}}
	up.server = httptest.NewServer(http.HandlerFunc(up.handle))
	t.Cleanup(up.server.Close)

	clock := newFakeClock()
	opts := append([]Option{
		WithBaseURL(up.server.URL),
		WithHTTPClient(up.server.Client()),
		WithCacheDir(t.TempDir()),
		WithClock(clock.Now),
		WithLogger(zerolog.Nop()),
	}, extra...)

	client, err := New(opts...)
	require.NoError(t, err)
	return client, up, clock
}

func TestGetAllNewsServedFromCache(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	first, err := client.GetAllNews(ctx)
	require.NoError(t, err)
	second, err := client.GetAllNews(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, up.count("all_news"))
}

func TestGetAllNewsRefetchesAfterTTL(t *testing.T) {
	client, up, clock := newTestClient(t)
	ctx := context.Background()

	_, err := client.GetAllNews(ctx)
	require.NoError(t, err)

	clock.Advance(4*time.Hour + time.Minute)

	_, err = client.GetAllNews(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, up.count("all_news"))
}

func TestGetSingleImageLatestAlias(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	latest, err := client.GetSingleImage(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "vertigo", latest.Name)

	// The latest result is also cached under its real name.
	byName, err := client.GetSingleImage(ctx, "vertigo")
	require.NoError(t, err)
	assert.Equal(t, latest, byName)
	assert.Equal(t, 1, up.count("single_image"))

	// And the alias itself stays warm.
	_, err = client.GetSingleImage(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, up.count("single_image"))
}

func TestGetSingleImageLatestSentinel(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	// "(latest)" and "." are aliases for the empty name and share its
	// cache slot.
	img, err := client.GetSingleImage(ctx, "(latest)")
	require.NoError(t, err)
	assert.Equal(t, "vertigo", img.Name)

	_, err = client.GetSingleImage(ctx, ".")
	require.NoError(t, err)
	_, err = client.GetSingleImage(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, up.count("single_image"))
}

func TestGetSingleSketchLatestSentinel(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	sk, err := client.GetSingleSketch(ctx, "(latest)")
	require.NoError(t, err)
	assert.Equal(t, "doodle", sk.Name)

	_, err = client.GetSingleSketch(ctx, ".")
	require.NoError(t, err)
	assert.Equal(t, 1, up.count("single_sketch"))
}

func TestGetImageContents(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	ic, err := client.GetImageContents(ctx, "vertigo")
	require.NoError(t, err)
	assert.Equal(t, []byte("png:/image/vertigo"), ic.Image)
	assert.Equal(t, []byte("png:/thumb/vertigo"), ic.Thumbnail)

	_, err = client.GetImageContents(ctx, "vertigo")
	require.NoError(t, err)
	assert.Equal(t, 1, up.count("/image/vertigo"))
	assert.Equal(t, 1, up.count("/thumb/vertigo"))
}

func TestGetImageContentsLatestAlias(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	ic, err := client.GetImageContents(ctx, "(latest)")
	require.NoError(t, err)
	assert.Equal(t, []byte("png:/image/vertigo"), ic.Image)

	// Cached under both the alias and the resolved name.
	_, err = client.GetImageContents(ctx, "")
	require.NoError(t, err)
	_, err = client.GetImageContents(ctx, "vertigo")
	require.NoError(t, err)
	assert.Equal(t, 1, up.count("/image/vertigo"))
}

func TestGetSketchContents(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	ic, err := client.GetSketchContents(ctx, "doodle")
	require.NoError(t, err)
	assert.Equal(t, []byte("png:/sk/doodle"), ic.Image)
	assert.Equal(t, []byte("png:/skt/doodle"), ic.Thumbnail)

	_, err = client.GetSketchContents(ctx, "doodle")
	require.NoError(t, err)
	assert.Equal(t, 1, up.count("/sk/doodle"))
}

func TestGetSingleImageNotFound(t *testing.T) {
	client, _, _ := newTestClient(t)

	_, err := client.GetSingleImage(context.Background(), "nonexistent")

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "image", notFound.Kind)
	assert.Equal(t, "nonexistent", notFound.Name)
}

func TestGetAllImagesPopulatesSingleImageCache(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	images, err := client.GetAllImages(ctx)
	require.NoError(t, err)
	require.Len(t, images, 2)

	img, err := client.GetSingleImage(ctx, "mandala")
	require.NoError(t, err)
	assert.Equal(t, "Mandala", img.Title)
	assert.Equal(t, 0, up.count("single_image"))

	// The first listed image doubles as the latest.
	latest, err := client.GetSingleImage(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "vertigo", latest.Name)
	assert.Equal(t, 0, up.count("single_image"))

	_, err = client.GetAllImages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, up.count("all_images"))
}

func TestGetAllImagesDropsRemovedImages(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	up.serveGhost = true
	_, err := client.GetSingleImage(ctx, "ghost")
	require.NoError(t, err)

	// A list refresh replaces the per-image cache; ghost is not in the
	// listing, so the next lookup goes upstream again.
	_, err = client.GetAllImages(ctx)
	require.NoError(t, err)

	up.serveGhost = false
	_, err = client.GetSingleImage(ctx, "ghost")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, 2, up.count("single_image"))
}

func TestGetImageDescription(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	desc, err := client.GetImageDescription(ctx, "vertigo")
	require.NoError(t, err)
	assert.Equal(t, "vertigo", desc.Name)
	assert.Equal(t, "Vertigo", desc.Title)
	assert.Equal(t, "a spiral into the deep", desc.Description)

	_, err = client.GetImageDescription(ctx, "vertigo")
	require.NoError(t, err)
	assert.Equal(t, 1, up.count("image_description"))
}

func TestGetImageDescriptionRequiresName(t *testing.T) {
	client, _, _ := newTestClient(t)

	_, err := client.GetImageDescription(context.Background(), "")

	var paramErr *ParameterError
	require.ErrorAs(t, err, &paramErr)
	assert.True(t, paramErr.Missing)
}

func TestGetFullEpisodicFillsRecordCache(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	chapters, err := client.GetFullEpisodic(ctx)
	require.NoError(t, err)
	require.Len(t, chapters, 2)

	rec, err := client.GetSingleRecord(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, "First", rec.Title)
	assert.Equal(t, 0, up.count("single_record"))
}

func TestGetChapterLatestSentinel(t *testing.T) {
	client, _, _ := newTestClient(t)
	ctx := context.Background()

	ch, err := client.GetChapter(ctx, "(latest)")
	require.NoError(t, err)
	assert.Equal(t, "ii", ch.Name)

	ch, err = client.GetChapter(ctx, ".")
	require.NoError(t, err)
	assert.Equal(t, "ii", ch.Name)

	// Chapter labels match case-insensitively.
	ch, err = client.GetChapter(ctx, "I")
	require.NoError(t, err)
	assert.Equal(t, "i", ch.Name)
}

func TestGetChapterNotFound(t *testing.T) {
	client, _, _ := newTestClient(t)

	_, err := client.GetChapter(context.Background(), "xcix")

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "chapter", notFound.Kind)
}

func TestGetRecordTextLatest(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	rt, err := client.GetRecordText(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "second", rt.Name)
	assert.Equal(t, "Second", rt.Title)

	// Cached under both the alias and the resolved name.
	_, err = client.GetRecordText(ctx, "")
	require.NoError(t, err)
	_, err = client.GetRecordText(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, 1, up.count("record_text"))
}

func TestDomainSearchNormalizesCacheKey(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.DomainSearch(ctx, "Vertigo", SearchTypeImage)
	require.NoError(t, err)
	_, err = client.DomainSearch(ctx, "  vertigo ", SearchTypeImage)
	require.NoError(t, err)

	assert.Equal(t, 1, up.count("domain_search"))
}

func TestDomainSearchInvalidType(t *testing.T) {
	client, _, _ := newTestClient(t)

	_, err := client.DomainSearch(context.Background(), "x", "bogus")

	var typeErr *InvalidSearchTypeError
	require.ErrorAs(t, err, &typeErr)
}

func TestDomainSearchResolvesEpisodicLines(t *testing.T) {
	client, _, _ := newTestClient(t)

	results, err := client.DomainSearch(context.Background(), "hello", SearchTypeEpisodicLine)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].RecordLine)
	assert.Equal(t, "alice", results[0].RecordLine.Character)
}

func TestGetCurrentSplash(t *testing.T) {
	client, up, clock := newTestClient(t)
	ctx := context.Background()

	sp, err := client.GetCurrentSplash(ctx)
	require.NoError(t, err)
	assert.Equal(t, "welcome", sp.Text)

	// Splashes rotate quickly; the cache turns over after five minutes.
	clock.Advance(6 * time.Minute)
	_, err = client.GetCurrentSplash(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, up.count("current_splash"))
}

func TestGetPagedSplashes(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	page, err := client.GetPagedSplashes(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)

	_, err = client.GetPagedSplashes(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, up.count("paged_splashes"))
}

func TestSubmitSplashRejection(t *testing.T) {
	client, _, _ := newTestClient(t, WithSplashKey("sekrit"))
	ctx := context.Background()

	require.NoError(t, client.SubmitSplash(ctx, "a fine splash", "someone", "1234"))

	err := client.SubmitSplash(ctx, "reject me", "someone", "1234")
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
}

func TestPurgeRespectsCooldown(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.GetSingleImage(ctx, "vertigo")
	require.NoError(t, err)

	require.NoError(t, client.Purge(KindImages, false))

	// Purged: the next lookup goes upstream.
	_, err = client.GetSingleImage(ctx, "vertigo")
	require.NoError(t, err)
	assert.Equal(t, 2, up.count("single_image"))

	// A second purge inside the cooldown is rejected and the entry kept.
	err = client.Purge(KindImages, false)
	require.True(t, IsPurgeCooldown(err))
	_, err = client.GetSingleImage(ctx, "vertigo")
	require.NoError(t, err)
	assert.Equal(t, 2, up.count("single_image"))

	// Forcing bypasses the cooldown.
	require.NoError(t, client.Purge(KindImages, true))
}

func TestPurgeImagesDropsListing(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.GetAllImages(ctx)
	require.NoError(t, err)

	require.NoError(t, client.Purge(KindImages, false))

	_, err = client.GetAllImages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, up.count("all_images"))
}

func TestPurgeAllReportsCooldowns(t *testing.T) {
	client, _, _ := newTestClient(t)

	report, err := client.PurgeAll(nil, false)
	require.NoError(t, err)
	assert.Len(t, report.Applied, len(AllCacheKinds))
	assert.Empty(t, report.Rejected)

	// Second sweep: everything is inside its cooldown now.
	report, err = client.PurgeAll(nil, false)
	require.NoError(t, err)
	assert.Empty(t, report.Applied)
	assert.Len(t, report.Rejected, len(AllCacheKinds))
	for _, remaining := range report.Rejected {
		assert.Greater(t, remaining, time.Duration(0))
	}
}

func TestCacheStates(t *testing.T) {
	client, _, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.GetSingleImage(ctx, "vertigo")
	require.NoError(t, err)

	states := client.CacheStates()
	require.Len(t, states, len(AllCacheKinds))
	byKind := map[CacheKind]CacheInfo{}
	for _, info := range states {
		byKind[info.Kind] = info
	}
	assert.Equal(t, 1, byKind[KindImages].Entries)
	assert.Equal(t, 0, byKind[KindRecords].Entries)
}

func TestSaveAndReloadCaches(t *testing.T) {
	dir := t.TempDir()
	clock := newFakeClock()

	up := &fakeUpstream{t: t, calls: map[string]int{}}
	up.server = httptest.NewServer(http.HandlerFunc(up.handle))
	t.Cleanup(up.server.Close)

	base := []Option{
		WithBaseURL(up.server.URL),
		WithHTTPClient(up.server.Client()),
		WithCacheDir(dir),
		WithClock(clock.Now),
		WithLogger(zerolog.Nop()),
	}

	first, err := New(base...)
	require.NoError(t, err)
	_, err = first.GetAllNews(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.SaveCaches())

	second, err := New(base...)
	require.NoError(t, err)
	second.LoadCaches()

	_, err = second.GetAllNews(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, up.count("all_news"), "reloaded cache must serve without refetching")
}

func TestPurgeCooldownSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	clock := newFakeClock()

	up := &fakeUpstream{t: t, calls: map[string]int{}}
	up.server = httptest.NewServer(http.HandlerFunc(up.handle))
	t.Cleanup(up.server.Close)

	base := []Option{
		WithBaseURL(up.server.URL),
		WithHTTPClient(up.server.Client()),
		WithCacheDir(dir),
		WithClock(clock.Now),
		WithLogger(zerolog.Nop()),
	}

	first, err := New(base...)
	require.NoError(t, err)
	_, err = first.GetAllNews(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Purge(KindNews, false))
	require.NoError(t, first.SaveCaches())

	second, err := New(base...)
	require.NoError(t, err)
	second.LoadCaches()

	err = second.Purge(KindNews, false)
	require.True(t, IsPurgeCooldown(err), "cooldown must survive a restart")

	var cooldownErr *cache.PurgeCooldownError
	require.ErrorAs(t, err, &cooldownErr)
	assert.Equal(t, string(KindNews), cooldownErr.Kind)
}
