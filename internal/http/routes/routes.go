// Package routes exposes the cached API client over HTTP for bot frontends
// and operators: entity lookups, client-side searches, and cache
// administration (inspection, purging, gathering, saving).
package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/mcawesome123/fractalrhomb/cache"
	"github.com/mcawesome123/fractalrhomb/fractalthorns"
	"github.com/mcawesome123/fractalrhomb/internal/format"
	appmw "github.com/mcawesome123/fractalrhomb/internal/http/middleware"
)

type Server struct {
	Router *chi.Mux
	API    *fractalthorns.Client
	Log    zerolog.Logger
}

type ServerOptions struct {
	API        *fractalthorns.Client
	Log        zerolog.Logger
	AdminToken string
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(opts.Log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, API: opts.API, Log: opts.Log}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			opts.Log.Error().Err(err).Msg("writing health check response")
		}
	})

	r.Get("/news", s.handleNews)
	r.Get("/image", s.handleImage)
	r.Get("/image/contents", s.handleImageContents)
	r.Get("/image/description", s.handleImageDescription)
	r.Get("/images", s.handleImages)
	r.Get("/sketch", s.handleSketch)
	r.Get("/sketch/contents", s.handleSketchContents)
	r.Get("/sketches", s.handleSketches)
	r.Get("/episodic", s.handleEpisodic)
	r.Get("/chapter", s.handleChapter)
	r.Get("/record", s.handleRecord)
	r.Get("/record/text", s.handleRecordText)
	r.Get("/search", s.handleDomainSearch)
	r.Get("/search/images", s.handleSearchImages)
	r.Get("/search/records", s.handleSearchRecords)
	r.Get("/search/lines", s.handleSearchLines)
	r.Get("/splash", s.handleSplash)
	r.Get("/splashes", s.handleSplashPage)

	r.Group(func(pr chi.Router) {
		pr.Use(appmw.RequireToken(opts.AdminToken))
		pr.Post("/splash", s.handleSubmitSplash)
		pr.Get("/admin/cache", s.handleCacheStates)
		pr.Post("/admin/purge", s.handlePurge)
		pr.Post("/admin/gather/record-contents", s.handleGatherRecordTexts)
		pr.Post("/admin/gather/image-descriptions", s.handleGatherImageDescriptions)
		pr.Post("/admin/save", s.handleSave)
	})

	return s
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encoding response")
	}
}

// wantsMarkdown reports whether the caller asked for the Discord-markdown
// rendering instead of JSON.
func wantsMarkdown(r *http.Request) bool {
	return r.URL.Query().Get("format") == "discord"
}

func (s *Server) respondText(w http.ResponseWriter, r *http.Request, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(text)); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("writing response")
	}
}

// respondError maps client errors onto HTTP statuses. Upstream failures
// surface as gateway errors so callers can tell them from local problems.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound   *fractalthorns.NotFoundError
		cooldown   *cache.PurgeCooldownError
		ungathered *fractalthorns.ItemsUngatheredError
		param      *fractalthorns.ParameterError
		searchType *fractalthorns.InvalidSearchTypeError
		submission *fractalthorns.SubmissionError
		apiErr     *fractalthorns.APIError
		transport  *fractalthorns.TransportError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &cooldown):
		w.Header().Set("Retry-After", strconv.Itoa(int(cooldown.Remaining.Seconds())+1))
		status = http.StatusTooManyRequests
	case errors.As(err, &ungathered):
		status = http.StatusConflict
	case errors.As(err, &param), errors.As(err, &searchType), errors.As(err, &submission):
		status = http.StatusBadRequest
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
	case errors.As(err, &transport):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	news, err := s.API.GetAllNews(r.Context())
	if err == nil && wantsMarkdown(r) {
		rendered := make([]string, 0, len(news))
		for _, e := range news {
			rendered = append(rendered, format.NewsEntry(e))
		}
		s.respondText(w, r, strings.Join(rendered, "\n\n"))
		return
	}
	s.respond(w, r, news, err)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.API.GetSingleImage(r.Context(), r.URL.Query().Get("name"))
	if err == nil && wantsMarkdown(r) {
		s.respondText(w, r, format.Image(img, s.API.BaseURL()))
		return
	}
	s.respond(w, r, img, err)
}

// respondContents writes image or thumbnail bytes with a sniffed content
// type.
func (s *Server) respondContents(w http.ResponseWriter, r *http.Request, ic fractalthorns.ImageContents, err error) {
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	data := ic.Image
	if r.URL.Query().Get("thumb") == "true" {
		data = ic.Thumbnail
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	if _, err := w.Write(data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("writing contents response")
	}
}

func (s *Server) handleImageContents(w http.ResponseWriter, r *http.Request) {
	ic, err := s.API.GetImageContents(r.Context(), r.URL.Query().Get("name"))
	s.respondContents(w, r, ic, err)
}

func (s *Server) handleSketchContents(w http.ResponseWriter, r *http.Request) {
	ic, err := s.API.GetSketchContents(r.Context(), r.URL.Query().Get("name"))
	s.respondContents(w, r, ic, err)
}

func (s *Server) handleImageDescription(w http.ResponseWriter, r *http.Request) {
	desc, err := s.API.GetImageDescription(r.Context(), r.URL.Query().Get("name"))
	if err == nil && wantsMarkdown(r) {
		s.respondText(w, r, format.ImageDescription(desc))
		return
	}
	s.respond(w, r, desc, err)
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	images, err := s.API.GetAllImages(r.Context())
	s.respond(w, r, images, err)
}

func (s *Server) handleSketch(w http.ResponseWriter, r *http.Request) {
	sk, err := s.API.GetSingleSketch(r.Context(), r.URL.Query().Get("name"))
	if err == nil && wantsMarkdown(r) {
		s.respondText(w, r, format.Sketch(sk, s.API.BaseURL()))
		return
	}
	s.respond(w, r, sk, err)
}

func (s *Server) handleSketches(w http.ResponseWriter, r *http.Request) {
	sketches, err := s.API.GetAllSketches(r.Context())
	s.respond(w, r, sketches, err)
}

func (s *Server) handleEpisodic(w http.ResponseWriter, r *http.Request) {
	chapters, err := s.API.GetFullEpisodic(r.Context())
	s.respond(w, r, chapters, err)
}

func (s *Server) handleChapter(w http.ResponseWriter, r *http.Request) {
	ch, err := s.API.GetChapter(r.Context(), r.URL.Query().Get("name"))
	s.respond(w, r, ch, err)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.API.GetSingleRecord(r.Context(), r.URL.Query().Get("name"))
	if err == nil && wantsMarkdown(r) {
		s.respondText(w, r, format.Record(rec, s.API.BaseURL()))
		return
	}
	s.respond(w, r, rec, err)
}

func (s *Server) handleRecordText(w http.ResponseWriter, r *http.Request) {
	rt, err := s.API.GetRecordText(r.Context(), r.URL.Query().Get("name"))
	if err == nil && wantsMarkdown(r) {
		s.respondText(w, r, format.RecordText(rt, s.API.BaseURL()))
		return
	}
	s.respond(w, r, rt, err)
}

func (s *Server) handleDomainSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results, err := s.API.DomainSearch(r.Context(), q.Get("term"), q.Get("type"))
	s.respond(w, r, results, err)
}

// boolFlag parses an optional tri-state query value: absent means "don't
// filter on this".
func boolFlag(q string) *bool {
	if q == "" {
		return nil
	}
	v := q == "true" || q == "1" || q == "yes"
	return &v
}

// cachedOnly reports whether the caller opted out of automatic gathering
// with gather=false; a cold cache then answers 409 instead of sweeping
// every record or description upstream.
func cachedOnly(r *http.Request) bool {
	return r.URL.Query().Get("gather") == "false"
}

func (s *Server) handleSearchImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	images, err := s.API.SearchImages(r.Context(), fractalthorns.ImageFilter{
		Name:           q.Get("name"),
		Description:    q.Get("description"),
		Canon:          q.Get("canon"),
		Character:      q.Get("character"),
		HasDescription: boolFlag(q.Get("has_description")),
		CachedOnly:     cachedOnly(r),
	})
	s.respond(w, r, images, err)
}

func (s *Server) handleSearchRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := s.API.SearchRecords(r.Context(), fractalthorns.RecordFilter{
		Name:       q.Get("name"),
		Chapter:    q.Get("chapter"),
		Iteration:  q.Get("iteration"),
		Language:   q.Get("language"),
		Character:  q.Get("character"),
		Requested:  boolFlag(q.Get("requested")),
		CachedOnly: cachedOnly(r),
	})
	if err == nil && wantsMarkdown(r) {
		rendered := make([]string, 0, len(records))
		for _, rec := range records {
			rendered = append(rendered, format.RecordInline(rec, s.API.BaseURL()))
		}
		s.respondText(w, r, strings.Join(rendered, "\n"))
		return
	}
	s.respond(w, r, records, err)
}

func (s *Server) handleSearchLines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lines, err := s.API.SearchRecordLines(r.Context(), fractalthorns.LineFilter{
		Text:       q.Get("text"),
		Language:   q.Get("language"),
		Character:  q.Get("character"),
		Emphasis:   q.Get("emphasis"),
		Name:       q.Get("name"),
		Chapter:    q.Get("chapter"),
		Iteration:  q.Get("iteration"),
		Requested:  boolFlag(q.Get("requested")),
		CachedOnly: cachedOnly(r),
	})
	s.respond(w, r, lines, err)
}

func (s *Server) handleSplash(w http.ResponseWriter, r *http.Request) {
	sp, err := s.API.GetCurrentSplash(r.Context())
	if err == nil && wantsMarkdown(r) {
		s.respondText(w, r, format.Splash(sp))
		return
	}
	s.respond(w, r, sp, err)
}

func (s *Server) handleSplashPage(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		s.respondError(w, r, &fractalthorns.ParameterError{Endpoint: "splashes", Name: "page", Missing: true})
		return
	}
	sp, err := s.API.GetPagedSplashes(r.Context(), page)
	if err == nil && wantsMarkdown(r) {
		s.respondText(w, r, format.SplashPage(sp))
		return
	}
	s.respond(w, r, sp, err)
}

type submitSplashRequest struct {
	Text        string `json:"text"`
	DisplayName string `json:"display_name"`
	UserID      string `json:"user_id"`
}

func (s *Server) handleSubmitSplash(w http.ResponseWriter, r *http.Request) {
	var req submitSplashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text required", http.StatusBadRequest)
		return
	}
	if err := s.API.SubmitSplash(r.Context(), req.Text, req.DisplayName, req.UserID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCacheStates(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, s.API.CacheStates(), nil)
}

type purgeRequest struct {
	Kinds []fractalthorns.CacheKind `json:"kinds,omitempty"`
	Force bool                      `json:"force,omitempty"`
}

type purgeResponse struct {
	Applied  []fractalthorns.CacheKind `json:"applied"`
	Rejected map[string]string         `json:"rejected,omitempty"`
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	var req purgeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	report, err := s.API.PurgeAll(req.Kinds, req.Force)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	resp := purgeResponse{Applied: report.Applied}
	if resp.Applied == nil {
		resp.Applied = []fractalthorns.CacheKind{}
	}
	if len(report.Rejected) > 0 {
		resp.Rejected = make(map[string]string, len(report.Rejected))
		for kind, remaining := range report.Rejected {
			resp.Rejected[string(kind)] = remaining.Round(time.Second).String()
		}
	}
	s.respond(w, r, resp, nil)
}

func (s *Server) handleGatherRecordTexts(w http.ResponseWriter, r *http.Request) {
	texts, err := s.API.GatherFullRecordTexts(r.Context())
	s.respond(w, r, map[string]int{"gathered": len(texts)}, err)
}

func (s *Server) handleGatherImageDescriptions(w http.ResponseWriter, r *http.Request) {
	descs, err := s.API.GatherFullImageDescriptions(r.Context())
	s.respond(w, r, map[string]int{"gathered": len(descs)}, err)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.API.SaveCaches(); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
