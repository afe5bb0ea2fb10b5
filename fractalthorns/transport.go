package fractalthorns

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultBaseURL is the production website root.
	DefaultBaseURL = "https://fractalthorns.com"

	apiPath = "/api/v1"

	// DefaultTimeout bounds a single upstream request.
	DefaultTimeout = 30 * time.Second

	// DefaultConnLimit caps concurrent connections to the remote host so a
	// burst of commands cannot trip its abuse protection.
	DefaultConnLimit = 6

	splashKeyHeader = "X-Fractalthorns-Api-Key"
)

// Version identification for the User-Agent header.
const (
	VersionFull  = "0.10.0"
	VersionLong  = "0.10.0"
	VersionShort = "0.10"
)

// DefaultUserAgent is used when no identification header is configured.
const DefaultUserAgent = "Fractal-RHOMB/{VERSION_SHORT}"

// ExpandUserAgent substitutes version placeholders in an identification
// header template.
func ExpandUserAgent(template string) string {
	r := strings.NewReplacer(
		"{VERSION_FULL}", VersionFull,
		"{VERSION_LONG}", VersionLong,
		"{VERSION_SHORT}", VersionShort,
	)
	return r.Replace(template)
}

// Endpoint names accepted by the transport.
const (
	epAllNews          = "all_news"
	epSingleImage      = "single_image"
	epImageDescription = "image_description"
	epAllImages        = "all_images"
	epSingleSketch     = "single_sketch"
	epAllSketches      = "all_sketches"
	epFullEpisodic     = "full_episodic"
	epSingleRecord     = "single_record"
	epRecordText       = "record_text"
	epDomainSearch     = "domain_search"
	epCurrentSplash    = "current_splash"
	epPagedSplashes    = "paged_splashes"
	epSubmitSplash     = "submit_discord_splash"
)

type argument struct {
	name     string
	optional bool
}

type endpoint struct {
	method string
	args   []argument
}

// endpoints is the table of requests the upstream API allows. Argument
// validation happens against this table before any network activity.
var endpoints = map[string]endpoint{
	epAllNews:          {method: http.MethodGet},
	epSingleImage:      {method: http.MethodGet, args: []argument{{name: "name", optional: true}}},
	epImageDescription: {method: http.MethodGet, args: []argument{{name: "name"}}},
	epAllImages:        {method: http.MethodGet},
	epSingleSketch:     {method: http.MethodGet, args: []argument{{name: "name", optional: true}}},
	epAllSketches:      {method: http.MethodGet},
	epFullEpisodic:     {method: http.MethodGet},
	epSingleRecord:     {method: http.MethodGet, args: []argument{{name: "name", optional: true}}},
	epRecordText:       {method: http.MethodGet, args: []argument{{name: "name", optional: true}}},
	epDomainSearch:     {method: http.MethodGet, args: []argument{{name: "term"}, {name: "type"}}},
	epCurrentSplash:    {method: http.MethodGet},
	epPagedSplashes:    {method: http.MethodGet, args: []argument{{name: "page"}}},
	epSubmitSplash: {method: http.MethodPost, args: []argument{
		{name: "text"},
		{name: "submitter_display_name"},
		{name: "submitter_user_id"},
	}},
}

// supportedMethods are the HTTP verbs the transport knows how to issue. An
// endpoint declared with anything else fails with UnknownRequestTypeError
// before touching the network.
var supportedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
	http.MethodPatch:   true,
}

// Transport issues requests against the upstream API. It attaches the
// identification header, enforces the connection cap and request timeout,
// and reports transport-level failures. It never retries.
type Transport struct {
	http      *http.Client
	baseURL   *url.URL
	userAgent string
	splashKey string
	sem       *semaphore.Weighted
	log       zerolog.Logger
}

// NewTransport creates a transport for the given base URL. The userAgent
// should already have version placeholders expanded.
func NewTransport(httpClient *http.Client, baseURL, userAgent, splashKey string, connLimit int, log zerolog.Logger) (*Transport, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if connLimit <= 0 {
		connLimit = DefaultConnLimit
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if userAgent == "" {
		userAgent = ExpandUserAgent(DefaultUserAgent)
	}
	return &Transport{
		http:      httpClient,
		baseURL:   u,
		userAgent: userAgent,
		splashKey: splashKey,
		sem:       semaphore.NewWeighted(int64(connLimit)),
		log:       log,
	}, nil
}

// BaseURL returns the configured website root.
func (t *Transport) BaseURL() string { return t.baseURL.String() }

func (t *Transport) checkArguments(name string, ep endpoint, params map[string]string) error {
	for _, arg := range ep.args {
		if _, ok := params[arg.name]; !ok && !arg.optional {
			return &ParameterError{Endpoint: name, Name: arg.name, Missing: true}
		}
	}
	for given := range params {
		known := false
		for _, arg := range ep.args {
			if arg.name == given {
				known = true
				break
			}
		}
		if !known {
			return &ParameterError{Endpoint: name, Name: given}
		}
	}
	return nil
}

// call performs a request at one of the predefined endpoints. Arguments are
// JSON-encoded into the body query parameter, as the upstream API expects.
// headers may be nil.
func (t *Transport) call(ctx context.Context, name string, params map[string]string, headers map[string]string) ([]byte, error) {
	ep, ok := endpoints[name]
	if !ok {
		return nil, &ParameterError{Endpoint: name, Name: name, Missing: true}
	}
	if !supportedMethods[ep.method] {
		return nil, &UnknownRequestTypeError{Method: ep.method}
	}
	if err := t.checkArguments(name, ep, params); err != nil {
		return nil, err
	}

	body := "{}"
	if len(params) > 0 {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		body = string(encoded)
	}

	u := *t.baseURL
	u.Path = path.Join(u.Path, apiPath, name)
	u.RawQuery = url.Values{"body": {body}}.Encode()

	req, err := http.NewRequestWithContext(ctx, ep.method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if err := t.sem.Acquire(ctx, 1); err != nil {
		return nil, &TransportError{Endpoint: name, Err: err}
	}
	defer t.sem.Release(1)

	reqID := uuid.NewString()
	start := time.Now()

	resp, err := t.http.Do(req)
	if err != nil {
		t.log.Warn().Str("request_id", reqID).Str("endpoint", name).Err(err).Msg("request failed")
		return nil, &TransportError{Endpoint: name, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: name, Err: err}
	}

	t.log.Debug().
		Str("request_id", reqID).
		Str("method", ep.method).
		Str("endpoint", name).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request complete")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Endpoint: name, StatusCode: resp.StatusCode, Body: string(payload)}
	}

	return payload, nil
}

// download fetches a non-API asset (image or thumbnail data). Relative
// URLs, as the API returns them, are resolved against the website root.
// Downloads share the connection cap and identification header with API
// requests.
func (t *Transport) download(ctx context.Context, rawURL string) ([]byte, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return nil, &TransportError{Endpoint: rawURL, Err: err}
	}
	u := t.baseURL.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", t.userAgent)

	if err := t.sem.Acquire(ctx, 1); err != nil {
		return nil, &TransportError{Endpoint: rawURL, Err: err}
	}
	defer t.sem.Release(1)

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: rawURL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: rawURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Endpoint: rawURL, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// get issues a GET-style call with no extra headers.
func (t *Transport) get(ctx context.Context, name string, params map[string]string) ([]byte, error) {
	return t.call(ctx, name, params, nil)
}

// submit issues the splash submission, attaching the secret key header. An
// upstream 400 is translated to a user-safe SubmissionError: the reason may
// concern another user's submission and is not surfaced.
func (t *Transport) submit(ctx context.Context, params map[string]string) error {
	headers := map[string]string{}
	if t.splashKey != "" {
		headers[splashKeyHeader] = t.splashKey
	}
	_, err := t.call(ctx, epSubmitSplash, params, headers)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
		return &SubmissionError{}
	}
	return err
}
