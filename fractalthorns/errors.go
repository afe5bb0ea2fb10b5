package fractalthorns

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mcawesome123/fractalrhomb/cache"
)

// TransportError reports a network-level failure: connection refused, DNS
// failure, or a request timeout. It never wraps an HTTP status response.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError reports a non-2xx HTTP response from the upstream API.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
}

// UnknownRequestTypeError indicates an endpoint is declared with an HTTP
// method the transport does not support. It is a programmer error and is
// raised before any network activity.
type UnknownRequestTypeError struct {
	Method string
}

func (e *UnknownRequestTypeError) Error() string {
	return fmt.Sprintf("unknown request type: %s", e.Method)
}

// ParameterError indicates a missing required or unexpected request
// argument. Raised before any network activity.
type ParameterError struct {
	Endpoint string
	Name     string
	Missing  bool
}

func (e *ParameterError) Error() string {
	if e.Missing {
		return fmt.Sprintf("%s: missing required request argument: %s", e.Endpoint, e.Name)
	}
	return fmt.Sprintf("%s: unexpected request argument: %s", e.Endpoint, e.Name)
}

// NotFoundError indicates upstream confirmed the named entity does not
// exist.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// DecodeError indicates an upstream payload is missing a required field or
// is not valid JSON for the expected record type.
type DecodeError struct {
	Kind  string
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decoding %s: missing required field %q", e.Kind, e.Field)
	}
	return fmt.Sprintf("decoding %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ItemsUngatheredError indicates a composite result was requested before
// its constituent items were gathered into the cache.
type ItemsUngatheredError struct {
	Kind string
}

func (e *ItemsUngatheredError) Error() string {
	return fmt.Sprintf("the full %s are not cached; gather them first", e.Kind)
}

// InvalidSearchTypeError indicates an unsupported domain search type.
type InvalidSearchTypeError struct {
	Type string
}

func (e *InvalidSearchTypeError) Error() string {
	return fmt.Sprintf("invalid search type: %q", e.Type)
}

// SubmissionError is the user-safe translation of an upstream rejection of
// a splash submission. The upstream reason is withheld since it may concern
// another user's data.
type SubmissionError struct{}

func (e *SubmissionError) Error() string {
	return "the splash submission was not accepted"
}

// notFound converts an upstream 404 into a NotFoundError for the given
// entity kind; any other error passes through unchanged.
func notFound(err error, kind, name string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return &NotFoundError{Kind: kind, Name: name}
	}
	return err
}

// IsPurgeCooldown reports whether err is a purge cooldown rejection.
func IsPurgeCooldown(err error) bool {
	var cooldown *cache.PurgeCooldownError
	return errors.As(err, &cooldown)
}
