package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/speechlytics/speech-gateway/pkg/auth"
	"github.com/speechlytics/speech-gateway/pkg/domain/person"
	"github.com/speechlytics/speech-gateway/pkg/domain/speech"
	gwerr "github.com/speechlytics/speech-gateway/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope for API spans.
const tracerName = "github.com/speechlytics/speech-gateway/pkg/api"

// maxBodySize caps the accepted request body (1 MB).
const maxBodySize = 1 << 20

// RouteRequest bundles everything a sub-router needs for one call. It
// lives for the duration of a single request.
type RouteRequest struct {
	// Path is the sub-path after /api/<service>/, without a leading
	// slash. Empty for collection operations.
	Path string

	// Query maps query parameter names to values. Duplicate keys keep
	// the last value; segments without an equals sign are dropped.
	Query map[string]string

	// Method is the HTTP method of the request.
	Method string

	// Principal is the verified caller identity, or the anonymous
	// principal when no Authorization header was sent.
	Principal auth.Principal

	// Body is the request body as JSON. An unparseable or empty body is
	// represented as JSON null; body validity is the sub-router's
	// concern.
	Body json.RawMessage
}

// Router is the gateway's dispatch pipeline. It verifies the bearer
// token, splits the path into a service segment and a sub-path, and
// hands the request to the matching sub-router. Safe for concurrent
// use.
type Router struct {
	verifier *auth.Verifier
	persons  *personRoutes
	speeches *speechRoutes
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewRouter creates a Router over the given verifier and domain
// managers. logger may be nil, in which case the default logger is
// used.
func NewRouter(verifier *auth.Verifier, persons *person.Manager, speeches *speech.Manager, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		verifier: verifier,
		persons:  &personRoutes{manager: persons, logger: logger},
		speeches: &speechRoutes{manager: speeches, logger: logger},
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := rt.tracer.Start(r.Context(), "api.dispatch",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		))
	defer span.End()

	rt.logger.InfoContext(ctx, "request received", "method", r.Method, "path", r.URL.Path)

	result, httpErr := rt.dispatch(ctx, r)
	if httpErr != nil {
		span.SetStatus(codes.Error, httpErr.Tag)
		writeError(w, *httpErr)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// dispatch runs the full pipeline: path check, authentication, service
// selection, sub-router invocation.
func (rt *Router) dispatch(ctx context.Context, r *http.Request) (any, *HTTPError) {
	segments := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if segments[0] != "api" {
		return nil, &ErrInvalidRoute
	}

	principal, err := rt.verifier.Authenticate(ctx, r.Header.Get("Authorization"))
	if err != nil {
		if gwerr.IsAuthentication(err) {
			return nil, &ErrInvalidToken
		}
		rt.logger.ErrorContext(ctx, "authentication infrastructure failure", "error", err)
		return nil, &ErrInternal
	}

	if len(segments) < 2 {
		return nil, &ErrNotFound
	}

	req := &RouteRequest{
		Path:      strings.Join(segments[2:], "/"),
		Query:     parseQuery(r.URL.RawQuery),
		Method:    r.Method,
		Principal: principal,
		Body:      readBody(r),
	}

	switch segments[1] {
	case "person":
		return rt.persons.handle(ctx, req)
	case "speech":
		return rt.speeches.handle(ctx, req)
	default:
		return nil, &ErrNotFound
	}
}

// parseQuery splits a raw query string on & and each pair on the first
// equals sign. Pairs without an equals sign are dropped; duplicate keys
// keep the last value.
func parseQuery(raw string) map[string]string {
	params := make(map[string]string)
	for _, pair := range strings.Split(raw, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			continue
		}
		params[key] = value
	}
	return params
}

// readBody reads the request body as a JSON value, substituting null
// for anything unparseable.
func readBody(r *http.Request) json.RawMessage {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil || len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage("null")
	}
	return json.RawMessage(raw)
}

// requirePermission is the single gate every operation passes before
// touching a manager.
func requirePermission(p auth.Principal, perm auth.Permission) *HTTPError {
	if !p.HasPermission(perm) {
		return &ErrAccessDenied
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, ErrInternal)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, httpErr HTTPError) {
	body, err := json.Marshal(httpErr)
	if err != nil {
		http.Error(w, ErrInternal.Details, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpErr.Code)
	_, _ = w.Write(body)
}
