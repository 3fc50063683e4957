package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	gwerr "github.com/speechlytics/speech-gateway/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope for auth spans.
const tracerName = "github.com/speechlytics/speech-gateway/pkg/auth"

// maxTokenSize caps the accepted length of a bearer token (8 KB).
const maxTokenSize = 8192

// VerifierConfig configures a [Verifier].
type VerifierConfig struct {
	// JWKSURL is the identity provider's JWKS endpoint.
	JWKSURL string `json:"jwks_url" yaml:"jwks_url" env:"JWKS_URL" required:"true"`

	// Audience is the expected "aud" claim. Tokens issued for another
	// audience are rejected.
	Audience string `json:"audience" yaml:"audience" env:"AUDIENCE" envDefault:"speech-analytics-front-end"`

	// CacheTTL is how long fetched JWKS keys are served before a refresh.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" env:"CACHE_TTL" envDefault:"1h"`

	// FetchTimeout bounds a single JWKS fetch when no HTTPClient is
	// provided.
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout" env:"FETCH_TIMEOUT" envDefault:"10s"`

	// ClockSkew is the tolerated clock difference with the token issuer.
	ClockSkew time.Duration `json:"clock_skew" yaml:"clock_skew" env:"CLOCK_SKEW" envDefault:"30s"`

	// HTTPClient overrides the client used to fetch the JWKS document.
	// If nil, an [http.Client] with FetchTimeout is used.
	HTTPClient HTTPClient `json:"-" yaml:"-"`
}

// Validate checks the configuration for logical correctness.
func (c *VerifierConfig) Validate() error {
	if c.JWKSURL == "" {
		return gwerr.New(gwerr.CodeValidation, "auth: JWKS URL must not be empty")
	}
	if c.CacheTTL < 0 {
		return gwerr.New(gwerr.CodeValidation, "auth: cache TTL must be non-negative")
	}
	if c.ClockSkew < 0 {
		return gwerr.New(gwerr.CodeValidation, "auth: clock skew must be non-negative")
	}
	return nil
}

// tokenClaims is the claim set carried by platform tokens. Permissions
// use the closed [Permission] type, so parsing fails on unknown strings.
type tokenClaims struct {
	jwt.RegisteredClaims
	UserID      string       `json:"user_id,omitempty"`
	Username    string       `json:"username,omitempty"`
	Permissions []Permission `json:"permissions"`
}

// Verifier resolves Authorization headers to principals. It is safe for
// concurrent use.
type Verifier struct {
	config VerifierConfig
	keys   *KeyCache
	tracer trace.Tracer
}

// NewVerifier creates a Verifier from the given configuration.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.FetchTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = time.Hour
	}

	return &Verifier{
		config: cfg,
		keys:   NewKeyCache(cfg.JWKSURL, ttl, client),
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Authenticate resolves the Authorization header value to a Principal.
//
// An empty header yields the anonymous principal. A non-empty header
// must be "Bearer <token>" with a valid RS256 token for the configured
// audience; every token failure collapses to a single
// [gwerr.CodeAuthenticationInvalid] error so the caller cannot probe
// which check rejected it. A JWKS outage (with no cached keys) is the
// one distinct failure, reported as [gwerr.CodeUnavailableDependency].
func (v *Verifier) Authenticate(ctx context.Context, authHeader string) (Principal, error) {
	ctx, span := v.tracer.Start(ctx, "auth.Authenticate")
	defer span.End()

	if authHeader == "" {
		span.SetAttributes(attribute.Bool("auth.anonymous", true))
		return Anonymous(), nil
	}
	span.SetAttributes(attribute.Bool("auth.anonymous", false))

	tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || tokenStr == "" {
		return Principal{}, v.reject(span, "authorization header is not a bearer token")
	}
	if len(tokenStr) > maxTokenSize {
		return Principal{}, v.reject(span, "token exceeds maximum size")
	}

	var claims tokenClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, gwerr.New(gwerr.CodeAuthenticationInvalid, "auth: token header missing kid")
		}
		return v.keys.Key(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.config.Audience),
		jwt.WithLeeway(v.config.ClockSkew),
	)
	if err != nil {
		// Keys unreachable is an infrastructure failure, not a bad token.
		if keysErr := v.keysUnavailable(ctx); keysErr != nil {
			span.RecordError(keysErr)
			span.SetStatus(codes.Error, keysErr.Error())
			return Principal{}, keysErr
		}
		return Principal{}, v.reject(span, "token verification failed")
	}

	principal := NewPrincipal(claims.UserID, claims.Username, claims.Permissions)
	if principal.UserID != "" {
		span.SetAttributes(attribute.String("auth.user_id", principal.UserID))
	}
	return principal, nil
}

// keysUnavailable reports whether the key cache currently cannot serve
// any keys, which turns a verification failure into an availability
// failure instead of a token rejection.
func (v *Verifier) keysUnavailable(ctx context.Context) error {
	if _, err := v.keys.Keys(ctx); err != nil {
		return gwerr.Wrap(err, gwerr.CodeUnavailableDependency,
			"auth: identity provider keys are unavailable")
	}
	return nil
}

// reject records the real reason on the span for operators and returns
// the uniform invalid-token error to the caller.
func (v *Verifier) reject(span trace.Span, reason string) error {
	err := gwerr.Newf(gwerr.CodeAuthenticationInvalid, "auth: %s", reason)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return gwerr.New(gwerr.CodeAuthenticationInvalid, "auth: token is invalid")
}
