// Package minio provides the S3-compatible object store client used by
// the speech gateway to resolve speech recordings to presigned download
// URLs. It wraps minio-go with OpenTelemetry tracing and structured
// error handling.
//
// Create a client with [NewClient] for production use, or [NewFromStore]
// to inject a mock store in tests.
package minio

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	gwerr "github.com/speechlytics/speech-gateway/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope for this package.
const tracerName = "github.com/speechlytics/speech-gateway/pkg/clients/minio"

// ObjectStore is the subset of the minio-go API the gateway uses. It is
// satisfied by [*minio.Client] and by mocks in tests.
type ObjectStore interface {
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
}

var _ ObjectStore = (*minio.Client)(nil)

// Client resolves media object names to presigned URLs against a single
// configured bucket. It is safe for concurrent use.
type Client struct {
	store  ObjectStore
	config *Config
	tracer trace.Tracer
}

// NewClient validates cfg, creates the underlying minio client, and
// probes connectivity with a BucketExists call.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, gwerr.Wrap(err, gwerr.CodeValidation,
			"minio: invalid configuration")
	}

	store, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey.Value(), ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, gwerr.Wrap(err, gwerr.CodeInternal,
			"minio: failed to create client")
	}

	// The bucket does not need to exist for the probe; a successful API
	// call confirms the server is reachable and credentials are valid.
	if _, err := store.BucketExists(ctx, cfg.Bucket); err != nil {
		return nil, gwerr.Wrap(err, gwerr.CodeUnavailableDependency,
			"minio: failed to connect to server")
	}

	return &Client{
		store:  store,
		config: &cfg,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// NewFromStore creates a Client over a pre-existing [ObjectStore],
// typically a mock in tests. cfg is stored but not validated; nil yields
// a zero-value config.
func NewFromStore(store ObjectStore, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Client{
		store:  store,
		config: cfg,
		tracer: otel.Tracer(tracerName),
	}
}

// PresignedMediaURL returns a time-limited download URL for the media
// object. A missing object maps to [gwerr.CodeNotFound].
func (c *Client) PresignedMediaURL(ctx context.Context, object string) (string, error) {
	ctx, span := c.startSpan(ctx, "PresignedMediaURL",
		fmt.Sprintf("PRESIGN GET %s/%s", c.config.Bucket, object))

	if object == "" {
		err := gwerr.New(gwerr.CodeNotFound, "minio: speech has no media object")
		finishSpan(span, err)
		return "", err
	}

	if _, err := c.store.StatObject(ctx, c.config.Bucket, object, minio.StatObjectOptions{}); err != nil {
		finishSpan(span, err)
		return "", classifyError(err, "minio: media object lookup failed")
	}

	expiry := c.config.URLExpiry
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}

	u, err := c.store.PresignedGetObject(ctx, c.config.Bucket, object, expiry, nil)
	finishSpan(span, err)
	if err != nil {
		return "", classifyError(err, "minio: presigned URL generation failed")
	}
	return u.String(), nil
}

// Health probes the server with a BucketExists call, applying
// [DefaultHealthTimeout] when the caller's context has no deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "HEAD "+c.config.Bucket)

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	_, err := c.store.BucketExists(ctx, c.config.Bucket)
	finishSpan(span, err)
	if err != nil {
		return gwerr.Wrap(err, gwerr.CodeUnavailableDependency,
			"minio: health check failed")
	}
	return nil
}

// Store returns the underlying [ObjectStore] for operations the Client
// does not wrap.
func (c *Client) Store() ObjectStore {
	return c.store
}

func (c *Client) startSpan(ctx context.Context, operationName, statement string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "minio."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "minio"),
		attribute.String("db.name", c.config.Bucket),
		attribute.String("db.statement", statement),
	)
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// classifyError maps a storage error to a structured error: a missing
// key to [gwerr.CodeNotFound], a deadline to [gwerr.CodeTimeoutDatabase],
// and the rest to [gwerr.CodeInternalDatabase].
func classifyError(err error, message string) *gwerr.Error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return gwerr.Wrap(err, gwerr.CodeNotFound, message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return gwerr.Wrap(err, gwerr.CodeTimeoutDatabase, message)
	}
	return gwerr.Wrap(err, gwerr.CodeInternalDatabase, message)
}
