package renewal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/coupon-groups/internal/model"
)

const renewPath = "/keys/renew"

// IdempotencyHeader carries the journal id so the remote side can drop replays.
const IdempotencyHeader = "Idempotency-Key"

// ErrRejected is returned when the remote service refuses a renewal with a 4xx status.
// Such failures are not retried.
var ErrRejected = errors.New("renewal rejected")

// Client calls the remote key renewal service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTracer sets the tracer used for client spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithBackOff sets the retry schedule. The function is called once per Renew.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = f }
}

// NewClient creates a Client for baseURL. Each attempt is bounded by timeout
// and failed attempts are retried up to maxRetries times.
func NewClient(baseURL string, timeout time.Duration, maxRetries uint64, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		tracer:     otel.Tracer("coupon-groups/renewal"),
		maxRetries: maxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Renew asks the remote cluster to set the key's expiry to req.NewExpiryTime.
// The target is absolute, so a replayed request leaves the key unchanged.
func (c *Client) Renew(ctx context.Context, req model.RenewRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal renew request: %w", err)
	}

	ctx, span := c.tracer.Start(ctx, "renewal.Renew", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("key.client_id", req.ClientID),
		attribute.String("key.server_id", req.ServerID),
		attribute.String("renewal.idempotency_key", req.IdempotencyKey),
	))
	defer span.End()

	attempt := 0
	op := func() error {
		attempt++
		err := c.post(ctx, req.IdempotencyKey, body)
		if err != nil && !errors.Is(err, ErrRejected) {
			log.Warn().
				Err(err).
				Int("attempt", attempt).
				Str("client_id", req.ClientID).
				Str("idempotency_key", req.IdempotencyKey).
				Msg("renewal attempt failed")
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.Int("renewal.attempts", attempt))
	return nil
}

func (c *Client) post(ctx context.Context, idempotencyKey string, body []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+renewPath, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(IdempotencyHeader, idempotencyKey)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("renewal service returned status %s", resp.Status)
	default:
		return backoff.Permanent(fmt.Errorf("%w: status %s", ErrRejected, resp.Status))
	}
}
