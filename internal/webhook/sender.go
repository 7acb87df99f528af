package webhook

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gatepay/embedded-checkout/internal/obs"
	"github.com/gatepay/embedded-checkout/internal/resilience"
)

// Sender signs and delivers webhook envelopes to a merchant endpoint. Retry
// and backoff come from the underlying resilient HTTP client.
type Sender struct {
	HTTP   *resilience.HTTPClient
	Secret string
	Logger zerolog.Logger
}

// Deliver posts the envelope to the endpoint with its signature attached and
// returns the response status code.
func (s Sender) Deliver(ctx context.Context, endpoint string, env Envelope) (int, error) {
	if s.HTTP == nil {
		return 0, errors.New("webhook: http client not configured")
	}
	if err := validateEndpoint(endpoint); err != nil {
		return 0, err
	}

	ctx, span := otel.Tracer("webhook.Sender").Start(ctx, "Sender.Deliver")
	defer span.End()
	span.SetAttributes(attribute.String("webhook.event", env.Event))

	body, signature, err := SignEnvelope(env, s.Secret)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "gatepay-webhooks/1.0")
	req.Header.Set("X-Delivery-ID", uuid.NewString())
	req.Header.Set(SignatureHeader, signature)

	start := time.Now()
	resp, err := s.HTTP.Do(ctx, req)
	if err != nil {
		s.record("error", start)
		span.RecordError(err)
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	result := "delivered"
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result = "rejected"
	}
	s.record(result, start)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	s.Logger.Info().Str("event", env.Event).Int("status", resp.StatusCode).Str("result", result).Msg("webhook delivery")
	return resp.StatusCode, nil
}

func (s Sender) record(result string, start time.Time) {
	if obs.WebhookDeliveriesTotal != nil {
		obs.WebhookDeliveriesTotal.WithLabelValues(result).Inc()
	}
	if obs.WebhookAttemptLatency != nil {
		obs.WebhookAttemptLatency.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(start)))
	}
}

func validateEndpoint(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return errors.New("webhook: invalid endpoint url")
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook: endpoint must be http or https")
	}
	if parsed.Host == "" {
		return errors.New("webhook: endpoint must include host")
	}
	return nil
}
