package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gatepay/embedded-checkout/internal/resilience"
)

func TestDeliverSignsPayload(t *testing.T) {
	var gotBody []byte
	var gotSignature, gotDeliveryID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get(SignatureHeader)
		gotDeliveryID = r.Header.Get("X-Delivery-ID")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := Sender{
		HTTP:   &resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1},
		Secret: testSecret,
		Logger: zerolog.Nop(),
	}
	env := Envelope{Event: "payment.success", Timestamp: time.Now().Unix(), Data: json.RawMessage(`{"payment_id":"pay_1"}`)}

	status, err := sender.Deliver(context.Background(), srv.URL, env)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, gotDeliveryID)
	require.True(t, Verify(gotBody, gotSignature, testSecret))

	var received Envelope
	require.NoError(t, json.Unmarshal(gotBody, &received))
	require.Equal(t, env.Event, received.Event)
}

func TestDeliverReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender := Sender{
		HTTP:   &resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1},
		Secret: "whsec_other",
		Logger: zerolog.Nop(),
	}
	status, err := sender.Deliver(context.Background(), srv.URL, Envelope{Event: "payment.failed", Timestamp: 1})
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestDeliverRejectsBadEndpoint(t *testing.T) {
	sender := Sender{HTTP: &resilience.HTTPClient{Client: http.DefaultClient}, Secret: testSecret, Logger: zerolog.Nop()}
	_, err := sender.Deliver(context.Background(), "ftp://example.com/hook", Envelope{Event: "x"})
	require.Error(t, err)
}
