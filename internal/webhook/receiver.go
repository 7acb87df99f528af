package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gatepay/embedded-checkout/internal/common"
	"github.com/gatepay/embedded-checkout/internal/obs"
)

// ReplayProtector guards against processing the same delivery twice within a TTL.
type ReplayProtector interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisReplay implements ReplayProtector with a Redis SETNX.
type RedisReplay struct {
	Client *redis.Client
	Prefix string
}

// Acquire claims the key for the TTL. It returns false when another delivery
// already holds it.
func (r RedisReplay) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.Client == nil {
		return true, nil
	}
	return r.Client.SetNX(ctx, r.Prefix+key, "1", ttl).Result()
}

// Receiver is the merchant-side webhook endpoint: it verifies the payload
// signature before trusting anything in the body.
type Receiver struct {
	Secret    string
	Replay    ReplayProtector
	ReplayTTL time.Duration
	Logger    zerolog.Logger
}

// Handle processes one webhook delivery. Signature mismatch is rejected with
// 401 before the body is interpreted; verified deliveries return 200.
func (rc Receiver) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}

	signature := r.Header.Get(SignatureHeader)
	if signature == "" || !Verify(body, signature, rc.Secret) {
		rc.countVerification("mismatch")
		rc.Logger.Warn().Str("remote_addr", common.ClientIP(r)).Msg("webhook signature mismatch")
		common.JSONError(w, http.StatusUnauthorized, common.CodeInvalidSignature, "signature verification failed", nil)
		return
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "payload is not a webhook envelope", nil)
		return
	}

	if rc.Replay != nil && rc.ReplayTTL > 0 {
		ok, err := rc.Replay.Acquire(r.Context(), "wh:"+common.Sha256Hex(string(body)), rc.ReplayTTL)
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !ok {
			rc.countVerification("replay")
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook", nil)
			return
		}
	}

	rc.countVerification("ok")
	rc.Logger.Info().
		Str("event", env.Event).
		Time("occurred_at", time.Unix(env.Timestamp, 0).UTC()).
		RawJSON("data", dataOrEmpty(env.Data)).
		Msg("webhook verified")

	common.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rc Receiver) countVerification(result string) {
	if obs.WebhookVerificationsTotal != nil {
		obs.WebhookVerificationsTotal.WithLabelValues(result).Inc()
	}
}

func dataOrEmpty(data json.RawMessage) []byte {
	if len(data) == 0 {
		return []byte("{}")
	}
	return data
}
