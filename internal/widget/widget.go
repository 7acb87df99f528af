// Package widget is the host-page side of the embedded checkout: it mounts
// the isolated surface, relays the three-message protocol to caller-supplied
// callbacks, and tears the surface down again. The inbound channel is treated
// as untrusted: only messages from allow-listed origins are dispatched.
package widget

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatepay/embedded-checkout/internal/bridge"
	"github.com/gatepay/embedded-checkout/internal/checkout"
	"github.com/gatepay/embedded-checkout/internal/common"
	"github.com/gatepay/embedded-checkout/internal/obs"
)

// DefaultHostOrigin identifies the host side on outbound messages when the
// embedding page has no origin of its own.
const DefaultHostOrigin = "https://merchant.invalid"

// Surface is the isolated checkout view the widget controls. Mount returns
// the host's endpoint of the message pipe.
type Surface interface {
	Mount(ctx context.Context, rawURL, hostOrigin string) (*bridge.Endpoint, error)
	Unmount()
}

// Options configure a widget. Key and OrderID are required; callbacks default
// to no-ops. Options are immutable once the widget is open.
type Options struct {
	Key     string
	OrderID string
	// Token is the short-lived order-scoped checkout token issued at order
	// creation, forwarded to the surface through its address.
	Token string

	OnSuccess func(bridge.SuccessPayload)
	OnFailure func(bridge.FailurePayload)
	OnClose   func()
}

// Widget owns at most one live isolated surface at a time.
type Widget struct {
	opts        Options
	checkoutURL string
	hostOrigin  string
	allowed     map[string]struct{}
	surface     Surface
	logger      zerolog.Logger

	mu   sync.Mutex
	open bool
	ep   *bridge.Endpoint
}

// Config carries widget wiring that is not per-order.
type Config struct {
	// CheckoutURL is the checkout entry point the surface is addressed at.
	CheckoutURL string
	// HostOrigin stamps outbound messages; defaults to DefaultHostOrigin.
	HostOrigin string
	// ExtraAllowedOrigins extends the inbound allow-list beyond the
	// checkout endpoint's own origin.
	ExtraAllowedOrigins []string
	Surface             Surface
	Logger              zerolog.Logger
}

// New validates options and wiring. Missing key or order id fails
// construction immediately.
func New(opts Options, cfg Config) (*Widget, error) {
	if strings.TrimSpace(opts.Key) == "" || strings.TrimSpace(opts.OrderID) == "" {
		return nil, common.ConfigurationError("widget requires key and orderId options")
	}
	if cfg.Surface == nil {
		return nil, common.ConfigurationError("widget requires a surface")
	}
	checkoutOrigin := checkout.Origin(cfg.CheckoutURL)
	if checkoutOrigin == "" {
		return nil, common.ConfigurationError("widget requires an absolute checkout url")
	}
	if opts.OnSuccess == nil {
		opts.OnSuccess = func(bridge.SuccessPayload) {}
	}
	if opts.OnFailure == nil {
		opts.OnFailure = func(bridge.FailurePayload) {}
	}
	if opts.OnClose == nil {
		opts.OnClose = func() {}
	}
	hostOrigin := strings.TrimSpace(cfg.HostOrigin)
	if hostOrigin == "" {
		hostOrigin = DefaultHostOrigin
	}
	allowed := map[string]struct{}{checkoutOrigin: {}}
	for _, origin := range cfg.ExtraAllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			allowed[trimmed] = struct{}{}
		}
	}
	return &Widget{
		opts:        opts,
		checkoutURL: cfg.CheckoutURL,
		hostOrigin:  hostOrigin,
		allowed:     allowed,
		surface:     cfg.Surface,
		logger:      cfg.Logger,
	}, nil
}

// Open mounts the isolated surface addressed with the order id, key and
// embedded flag, and starts listening for inbound messages. Opening an
// already-open widget is a no-op.
func (w *Widget) Open(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.open {
		return nil
	}

	rawURL, err := checkout.SurfaceURL(w.checkoutURL, checkout.Params{
		OrderID:  w.opts.OrderID,
		Key:      w.opts.Key,
		Token:    w.opts.Token,
		Embedded: true,
	})
	if err != nil {
		return err
	}
	ep, err := w.surface.Mount(ctx, rawURL, w.hostOrigin)
	if err != nil {
		return err
	}
	w.ep = ep
	w.open = true

	go func() {
		for d := range ep.Receive() {
			w.handleMessage(d)
		}
	}()
	w.logger.Debug().Str("order_id", w.opts.OrderID).Msg("widget opened")
	return nil
}

// IsOpen reports whether a surface is currently mounted.
func (w *Widget) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// Close tears down the surface and invokes OnClose. Before unmounting it
// posts a close_modal instruction inward so the frame cancels its own poll
// loop instead of relying on destruction. Closing an already-closed widget
// does nothing beyond re-invoking OnClose.
func (w *Widget) Close() {
	w.mu.Lock()
	wasOpen := w.open
	ep := w.ep
	w.open = false
	w.ep = nil
	w.mu.Unlock()

	if wasOpen {
		msg, _ := bridge.NewMessage(bridge.TypeCloseModal, nil)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := ep.Post(ctx, msg); err != nil {
			w.logger.Debug().Err(err).Msg("close instruction not delivered")
		}
		cancel()
		w.surface.Unmount()
		ep.Close()
		w.countSession("closed")
		w.logger.Debug().Str("order_id", w.opts.OrderID).Msg("widget closed")
	}
	w.opts.OnClose()
}

// handleMessage dispatches one inbound delivery. The origin guard comes
// first: traffic from anywhere but the checkout endpoint is dropped before
// the payload is even decoded. Unknown or malformed messages are dropped
// silently.
func (w *Widget) handleMessage(d bridge.Delivery) {
	if _, ok := w.allowed[d.Origin]; !ok {
		w.countMessage("unknown", "dropped_origin")
		w.logger.Warn().Str("origin", d.Origin).Msg("dropped message from unlisted origin")
		return
	}
	msg, err := d.Decode()
	if err != nil || strings.TrimSpace(msg.Type) == "" {
		w.countMessage("unknown", "dropped_malformed")
		return
	}

	switch msg.Type {
	case bridge.TypePaymentSuccess:
		var payload bridge.SuccessPayload
		_ = json.Unmarshal(msg.Data, &payload)
		w.countMessage(msg.Type, "dispatched")
		w.countSession("success")
		w.opts.OnSuccess(payload)
		w.Close()
	case bridge.TypePaymentFailed:
		var payload bridge.FailurePayload
		_ = json.Unmarshal(msg.Data, &payload)
		w.countMessage(msg.Type, "dispatched")
		w.countSession("failed")
		// Surface stays open so the user can retry or read the error.
		w.opts.OnFailure(payload)
	case bridge.TypeCloseModal:
		w.countMessage(msg.Type, "dispatched")
		w.Close()
	default:
		w.countMessage(msg.Type, "dropped_unknown")
	}
}

func (w *Widget) countMessage(msgType, result string) {
	if obs.BridgeMessagesTotal != nil {
		obs.BridgeMessagesTotal.WithLabelValues(msgType, result).Inc()
	}
}

func (w *Widget) countSession(result string) {
	if obs.WidgetSessionsTotal != nil {
		obs.WidgetSessionsTotal.WithLabelValues(result).Inc()
	}
}
