// Command checkout runs one embedded checkout session end to end against the
// payment API: mount the widget, submit a payment, poll to a terminal state,
// and report the outcome.
package main

import (
	"context"
	"flag"
	"sync"
	"time"

	"github.com/gatepay/embedded-checkout/internal/api"
	"github.com/gatepay/embedded-checkout/internal/bridge"
	"github.com/gatepay/embedded-checkout/internal/checkout"
	"github.com/gatepay/embedded-checkout/internal/config"
	"github.com/gatepay/embedded-checkout/internal/obs"
	"github.com/gatepay/embedded-checkout/internal/poll"
	"github.com/gatepay/embedded-checkout/internal/token"
	"github.com/gatepay/embedded-checkout/internal/widget"
)

func main() {
	orderID := flag.String("order", "", "order to check out")
	method := flag.String("method", api.MethodUPI, "payment method (upi or card)")
	vpa := flag.String("vpa", "", "virtual payment address for upi")
	cardNumber := flag.String("card-number", "", "card number for card payments")
	cardExpiry := flag.String("card-expiry", "", "card expiry for card payments")
	cardCVV := flag.String("card-cvv", "", "card cvv for card payments")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	if *orderID == "" {
		logger.Fatal().Msg("-order is required")
	}
	if cfg.APIKey == "" {
		logger.Fatal().Msg("API_KEY is required")
	}

	checkoutToken := cfg.CheckoutToken
	if checkoutToken == "" && cfg.TokenSecret != "" {
		checkoutToken, err = token.Mint([]byte(cfg.TokenSecret), *orderID, cfg.TokenTTL, time.Now())
		if err != nil {
			logger.Fatal().Err(err).Msg("mint checkout token")
		}
	}
	if checkoutToken == "" {
		logger.Warn().Msg("no checkout token configured, API calls will carry only the public key")
	}

	surface := &checkout.EmbeddedSurface{
		APIBaseURL: cfg.APIBaseURL,
		HTTP:       api.NewHTTPClient(cfg.HTTPTimeout),
		Poller: poll.Poller{
			Interval:    cfg.PollInterval,
			MaxAttempts: cfg.PollMaxAttempts,
			Logger:      logger,
		},
		Logger: logger,
	}

	done := make(chan struct{})
	var closeOnce sync.Once

	w, err := widget.New(widget.Options{
		Key:     cfg.APIKey,
		OrderID: *orderID,
		Token:   checkoutToken,
		OnSuccess: func(p bridge.SuccessPayload) {
			logger.Info().Str("payment_id", p.PaymentID).Msg("payment succeeded")
		},
		OnFailure: func(p bridge.FailurePayload) {
			logger.Error().Str("payment_id", p.PaymentID).Str("error", p.Error).Msg("payment failed")
		},
		OnClose: func() {
			closeOnce.Do(func() { close(done) })
		},
	}, widget.Config{
		CheckoutURL:         cfg.CheckoutURL,
		ExtraAllowedOrigins: cfg.AllowedOrigins,
		Surface:             surface,
		Logger:              logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("configure widget")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Open(ctx); err != nil {
		logger.Fatal().Err(err).Msg("open widget")
	}

	machine := surface.Machine()
	if machine == nil {
		logger.Fatal().Msg("checkout surface did not mount")
	}
	if order, ok := machine.Order(); ok {
		logger.Info().
			Str("order_id", order.ID).
			Str("amount", machine.AmountDisplay()).
			Str("currency", order.Currency).
			Msg("order loaded")
	}

	req := api.PaymentRequest{
		OrderID:    *orderID,
		Method:     *method,
		VPA:        *vpa,
		CardNumber: *cardNumber,
		CardExpiry: *cardExpiry,
		CardCVV:    *cardCVV,
	}
	if err := machine.Submit(ctx, req); err != nil {
		logger.Error().Err(err).Str("message", machine.Err()).Msg("submission rejected")
		w.Close()
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		w.Close()
		<-done
	}

	logger.Info().
		Stringer("state", machine.State()).
		Str("payment_id", machine.PaymentID()).
		Str("message", machine.Err()).
		Msg("checkout session finished")
}
