// Package checkout hosts the in-frame payment state machine: it owns form
// submission, order retrieval, and the settlement poll loop, and reports
// terminal outcomes to the host widget over the bridge.
package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/gatepay/embedded-checkout/internal/api"
	"github.com/gatepay/embedded-checkout/internal/bridge"
	"github.com/gatepay/embedded-checkout/internal/common"
	"github.com/gatepay/embedded-checkout/internal/poll"
)

// State is the machine's position in the checkout flow.
type State int

const (
	// StateIdle is the boot state; without surface parameters the form
	// accepts input but cannot take a payment.
	StateIdle State = iota
	// StateLoaded means the order view was retrieved.
	StateLoaded
	// StateSubmitting means a payment intent is in flight.
	StateSubmitting
	// StatePolling means the machine is awaiting asynchronous settlement.
	StatePolling
	// StateSucceeded is terminal: the payment settled.
	StateSucceeded
	// StateFailed is terminal: the payment failed or a status check broke.
	StateFailed
	// StateTimedOut is terminal: the poll budget ran out.
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StateSubmitting:
		return "submitting"
	case StatePolling:
		return "polling"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further automatic transition occurs.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut
}

// User-facing error messages for the failure modes the form can hit.
const (
	msgCreateFallback = "Failed to create payment"
	msgStatusCheck    = "Failed to check payment status"
	msgTimeout        = "Payment timeout"
	msgUnknown        = "Unknown error"
)

// Machine is the in-frame checkout state machine. One machine drives at most
// one poll loop at a time; all coordination with the host goes through the
// bridge endpoint as serialized messages.
type Machine struct {
	API    *api.Client
	Poller poll.Poller
	Logger zerolog.Logger

	bridgeEp *bridge.Endpoint
	validate *validator.Validate

	runCtx context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	params    Params
	order     api.Order
	hasOrder  bool
	loading   bool
	errMsg    string
	paymentID string
	polling   bool
}

// NewMachine wires a machine to its API client and bridge endpoint. The
// endpoint may be nil for a standalone (non-embedded) checkout.
func NewMachine(client *api.Client, ep *bridge.Endpoint, poller poll.Poller, logger zerolog.Logger) *Machine {
	return &Machine{
		API:      client,
		Poller:   poller,
		Logger:   logger,
		bridgeEp: ep,
		validate: validator.New(),
	}
}

// State returns the machine's current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Loading reports whether a submission or poll is in progress; the form
// disables its submit control while true.
func (m *Machine) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Err returns the current user-visible error message, if any.
func (m *Machine) Err() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errMsg
}

// Order returns the loaded order view and whether one was retrieved.
func (m *Machine) Order() (api.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order, m.hasOrder
}

// PaymentID returns the identifier of the submitted payment, if any.
func (m *Machine) PaymentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paymentID
}

// AmountDisplay renders the order amount in major units with two decimals, or
// "0.00" when no order is loaded.
func (m *Machine) AmountDisplay() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasOrder {
		return "0.00"
	}
	return FormatAmount(m.order.Amount)
}

// Run boots the machine from its surface URL: parse parameters, retrieve the
// order when addressed, then serve inbound bridge traffic until the session
// ends. A close_modal instruction from the host cancels the session, and with
// it any poll loop in progress.
func (m *Machine) Run(ctx context.Context, rawURL string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	params, err := ParseParams(rawURL)
	if err != nil {
		m.Logger.Warn().Err(err).Msg("unparseable surface url")
	}
	m.mu.Lock()
	m.runCtx = ctx
	m.cancel = cancel
	m.params = params
	m.mu.Unlock()

	if params.OrderID != "" && params.Key != "" {
		m.API.Key = params.Key
		m.API.CheckoutToken = params.Token
		m.LoadOrder(ctx, params.OrderID)
	}

	if m.bridgeEp == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-m.bridgeEp.Receive():
			if !ok {
				return
			}
			msg, err := d.Decode()
			if err != nil {
				continue
			}
			if msg.Type == bridge.TypeCloseModal {
				m.Logger.Debug().Msg("host requested close, cancelling session")
				return
			}
		}
	}
}

// Stop cancels the running session, halting any poll loop without firing a
// terminal callback.
func (m *Machine) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// LoadOrder retrieves the order view. Failure is deliberately non-fatal and
// logged only: the form stays usable for manual entry.
func (m *Machine) LoadOrder(ctx context.Context, orderID string) {
	order, err := m.API.GetOrder(ctx, orderID)
	if err != nil {
		m.Logger.Warn().Err(err).Str("order_id", orderID).Msg("failed to fetch order")
		return
	}
	m.mu.Lock()
	m.order = order
	m.hasOrder = true
	if m.state == StateIdle {
		m.state = StateLoaded
	}
	m.mu.Unlock()
}

// Submit validates the payment request, posts it, and on acceptance drives
// the settlement poll loop through to a terminal state. It returns the
// validation or submission error, or nil once a terminal state is reached.
func (m *Machine) Submit(ctx context.Context, req api.PaymentRequest) error {
	m.mu.Lock()
	if m.runCtx != nil {
		ctx = m.runCtx
	}
	m.mu.Unlock()

	if err := m.validate.Struct(req); err != nil {
		m.Logger.Debug().Err(err).Str("method", req.Method).Msg("payment request rejected")
		return common.ValidationError("missing or conflicting payment fields for method "+req.Method, err.Error())
	}

	m.mu.Lock()
	if m.polling {
		m.mu.Unlock()
		return common.ValidationError("a payment is already in progress", nil)
	}
	prev := m.state
	m.state = StateSubmitting
	m.loading = true
	m.errMsg = ""
	m.mu.Unlock()

	payment, err := m.API.CreatePayment(ctx, req)
	if err != nil {
		m.mu.Lock()
		m.state = prev
		m.loading = false
		m.errMsg = submissionErrorMessage(err)
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.paymentID = payment.ID
	m.state = StatePolling
	m.polling = true
	m.mu.Unlock()

	m.pollSettlement(ctx, payment.ID)
	return nil
}

// pollSettlement owns the machine's single poll loop: fixed cadence, bounded
// attempts, one terminal callback.
func (m *Machine) pollSettlement(ctx context.Context, paymentID string) {
	defer func() {
		m.mu.Lock()
		m.polling = false
		m.loading = false
		m.mu.Unlock()
	}()

	fetch := func(ctx context.Context) (any, error) {
		return m.API.GetPayment(ctx, paymentID)
	}
	classify := func(v any) poll.Outcome {
		payment, ok := v.(api.Payment)
		if !ok {
			return poll.Continue()
		}
		switch payment.Status {
		case api.StatusSuccess:
			return poll.Succeed(payment)
		case api.StatusFailed:
			return poll.Fail(payment)
		default:
			return poll.Continue()
		}
	}

	m.Poller.Run(ctx, fetch, classify, poll.Callbacks{
		OnSucceed: func(v any) {
			payment := v.(api.Payment)
			m.mu.Lock()
			m.state = StateSucceeded
			m.mu.Unlock()
			m.emit(bridge.TypePaymentSuccess, bridge.SuccessPayload{PaymentID: payment.ID})
		},
		OnFail: func(v any) {
			payment := v.(api.Payment)
			desc := strings.TrimSpace(payment.ErrorDescription)
			if desc == "" {
				desc = msgUnknown
			}
			m.mu.Lock()
			m.state = StateFailed
			m.errMsg = "Payment failed: " + desc
			m.mu.Unlock()
			m.emit(bridge.TypePaymentFailed, bridge.FailurePayload{PaymentID: payment.ID, Error: payment.ErrorDescription})
		},
		OnTimeout: func() {
			m.mu.Lock()
			m.state = StateTimedOut
			m.errMsg = msgTimeout
			m.mu.Unlock()
			// The host is deliberately not told about timeouts: the
			// three-message contract stays minimal.
		},
		OnError: func(err error) {
			m.Logger.Warn().Err(err).Str("payment_id", paymentID).Msg("status check failed")
			m.mu.Lock()
			m.state = StateFailed
			m.errMsg = msgStatusCheck
			m.mu.Unlock()
		},
	})
}

// emit posts a message to the host. Emission only happens for embedded
// sessions; a standalone checkout has nobody to talk to.
func (m *Machine) emit(msgType string, data any) {
	m.mu.Lock()
	embedded := m.params.Embedded
	m.mu.Unlock()
	if !embedded || m.bridgeEp == nil {
		return
	}
	msg, err := bridge.NewMessage(msgType, data)
	if err != nil {
		m.Logger.Error().Err(err).Str("type", msgType).Msg("encode bridge message")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.bridgeEp.Post(ctx, msg); err != nil {
		m.Logger.Warn().Err(err).Str("type", msgType).Msg("post bridge message")
	}
}

func submissionErrorMessage(err error) string {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case common.CodeAPI:
			if strings.TrimSpace(appErr.Message) != "" {
				return appErr.Message
			}
			return msgCreateFallback
		case common.CodeNetwork:
			return appErr.Message
		}
	}
	return msgCreateFallback
}
