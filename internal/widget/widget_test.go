package widget

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gatepay/embedded-checkout/internal/bridge"
	"github.com/gatepay/embedded-checkout/internal/checkout"
	"github.com/gatepay/embedded-checkout/internal/common"
)

// fakeSurface hands the widget one side of a pipe and keeps the other for the
// test to impersonate the frame.
type fakeSurface struct {
	frameOrigin string

	mu       sync.Mutex
	rawURL   string
	frameEp  *bridge.Endpoint
	mounts   int32
	unmounts int32
}

func (f *fakeSurface) Mount(_ context.Context, rawURL, hostOrigin string) (*bridge.Endpoint, error) {
	origin := f.frameOrigin
	if origin == "" {
		origin = "https://checkout.test"
	}
	host, frame := bridge.Pipe(hostOrigin, origin, 8)
	f.mu.Lock()
	f.rawURL = rawURL
	f.frameEp = frame
	f.mu.Unlock()
	atomic.AddInt32(&f.mounts, 1)
	return host, nil
}

func (f *fakeSurface) Unmount() {
	atomic.AddInt32(&f.unmounts, 1)
}

func (f *fakeSurface) frame() *bridge.Endpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frameEp
}

func (f *fakeSurface) postFromFrame(t *testing.T, msgType string, data any) {
	t.Helper()
	msg, err := bridge.NewMessage(msgType, data)
	require.NoError(t, err)
	require.NoError(t, f.frame().Post(context.Background(), msg))
}

type callbackRecorder struct {
	successes chan bridge.SuccessPayload
	failures  chan bridge.FailurePayload
	closes    chan struct{}
}

func newRecorder() *callbackRecorder {
	return &callbackRecorder{
		successes: make(chan bridge.SuccessPayload, 4),
		failures:  make(chan bridge.FailurePayload, 4),
		closes:    make(chan struct{}, 4),
	}
}

func (r *callbackRecorder) options(key, orderID string) Options {
	return Options{
		Key:       key,
		OrderID:   orderID,
		Token:     "tok_1",
		OnSuccess: func(p bridge.SuccessPayload) { r.successes <- p },
		OnFailure: func(p bridge.FailurePayload) { r.failures <- p },
		OnClose:   func() { r.closes <- struct{}{} },
	}
}

func openWidget(t *testing.T, surface *fakeSurface, rec *callbackRecorder) *Widget {
	t.Helper()
	w, err := New(rec.options("key_test", "order_123"), Config{
		CheckoutURL: "https://checkout.test/checkout",
		Surface:     surface,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, w.Open(context.Background()))
	return w
}

func expectClose(t *testing.T, rec *callbackRecorder) {
	t.Helper()
	select {
	case <-rec.closes:
	case <-time.After(time.Second):
		t.Fatal("OnClose was not invoked")
	}
}

func TestNewValidation(t *testing.T) {
	surface := &fakeSurface{}
	base := Config{CheckoutURL: "https://checkout.test/checkout", Surface: surface}

	_, err := New(Options{OrderID: "order_123"}, base)
	require.Equal(t, common.CodeConfiguration, common.CodeOf(err))

	_, err = New(Options{Key: "key_test"}, base)
	require.Equal(t, common.CodeConfiguration, common.CodeOf(err))

	_, err = New(Options{Key: "k", OrderID: "o"}, Config{CheckoutURL: "https://checkout.test/checkout"})
	require.Equal(t, common.CodeConfiguration, common.CodeOf(err))

	_, err = New(Options{Key: "k", OrderID: "o"}, Config{CheckoutURL: "/checkout", Surface: surface})
	require.Equal(t, common.CodeConfiguration, common.CodeOf(err))
}

func TestOpenAddressesTheSurface(t *testing.T) {
	surface := &fakeSurface{}
	rec := newRecorder()
	w := openWidget(t, surface, rec)
	defer w.Close()

	require.True(t, w.IsOpen())
	params, err := checkout.ParseParams(surface.rawURL)
	require.NoError(t, err)
	require.Equal(t, "order_123", params.OrderID)
	require.Equal(t, "key_test", params.Key)
	require.Equal(t, "tok_1", params.Token)
	require.True(t, params.Embedded)

	// Re-opening an open widget must not mount a second surface.
	require.NoError(t, w.Open(context.Background()))
	require.EqualValues(t, 1, atomic.LoadInt32(&surface.mounts))
}

func TestSuccessMessageClosesWidget(t *testing.T) {
	surface := &fakeSurface{}
	rec := newRecorder()
	w := openWidget(t, surface, rec)

	frame := surface.frame()
	surface.postFromFrame(t, bridge.TypePaymentSuccess, bridge.SuccessPayload{PaymentID: "pay_1"})

	select {
	case p := <-rec.successes:
		require.Equal(t, "pay_1", p.PaymentID)
	case <-time.After(time.Second):
		t.Fatal("OnSuccess was not invoked")
	}
	expectClose(t, rec)
	require.False(t, w.IsOpen())
	require.EqualValues(t, 1, atomic.LoadInt32(&surface.unmounts))

	// Teardown tells the frame to cancel before unmounting.
	select {
	case d := <-frame.Receive():
		msg, err := d.Decode()
		require.NoError(t, err)
		require.Equal(t, bridge.TypeCloseModal, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("frame never received the close instruction")
	}
}

func TestFailureMessageKeepsWidgetOpen(t *testing.T) {
	surface := &fakeSurface{}
	rec := newRecorder()
	w := openWidget(t, surface, rec)
	defer w.Close()

	surface.postFromFrame(t, bridge.TypePaymentFailed, bridge.FailurePayload{PaymentID: "pay_1", Error: "Insufficient funds"})

	select {
	case p := <-rec.failures:
		require.Equal(t, "Insufficient funds", p.Error)
	case <-time.After(time.Second):
		t.Fatal("OnFailure was not invoked")
	}
	require.True(t, w.IsOpen())
	require.Empty(t, rec.closes)
}

func TestCloseModalFromFrame(t *testing.T) {
	surface := &fakeSurface{}
	rec := newRecorder()
	w := openWidget(t, surface, rec)

	surface.postFromFrame(t, bridge.TypeCloseModal, nil)
	expectClose(t, rec)
	require.False(t, w.IsOpen())
}

func TestMessagesFromUnlistedOriginAreDropped(t *testing.T) {
	surface := &fakeSurface{frameOrigin: "https://evil.test"}
	rec := newRecorder()
	w := openWidget(t, surface, rec)
	defer w.Close()

	surface.postFromFrame(t, bridge.TypePaymentSuccess, bridge.SuccessPayload{PaymentID: "pay_1"})

	select {
	case <-rec.successes:
		t.Fatal("message from unlisted origin must not be dispatched")
	case <-time.After(50 * time.Millisecond):
	}
	require.True(t, w.IsOpen())
}

func TestUnknownAndMalformedMessagesAreDropped(t *testing.T) {
	surface := &fakeSurface{}
	rec := newRecorder()
	w := openWidget(t, surface, rec)
	defer w.Close()

	surface.postFromFrame(t, "refund_issued", map[string]string{"id": "rf_1"})
	surface.postFromFrame(t, "", nil)
	w.handleMessage(bridge.Delivery{Origin: "https://checkout.test", Payload: []byte(`{"type":`)})

	select {
	case <-rec.successes:
		t.Fatal("malformed traffic must not be dispatched")
	case <-time.After(50 * time.Millisecond):
	}
	require.True(t, w.IsOpen())
}

func TestCloseIsIdempotent(t *testing.T) {
	surface := &fakeSurface{}
	rec := newRecorder()
	w := openWidget(t, surface, rec)

	w.Close()
	expectClose(t, rec)
	w.Close()
	expectClose(t, rec)
	require.EqualValues(t, 1, atomic.LoadInt32(&surface.unmounts))
}
