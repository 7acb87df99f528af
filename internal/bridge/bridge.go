// Package bridge carries the message contract between the host widget and the
// embedded checkout surface. The two sides never share memory: every message
// crosses the boundary as serialized JSON tagged with the sender's origin.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Message types understood by the host widget. Anything else is dropped.
const (
	TypePaymentSuccess = "payment_success"
	TypePaymentFailed  = "payment_failed"
	TypeCloseModal     = "close_modal"
)

// ErrClosed is returned when posting on a closed endpoint.
var ErrClosed = errors.New("bridge: endpoint closed")

// SuccessPayload rides on payment_success messages.
type SuccessPayload struct {
	PaymentID string `json:"paymentId"`
}

// FailurePayload rides on payment_failed messages.
type FailurePayload struct {
	PaymentID string `json:"paymentId"`
	Error     string `json:"error,omitempty"`
}

// Message is the envelope exchanged across the isolation boundary.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds a Message with the payload serialized in place.
func NewMessage(msgType string, data any) (Message, error) {
	msg := Message{Type: msgType}
	if data == nil {
		return msg, nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("bridge: encode message data: %w", err)
	}
	msg.Data = encoded
	return msg, nil
}

// Delivery is a received message together with the sender's origin. The
// payload stays in wire form until the receiver decodes it.
type Delivery struct {
	Origin  string
	Payload []byte
}

// Decode deserializes the delivery payload into a Message.
func (d Delivery) Decode() (Message, error) {
	var msg Message
	if err := json.Unmarshal(d.Payload, &msg); err != nil {
		return Message{}, fmt.Errorf("bridge: decode delivery: %w", err)
	}
	return msg, nil
}

// Endpoint is one side of a message pipe. Post serializes outbound messages;
// Receive yields inbound deliveries until the peer closes its side.
type Endpoint struct {
	origin string

	mu     sync.Mutex
	closed bool
	out    chan<- Delivery
	in     <-chan Delivery
}

// Pipe builds two linked endpoints. Messages posted on one side arrive on the
// other, tagged with the poster's origin. The buffer bounds how many
// undelivered messages each direction may hold.
func Pipe(hostOrigin, frameOrigin string, buffer int) (host, frame *Endpoint) {
	if buffer <= 0 {
		buffer = 8
	}
	toFrame := make(chan Delivery, buffer)
	toHost := make(chan Delivery, buffer)
	host = &Endpoint{origin: hostOrigin, out: toFrame, in: toHost}
	frame = &Endpoint{origin: frameOrigin, out: toHost, in: toFrame}
	return host, frame
}

// Origin returns the origin this endpoint stamps on outbound messages.
func (e *Endpoint) Origin() string {
	return e.origin
}

// Post serializes the message and hands it to the peer. It fails with
// ErrClosed after Close, and honours context cancellation while the pipe
// buffer is full.
func (e *Endpoint) Post(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bridge: encode message: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	select {
	case e.out <- Delivery{Origin: e.origin, Payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive exposes the inbound side of the pipe. The channel closes when the
// peer closes its endpoint.
func (e *Endpoint) Receive() <-chan Delivery {
	return e.in
}

// Close tears down the outbound direction. Receivers on the peer side observe
// a closed channel; subsequent Post calls fail with ErrClosed. Close is
// idempotent.
func (e *Endpoint) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.out)
}
