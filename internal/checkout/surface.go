package checkout

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gatepay/embedded-checkout/internal/api"
	"github.com/gatepay/embedded-checkout/internal/bridge"
	"github.com/gatepay/embedded-checkout/internal/poll"
	"github.com/gatepay/embedded-checkout/internal/resilience"
)

// EmbeddedSurface is the in-process isolated surface: mounting it boots a
// checkout machine as an independent task behind a message pipe. The host
// side only ever sees the bridge endpoint the mount returns.
type EmbeddedSurface struct {
	APIBaseURL string
	HTTP       *resilience.HTTPClient
	Poller     poll.Poller
	Logger     zerolog.Logger

	mu      sync.Mutex
	machine *Machine
	hostEp  *bridge.Endpoint
	frameEp *bridge.Endpoint
	cancel  context.CancelFunc
}

// Mount parses the surface URL, starts the frame task, and hands the host its
// endpoint of the pipe. At most one mount is live at a time.
func (s *EmbeddedSurface) Mount(ctx context.Context, rawURL, hostOrigin string) (*bridge.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine != nil {
		s.unmountLocked()
	}

	hostEp, frameEp := bridge.Pipe(hostOrigin, Origin(rawURL), 8)
	client := &api.Client{
		BaseURL: s.APIBaseURL,
		HTTP:    s.HTTP,
		Logger:  s.Logger,
	}
	machine := NewMachine(client, frameEp, s.Poller, s.Logger)

	frameCtx, cancel := context.WithCancel(ctx)
	s.machine = machine
	s.hostEp = hostEp
	s.frameEp = frameEp
	s.cancel = cancel

	go func() {
		machine.Run(frameCtx, rawURL)
		frameEp.Close()
	}()

	return hostEp, nil
}

// Unmount destroys the frame task. The frame context is cancelled, which
// halts any in-flight poll loop, and the frame endpoint closes so the host's
// listener observes end of stream.
func (s *EmbeddedSurface) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unmountLocked()
}

func (s *EmbeddedSurface) unmountLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.hostEp != nil {
		s.hostEp.Close()
		s.hostEp = nil
	}
	s.machine = nil
	s.frameEp = nil
}

// Machine exposes the frame-side machine for user interaction (form input and
// submission happen inside the frame, never through the host).
func (s *EmbeddedSurface) Machine() *Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine
}
