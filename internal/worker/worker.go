// Package worker implements the per-client worker process described in
// section 4.2: it owns exactly one backend integration instance and
// relays requests between the router's back-end socket and that
// integration.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pebbe/zmq4"

	"github.com/biometria-se/async-messaged/internal/message"
	"github.com/biometria-se/async-messaged/internal/mqintegration"
	"github.com/biometria-se/async-messaged/internal/sbintegration"
	"github.com/biometria-se/async-messaged/internal/transform"
)

// readySentinel is the single-byte frame a fresh worker sends to
// register with the router, per section 6.
const readySentinel = "\x01"

const backendAddress = "inproc://workers"
const pollInterval = 100 * time.Millisecond

// Worker owns one integration instance for the lifetime of the client
// it is affiliated with.
type Worker struct {
	Identity string

	logger       *slog.Logger
	transformers *transform.Registry
	socket       *zmq4.Socket
	integration  message.Integration
	abort        <-chan struct{}
}

// New connects a REQ socket to the router's back-end and announces
// readiness. Callers run Worker.Run in its own goroutine.
func New(logger *slog.Logger, transformers *transform.Registry, abort <-chan struct{}) (*Worker, error) {
	socket, err := zmq4.NewSocket(zmq4.REQ)
	if err != nil {
		return nil, fmt.Errorf("creating worker socket: %w", err)
	}

	identity := uuid.New().String()
	if err := socket.SetIdentity(identity); err != nil {
		return nil, fmt.Errorf("setting worker identity: %w", err)
	}
	if err := socket.Connect(backendAddress); err != nil {
		return nil, fmt.Errorf("connecting worker socket: %w", err)
	}

	if _, err := socket.Send(readySentinel, 0); err != nil {
		return nil, fmt.Errorf("sending ready sentinel: %w", err)
	}

	return &Worker{
		Identity:     identity,
		logger:       logger.With(slog.String("worker", identity)),
		transformers: transformers,
		socket:       socket,
		abort:        abort,
	}, nil
}

// Run loops receiving request frames until the abort channel closes or
// the integration signals disconnection, matching section 4.2's
// per-iteration algorithm.
func (w *Worker) Run(ctx context.Context) {
	defer w.shutdown()

	for {
		select {
		case <-w.abort:
			return
		case <-ctx.Done():
			return
		default:
		}

		frames, err := w.socket.RecvMessageBytes(zmq4.DONTWAIT)
		if err != nil {
			if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
				time.Sleep(pollInterval)
				continue
			}
			w.logger.Warn("receive failed", "error", err)
			return
		}

		// The router's backend ROUTER addresses replies by the envelope
		// frames that precede the request body (its own REQ delimiter
		// strips the routing frame, leaving the client's request_id and
		// the empty separator). That envelope must travel back unchanged
		// or the reply cannot be routed to the right client.
		envelope := frames[:len(frames)-1]

		resp := w.handleFrames(frames)

		payload, err := message.Marshal(resp)
		if err != nil {
			w.logger.Error("failed to marshal response", "error", err)
			continue
		}
		reply := make([][]byte, 0, len(envelope)+1)
		reply = append(reply, envelope...)
		reply = append(reply, payload)
		if _, err := w.socket.SendMessage(reply); err != nil {
			w.logger.Error("failed to send response", "error", err)
			return
		}

		if resp.Action == "DISC" || resp.Action == "DISCONNECT" {
			return
		}
	}
}

func (w *Worker) handleFrames(frames [][]byte) *message.Response {
	var req message.Request
	if len(frames) == 0 {
		return &message.Response{Success: false, Message: "empty request frame"}
	}
	if err := json.Unmarshal(frames[len(frames)-1], &req); err != nil {
		return &message.Response{Success: false, Message: fmt.Sprintf("malformed request: %v", err)}
	}

	if req.Worker != "" && req.Worker != w.Identity {
		return &message.Response{
			RequestID: req.RequestID,
			Worker:    w.Identity,
			Success:   false,
			Message:   fmt.Sprintf("request addressed to worker %q, not %q", req.Worker, w.Identity),
		}
	}

	if w.integration == nil {
		integration, err := w.instantiate(&req)
		if err != nil {
			return message.Fail(&req, w.Identity, err.Error(), time.Now())
		}
		w.integration = integration
	}

	select {
	case <-w.abort:
		return message.AbortResponse(&req, w.Identity)
	default:
	}

	return message.Dispatch(w.integration, &req, w.Identity)
}

// instantiate builds the integration named by the request's URL
// scheme, on the first request this worker ever sees.
func (w *Worker) instantiate(req *message.Request) (message.Integration, error) {
	url, ok := req.Context.URL()
	if !ok {
		return nil, fmt.Errorf("%w: request carries no context.url", message.ErrConfiguration)
	}

	scheme := schemeOf(url)
	switch scheme {
	case "mq", "mqs":
		return mqintegration.New(w.logger, w.transformers), nil
	case "sb":
		return sbintegration.New(w.logger, w.transformers), nil
	default:
		return nil, fmt.Errorf("%w: unsupported url scheme %q", message.ErrConfiguration, scheme)
	}
}

func schemeOf(url string) string {
	idx := strings.Index(url, "://")
	if idx < 0 {
		return ""
	}
	return url[:idx]
}

func (w *Worker) shutdown() {
	if w.integration != nil {
		if err := w.integration.Close(); err != nil {
			w.logger.Warn("error closing integration on shutdown", "error", err)
		}
	}
	if err := w.socket.Close(); err != nil {
		w.logger.Warn("error closing worker socket", "error", err)
	}
}
