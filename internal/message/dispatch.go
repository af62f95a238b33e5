package message

import (
	"errors"
	"fmt"
	"time"
)

// Integration is satisfied by both the IBM MQ and Service Bus
// integrations: a registry of action handlers plus a close method that
// releases whatever broker resources the integration is holding.
type Integration interface {
	Registry() *Registry
	Close() error
}

// Dispatch implements the shared handle() contract described in
// section 4.3: resolve the action, invoke its handler, never let an
// error escape as a panic or bubble past this call, and always stamp
// worker and response_time on the result.
func Dispatch(integration Integration, req *Request, worker string) *Response {
	started := time.Now()

	handler := integration.Registry().Get(req.Action)
	if handler == nil {
		return Fail(req, worker, fmt.Sprintf("no implementation for \"%s\"", req.Action), started)
	}

	resp, err := safeInvoke(handler, req)
	if err != nil {
		return Fail(req, worker, fmt.Sprintf("%s: %s=\"%s\"", req.Action, errorKind(err), err.Error()), started)
	}

	resp.RequestID = req.RequestID
	resp.Worker = worker
	resp.ResponseTime = time.Since(started).Milliseconds()
	if resp.Action == "" {
		resp.Action = req.Action
	}
	return resp
}

// errorKind names the sentinel an error is classified under, standing
// in for the reference's e.__class__.__name__ in the "action: kind="message""
// failure format.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return "ConfigurationError"
	case errors.Is(err, ErrTransientBroker):
		return "TransientBrokerError"
	case errors.Is(err, ErrFatalBroker):
		return "FatalBrokerError"
	case errors.Is(err, ErrAuth):
		return "AuthenticationError"
	default:
		return "InternalError"
	}
}

// safeInvoke recovers a panicking handler into an InternalError-shaped
// response so a single bad handler can never take down a worker.
func safeInvoke(handler Handler, req *Request) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return handler(req)
}
