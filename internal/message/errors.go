package message

import "errors"

// Sentinel error kinds per the error handling design: handlers classify
// a failure by wrapping one of these with fmt.Errorf("...: %w", ...),
// and callers use errors.Is to decide whether to retry.
var (
	// ErrConfiguration marks a malformed request: missing context,
	// unsupported argument, conflicting arguments, unknown scheme, or
	// an action outside the integration's action set.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransientBroker marks a broker condition worth retrying:
	// a truncated message with no explicit max size, a backed-out GET,
	// "no message available" while re-fetching a browsed message, or a
	// lock-lost receive on Service Bus.
	ErrTransientBroker = errors.New("transient broker error")

	// ErrFatalBroker marks a broker condition that exhausted retries or
	// can never succeed: reconnect failure, an unrecognized MQ reason
	// code, or a persistent AMQP link error.
	ErrFatalBroker = errors.New("fatal broker error")

	// ErrAuth marks an Entra ID authentication failure: a non-200 in
	// the user flow, missing MFA configuration when MFA is required, or
	// a token response lacking id_token/access_token.
	ErrAuth = errors.New("authentication error")
)

// Handler is the signature every registered action function satisfies.
// It receives the decoded request and returns either a populated
// response body (still missing worker/response_time/request_id, which
// handle() stamps) or an error that handle() converts into a failure
// response.
type Handler func(req *Request) (*Response, error)

// Registry is the per-integration action-name -> handler table. Every
// integration keeps exactly one of these, built once at construction.
// Registering an action that is already present is a no-op: first
// registration wins, matching the reference's decorator semantics.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds handler under every given alias, skipping aliases
// already bound.
func (r *Registry) Register(fn Handler, aliases ...string) {
	for _, name := range aliases {
		if _, exists := r.handlers[name]; exists {
			continue
		}
		r.handlers[name] = fn
	}
}

// Get returns the handler bound to action, or nil if unregistered.
func (r *Registry) Get(action string) Handler {
	return r.handlers[action]
}
