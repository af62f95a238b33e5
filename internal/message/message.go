// Package message defines the wire-level request/response shapes shared
// by every integration, the handler registry pattern each integration
// uses to dispatch actions, and the daemon's error taxonomy.
package message

import "time"

// Context carries the open-shaped set of request options. Only the
// keys recognized by a given integration are consulted; everything
// else is preserved so a handler can reject unsupported arguments
// explicitly rather than silently ignoring them.
type Context map[string]any

func (c Context) String(key string) (string, bool) {
	v, ok := c[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (c Context) StringOr(key, fallback string) string {
	if s, ok := c.String(key); ok && s != "" {
		return s
	}
	return fallback
}

func (c Context) Bool(key string) bool {
	v, ok := c[key]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "True" || t == "1"
	default:
		return false
	}
}

func (c Context) Int(key string, fallback int) int {
	v, ok := c[key]
	if !ok {
		return fallback
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	default:
		return fallback
	}
}

// URL is the required routing key: scheme determines which integration
// handles the request (mq, mqs -> IBM MQ; sb -> Service Bus).
func (c Context) URL() (string, bool) {
	return c.String("url")
}

// Request is the decoded form of the JSON payload a client sends to
// the router's front-end socket.
type Request struct {
	RequestID string  `json:"request_id"`
	Action    string  `json:"action"`
	Worker    string  `json:"worker,omitempty"`
	Client    int     `json:"client,omitempty"`
	Context   Context `json:"context,omitempty"`
	Payload   *string `json:"payload,omitempty"`
}

// Response is the decoded form of the JSON payload sent back to a
// client through the router.
type Response struct {
	RequestID      string         `json:"request_id"`
	Worker         string         `json:"worker,omitempty"`
	Success        bool           `json:"success"`
	Action         string         `json:"action,omitempty"`
	Message        string         `json:"message,omitempty"`
	Payload        *string        `json:"payload,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ResponseLength *int           `json:"response_length,omitempty"`
	ResponseTime   int64          `json:"response_time"`
}

// Fail builds a failure response, always stamping worker and
// response_time, matching handle()'s contract in every integration.
func Fail(req *Request, worker, msg string, started time.Time) *Response {
	return &Response{
		RequestID:    req.RequestID,
		Worker:       worker,
		Success:      false,
		Action:       req.Action,
		Message:      msg,
		ResponseTime: time.Since(started).Milliseconds(),
	}
}

// Succeed builds a success response with the common stamped fields.
func Succeed(req *Request, worker string, started time.Time) *Response {
	return &Response{
		RequestID:    req.RequestID,
		Worker:       worker,
		Success:      true,
		Action:       req.Action,
		ResponseTime: time.Since(started).Milliseconds(),
	}
}

// AbortResponse is the synthetic response emitted when the process-wide
// abort event fires mid-handler or mid-wait.
func AbortResponse(req *Request, worker string) *Response {
	return &Response{
		RequestID: req.RequestID,
		Worker:    worker,
		Success:   false,
		Action:    req.Action,
		Message:   "abort",
	}
}
