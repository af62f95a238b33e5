package sbintegration

import (
	"fmt"
	"strings"

	"github.com/biometria-se/async-messaged/internal/arguments"
	"github.com/biometria-se/async-messaged/internal/message"
)

// endpointArgs is the parsed form of a Service Bus endpoint string:
// exactly one of queue/topic, an optional subscription (required for
// topic receivers) and an optional expression. A message_wait key is
// accepted by validation but not kept here; RECEIVE takes its wait
// time from the request context's message_wait.
type endpointArgs struct {
	queue       string
	topic       string
	subscription string
	expression  string
	hasExpr     bool
}

func parseEndpoint(endpoint string) (*endpointArgs, error) {
	parsed, err := arguments.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if err := parsed.Validate([]string{"queue", "topic", "subscription", "expression", "message_wait"}, nil); err != nil {
		return nil, err
	}

	queue, hasQueue := parsed.Get("queue")
	topic, hasTopic := parsed.Get("topic")
	if hasQueue == hasTopic {
		return nil, fmt.Errorf("%w: endpoint must specify exactly one of queue or topic", message.ErrConfiguration)
	}

	subscription, _ := parsed.Get("subscription")
	if hasTopic && subscription == "" {
		return nil, fmt.Errorf("%w: topic endpoints require a subscription", message.ErrConfiguration)
	}

	expression, hasExpr := parsed.Get("expression")

	return &endpointArgs{
		queue:        queue,
		topic:        topic,
		subscription: subscription,
		expression:   expression,
		hasExpr:      hasExpr,
	}, nil
}

// resourceName is the broker-addressable name this endpoint refers to:
// the queue name, or else the topic name. It does not consider
// forward; createReceiver picks the forward queue itself.
func (e *endpointArgs) resourceName() string {
	if e.queue != "" {
		return e.queue
	}
	return e.topic
}

// canonicalKey strips the expression argument so the receiver cache is
// keyed purely on the broker resource, matching invariant 4: the
// expression is matched per-request against messages pulled from the
// cached receiver, not baked into the cache key.
func (e *endpointArgs) canonicalKey(direction string) string {
	var b strings.Builder
	b.WriteString(direction)
	b.WriteString("=")
	if e.queue != "" {
		b.WriteString("queue:")
		b.WriteString(e.queue)
	} else {
		b.WriteString("topic:")
		b.WriteString(e.topic)
		b.WriteString(",subscription:")
		b.WriteString(e.subscription)
	}
	return b.String()
}
