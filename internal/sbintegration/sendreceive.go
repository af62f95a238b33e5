package sbintegration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/biometria-se/async-messaged/internal/message"
	"github.com/biometria-se/async-messaged/internal/transform"
)

const maxReceiveAttempts = 3

func (i *Integration) handleSend(req *message.Request) (*message.Response, error) {
	if req.Payload == nil {
		return nil, fmt.Errorf("%w: SEND requires a payload", message.ErrConfiguration)
	}
	endpoint, _ := req.Context.String("endpoint")
	ep, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	key := ep.canonicalKey("sender")

	i.mu.Lock()
	sender, ok := i.senderCache[key]
	i.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no sender established for %q, send HELLO first", message.ErrConfiguration, ep.resourceName())
	}

	msg := &azservicebus.Message{Body: []byte(*req.Payload)}
	if metadata, ok := req.Context["metadata"].(map[string]any); ok {
		msg.ApplicationProperties = metadata
	}

	if err := sender.SendMessage(context.Background(), msg, nil); err != nil {
		return nil, fmt.Errorf("%w: failed to send message: %v", message.ErrTransientBroker, err)
	}

	length := len(*req.Payload)
	return &message.Response{Success: true, ResponseLength: &length}, nil
}

func (i *Integration) handleReceive(req *message.Request) (*message.Response, error) {
	if req.Payload != nil {
		return nil, fmt.Errorf("%w: RECEIVE must not carry a payload", message.ErrConfiguration)
	}
	endpoint, _ := req.Context.String("endpoint")
	ep, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	key := ep.canonicalKey("receiver")

	contentType := req.Context.StringOr("content_type", "")
	consume := req.Context.Bool("consume")
	messageWait := req.Context.Int("message_wait", 0)

	var selector transform.Selector
	if ep.hasExpr {
		transformer, ok := i.transformers.Get(transform.ParseContentType(contentType))
		if !ok {
			return nil, fmt.Errorf("%w: no transformer registered for content type %q", message.ErrConfiguration, contentType)
		}
		selector, err = transformer.Compile(ep.expression)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", message.ErrConfiguration, err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxReceiveAttempts; attempt++ {
		resp, status, err := i.receiveOnce(req, ep, key, selector, contentType, consume, messageWait)
		switch status {
		case receiveMatched:
			return resp, nil
		case receiveReconnect:
			lastErr = err
			if helloErr := i.reconnectReceiver(req, ep, key); helloErr != nil {
				return nil, helloErr
			}
			continue
		case receiveDrained:
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: receive failed after %d attempts: %v", message.ErrFatalBroker, maxReceiveAttempts, lastErr)
}

type receiveStatus int

const (
	receiveMatched receiveStatus = iota
	receiveDrained
	receiveReconnect
)

func (i *Integration) receiveOnce(req *message.Request, ep *endpointArgs, key string, selector transform.Selector, contentType string, consume bool, messageWait int) (*message.Response, receiveStatus, error) {
	i.mu.Lock()
	receiver, ok := i.receiverCache[key]
	lastActivity := i.lastActivity[key]
	i.mu.Unlock()
	if !ok {
		return nil, receiveDrained, fmt.Errorf("%w: no receiver established for %q, send HELLO first", message.ErrConfiguration, ep.resourceName())
	}

	if time.Since(lastActivity) > time.Duration(messageWait)*time.Second {
		i.mu.Lock()
		i.lastActivity[key] = time.Now()
		i.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(messageWait)*time.Second)
	defer cancel()

	ignored := 0
	deadline := time.Now().Add(time.Duration(messageWait) * time.Second)

	for {
		messages, err := receiver.ReceiveMessages(ctx, 1, nil)
		if err != nil {
			if isLockLost(err) {
				return nil, receiveReconnect, err
			}
			if isTransportError(err) {
				return nil, receiveReconnect, err
			}
			return nil, receiveDrained, fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
		}
		if len(messages) == 0 {
			if time.Now().After(deadline) {
				return nil, receiveDrained, drainedError(ep, selector != nil, messageWait, ignored)
			}
			if selector != nil && consume {
				continue
			}
			return nil, receiveDrained, drainedError(ep, selector != nil, messageWait, ignored)
		}

		msg := messages[0]

		if selector == nil {
			if err := receiver.CompleteMessage(ctx, msg, nil); err != nil {
				return nil, receiveDrained, fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
			}
			return bodyResponse(msg.Body), receiveMatched, nil
		}

		transformer, _ := i.transformers.Get(transform.ParseContentType(contentType))
		value, transformErr := transformer.Transform(msg.Body)
		matched := false
		if transformErr == nil {
			matches, selErr := selector.Select(value)
			matched = selErr == nil && len(matches) > 0
		}

		if matched {
			if err := receiver.CompleteMessage(ctx, msg, nil); err != nil {
				return nil, receiveDrained, fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
			}
			return bodyResponse(msg.Body), receiveMatched, nil
		}

		if consume {
			_ = receiver.CompleteMessage(ctx, msg, nil)
			ignored++
			continue
		}

		_ = receiver.AbandonMessage(ctx, msg, nil)
		if time.Now().After(deadline) {
			return nil, receiveDrained, drainedError(ep, true, messageWait, ignored)
		}
	}
}

func bodyResponse(body []byte) *message.Response {
	text, err := message.EncodeBytesPayload(body)
	if err != nil {
		text = string(body)
	}
	length := len(body)
	return &message.Response{Success: true, Payload: &text, ResponseLength: &length}
}

func drainedError(ep *endpointArgs, hasExpr bool, messageWait, ignored int) error {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("no message found on %q after waiting %ds", ep.resourceName(), messageWait))
	if hasExpr {
		b.WriteString(fmt.Sprintf(" matching expression %q", ep.expression))
	}
	if ignored > 0 {
		b.WriteString(fmt.Sprintf(", ignored %d non-matching messages", ignored))
	}
	return fmt.Errorf("%w: %s", message.ErrTransientBroker, b.String())
}

func isLockLost(err error) bool {
	return strings.Contains(err.Error(), "lock")
}

func isTransportError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Please use ServiceBusClient to create a new instance") || strings.Contains(msg, "link")
}

func (i *Integration) reconnectReceiver(req *message.Request, ep *endpointArgs, key string) error {
	i.mu.Lock()
	delete(i.receiverCache, key)
	i.mu.Unlock()
	return i.createReceiver(context.Background(), req, ep, key)
}

func (i *Integration) handleEmpty(req *message.Request) (*message.Response, error) {
	endpoint, _ := req.Context.String("endpoint")
	ep, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	key := ep.canonicalKey("receiver")

	i.mu.Lock()
	receiver, ok := i.receiverCache[key]
	i.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no receiver established for %q, send HELLO first", message.ErrConfiguration, ep.resourceName())
	}

	consumed := 0
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		peeked, err := receiver.PeekMessages(ctx, 10, nil)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
		}
		if len(peeked) < 10 {
			break
		}

		ctx, cancel = context.WithTimeout(context.Background(), 20*time.Second)
		batch, err := receiver.ReceiveMessages(ctx, 100, nil)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
		}
		for _, msg := range batch {
			if err := receiver.CompleteMessage(context.Background(), msg, nil); err == nil {
				consumed++
			}
		}
		if len(batch) == 0 {
			break
		}
	}

	return &message.Response{Success: true, Message: fmt.Sprintf("consumed %d messages", consumed)}, nil
}
