package sbintegration

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/biometria-se/async-messaged/internal/message"
)

func (i *Integration) handleHello(req *message.Request) (*message.Response, error) {
	endpoint, _ := req.Context.String("endpoint")
	ep, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	direction := req.Context.StringOr("connection", "sender")
	force := req.Context.Bool("force")
	key := ep.canonicalKey(direction)

	i.mu.Lock()
	_, senderExists := i.senderCache[key]
	_, receiverExists := i.receiverCache[key]
	i.mu.Unlock()

	if !force && ((direction == "sender" && senderExists) || (direction == "receiver" && receiverExists)) {
		return &message.Response{Success: true, Message: "re-used connection"}, nil
	}

	if err := i.buildClients(req); err != nil {
		return nil, err
	}

	ctx := context.Background()

	err = withHelloRetry(func(attempt int) error {
		if direction == "sender" {
			return i.createSender(ctx, ep, key)
		}
		return i.createReceiver(ctx, req, ep, key)
	})
	if err != nil {
		return nil, err
	}

	return &message.Response{Success: true}, nil
}

func (i *Integration) createSender(ctx context.Context, ep *endpointArgs, key string) error {
	sender, err := i.client.NewSender(ep.resourceName(), nil)
	if err != nil {
		return fmt.Errorf("%w: creating sender for %q: %v", message.ErrTransientBroker, ep.resourceName(), err)
	}

	i.mu.Lock()
	i.senderCache[key] = sender
	i.mu.Unlock()
	return nil
}

func (i *Integration) createReceiver(ctx context.Context, req *message.Request, ep *endpointArgs, key string) error {
	messageWait := req.Context.Int("message_wait", 0)
	forward := req.Context.Bool("forward")

	opts := &azservicebus.ReceiverOptions{}

	var receiver *azservicebus.Receiver
	var err error

	switch {
	case ep.queue != "":
		receiver, err = i.client.NewReceiverForQueue(ep.queue, opts)
	case forward:
		receiver, err = i.client.NewReceiverForQueue(ep.subscription, opts)
	default:
		receiver, err = i.client.NewReceiverForSubscription(ep.topic, ep.subscription, opts)
	}
	if err != nil {
		return fmt.Errorf("%w: creating receiver for %q: %v", message.ErrTransientBroker, ep.resourceName(), err)
	}

	i.mu.Lock()
	i.receiverCache[key] = receiver
	i.lastActivity[key] = time.Now().Add(-time.Duration(messageWait+1) * time.Second)
	i.mu.Unlock()
	return nil
}

// withHelloRetry retries connection creation up to 3 times with
// exponential backoff (0.5s * 1.7^n) per section 4.6.1.
func withHelloRetry(op func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt < helloMaxAttempts; attempt++ {
		err := op(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < helloMaxAttempts-1 {
			backoff := time.Duration(0.5*math.Pow(1.7, float64(attempt))*1000) * time.Millisecond
			time.Sleep(backoff)
		}
	}
	return lastErr
}

func (i *Integration) handleDisconnect(req *message.Request) (*message.Response, error) {
	endpoint, _ := req.Context.String("endpoint")
	ep, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	direction := req.Context.StringOr("connection", "sender")
	key := ep.canonicalKey(direction)

	ctx := context.Background()

	i.mu.Lock()
	if sender, ok := i.senderCache[key]; ok {
		_ = sender.Close(ctx)
		delete(i.senderCache, key)
	}
	if receiver, ok := i.receiverCache[key]; ok {
		_ = receiver.Close(ctx)
		delete(i.receiverCache, key)
	}
	remaining := len(i.senderCache) + len(i.receiverCache)
	i.mu.Unlock()

	resp := &message.Response{Success: true, Message: "thanks for all the fish"}
	if remaining > 0 {
		resp.Action = "DISCONNECTING"
	}
	return resp, nil
}
