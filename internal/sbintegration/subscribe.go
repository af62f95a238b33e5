package sbintegration

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus/admin"

	"github.com/biometria-se/async-messaged/internal/message"
)

const defaultRuleName = "grizzly"
const defaultRuleToRemove = "$Default"

func (i *Integration) handleSubscribe(req *message.Request) (*message.Response, error) {
	if req.Payload == nil || *req.Payload == "" {
		return nil, fmt.Errorf("%w: SUBSCRIBE requires a non-empty rule in payload", message.ErrConfiguration)
	}
	endpoint, _ := req.Context.String("endpoint")
	ep, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if ep.topic == "" {
		return nil, fmt.Errorf("%w: SUBSCRIBE requires a topic endpoint", message.ErrConfiguration)
	}

	if err := i.buildClients(req); err != nil {
		return nil, err
	}
	ctx := context.Background()
	forward := req.Context.Bool("forward")
	unique := req.Context.Bool("unique")

	if forward {
		_, _ = i.adminClient.DeleteQueue(ctx, ep.subscription, nil)
		if _, err := i.adminClient.CreateQueue(ctx, ep.subscription, nil); err != nil {
			return nil, fmt.Errorf("%w: failed to create forward queue for subscription %q: %v", message.ErrFatalBroker, ep.subscription, err)
		}
	}

	if _, err := i.adminClient.GetTopic(ctx, ep.topic, nil); err != nil {
		return nil, fmt.Errorf("%w: topic %q does not exist: %v", message.ErrConfiguration, ep.topic, err)
	}

	_, getErr := i.adminClient.GetSubscription(ctx, ep.topic, ep.subscription, nil)
	subscriptionExists := getErr == nil

	if subscriptionExists && !unique {
		return &message.Response{Success: true, Message: fmt.Sprintf("non-unique subscription %q on topic %q already created", ep.subscription, ep.topic)}, nil
	}

	if !subscriptionExists {
		subOptions := &admin.CreateSubscriptionOptions{}
		if forward {
			subOptions.Properties = &admin.SubscriptionProperties{ForwardTo: &ep.subscription}
		}
		if _, err := i.adminClient.CreateSubscription(ctx, ep.topic, ep.subscription, subOptions); err != nil {
			return nil, fmt.Errorf("%w: failed to create subscription %q: %v", message.ErrFatalBroker, ep.subscription, err)
		}
	}

	_, _ = i.adminClient.DeleteRule(ctx, ep.topic, ep.subscription, defaultRuleToRemove, nil)

	sqlFilter := admin.SQLFilter{Expression: *req.Payload}
	_, getRuleErr := i.adminClient.GetRule(ctx, ep.topic, ep.subscription, defaultRuleName, nil)
	if getRuleErr != nil {
		if _, err := i.adminClient.CreateRule(ctx, ep.topic, ep.subscription, defaultRuleName, &admin.CreateRuleOptions{
			Filter: sqlFilter,
		}); err != nil {
			return nil, fmt.Errorf("%w: failed to create rule %q: %v", message.ErrFatalBroker, defaultRuleName, err)
		}
	} else {
		if _, err := i.adminClient.UpdateRule(ctx, ep.topic, ep.subscription, admin.RuleProperties{
			Name:   defaultRuleName,
			Filter: sqlFilter,
			Action: admin.SQLAction{},
		}, nil); err != nil {
			return nil, fmt.Errorf("%w: failed to update rule %q: %v", message.ErrFatalBroker, defaultRuleName, err)
		}
	}

	i.mu.Lock()
	i.subscriptions = append(i.subscriptions, subscriptionRecord{topic: ep.topic, subscription: ep.subscription, forward: forward})
	i.mu.Unlock()

	return &message.Response{Success: true}, nil
}

func (i *Integration) handleUnsubscribe(req *message.Request) (*message.Response, error) {
	endpoint, _ := req.Context.String("endpoint")
	ep, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if ep.topic == "" {
		return nil, fmt.Errorf("%w: UNSUBSCRIBE requires a topic endpoint", message.ErrConfiguration)
	}
	if err := i.buildClients(req); err != nil {
		return nil, err
	}
	ctx := context.Background()
	forward := req.Context.Bool("forward")
	unique := req.Context.Bool("unique")

	runtime, statsErr := i.adminClient.GetSubscriptionRuntimeProperties(ctx, ep.topic, ep.subscription, nil)
	if statsErr != nil {
		if !unique {
			return &message.Response{Success: true, Message: fmt.Sprintf("subscription %q already removed", ep.subscription)}, nil
		}
		return nil, fmt.Errorf("%w: subscription %q not found: %v", message.ErrConfiguration, ep.subscription, statsErr)
	}

	metadata := map[string]any{
		"active_message_count":         runtime.ActiveMessageCount,
		"total_message_count":          runtime.TotalMessageCount,
		"transfer_message_count":       runtime.TransferMessageCount,
		"dead_letter_message_count":    runtime.DeadLetterMessageCount,
		"transfer_dead_letter_message_count": runtime.TransferDeadLetterMessageCount,
	}

	if err := i.deleteSubscriptionLocked(ctx, subscriptionRecord{topic: ep.topic, subscription: ep.subscription, forward: forward}); err != nil {
		return nil, fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
	}

	i.mu.Lock()
	for idx, sub := range i.subscriptions {
		if sub.topic == ep.topic && sub.subscription == ep.subscription {
			i.subscriptions = append(i.subscriptions[:idx], i.subscriptions[idx+1:]...)
			break
		}
	}
	i.mu.Unlock()

	return &message.Response{Success: true, Metadata: metadata}, nil
}

// deleteSubscriptionLocked deletes a subscription and, when forward is
// set, its forward queue. Named "Locked" for symmetry with Close,
// which calls it while already holding the mutex; it does not itself
// touch the mutex since admin calls are independent of the cache maps.
func (i *Integration) deleteSubscriptionLocked(ctx context.Context, sub subscriptionRecord) error {
	_, err := i.adminClient.DeleteSubscription(ctx, sub.topic, sub.subscription, nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("deleting subscription %q: %w", sub.subscription, err)
	}
	if sub.forward {
		_, _ = i.adminClient.DeleteQueue(ctx, sub.subscription, nil)
	}
	return nil
}
