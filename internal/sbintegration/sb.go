// Package sbintegration implements the Azure Service Bus integration:
// HELLO/DISCONNECT lifecycle, SUBSCRIBE/UNSUBSCRIBE management-plane
// actions, and SEND/RECEIVE/EMPTY data-plane actions, transported over
// AMQP over WebSocket.
package sbintegration

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus/admin"
	"nhooyr.io/websocket"

	"github.com/biometria-se/async-messaged/internal/azuread"
	"github.com/biometria-se/async-messaged/internal/message"
	"github.com/biometria-se/async-messaged/internal/transform"
)

const helloMaxAttempts = 3

// Integration holds a single Service Bus client, an optional
// management client, and the sender/receiver caches described in
// section 3. Every cached resource belongs to exactly one worker, so
// no additional locking is needed across workers; the mutex here only
// guards this integration's own cache maps against concurrent close.
type Integration struct {
	registry     *message.Registry
	logger       *slog.Logger
	transformers *transform.Registry

	mu             sync.Mutex
	client         *azservicebus.Client
	adminClient    *admin.Client
	senderCache    map[string]*azservicebus.Sender
	receiverCache  map[string]*azservicebus.Receiver
	subscriptions  []subscriptionRecord
	lastActivity   map[string]time.Time
	namespace      string
}

type subscriptionRecord struct {
	topic, subscription string
	forward             bool
}

func New(logger *slog.Logger, transformers *transform.Registry) *Integration {
	i := &Integration{
		registry:      message.NewRegistry(),
		logger:        logger.With(slog.String("subcomponent", "sbintegration")),
		transformers:  transformers,
		senderCache:   make(map[string]*azservicebus.Sender),
		receiverCache: make(map[string]*azservicebus.Receiver),
		lastActivity:  make(map[string]time.Time),
	}

	i.registry.Register(i.handleHello, "HELLO")
	i.registry.Register(i.handleDisconnect, "DISCONNECT")
	i.registry.Register(i.handleSubscribe, "SUBSCRIBE")
	i.registry.Register(i.handleUnsubscribe, "UNSUBSCRIBE")
	i.registry.Register(i.handleSend, "SEND")
	i.registry.Register(i.handleReceive, "RECEIVE")
	i.registry.Register(i.handleEmpty, "EMPTY")

	return i
}

func (i *Integration) Registry() *message.Registry { return i.registry }

func (i *Integration) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	i.mu.Lock()
	defer i.mu.Unlock()

	for _, sub := range i.subscriptions {
		if err := i.deleteSubscriptionLocked(ctx, sub); err != nil {
			i.logger.Warn("failed to tear down subscription on close", "error", err)
		}
	}
	i.subscriptions = nil

	for key, sender := range i.senderCache {
		_ = sender.Close(ctx)
		delete(i.senderCache, key)
	}
	for key, receiver := range i.receiverCache {
		_ = receiver.Close(ctx)
		delete(i.receiverCache, key)
	}

	var err error
	if i.client != nil {
		err = i.client.Close(ctx)
		i.client = nil
	}
	i.adminClient = nil
	return err
}

// namespaceFor derives the fully qualified namespace from a bare host,
// appending the standard suffix unless already present.
func namespaceFor(host string) string {
	if strings.HasSuffix(host, ".servicebus.windows.net") {
		return host
	}
	return host + ".servicebus.windows.net"
}

func (i *Integration) buildClients(req *message.Request) error {
	if i.client != nil {
		return nil
	}

	connectionString, hasConnStr := req.Context.String("connection_string")
	host, _ := req.Context.String("endpoint_host")
	if host == "" {
		host, _ = req.Context.String("url")
	}

	clientOptions := &azservicebus.ClientOptions{
		NewWebSocketConn: func(ctx context.Context, args azservicebus.NewWebSocketConnArgs) (net.Conn, error) {
			opts := &websocket.DialOptions{Subprotocols: []string{"amqp"}}
			conn, _, err := websocket.Dial(ctx, args.Host, opts)
			if err != nil {
				return nil, fmt.Errorf("dialing service bus websocket: %w", err)
			}
			return websocket.NetConn(ctx, conn, websocket.MessageBinary), nil
		},
	}

	if hasConnStr && connectionString != "" {
		client, err := azservicebus.NewClientFromConnectionString(connectionString, clientOptions)
		if err != nil {
			return fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
		}
		i.client = client

		adminClient, err := admin.NewClientFromConnectionString(connectionString, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
		}
		i.adminClient = adminClient
		return nil
	}

	username, _ := req.Context.String("username")
	password, _ := req.Context.String("password")
	tenant, _ := req.Context.String("tenant")

	authMethod, _ := req.Context.String("auth_method")
	cred := i.buildCredential(username, password, tenant, authMethod)
	i.namespace = namespaceFor(host)

	client, err := azservicebus.NewClient(i.namespace, cred, clientOptions)
	if err != nil {
		return fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
	}
	i.client = client

	adminClient, err := admin.NewClient(i.namespace, cred, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
	}
	i.adminClient = adminClient

	return nil
}

func (i *Integration) buildCredential(username, password, tenant, authMethod string) azcore.TokenCredential {
	method := azuread.AuthMethodUser
	if authMethod == "CLIENT" {
		method = azuread.AuthMethodClient
	}
	return azuread.New(azuread.Config{
		Method:   method,
		Tenant:   tenant,
		Username: username,
		Password: password,
		ClientID: username,
	}, i.logger)
}
