package sbintegration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpointQueue(t *testing.T) {
	ep, err := parseEndpoint("queue:orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", ep.queue)
	assert.Equal(t, "orders", ep.resourceName())
}

func TestParseEndpointTopicRequiresSubscription(t *testing.T) {
	_, err := parseEndpoint("topic:events")
	require.Error(t, err)
}

func TestParseEndpointTopicWithSubscription(t *testing.T) {
	ep, err := parseEndpoint("topic:events, subscription:S")
	require.NoError(t, err)
	assert.Equal(t, "events", ep.topic)
	assert.Equal(t, "S", ep.subscription)
}

func TestParseEndpointRejectsBothQueueAndTopic(t *testing.T) {
	_, err := parseEndpoint("queue:Q, topic:T, subscription:S")
	require.Error(t, err)
}

func TestCanonicalKeyStripsExpression(t *testing.T) {
	withExpr, err := parseEndpoint("queue:Q, expression:$.name=='x'")
	require.NoError(t, err)
	withoutExpr, err := parseEndpoint("queue:Q")
	require.NoError(t, err)

	assert.Equal(t, withoutExpr.canonicalKey("receiver"), withExpr.canonicalKey("receiver"))
}
