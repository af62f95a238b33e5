package worker

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biometria-se/async-messaged/internal/message"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchemeOf(t *testing.T) {
	cases := map[string]string{
		"mq://broker/qmgr":  "mq",
		"mqs://broker/qmgr": "mqs",
		"sb://namespace":    "sb",
		"no-scheme-here":    "",
	}
	for url, want := range cases {
		assert.Equal(t, want, schemeOf(url), url)
	}
}

func TestInstantiateRejectsMissingURL(t *testing.T) {
	w := &Worker{Identity: "w1", logger: discardLogger()}
	req := &message.Request{Context: message.Context{}}
	_, err := w.instantiate(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, message.ErrConfiguration)
}

func TestInstantiateRejectsUnknownScheme(t *testing.T) {
	w := &Worker{Identity: "w1", logger: discardLogger()}
	req := &message.Request{Context: message.Context{"url": "ftp://example"}}
	_, err := w.instantiate(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, message.ErrConfiguration)
}

func TestInstantiateResolvesMQScheme(t *testing.T) {
	w := &Worker{Identity: "w1", logger: discardLogger()}
	for _, scheme := range []string{"mq", "mqs"} {
		req := &message.Request{Context: message.Context{"url": scheme + "://broker/QM1"}}
		integration, err := w.instantiate(req)
		require.NoError(t, err)
		assert.NotNil(t, integration)
	}
}

func TestInstantiateResolvesServiceBusScheme(t *testing.T) {
	w := &Worker{Identity: "w1", logger: discardLogger()}
	req := &message.Request{Context: message.Context{"url": "sb://namespace.servicebus.windows.net"}}
	integration, err := w.instantiate(req)
	require.NoError(t, err)
	assert.NotNil(t, integration)
}

// fakeIntegration lets handleFrames be exercised without a real broker.
type fakeIntegration struct {
	registry *message.Registry
	closed   bool
}

func newFakeIntegration() *fakeIntegration {
	registry := message.NewRegistry()
	registry.Register(func(req *message.Request) (*message.Response, error) {
		return &message.Response{Success: true}, nil
	}, "PING")
	return &fakeIntegration{registry: registry}
}

func (f *fakeIntegration) Registry() *message.Registry { return f.registry }
func (f *fakeIntegration) Close() error                { f.closed = true; return nil }

func TestHandleFramesRejectsForeignWorkerIdentity(t *testing.T) {
	w := &Worker{Identity: "this-worker"}
	req := message.Request{RequestID: "r1", Action: "PING", Worker: "some-other-worker"}
	payload, err := message.Marshal(req)
	require.NoError(t, err)

	resp := w.handleFrames([][]byte{payload})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "some-other-worker")
}

func TestHandleFramesDispatchesOnceIntegrationIsSet(t *testing.T) {
	w := &Worker{Identity: "this-worker"}
	fake := newFakeIntegration()
	w.integration = fake

	req := message.Request{RequestID: "r1", Action: "PING"}
	payload, err := message.Marshal(req)
	require.NoError(t, err)

	resp := w.handleFrames([][]byte{payload})
	assert.True(t, resp.Success)
	assert.Equal(t, "this-worker", resp.Worker)
}

func TestHandleFramesReportsMalformedPayload(t *testing.T) {
	w := &Worker{Identity: "this-worker"}
	resp := w.handleFrames([][]byte{[]byte("not json")})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "malformed request")
}

func TestHandleFramesAbortsWhenAbortChannelClosed(t *testing.T) {
	abort := make(chan struct{})
	close(abort)
	w := &Worker{Identity: "this-worker", abort: abort, logger: discardLogger()}

	req := message.Request{RequestID: "r1", Action: "CONN", Context: message.Context{"url": "mq://broker/QM1"}}
	payload, err := message.Marshal(req)
	require.NoError(t, err)

	resp := w.handleFrames([][]byte{payload})
	assert.False(t, resp.Success)
	assert.Equal(t, "abort", resp.Message)
}
