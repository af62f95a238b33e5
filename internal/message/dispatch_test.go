package message

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubIntegration struct {
	registry *Registry
}

func (s *stubIntegration) Registry() *Registry { return s.registry }
func (s *stubIntegration) Close() error         { return nil }

func TestDispatchUnknownAction(t *testing.T) {
	integration := &stubIntegration{registry: NewRegistry()}
	req := &Request{RequestID: "r1", Action: "FROB"}

	resp := Dispatch(integration, req, "w1")

	assert.False(t, resp.Success)
	assert.Equal(t, "no implementation for \"FROB\"", resp.Message)
	assert.Equal(t, "w1", resp.Worker)
}

func TestDispatchHandlerError(t *testing.T) {
	registry := NewRegistry()
	registry.Register(func(req *Request) (*Response, error) {
		return nil, errors.Join(ErrFatalBroker, errors.New("reconnect failed"))
	}, "CONN")

	integration := &stubIntegration{registry: registry}
	resp := Dispatch(integration, &Request{RequestID: "r2", Action: "CONN"}, "w1")

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "reconnect failed")
}

func TestDispatchSuccessStampsFields(t *testing.T) {
	registry := NewRegistry()
	registry.Register(func(req *Request) (*Response, error) {
		return &Response{Success: true, Message: "re-used connection"}, nil
	}, "CONN")

	integration := &stubIntegration{registry: registry}
	resp := Dispatch(integration, &Request{RequestID: "r3", Action: "CONN"}, "w7")

	assert.True(t, resp.Success)
	assert.Equal(t, "r3", resp.RequestID)
	assert.Equal(t, "w7", resp.Worker)
	assert.Equal(t, "CONN", resp.Action)
}

func TestDispatchRecoversPanic(t *testing.T) {
	registry := NewRegistry()
	registry.Register(func(req *Request) (*Response, error) {
		panic("unexpected nil pointer")
	}, "PUT")

	integration := &stubIntegration{registry: registry}
	resp := Dispatch(integration, &Request{RequestID: "r4", Action: "PUT"}, "w1")

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "internal error")
}

func TestRegistryFirstRegistrationWins(t *testing.T) {
	registry := NewRegistry()
	first := func(req *Request) (*Response, error) { return &Response{Message: "first"}, nil }
	second := func(req *Request) (*Response, error) { return &Response{Message: "second"}, nil }

	registry.Register(first, "PUT", "SEND")
	registry.Register(second, "PUT")

	resp, err := registry.Get("PUT")(nil)
	assert.NoError(t, err)
	assert.Equal(t, "first", resp.Message)
	assert.NotNil(t, registry.Get("SEND"))
}
