package llm

import (
	"context"
	"fmt"
)

// MultiClient routes requests to the appropriate provider based on model
// name. It always satisfies StreamingClient; providers that cannot stream
// are adapted with Streaming.
type MultiClient struct {
	clients  map[string]Client // provider name → client
	models   map[string]string // model name → provider name
	fallback Client            // default client for unknown models
}

// NewMultiClient creates a client that routes to multiple providers.
func NewMultiClient(fallback Client) *MultiClient {
	return &MultiClient{
		clients:  make(map[string]Client),
		models:   make(map[string]string),
		fallback: fallback,
	}
}

// AddProvider registers a client for a provider name.
func (m *MultiClient) AddProvider(name string, client Client) {
	m.clients[name] = client
}

// AddModel maps a model name to a provider.
func (m *MultiClient) AddModel(modelName, providerName string) {
	m.models[modelName] = providerName
}

func (m *MultiClient) clientFor(model string) (Client, error) {
	if provider, ok := m.models[model]; ok {
		if client, ok := m.clients[provider]; ok {
			return client, nil
		}
	}
	if m.fallback == nil {
		return nil, fmt.Errorf("no provider configured for model %q", model)
	}
	return m.fallback, nil
}

// Chat sends a request to the provider for req.Model.
func (m *MultiClient) Chat(ctx context.Context, req *Request) (*ChatResponse, error) {
	client, err := m.clientFor(req.Model)
	if err != nil {
		return nil, err
	}
	return client.Chat(ctx, req)
}

// ChatStream streams from the provider for req.Model.
func (m *MultiClient) ChatStream(ctx context.Context, req *Request, onDelta DeltaCallback) error {
	client, err := m.clientFor(req.Model)
	if err != nil {
		return err
	}
	sc, _ := Streaming(client)
	return sc.ChatStream(ctx, req, onDelta)
}

// Ping checks the fallback provider.
func (m *MultiClient) Ping(ctx context.Context) error {
	if m.fallback != nil {
		return m.fallback.Ping(ctx)
	}
	return fmt.Errorf("no fallback client configured")
}
