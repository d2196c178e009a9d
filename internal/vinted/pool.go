package vinted

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/vincentgaul/VintScout/internal/config"
)

// Pool hands out one shared Client per country, bootstrapping each session
// the first time it is used. Safe for concurrent use.
type Pool struct {
	cfg    config.VintedConfig
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

func NewPool(cfg config.VintedConfig, logger *slog.Logger) *Pool {
	return &Pool{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// ClientFor returns the cached client for the country, creating and
// bootstrapping it on first use. The code is normalized the same way
// NewClient normalizes it, so "FR" and "fr" share one session.
func (p *Pool) ClientFor(ctx context.Context, countryCode string) (*Client, error) {
	countryCode = strings.ToLower(strings.TrimSpace(countryCode))

	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[countryCode]; ok {
		return client, nil
	}

	client, err := NewClient(countryCode, p.cfg, p.logger)
	if err != nil {
		return nil, err
	}
	client.Bootstrap(ctx)
	p.clients[countryCode] = client
	return client, nil
}

// Close releases every cached client.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, client := range p.clients {
		client.Close()
	}
	p.clients = make(map[string]*Client)
}
