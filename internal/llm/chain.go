package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Chain tries providers in order, returning the first successful
// response. A later provider is only consulted after the previous one
// fails, so the primary provider serves all traffic in the healthy
// case.
type Chain struct {
	clients []Client
	logger  *slog.Logger
}

// NewChain creates an ordered fallback chain.
func NewChain(logger *slog.Logger, clients ...Client) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{clients: clients, logger: logger}
}

// Chat tries each provider in order until one succeeds.
func (c *Chain) Chat(ctx context.Context, model string, messages []Message, opts Options) (*ChatResponse, error) {
	if len(c.clients) == 0 {
		return nil, errors.New("no providers configured")
	}

	var errs []error
	for i, client := range c.clients {
		resp, err := client.Chat(ctx, model, messages, opts)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			// Cancelled or timed out; later providers would fail the
			// same way.
			return nil, err
		}
		c.logger.Warn("provider failed, trying next",
			"position", i,
			"error", err,
		)
		errs = append(errs, err)
	}

	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// Ping succeeds if any provider in the chain is reachable.
func (c *Chain) Ping(ctx context.Context) error {
	var errs []error
	for _, client := range c.clients {
		if err := client.Ping(ctx); err == nil {
			return nil
		} else {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return errors.New("no providers configured")
	}
	return errors.Join(errs...)
}
