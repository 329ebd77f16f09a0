package assistant

import (
	"context"
	"log/slog"
	"strings"

	"github.com/anne-chat/anne/internal/llm"
)

// DefaultFallbackReply is returned when no model produces a usable
// completion. The user always receives an answer.
const DefaultFallbackReply = "Anne is thinking... try again 💭"

// Gateway turns an assembled message list into reply text. Provider
// failures are absorbed here: Complete never returns an error, it
// returns the fallback reply instead and reports that it did so.
type Gateway struct {
	client   llm.Client
	model    string
	opts     llm.Options
	fallback string
	logger   *slog.Logger
}

// NewGateway builds a gateway over the given client, typically a
// fallback chain. An empty fallback reply selects the default.
func NewGateway(client llm.Client, model string, opts llm.Options, fallback string, logger *slog.Logger) *Gateway {
	if fallback == "" {
		fallback = DefaultFallbackReply
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		client:   client,
		model:    model,
		opts:     opts,
		fallback: fallback,
		logger:   logger.With("component", "gateway"),
	}
}

// Complete requests a completion for msgs. The returned text is never
// empty; fromFallback reports whether the fallback reply was used.
func (g *Gateway) Complete(ctx context.Context, msgs []llm.Message) (text string, fromFallback bool) {
	resp, err := g.client.Chat(ctx, g.model, msgs, g.opts)
	if err != nil {
		g.logger.Warn("completion failed, serving fallback reply",
			"model", g.model,
			"fallback", true,
			"error", err,
		)
		return g.fallback, true
	}

	reply := strings.TrimSpace(resp.Message.Content)
	if reply == "" {
		g.logger.Warn("model returned empty completion, serving fallback reply",
			"model", resp.Model,
			"fallback", true,
		)
		return g.fallback, true
	}

	g.logger.Debug("completion ok",
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)
	return reply, false
}
