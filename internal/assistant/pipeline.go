package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anne-chat/anne/internal/memory"
)

// TopicSource supplies ambient topics for the system prompt.
// *trends.Cache satisfies it; a nil source disables the feature.
type TopicSource interface {
	Topics(ctx context.Context) []string
}

// Pipeline runs a single conversational exchange: recall recent turns,
// assemble the prompt, obtain a reply and persist the exchange.
type Pipeline struct {
	store   memory.Store
	gateway *Gateway
	trends  TopicSource
	persona string
	window  int
	logger  *slog.Logger
}

// NewPipeline wires the pipeline. window <= 0 selects the store's
// default recall window; trends may be nil.
func NewPipeline(store memory.Store, gateway *Gateway, trends TopicSource, persona string, window int, logger *slog.Logger) *Pipeline {
	if window <= 0 {
		window = memory.DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:   store,
		gateway: gateway,
		trends:  trends,
		persona: persona,
		window:  window,
		logger:  logger.With("component", "pipeline"),
	}
}

// Ask answers message for sessionID. Provider failures are absorbed
// into the fallback reply; only storage faults surface as errors.
// An empty message is still answered but not persisted as a turn.
func (p *Pipeline) Ask(ctx context.Context, sessionID, message string) (string, error) {
	recent, err := p.store.Recent(ctx, sessionID, p.window)
	if err != nil {
		return "", fmt.Errorf("recalling turns for %q: %w", sessionID, err)
	}

	var topics []string
	if p.trends != nil {
		topics = p.trends.Topics(ctx)
	}

	msgs := Assemble(p.persona, topics, recent, message)

	trimmed := strings.TrimSpace(message)
	if trimmed != "" {
		if err := p.store.Append(ctx, sessionID, memory.RoleUser, trimmed); err != nil {
			return "", fmt.Errorf("persisting user turn for %q: %w", sessionID, err)
		}
	}

	reply, fromFallback := p.gateway.Complete(ctx, msgs)

	if err := p.store.Append(ctx, sessionID, memory.RoleAssistant, reply); err != nil {
		return "", fmt.Errorf("persisting assistant turn for %q: %w", sessionID, err)
	}

	p.logger.Info("exchange complete",
		"session", sessionID,
		"recalled", len(recent),
		"fallback", fromFallback,
	)
	return reply, nil
}

// ClearMemory drops every recalled turn for sessionID.
func (p *Pipeline) ClearMemory(ctx context.Context, sessionID string) error {
	if err := p.store.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("clearing memory for %q: %w", sessionID, err)
	}
	p.logger.Info("memory cleared", "session", sessionID)
	return nil
}
