package telegram

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/anne-chat/anne/internal/identity"
)

// Asker abstracts the conversation pipeline for testability. The real
// implementation is *assistant.Pipeline.
type Asker interface {
	Ask(ctx context.Context, sessionID, message string) (string, error)
}

// Sender abstracts the outbound side of the client.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// handleTimeout bounds how long a single inbound message may be
// processed (completion + reply send).
const handleTimeout = 3 * time.Minute

// rateWindow is the sliding window for per-chat rate limiting.
const rateWindow = time.Minute

// cleanupInterval controls how often stale rate-limit entries are
// evicted.
const cleanupInterval = 10 * time.Minute

// BridgeConfig holds the dependencies for a Bridge.
type BridgeConfig struct {
	Updates   <-chan *Update
	Sender    Sender
	Asker     Asker
	Logger    *slog.Logger
	RateLimit int // per chat per minute; 0 = unlimited
}

// Bridge receives Telegram updates, routes text messages through the
// conversation pipeline, and sends replies back on the same chat.
// Each chat maps to its own memory session.
type Bridge struct {
	updates   <-chan *Update
	sender    Sender
	asker     Asker
	logger    *slog.Logger
	rateLimit int

	mu          sync.Mutex
	chatTimes   map[int64][]time.Time
	lastCleanup time.Time
}

// NewBridge creates a Telegram message bridge.
func NewBridge(cfg BridgeConfig) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		updates:   cfg.Updates,
		sender:    cfg.Sender,
		asker:     cfg.Asker,
		logger:    logger,
		rateLimit: cfg.RateLimit,
		chatTimes: make(map[int64][]time.Time),
	}
}

// Start consumes updates and answers them until ctx is cancelled or
// the update channel closes.
func (b *Bridge) Start(ctx context.Context) {
	b.logger.Info("telegram bridge started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("telegram bridge shutting down")
			return
		case u, ok := <-b.updates:
			if !ok {
				b.logger.Info("telegram update channel closed, bridge stopping")
				return
			}

			if u.Message == nil || strings.TrimSpace(u.Message.Text) == "" {
				b.logger.Debug("telegram ignoring non-text update", "update_id", u.UpdateID)
				continue
			}
			if u.Message.From != nil && u.Message.From.IsBot {
				b.logger.Debug("telegram ignoring bot message", "chat", u.Message.Chat.ID)
				continue
			}

			if !b.allowChat(u.Message.Chat.ID) {
				b.logger.Warn("telegram message rate-limited", "chat", u.Message.Chat.ID)
				continue
			}

			b.handleMessage(ctx, u.Message)
		}
	}
}

// handleMessage runs one inbound message through the pipeline and
// sends the reply back to the chat.
func (b *Bridge) handleMessage(ctx context.Context, msg *Message) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	sessionID := identity.ForTelegram(msg.Chat.ID)
	b.logger.Info("telegram message received",
		"chat", msg.Chat.ID,
		"session", sessionID,
		"message_len", len(msg.Text),
	)

	reply, err := b.asker.Ask(ctx, sessionID, msg.Text)
	if err != nil {
		b.logger.Error("telegram exchange failed",
			"chat", msg.Chat.ID,
			"session", sessionID,
			"error", err,
		)
		return
	}

	if err := b.sender.Send(ctx, msg.Chat.ID, reply); err != nil {
		b.logger.Error("telegram reply send failed",
			"chat", msg.Chat.ID,
			"session", sessionID,
			"error", err,
		)
		return
	}

	b.logger.Info("telegram reply sent",
		"chat", msg.Chat.ID,
		"session", sessionID,
		"response_len", len(reply),
	)
}

// allowChat checks whether the chat is within the per-minute rate
// limit. Returns true if the message should be processed.
func (b *Bridge) allowChat(chatID int64) bool {
	if b.rateLimit <= 0 {
		return true
	}

	now := time.Now()
	cutoff := now.Add(-rateWindow)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeCleanupLocked(now)

	timestamps := b.chatTimes[chatID]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= b.rateLimit {
		b.chatTimes[chatID] = valid
		return false
	}

	b.chatTimes[chatID] = append(valid, now)
	return true
}

// maybeCleanupLocked evicts stale chat entries. Must be called with
// b.mu held.
func (b *Bridge) maybeCleanupLocked(now time.Time) {
	if now.Sub(b.lastCleanup) < cleanupInterval {
		return
	}
	b.lastCleanup = now

	cutoff := now.Add(-2 * rateWindow)
	for chat, timestamps := range b.chatTimes {
		if len(timestamps) == 0 || timestamps[len(timestamps)-1].Before(cutoff) {
			delete(b.chatTimes, chat)
		}
	}
}
