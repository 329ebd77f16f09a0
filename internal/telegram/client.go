// Package telegram bridges the assistant to the Telegram Bot API via
// long polling. No webhook setup is needed; the daemon pulls updates
// and answers on the same chat.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/anne-chat/anne/internal/httpkit"
)

const defaultAPIBase = "https://api.telegram.org"

// Client is a minimal Telegram Bot API client covering what the
// bridge needs: getUpdates and sendMessage.
type Client struct {
	base       string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	// offset is the long-poll high-water mark: one past the last
	// update id already handed to the bridge.
	offset int64

	pollTimeout int
	messages    chan *Update
}

// NewClient creates a Bot API client. pollTimeout is the long-poll
// hold time in seconds as passed to getUpdates.
func NewClient(token string, pollTimeout int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if pollTimeout <= 0 {
		pollTimeout = 30
	}

	return &Client{
		base:  defaultAPIBase,
		token: token,
		httpClient: httpkit.NewClient(
			// The request itself blocks for pollTimeout; leave slack on top.
			httpkit.WithTimeout(time.Duration(pollTimeout+15)*time.Second),
			httpkit.WithTransport(pollTransport(pollTimeout)),
			httpkit.WithRetry(3, 2*time.Second),
			httpkit.WithLogger(logger),
		),
		logger:      logger.With("component", "telegram"),
		pollTimeout: pollTimeout,
		messages:    make(chan *Update, 16),
	}
}

// pollTransport builds the transport for the long-poll connection. An
// idle getUpdates holds the connection for pollTimeout seconds before
// any headers arrive, so the response header timeout must outlast the
// hold or every idle poll aborts early.
func pollTransport(pollTimeout int) *http.Transport {
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = time.Duration(pollTimeout+10) * time.Second
	return t
}

// Messages returns the channel of inbound updates. It is closed when
// the poll loop exits.
func (c *Client) Messages() <-chan *Update {
	return c.messages
}

// Start runs the long-poll loop until ctx is cancelled. Poll failures
// back off and retry; the loop only exits on cancellation.
func (c *Client) Start(ctx context.Context) {
	defer close(c.messages)
	c.logger.Info("telegram poll loop started", "timeout_sec", c.pollTimeout)

	for {
		if ctx.Err() != nil {
			c.logger.Info("telegram poll loop stopping")
			return
		}

		updates, err := c.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("telegram getUpdates failed", "error", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= c.offset {
				c.offset = u.UpdateID + 1
			}
			select {
			case c.messages <- u:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Client) getUpdates(ctx context.Context) ([]*Update, error) {
	var result apiResponse[[]*Update]
	err := c.call(ctx, "getUpdates", getUpdatesRequest{
		Offset:  c.offset,
		Timeout: c.pollTimeout,
	}, &result)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, fmt.Errorf("getUpdates rejected: %s", result.Description)
	}
	return result.Result, nil
}

// Send delivers a text reply to a chat.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	var result apiResponse[json.RawMessage]
	err := c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID: chatID,
		Text:   text,
	}, &result)
	if err != nil {
		return err
	}
	if !result.OK {
		return fmt.Errorf("sendMessage rejected: %s", result.Description)
	}
	return nil
}

// Ping verifies the bot token against getMe.
func (c *Client) Ping(ctx context.Context) error {
	var result apiResponse[json.RawMessage]
	if err := c.call(ctx, "getMe", struct{}{}, &result); err != nil {
		return err
	}
	if !result.OK {
		return fmt.Errorf("getMe rejected: %s", result.Description)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.base, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d: %s",
			method, resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}
