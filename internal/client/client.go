// Package client talks to the inspector relay over HTTP.
//
// It provides both relay channels: a fire-and-forget notify channel used by
// capture, and a request/response channel plus an update stream used by the
// popup and the CLI.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/abrantes/internal/adapters/http/api"
	"github.com/okian/abrantes/internal/adapters/notify"
	"github.com/okian/abrantes/internal/domain/types"
	"github.com/okian/abrantes/pkg/logger"
)

const (
	defaultNotifyTimeout = 5 * time.Second
	defaultNotifyQueue   = 1024
	maxEventBytes        = 4 << 20
)

// Client is a relay client bound to one server.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	notifyTimeout time.Duration
	notifyQueue   int
	logger        logger.Logger

	startOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	pending   chan notification
	done      chan struct{}
	dropped   atomic.Int64
}

type notification struct {
	ctx       context.Context
	senderTab int
	msg       types.Message
}

// New creates a client targeting baseURL (e.g. "http://127.0.0.1:8137").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{},
		notifyTimeout: defaultNotifyTimeout,
		notifyQueue:   defaultNotifyQueue,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pending = make(chan notification, c.notifyQueue)
	c.done = make(chan struct{})
	return c
}

// Notify queues msg on behalf of senderTab and returns immediately.
// Delivery is at-most-once and in call order: a full queue, a closed client
// or a failed post drops the message, counts it and logs at debug.
func (c *Client) Notify(ctx context.Context, senderTab int, msg types.Message) {
	c.startOnce.Do(func() { go c.sendLoop() })

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.drop(ctx, senderTab, ErrClosed)
		return
	}
	select {
	case c.pending <- notification{ctx: context.WithoutCancel(ctx), senderTab: senderTab, msg: msg}:
	default:
		c.drop(ctx, senderTab, ErrQueueFull)
	}
}

func (c *Client) sendLoop() {
	defer close(c.done)
	for n := range c.pending {
		ctx, cancel := context.WithTimeout(n.ctx, c.notifyTimeout)
		header := http.Header{}
		header.Set(api.SenderTabHeader, strconv.Itoa(n.senderTab))
		if _, _, err := c.post(ctx, n.msg, header); err != nil {
			c.drop(ctx, n.senderTab, err)
		}
		cancel()
	}
}

func (c *Client) drop(ctx context.Context, senderTab int, err error) {
	c.dropped.Add(1)
	if c.logger != nil {
		c.logger.Debug(ctx, "notify dropped", logger.TabID(senderTab), logger.Error(err))
	}
}

// Dropped returns how many notifications never reached the relay.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting notifications and waits for queued ones.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.pending)
	c.mu.Unlock()

	started := true
	c.startOnce.Do(func() { started = false })
	if started {
		<-c.done
	}
	return nil
}

// Request sends msg and returns the reply. The boolean is false when the
// relay answered without a reply (capture or unknown message types).
func (c *Client) Request(ctx context.Context, msg types.Message) (types.Response, bool, error) {
	return c.post(ctx, msg, nil)
}

// GetTabState requests the state of a tab.
func (c *Client) GetTabState(ctx context.Context, tabID int) (types.Response, error) {
	resp, _, err := c.Request(ctx, types.NewTabMessage(types.MessageGetTabState, tabID))
	return resp, err
}

// ClearTabState clears the state of a tab.
func (c *Client) ClearTabState(ctx context.Context, tabID int) (types.Response, error) {
	resp, _, err := c.Request(ctx, types.NewTabMessage(types.MessageClearTabState, tabID))
	return resp, err
}

// TabClosed reports a closed tab to the relay.
func (c *Client) TabClosed(ctx context.Context, tabID int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tabs/"+strconv.Itoa(tabID)+"/closed", http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return nil
}

func (c *Client) post(ctx context.Context, msg types.Message, header http.Header) (types.Response, bool, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return types.Response{}, false, fmt.Errorf("marshaling message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return types.Response{}, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.Response{}, false, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content: accepted with no reply.
	if resp.StatusCode == http.StatusNoContent {
		return types.Response{}, false, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Response{}, false, fmt.Errorf("reading response: %w", err)
	}

	// Protocol replies, including {ok:false}, come back as JSON responses.
	var out types.Response
	if jsonErr := json.Unmarshal(body, &out); jsonErr == nil && (out.OK || out.Error != "") {
		return out, true, nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return types.Response{}, false, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return types.Response{}, false, fmt.Errorf("decoding response: unexpected body %q", body)
}

// Subscribe follows the update stream. The channel is closed when ctx is
// cancelled or the server ends the stream.
func (c *Client) Subscribe(ctx context.Context, filter notify.Filter) (<-chan types.Update, error) {
	url := c.baseURL + "/v1/updates"
	if filter.HasTab {
		url += "?tabId=" + strconv.Itoa(filter.TabID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	ch := make(chan types.Update)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		readEvents(ctx, resp.Body, ch)
	}()
	return ch, nil
}

// readEvents decodes Server-Sent Events carrying updates.
func readEvents(ctx context.Context, r io.Reader, out chan<- types.Update) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventBytes)

	var event string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 && (event == "" || event == types.MessageEventUpdate) {
				var u types.Update
				if json.Unmarshal([]byte(data.String()), &u) == nil {
					select {
					case out <- u:
					case <-ctx.Done():
						return
					}
				}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment / heartbeat
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}
