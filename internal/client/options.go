package client

import (
	"net/http"
	"time"

	"github.com/okian/abrantes/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithNotifyTimeout bounds each fire-and-forget notification.
func WithNotifyTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.notifyTimeout = d
		}
	}
}

// WithLogger sets the logger used for dropped notifications.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithNotifyQueue sets how many notifications may wait to be sent.
func WithNotifyQueue(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.notifyQueue = n
		}
	}
}
