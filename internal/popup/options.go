package popup

import (
	"time"

	"github.com/okian/abrantes/pkg/logger"
)

// Option configures a QueryClient.
type Option func(*QueryClient)

// WithMaxHistory bounds the history kept from replies.
func WithMaxHistory(n int) Option {
	return func(q *QueryClient) {
		if n > 0 {
			q.maxHistory = n
		}
	}
}

// WithLogger sets the logger used for failed requests.
func WithLogger(l logger.Logger) Option {
	return func(q *QueryClient) {
		if l != nil {
			q.logger = l
		}
	}
}

// ViewOption configures a TextRenderer.
type ViewOption func(*TextRenderer)

// WithLocation sets the zone used for timestamps.
func WithLocation(loc *time.Location) ViewOption {
	return func(r *TextRenderer) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithClearScreen makes each render start from a cleared terminal.
func WithClearScreen(clear bool) ViewOption {
	return func(r *TextRenderer) {
		r.clear = clear
	}
}

// WithHistoryLimit sets how many history entries are shown.
func WithHistoryLimit(n int) ViewOption {
	return func(r *TextRenderer) {
		if n > 0 {
			r.historyLimit = n
		}
	}
}
