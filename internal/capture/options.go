package capture

import (
	"time"

	"github.com/chromedp/chromedp"
	"github.com/okian/abrantes/pkg/logger"
)

// Option configures a Capturer.
type Option func(*Capturer)

// WithChain replaces the clone strategy chain.
func WithChain(chain ...Strategy) Option {
	return func(c *Capturer) {
		if len(chain) > 0 {
			c.chain = chain
		}
	}
}

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Capturer) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used for dropped captures.
func WithLogger(l logger.Logger) Option {
	return func(c *Capturer) {
		if l != nil {
			c.logger = l
		}
	}
}

// BrowserOption configures a Browser.
type BrowserOption func(*Browser)

// WithHeadless runs Chrome without a window.
func WithHeadless(headless bool) BrowserOption {
	return func(b *Browser) {
		b.headless = headless
	}
}

// WithExecPath sets the Chrome binary.
func WithExecPath(path string) BrowserOption {
	return func(b *Browser) {
		if path != "" {
			b.allocOpts = append(b.allocOpts, chromedp.ExecPath(path))
		}
	}
}

// WithAllocatorOptions appends raw allocator options.
func WithAllocatorOptions(opts ...chromedp.ExecAllocatorOption) BrowserOption {
	return func(b *Browser) {
		b.allocOpts = append(b.allocOpts, opts...)
	}
}

// WithTabCloser reports the tab as closed when the page goes away.
func WithTabCloser(tc TabCloser) BrowserOption {
	return func(b *Browser) {
		b.closer = tc
	}
}

// WithBrowserLogger sets the browser logger.
func WithBrowserLogger(l logger.Logger) BrowserOption {
	return func(b *Browser) {
		if l != nil {
			b.logger = l
		}
	}
}
