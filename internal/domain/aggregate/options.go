package aggregate

import (
	"github.com/okian/abrantes/internal/adapters/notify"
	"github.com/okian/abrantes/internal/adapters/repository"
	"github.com/okian/abrantes/pkg/logger"
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithStore sets the durable store.
func WithStore(s repository.Store) Option {
	return func(a *Aggregator) {
		if s != nil {
			a.store = s
		}
	}
}

// WithPublisher sets where state updates are broadcast.
func WithPublisher(p notify.Publisher) Option {
	return func(a *Aggregator) {
		if p != nil {
			a.publisher = p
		}
	}
}

// WithMaxHistory bounds the per-tab history.
func WithMaxHistory(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxHistory = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}
