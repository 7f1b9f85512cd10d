package repository

import (
	"github.com/Termdamp/MatchMixer/internal/adapters/mq/notify"
	"github.com/Termdamp/MatchMixer/pkg/logger"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithHub sets the hub used to fan out changes.
func WithHub(h *notify.Hub) Option {
	return func(s *MemoryStore) {
		if h != nil {
			s.hub = h
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *MemoryStore) {
		if l != nil {
			s.logger = l
		}
	}
}
