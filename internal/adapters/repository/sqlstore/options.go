package sqlstore

import (
	"github.com/Termdamp/MatchMixer/internal/adapters/mq/notify"
	"github.com/Termdamp/MatchMixer/pkg/logger"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithHub sets the hub used to fan out changes.
func WithHub(h *notify.Hub) Option {
	return func(s *Store) {
		if h != nil {
			s.hub = h
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithListener toggles LISTEN/NOTIFY on PostgreSQL, which relays writes made
// by other processes to local subscribers. It is on by default and ignored
// for SQLite.
func WithListener(enabled bool) Option {
	return func(s *Store) {
		s.listen = enabled
	}
}
