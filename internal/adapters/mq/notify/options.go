package notify

import "github.com/Termdamp/MatchMixer/pkg/logger"

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithBufferSize bounds how many undelivered documents a subscriber may hold
// before they are folded into the newest one.
func WithBufferSize(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.bufferSize = size
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}
