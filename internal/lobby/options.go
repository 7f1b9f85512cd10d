package lobby

import "github.com/Termdamp/MatchMixer/pkg/logger"

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCodeGenerator replaces the random room code source.
func WithCodeGenerator(g CodeGenerator) Option {
	return func(c *Coordinator) {
		if g != nil {
			c.codes = g
		}
	}
}

// WithCodeAttempts bounds how many codes CreateRoom tries.
func WithCodeAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.codeAttempts = n
		}
	}
}

// WithWriteRetries bounds how often a read-modify-write is retried after a
// version conflict. Zero means a single attempt.
func WithWriteRetries(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.writeRetries = n
		}
	}
}
