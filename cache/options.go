package cache

import (
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// StoreOption configures store creation.
type StoreOption func(*storeOptions)

type storeOptions struct {
	logger *zap.Logger
	level  zstd.EncoderLevel
}

// WithLogger sets the logger used for sweep results and self-healing
// warnings. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(opts *storeOptions) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

// WithCompressionLevel sets the zstd level used when persisting
// records. Defaults to zstd.SpeedDefault.
func WithCompressionLevel(level zstd.EncoderLevel) StoreOption {
	return func(opts *storeOptions) {
		opts.level = level
	}
}
