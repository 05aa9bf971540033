package logger

import (
	"io"

	"go.uber.org/zap"
)

// settings collects the construction choices applied by New.
type settings struct {
	// output receives the encoded log entries.
	output io.Writer
	// zapOptions are passed through to zap.New.
	zapOptions []zap.Option
}

// Option customizes a logger built by New.
type Option func(*settings)

// WithOutput redirects log output. The default is standard error, which
// keeps diagnostics out of the standard output owned by protected units.
func WithOutput(w io.Writer) Option {
	return func(s *settings) {
		s.output = w
	}
}

// WithZapOptions appends raw zap options, such as hooks or caller
// annotation, to the constructed logger.
func WithZapOptions(options ...zap.Option) Option {
	return func(s *settings) {
		s.zapOptions = append(s.zapOptions, options...)
	}
}
