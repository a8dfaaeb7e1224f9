package middleware

import (
	"go.uber.org/zap"

	"github.com/pyjobs/jobauth"
)

// DefaultSkipPaths are served without authentication: the API documentation routes.
var DefaultSkipPaths = []string{"/docs", "/openapi.json", "/redocs"}

type options struct {
	skip            map[string]struct{}
	disabled        bool
	disabledSubject string
	logger          *zap.Logger
}

// Option configures Guard.
type Option func(*options)

func defaultOptions() *options {
	o := &options{logger: zap.NewNop()}
	WithSkipPaths(DefaultSkipPaths...)(o)
	return o
}

// WithSkipPaths replaces the set of exact paths served without authentication.
func WithSkipPaths(paths ...string) Option {
	return func(o *options) {
		o.skip = make(map[string]struct{}, len(paths))
		for _, p := range paths {
			o.skip[p] = struct{}{}
		}
	}
}

// WithDisabled switches authentication off: every request is admitted as subject, with no
// claims attached. Intended for local development.
func WithDisabled(subject string) Option {
	return func(o *options) {
		o.disabled = true
		o.disabledSubject = subject
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// FromConfig derives Guard options from the HTTP section of the engine configuration.
func FromConfig(cfg jobauth.HTTPConfig, logger *zap.Logger) []Option {
	opts := []Option{WithLogger(logger)}
	if cfg.SkipPaths != nil {
		opts = append(opts, WithSkipPaths(cfg.SkipPaths...))
	}
	if !cfg.AuthOn {
		opts = append(opts, WithDisabled(cfg.DisabledSubject))
	}
	return opts
}
