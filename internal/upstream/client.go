// Package upstream builds the HTTP clients used for outbound calls to the
// identity service and the chain RPC endpoint, and maps their failures onto
// the upstream error kinds.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pumppilot/gatekeeper/core"
	"go.uber.org/zap"
)

const (
	DefaultRetryMax     = 1
	DefaultRetryWaitMin = 100 * time.Millisecond
	DefaultRetryWaitMax = 500 * time.Millisecond
)

// Options tune the retrying client. Zero values take the defaults.
type Options struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// NewClient returns a client that retries connection errors and 5xx/429
// responses RetryMax times before giving up
func NewClient(opts Options, logger *zap.Logger) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = DefaultRetryMax
	client.RetryWaitMin = DefaultRetryWaitMin
	client.RetryWaitMax = DefaultRetryWaitMax

	if opts.RetryMax > 0 {
		client.RetryMax = opts.RetryMax
	}
	if opts.RetryWaitMin > 0 {
		client.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		client.RetryWaitMax = opts.RetryWaitMax
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	client.Logger = &leveledLogger{logger: logger.Sugar()}

	return client
}

// Classify maps a failed outbound call onto ErrUpstreamTimeout or
// ErrUpstreamUnavailable, keeping the original error text
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrUpstreamTimeout) || errors.Is(err, core.ErrUpstreamUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", core.ErrUpstreamTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", core.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", core.ErrUpstreamUnavailable, err)
}

// leveledLogger satisfies retryablehttp.LeveledLogger
type leveledLogger struct {
	logger *zap.SugaredLogger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, keysAndValues...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Infow(msg, keysAndValues...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warnw(msg, keysAndValues...)
}
