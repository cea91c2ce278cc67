package transport

import (
	"context"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"reposerve/internal/errors"
	"reposerve/util"
)

// TCPDialer establishes plain TCP connections.  Failed attempts are
// retried with exponential backoff up to Retries extra times.
type TCPDialer struct {
	Timeout time.Duration // per-attempt connect timeout; 0 = none
	Retries int           // extra attempts after the first; 0 = no retry
	Logger  *util.Logger  // optional

	// InitialInterval is the first retry delay (default 500ms).
	InitialInterval time.Duration
}

// Dial connects to address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}

	var conn net.Conn
	attempt := 0
	op := func() error {
		attempt++
		c, err := dialer.DialContext(ctx, network, address)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		if d.Logger != nil {
			d.Logger.Verbose("dial %s attempt %d failed: %v (retrying in %s)", address, attempt, err, wait)
		}
	}

	if err := backoff.RetryNotify(op, d.policy(ctx), notify); err != nil {
		return nil, errors.Wrap("dial", address, err)
	}
	return conn, nil
}

func (d *TCPDialer) policy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 500 * time.Millisecond
	if d.InitialInterval > 0 {
		eb.InitialInterval = d.InitialInterval
	}
	eb.MaxInterval = 10 * time.Second
	eb.MaxElapsedTime = 0

	retries := d.Retries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }
