package database

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/semmidev/donky/internal/domain"
)

// PortProbe waits for a TCP port to accept connections.
type PortProbe struct {
	Interval    time.Duration
	DialTimeout time.Duration
}

func NewPortProbe() *PortProbe {
	return &PortProbe{Interval: time.Second, DialTimeout: time.Second}
}

// Wait dials addr every Interval until it connects or timeout elapses.
func (p *PortProbe) Wait(ctx context.Context, addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	dialer := net.Dialer{Timeout: p.DialTimeout}

	for {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}

		if time.Now().Add(p.Interval).After(deadline) {
			return fmt.Errorf("%w: %s not reachable after %s: %v", domain.ErrServiceUnavailable, addr, timeout, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for %s: %w", domain.ErrServiceUnavailable, addr, ctx.Err())
		case <-time.After(p.Interval):
		}
	}
}
