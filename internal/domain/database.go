package domain

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// Endpoint is the address of a running database accepting connections.
type Endpoint struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s@%s/%s", e.User, e.Addr(), e.Database)
}

type Database interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, statement string) error
	// Conn returns a dedicated connection that is not shared with other callers.
	Conn(ctx context.Context) (Conn, error)
	Close() error
}

type Conn interface {
	Exec(ctx context.Context, statement string) error
	Close() error
}

type DatabaseFactory interface {
	Open(ctx context.Context, endpoint Endpoint) (Database, error)
}
