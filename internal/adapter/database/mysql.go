package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/semmidev/donky/internal/domain"
)

// MySQLFactory opens connection pools to restored MySQL/Percona servers.
type MySQLFactory struct {
	// MaxConns caps the pool; zero leaves it unbounded.
	MaxConns int
}

func NewMySQLFactory(maxConns int) *MySQLFactory {
	return &MySQLFactory{MaxConns: maxConns}
}

func (f *MySQLFactory) Open(ctx context.Context, endpoint domain.Endpoint) (domain.Database, error) {
	db, err := sql.Open("mysql", DSN(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}
	if f.MaxConns > 0 {
		db.SetMaxOpenConns(f.MaxConns)
		db.SetMaxIdleConns(f.MaxConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	m := NewMySQLFromDB(db)
	if err := m.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// DSN builds the driver DSN for an endpoint. The restored server runs with
// --skip-grant-tables, so an empty password is normal.
func DSN(endpoint domain.Endpoint) string {
	cfg := mysql.NewConfig()
	cfg.User = endpoint.User
	cfg.Passwd = endpoint.Password
	cfg.Net = "tcp"
	cfg.Addr = endpoint.Addr()
	cfg.DBName = endpoint.Database
	cfg.Timeout = 10 * time.Second
	return cfg.FormatDSN()
}

type MySQLDatabase struct {
	db *sql.DB
}

// NewMySQLFromDB wraps an existing pool, which lets tests hand in sqlmock.
func NewMySQLFromDB(db *sql.DB) *MySQLDatabase {
	return &MySQLDatabase{db: db}
}

func (m *MySQLDatabase) Ping(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("mysql ping failed: %w", err)
	}
	return nil
}

func (m *MySQLDatabase) Exec(ctx context.Context, statement string) error {
	if _, err := m.db.ExecContext(ctx, statement); err != nil {
		return queryErr(statement, err)
	}
	return nil
}

func (m *MySQLDatabase) Conn(ctx context.Context) (domain.Conn, error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &mysqlConn{conn: conn}, nil
}

func (m *MySQLDatabase) Close() error {
	return m.db.Close()
}

// mysqlConn is a single session. Statements run in autocommit mode, so each
// one is its own transaction.
type mysqlConn struct {
	conn *sql.Conn
}

func (c *mysqlConn) Exec(ctx context.Context, statement string) error {
	if _, err := c.conn.ExecContext(ctx, statement); err != nil {
		return queryErr(statement, err)
	}
	return nil
}

func (c *mysqlConn) Close() error {
	return c.conn.Close()
}

func queryErr(statement string, err error) error {
	qerr := &domain.QueryError{Statement: statement, Err: err}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		qerr.Code = myErr.Number
	}
	return qerr
}
