package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/semmidev/donky/internal/domain"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// SessionTuning relaxes durability for the throwaway obfuscation pass.
const SessionTuning = "SET GLOBAL innodb_flush_log_at_trx_commit=2, sync_binlog=0"

type PortWaiter interface {
	Wait(ctx context.Context, addr string, timeout time.Duration) error
}

// Obfuscate applies a set of independent statements to a restored database
// with a pool of workers, each owning its own connection.
type Obfuscate struct {
	factory       domain.DatabaseFactory
	probe         PortWaiter
	logger        Logger
	maxWorkers    int
	retryInterval time.Duration
}

func NewObfuscate(factory domain.DatabaseFactory, probe PortWaiter, logger Logger) *Obfuscate {
	return &Obfuscate{
		factory:       factory,
		probe:         probe,
		logger:        logger,
		maxWorkers:    runtime.NumCPU(),
		retryInterval: time.Second,
	}
}

// Workers clamps a requested worker count to the available CPUs.
func (uc *Obfuscate) Workers(requested int) int {
	workers := requested
	if workers > uc.maxWorkers {
		workers = uc.maxWorkers
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

func (uc *Obfuscate) Execute(ctx context.Context, job domain.ObfuscationJob) (domain.ObfuscationResult, error) {
	start := time.Now()
	result := domain.ObfuscationResult{Workers: uc.Workers(job.Workers)}

	addr := job.Endpoint.Addr()
	deadline := start.Add(job.PortTimeout)
	uc.logger.Infof("Waiting for %s to accept connections", addr)
	if err := uc.probe.Wait(ctx, addr, job.PortTimeout); err != nil {
		return result, err
	}

	db, err := uc.open(ctx, job.Endpoint, deadline)
	if err != nil {
		return result, err
	}
	defer db.Close()

	if err := db.Exec(ctx, SessionTuning); err != nil {
		uc.logger.Warnf("Session tuning failed, continuing with server defaults: %v", err)
	}

	if len(job.Statements) == 0 {
		uc.logger.Warnf("No statements to execute")
		return result, nil
	}

	uc.logger.Infof("Executing %d statement(s) with %d worker(s)", len(job.Statements), result.Workers)

	var (
		mu       sync.Mutex
		failures error
	)
	statements := make(chan string)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(statements)
		for _, s := range job.Statements {
			select {
			case statements <- s:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < result.Workers; i++ {
		worker := i
		g.Go(func() error {
			conn, err := db.Conn(gctx)
			if err != nil {
				return fmt.Errorf("%w: worker %d: %v", domain.ErrServiceUnavailable, worker, err)
			}
			defer conn.Close()

			for s := range statements {
				err := conn.Exec(gctx, s)

				mu.Lock()
				if err != nil {
					result.Failed++
					failures = multierr.Append(failures, asQueryError(s, err))
				} else {
					result.Executed++
				}
				mu.Unlock()

				if err != nil {
					uc.logger.Errorf("Worker %d: statement failed: %v", worker, err)
				} else {
					uc.logger.Debugf("Worker %d: executed %.80q", worker, s)
				}
			}
			return nil
		})
	}

	err = g.Wait()
	result.Duration = time.Since(start)
	if err != nil {
		return result, multierr.Append(err, failures)
	}
	if failures != nil {
		uc.logger.Errorf("%d of %d statement(s) failed", result.Failed, len(job.Statements))
		return result, failures
	}

	uc.logger.Infof("Executed %d statement(s) in %s", result.Executed, result.Duration.Round(time.Millisecond))
	return result, nil
}

// open connects to the database, retrying until deadline. Port forwarders
// accept connections before mysqld is ready, so an open port alone does not
// mean the server answers.
func (uc *Obfuscate) open(ctx context.Context, endpoint domain.Endpoint, deadline time.Time) (domain.Database, error) {
	for attempt := 1; ; attempt++ {
		db, err := uc.factory.Open(ctx, endpoint)
		if err == nil {
			return db, nil
		}

		if !time.Now().Add(uc.retryInterval).Before(deadline) {
			return nil, fmt.Errorf("%w: %s not ready after %d attempt(s): %v",
				domain.ErrServiceUnavailable, endpoint.Addr(), attempt, err)
		}
		uc.logger.Debugf("Database %s not ready (attempt %d): %v", endpoint.Addr(), attempt, err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: waiting for %s: %w", domain.ErrServiceUnavailable, endpoint.Addr(), ctx.Err())
		case <-time.After(uc.retryInterval):
		}
	}
}

func asQueryError(statement string, err error) error {
	var qerr *domain.QueryError
	if errors.As(err, &qerr) {
		return err
	}
	return &domain.QueryError{Statement: statement, Err: err}
}
