package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/semmidev/donky/internal/domain"
	"go.uber.org/multierr"
)

// ContainerState is the lifecycle position of a Container handle. Exited,
// TimedOut and Killed are terminal.
type ContainerState string

const (
	StateCreated  ContainerState = "created"
	StateStarting ContainerState = "starting"
	StateRunning  ContainerState = "running"
	StateWaiting  ContainerState = "waiting"
	StateExited   ContainerState = "exited"
	StateTimedOut ContainerState = "timed_out"
	StateKilled   ContainerState = "killed"
)

const killTimeout = 30 * time.Second

// Container tracks one runtime container through its lifecycle.
type Container struct {
	runtime domain.ContainerRuntime
	logger  Logger
	id      string
	name    string

	mu       sync.Mutex
	state    ContainerState
	status   domain.ContainerStatus
	exitCode int64
}

func NewContainer(runtime domain.ContainerRuntime, logger Logger, id, name string) *Container {
	return &Container{
		runtime: runtime,
		logger:  logger,
		id:      id,
		name:    name,
		state:   StateCreated,
		status:  domain.ContainerStatusCreated,
	}
}

func (c *Container) ID() string   { return c.id }
func (c *Container) Name() string { return c.name }

func (c *Container) State() ContainerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status is the runtime status seen by the last reload.
func (c *Container) Status() domain.ContainerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Container) ExitCode() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode
}

func (c *Container) setState(s ContainerState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Reload refreshes the cached runtime status.
func (c *Container) Reload(ctx context.Context) (domain.ContainerStatus, error) {
	status, err := c.runtime.ReloadState(ctx, c.id)
	if err != nil {
		return domain.ContainerStatusUnknown, err
	}
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	return status, nil
}

// Start is a no-op when the container already runs.
func (c *Container) Start(ctx context.Context) error {
	status, err := c.Reload(ctx)
	if err != nil {
		return err
	}
	if status == domain.ContainerStatusRunning {
		c.setState(StateRunning)
		return nil
	}

	c.logger.Infof("Starting container %s", c.name)
	c.setState(StateStarting)
	if err := c.runtime.StartContainer(ctx, c.id); err != nil {
		return err
	}
	c.setState(StateRunning)
	_, err = c.Reload(ctx)
	return err
}

// Stop issues a stop only when the container is running and always
// reconciles the state afterwards.
func (c *Container) Stop(ctx context.Context) error {
	status, err := c.Reload(ctx)
	if err != nil {
		return err
	}
	if status == domain.ContainerStatusRunning {
		c.logger.Infof("Stopping container %s", c.name)
		if err := c.runtime.StopContainer(ctx, c.id); err != nil {
			return err
		}
	}

	status, err = c.Reload(ctx)
	if err != nil {
		return err
	}
	if status != domain.ContainerStatusRunning {
		c.setState(StateExited)
	}
	return nil
}

// Kill sends SIGKILL and marks the container killed.
func (c *Container) Kill(ctx context.Context) error {
	c.logger.Warnf("Killing container %s", c.name)
	if err := c.runtime.KillContainer(ctx, c.id); err != nil {
		return err
	}
	c.setState(StateKilled)
	return nil
}

func (c *Container) Remove(ctx context.Context) error {
	c.logger.Infof("Removing container %s", c.name)
	return c.runtime.RemoveContainer(ctx, c.id, true)
}

type waitResult struct {
	code int64
	err  error
}

// WaitFor blocks until the container reaches target or timeout passes, logging
// progress every interval. Whichever finishes first wins: the runtime wait
// completing, the deadline passing or ctx being cancelled. A wait that has
// completed by the deadline counts as success. Otherwise the container is
// killed and the background wait is joined before returning. A timeout of zero
// or less waits without a deadline.
func (c *Container) WaitFor(ctx context.Context, target domain.ContainerStatus, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	c.logger.Infof("Waiting for container %s to reach state %s (timeout %s)", c.name, target, timeout)
	c.setState(StateWaiting)

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan waitResult, 1)
	go func() {
		code, err := c.runtime.WaitForState(waitCtx, c.id, target)
		done <- waitResult{code: code, err: err}
	}()

	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	expire := func() error {
		select {
		case res := <-done:
			return c.finishWait(ctx, cancel, target, start, res)
		default:
		}
		return c.abort(cancel, done, StateTimedOut, &domain.TimeoutError{
			Container: c.name,
			State:     target,
			Timeout:   timeout,
		})
	}

	for {
		select {
		case res := <-done:
			return c.finishWait(ctx, cancel, target, start, res)

		case <-ctx.Done():
			return c.abort(cancel, done, StateKilled, fmt.Errorf("waiting for container %s: %w", c.name, ctx.Err()))

		case <-deadline:
			return expire()

		case <-ticker.C:
			elapsed := time.Since(start)
			c.logger.Debugf("Waiting for container %s: %s elapsed", c.name, elapsed.Round(time.Second))
			if timeout > 0 && elapsed >= timeout {
				return expire()
			}
		}
	}
}

// finishWait records the outcome of a completed runtime wait.
func (c *Container) finishWait(ctx context.Context, cancel context.CancelFunc, target domain.ContainerStatus, start time.Time, res waitResult) error {
	if res.err != nil {
		if ctx.Err() != nil {
			return c.abort(cancel, nil, StateKilled, fmt.Errorf("waiting for container %s: %w", c.name, ctx.Err()))
		}
		return res.err
	}
	c.mu.Lock()
	c.exitCode = res.code
	c.status = target
	c.state = stateFor(target)
	c.mu.Unlock()
	c.logger.Infof("Container %s reached state %s after %s", c.name, target, time.Since(start).Round(time.Millisecond))
	return nil
}

// abort kills the container, stops the background wait and joins it unless
// done is nil. The kill uses its own context since ctx may already be
// cancelled.
func (c *Container) abort(cancel context.CancelFunc, done <-chan waitResult, final ContainerState, cause error) error {
	killCtx, killCancel := context.WithTimeout(context.Background(), killTimeout)
	defer killCancel()

	c.logger.Warnf("Killing container %s: %v", c.name, cause)
	killErr := c.runtime.KillContainer(killCtx, c.id)

	cancel()
	if done != nil {
		<-done
	}

	c.setState(final)
	return multierr.Append(cause, killErr)
}

func stateFor(target domain.ContainerStatus) ContainerState {
	switch target {
	case domain.ContainerStatusRunning:
		return StateRunning
	case domain.ContainerStatusCreated:
		return StateCreated
	default:
		return StateExited
	}
}
