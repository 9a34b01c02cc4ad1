package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/semmidev/donky/internal/domain"
	"github.com/semmidev/donky/internal/infrastructure/logger"
)

var nopLogger = logger.Nop()

// fakeRuntime is an in-memory ContainerRuntime. WaitForState completes after
// waitDelay, or never when waitDelay is negative.
type fakeRuntime struct {
	mu       sync.Mutex
	calls    []string
	status   map[string]domain.ContainerStatus
	volumes  map[string]bool
	specs    []domain.ContainerSpec
	failOn   map[string]error
	pulled   []string
	waitCode int64

	waitDelay    time.Duration
	waitReturned atomic.Bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		status:  map[string]domain.ContainerStatus{},
		volumes: map[string]bool{},
		failOn:  map[string]error{},
	}
}

func (f *fakeRuntime) record(op, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+" "+target)
	if err, ok := f.failOn[op]; ok {
		return &domain.RuntimeError{Op: op, Target: target, Err: err}
	}
	return nil
}

func (f *fakeRuntime) setStatus(id string, s domain.ContainerStatus) {
	f.mu.Lock()
	f.status[id] = s
	f.mu.Unlock()
}

func (f *fakeRuntime) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRuntime) PullImage(ctx context.Context, ref domain.ImageRef) (string, error) {
	if err := f.record("pull", ref.String()); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.pulled = append(f.pulled, ref.String())
	f.mu.Unlock()
	return "sha256:" + ref.Tag, nil
}

func (f *fakeRuntime) CreateContainer(ctx context.Context, spec domain.ContainerSpec) (string, error) {
	if err := f.record("create", spec.Name); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	if spec.Volume != nil {
		if f.volumes[spec.Volume.Name] && !spec.Volume.Force {
			f.mu.Unlock()
			return "", domain.ErrVolumeExists
		}
		f.volumes[spec.Volume.Name] = true
	}
	f.status[spec.Name] = domain.ContainerStatusCreated
	if spec.Bootstrap {
		f.status[spec.Name] = domain.ContainerStatusRunning
	}
	f.mu.Unlock()
	return spec.Name, nil
}

func (f *fakeRuntime) StartContainer(ctx context.Context, id string) error {
	if err := f.record("start", id); err != nil {
		return err
	}
	f.setStatus(id, domain.ContainerStatusRunning)
	return nil
}

func (f *fakeRuntime) StopContainer(ctx context.Context, id string) error {
	if err := f.record("stop", id); err != nil {
		return err
	}
	f.setStatus(id, domain.ContainerStatusExited)
	return nil
}

func (f *fakeRuntime) KillContainer(ctx context.Context, id string) error {
	if err := f.record("kill", id); err != nil {
		return err
	}
	f.setStatus(id, domain.ContainerStatusExited)
	return nil
}

func (f *fakeRuntime) RemoveContainer(ctx context.Context, id string, force bool) error {
	if err := f.record("remove", id); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.status, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeRuntime) ContainerExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.status[name]
	return ok, nil
}

func (f *fakeRuntime) ReloadState(ctx context.Context, id string) (domain.ContainerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failOn["reload"]; ok {
		return domain.ContainerStatusUnknown, &domain.RuntimeError{Op: "reload", Target: id, Err: err}
	}
	s, ok := f.status[id]
	if !ok {
		return domain.ContainerStatusUnknown, &domain.RuntimeError{Op: "reload", Target: id, Err: errors.New("no such container")}
	}
	return s, nil
}

func (f *fakeRuntime) WaitForState(ctx context.Context, id string, status domain.ContainerStatus) (int64, error) {
	defer f.waitReturned.Store(true)
	if err := f.record("wait", id); err != nil {
		return 0, err
	}

	var after <-chan time.Time
	if f.waitDelay >= 0 {
		after = time.After(f.waitDelay)
	}
	select {
	case <-after:
		f.setStatus(id, status)
		return f.waitCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (f *fakeRuntime) CreateVolume(ctx context.Context, name string) (domain.Volume, error) {
	if err := f.record("create volume", name); err != nil {
		return domain.Volume{}, err
	}
	f.mu.Lock()
	f.volumes[name] = true
	f.mu.Unlock()
	return domain.Volume{Name: name}, nil
}

func (f *fakeRuntime) VolumeExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volumes[name], nil
}

func (f *fakeRuntime) RemoveVolume(ctx context.Context, name string, force bool) error {
	if err := f.record("remove volume", name); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.volumes, name)
	f.mu.Unlock()
	return nil
}

func (f *fakeRuntime) Close() error { return nil }

// stubProbe reports every port as ready unless err is set.
type stubProbe struct {
	err   error
	addrs []string
}

func (p *stubProbe) Wait(ctx context.Context, addr string, timeout time.Duration) error {
	p.addrs = append(p.addrs, addr)
	return p.err
}
