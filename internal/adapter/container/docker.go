package container

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/semmidev/donky/internal/domain"
	"github.com/semmidev/donky/internal/infrastructure/logger"
)

const statePollInterval = 500 * time.Millisecond

// EngineRuntime implements domain.ContainerRuntime on top of the Docker Engine
// API. Podman serves the same API on its service socket.
type EngineRuntime struct {
	cli     *client.Client
	backend domain.Backend
	log     *logger.Logger
}

func NewEngineRuntime(cli *client.Client, backend domain.Backend, log *logger.Logger) *EngineRuntime {
	return &EngineRuntime{cli: cli, backend: backend, log: log}
}

func (r *EngineRuntime) Backend() domain.Backend {
	return r.backend
}

func (r *EngineRuntime) PullImage(ctx context.Context, ref domain.ImageRef) (string, error) {
	image := ref.String()
	r.log.Infof("Pulling image %s", image)

	reader, err := r.cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return "", runtimeErr("pull image", image, err)
	}
	defer reader.Close()

	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", runtimeErr("pull image", image, err)
	}

	inspect, _, err := r.cli.ImageInspectWithRaw(ctx, image)
	if err != nil {
		return "", runtimeErr("inspect image", image, err)
	}
	return inspect.ID, nil
}

// CreateContainer creates the container described by spec. It honours the
// spec's recreate, volume and bootstrap policies.
func (r *EngineRuntime) CreateContainer(ctx context.Context, spec domain.ContainerSpec) (string, error) {
	if spec.Recreate {
		exists, err := r.ContainerExists(ctx, spec.Name)
		if err != nil {
			return "", err
		}
		if exists {
			r.log.Warnf("Removing existing container %s", spec.Name)
			if err := r.RemoveContainer(ctx, spec.Name, true); err != nil {
				return "", err
			}
		}
	}

	if spec.Volume != nil {
		if err := r.ensureVolume(ctx, *spec.Volume); err != nil {
			return "", err
		}
	}

	cfg, hostCfg, err := toDockerConfig(spec)
	if err != nil {
		return "", err
	}

	r.log.Infof("Creating container %s from %s", spec.Name, cfg.Image)
	resp, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", runtimeErr("create container", spec.Name, err)
	}
	for _, w := range resp.Warnings {
		r.log.Warnf("Container %s: %s", spec.Name, w)
	}

	if spec.Bootstrap {
		r.log.Infof("Bootstrapping container %s", spec.Name)
		if err := r.StartContainer(ctx, resp.ID); err != nil {
			return "", err
		}
		r.log.Debugf("Bootstrap wait %s", spec.BootstrapWait)
		select {
		case <-time.After(spec.BootstrapWait):
		case <-ctx.Done():
			return "", runtimeErr("bootstrap container", spec.Name, ctx.Err())
		}
	}

	return resp.ID, nil
}

func (r *EngineRuntime) ensureVolume(ctx context.Context, binding domain.VolumeBinding) error {
	exists, err := r.VolumeExists(ctx, binding.Name)
	if err != nil {
		return err
	}
	if exists {
		if !binding.Force {
			return fmt.Errorf("%w: %s", domain.ErrVolumeExists, binding.Name)
		}
		r.log.Warnf("Volume %s exists, force removing", binding.Name)
		if err := r.RemoveVolume(ctx, binding.Name, true); err != nil {
			return err
		}
	}
	_, err = r.CreateVolume(ctx, binding.Name)
	return err
}

func (r *EngineRuntime) StartContainer(ctx context.Context, id string) error {
	if err := r.cli.ContainerStart(ctx, id, types.ContainerStartOptions{}); err != nil {
		return runtimeErr("start container", id, err)
	}
	return nil
}

func (r *EngineRuntime) StopContainer(ctx context.Context, id string) error {
	if err := r.cli.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		return runtimeErr("stop container", id, err)
	}
	return nil
}

func (r *EngineRuntime) KillContainer(ctx context.Context, id string) error {
	if err := r.cli.ContainerKill(ctx, id, "SIGKILL"); err != nil {
		return runtimeErr("kill container", id, err)
	}
	return nil
}

func (r *EngineRuntime) RemoveContainer(ctx context.Context, id string, force bool) error {
	err := r.cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: force})
	if err != nil && !errdefs.IsNotFound(err) {
		return runtimeErr("remove container", id, err)
	}
	return nil
}

func (r *EngineRuntime) ContainerExists(ctx context.Context, name string) (bool, error) {
	if _, err := r.cli.ContainerInspect(ctx, name); err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, runtimeErr("inspect container", name, err)
	}
	return true, nil
}

func (r *EngineRuntime) ReloadState(ctx context.Context, id string) (domain.ContainerStatus, error) {
	inspect, err := r.cli.ContainerInspect(ctx, id)
	if err != nil {
		return domain.ContainerStatusUnknown, runtimeErr("inspect container", id, err)
	}
	if inspect.State == nil {
		return domain.ContainerStatusUnknown, nil
	}
	return toStatus(inspect.State.Status), nil
}

// WaitForState blocks until the container reaches status. Stopped states use
// the engine's wait endpoint so the exit code is reported; other states are
// polled.
func (r *EngineRuntime) WaitForState(ctx context.Context, id string, status domain.ContainerStatus) (int64, error) {
	switch status {
	case domain.ContainerStatusExited, domain.ContainerStatusStopped:
		return r.waitNotRunning(ctx, id)
	}

	ticker := time.NewTicker(statePollInterval)
	defer ticker.Stop()
	for {
		current, err := r.ReloadState(ctx, id)
		if err != nil {
			return 0, err
		}
		if current == status {
			return 0, nil
		}
		select {
		case <-ctx.Done():
			return 0, runtimeErr("wait container", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *EngineRuntime) waitNotRunning(ctx context.Context, id string) (int64, error) {
	respCh, errCh := r.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case resp := <-respCh:
		if resp.Error != nil && resp.Error.Message != "" {
			return resp.StatusCode, runtimeErr("wait container", id, fmt.Errorf("%s", resp.Error.Message))
		}
		return resp.StatusCode, nil
	case err := <-errCh:
		return 0, runtimeErr("wait container", id, err)
	}
}

func (r *EngineRuntime) CreateVolume(ctx context.Context, name string) (domain.Volume, error) {
	r.log.Infof("Creating volume %s", name)
	v, err := r.cli.VolumeCreate(ctx, volume.CreateOptions{Name: name})
	if err != nil {
		return domain.Volume{}, runtimeErr("create volume", name, err)
	}
	return domain.Volume{Name: v.Name, Mountpoint: v.Mountpoint}, nil
}

func (r *EngineRuntime) VolumeExists(ctx context.Context, name string) (bool, error) {
	if _, err := r.cli.VolumeInspect(ctx, name); err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, runtimeErr("inspect volume", name, err)
	}
	return true, nil
}

func (r *EngineRuntime) RemoveVolume(ctx context.Context, name string, force bool) error {
	err := r.cli.VolumeRemove(ctx, name, force)
	if err != nil && !errdefs.IsNotFound(err) {
		return runtimeErr("remove volume", name, err)
	}
	return nil
}

func (r *EngineRuntime) Close() error {
	return r.cli.Close()
}

func toStatus(s string) domain.ContainerStatus {
	switch domain.ContainerStatus(s) {
	case domain.ContainerStatusCreated,
		domain.ContainerStatusRunning,
		domain.ContainerStatusPaused,
		domain.ContainerStatusExited,
		domain.ContainerStatusStopped:
		return domain.ContainerStatus(s)
	case "dead", "removing":
		return domain.ContainerStatusExited
	case "configured", "initialized":
		// podman reports these before the first start
		return domain.ContainerStatusCreated
	default:
		return domain.ContainerStatusUnknown
	}
}

func runtimeErr(op, target string, err error) error {
	return &domain.RuntimeError{Op: op, Target: target, Err: err}
}
