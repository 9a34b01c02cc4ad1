package container

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/docker/docker/client"
	"github.com/semmidev/donky/internal/domain"
	"github.com/semmidev/donky/internal/infrastructure/logger"
)

var socketWait = 5 * time.Second

// PodmanSocket is the rootless podman API socket of the given user.
func PodmanSocket(uid int) string {
	return fmt.Sprintf("/run/user/%d/podman/podman.sock", uid)
}

// NewRuntime connects to the engine selected by backend. socket overrides the
// backend's default endpoint.
func NewRuntime(ctx context.Context, backend domain.Backend, socket string, log *logger.Logger) (*EngineRuntime, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}

	switch backend {
	case domain.BackendDocker:
		opts = append(opts, client.FromEnv)
		if socket != "" {
			opts = append(opts, client.WithHost(hostURL(socket)))
		}
	case domain.BackendPodman:
		if socket == "" {
			socket = PodmanSocket(os.Getuid())
		}
		if err := ensurePodmanSocket(ctx, socketPath(socket), log); err != nil {
			return nil, err
		}
		opts = append(opts, client.WithHost(hostURL(socket)))
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedBackend, backend)
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, runtimeErr("connect", backend.String(), err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, runtimeErr("ping", cli.DaemonHost(), err)
	}
	log.Infof("Connected to %s at %s", backend, cli.DaemonHost())

	return NewEngineRuntime(cli, backend, log), nil
}

// ensurePodmanSocket starts the user's podman API service when its socket is
// missing and waits for the socket to show up.
func ensurePodmanSocket(ctx context.Context, path string, log *logger.Logger) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return runtimeErr("stat socket", path, err)
	}

	log.Infof("Podman socket %s missing, starting podman.socket for current user", path)
	cmd := exec.CommandContext(ctx, "systemctl", "--user", "start", "podman.socket")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return runtimeErr("start podman service", path, fmt.Errorf("%w, output: %s", err, strings.TrimSpace(string(output))))
	}

	deadline := time.Now().Add(socketWait)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return runtimeErr("start podman service", path, ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
	return runtimeErr("start podman service", path, errors.New("socket did not appear"))
}

func socketPath(socket string) string {
	return strings.TrimPrefix(socket, "unix://")
}

func hostURL(socket string) string {
	if strings.Contains(socket, "://") {
		return socket
	}
	return "unix://" + socket
}
