package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ContainerStatus is the status string reported by the container runtime.
type ContainerStatus string

const (
	ContainerStatusCreated ContainerStatus = "created"
	ContainerStatusRunning ContainerStatus = "running"
	ContainerStatusPaused  ContainerStatus = "paused"
	ContainerStatusExited  ContainerStatus = "exited"
	ContainerStatusStopped ContainerStatus = "stopped"
	ContainerStatusUnknown ContainerStatus = "unknown"
)

type ImageRef struct {
	Registry string
	Name     string
	Tag      string
}

func (r ImageRef) String() string {
	ref := r.Name
	if r.Registry != "" {
		ref = r.Registry + "/" + ref
	}
	if r.Tag != "" {
		ref += ":" + r.Tag
	}
	return ref
}

type PortBinding struct {
	ContainerPort string // e.g. "3306/tcp"
	HostPort      string
}

type VolumeBinding struct {
	Name     string
	Target   string
	ReadOnly bool
	// Force allows an existing volume with the same name to be removed and
	// created again.
	Force bool
}

type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ContainerSpec is a declarative description of a container to create.
type ContainerSpec struct {
	Image       ImageRef
	Name        string
	Ports       []PortBinding
	Env         map[string]string
	Volume      *VolumeBinding
	Mounts      []Mount
	Command     []string
	User        string
	VolumesFrom []string
	// Recreate removes an existing container with the same name first.
	Recreate bool
	// Bootstrap starts the container right after creation and gives it
	// BootstrapWait to initialise before it is handed back.
	Bootstrap     bool
	BootstrapWait time.Duration
}

type Volume struct {
	Name       string
	Mountpoint string
}

// ContainerRuntime is the capability the core needs from a container engine.
type ContainerRuntime interface {
	PullImage(ctx context.Context, ref ImageRef) (string, error)
	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error
	KillContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string, force bool) error
	ContainerExists(ctx context.Context, name string) (bool, error)
	ReloadState(ctx context.Context, id string) (ContainerStatus, error)
	// WaitForState blocks until the container reaches status or ctx is done.
	// It returns the container exit code when the status is a stopped one.
	WaitForState(ctx context.Context, id string, status ContainerStatus) (int64, error)
	CreateVolume(ctx context.Context, name string) (Volume, error)
	VolumeExists(ctx context.Context, name string) (bool, error)
	RemoveVolume(ctx context.Context, name string, force bool) error
	Close() error
}

// Backend selects the container engine implementation.
type Backend int

const (
	BackendUnknown Backend = iota
	BackendPodman
	BackendDocker
)

func (b Backend) String() string {
	switch b {
	case BackendPodman:
		return "podman"
	case BackendDocker:
		return "docker"
	default:
		return "unknown"
	}
}

func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "podman":
		return BackendPodman, nil
	case "docker":
		return BackendDocker, nil
	}
	return BackendUnknown, fmt.Errorf("%w: %q", ErrUnsupportedBackend, s)
}
