package container

import (
	"fmt"
	"sort"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"
	"github.com/semmidev/donky/internal/domain"
)

// toDockerConfig maps a ContainerSpec onto the Engine API create payload.
func toDockerConfig(spec domain.ContainerSpec) (*container.Config, *container.HostConfig, error) {
	cfg := &container.Config{
		Image: spec.Image.String(),
		Cmd:   spec.Command,
		User:  spec.User,
		Env:   envList(spec.Env),
	}
	hostCfg := &container.HostConfig{
		VolumesFrom: spec.VolumesFrom,
	}

	if len(spec.Ports) > 0 {
		cfg.ExposedPorts = nat.PortSet{}
		hostCfg.PortBindings = nat.PortMap{}
		for _, p := range spec.Ports {
			port, err := parsePort(p.ContainerPort)
			if err != nil {
				return nil, nil, err
			}
			cfg.ExposedPorts[port] = struct{}{}
			hostCfg.PortBindings[port] = append(hostCfg.PortBindings[port], nat.PortBinding{HostPort: p.HostPort})
		}
	}

	if v := spec.Volume; v != nil {
		mode := "rw"
		if v.ReadOnly {
			mode = "ro"
		}
		hostCfg.Binds = append(hostCfg.Binds, fmt.Sprintf("%s:%s:%s", v.Name, v.Target, mode))
	}

	for _, m := range spec.Mounts {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	return cfg, hostCfg, nil
}

// parsePort accepts "3306/tcp" or a bare "3306", which defaults to tcp.
func parsePort(s string) (nat.Port, error) {
	proto, port := nat.SplitProtoPort(s)
	if port == "" {
		return "", fmt.Errorf("%w: invalid container port %q", domain.ErrConfiguration, s)
	}
	return nat.NewPort(proto, port)
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}
