package privilege

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// Identity is the account the process should run as.
type Identity struct {
	Name   string
	UID    int
	GID    int
	Groups []int
	Home   string
}

// Lookup resolves a user name into its ids, supplementary groups and home.
func Lookup(name string) (Identity, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to look up user %s: %w", name, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid gid %q: %w", u.Gid, err)
	}

	groupIDs, err := u.GroupIds()
	if err != nil {
		return Identity{}, fmt.Errorf("failed to list groups of %s: %w", name, err)
	}
	groups := make([]int, 0, len(groupIDs))
	for _, g := range groupIDs {
		id, err := strconv.Atoi(g)
		if err != nil {
			continue
		}
		groups = append(groups, id)
	}

	return Identity{Name: name, UID: uid, GID: gid, Groups: groups, Home: u.HomeDir}, nil
}

// NeedsSwitch reports whether the current process runs under a different uid.
func (i Identity) NeedsSwitch() bool {
	return unix.Getuid() != i.UID
}

// Drop switches every thread of the process to the identity. Groups are set
// first since they cannot be changed once the uid is no longer root. HOME
// follows the user so rootless podman finds its configuration.
func Drop(name string) (Identity, error) {
	id, err := Lookup(name)
	if err != nil {
		return Identity{}, err
	}
	if !id.NeedsSwitch() {
		return id, nil
	}

	// unix.Setgroups only applies to the calling thread.
	if err := syscall.Setgroups(id.Groups); err != nil {
		return Identity{}, fmt.Errorf("failed to set groups: %w", err)
	}
	if err := unix.Setgid(id.GID); err != nil {
		return Identity{}, fmt.Errorf("failed to set gid %d: %w", id.GID, err)
	}
	if err := unix.Setuid(id.UID); err != nil {
		return Identity{}, fmt.Errorf("failed to set uid %d: %w", id.UID, err)
	}
	if err := os.Setenv("HOME", id.Home); err != nil {
		return Identity{}, fmt.Errorf("failed to set HOME: %w", err)
	}

	return id, nil
}
