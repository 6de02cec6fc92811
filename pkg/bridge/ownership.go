package bridge

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// OwnershipPolicy chooses the owner of directories created by Mkdir.
type OwnershipPolicy string

const (
	// OwnerRoot assigns uid 0 and gid 0.
	OwnerRoot OwnershipPolicy = "root"
	// OwnerProcess assigns the invoking user and its primary group.
	OwnerProcess OwnershipPolicy = "process"
	// OwnerFixed assigns a configured uid and gid.
	OwnerFixed OwnershipPolicy = "fixed"
)

// Ownership is an OwnershipPolicy plus the ids used by OwnerFixed.
type Ownership struct {
	Policy OwnershipPolicy
	UID    uint32
	GID    uint32
}

// Resolve returns the uid and gid to stamp on a new directory.
func (o Ownership) Resolve() (uid, gid uint32, err error) {
	switch o.Policy {
	case "", OwnerRoot:
		return 0, 0, nil
	case OwnerProcess:
		return uint32(unix.Getuid()), uint32(unix.Getgid()), nil
	case OwnerFixed:
		return o.UID, o.GID, nil
	default:
		return 0, 0, fmt.Errorf("unknown ownership policy %q", o.Policy)
	}
}
