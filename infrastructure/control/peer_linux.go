//go:build linux

package control

import (
	"fmt"
	"net"

	"github.com/cervus-dev/cervus/domain/entities"
	"golang.org/x/sys/unix"
)

// peerIdentity returns the effective uid of the process on the other end.
func peerIdentity(conn *net.UnixConn) (entities.Identity, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("control: raw conn: %w", err)
	}
	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return 0, fmt.Errorf("control: raw control: %w", err)
	}
	if credErr != nil {
		return 0, fmt.Errorf("control: SO_PEERCRED: %w", credErr)
	}
	return entities.Identity(cred.Uid), nil
}
