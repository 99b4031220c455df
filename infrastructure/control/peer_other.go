//go:build !linux

package control

import (
	"errors"
	"net"

	"github.com/cervus-dev/cervus/domain/entities"
)

// peerIdentity needs SO_PEERCRED, which only Linux provides.
func peerIdentity(*net.UnixConn) (entities.Identity, error) {
	return 0, errors.New("control: peer credentials are only supported on linux")
}
