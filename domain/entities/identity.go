package entities

import "strconv"

// Identity is the effective user identity every permission decision is made against.
type Identity uint32

// RootIdentity is the default privileged identity.
const RootIdentity Identity = 0

// String returns the identity as a decimal uid.
func (i Identity) String() string {
	return strconv.FormatUint(uint64(i), 10)
}
