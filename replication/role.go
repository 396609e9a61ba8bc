package replication

import (
	"crypto/rand"
	"encoding/hex"
	"net"
	"strconv"
)

// Role is the replication role reported by INFO
type Role string

const (
	RolePrimary Role = "master"
	RoleReplica Role = "slave"
)

// IDLength is the length of a replication ID in hex characters
const IDLength = 40

// Info is the replication identity of this process. It is built once at
// startup and shared by INFO and PSYNC.
type Info struct {
	Role   Role
	ID     string
	Offset int64

	// Set for replicas only
	PrimaryHost string
	PrimaryPort int
}

// NewPrimaryInfo returns the identity of a primary with a fresh ID
func NewPrimaryInfo() Info {
	return Info{Role: RolePrimary, ID: NewID()}
}

// NewReplicaInfo returns the identity of a replica of host:port
func NewReplicaInfo(host string, port int) Info {
	return Info{
		Role:        RoleReplica,
		ID:          NewID(),
		PrimaryHost: host,
		PrimaryPort: port,
	}
}

// IsReplica reports whether the identity belongs to a replica
func (i Info) IsReplica() bool {
	return i.Role == RoleReplica
}

// PrimaryAddr returns host:port of the primary, or "" for a primary
func (i Info) PrimaryAddr() string {
	if !i.IsReplica() {
		return ""
	}
	return net.JoinHostPort(i.PrimaryHost, strconv.Itoa(i.PrimaryPort))
}

// NewID returns a random replication ID of 40 lowercase hex characters
func NewID() string {
	var b [IDLength / 2]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand only fails when the OS entropy source is unusable
		panic("replication: reading random bytes: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
