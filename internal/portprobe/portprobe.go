// Package portprobe answers whether a loopback TCP port is free by actually
// trying to bind it. A bind attempt is authoritative; scanning the process
// table is not, since a foreign process can hold the port without showing up
// under a recognizable name.
package portprobe

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"
)

type State int

const (
	// Free means the bind succeeded and the listener was closed again.
	Free State = iota
	// Occupied means the bind failed with an address-in-use class error.
	Occupied
	// Indeterminate means the bind failed for an unrelated reason
	// (permissions, exotic socket errors); callers should treat it as a
	// soft failure, not as a conflict.
	Indeterminate
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Occupied:
		return "occupied"
	default:
		return "indeterminate"
	}
}

// Bind probes 127.0.0.1:port.
func Bind(port int) (State, error) {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		_ = ln.Close()
		return Free, nil
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return Occupied, nil
	}
	return Indeterminate, err
}

// Dial reports whether something is accepting connections on host:port.
// Used for reachability checks of foreign services (TTS server), where we
// want the opposite question from Bind.
func Dial(host string, port int, timeout time.Duration) bool {
	if host == "" {
		host = "127.0.0.1"
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// WaitFree polls Bind until the port reports free or the deadline passes.
// Restart uses this so the backend does not race its own dying predecessor
// for the listen socket.
func WaitFree(port int, deadline time.Duration) error {
	until := time.Now().Add(deadline)
	for {
		st, _ := Bind(port)
		if st == Free {
			return nil
		}
		if time.Now().After(until) {
			return fmt.Errorf("port %d still bound after %s", port, deadline)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
