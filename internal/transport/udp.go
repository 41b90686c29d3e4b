// Package transport sends encoded lamp commands as UDP broadcast datagrams.
//
// Delivery is fire-and-forget: a nil error means the local network stack
// accepted the datagram, not that a lamp received it. Nothing is retried.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ErrTransmission wraps any socket-level failure while sending.
var ErrTransmission = errors.New("udp transmission failed")

// Broadcaster sends one datagram to addr:port.
type Broadcaster interface {
	Broadcast(ctx context.Context, addr string, port int, payload []byte) error
}

// UDP is a Broadcaster that opens a short-lived broadcast-enabled socket per send.
type UDP struct {
	timeout time.Duration
}

// NewUDP creates a UDP broadcaster. A zero timeout leaves the write
// deadline to the caller's context.
func NewUDP(timeout time.Duration) *UDP {
	return &UDP{timeout: timeout}
}

// Broadcast sends payload as a single datagram.
func (u *UDP) Broadcast(ctx context.Context, addr string, port int, payload []byte) error {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	raddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("%w: resolve %s:%d: %v", ErrTransmission, addr, port, err)
	}

	lc := net.ListenConfig{Control: enableBroadcast}
	conn, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return fmt.Errorf("%w: open socket: %v", ErrTransmission, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("%w: set deadline: %v", ErrTransmission, err)
		}
	}

	n, err := conn.WriteTo(payload, raddr)
	if err != nil {
		return fmt.Errorf("%w: send to %s: %v", ErrTransmission, raddr, err)
	}
	if n != len(payload) {
		return fmt.Errorf("%w: short write %d/%d bytes", ErrTransmission, n, len(payload))
	}
	return nil
}
