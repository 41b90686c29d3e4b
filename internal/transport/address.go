package transport

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// ErrInvalidAddress is returned for an address that is neither a network
// prefix ("192.168.1.") nor a full IPv4 address.
var ErrInvalidAddress = errors.New("invalid lamp address")

// BroadcastAddress derives the /24 broadcast address from a configured
// address. Both "192.168.1." and "192.168.1.40" yield "192.168.1.255".
func BroadcastAddress(input string) (string, error) {
	s := strings.TrimSpace(input)
	if strings.HasSuffix(s, ".") {
		if strings.Count(s, ".") != 3 {
			return "", fmt.Errorf("%w: %q", ErrInvalidAddress, input)
		}
		s += "0"
	}
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, input)
	}
	b := addr.As4()
	b[3] = 255
	return netip.AddrFrom4(b).String(), nil
}
