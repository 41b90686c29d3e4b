package web

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedIPs bounds the limiter table; it is cleared when full.
const maxTrackedIPs = 4096

// ipRateLimiter keeps a token bucket per client IP.
type ipRateLimiter struct {
	ips map[string]*rate.Limiter
	mu  sync.RWMutex
	r   rate.Limit
	b   int
}

func newIPRateLimiter(r rate.Limit, b int) *ipRateLimiter {
	return &ipRateLimiter{
		ips: make(map[string]*rate.Limiter),
		r:   r,
		b:   b,
	}
}

// limiter returns the bucket for ip, creating it on first use.
func (i *ipRateLimiter) limiter(ip string) *rate.Limiter {
	i.mu.RLock()
	l, ok := i.ips[ip]
	i.mu.RUnlock()
	if ok {
		return l
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if l, ok := i.ips[ip]; ok {
		return l
	}
	if len(i.ips) >= maxTrackedIPs {
		clear(i.ips)
	}
	l = rate.NewLimiter(i.r, i.b)
	i.ips[ip] = l
	return l
}

// clientIP is the remote host without its port. Forwarding headers are
// ignored; the bridge is expected to sit on the LAN without a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
