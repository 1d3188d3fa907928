package auth

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Tracked clients before the limiter table is reset.
const maxThrottleKeys = 10000

// Throttle limits login attempts per client.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    time.Duration
	burst    int
	// Reverse proxies in front of the server that append to X-Forwarded-For. 0 keys on RemoteAddr.
	proxyHops int
}

// NewThrottle allows burst attempts at once, then one per every.
func NewThrottle(every time.Duration, burst int) *Throttle {
	return &Throttle{
		limiters: make(map[string]*rate.Limiter),
		every:    every,
		burst:    burst,
	}
}

// getLimiter gets or creates a limiter for the given key.
func (t *Throttle) getLimiter(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limiter, ok := t.limiters[key]; ok {
		return limiter
	}
	if len(t.limiters) >= maxThrottleKeys {
		t.limiters = make(map[string]*rate.Limiter)
	}

	limiter := rate.NewLimiter(rate.Every(t.every), t.burst)
	t.limiters[key] = limiter
	return limiter
}

// Allow checks if an attempt is allowed for the given key.
func (t *Throttle) Allow(key string) bool {
	return t.getLimiter(key).Allow()
}

// TrustProxyHops keys clients on X-Forwarded-For, counting hops trusted proxies appended from the right.
// On Cloud Run the Google front end appends the caller's address, so 1 hop is the real client.
func (t *Throttle) TrustProxyHops(n int) *Throttle {
	t.proxyHops = n
	return t
}

// Key identifies the caller the way this throttle counts attempts.
func (t *Throttle) Key(r *http.Request) string {
	if t == nil {
		return ClientKey(r)
	}
	return clientKey(r, t.proxyHops)
}

// ClientKey identifies the caller by remote IP.
func ClientKey(r *http.Request) string {
	return clientKey(r, 0)
}

// Entries left of the trusted hops are written by the client and are never used.
func clientKey(r *http.Request, proxyHops int) string {
	if proxyHops > 0 {
		var hops []string
		for _, h := range r.Header.Values("X-Forwarded-For") {
			for _, ip := range strings.Split(h, ",") {
				if ip = strings.TrimSpace(ip); ip != "" {
					hops = append(hops, ip)
				}
			}
		}
		if len(hops) >= proxyHops {
			return hops[len(hops)-proxyHops]
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
