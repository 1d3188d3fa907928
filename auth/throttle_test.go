package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThrottle(t *testing.T) {
	t.Run("allows a burst, then blocks", func(t *testing.T) {
		th := NewThrottle(time.Hour, 3)
		for i := 0; i < 3; i++ {
			require.True(t, th.Allow("203.0.113.7"))
		}
		require.False(t, th.Allow("203.0.113.7"))
	})

	t.Run("limits each client separately", func(t *testing.T) {
		th := NewThrottle(time.Hour, 1)
		require.True(t, th.Allow("203.0.113.7"))
		require.False(t, th.Allow("203.0.113.7"))
		require.True(t, th.Allow("198.51.100.2"))
	})

	t.Run("resets the table when full", func(t *testing.T) {
		th := NewThrottle(time.Hour, 1)
		for i := 0; i < maxThrottleKeys; i++ {
			th.getLimiter(string(rune(i)))
		}
		th.getLimiter("one more")
		require.Len(t, th.limiters, 1)
	})
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.RemoteAddr = "203.0.113.7:52114"
	require.Equal(t, "203.0.113.7", ClientKey(r))

	r.RemoteAddr = "not-an-addr"
	require.Equal(t, "not-an-addr", ClientKey(r))
}

func TestThrottleKey(t *testing.T) {
	newReq := func(xff ...string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/login", nil)
		r.RemoteAddr = "169.254.1.1:41000"
		for _, v := range xff {
			r.Header.Add("X-Forwarded-For", v)
		}
		return r
	}

	t.Run("ignores forwarded headers without trusted proxies", func(t *testing.T) {
		th := NewThrottle(time.Hour, 1)
		require.Equal(t, "169.254.1.1", th.Key(newReq("203.0.113.7")))
	})

	t.Run("uses the address the trusted proxy appended", func(t *testing.T) {
		th := NewThrottle(time.Hour, 1).TrustProxyHops(1)
		require.Equal(t, "203.0.113.7", th.Key(newReq("203.0.113.7")))
		// A client-supplied entry cannot pick the bucket.
		require.Equal(t, "203.0.113.7", th.Key(newReq("10.0.0.1, 203.0.113.7")))
		require.Equal(t, "203.0.113.7", th.Key(newReq("10.0.0.1", "203.0.113.7")))
	})

	t.Run("counts several trusted hops from the right", func(t *testing.T) {
		th := NewThrottle(time.Hour, 1).TrustProxyHops(2)
		require.Equal(t, "198.51.100.2", th.Key(newReq("10.0.0.1, 198.51.100.2, 35.191.0.1")))
	})

	t.Run("falls back to the remote address when hops are missing", func(t *testing.T) {
		th := NewThrottle(time.Hour, 1).TrustProxyHops(2)
		require.Equal(t, "169.254.1.1", th.Key(newReq("203.0.113.7")))
		require.Equal(t, "169.254.1.1", th.Key(newReq()))
	})

	t.Run("separate clients behind one proxy get separate buckets", func(t *testing.T) {
		th := NewThrottle(time.Hour, 1).TrustProxyHops(1)
		require.True(t, th.Allow(th.Key(newReq("203.0.113.7"))))
		require.False(t, th.Allow(th.Key(newReq("203.0.113.7"))))
		require.True(t, th.Allow(th.Key(newReq("198.51.100.2"))))
	})
}
