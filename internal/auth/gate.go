// Package auth guards the API with a shared secret and a per-address rate
// limit.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/rbxmod/banlist/pkg/ratelimit"
)

// SecretHeader carries the shared secret on every request.
const SecretHeader = "X-Roblox-Secret"

const (
	headerLimit      = "X-RateLimit-Limit"
	headerRemaining  = "X-RateLimit-Remaining"
	headerRetryAfter = "Retry-After"
)

// Gate admits requests that are within their rate limit and carry the
// configured secret.
type Gate struct {
	// Secret is the expected value of SecretHeader. It must not be empty.
	Secret string

	// Limiter counts requests per client address. Nil disables limiting.
	Limiter ratelimit.Limiter

	// TrustProxyHeaders takes the client address from X-Forwarded-For.
	TrustProxyHeaders bool

	Logger hclog.Logger

	now func() time.Time
}

// Middleware wraps next with the rate limit and secret checks, in that
// order. Every request counts against the limit, including unauthorized
// ones.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	logger := g.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	now := g.now
	if now == nil {
		now = time.Now
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := ClientAddr(r, g.TrustProxyHeaders)

		if g.Limiter != nil {
			d, err := g.Limiter.Allow(r.Context(), addr)
			if err != nil {
				// Limiter outages do not take the API down with them.
				logger.Error("error checking rate limit, allowing request",
					"error", err,
					"remote_addr", addr,
					"path", r.URL.Path,
				)
			} else {
				w.Header().Set(headerLimit, strconv.Itoa(d.Limit))
				w.Header().Set(headerRemaining, strconv.Itoa(d.Remaining))
				if !d.Allowed {
					retry := d.RetryAfter(now())
					w.Header().Set(headerRetryAfter, strconv.Itoa(int(retry/time.Second)))
					logger.Warn("rate limit exceeded",
						"remote_addr", addr,
						"path", r.URL.Path,
						"method", r.Method,
						"reset_at", d.ResetAt,
					)
					writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later.")
					return
				}
			}
		}

		if !g.authorized(r.Header.Get(SecretHeader)) {
			logger.Warn("rejected request with invalid secret",
				"remote_addr", addr,
				"path", r.URL.Path,
				"method", r.Method,
			)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *Gate) authorized(presented string) bool {
	if g.Secret == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(g.Secret)) == 1
}

// ClientAddr returns the address requests are counted against. With
// trustProxy it is the first X-Forwarded-For hop, otherwise the host part of
// the connection's remote address.
func ClientAddr(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "error",
		"message": message,
	})
}
