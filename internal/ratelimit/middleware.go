package ratelimit

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderDegraded   = "X-RateLimit-Degraded"
	HeaderRetryAfter = "Retry-After"
)

// ClientID identifies the caller: the edge header first, then the first
// X-Forwarded-For entry, then the connection address, else "unknown".
func ClientID(r *http.Request, edgeHeader string) string {
	if edgeHeader != "" {
		if v := strings.TrimSpace(r.Header.Get(edgeHeader)); v != "" {
			return v
		}
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}

	return "unknown"
}

type rejection struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Middleware gates requests whose path has a policy in the limiter's table.
func Middleware(l *Limiter, edgeHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Check(r.Context(), ClientID(r, edgeHeader), r.URL.Path)
			if !d.Limited {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set(HeaderLimit, strconv.Itoa(d.Limit))
			h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
			h.Set(HeaderReset, strconv.FormatInt(d.ResetAt.UnixMilli(), 10))
			if d.Degraded {
				h.Set(HeaderDegraded, "true")
			}

			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := d.RetryAfter(l.now())
			h.Set(HeaderRetryAfter, strconv.Itoa(int(retry/time.Second)))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(rejection{
				Success: false,
				Error:   "rate_limited",
				Message: fmt.Sprintf("Too many requests. Try again in %d minute(s).", waitMinutes(retry)),
			})
		})
	}
}

func waitMinutes(d time.Duration) int {
	m := int(math.Ceil(d.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}
