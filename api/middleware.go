package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/x/utils"
	"github.com/tendermint/tendermint/libs/log"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-Id"

// maxBodySize limits request bodies to 1MB.
const maxBodySize = 1 << 20

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(escrowd.WithRequestID(r.Context(), id)))
	})
}

// statusWriter remembers the response status and the error that caused it.
type statusWriter struct {
	http.ResponseWriter
	status int
	err    error
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// recordErr attaches err to the response so that it is logged.
func recordErr(w http.ResponseWriter, err error) {
	if sw, ok := w.(*statusWriter); ok {
		sw.err = err
	}
}

// withLogging injects the logger into the request context, recovers from
// panics, logs every request with its duration and collects metrics.
func withLogging(logger log.Logger, m *metrics, debug bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := escrowd.WithLogger(r.Context(), logger)
			sw := &statusWriter{ResponseWriter: w}

			func() {
				var err error
				defer func() {
					if err != nil {
						writeErr(sw, err, debug)
						sw.err = err
					}
				}()
				defer errors.Recover(&err)
				next.ServeHTTP(sw, r.WithContext(ctx))
			}()

			if sw.status == 0 {
				sw.status = http.StatusOK
			}
			route := "unknown"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			m.observe(route, r.Method, sw.status, time.Since(start))

			lowPrio := r.Method == http.MethodGet && sw.status < http.StatusBadRequest
			utils.LogDuration(ctx, start, "http request", sw.err, lowPrio,
				"method", r.Method, "route", route, "status", sw.status)
		})
	}
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		next.ServeHTTP(w, r)
	})
}

// limiterIdle is how long a client keeps its token bucket without sending
// requests.
const limiterIdle = 10 * time.Minute

type clientLimiter struct {
	limiter *rate.Limiter
	last    time.Time
}

// rateLimiter keeps a token bucket per client address. Buckets of clients
// idle for longer than limiterIdle are dropped.
type rateLimiter struct {
	limit rate.Limit
	burst int
	// trustProxy keys clients on the first X-Forwarded-For address instead
	// of the connection address. Enable it only behind a proxy that sets
	// the header.
	trustProxy bool
	now        func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter
	swept   time.Time
}

func newRateLimiter(perSecond float64, burst int, trustProxy bool) *rateLimiter {
	return &rateLimiter{
		limit:      rate.Limit(perSecond),
		burst:      burst,
		trustProxy: trustProxy,
		now:        time.Now,
		clients:    make(map[string]*clientLimiter),
	}
}

// allow consumes a token of the client bucket.
func (rl *rateLimiter) allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.swept) >= limiterIdle {
		for k, c := range rl.clients {
			if now.Sub(c.last) >= limiterIdle {
				delete(rl.clients, k)
			}
		}
		rl.swept = now
	}

	c, ok := rl.clients[client]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[client] = c
	}
	c.last = now
	return c.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *rateLimiter) middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(clientAddr(r, rl.trustProxy)) {
				w.Header().Set("Retry-After", "1")
				JSONErr(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			return strings.TrimSpace(strings.Split(xff, ",")[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
