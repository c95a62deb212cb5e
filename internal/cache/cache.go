// Package cache provides a Redis-backed response cache for GET endpoints,
// with explicit invalidation on the write path.
package cache

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/gob"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type cachedBody struct {
	Status int
	Header map[string][]string
	Body   []byte
}

// sha1Hex keeps Redis keys short regardless of path and query length.
func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// keyFor namespaces keys by resource so invalidation can target the event
// list separately from single-event entries. Non-GET requests are never
// cached.
func keyFor(r *http.Request) string {
	if r.Method != http.MethodGet {
		return ""
	}
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/events/"):
		return "cache:events:item:" + sha1Hex("GET|"+path+"|"+r.URL.RawQuery)
	case path == "/events":
		return "cache:events:list:" + sha1Hex("GET|/events|"+r.URL.RawQuery)
	default:
		return ""
	}
}

// ResponseCache returns a chi middleware that serves 2xx GET responses from
// Redis for up to ttl. Hits carry "X-Cache: HIT", fresh responses "MISS".
func ResponseCache(rdb *redis.Client, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFor(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if b, err := rdb.Get(r.Context(), key).Bytes(); err == nil && len(b) > 0 {
				var hit cachedBody
				if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&hit); err == nil {
					for k, vals := range hit.Header {
						for _, v := range vals {
							w.Header().Add(k, v)
						}
					}
					w.Header().Set("X-Cache", "HIT")
					w.WriteHeader(hit.Status)
					_, _ = w.Write(hit.Body)
					return
				}
			}

			bw := &bufferedWriter{ResponseWriter: w, status: http.StatusOK}
			bw.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(bw, r)

			// Only 2xx responses are worth replaying.
			if bw.status >= 200 && bw.status < 300 {
				item := cachedBody{
					Status: bw.status,
					Header: bw.Header().Clone(),
					Body:   bw.buf.Bytes(),
				}
				var out bytes.Buffer
				if err := gob.NewEncoder(&out).Encode(item); err == nil {
					_ = rdb.Set(r.Context(), key, out.Bytes(), ttl).Err()
				}
			}
		})
	}
}

// bufferedWriter tees the response body into memory so it can be cached
// after the handler runs.
type bufferedWriter struct {
	http.ResponseWriter
	buf         bytes.Buffer
	status      int
	wroteHeader bool
}

func (w *bufferedWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// Invalidator purges cached responses after a write.
type Invalidator struct {
	rdb *redis.Client
}

// NewInvalidator constructs an Invalidator.
func NewInvalidator(rdb *redis.Client) *Invalidator {
	return &Invalidator{rdb: rdb}
}

// PurgeEvents drops the event list and all single-event entries. Item keys
// are hashed, so the purge scans by prefix rather than deleting exact keys.
func (ci *Invalidator) PurgeEvents(ctx context.Context) {
	for _, pattern := range []string{"cache:events:list:*", "cache:events:item:*"} {
		iter := ci.rdb.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			_ = ci.rdb.Del(ctx, iter.Val()).Err()
		}
	}
}
