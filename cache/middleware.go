package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"blogfeed/metrics"
)

const HeaderCache = "X-Cache"

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type bodyWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Key derives the cache key of a request: the scope prefix, the request
// URI and the viewer's Cookie and Authorization headers, so that viewers in
// different authentication states never share an entry.
func Key(prefix string, r *http.Request) string {
	h := sha256.New()
	h.Write([]byte(r.URL.RequestURI()))
	h.Write([]byte{0})
	h.Write([]byte(r.Header.Get("Cookie")))
	h.Write([]byte{0})
	h.Write([]byte(r.Header.Get("Authorization")))
	return prefix + ":" + hex.EncodeToString(h.Sum(nil))
}

// Page serves GET requests from c while their entry is younger than ttl and
// stores successful responses of the handlers behind it. Entries are not
// invalidated when the underlying data changes.
func Page(c Cache, prefix string, ttl time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodGet {
			ctx.Next()
			return
		}
		key := Key(prefix, ctx.Request)
		reqCtx := ctx.Request.Context()

		raw, ok, err := c.Get(reqCtx, key)
		if err != nil {
			metrics.PageCache.WithLabelValues("error").Inc()
			slog.Warn("Page cache lookup failed", "error", err, "key", key)
		}
		if ok {
			var resp storedResponse
			if err := json.Unmarshal(raw, &resp); err == nil {
				metrics.PageCache.WithLabelValues("hit").Inc()
				ctx.Header(HeaderCache, "HIT")
				ctx.Data(resp.Status, resp.ContentType, resp.Body)
				ctx.Abort()
				return
			}
			slog.Warn("Discarding unreadable page cache entry", "key", key)
		}
		metrics.PageCache.WithLabelValues("miss").Inc()

		w := &bodyWriter{ResponseWriter: ctx.Writer}
		ctx.Writer = w
		ctx.Next()

		if w.Status() != http.StatusOK {
			return
		}
		encoded, err := json.Marshal(storedResponse{
			Status:      w.Status(),
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		})
		if err != nil {
			return
		}
		if err := c.Set(reqCtx, key, encoded, ttl); err != nil {
			slog.Warn("Page cache store failed", "error", err, "key", key)
		}
	}
}
