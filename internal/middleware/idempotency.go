package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	idempotencyHeader       = "Idempotency-Key"
	idempotencyReplayHeader = "Idempotent-Replayed"
	idempotencyTTL          = 24 * time.Hour
	idempotencyLockTTL      = 30 * time.Second
	idempotencyPrefix       = "idempotency:"
)

// storedResponse is the replayable part of a handled request.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// bodyRecorder tees the response body so it can be stored after the handler runs.
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware replays the stored response when a client repeats a
// mutating request with the same Idempotency-Key. A retried force-assign or
// ride request then returns the first result instead of a conflict. While the
// first attempt is still running, a repeat gets 409. Keys are scoped per
// client, method and path. With a nil client the middleware is a pass-through.
func IdempotencyMiddleware(redisClient *redis.Client, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
		if redisClient == nil || key == "" || !mutating(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := idempotencyCacheKey(c.ClientIP(), c.Request, key)
		entry := log.WithField("idempotency_key", key)

		stored, err := loadResponse(ctx, redisClient, cacheKey)
		if err != nil {
			entry.WithError(err).Warn("idempotency lookup failed")
			c.Next()
			return
		}
		if stored != nil {
			replay(c, stored)
			return
		}

		lockKey := cacheKey + ":lock"
		acquired, err := redisClient.SetNX(ctx, lockKey, "1", idempotencyLockTTL).Result()
		if err != nil {
			entry.WithError(err).Warn("idempotency lock failed")
			c.Next()
			return
		}
		if !acquired {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a request with this Idempotency-Key is still in progress"})
			return
		}
		defer func() {
			if err := redisClient.Del(context.WithoutCancel(ctx), lockKey).Err(); err != nil {
				entry.WithError(err).Warn("idempotency unlock failed")
			}
		}()

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder

		c.Next()

		status := recorder.Status()
		if !replayable(status) {
			return
		}
		resp := storedResponse{
			Status:      status,
			ContentType: recorder.Header().Get("Content-Type"),
			Body:        recorder.body.Bytes(),
		}
		if err := storeResponse(context.WithoutCancel(ctx), redisClient, cacheKey, resp); err != nil {
			entry.WithError(err).Warn("idempotency store failed")
		}
	}
}

func idempotencyCacheKey(clientIP string, r *http.Request, key string) string {
	return idempotencyPrefix + clientIP + ":" + r.Method + ":" + r.URL.Path + ":" + key
}

func mutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch || method == http.MethodDelete
}

// replayable excludes server failures and throttling, which a retry may fix.
func replayable(status int) bool {
	return status >= 200 && status < 500 && status != http.StatusTooManyRequests
}

func replay(c *gin.Context, stored *storedResponse) {
	c.Header(idempotencyReplayHeader, "true")
	if len(stored.Body) == 0 {
		c.AbortWithStatus(stored.Status)
		return
	}
	contentType := stored.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(stored.Status, contentType, stored.Body)
	c.Abort()
}

// loadResponse returns nil, nil when nothing is stored under key.
func loadResponse(ctx context.Context, client *redis.Client, key string) (*storedResponse, error) {
	data, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stored storedResponse
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func storeResponse(ctx context.Context, client *redis.Client, key string, resp storedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, data, idempotencyTTL).Err()
}
