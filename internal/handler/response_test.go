package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"cabdispatch/internal/ratelimit"
	"cabdispatch/internal/service"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("vehicle V: %w", service.ErrNotFound), http.StatusNotFound},
		{"conflict", fmt.Errorf("vehicle V: %w", service.ErrConflict), http.StatusConflict},
		{"batch running", service.ErrBatchInProgress, http.StatusConflict},
		{"illegal transition", fmt.Errorf("%w: COMPLETED to PENDING", service.ErrInvalidTransition), http.StatusUnprocessableEntity},
		{"bad location", service.ErrInvalidLocation, http.StatusBadRequest},
		{"missing rider id", service.ErrInvalidRiderID, http.StatusBadRequest},
		{"throttled", &ratelimit.ExceededError{Key: "ip", RetryAfterSeconds: 6}, http.StatusTooManyRequests},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapErrorToHTTPStatus(tt.err))
		})
	}
}

func TestRespondError_RateLimitHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondError(c, &ratelimit.ExceededError{Key: "ip", RetryAfterSeconds: 6})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "6", w.Header().Get("Retry-After"))
	assert.Equal(t, "6", w.Header().Get("X-Rate-Limit-Retry-After-Seconds"))
	assert.JSONEq(t, `{"error":"too many requests, retry in 6 seconds"}`, w.Body.String())
}
