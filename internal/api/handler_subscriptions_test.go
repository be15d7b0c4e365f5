package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupSubscriptionRouter() *gin.Engine {
	r := gin.Default()
	handler := NewHandler(nil, nil, nil, nil, nil)
	r.PUT("/api/subscriptions", handler.PutSubscription)
	r.DELETE("/api/subscriptions", handler.DeleteSubscription)
	r.GET("/api/subscriptions", handler.GetSubscription)
	return r
}

func TestPutSubscriptionBadRequest(t *testing.T) {
	router := setupSubscriptionRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/subscriptions", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestDeleteSubscriptionBadRequest(t *testing.T) {
	router := setupSubscriptionRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/subscriptions", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSubscriptionMissingEndpoint(t *testing.T) {
	router := setupSubscriptionRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/subscriptions", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"endpoint is required"}`, w.Body.String())
}

func TestRawQueryParam(t *testing.T) {
	// Push endpoints can contain encoded characters that must survive
	// verbatim.
	raw := "endpoint=https://push.example.com/v2/abc%2Fdef&other=1"

	got, ok := rawQueryParam(raw, "endpoint")
	assert.True(t, ok)
	assert.Equal(t, "https://push.example.com/v2/abc%2Fdef", got)

	_, ok = rawQueryParam(raw, "missing")
	assert.False(t, ok)
}
