package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProtocolMiddleware(t *testing.T) {
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("test response"))
	})

	wrappedHandler := ProtocolMiddleware("/events", "/ws/")(testHandler)

	t.Run("DisablesHTTP3Globally", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/test", nil)

		wrappedHandler.ServeHTTP(recorder, request)

		assert.Equal(t, "clear", recorder.Header().Get("Alt-Svc"))
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("AddsStreamHeadersForEventsEndpoint", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/events?stream=m1", nil)

		wrappedHandler.ServeHTTP(recorder, request)

		assert.Equal(t, "clear", recorder.Header().Get("Alt-Svc"))
		assert.Equal(t, "keep-alive", recorder.Header().Get("Connection"))
		assert.Equal(t, "true", recorder.Header().Get("X-Force-HTTP1"))
	})

	t.Run("AddsStreamHeadersForSecondPrefix", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/ws/signaling/m1", nil)

		wrappedHandler.ServeHTTP(recorder, request)

		assert.Equal(t, "true", recorder.Header().Get("X-Force-HTTP1"))
	})

	t.Run("DoesNotAddStreamHeadersForOtherEndpoints", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/api/meetings", nil)

		wrappedHandler.ServeHTTP(recorder, request)

		assert.Equal(t, "clear", recorder.Header().Get("Alt-Svc"))
		assert.Empty(t, recorder.Header().Get("Connection"))
		assert.Empty(t, recorder.Header().Get("X-Force-HTTP1"))
	})
}
